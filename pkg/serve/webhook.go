package serve

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/replayio/overseer/pkg/log"
	"github.com/replayio/overseer/pkg/store"
)

// webhookBody is the envelope units post on status changes.
type webhookBody struct {
	Type          string          `json:"type"`
	ContainerName string          `json:"containerName"`
	Timestamp     string          `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// terminalEventTypes signal that the unit's work is over.
var terminalEventTypes = map[string]bool{
	"agent.exited": true,
	"shutdown":     true,
	"complete":     true,
}

// handleWebhook ingests one callback. The raw payload is appended verbatim
// even for unrecognized event types; the container row only derives
// last_event_at and, for terminal events, the stopped status. Replaying the
// same callback is safe: it appends another audit row and re-applies the same
// transition.
func (s *Server) handleWebhook(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}

	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}

	ctx := c.Request().Context()
	now := s.now().UTC()

	ev := &store.WebhookEvent{
		EventID:     uuid.NewString(),
		ContainerID: body.ContainerName,
		EventType:   body.Type,
		Payload:     string(raw),
		ReceivedAt:  now,
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record event")
	}

	if body.ContainerName != "" {
		if err := s.store.TouchContainer(ctx, body.ContainerName, now); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to update container")
		}
		if terminalEventTypes[body.Type] {
			err := s.store.SetContainerStatus(ctx, body.ContainerName, store.StatusStopped)
			if err != nil && err != store.ErrNotFound {
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to update container")
			}
			if err == store.ErrNotFound {
				// Units may report under names we never provisioned; the
				// audit row above is still the record of it.
				log.Warn("terminal event for unknown container", "container", body.ContainerName)
			}
		}
	}

	log.Debug("webhook ingested", "type", body.Type, "container", body.ContainerName)
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}
