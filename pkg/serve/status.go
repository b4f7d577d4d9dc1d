package serve

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/replayio/overseer/pkg/log"
	"github.com/replayio/overseer/pkg/store"
)

type statusResponse struct {
	Containers    []store.Container    `json:"containers"`
	WebhookEvents []store.WebhookEvent `json:"webhookEvents"`
	DefaultPrompt string               `json:"defaultPrompt"`
}

// handleStatus aggregates the store for the dashboard. It degrades
// gracefully: a store failure yields an empty well-formed response rather
// than compounding an existing outage with a hard-failing dashboard.
func (s *Server) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()
	resp := statusResponse{
		Containers:    []store.Container{},
		WebhookEvents: []store.WebhookEvent{},
		DefaultPrompt: DefaultPrompt,
	}

	if containers, err := s.store.ListContainers(ctx); err != nil {
		log.Warn("status: failed to list containers", "error", err)
	} else if containers != nil {
		resp.Containers = containers
	}

	if events, err := s.store.ListRecentEvents(ctx, recentEventsWindow); err != nil {
		log.Warn("status: failed to list events", "error", err)
	} else if events != nil {
		resp.WebhookEvents = events
	}

	if prompt, err := s.store.GetSetting(ctx, store.SettingDefaultPrompt); err == nil && prompt != "" {
		resp.DefaultPrompt = prompt
	}

	return c.JSON(http.StatusOK, resp)
}

type setPromptRequest struct {
	Prompt string `json:"prompt"`
}

// handleSetDefaultPrompt upserts the default_prompt setting.
func (s *Server) handleSetDefaultPrompt(c echo.Context) error {
	var req setPromptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}
	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}

	if err := s.store.PutSetting(c.Request().Context(), store.SettingDefaultPrompt, req.Prompt); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store prompt")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "prompt": req.Prompt})
}
