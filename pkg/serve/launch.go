package serve

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/replayio/overseer/pkg/lifecycle"
	"github.com/replayio/overseer/pkg/log"
	"github.com/replayio/overseer/pkg/store"
)

type launchRequest struct {
	Prompt      string `json:"prompt"`
	RepoURL     string `json:"repoUrl"`
	CloneBranch string `json:"cloneBranch"`
	PushBranch  string `json:"pushBranch"`
	WebhookURL  string `json:"webhookUrl"`
	ContainerID string `json:"containerId"`
}

// handleLaunch creates the pending row and enqueues the job, returning
// before provisioning begins. Missing required fields answer 200 rather than
// an error status: the callers fire and forget, and an error status would
// only provoke useless retries of an unfixable request.
func (s *Server) handleLaunch(c echo.Context) error {
	var req launchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}

	if req.Prompt == "" || req.ContainerID == "" {
		log.Warn("launch rejected: missing fields", "container", req.ContainerID)
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": false, "error": "missing fields"})
	}

	now := s.now().UTC()
	err := s.store.CreateContainer(c.Request().Context(), &store.Container{
		ID:          req.ContainerID,
		Status:      store.StatusPending,
		Prompt:      req.Prompt,
		CreatedAt:   now,
		LastEventAt: now,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create container record")
	}

	if err := s.launcher.Enqueue(lifecycle.LaunchJob{
		ContainerID: req.ContainerID,
		Prompt:      req.Prompt,
		RepoURL:     req.RepoURL,
		CloneBranch: req.CloneBranch,
		PushBranch:  req.PushBranch,
		WebhookURL:  req.WebhookURL,
	}); err != nil {
		// The row exists; mark it failed so the attempt stays queryable
		_ = s.store.SetContainerStatus(c.Request().Context(), req.ContainerID, store.StatusFailed)
		_ = s.store.TouchContainer(c.Request().Context(), req.ContainerID, time.Now().UTC())
		return echo.NewHTTPError(http.StatusServiceUnavailable, "launch queue is full")
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{"ok": true, "containerId": req.ContainerID})
}
