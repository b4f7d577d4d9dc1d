// Package serve exposes the orchestrator's HTTP surface: webhook ingestion,
// status reporting, the default-prompt setting, and the launch trigger.
package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/replayio/overseer/pkg/lifecycle"
	"github.com/replayio/overseer/pkg/log"
	"github.com/replayio/overseer/pkg/store"
)

// DefaultPrompt pre-fills new work requests when no setting is stored.
const DefaultPrompt = "Clone the repository, read its documentation, and continue the highest-priority work it describes. Commit as you go."

// recentEventsWindow bounds the event list on the status endpoint.
const recentEventsWindow = 100

// Launcher is the slice of the lifecycle manager the server needs.
type Launcher interface {
	Enqueue(job lifecycle.LaunchJob) error
}

// Server wires the HTTP handlers.
type Server struct {
	echo     *echo.Echo
	store    store.Store
	launcher Launcher
	secret   string
	now      func() time.Time
}

// Config configures the server.
type Config struct {
	Store    store.Store
	Launcher Launcher
	// Secret authenticates webhook/admin calls. Empty disables auth; this is
	// trust-all for local development, production configurations set it.
	Secret string
}

// New creates the server and registers routes.
func New(cfg Config) *Server {
	s := &Server{
		echo:     echo.New(),
		store:    cfg.Store,
		launcher: cfg.Launcher,
		secret:   cfg.Secret,
		now:      time.Now,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.HTTPErrorHandler = errorHandler

	authed := s.echo.Group("", s.bearerAuth)
	authed.POST("/api/webhook", s.handleWebhook)
	authed.POST("/api/settings/default-prompt", s.handleSetDefaultPrompt)
	authed.POST("/api/launch", s.handleLaunch)

	s.echo.GET("/api/status", s.handleStatus)
	s.echo.GET("/health", s.handleHealth)

	return s
}

// Start begins serving on addr and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Info("http server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339Nano),
	})
}

// errorHandler normalizes every unhandled error into a JSON body with a
// matching status code; nothing crosses the HTTP boundary as a bare panic or
// html error page.
func errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := "internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if c.Response().Committed {
		return
	}
	if code >= 500 {
		log.Error("request failed", "path", c.Path(), "error", err)
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}
