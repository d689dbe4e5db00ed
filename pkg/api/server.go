// Package api exposes the engine's event stream and session state over
// HTTP and WebSocket for the browser dashboard. The server carries no
// orchestration logic: it reads the event bus and the session store and
// never steers the run.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/events"
	"github.com/claude-runner/claude-runner/pkg/session"
)

// Server is the HTTP/WebSocket front end over the event bus and the
// session store.
type Server struct {
	cfg    *config.UIConfig
	store  *session.Store
	bus    *events.Bus
	hub    *Hub
	logger *slog.Logger

	httpServer *http.Server
}

// NewServer creates the API server. The store and bus are shared with
// the engine; the server only reads them.
func NewServer(cfg *config.UIConfig, store *session.Store, bus *events.Bus) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		bus:    bus,
		hub:    NewHub(bus),
		logger: slog.Default().With("component", "api"),
	}
}

// Hub returns the WebSocket hub, exposed for connection accounting.
func (s *Server) Hub() *Hub {
	return s.hub
}

// router builds the gin engine with all routes registered.
func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	grp := r.Group("/api")
	grp.GET("/health", s.healthHandler)
	grp.GET("/run", s.runHandler)
	grp.GET("/sessions", s.listSessionsHandler)
	grp.GET("/sessions/:id", s.getSessionHandler)
	grp.GET("/sessions/:id/checkpoints", s.listCheckpointsHandler)
	grp.GET("/events", s.eventsHandler)

	r.GET("/ws", s.wsHandler)
	return r
}

// Start runs the HTTP server on the configured port. Blocks until the
// server stops; returns http.ErrServerClosed after a clean Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Dashboard server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections and drains in-flight
// requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
