// Package cleanup enforces state directory retention while a run is
// active.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/session"
)

// Service periodically enforces retention on the state directory:
//   - Removes terminal sessions past the cleanup age
//   - Removes checkpoint files whose session record is gone
//
// Both operations only touch old terminal records, so the sweeper is
// safe to run alongside the engine writing its active session.
type Service struct {
	cfg   *config.StateConfig
	store *session.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention sweeper over one store.
func NewService(cfg *config.StateConfig, store *session.Store) *Service {
	return &Service{cfg: cfg, store: store}
}

// Start launches the background sweep loop. A non-positive interval
// disables the sweeper entirely.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil || s.cfg.CleanupInterval <= 0 {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention sweeper started",
		"cleanup_age", s.cfg.CleanupAge,
		"interval", s.cfg.CleanupInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Debug("Retention sweeper stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	if _, err := s.store.CleanupOldSessions(); err != nil {
		slog.Error("Retention: session cleanup failed", "error", err)
	}
	if _, err := s.store.CleanupOrphanedCheckpoints(); err != nil {
		slog.Error("Retention: checkpoint cleanup failed", "error", err)
	}
}
