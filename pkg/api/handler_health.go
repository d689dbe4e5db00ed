package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/claude-runner/claude-runner/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /api/health.
// Returns a minimal, safe response suitable for unauthenticated access.
// Only the process's own components (state store, event bus) are
// checked; the external agent binary is deliberately excluded so a
// flaky agent cannot make the dashboard look down.
func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := s.store.ListSessions(); err != nil {
		status = healthStatusUnhealthy
		checks["state_store"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["state_store"] = HealthCheck{Status: healthStatusHealthy}
	}

	if dropped := s.bus.Dropped(); dropped > 0 {
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
		checks["event_bus"] = HealthCheck{
			Status:  healthStatusDegraded,
			Message: fmt.Sprintf("%d events dropped to lagging subscribers", dropped),
		}
	} else {
		checks["event_bus"] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
