package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/claude-runner/claude-runner/pkg/session"
)

// defaultSessionPageSize caps how many sessions a list call returns
// unless the client asks for fewer.
const defaultSessionPageSize = 25

// listSessionsHandler handles GET /api/sessions. Sessions come back
// newest first.
func (s *Server) listSessionsHandler(c *gin.Context) {
	limit := defaultSessionPageSize
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit: must be 1-100"})
			return
		}
		limit = n
	}

	var statusFilter session.Status
	if v := c.Query("status"); v != "" {
		switch session.Status(v) {
		case session.StatusActive, session.StatusInterrupted,
			session.StatusCompleted, session.StatusFailed:
			statusFilter = session.Status(v)
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid status: must be active, interrupted, completed, or failed",
			})
			return
		}
	}

	sessions, err := s.store.ListSessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := &SessionListResponse{Sessions: []SessionSummary{}}
	for _, sess := range sessions {
		if statusFilter != "" && sess.Status != statusFilter {
			continue
		}
		resp.Total++
		if len(resp.Sessions) >= limit {
			continue
		}
		resp.Sessions = append(resp.Sessions, summarize(sess))
	}

	c.JSON(http.StatusOK, resp)
}

// getSessionHandler handles GET /api/sessions/:id. Returns the full
// record including the stored plan.
func (s *Server) getSessionHandler(c *gin.Context) {
	sess, err := s.store.GetSession(c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// listCheckpointsHandler handles GET /api/sessions/:id/checkpoints.
func (s *Server) listCheckpointsHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.GetSession(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	checkpoints, err := s.store.ListCheckpoints(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]CheckpointSummary, 0, len(checkpoints))
	for _, ckpt := range checkpoints {
		out = append(out, CheckpointSummary{
			ID:        ckpt.ID,
			Label:     ckpt.Label,
			CreatedAt: ckpt.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"checkpoints": out})
}

func summarize(sess *session.Session) SessionSummary {
	out := SessionSummary{
		ID:        sess.ID,
		Goal:      sess.Goal,
		Status:    string(sess.Status),
		Workdir:   sess.Workdir,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
	if sess.Plan != nil {
		out.StepsCompleted, out.StepsTotal = sess.Plan.Progress()
	}
	return out
}
