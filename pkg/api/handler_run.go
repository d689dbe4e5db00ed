package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// runHandler handles GET /api/run: the newest session record plus the
// stream position. Sessions are read back from disk rather than from
// the engine's live state; the store writes atomically, so the handler
// never races a mid-run mutation.
func (s *Server) runHandler(c *gin.Context) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(sessions) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run recorded"})
		return
	}

	c.JSON(http.StatusOK, &RunResponse{
		Session:     sessions[0],
		LastSeq:     s.bus.LastSeq(),
		Dropped:     s.bus.Dropped(),
		Connections: s.hub.ActiveConnections(),
	})
}
