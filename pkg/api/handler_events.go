package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// eventsHandler handles GET /api/events?since=&limit=. This is the REST
// fallback for clients that missed more than the WebSocket catchup
// window; it serves the whole buffered history by default.
func (s *Server) eventsHandler(c *gin.Context) {
	var since int64
	if v := c.Query("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since: must be a non-negative integer"})
			return
		}
		since = n
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit: must be a positive integer"})
			return
		}
		limit = n
	}

	c.JSON(http.StatusOK, &EventsResponse{
		Events:  s.bus.Catchup(since, limit),
		LastSeq: s.bus.LastSeq(),
	})
}
