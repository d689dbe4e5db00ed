package api

import (
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// wsHandler upgrades HTTP connections to WebSocket and delegates to the
// hub. Same-host origins are always accepted; additional patterns come
// from the allowed_origins config.
func (s *Server) wsHandler(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		// Accept already wrote the HTTP error response.
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	// HandleConnection blocks until the WebSocket closes.
	s.hub.HandleConnection(c.Request.Context(), conn)
}
