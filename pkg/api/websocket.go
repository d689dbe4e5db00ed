package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/claude-runner/claude-runner/pkg/events"
)

// catchupLimit is the maximum number of events returned in a catchup
// response. The bus keeps a bounded window, so when a client has missed
// more than this it gets the newest events plus a catchup.overflow
// marker; the gap cannot be paginated because the older events are gone.
const catchupLimit = 200

// defaultWriteTimeout bounds a single WebSocket send. A client that
// cannot drain within this window is disconnected rather than allowed
// to stall the fan-out goroutine.
const defaultWriteTimeout = 10 * time.Second

// Hub manages WebSocket connections and fans the event bus out to them.
// One Hub serves one process.
type Hub struct {
	bus *events.Bus

	// Active connections: connection_id → *connection
	mu    sync.RWMutex
	conns map[string]*connection

	writeTimeout time.Duration
	logger       *slog.Logger
}

// connection is a single WebSocket client.
//
// The live-stream fields (liveID, liveStop) are accessed WITHOUT a lock.
// This is safe because all reads and writes happen on the single
// goroutine that owns the connection (HandleConnection's read loop and
// its deferred cleanup). The fan-out goroutine only consumes the channel
// it captured at subscribe time.
type connection struct {
	id     string
	sock   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	// liveID is the bus subscriber id while streaming; liveStop is
	// closed to end the fan-out goroutine. Both nil when not subscribed.
	liveID   int
	liveStop chan struct{}
}

// NewHub creates a hub over the given event bus.
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		bus:          bus,
		conns:        make(map[string]*connection),
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default().With("component", "ws"),
	}
}

// HandleConnection manages the lifecycle of a single WebSocket
// connection. Called by the HTTP handler after upgrade; blocks until the
// connection closes.
func (h *Hub) HandleConnection(parentCtx context.Context, sock *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &connection{
		id:     connID,
		sock:   sock,
		ctx:    ctx,
		cancel: cancel,
	}

	h.register(c)
	defer h.unregister(c)

	// last_seq tells the client where the stream currently stands so it
	// can decide whether a catchup is worth requesting.
	h.sendJSON(c, map[string]any{
		"type":          "connection.established",
		"connection_id": connID,
		"last_seq":      h.bus.LastSeq(),
	})

	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			// Connection closed or errored, exit the read loop.
			return
		}

		var msg events.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("Invalid WebSocket message",
				"connection_id", connID, "error", err)
			continue
		}

		h.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// handleClientMessage dispatches a client message. Runs on the
// connection's read-loop goroutine.
func (h *Hub) handleClientMessage(c *connection, msg *events.ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.startLive(c)
		h.sendJSON(c, map[string]any{
			"type":     "subscription.confirmed",
			"last_seq": h.bus.LastSeq(),
		})
		// Auto catch-up so late subscribers see the missed window. Live
		// events may interleave with the replayed ones; clients order
		// and dedupe by seq.
		var since int64
		if msg.LastEventID != nil {
			since = *msg.LastEventID
		}
		h.sendCatchup(c, since)

	case "unsubscribe":
		h.stopLive(c)

	case "catchup":
		if msg.LastEventID != nil {
			h.sendCatchup(c, *msg.LastEventID)
		}

	case "ping":
		h.sendJSON(c, map[string]string{"type": "pong"})

	default:
		h.sendJSON(c, map[string]string{
			"type":    "error",
			"message": "unknown action: " + msg.Action,
		})
	}
}

// startLive begins streaming bus events to the connection. Idempotent;
// a second subscribe keeps the existing stream.
func (h *Hub) startLive(c *connection) {
	if c.liveStop != nil {
		return
	}
	id, ch := h.bus.Subscribe()
	stop := make(chan struct{})
	c.liveID = id
	c.liveStop = stop

	go func() {
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if err := h.sendJSON(c, evt); err != nil {
					// Slow or dead client: cancel the connection so
					// the read loop unwinds and cleans up.
					h.logger.Warn("Disconnecting unresponsive WebSocket client",
						"connection_id", c.id, "error", err)
					c.cancel()
					return
				}
			case <-stop:
				return
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

// stopLive ends the live stream if one is running. Runs on the
// connection's read-loop goroutine.
func (h *Hub) stopLive(c *connection) {
	if c.liveStop == nil {
		return
	}
	close(c.liveStop)
	h.bus.Unsubscribe(c.liveID)
	c.liveID = 0
	c.liveStop = nil
}

// sendCatchup replays buffered events with seq > since, oldest first.
// When more events were missed than the limit, the newest limit events
// are sent followed by a catchup.overflow marker; the client should do
// a full reload via GET /api/events instead of paginating.
func (h *Hub) sendCatchup(c *connection, since int64) {
	evts := h.bus.Catchup(since, catchupLimit+1)
	hasMore := len(evts) > catchupLimit
	if hasMore {
		evts = evts[len(evts)-catchupLimit:]
	}

	for _, evt := range evts {
		if err := h.sendJSON(c, evt); err != nil {
			h.logger.Warn("Failed to send catchup event",
				"connection_id", c.id, "error", err)
			return
		}
	}

	if hasMore {
		h.sendJSON(c, map[string]any{
			"type":     "catchup.overflow",
			"has_more": true,
		})
	}
}

// register adds a connection to the tracking map.
func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

// unregister removes a connection, stops its live stream, and closes
// the socket.
func (h *Hub) unregister(c *connection) {
	h.stopLive(c)

	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()

	c.cancel()
	_ = c.sock.Close(websocket.StatusNormalClosure, "")
}

// sendJSON marshals and sends a JSON message to a single connection.
// Returns the send error so callers streaming many messages can stop
// early; marshal failures are logged and swallowed.
func (h *Hub) sendJSON(c *connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("Failed to marshal WebSocket message",
			"connection_id", c.id, "error", err)
		return nil
	}
	return h.sendRaw(c, data)
}

// sendRaw sends raw bytes to a single connection with a write timeout.
func (h *Hub) sendRaw(c *connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, h.writeTimeout)
	defer cancel()
	return c.sock.Write(writeCtx, websocket.MessageText, data)
}
