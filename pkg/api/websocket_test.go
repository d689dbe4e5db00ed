package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-runner/claude-runner/pkg/events"
)

func setupTestHub(t *testing.T) (*Hub, *events.Bus, *httptest.Server) {
	t.Helper()

	bus := events.NewBus(500)
	hub := NewHub(bus)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		hub.HandleConnection(r.Context(), conn)
	}))

	t.Cleanup(func() {
		server.Close()
		bus.Close()
	})
	return hub, bus, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeAction(t *testing.T, conn *websocket.Conn, msg events.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestHub_ConnectionEstablished(t *testing.T) {
	_, bus, server := setupTestHub(t)
	bus.Publish(events.Event{Type: events.EventTypeStarted, RunID: "run-1"})
	bus.Publish(events.Event{Type: events.EventTypePlanning, RunID: "run-1"})

	conn := connectWS(t, server)

	msg := readFrame(t, conn)
	assert.Equal(t, "connection.established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
	assert.Equal(t, float64(2), msg["last_seq"])
}

func TestHub_PingPong(t *testing.T) {
	_, _, server := setupTestHub(t)
	conn := connectWS(t, server)
	readFrame(t, conn) // connection.established

	writeAction(t, conn, events.ClientMessage{Action: "ping"})

	msg := readFrame(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestHub_UnknownActionReportsError(t *testing.T) {
	_, _, server := setupTestHub(t)
	conn := connectWS(t, server)
	readFrame(t, conn)

	writeAction(t, conn, events.ClientMessage{Action: "rewind"})

	msg := readFrame(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "unknown action: rewind", msg["message"])
}

func TestHub_SubscribeStreamsLiveEvents(t *testing.T) {
	_, bus, server := setupTestHub(t)
	conn := connectWS(t, server)
	readFrame(t, conn)

	writeAction(t, conn, events.ClientMessage{Action: "subscribe"})
	msg := readFrame(t, conn)
	require.Equal(t, "subscription.confirmed", msg["type"])

	// The bus subscription is live once the confirmation arrives, so
	// this publish must reach the client.
	bus.Publish(events.Event{Type: events.EventTypeStepComplete, RunID: "run-1"})

	evt := readFrame(t, conn)
	assert.Equal(t, events.EventTypeStepComplete, evt["type"])
	assert.Equal(t, float64(1), evt["seq"])
	assert.Equal(t, "run-1", evt["run_id"])
}

func TestHub_SubscribeReplaysMissedWindow(t *testing.T) {
	_, bus, server := setupTestHub(t)
	bus.Publish(events.Event{Type: events.EventTypeStarted, RunID: "run-1"})
	bus.Publish(events.Event{Type: events.EventTypePlanning, RunID: "run-1"})
	bus.Publish(events.Event{Type: events.EventTypePlanCreated, RunID: "run-1"})

	conn := connectWS(t, server)
	readFrame(t, conn)

	// A client that already has seq 1 gets only the tail of the window.
	since := int64(1)
	writeAction(t, conn, events.ClientMessage{Action: "subscribe", LastEventID: &since})

	msg := readFrame(t, conn)
	require.Equal(t, "subscription.confirmed", msg["type"])
	assert.Equal(t, float64(3), msg["last_seq"])

	first := readFrame(t, conn)
	assert.Equal(t, events.EventTypePlanning, first["type"])
	assert.Equal(t, float64(2), first["seq"])

	second := readFrame(t, conn)
	assert.Equal(t, events.EventTypePlanCreated, second["type"])
	assert.Equal(t, float64(3), second["seq"])
}

func TestHub_CatchupOverflow(t *testing.T) {
	_, bus, server := setupTestHub(t)
	total := catchupLimit + 5
	for i := 0; i < total; i++ {
		bus.Publish(events.Event{Type: fmt.Sprintf("evt-%d", i+1), RunID: "run-1"})
	}

	conn := connectWS(t, server)
	readFrame(t, conn)

	since := int64(0)
	writeAction(t, conn, events.ClientMessage{Action: "catchup", LastEventID: &since})

	// The newest catchupLimit events arrive oldest first; the missed
	// prefix is gone, flagged by the trailing overflow marker.
	first := readFrame(t, conn)
	assert.Equal(t, float64(total-catchupLimit+1), first["seq"])
	for i := 1; i < catchupLimit; i++ {
		readFrame(t, conn)
	}

	overflow := readFrame(t, conn)
	assert.Equal(t, "catchup.overflow", overflow["type"])
	assert.Equal(t, true, overflow["has_more"])
}

func TestHub_UnsubscribeStopsStream(t *testing.T) {
	_, bus, server := setupTestHub(t)
	conn := connectWS(t, server)
	readFrame(t, conn)

	writeAction(t, conn, events.ClientMessage{Action: "subscribe"})
	require.Equal(t, "subscription.confirmed", readFrame(t, conn)["type"])

	bus.Publish(events.Event{Type: events.EventTypeStarted, RunID: "run-1"})
	assert.Equal(t, events.EventTypeStarted, readFrame(t, conn)["type"])

	writeAction(t, conn, events.ClientMessage{Action: "unsubscribe"})
	// The pong bounds the unsubscribe: once it arrives the read loop has
	// torn the live stream down.
	writeAction(t, conn, events.ClientMessage{Action: "ping"})
	require.Equal(t, "pong", readFrame(t, conn)["type"])

	bus.Publish(events.Event{Type: events.EventTypeEscalation, RunID: "run-1"})
	writeAction(t, conn, events.ClientMessage{Action: "ping"})
	assert.Equal(t, "pong", readFrame(t, conn)["type"])
}

func TestHub_ActiveConnections(t *testing.T) {
	hub, _, server := setupTestHub(t)

	conn1 := connectWS(t, server)
	conn2 := connectWS(t, server)
	readFrame(t, conn1)
	readFrame(t, conn2)

	// Registration precedes the greeting, so both are counted by now.
	assert.Equal(t, 2, hub.ActiveConnections())

	require.NoError(t, conn2.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool {
		return hub.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
