package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/events"
	"github.com/claude-runner/claude-runner/pkg/plan"
	"github.com/claude-runner/claude-runner/pkg/session"
)

func newTestServer(t *testing.T) (*Server, *session.Store, *events.Bus) {
	t.Helper()

	stateCfg := config.DefaultStateConfig()
	stateCfg.Dir = t.TempDir()
	store := session.New(stateCfg, t.TempDir())
	require.NoError(t, store.Initialize())
	t.Cleanup(func() { _ = store.Close() })

	bus := events.NewBus(100)
	t.Cleanup(bus.Close)

	return NewServer(config.DefaultUIConfig(), store, bus), store, bus
}

func doGET(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.router().ServeHTTP(rec, req)
	return rec
}

func testPlan() *plan.Plan {
	steps := []*plan.Step{
		{Number: "1", Description: "Outline the importer", Complexity: plan.ComplexityMedium, Status: plan.StatusCompleted},
		{Number: "2", Description: "Wire the importer into the CLI", Complexity: plan.ComplexityMedium, Status: plan.StatusPending},
	}
	return plan.New("Ship the importer", "two step delivery", steps)
}

func TestHealthHandler_Healthy(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doGET(t, srv, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.NotEmpty(t, resp.Version)
	assert.Equal(t, healthStatusHealthy, resp.Checks["state_store"].Status)
	assert.Equal(t, healthStatusHealthy, resp.Checks["event_bus"].Status)
}

func TestHealthHandler_UnhealthyStateStore(t *testing.T) {
	stateCfg := config.DefaultStateConfig()
	root := t.TempDir()
	// A file where the sessions directory belongs makes every listing fail.
	require.NoError(t, os.WriteFile(filepath.Join(root, "sessions"), []byte("junk"), 0o644))
	stateCfg.Dir = root
	store := session.New(stateCfg, t.TempDir())

	bus := events.NewBus(100)
	t.Cleanup(bus.Close)
	srv := NewServer(config.DefaultUIConfig(), store, bus)

	rec := doGET(t, srv, "/api/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusUnhealthy, resp.Status)
	assert.Equal(t, healthStatusUnhealthy, resp.Checks["state_store"].Status)
	assert.NotEmpty(t, resp.Checks["state_store"].Message)
}

func TestRunHandler(t *testing.T) {
	srv, store, bus := newTestServer(t)

	rec := doGET(t, srv, "/api/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sess, err := store.StartSession("Ship the importer", session.StartOptions{})
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(testPlan()))
	bus.Publish(events.Event{Type: events.EventTypeStarted, RunID: sess.ID})
	bus.Publish(events.Event{Type: events.EventTypePlanCreated, RunID: sess.ID})

	rec = doGET(t, srv, "/api/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Session)
	assert.Equal(t, sess.ID, resp.Session.ID)
	assert.Equal(t, session.StatusActive, resp.Session.Status)
	assert.Equal(t, int64(2), resp.LastSeq)
	assert.Zero(t, resp.Connections)
}

func TestListSessionsHandler(t *testing.T) {
	srv, store, _ := newTestServer(t)

	_, err := store.StartSession("Ship the importer", session.StartOptions{})
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(testPlan()))
	require.NoError(t, store.CompleteSession("importer shipped", nil))

	_, err = store.StartSession("Clean up the exporter", session.StartOptions{})
	require.NoError(t, err)
	require.NoError(t, store.FailSession("exporter beyond repair"))

	_, err = store.StartSession("Index the archive", session.StartOptions{})
	require.NoError(t, err)
	require.NoError(t, store.InterruptSession("time limit reached"))

	rec := doGET(t, srv, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Sessions, 3)

	byGoal := make(map[string]SessionSummary, len(resp.Sessions))
	for _, s := range resp.Sessions {
		byGoal[s.Goal] = s
	}
	assert.Equal(t, "completed", byGoal["Ship the importer"].Status)
	assert.Equal(t, 1, byGoal["Ship the importer"].StepsCompleted)
	assert.Equal(t, 2, byGoal["Ship the importer"].StepsTotal)
	assert.Equal(t, "failed", byGoal["Clean up the exporter"].Status)
	assert.Equal(t, "interrupted", byGoal["Index the archive"].Status)

	rec = doGET(t, srv, "/api/sessions?status=completed")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = SessionListResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "Ship the importer", resp.Sessions[0].Goal)

	rec = doGET(t, srv, "/api/sessions?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = SessionListResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Sessions, 1)

	assert.Equal(t, http.StatusBadRequest, doGET(t, srv, "/api/sessions?status=archived").Code)
	assert.Equal(t, http.StatusBadRequest, doGET(t, srv, "/api/sessions?limit=0").Code)
}

func TestGetSessionHandler(t *testing.T) {
	srv, store, _ := newTestServer(t)

	sess, err := store.StartSession("Ship the importer", session.StartOptions{})
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(testPlan()))

	rec := doGET(t, srv, "/api/sessions/"+sess.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "Ship the importer", got.Goal)
	require.NotNil(t, got.Plan)
	assert.Len(t, got.Plan.Steps, 2)

	assert.Equal(t, http.StatusNotFound, doGET(t, srv, "/api/sessions/absent").Code)
}

func TestListCheckpointsHandler(t *testing.T) {
	srv, store, _ := newTestServer(t)

	sess, err := store.StartSession("Ship the importer", session.StartOptions{})
	require.NoError(t, err)
	p := testPlan()
	_, err = store.CreateCheckpoint("after step 1", p)
	require.NoError(t, err)
	_, err = store.CreateCheckpoint("after step 2", p)
	require.NoError(t, err)

	rec := doGET(t, srv, "/api/sessions/"+sess.ID+"/checkpoints")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Checkpoints []CheckpointSummary `json:"checkpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Checkpoints, 2)
	labels := []string{resp.Checkpoints[0].Label, resp.Checkpoints[1].Label}
	assert.Contains(t, labels, "after step 1")
	assert.Contains(t, labels, "after step 2")

	assert.Equal(t, http.StatusNotFound, doGET(t, srv, "/api/sessions/absent/checkpoints").Code)
}

func TestEventsHandler(t *testing.T) {
	srv, _, bus := newTestServer(t)

	for i := 0; i < 5; i++ {
		bus.Publish(events.Event{Type: events.EventTypeIterationComplete, RunID: "run-1"})
	}

	rec := doGET(t, srv, "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 5)
	assert.Equal(t, int64(5), resp.LastSeq)

	rec = doGET(t, srv, "/api/events?since=2")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = EventsResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 3)
	assert.Equal(t, int64(3), resp.Events[0].Seq)
	assert.Equal(t, int64(5), resp.Events[2].Seq)

	// A limit keeps the newest slice of the window.
	rec = doGET(t, srv, "/api/events?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = EventsResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, int64(4), resp.Events[0].Seq)

	assert.Equal(t, http.StatusBadRequest, doGET(t, srv, "/api/events?since=abc").Code)
	assert.Equal(t, http.StatusBadRequest, doGET(t, srv, "/api/events?limit=-1").Code)
}
