package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/plan"
)

// testStore returns an initialized store with a frozen, advanceable
// clock and auto-save disabled.
func testStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	cfg := config.DefaultStateConfig()
	cfg.Dir = t.TempDir()
	cfg.AutoSaveInterval = 0
	s := New(cfg, "/work")
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Initialize())
	return s, &now
}

func twoStepPlan() *plan.Plan {
	return plan.New("build the API", "", []*plan.Step{
		{Number: "1", Description: "schema", Status: plan.StatusCompleted},
		{Number: "2", Description: "handlers", Status: plan.StatusPending},
	})
}

func TestNewIDStableHalf(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	t1 := t0.Add(time.Hour)

	a := NewID("build the API", "/work", t0)
	b := NewID("build the API", "/work", t1)
	c := NewID("build the API", "/elsewhere", t0)
	d := NewID("another goal", "/work", t0)

	assert.NotEqual(t, a, b)
	assert.Equal(t, StableHalf(a), StableHalf(b))
	assert.NotEqual(t, StableHalf(a), StableHalf(c))
	assert.NotEqual(t, StableHalf(a), StableHalf(d))
}

func TestStartSessionCreatesRecord(t *testing.T) {
	s, _ := testStore(t)

	sess, err := s.StartSession("build the API", StartOptions{SubGoals: []string{"models", "routes"}})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Equal(t, "/work", sess.Workdir)
	assert.Equal(t, []string{"models", "routes"}, sess.SubGoals)

	loaded, err := s.load(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "build the API", loaded.Goal)
}

func TestSetPlanAndStepProgressPersist(t *testing.T) {
	s, _ := testStore(t)
	sess, err := s.StartSession("build the API", StartOptions{})
	require.NoError(t, err)

	require.NoError(t, s.SetPlan(twoStepPlan()))
	require.NoError(t, s.UpdateStepProgress("1", plan.StatusCompleted, strings.Repeat("r", 900)))

	loaded, err := s.load(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Plan)
	assert.Len(t, loaded.Plan.Steps, 2)
	note := loaded.StepNotes["1"]
	assert.True(t, strings.HasPrefix(note, "completed: "))
	assert.LessOrEqual(t, len(note), stepNoteMax+len("completed: "))
}

func TestCompleteSessionDetaches(t *testing.T) {
	s, _ := testStore(t)
	sess, err := s.StartSession("g", StartOptions{})
	require.NoError(t, err)

	require.NoError(t, s.CompleteSession("all done", twoStepPlan()))
	assert.Nil(t, s.Current())
	assert.ErrorIs(t, s.SetPlan(twoStepPlan()), ErrNoActiveSession)

	loaded, err := s.load(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, loaded.Status)
	assert.Equal(t, "all done", loaded.Summary)
}

func TestResumeRestoresPlan(t *testing.T) {
	s, now := testStore(t)
	sess, err := s.StartSession("build the API", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.SetPlan(twoStepPlan()))
	require.NoError(t, s.SetAgentSession("agent-123"))
	require.NoError(t, s.InterruptSession("operator shutdown"))

	*now = now.Add(time.Minute)
	resumed, err := s.StartSession("", StartOptions{Resume: sess.ID})
	require.NoError(t, err)
	assert.Equal(t, sess.ID, resumed.ID)
	assert.Equal(t, StatusActive, resumed.Status)
	assert.Equal(t, "agent-123", resumed.AgentSessionID)
	require.NotNil(t, resumed.Plan)
	assert.Equal(t, plan.StatusCompleted, resumed.Plan.Steps[0].Status)
}

func TestResumeRejectsTerminal(t *testing.T) {
	s, _ := testStore(t)
	sess, err := s.StartSession("g", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.FailSession("broke"))

	_, err = s.StartSession("", StartOptions{Resume: sess.ID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be resumed")
}

func TestGetResumableSessionPicksNewestNonTerminal(t *testing.T) {
	s, now := testStore(t)

	first, err := s.StartSession("build the API", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.CompleteSession("done", nil))

	*now = now.Add(time.Hour)
	second, err := s.StartSession("build the API", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.InterruptSession("shutdown"))

	*now = now.Add(time.Hour)
	third, err := s.StartSession("a different goal", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.InterruptSession("shutdown"))

	got, err := s.GetResumableSession("build the API")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
	assert.NotEqual(t, first.ID, got.ID)
	assert.NotEqual(t, third.ID, got.ID)
}

func TestGetResumableSessionWindowExpires(t *testing.T) {
	s, now := testStore(t)

	_, err := s.StartSession("g", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.InterruptSession("shutdown"))

	*now = now.Add(25 * time.Hour)
	got, err := s.GetResumableSession("g")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListSessionsNewestFirst(t *testing.T) {
	s, now := testStore(t)

	a, err := s.StartSession("one", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.CompleteSession("", nil))

	*now = now.Add(time.Hour)
	b, err := s.StartSession("two", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.CompleteSession("", nil))

	sessions, err := s.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, b.ID, sessions[0].ID)
	assert.Equal(t, a.ID, sessions[1].ID)
}

func TestDeleteSessionRemovesCheckpoints(t *testing.T) {
	s, _ := testStore(t)
	sess, err := s.StartSession("g", StartOptions{})
	require.NoError(t, err)
	_, err = s.CreateCheckpoint("before step 2", twoStepPlan())
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(sess.ID))

	_, err = os.Stat(s.sessionPath(sess.ID))
	assert.True(t, os.IsNotExist(err))
	files, err := s.listCheckpointFiles(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCleanupOldSessions(t *testing.T) {
	s, now := testStore(t)

	old, err := s.StartSession("old terminal", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.CompleteSession("", nil))

	_, err = s.StartSession("old but resumable", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.InterruptSession("shutdown"))

	*now = now.Add(8 * 24 * time.Hour)
	fresh, err := s.StartSession("fresh terminal", StartOptions{})
	require.NoError(t, err)
	require.NoError(t, s.CompleteSession("", nil))

	removed, err := s.CleanupOldSessions()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	sessions, err := s.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, sess := range sessions {
		assert.NotEqual(t, old.ID, sess.ID)
	}
	_, err = s.load(fresh.ID)
	assert.NoError(t, err)
}

func TestCleanupOrphanedCheckpoints(t *testing.T) {
	s, now := testStore(t)

	kept, err := s.StartSession("kept", StartOptions{})
	require.NoError(t, err)
	_, err = s.CreateCheckpoint("live", twoStepPlan())
	require.NoError(t, err)
	require.NoError(t, s.CompleteSession("", nil))

	orphaned, err := s.StartSession("orphaned", StartOptions{})
	require.NoError(t, err)
	*now = now.Add(time.Second)
	ckpt, err := s.CreateCheckpoint("doomed", twoStepPlan())
	require.NoError(t, err)
	require.NoError(t, s.CompleteSession("", nil))

	// A crash between deleting the session record and its checkpoints
	// leaves exactly this state behind.
	require.NoError(t, os.Remove(s.sessionPath(orphaned.ID)))

	removed, err := s.CleanupOrphanedCheckpoints()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.RestoreCheckpoint(ckpt.ID)
	assert.Error(t, err)
	live, err := s.ListCheckpoints(kept.ID)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestCheckpointRoundTripAndPrune(t *testing.T) {
	s, now := testStore(t)
	s.cfg.CheckpointRetention = 2
	_, err := s.StartSession("g", StartOptions{})
	require.NoError(t, err)

	var last *Checkpoint
	for i := 0; i < 4; i++ {
		*now = now.Add(time.Second)
		last, err = s.CreateCheckpoint("step", twoStepPlan())
		require.NoError(t, err)
	}

	checkpoints, err := s.ListCheckpoints(s.Current().ID)
	require.NoError(t, err)
	require.Len(t, checkpoints, 2)
	assert.Equal(t, last.ID, checkpoints[1].ID)

	restored, err := s.RestoreCheckpoint(last.ID)
	require.NoError(t, err)
	require.NotNil(t, restored.Plan)
	assert.Equal(t, "schema", restored.Plan.Steps[0].Description)
}

func TestCheckpointDeepCopies(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.StartSession("g", StartOptions{})
	require.NoError(t, err)

	p := twoStepPlan()
	ckpt, err := s.CreateCheckpoint("before", p)
	require.NoError(t, err)

	p.Steps[0].Description = "mutated"
	assert.Equal(t, "schema", ckpt.Plan.Steps[0].Description)
}

func TestCloseFlushesCurrentSession(t *testing.T) {
	s, now := testStore(t)
	sess, err := s.StartSession("g", StartOptions{})
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	require.NoError(t, s.Close())

	loaded, err := s.load(sess.ID)
	require.NoError(t, err)
	assert.True(t, loaded.UpdatedAt.Equal(*now))
}

func TestInitializeCreatesLayout(t *testing.T) {
	s, _ := testStore(t)
	for _, dir := range []string{s.sessionsDir(), s.checkpointsDir(), s.cacheDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.NotNil(t, s.Cache())
}

func TestRelativeStateDirResolvesAgainstWorkdir(t *testing.T) {
	base := t.TempDir()
	cfg := config.DefaultStateConfig()
	s := New(cfg, base)
	assert.Equal(t, filepath.Join(base, ".claude-runner"), s.root)
}
