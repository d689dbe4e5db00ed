// Package session owns durable run state: session records, plan
// checkpoints, and the prompt-result cache, all stored as JSON files
// under the state directory.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/plan"
)

// Status is the lifecycle state of a stored session. Interrupted
// sessions are resumable; the other non-active states are terminal.
type Status string

const (
	StatusActive      Status = "active"
	StatusInterrupted Status = "interrupted"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Terminal reports whether the status admits no further work.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is one durable run record.
type Session struct {
	ID             string     `json:"id"`
	Goal           string     `json:"goal"`
	SubGoals       []string   `json:"sub_goals,omitempty"`
	Workdir        string     `json:"workdir"`
	Status         Status     `json:"status"`
	Plan           *plan.Plan `json:"plan,omitempty"`
	AgentSessionID string     `json:"agent_session_id,omitempty"`

	Summary    string            `json:"summary,omitempty"`
	FailReason string            `json:"fail_reason,omitempty"`
	StepNotes  map[string]string `json:"step_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrNoActiveSession is returned by operations that need a started
// session.
var ErrNoActiveSession = errors.New("no active session")

// ErrSessionNotFound is returned when a session id has no stored record.
var ErrSessionNotFound = errors.New("session not found")

const stepNoteMax = 500

// StartOptions tunes StartSession.
type StartOptions struct {
	SubGoals []string
	// Resume names an existing session id to pick up instead of
	// creating a new record.
	Resume string
}

// Store is the file-backed state store. One Store serves one working
// directory.
type Store struct {
	cfg     *config.StateConfig
	root    string
	workdir string
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	current *Session
	cache   *PromptCache
	ckptSeq int

	autosave chan struct{}
	wg       sync.WaitGroup
}

// New builds a store rooted at the configured state dir, resolved
// against workdir when relative.
func New(cfg *config.StateConfig, workdir string) *Store {
	root := cfg.Dir
	if !filepath.IsAbs(root) {
		root = filepath.Join(workdir, root)
	}
	return &Store{
		cfg:     cfg,
		root:    root,
		workdir: workdir,
		logger:  slog.Default().With("component", "session"),
		now:     time.Now,
	}
}

// Initialize creates the directory layout and loads the persisted
// prompt cache.
func (s *Store) Initialize() error {
	for _, dir := range []string{s.root, s.sessionsDir(), s.checkpointsDir(), s.cacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating state dir %s: %w", dir, err)
		}
	}
	s.cache = NewPromptCache(s.cfg, filepath.Join(s.cacheDir(), "prompts.json"))
	s.cache.Load()
	return nil
}

func (s *Store) sessionsDir() string    { return filepath.Join(s.root, "sessions") }
func (s *Store) checkpointsDir() string { return filepath.Join(s.root, "checkpoints") }
func (s *Store) cacheDir() string       { return filepath.Join(s.root, "cache") }

// NewID derives a session id: a stable half from the goal and working
// directory, and a timestamp half for uniqueness. The stable half lets
// runs of the same goal in the same place find each other.
func NewID(goal, workdir string, at time.Time) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(goal))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(workdir))
	return fmt.Sprintf("%016x-%s", h.Sum64(), strconv.FormatInt(at.UnixMilli(), 36))
}

// StableHalf returns the goal+workdir-derived prefix of a session id.
func StableHalf(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// StartSession creates a new active session, or resumes the named one.
// The returned session is the store's current session until a terminal
// call or Close.
func (s *Store) StartSession(goal string, opts StartOptions) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Resume != "" {
		sess, err := s.load(opts.Resume)
		if err != nil {
			return nil, fmt.Errorf("resuming session %s: %w", opts.Resume, err)
		}
		if sess.Status.Terminal() {
			return nil, fmt.Errorf("session %s is %s and cannot be resumed", opts.Resume, sess.Status)
		}
		sess.Status = StatusActive
		sess.UpdatedAt = s.now()
		s.current = sess
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
		s.startAutoSaveLocked()
		s.logger.Info("Session resumed", "session_id", sess.ID, "goal", sess.Goal)
		return sess, nil
	}

	now := s.now()
	sess := &Session{
		ID:        NewID(goal, s.workdir, now),
		Goal:      goal,
		SubGoals:  opts.SubGoals,
		Workdir:   s.workdir,
		Status:    StatusActive,
		StepNotes: map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.current = sess
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	s.startAutoSaveLocked()
	s.logger.Info("Session started", "session_id", sess.ID, "goal", goal)
	return sess, nil
}

// Current returns the active session, or nil.
func (s *Store) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetPlan attaches the plan to the current session and saves.
func (s *Store) SetPlan(p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoActiveSession
	}
	s.current.Plan = p
	s.current.UpdatedAt = s.now()
	return s.saveLocked()
}

// SetAgentSession records the external agent's own session id so a
// resumed run can re-attach its conversation.
func (s *Store) SetAgentSession(agentSessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoActiveSession
	}
	s.current.AgentSessionID = agentSessionID
	s.current.UpdatedAt = s.now()
	return s.saveLocked()
}

// SetSummary records the run's handover summary on the current session.
func (s *Store) SetSummary(summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoActiveSession
	}
	s.current.Summary = summary
	s.current.UpdatedAt = s.now()
	return s.saveLocked()
}

// UpdateStepProgress records a step's status change plus a truncated
// result note. The plan object is shared with the engine, so the step
// itself is already current; this persists the snapshot.
func (s *Store) UpdateStepProgress(stepNumber string, status plan.Status, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoActiveSession
	}
	if result != "" {
		if s.current.StepNotes == nil {
			s.current.StepNotes = map[string]string{}
		}
		if len(result) > stepNoteMax {
			result = result[:stepNoteMax]
		}
		s.current.StepNotes[stepNumber] = string(status) + ": " + result
	}
	s.current.UpdatedAt = s.now()
	return s.saveLocked()
}

// CompleteSession marks the current session completed and detaches it.
func (s *Store) CompleteSession(summary string, p *plan.Plan) error {
	return s.finish(func(sess *Session) {
		sess.Status = StatusCompleted
		sess.Summary = summary
		if p != nil {
			sess.Plan = p
		}
	})
}

// FailSession marks the current session failed and detaches it.
func (s *Store) FailSession(reason string) error {
	return s.finish(func(sess *Session) {
		sess.Status = StatusFailed
		sess.FailReason = reason
	})
}

// InterruptSession marks the current session interrupted (still
// resumable) and detaches it. Used on operator shutdown.
func (s *Store) InterruptSession(reason string) error {
	return s.finish(func(sess *Session) {
		sess.Status = StatusInterrupted
		sess.FailReason = reason
	})
}

func (s *Store) finish(mutate func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoActiveSession
	}
	mutate(s.current)
	s.current.UpdatedAt = s.now()
	err := s.saveLocked()
	s.logger.Info("Session finished", "session_id", s.current.ID, "status", s.current.Status)
	s.current = nil
	s.stopAutoSaveLocked()
	if s.cache != nil {
		s.cache.Persist()
	}
	return err
}

// ListSessions returns every stored session, newest update first.
func (s *Store) ListSessions() ([]*Session, error) {
	entries, err := os.ReadDir(s.sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var sessions []*Session
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		sess, err := s.load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			s.logger.Warn("Skipping unreadable session file", "file", e.Name(), "error", err)
			continue
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// GetSession loads one stored session by id. The returned record is a
// private copy read from disk; mutating it does not touch the store.
func (s *Store) GetSession(id string) (*Session, error) {
	sess, err := s.load(id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}
	return sess, nil
}

// GetResumableSession returns the newest non-terminal session for the
// goal updated within the resumable window, or nil.
func (s *Store) GetResumableSession(goal string) (*Session, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-s.cfg.ResumableWindow)
	for _, sess := range sessions {
		if sess.Goal != goal || sess.Status.Terminal() {
			continue
		}
		if sess.UpdatedAt.Before(cutoff) {
			continue
		}
		return sess, nil
	}
	return nil, nil
}

// DeleteSession removes a session record and its checkpoints.
func (s *Store) DeleteSession(id string) error {
	if err := os.Remove(s.sessionPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	checkpoints, _ := s.listCheckpointFiles(id)
	for _, path := range checkpoints {
		_ = os.Remove(path)
	}
	return nil
}

// CleanupOldSessions deletes terminal sessions older than the cleanup
// age and returns how many were removed.
func (s *Store) CleanupOldSessions() (int, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.cfg.CleanupAge)
	removed := 0
	for _, sess := range sessions {
		if !sess.Status.Terminal() || sess.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.DeleteSession(sess.ID); err != nil {
			s.logger.Warn("Could not delete old session", "session_id", sess.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("Old sessions cleaned up", "removed", removed)
	}
	return removed, nil
}

// CleanupOrphanedCheckpoints removes checkpoint files whose session
// record no longer exists, such as after a crash between deleting a
// session and its checkpoints. Returns how many were removed.
func (s *Store) CleanupOrphanedCheckpoints() (int, error) {
	entries, err := os.ReadDir(s.checkpointsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.checkpointsDir(), e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var ckpt Checkpoint
		if err := json.Unmarshal(data, &ckpt); err != nil || ckpt.SessionID == "" {
			s.logger.Warn("Skipping unreadable checkpoint", "file", path, "error", err)
			continue
		}
		if _, err := os.Stat(s.sessionPath(ckpt.SessionID)); !os.IsNotExist(err) {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("Could not remove orphaned checkpoint", "file", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("Orphaned checkpoints cleaned up", "removed", removed)
	}
	return removed, nil
}

// Cache returns the prompt-result cache. Nil before Initialize.
func (s *Store) Cache() *PromptCache {
	return s.cache
}

// Close flushes the current session and the prompt cache and stops the
// auto-save loop.
func (s *Store) Close() error {
	s.mu.Lock()
	var err error
	if s.current != nil {
		s.current.UpdatedAt = s.now()
		err = s.saveLocked()
	}
	s.stopAutoSaveLocked()
	cache := s.cache
	s.mu.Unlock()

	s.wg.Wait()
	if cache != nil {
		cache.Persist()
	}
	return err
}

// ── persistence internals ──

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.sessionsDir(), id+".json")
}

func (s *Store) load(id string) (*Session, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &sess, nil
}

// saveLocked writes the current session atomically. Callers hold mu.
func (s *Store) saveLocked() error {
	if s.current == nil {
		return nil
	}
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return atomicWrite(s.sessionPath(s.current.ID), data)
}

// Save flushes the current session to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoActiveSession
	}
	s.current.UpdatedAt = s.now()
	return s.saveLocked()
}

func (s *Store) startAutoSaveLocked() {
	if s.cfg.AutoSaveInterval <= 0 || s.autosave != nil {
		return
	}
	stop := make(chan struct{})
	s.autosave = stop
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.AutoSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.current != nil {
					if err := s.saveLocked(); err != nil {
						s.logger.Warn("Auto-save failed", "error", err)
					}
				}
				s.mu.Unlock()
			}
		}
	}()
}

func (s *Store) stopAutoSaveLocked() {
	if s.autosave != nil {
		close(s.autosave)
		s.autosave = nil
	}
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
