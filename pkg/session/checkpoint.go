package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/claude-runner/claude-runner/pkg/plan"
)

// Checkpoint is a labeled snapshot of the plan at a point in time.
type Checkpoint struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Label     string     `json:"label"`
	Plan      *plan.Plan `json:"plan"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreateCheckpoint snapshots the plan under a label. The plan is
// deep-copied so later mutations do not rewrite history. Oldest
// checkpoints beyond the retention bound are pruned.
func (s *Store) CreateCheckpoint(label string, p *plan.Plan) (*Checkpoint, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	sessionID := s.current.ID
	s.ckptSeq++
	seq := s.ckptSeq
	now := s.now()
	s.mu.Unlock()

	snapshot, err := copyPlan(p)
	if err != nil {
		return nil, fmt.Errorf("snapshotting plan: %w", err)
	}
	ckpt := &Checkpoint{
		ID:        fmt.Sprintf("%s_%d_%d", sessionID, now.UnixNano(), seq),
		SessionID: sessionID,
		Label:     label,
		Plan:      snapshot,
		CreatedAt: now,
	}
	data, err := json.MarshalIndent(ckpt, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := atomicWrite(s.checkpointPath(ckpt.ID), data); err != nil {
		return nil, err
	}
	s.pruneCheckpoints(sessionID)
	s.logger.Debug("Checkpoint created", "checkpoint_id", ckpt.ID, "label", label)
	return ckpt, nil
}

// RestoreCheckpoint loads a checkpoint by id.
func (s *Store) RestoreCheckpoint(id string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointPath(id))
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", id, err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", id, err)
	}
	return &ckpt, nil
}

// ListCheckpoints returns a session's checkpoints, oldest first.
func (s *Store) ListCheckpoints(sessionID string) ([]*Checkpoint, error) {
	paths, err := s.listCheckpointFiles(sessionID)
	if err != nil {
		return nil, err
	}
	var checkpoints []*Checkpoint
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var ckpt Checkpoint
		if err := json.Unmarshal(data, &ckpt); err != nil {
			s.logger.Warn("Skipping unreadable checkpoint", "file", path, "error", err)
			continue
		}
		checkpoints = append(checkpoints, &ckpt)
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		if checkpoints[i].CreatedAt.Equal(checkpoints[j].CreatedAt) {
			return checkpoints[i].ID < checkpoints[j].ID
		}
		return checkpoints[i].CreatedAt.Before(checkpoints[j].CreatedAt)
	})
	return checkpoints, nil
}

func (s *Store) checkpointPath(id string) string {
	return filepath.Join(s.checkpointsDir(), id+".json")
}

func (s *Store) listCheckpointFiles(sessionID string) ([]string, error) {
	entries, err := os.ReadDir(s.checkpointsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), sessionID+"_") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(s.checkpointsDir(), e.Name()))
	}
	return paths, nil
}

func (s *Store) pruneCheckpoints(sessionID string) {
	limit := s.cfg.CheckpointRetention
	if limit <= 0 {
		return
	}
	checkpoints, err := s.ListCheckpoints(sessionID)
	if err != nil || len(checkpoints) <= limit {
		return
	}
	for _, ckpt := range checkpoints[:len(checkpoints)-limit] {
		if err := os.Remove(s.checkpointPath(ckpt.ID)); err != nil {
			s.logger.Warn("Could not prune checkpoint", "checkpoint_id", ckpt.ID, "error", err)
		}
	}
}

func copyPlan(p *plan.Plan) (*plan.Plan, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var out plan.Plan
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
