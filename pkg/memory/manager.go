// Package memory keeps the worker conversation usable over long runs:
// it scores and filters history by importance, folds old messages into
// key-point summaries, assembles budget-bounded context blocks, and
// watches for the agent looping on itself.
package memory

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/claude-runner/claude-runner/pkg/agent"
	"github.com/claude-runner/claude-runner/pkg/config"
)

// duplicateHashPrefix is how much of a response feeds the loop
// detector. Identical openings almost always mean an identical turn.
const duplicateHashPrefix = 1000

// Manager owns the engine's view of the conversation. It is written
// only by the main control loop; the mutex covers reads from the API
// layer.
type Manager struct {
	cfg       *config.MemoryConfig
	estimator *Estimator

	mu        sync.Mutex
	history   []agent.Message
	decisions []string
	dupWindow []uint64
	tokens    *TokenTracker
}

// NewManager builds a context manager with the given bounds.
func NewManager(cfg *config.MemoryConfig) *Manager {
	return &Manager{
		cfg:       cfg,
		estimator: NewEstimator(),
		tokens:    NewTokenTracker(cfg.TokenHistoryLimit),
	}
}

// Record appends one message to the managed history.
func (m *Manager) Record(msg agent.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, msg)
}

// History returns a copy of the managed history.
func (m *Manager) History() []agent.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]agent.Message, len(m.history))
	copy(out, m.history)
	return out
}

// Len returns the managed history length.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Reset drops history and the duplicate window, keeping decisions and
// token statistics. Used when the engine starts a fresh agent session.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
	m.dupWindow = nil
}

// RecordDecision appends to the bounded decision log.
func (m *Manager) RecordDecision(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, text)
	if limit := m.cfg.DecisionLogLimit; limit > 0 && len(m.decisions) > limit {
		m.decisions = m.decisions[len(m.decisions)-limit:]
	}
}

// RecentDecisions returns up to n of the newest decisions, oldest
// first.
func (m *Manager) RecentDecisions(n int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || len(m.decisions) == 0 {
		return nil
	}
	if n > len(m.decisions) {
		n = len(m.decisions)
	}
	out := make([]string, n)
	copy(out, m.decisions[len(m.decisions)-n:])
	return out
}

// NoteResponse hashes the response prefix into the sliding duplicate
// window. It reports whether the same prefix was already in the window
// and how many times it now occurs there.
func (m *Manager) NoteResponse(text string) (duplicate bool, occurrences int) {
	h := prefixHash(text)

	m.mu.Lock()
	defer m.mu.Unlock()
	occurrences = 1
	for _, prev := range m.dupWindow {
		if prev == h {
			occurrences++
		}
	}
	m.dupWindow = append(m.dupWindow, h)
	if limit := m.cfg.DuplicateWindow; limit > 0 && len(m.dupWindow) > limit {
		m.dupWindow = m.dupWindow[len(m.dupWindow)-limit:]
	}
	return occurrences > 1, occurrences
}

// RecordUsage feeds one turn's token counts into the tracker.
func (m *Manager) RecordUsage(in, out int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens.Record(in, out)
}

// Tokens exposes the token tracker for reporting.
func (m *Manager) Tokens() *TokenTracker {
	return m.tokens
}

// CompressIfNeeded folds all but the newest KeepRecent messages into a
// single synthetic system summary once the history passes the
// compression threshold. Returns the before/after lengths and whether
// anything happened.
func (m *Manager) CompressIfNeeded() (before, after int, compressed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	threshold := m.cfg.CompressThreshold
	keep := m.cfg.KeepRecent
	if threshold <= 0 || len(m.history) <= threshold || keep >= len(m.history) {
		return len(m.history), len(m.history), false
	}

	before = len(m.history)
	folded := m.history[:before-keep]
	summary := agent.Message{
		Role:      agent.RoleSystem,
		Content:   "Summary of earlier work: " + keyPoints(folded),
		Timestamp: folded[len(folded)-1].Timestamp,
	}
	recent := make([]agent.Message, keep)
	copy(recent, m.history[before-keep:])
	m.history = append([]agent.Message{summary}, recent...)
	return before, len(m.history), true
}

// BuildContext assembles the budget-bounded context block for a
// follow-up prompt: goal, current step, progress, recent decisions,
// then importance-filtered history. The whole block is cut at the
// configured maximum length with an explicit marker.
func (m *Manager) BuildContext(goal, currentStep string, completed, total int) string {
	m.mu.Lock()
	history := make([]agent.Message, len(m.history))
	copy(history, m.history)
	m.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("GOAL: " + goal + "\n")
	if currentStep != "" {
		sb.WriteString("CURRENT STEP: " + currentStep + "\n")
	}
	fmt.Fprintf(&sb, "PROGRESS: %d/%d steps completed\n", completed, total)

	if decisions := m.RecentDecisions(5); len(decisions) > 0 {
		sb.WriteString("RECENT DECISIONS:\n")
		for _, d := range decisions {
			sb.WriteString("- " + d + "\n")
		}
	}

	if len(history) > 0 {
		sb.WriteString("RECENT HISTORY:\n")
		for _, msg := range m.FilterByImportance(history, m.cfg.MaxContextTokens) {
			line := strings.TrimSpace(msg.Content)
			if len(line) > 300 {
				line = line[:300] + "..."
			}
			sb.WriteString(msg.Role + ": " + line + "\n")
		}
	}

	out := sb.String()
	if max := m.cfg.MaxContextLength; max > 0 && len(out) > max {
		cut := max - len("\n[truncated]")
		if cut < 0 {
			cut = 0
		}
		out = out[:cut] + "\n[truncated]"
	}
	return out
}

func prefixHash(text string) uint64 {
	if len(text) > duplicateHashPrefix {
		text = text[:duplicateHashPrefix]
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}
