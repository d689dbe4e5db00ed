package memory

import (
	"sort"
	"strings"

	"github.com/claude-runner/claude-runner/pkg/agent"
)

// anchorTail is how many trailing messages the importance filter
// always keeps alongside the first message.
const anchorTail = 3

var errorKeywords = []string{
	"error", "failed", "failure", "exception", "panic",
	"cannot", "unable", "denied", "timeout",
}

var actionKeywords = []string{
	"created", "wrote", "implemented", "added", "fixed",
	"updated", "installed", "modified", "deleted", "built",
	"ran", "generated",
}

var decisionKeywords = []string{
	"decided", "decision", "choosing", "chose", "will use",
	"instead of", "approach", "strategy",
}

var fillerPhrases = []string{
	"ok", "okay", "sure", "got it", "sounds good", "thanks",
	"let me know", "i'll get started", "working on it",
}

// ScoreImportance rates one message on a 0-100 scale from recency,
// role, and content cues. index is the message's position in a history
// of the given total length.
func ScoreImportance(msg agent.Message, index, total int) int {
	score := 0.0
	if total > 1 {
		score += 30.0 * float64(index) / float64(total-1)
	}

	switch msg.Role {
	case agent.RoleSystem:
		score += 20
	case agent.RoleUser:
		score += 10
	}

	upper := strings.ToUpper(msg.Content)
	lower := strings.ToLower(msg.Content)
	if strings.Contains(upper, "STEP COMPLETE") {
		score += 25
	}
	if strings.Contains(upper, "STEP BLOCKED") {
		score += 20
	}
	if containsAny(lower, errorKeywords) {
		score += 15
	}
	if containsAny(lower, actionKeywords) {
		score += 10
	}
	if containsAny(lower, decisionKeywords) {
		score += 15
	}

	trimmed := strings.TrimSpace(lower)
	if len(trimmed) < 40 && containsAny(trimmed, fillerPhrases) {
		score -= 10
	}
	if len(msg.Content) > 2000 {
		score -= 10
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}

// FilterByImportance selects messages within a token budget. The first
// message and the last three are always kept; the remainder compete by
// score, highest first, while their estimated token cost fits. The
// result preserves original order.
func (m *Manager) FilterByImportance(history []agent.Message, budgetTokens int) []agent.Message {
	if len(history) <= anchorTail+1 {
		return history
	}

	keep := make(map[int]bool, len(history))
	keep[0] = true
	for i := len(history) - anchorTail; i < len(history); i++ {
		keep[i] = true
	}

	budget := budgetTokens
	for i := range keep {
		budget -= m.estimator.Count(history[i].Content)
	}

	type scored struct {
		index int
		score int
	}
	var candidates []scored
	for i := range history {
		if keep[i] {
			continue
		}
		candidates = append(candidates, scored{i, ScoreImportance(history[i], i, len(history))})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	for _, c := range candidates {
		cost := m.estimator.Count(history[c.index].Content)
		if cost > budget {
			continue
		}
		keep[c.index] = true
		budget -= cost
	}

	out := make([]agent.Message, 0, len(keep))
	for i, msg := range history {
		if keep[i] {
			out = append(out, msg)
		}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
