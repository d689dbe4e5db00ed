package memory

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-runner/claude-runner/pkg/agent"
)

func TestScoreImportance(t *testing.T) {
	tests := []struct {
		name  string
		msg   agent.Message
		index int
		total int
		min   int
		max   int
	}{
		{
			name:  "system role scores above plain assistant",
			msg:   agent.Message{Role: agent.RoleSystem, Content: "context block"},
			index: 0, total: 10,
			min: 20, max: 20,
		},
		{
			name:  "step completion is high signal",
			msg:   agent.Message{Role: agent.RoleAssistant, Content: "STEP COMPLETE"},
			index: 0, total: 10,
			min: 25, max: 35,
		},
		{
			name:  "blocked step is high signal",
			msg:   agent.Message{Role: agent.RoleAssistant, Content: "STEP BLOCKED: missing credentials"},
			index: 0, total: 10,
			min: 20, max: 60,
		},
		{
			name:  "recency dominates for late messages",
			msg:   agent.Message{Role: agent.RoleAssistant, Content: "plain text"},
			index: 9, total: 10,
			min: 30, max: 30,
		},
		{
			name:  "filler scores zero",
			msg:   agent.Message{Role: agent.RoleAssistant, Content: "ok sure"},
			index: 0, total: 10,
			min: 0, max: 0,
		},
		{
			name:  "very long content is penalized",
			msg:   agent.Message{Role: agent.RoleAssistant, Content: strings.Repeat("a", 2500)},
			index: 0, total: 10,
			min: 0, max: 0,
		},
		{
			name:  "stacked cues clamp at 100",
			msg:   agent.Message{Role: agent.RoleSystem, Content: "STEP COMPLETE then STEP BLOCKED error created decided to"},
			index: 9, total: 10,
			min: 100, max: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreImportance(tt.msg, tt.index, tt.total)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestScoreImportanceBounds(t *testing.T) {
	// Any message, any position, always lands in [0, 100].
	contents := []string{
		"", "ok", "STEP 9 COMPLETE error error failed decided to use chose",
		strings.Repeat("filler ", 500),
	}
	for _, role := range []string{agent.RoleSystem, agent.RoleUser, agent.RoleAssistant} {
		for _, c := range contents {
			for _, idx := range []int{0, 5, 9} {
				score := ScoreImportance(agent.Message{Role: role, Content: c}, idx, 10)
				assert.GreaterOrEqual(t, score, 0)
				assert.LessOrEqual(t, score, 100)
			}
		}
	}
}

func TestFilterByImportanceKeepsAnchors(t *testing.T) {
	m := testManager()
	var history []agent.Message
	for i := 0; i < 12; i++ {
		history = append(history, msg(agent.RoleAssistant, fmt.Sprintf("message %d ok", i)))
	}

	// Tiny budget: only the anchors fit.
	got := m.FilterByImportance(history, 0)
	require.Len(t, got, 4)
	assert.Equal(t, "message 0 ok", got[0].Content)
	assert.Equal(t, "message 9 ok", got[1].Content)
	assert.Equal(t, "message 10 ok", got[2].Content)
	assert.Equal(t, "message 11 ok", got[3].Content)
}

func TestFilterByImportancePreservesOrder(t *testing.T) {
	m := testManager()
	var history []agent.Message
	for i := 0; i < 20; i++ {
		content := fmt.Sprintf("message %d", i)
		if i%3 == 0 {
			content = fmt.Sprintf("STEP %d COMPLETE", i)
		}
		history = append(history, msg(agent.RoleAssistant, content))
	}

	got := m.FilterByImportance(history, 100)
	require.NotEmpty(t, got)

	// Selected messages appear in their original relative order.
	lastIdx := -1
	for _, g := range got {
		idx := indexOf(history, g.Content)
		require.GreaterOrEqual(t, idx, 0)
		assert.Greater(t, idx, lastIdx)
		lastIdx = idx
	}
}

func TestFilterByImportancePrefersHighScores(t *testing.T) {
	m := testManager()
	var history []agent.Message
	for i := 0; i < 10; i++ {
		history = append(history, msg(agent.RoleAssistant, "ok"))
	}
	history[4] = msg(agent.RoleAssistant, "STEP COMPLETE")

	// Room for the anchors plus roughly one more short message.
	got := m.FilterByImportance(history, m.estimator.Count("ok")*4+m.estimator.Count("STEP COMPLETE"))

	contents := make([]string, len(got))
	for i, g := range got {
		contents[i] = g.Content
	}
	assert.Contains(t, contents, "STEP COMPLETE")
}

func TestFilterByImportanceShortHistoryUntouched(t *testing.T) {
	m := testManager()
	history := []agent.Message{
		msg(agent.RoleUser, "one"),
		msg(agent.RoleAssistant, "two"),
		msg(agent.RoleUser, "three"),
		msg(agent.RoleAssistant, "four"),
	}
	got := m.FilterByImportance(history, 1)
	assert.Equal(t, history, got)
}

func indexOf(history []agent.Message, content string) int {
	for i, m := range history {
		if m.Content == content {
			return i
		}
	}
	return -1
}
