package memory

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-runner/claude-runner/pkg/agent"
	"github.com/claude-runner/claude-runner/pkg/config"
)

func testManager() *Manager {
	return NewManager(config.DefaultMemoryConfig())
}

func msg(role, content string) agent.Message {
	return agent.Message{Role: role, Content: content, Timestamp: time.Unix(1700000000, 0)}
}

func TestManagerRecordAndReset(t *testing.T) {
	m := testManager()
	m.Record(msg(agent.RoleUser, "do the thing"))
	m.Record(msg(agent.RoleAssistant, "done"))
	m.RecordDecision("use sqlite for storage")
	require.Equal(t, 2, m.Len())

	m.Reset()
	assert.Equal(t, 0, m.Len())
	// Decisions survive a session reset.
	assert.Equal(t, []string{"use sqlite for storage"}, m.RecentDecisions(5))
}

func TestManagerDecisionLogBounded(t *testing.T) {
	cfg := config.DefaultMemoryConfig()
	cfg.DecisionLogLimit = 3
	m := NewManager(cfg)
	for i := 1; i <= 5; i++ {
		m.RecordDecision(fmt.Sprintf("decision %d", i))
	}
	assert.Equal(t, []string{"decision 3", "decision 4", "decision 5"}, m.RecentDecisions(10))
	// Oldest-first, trimmed to n.
	assert.Equal(t, []string{"decision 4", "decision 5"}, m.RecentDecisions(2))
}

func TestManagerNoteResponseDetectsDuplicates(t *testing.T) {
	m := testManager()

	dup, occ := m.NoteResponse("I am working on step 3")
	assert.False(t, dup)
	assert.Equal(t, 1, occ)

	dup, occ = m.NoteResponse("something different entirely")
	assert.False(t, dup)
	assert.Equal(t, 1, occ)

	dup, occ = m.NoteResponse("I am working on step 3")
	assert.True(t, dup)
	assert.Equal(t, 2, occ)

	dup, occ = m.NoteResponse("I am working on step 3")
	assert.True(t, dup)
	assert.Equal(t, 3, occ)
}

func TestManagerNoteResponseWindowSlides(t *testing.T) {
	cfg := config.DefaultMemoryConfig()
	cfg.DuplicateWindow = 2
	m := NewManager(cfg)

	m.NoteResponse("repeat me")
	m.NoteResponse("filler one")
	m.NoteResponse("filler two")

	// The original has slid out of the window.
	dup, occ := m.NoteResponse("repeat me")
	assert.False(t, dup)
	assert.Equal(t, 1, occ)
}

func TestManagerNoteResponseComparesPrefixOnly(t *testing.T) {
	m := testManager()
	base := strings.Repeat("x", duplicateHashPrefix)

	m.NoteResponse(base + "tail one")
	dup, occ := m.NoteResponse(base + "a completely different tail")
	assert.True(t, dup)
	assert.Equal(t, 2, occ)
}

func TestCompressIfNeeded(t *testing.T) {
	cfg := config.DefaultMemoryConfig()
	cfg.CompressThreshold = 6
	cfg.KeepRecent = 3
	m := NewManager(cfg)

	for i := 1; i <= 6; i++ {
		m.Record(msg(agent.RoleAssistant, fmt.Sprintf("STEP %d COMPLETE", i)))
	}
	// At the threshold nothing happens yet.
	before, after, compressed := m.CompressIfNeeded()
	assert.False(t, compressed)
	assert.Equal(t, 6, before)
	assert.Equal(t, 6, after)

	m.Record(msg(agent.RoleAssistant, "STEP 7 COMPLETE"))
	before, after, compressed = m.CompressIfNeeded()
	require.True(t, compressed)
	assert.Equal(t, 7, before)
	assert.Equal(t, 4, after)

	history := m.History()
	require.Len(t, history, 4)
	assert.Equal(t, agent.RoleSystem, history[0].Role)
	assert.Contains(t, history[0].Content, "Summary of earlier work:")
	assert.Contains(t, history[0].Content, "completed step 1")
	assert.Contains(t, history[0].Content, "completed step 4")
	// The newest messages survive verbatim.
	assert.Equal(t, "STEP 5 COMPLETE", history[1].Content)
	assert.Equal(t, "STEP 7 COMPLETE", history[3].Content)
}

func TestBuildContextSections(t *testing.T) {
	m := testManager()
	m.RecordDecision("keep the API surface small")
	m.Record(msg(agent.RoleUser, "implement the parser"))
	m.Record(msg(agent.RoleAssistant, "created parser.go with the core loop"))

	ctx := m.BuildContext("build a config loader", "2. write tests", 1, 4)

	assert.Contains(t, ctx, "GOAL: build a config loader")
	assert.Contains(t, ctx, "CURRENT STEP: 2. write tests")
	assert.Contains(t, ctx, "PROGRESS: 1/4 steps completed")
	assert.Contains(t, ctx, "RECENT DECISIONS:")
	assert.Contains(t, ctx, "- keep the API surface small")
	assert.Contains(t, ctx, "RECENT HISTORY:")
	assert.Contains(t, ctx, "assistant: created parser.go")
}

func TestBuildContextOmitsEmptySections(t *testing.T) {
	m := testManager()
	ctx := m.BuildContext("goal", "", 0, 3)
	assert.NotContains(t, ctx, "CURRENT STEP:")
	assert.NotContains(t, ctx, "RECENT DECISIONS:")
	assert.NotContains(t, ctx, "RECENT HISTORY:")
}

func TestBuildContextRespectsMaxLength(t *testing.T) {
	cfg := config.DefaultMemoryConfig()
	cfg.MaxContextLength = 200
	m := NewManager(cfg)
	for i := 0; i < 20; i++ {
		m.Record(msg(agent.RoleAssistant, strings.Repeat("progress report ", 30)))
	}

	ctx := m.BuildContext("a goal that goes on and on", "1. step", 0, 20)
	assert.LessOrEqual(t, len(ctx), 200)
	assert.True(t, strings.HasSuffix(ctx, "[truncated]"))
}

func TestKeyPoints(t *testing.T) {
	tests := []struct {
		name   string
		folded []agent.Message
		want   []string
	}{
		{
			name: "step completions and file operations",
			folded: []agent.Message{
				msg(agent.RoleAssistant, "STEP 1 COMPLETE after edits"),
				msg(agent.RoleAssistant, "Created `server.go` and wrote handler.go today"),
			},
			want: []string{"completed step 1", "created server.go", "wrote handler.go"},
		},
		{
			name: "first error only",
			folded: []agent.Message{
				msg(agent.RoleAssistant, "build failed with missing import"),
				msg(agent.RoleAssistant, "another error: no such file"),
			},
			want: []string{"hit: build failed with missing import"},
		},
		{
			name: "decisions",
			folded: []agent.Message{
				msg(agent.RoleAssistant, "Decided to use a flat file store.\nMore detail here."),
			},
			want: []string{"Decided to use a flat file store."},
		},
		{
			name:   "nothing notable",
			folded: []agent.Message{msg(agent.RoleAssistant, "thinking about it")},
			want:   []string{"1 earlier messages elided"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keyPoints(tt.folded)
			for _, want := range tt.want {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestKeyPointsOnlyFirstErrorSurvives(t *testing.T) {
	got := keyPoints([]agent.Message{
		msg(agent.RoleAssistant, "build failed with missing import"),
		msg(agent.RoleAssistant, "second error: no such file"),
	})
	assert.Contains(t, got, "hit: build failed with missing import")
	assert.NotContains(t, got, "no such file")
}
