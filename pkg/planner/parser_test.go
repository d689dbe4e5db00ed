package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-runner/claude-runner/pkg/plan"
)

const wellFormedPlan = `ANALYSIS: The goal needs a schema first, then code, then tests.
PLAN:
1. Create the database schema in schema.sql | simple
2. Implement the user model in user.go | medium
3. Write unit tests for the user model | medium
TOTAL_STEPS: 3`

func TestParsePlanResponseStrictTemplate(t *testing.T) {
	parsed := ParsePlanResponse(wellFormedPlan)

	assert.Equal(t, "The goal needs a schema first, then code, then tests.", parsed.Analysis)
	assert.Equal(t, 3, parsed.TotalSteps)
	assert.False(t, parsed.Fallback)
	require.Len(t, parsed.Steps, 3)

	assert.Equal(t, "1", parsed.Steps[0].Number)
	assert.Equal(t, "Create the database schema in schema.sql", parsed.Steps[0].Description)
	assert.Equal(t, plan.ComplexitySimple, parsed.Steps[0].Complexity)
	assert.Equal(t, plan.ComplexityMedium, parsed.Steps[1].Complexity)
	assert.Equal(t, plan.StatusPending, parsed.Steps[2].Status)
}

func TestParsePlanResponseTolerance(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantDescs []string
		wantComp  []plan.Complexity
	}{
		{
			name: "missing complexity defaults to medium",
			text: "PLAN:\n1. Do the thing\n2. Do the other thing | complex",
			wantDescs: []string{
				"Do the thing",
				"Do the other thing",
			},
			wantComp: []plan.Complexity{plan.ComplexityMedium, plan.ComplexityComplex},
		},
		{
			name: "parenthesis numbering and gaps",
			text: "PLAN:\n1) First\n4) Second | hard",
			wantDescs: []string{
				"First",
				"Second",
			},
			wantComp: []plan.Complexity{plan.ComplexityMedium, plan.ComplexityComplex},
		},
		{
			name: "pipes inside description keep only trailing tag",
			text: "PLAN:\n1. Wire input | output handling | simple",
			wantDescs: []string{
				"Wire input | output handling",
			},
			wantComp: []plan.Complexity{plan.ComplexitySimple},
		},
		{
			name: "continuation lines join the previous step",
			text: "PLAN:\n1. Implement the parser\nwith recovery for malformed lines | medium",
			wantDescs: []string{
				"Implement the parser with recovery for malformed lines | medium",
			},
			wantComp: []plan.Complexity{plan.ComplexityMedium},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := ParsePlanResponse(tt.text)
			require.Len(t, parsed.Steps, len(tt.wantDescs))
			for i := range tt.wantDescs {
				assert.Equal(t, tt.wantDescs[i], parsed.Steps[i].Description)
				assert.Equal(t, tt.wantComp[i], parsed.Steps[i].Complexity)
			}
		})
	}
}

func TestParsePlanResponseFallbackExtraction(t *testing.T) {
	text := `Sure! Here's how I would approach this:

1. Set up the project scaffolding
2. Add the HTTP handlers
3. Write integration tests

Let me know if you want changes.`

	parsed := ParsePlanResponse(text)
	assert.True(t, parsed.Fallback)
	require.Len(t, parsed.Steps, 3)
	assert.Equal(t, "Set up the project scaffolding", parsed.Steps[0].Description)
	assert.Equal(t, []string{"1", "2", "3"}, []string{
		parsed.Steps[0].Number, parsed.Steps[1].Number, parsed.Steps[2].Number,
	})
}

func TestParsePlanResponseUnparseable(t *testing.T) {
	parsed := ParsePlanResponse("I cannot plan this, sorry.")
	assert.Empty(t, parsed.Steps)
	assert.False(t, parsed.Fallback)
}

func TestParsePlanResponseMultilineAnalysis(t *testing.T) {
	text := `ANALYSIS: First line of analysis.
Second line continues it.
PLAN:
1. Only step | simple
TOTAL_STEPS: 1`

	parsed := ParsePlanResponse(text)
	assert.Equal(t, "First line of analysis. Second line continues it.", parsed.Analysis)
	require.Len(t, parsed.Steps, 1)
}

func TestParseSubListHeaderAndNone(t *testing.T) {
	steps := parseSubList("SUB_PLAN:\n1. Try mirror registry | simple\n2. Pin the old version | medium", subPlanRe)
	require.Len(t, steps, 2)
	assert.Equal(t, "Try mirror registry", steps[0].Description)

	assert.Nil(t, parseSubList("NONE", subPlanRe))
	assert.Nil(t, parseSubList("  none  ", subPlanRe))
	assert.Nil(t, parseSubList("I give up, nothing can be done here.", subPlanRe))
}

func TestParseSubListHeaderless(t *testing.T) {
	steps := parseSubList("1. Split config loading\n2. Split validation", substepsRe)
	require.Len(t, steps, 2)
}
