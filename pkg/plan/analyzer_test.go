package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLabels(t *testing.T) {
	tests := []struct {
		name     string
		desc     string
		wantArts []string
		wantReqs []string
	}{
		{
			name:     "creation verb produces bucket labels",
			desc:     "Create the user model files",
			wantArts: []string{LabelFiles},
		},
		{
			name:     "consumption verb requires bucket labels",
			desc:     "Use the database to store results",
			wantReqs: []string{LabelDatabase},
		},
		{
			name:     "quoted names captured verbatim",
			desc:     "Create `user.go` and `auth.go` modules",
			wantArts: []string{"auth.go", LabelFiles, "user.go"},
		},
		{
			name:     "mode switches mid-sentence",
			desc:     "Read the config and write the migration files",
			wantArts: []string{LabelDatabase, LabelFiles},
			wantReqs: []string{LabelConfig},
		},
		{
			name:     "set up counts as setup verb",
			desc:     "Set up the environment and configuration",
			wantArts: []string{LabelConfig, LabelEnv},
		},
		{
			name:     "labels before any verb are requirements",
			desc:     "Documentation for the API",
			wantReqs: []string{LabelAPI, LabelDocs},
		},
		{
			name: "no labels in plain prose",
			desc: "Think about the overall approach",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arts, reqs := extractLabels(tt.desc)
			assert.Equal(t, tt.wantArts, arts)
			assert.Equal(t, tt.wantReqs, reqs)
		})
	}
}

func TestAnalyze_LabelDependency(t *testing.T) {
	p := mkPlan(
		"Create the database schema",
		"Query the database for user records",
	)
	Analyze(p)

	second := p.StepByNumber("2")
	assert.True(t, second.DependsOn("1"))
	assert.Contains(t, p.StepByNumber("1").Dependents, "2")
}

func TestAnalyze_TestAfterCreate(t *testing.T) {
	p := mkPlan(
		"Create the payment processing module",
		"Draft the login flow",
		"Write unit tests for payment processing",
	)
	Analyze(p)

	third := p.StepByNumber("3")
	assert.True(t, third.DependsOn("1"), "tests share two content words with the creation step")
	assert.False(t, third.DependsOn("2"), "no shared content words with the login step")
}

func TestAnalyze_SetupPrecedesAll(t *testing.T) {
	p := mkPlan(
		"Install project dependencies",
		"Draft the welcome page",
		"Draft the goodbye page",
	)
	Analyze(p)

	assert.True(t, p.StepByNumber("2").DependsOn("1"))
	assert.True(t, p.StepByNumber("3").DependsOn("1"))
	assert.Empty(t, p.StepByNumber("1").Dependencies)
}

func TestAnalyze_ParallelGroups(t *testing.T) {
	p := mkPlan(
		"Install project dependencies",
		"Create the user interface pages",
		"Write the API documentation",
	)
	Analyze(p)

	ui := p.StepByNumber("2")
	docs := p.StepByNumber("3")
	require.True(t, ui.CanParallelize)
	require.True(t, docs.CanParallelize)
	assert.Equal(t, ui.ParallelGroup, docs.ParallelGroup)
	assert.Positive(t, ui.ParallelGroup)

	setup := p.StepByNumber("1")
	assert.False(t, setup.CanParallelize, "setup gates the others and sits alone at its depth")
}

func TestAnalyze_SharedArtifactNotGrouped(t *testing.T) {
	p := mkPlan(
		"Create user model files",
		"Create order model files",
	)
	Analyze(p)

	first := p.StepByNumber("1")
	second := p.StepByNumber("2")
	assert.False(t, first.CanParallelize)
	assert.False(t, second.CanParallelize)
	assert.False(t, second.DependsOn("1"), "shared artifacts block parallelism, not ordering")
}

func TestAnalyze_BatchRespectsAnalyzedPlan(t *testing.T) {
	p := mkPlan(
		"Install project dependencies",
		"Create the user interface pages",
		"Write the API documentation",
	)
	Analyze(p)

	// Before setup completes only the setup step is runnable.
	batch := p.NextExecutableBatch(map[string]bool{}, 4)
	require.Len(t, batch, 1)
	assert.Equal(t, "1", batch[0].Number)

	p.Complete("1")
	batch = p.NextExecutableBatch(p.CompletedSet(), 4)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].Number)
	assert.Equal(t, "3", batch[1].Number)
}

func TestDescribeDependencies(t *testing.T) {
	p := mkPlan("one", "two", "three")
	p.Steps[1].Dependencies = []string{"1"}
	p.Steps[2].Dependencies = []string{"1", "2"}

	assert.Equal(t, "2<-1, 3<-1,2", DescribeDependencies(p))
}
