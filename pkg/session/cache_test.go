package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude-runner/claude-runner/pkg/config"
)

func TestPromptCachePersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	cfg := config.DefaultStateConfig()

	pc := NewPromptCache(cfg, path)
	pc.Put("analyze the repo", "three packages, no tests")
	pc.Put("list the failing checks", "lint and vet")
	pc.Persist()

	reloaded := NewPromptCache(cfg, path)
	reloaded.Load()
	assert.Equal(t, 2, reloaded.Len())

	got, ok := reloaded.Get("analyze the repo")
	require.True(t, ok)
	assert.Equal(t, "three packages, no tests", got)

	_, ok = reloaded.Get("never asked")
	assert.False(t, ok)
}

func TestPromptCacheLoadMissingFile(t *testing.T) {
	pc := NewPromptCache(config.DefaultStateConfig(), filepath.Join(t.TempDir(), "absent.json"))
	pc.Load()
	assert.Equal(t, 0, pc.Len())
}

func TestPromptCacheLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	pc := NewPromptCache(config.DefaultStateConfig(), path)
	pc.Load()
	assert.Equal(t, 0, pc.Len())

	// A corrupt file must not block later persists.
	pc.Put("k", "v")
	pc.Persist()
	reloaded := NewPromptCache(config.DefaultStateConfig(), path)
	reloaded.Load()
	assert.Equal(t, 1, reloaded.Len())
}
