package session

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"sync"

	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/memory"
)

// PromptCache memoizes prompt results across turns and, via Load and
// Persist, across process restarts. Keys are prompt hashes so the
// persisted file stays small.
type PromptCache struct {
	cache  *memory.Cache
	path   string
	logger *slog.Logger

	mu sync.Mutex // serializes file I/O; the cache locks itself
}

// NewPromptCache builds the cache backed by the given file path.
func NewPromptCache(cfg *config.StateConfig, path string) *PromptCache {
	return &PromptCache{
		cache:  memory.NewCache(cfg.PromptCacheSize, cfg.PromptCacheTTL),
		path:   path,
		logger: slog.Default().With("component", "prompt-cache"),
	}
}

func promptKey(prompt string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt))
	return fmt.Sprintf("%016x", h.Sum64())
}

// Get returns the cached result for a prompt.
func (p *PromptCache) Get(prompt string) (string, bool) {
	v, ok := p.cache.Get(promptKey(prompt))
	if !ok {
		return "", false
	}
	result, ok := v.(string)
	return result, ok
}

// Put stores a prompt result.
func (p *PromptCache) Put(prompt, result string) {
	p.cache.Put(promptKey(prompt), result)
}

// Len reports how many results are held.
func (p *PromptCache) Len() int {
	return p.cache.Len()
}

// Load seeds the cache from the persisted file. Missing or unreadable
// files are ignored; the cache starts empty.
func (p *PromptCache) Load() {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, err := os.ReadFile(p.path)
	if err != nil {
		return
	}
	var entries []memory.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		p.logger.Warn("Discarding corrupt prompt cache", "path", p.path, "error", err)
		return
	}
	kept := entries[:0]
	for _, e := range entries {
		if _, ok := e.Value.(string); ok {
			kept = append(kept, e)
		}
	}
	p.cache.Restore(kept)
}

// Persist writes the live entries back to the file.
func (p *PromptCache) Persist() {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := p.cache.Snapshot()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		p.logger.Warn("Could not encode prompt cache", "error", err)
		return
	}
	if err := atomicWrite(p.path, data); err != nil {
		p.logger.Warn("Could not persist prompt cache", "path", p.path, "error", err)
	}
}
