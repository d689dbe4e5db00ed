package config

import "time"

// StateConfig controls durable session and checkpoint storage.
type StateConfig struct {
	// Dir is the state directory, resolved relative to the working
	// directory unless absolute.
	Dir string `yaml:"dir"`

	// AutoSaveInterval is how often the active session is flushed to disk.
	AutoSaveInterval time.Duration `yaml:"auto_save_interval"`

	// CheckpointRetention bounds kept checkpoints per session; oldest are
	// pruned first.
	CheckpointRetention int `yaml:"checkpoint_retention"`

	// ResumableWindow is how recently a non-terminal session must have been
	// updated to be offered for resume.
	ResumableWindow time.Duration `yaml:"resumable_window"`

	// CleanupAge is the age beyond which CleanupOldSessions removes
	// terminal session records.
	CleanupAge time.Duration `yaml:"cleanup_age"`

	// CleanupInterval is how often the retention sweeper runs during a
	// run. Zero disables the sweeper.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// PromptCacheSize and PromptCacheTTL bound the prompt-result cache.
	PromptCacheSize int           `yaml:"prompt_cache_size"`
	PromptCacheTTL  time.Duration `yaml:"prompt_cache_ttl"`
}

// DefaultStateConfig returns the built-in persistence defaults.
func DefaultStateConfig() *StateConfig {
	return &StateConfig{
		Dir:                 ".claude-runner",
		AutoSaveInterval:    30 * time.Second,
		CheckpointRetention: 10,
		ResumableWindow:     24 * time.Hour,
		CleanupAge:          7 * 24 * time.Hour,
		CleanupInterval:     1 * time.Hour,
		PromptCacheSize:     256,
		PromptCacheTTL:      1 * time.Hour,
	}
}
