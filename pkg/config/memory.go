package config

// MemoryConfig bounds the context manager: prompt assembly budgets,
// history compression, and the loop-detection window.
type MemoryConfig struct {
	// MaxContextTokens is the token budget for importance filtering.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// MaxContextLength caps the assembled context block in characters;
	// overflow is cut with an explicit truncation marker.
	MaxContextLength int `yaml:"max_context_length"`

	// CompressThreshold is the history length above which older messages
	// are folded into a single key-point summary. KeepRecent messages are
	// always left intact.
	CompressThreshold int `yaml:"compress_threshold"`
	KeepRecent        int `yaml:"keep_recent"`

	// DuplicateWindow is the number of recent response hashes kept for
	// loop detection.
	DuplicateWindow int `yaml:"duplicate_window"`

	// TokenHistoryLimit bounds the per-turn token usage history.
	TokenHistoryLimit int `yaml:"token_history_limit"`

	// DecisionLogLimit bounds the recorded decision log.
	DecisionLogLimit int `yaml:"decision_log_limit"`
}

// DefaultMemoryConfig returns the built-in context-manager defaults.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		MaxContextTokens:  4000,
		MaxContextLength:  12000,
		CompressThreshold: 30,
		KeepRecent:        10,
		DuplicateWindow:   5,
		TokenHistoryLimit: 100,
		DecisionLogLimit:  50,
	}
}
