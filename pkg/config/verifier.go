package config

import "time"

// VerifierConfig tunes completion-claim verification.
type VerifierConfig struct {
	// CommandTimeout bounds each validation command spawned for layer 3.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// SmokeTimeout bounds each smoke-test invocation at cycle end.
	SmokeTimeout time.Duration `yaml:"smoke_timeout"`

	// MaxClaimedCommands caps how many agent-offered commands are run.
	MaxClaimedCommands int `yaml:"max_claimed_commands"`

	// SnippetPrefixLen is how many characters of each fenced code block
	// are retained as evidence.
	SnippetPrefixLen int `yaml:"snippet_prefix_len"`

	// HistoryLimit bounds the retained verification results.
	HistoryLimit int `yaml:"history_limit"`
}

// DefaultVerifierConfig returns the built-in verifier defaults.
func DefaultVerifierConfig() *VerifierConfig {
	return &VerifierConfig{
		CommandTimeout:     60 * time.Second,
		SmokeTimeout:       2 * time.Minute,
		MaxClaimedCommands: 2,
		SnippetPrefixLen:   200,
		HistoryLimit:       20,
	}
}
