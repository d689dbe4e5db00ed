// Package masking redacts secret-looking values from agent output.
// The agent can quote whatever it read in the working directory,
// including .env files and credentials, and its output flows to the
// event stream, the dashboard, logs, and session records on disk.
// Masking happens once, at the driver boundary, so every downstream
// consumer sees the redacted text.
package masking

import (
	"log/slog"

	"github.com/claude-runner/claude-runner/pkg/config"
)

// Masker applies the compiled rule set to agent output. Built once per
// run and shared across drivers; stateless after construction and safe
// for concurrent use. A nil Masker passes text through unchanged.
type Masker struct {
	patterns []*CompiledPattern
}

// New compiles the built-in patterns plus any user-supplied ones.
// Invalid patterns are logged and skipped. Returns nil when masking is
// disabled.
func New(cfg *config.MaskingConfig) *Masker {
	if cfg != nil && cfg.Disabled {
		return nil
	}
	m := &Masker{patterns: compileBuiltins()}
	if cfg != nil {
		m.patterns = append(m.patterns, compileCustom(cfg.Patterns)...)
	}
	slog.Debug("Output masking initialized", "patterns", len(m.patterns))
	return m
}

// Mask replaces every match of every rule, in declaration order.
func (m *Masker) Mask(s string) string {
	if m == nil || s == "" {
		return s
	}
	for _, p := range m.patterns {
		s = p.Regex.ReplaceAllString(s, p.Replacement)
	}
	return s
}
