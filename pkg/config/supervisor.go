package config

import "time"

// SupervisorConfig tunes the supervision side channel. The escalation
// thresholds themselves are fixed (see pkg/supervisor); only the cache and
// history bounds are configurable.
type SupervisorConfig struct {
	// AssessmentCacheSize and AssessmentCacheTTL bound the cache of
	// CONTINUE assessments keyed by response prefix + goal + issue count.
	AssessmentCacheSize int           `yaml:"assessment_cache_size"`
	AssessmentCacheTTL  time.Duration `yaml:"assessment_cache_ttl"`

	// ScoreHistoryLimit bounds the retained per-check score history.
	ScoreHistoryLimit int `yaml:"score_history_limit"`

	// RecentActionWindow is how many recent engine actions are summarized
	// into each supervision prompt.
	RecentActionWindow int `yaml:"recent_action_window"`
}

// DefaultSupervisorConfig returns the built-in supervision defaults.
func DefaultSupervisorConfig() *SupervisorConfig {
	return &SupervisorConfig{
		AssessmentCacheSize: 128,
		AssessmentCacheTTL:  10 * time.Minute,
		ScoreHistoryLimit:   50,
		RecentActionWindow:  5,
	}
}
