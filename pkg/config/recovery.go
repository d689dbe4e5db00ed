package config

import "time"

// RecoveryConfig tunes error classification, retry backoff, and the
// per-operation circuit breaker.
type RecoveryConfig struct {
	// MaxRetries is the default retry budget when the caller does not
	// specify one.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay seeds the exponential backoff. MaxDelay is the ceiling for
	// RETRY_BACKOFF; ExtendedMaxDelay is the longer ceiling used for rate
	// limits and RETRY_EXTENDED.
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	ExtendedMaxDelay time.Duration `yaml:"extended_max_delay"`

	// BreakerThreshold consecutive failures within BreakerWindow open the
	// circuit for an operation id; BreakerCooldown is how long it stays
	// open before probing again.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerWindow    time.Duration `yaml:"breaker_window"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`

	// AbortBackoffCap caps the bounded exponential backoff the engine
	// applies when recovery degrades to ABORT. The loop survives ABORT;
	// this only paces the restart.
	AbortBackoffCap time.Duration `yaml:"abort_backoff_cap"`
}

// DefaultRecoveryConfig returns the built-in recovery defaults.
func DefaultRecoveryConfig() *RecoveryConfig {
	return &RecoveryConfig{
		MaxRetries:       3,
		BaseDelay:        1 * time.Second,
		MaxDelay:         30 * time.Second,
		ExtendedMaxDelay: 2 * time.Minute,
		BreakerThreshold: 5,
		BreakerWindow:    1 * time.Minute,
		BreakerCooldown:  30 * time.Second,
		AbortBackoffCap:  60 * time.Second,
	}
}
