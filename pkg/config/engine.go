package config

import "time"

// EngineConfig controls the outer/inner control loops.
type EngineConfig struct {
	// TimeLimit is the wall-clock budget for the whole run. The absolute
	// deadline is derived from it at start time.
	TimeLimit time.Duration `yaml:"time_limit"`

	// MaxCycles bounds the outer plan-execute-verify loop. Each cycle after
	// the first re-plans against the gaps reported by goal verification.
	MaxCycles int `yaml:"max_cycles"`

	// MinTurnDelay and MaxTurnDelay clamp the adaptive sleep between agent
	// turns. The delay shrinks on consecutive clean supervision results and
	// grows on errors and interventions.
	MinTurnDelay time.Duration `yaml:"min_turn_delay"`
	MaxTurnDelay time.Duration `yaml:"max_turn_delay"`

	// SlowStepThreshold is how long a step may stay in_progress before the
	// planner is asked to decompose it.
	SlowStepThreshold time.Duration `yaml:"slow_step_threshold"`

	// GoalReminderEvery re-injects the goal into the follow-up prompt every
	// N iterations. ProgressCheckEvery asks the agent for a progress
	// estimate every N iterations.
	GoalReminderEvery  int `yaml:"goal_reminder_every"`
	ProgressCheckEvery int `yaml:"progress_check_every"`

	// Parallel enables concurrent execution of independent plan steps.
	// MaxParallelWorkers bounds the driver pool.
	Parallel           bool `yaml:"parallel"`
	MaxParallelWorkers int  `yaml:"max_parallel_workers"`

	// MaxFalseClaims is how many rejected goal-completion claims are
	// tolerated before an escalation event is emitted. The run continues
	// either way.
	MaxFalseClaims int `yaml:"max_false_claims"`

	// ShutdownGrace is how long an in-flight agent turn may run after the
	// operator requests shutdown.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// EventHistoryLimit is the sliding window of events kept in memory for
	// catch-up delivery.
	EventHistoryLimit int `yaml:"event_history_limit"`
}

// DefaultEngineConfig returns the built-in engine defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		TimeLimit:          2 * time.Hour,
		MaxCycles:          10,
		MinTurnDelay:       2 * time.Second,
		MaxTurnDelay:       30 * time.Second,
		SlowStepThreshold:  10 * time.Minute,
		GoalReminderEvery:  10,
		ProgressCheckEvery: 5,
		Parallel:           false,
		MaxParallelWorkers: 2,
		MaxFalseClaims:     3,
		ShutdownGrace:      30 * time.Second,
		EventHistoryLimit:  500,
	}
}
