package config

import "fmt"

// Validate checks every section for out-of-range values. All problems are
// collected into a single ValidationErrors result.
func Validate(cfg *Config) error {
	v := &validator{}

	v.validateAgent(cfg.Agent)
	v.validateEngine(cfg.Engine)
	v.validateSupervisor(cfg.Supervisor)
	v.validateVerifier(cfg.Verifier)
	v.validateMemory(cfg.Memory)
	v.validateRecovery(cfg.Recovery)
	v.validateState(cfg.State)
	v.validateUI(cfg.UI)

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) addError(field, reason string) {
	v.errs = append(v.errs, &ValidationError{Field: field, Reason: reason})
}

func (v *validator) validateAgent(c *AgentConfig) {
	if c == nil {
		v.addError("agent", "section missing")
		return
	}
	if c.Binary == "" {
		v.addError("agent.binary", "must not be empty")
	}
	for _, role := range []Role{RoleWorker, RoleSupervisor, RolePlanner} {
		rc := c.ForRole(role)
		if rc == nil {
			v.addError(fmt.Sprintf("agent.%s", role), "role config missing")
			continue
		}
		if rc.Model == "" {
			v.addError(fmt.Sprintf("agent.%s.model", role), "must not be empty")
		}
		if rc.MaxRetries < 0 {
			v.addError(fmt.Sprintf("agent.%s.max_retries", role), "must be >= 0")
		}
		if rc.Timeout <= 0 {
			v.addError(fmt.Sprintf("agent.%s.timeout", role), "must be positive")
		}
	}
}

func (v *validator) validateEngine(c *EngineConfig) {
	if c == nil {
		v.addError("engine", "section missing")
		return
	}
	if c.TimeLimit <= 0 {
		v.addError("engine.time_limit", "must be positive")
	}
	if c.MaxCycles < 1 {
		v.addError("engine.max_cycles", "must be >= 1")
	}
	if c.MinTurnDelay < 0 {
		v.addError("engine.min_turn_delay", "must be >= 0")
	}
	if c.MaxTurnDelay < c.MinTurnDelay {
		v.addError("engine.max_turn_delay", "must be >= min_turn_delay")
	}
	if c.MaxParallelWorkers < 1 {
		v.addError("engine.max_parallel_workers", "must be >= 1")
	}
	if c.MaxFalseClaims < 1 {
		v.addError("engine.max_false_claims", "must be >= 1")
	}
	if c.EventHistoryLimit < 1 {
		v.addError("engine.event_history_limit", "must be >= 1")
	}
}

func (v *validator) validateSupervisor(c *SupervisorConfig) {
	if c == nil {
		v.addError("supervisor", "section missing")
		return
	}
	if c.AssessmentCacheSize < 0 {
		v.addError("supervisor.assessment_cache_size", "must be >= 0")
	}
	if c.ScoreHistoryLimit < 1 {
		v.addError("supervisor.score_history_limit", "must be >= 1")
	}
	if c.RecentActionWindow < 1 {
		v.addError("supervisor.recent_action_window", "must be >= 1")
	}
}

func (v *validator) validateVerifier(c *VerifierConfig) {
	if c == nil {
		v.addError("verifier", "section missing")
		return
	}
	if c.CommandTimeout <= 0 {
		v.addError("verifier.command_timeout", "must be positive")
	}
	if c.SmokeTimeout <= 0 {
		v.addError("verifier.smoke_timeout", "must be positive")
	}
	if c.MaxClaimedCommands < 0 {
		v.addError("verifier.max_claimed_commands", "must be >= 0")
	}
	if c.HistoryLimit < 1 {
		v.addError("verifier.history_limit", "must be >= 1")
	}
}

func (v *validator) validateMemory(c *MemoryConfig) {
	if c == nil {
		v.addError("memory", "section missing")
		return
	}
	if c.MaxContextTokens < 100 {
		v.addError("memory.max_context_tokens", "must be >= 100")
	}
	if c.MaxContextLength < 500 {
		v.addError("memory.max_context_length", "must be >= 500")
	}
	if c.KeepRecent < 4 {
		// The importance filter pins the first message plus the last three;
		// keeping fewer than that would drop pinned messages.
		v.addError("memory.keep_recent", "must be >= 4")
	}
	if c.CompressThreshold <= c.KeepRecent {
		v.addError("memory.compress_threshold", "must be > keep_recent")
	}
	if c.DuplicateWindow < 1 {
		v.addError("memory.duplicate_window", "must be >= 1")
	}
	if c.TokenHistoryLimit < 1 {
		v.addError("memory.token_history_limit", "must be >= 1")
	}
	if c.DecisionLogLimit < 1 {
		v.addError("memory.decision_log_limit", "must be >= 1")
	}
}

func (v *validator) validateRecovery(c *RecoveryConfig) {
	if c == nil {
		v.addError("recovery", "section missing")
		return
	}
	if c.MaxRetries < 0 {
		v.addError("recovery.max_retries", "must be >= 0")
	}
	if c.BaseDelay <= 0 {
		v.addError("recovery.base_delay", "must be positive")
	}
	if c.MaxDelay < c.BaseDelay {
		v.addError("recovery.max_delay", "must be >= base_delay")
	}
	if c.ExtendedMaxDelay < c.MaxDelay {
		v.addError("recovery.extended_max_delay", "must be >= max_delay")
	}
	if c.BreakerThreshold < 1 {
		v.addError("recovery.breaker_threshold", "must be >= 1")
	}
	if c.BreakerWindow <= 0 {
		v.addError("recovery.breaker_window", "must be positive")
	}
	if c.BreakerCooldown <= 0 {
		v.addError("recovery.breaker_cooldown", "must be positive")
	}
	if c.AbortBackoffCap <= 0 {
		v.addError("recovery.abort_backoff_cap", "must be positive")
	}
}

func (v *validator) validateState(c *StateConfig) {
	if c == nil {
		v.addError("state", "section missing")
		return
	}
	if c.Dir == "" {
		v.addError("state.dir", "must not be empty")
	}
	if c.AutoSaveInterval <= 0 {
		v.addError("state.auto_save_interval", "must be positive")
	}
	if c.CheckpointRetention < 1 {
		v.addError("state.checkpoint_retention", "must be >= 1")
	}
	if c.ResumableWindow <= 0 {
		v.addError("state.resumable_window", "must be positive")
	}
	if c.PromptCacheSize < 0 {
		v.addError("state.prompt_cache_size", "must be >= 0")
	}
}

func (v *validator) validateUI(c *UIConfig) {
	if c == nil {
		v.addError("ui", "section missing")
		return
	}
	if c.Port < 1 || c.Port > 65535 {
		v.addError("ui.port", "must be in [1, 65535]")
	}
}
