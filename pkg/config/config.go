// Package config defines the engine configuration: one section per
// component, built-in defaults, an optional YAML overlay, and load-time
// validation. No package-level state; the loaded Config is passed
// explicitly into every constructor that needs it.
package config

import (
	"fmt"
	"log/slog"
)

// Config is the root configuration for a run. Every section is non-nil
// after Initialize.
type Config struct {
	Agent      *AgentConfig      `yaml:"agent"`
	Engine     *EngineConfig     `yaml:"engine"`
	Supervisor *SupervisorConfig `yaml:"supervisor"`
	Verifier   *VerifierConfig   `yaml:"verifier"`
	Memory     *MemoryConfig     `yaml:"memory"`
	Recovery   *RecoveryConfig   `yaml:"recovery"`
	State      *StateConfig      `yaml:"state"`
	UI         *UIConfig         `yaml:"ui"`
}

// Default returns a fully populated configuration with built-in defaults
// for every section.
func Default() *Config {
	return &Config{
		Agent:      DefaultAgentConfig(),
		Engine:     DefaultEngineConfig(),
		Supervisor: DefaultSupervisorConfig(),
		Verifier:   DefaultVerifierConfig(),
		Memory:     DefaultMemoryConfig(),
		Recovery:   DefaultRecoveryConfig(),
		State:      DefaultStateConfig(),
		UI:         DefaultUIConfig(),
	}
}

// Initialize loads, validates, and returns ready-to-use configuration.
// path may be empty, in which case the built-in defaults are used as-is.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Read the YAML file (if any) and expand environment variables
//  3. Merge user values over the defaults
//  4. Validate all sections
func Initialize(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Info("Configuration initialized",
		"config_file", path,
		"agent_binary", cfg.Agent.Binary,
		"time_limit", cfg.Engine.TimeLimit,
		"parallel_workers", cfg.Engine.MaxParallelWorkers)

	return cfg, nil
}
