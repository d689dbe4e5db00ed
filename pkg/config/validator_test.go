package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultsPass(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty agent binary",
			mutate:  func(c *Config) { c.Agent.Binary = "" },
			wantErr: "agent.binary",
		},
		{
			name:    "missing role config",
			mutate:  func(c *Config) { c.Agent.Planner = nil },
			wantErr: "agent.planner",
		},
		{
			name:    "zero role timeout",
			mutate:  func(c *Config) { c.Agent.Worker.Timeout = 0 },
			wantErr: "agent.worker.timeout",
		},
		{
			name:    "negative time limit",
			mutate:  func(c *Config) { c.Engine.TimeLimit = -1 },
			wantErr: "engine.time_limit",
		},
		{
			name:    "max delay below min delay",
			mutate:  func(c *Config) { c.Engine.MaxTurnDelay = c.Engine.MinTurnDelay - 1 },
			wantErr: "engine.max_turn_delay",
		},
		{
			name:    "zero parallel workers",
			mutate:  func(c *Config) { c.Engine.MaxParallelWorkers = 0 },
			wantErr: "engine.max_parallel_workers",
		},
		{
			name:    "keep_recent below filter anchors",
			mutate:  func(c *Config) { c.Memory.KeepRecent = 2 },
			wantErr: "memory.keep_recent",
		},
		{
			name:    "compress threshold not above keep_recent",
			mutate:  func(c *Config) { c.Memory.CompressThreshold = c.Memory.KeepRecent },
			wantErr: "memory.compress_threshold",
		},
		{
			name:    "extended ceiling below max delay",
			mutate:  func(c *Config) { c.Recovery.ExtendedMaxDelay = c.Recovery.MaxDelay - 1 },
			wantErr: "recovery.extended_max_delay",
		},
		{
			name:    "empty state dir",
			mutate:  func(c *Config) { c.State.Dir = "" },
			wantErr: "state.dir",
		},
		{
			name:    "ui port out of range",
			mutate:  func(c *Config) { c.UI.Port = 70000 },
			wantErr: "ui.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Agent.Binary = ""
	cfg.Engine.MaxCycles = 0
	cfg.UI.Port = 0

	err := Validate(cfg)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
	assert.True(t, strings.HasPrefix(err.Error(), "3 config validation errors:"))
}
