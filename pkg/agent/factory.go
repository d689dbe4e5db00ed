package agent

import (
	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/masking"
)

// Factory creates drivers by role. The engine asks for fresh drivers
// whenever it needs an independent conversation (parallel workers,
// post-abort resets), so implementations must be cheap to call.
type Factory interface {
	NewDriver(role config.Role) Driver
}

// CLIFactory builds CLIDrivers from the agent configuration section.
// The masker is compiled once here and shared by every driver.
type CLIFactory struct {
	cfg     *config.AgentConfig
	workdir string
	masker  *masking.Masker
}

// NewCLIFactory returns a factory bound to one working directory.
func NewCLIFactory(cfg *config.AgentConfig, workdir string) *CLIFactory {
	return &CLIFactory{cfg: cfg, workdir: workdir, masker: masking.New(cfg.Masking)}
}

func (f *CLIFactory) NewDriver(role config.Role) Driver {
	return NewCLIDriver(f.cfg.ForRole(role), f.cfg.Binary, f.cfg.ExtraArgs, f.workdir, f.masker)
}
