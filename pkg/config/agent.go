package config

import "time"

// Role identifies one of the engine's agent conversations. Each role runs
// its own conversation with its own model and retry tuning.
type Role string

const (
	RoleWorker     Role = "worker"
	RoleSupervisor Role = "supervisor"
	RolePlanner    Role = "planner"
)

// RoleConfig holds the per-role driver tuning.
type RoleConfig struct {
	// Model is the primary model identifier passed to the agent binary.
	Model string `yaml:"model"`

	// FallbackModel is tried when a call with the primary model fails.
	FallbackModel string `yaml:"fallback_model"`

	// MaxRetries is the per-call retry budget for this role.
	MaxRetries int `yaml:"max_retries"`

	// Timeout bounds a single agent turn for this role.
	Timeout time.Duration `yaml:"timeout"`
}

// AgentConfig describes how to reach the external CLI agent.
type AgentConfig struct {
	// Binary is the agent executable resolved via PATH or an absolute path.
	Binary string `yaml:"binary"`

	// ExtraArgs are appended to every invocation, before the prompt.
	ExtraArgs []string `yaml:"extra_args"`

	// Masking controls redaction of secret-looking values in agent
	// output. On by default.
	Masking *MaskingConfig `yaml:"masking"`

	Worker     *RoleConfig `yaml:"worker"`
	Supervisor *RoleConfig `yaml:"supervisor"`
	Planner    *RoleConfig `yaml:"planner"`
}

// MaskingConfig tunes output masking. Agent output can quote whatever
// the agent read, including credential files, so redaction happens
// before the text reaches the event stream, logs, or session records.
type MaskingConfig struct {
	// Disabled turns output masking off entirely.
	Disabled bool `yaml:"disabled"`

	// Patterns are extra rules applied after the built-in set. Invalid
	// regexes are logged and skipped.
	Patterns []MaskPattern `yaml:"patterns"`
}

// MaskPattern is one user-supplied masking rule. An empty replacement
// masks matches with a generic marker.
type MaskPattern struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// ForRole returns the role config for the given role, nil if unknown.
func (c *AgentConfig) ForRole(role Role) *RoleConfig {
	switch role {
	case RoleWorker:
		return c.Worker
	case RoleSupervisor:
		return c.Supervisor
	case RolePlanner:
		return c.Planner
	default:
		return nil
	}
}

// DefaultAgentConfig returns the built-in agent defaults.
// The supervisor role uses a faster model with a shorter timeout since it
// only reads and scores; the worker gets the long leash.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Binary:  "claude",
		Masking: &MaskingConfig{},
		Worker: &RoleConfig{
			Model:         "sonnet",
			FallbackModel: "haiku",
			MaxRetries:    3,
			Timeout:       10 * time.Minute,
		},
		Supervisor: &RoleConfig{
			Model:         "haiku",
			FallbackModel: "sonnet",
			MaxRetries:    2,
			Timeout:       2 * time.Minute,
		},
		Planner: &RoleConfig{
			Model:         "sonnet",
			FallbackModel: "haiku",
			MaxRetries:    3,
			Timeout:       5 * time.Minute,
		},
	}
}
