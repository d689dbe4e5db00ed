package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path and merges it over the built-in
// defaults. Non-zero user values override defaults; unset values keep
// them. An empty path returns the pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	// Expand environment variables before parsing so values like
	// {{.HOME}}/state work in any section.
	data = ExpandEnv(data)

	user, err := decodeYAML(data)
	if err != nil {
		return nil, err
	}

	if err := mergeSections(cfg, user); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}
	return cfg, nil
}

// decodeYAML parses config YAML in two passes: yaml.v3 into a generic map,
// then mapstructure into the typed Config. The second pass exists for
// duration fields, which accept human-readable values ("30m", "2h") that
// yaml.v3 cannot decode into time.Duration on its own.
func decodeYAML(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	user := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     user,
		TagName:    "yaml",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return user, nil
}

// mergeSections merges each non-nil user section over the matching
// default section. Sections the user omitted stay at defaults.
func mergeSections(dst, user *Config) error {
	merge := func(name string, d, s any, skip bool) error {
		if skip {
			return nil
		}
		if err := mergo.Merge(d, s, mergo.WithOverride); err != nil {
			return fmt.Errorf("section %s: %w", name, err)
		}
		return nil
	}

	steps := []error{
		merge("agent", dst.Agent, user.Agent, user.Agent == nil),
		merge("engine", dst.Engine, user.Engine, user.Engine == nil),
		merge("supervisor", dst.Supervisor, user.Supervisor, user.Supervisor == nil),
		merge("verifier", dst.Verifier, user.Verifier, user.Verifier == nil),
		merge("memory", dst.Memory, user.Memory, user.Memory == nil),
		merge("recovery", dst.Recovery, user.Recovery, user.Recovery == nil),
		merge("state", dst.State, user.State, user.State == nil),
		merge("ui", dst.UI, user.UI, user.UI == nil),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	return nil
}
