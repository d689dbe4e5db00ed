package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the requested config file does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML indicates the config file could not be parsed.
	ErrInvalidYAML = errors.New("invalid YAML")
)

// ValidationError describes one rejected configuration value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config field %s: %s", e.Field, e.Reason)
}

// ValidationErrors aggregates all rejections from one Validate pass so the
// operator sees everything wrong at once.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d config validation errors:", len(e))
	for _, ve := range e {
		msg += "\n  - " + ve.Error()
	}
	return msg
}
