package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/claude-runner/claude-runner/pkg/config"
)

// ScriptedDriver replays canned responses in order. It backs the test
// suites of every package that drives conversations; it lives in the
// package proper so they all share one double. When the script runs
// out, the last response repeats.
type ScriptedDriver struct {
	// Respond, when set, overrides the response list entirely.
	// turn is zero-based across StartSession and Continue calls.
	Respond func(turn int, prompt string) (string, error)

	mu        sync.Mutex
	responses []string
	failures  map[int]error
	turn      int
	sessions  int
	sessionID string
	history   []Message
	prompts   []string
}

// NewScriptedDriver builds a driver that answers with the given
// responses, one per turn.
func NewScriptedDriver(responses ...string) *ScriptedDriver {
	return &ScriptedDriver{responses: responses, failures: map[int]error{}}
}

// FailAt makes the zero-based turn fail with err instead of
// answering. Chainable.
func (d *ScriptedDriver) FailAt(turn int, err error) *ScriptedDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[turn] = err
	return d
}

func (d *ScriptedDriver) StartSession(_ context.Context, systemContext, firstPrompt string) (*TurnResult, error) {
	d.mu.Lock()
	d.sessions++
	d.sessionID = fmt.Sprintf("scripted-%d", d.sessions)
	d.history = nil
	d.mu.Unlock()

	prompt := firstPrompt
	if systemContext != "" {
		prompt = systemContext + "\n\n" + firstPrompt
	}
	return d.answer(prompt)
}

func (d *ScriptedDriver) Continue(_ context.Context, prompt string) (*TurnResult, error) {
	d.mu.Lock()
	active := d.sessionID != ""
	d.mu.Unlock()
	if !active {
		return nil, ErrNoActiveSession
	}
	return d.answer(prompt)
}

func (d *ScriptedDriver) answer(prompt string) (*TurnResult, error) {
	d.mu.Lock()
	turn := d.turn
	d.turn++
	d.prompts = append(d.prompts, prompt)
	respond := d.Respond
	failure := d.failures[turn]
	var text string
	if len(d.responses) > 0 {
		idx := turn
		if idx >= len(d.responses) {
			idx = len(d.responses) - 1
		}
		text = d.responses[idx]
	}
	sessionID := d.sessionID
	d.mu.Unlock()

	if respond != nil {
		var err error
		text, err = respond(turn, prompt)
		if err != nil {
			return nil, err
		}
	} else if failure != nil {
		return nil, failure
	}

	now := time.Now()
	d.mu.Lock()
	d.history = append(d.history,
		Message{Role: RoleUser, Content: prompt, Timestamp: now},
		Message{Role: RoleAssistant, Content: text, Timestamp: now},
	)
	d.mu.Unlock()

	return &TurnResult{
		Text:      text,
		SessionID: sessionID,
		TokensIn:  len(prompt) / 4,
		TokensOut: len(text) / 4,
	}, nil
}

func (d *ScriptedDriver) HasActiveSession() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID != ""
}

func (d *ScriptedDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionID = ""
	d.history = nil
}

func (d *ScriptedDriver) History() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.history))
	copy(out, d.history)
	return out
}

// Prompts returns every prompt the driver has seen, in order.
func (d *ScriptedDriver) Prompts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.prompts))
	copy(out, d.prompts)
	return out
}

// Turns returns how many turns have been driven.
func (d *ScriptedDriver) Turns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.turn
}

// ScriptedFactory hands out drivers from a Build hook, recording every
// driver it created.
type ScriptedFactory struct {
	Build func(role config.Role) Driver

	mu      sync.Mutex
	created []Driver
}

func (f *ScriptedFactory) NewDriver(role config.Role) Driver {
	d := f.Build(role)
	f.mu.Lock()
	f.created = append(f.created, d)
	f.mu.Unlock()
	return d
}

// Created returns every driver the factory has produced.
func (f *ScriptedFactory) Created() []Driver {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Driver, len(f.created))
	copy(out, f.created)
	return out
}
