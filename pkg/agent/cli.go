package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/masking"
)

// stderrTail bounds how much captured stderr lands in error messages.
const stderrTail = 512

// CLIDriver runs the agent binary as a subprocess per turn, in
// non-interactive print mode with JSON output. Conversation continuity
// comes from the binary's own --resume support keyed by the session id
// it returned on the first turn.
type CLIDriver struct {
	binary    string
	extraArgs []string
	model     string
	fallback  string
	timeout   time.Duration
	workdir   string
	masker    *masking.Masker
	logger    *slog.Logger

	// runner is swapped in tests; production uses runCommand.
	runner func(ctx context.Context, workdir, binary string, args []string, stdin string) ([]byte, []byte, error)

	mu        sync.Mutex
	sessionID string
	history   []Message
}

// NewCLIDriver builds a driver for one role. role supplies the model
// pair and per-call timeout; binary and extraArgs come from the
// shared agent section. masker redacts secret-looking values from
// everything the binary produces; nil disables masking.
func NewCLIDriver(role *config.RoleConfig, binary string, extraArgs []string, workdir string, masker *masking.Masker) *CLIDriver {
	return &CLIDriver{
		binary:    binary,
		extraArgs: extraArgs,
		model:     role.Model,
		fallback:  role.FallbackModel,
		timeout:   role.Timeout,
		workdir:   workdir,
		masker:    masker,
		logger:    slog.Default().With("component", "agent.cli", "model", role.Model),
		runner:    runCommand,
	}
}

func (d *CLIDriver) StartSession(ctx context.Context, systemContext, firstPrompt string) (*TurnResult, error) {
	d.Reset()
	prompt := firstPrompt
	if systemContext != "" {
		prompt = systemContext + "\n\n" + firstPrompt
	}
	return d.turn(ctx, prompt, "")
}

func (d *CLIDriver) Continue(ctx context.Context, prompt string) (*TurnResult, error) {
	d.mu.Lock()
	resume := d.sessionID
	d.mu.Unlock()
	if resume == "" {
		return nil, ErrNoActiveSession
	}
	return d.turn(ctx, prompt, resume)
}

func (d *CLIDriver) HasActiveSession() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID != ""
}

func (d *CLIDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionID = ""
	d.history = nil
}

func (d *CLIDriver) History() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.history))
	copy(out, d.history)
	return out
}

func (d *CLIDriver) turn(ctx context.Context, prompt, resume string) (*TurnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := d.invoke(ctx, prompt, resume, d.model)
	if err != nil && d.fallback != "" && d.fallback != d.model && ctx.Err() == nil {
		d.logger.Warn("Primary model turn failed, retrying with fallback",
			"fallback", d.fallback, "error", err)
		result, err = d.invoke(ctx, prompt, resume, d.fallback)
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if result.SessionID != "" {
		d.sessionID = result.SessionID
	}
	now := time.Now()
	d.history = append(d.history,
		Message{Role: RoleUser, Content: prompt, Timestamp: now},
		Message{Role: RoleAssistant, Content: result.Text, Timestamp: now},
	)
	d.mu.Unlock()
	return result, nil
}

func (d *CLIDriver) invoke(ctx context.Context, prompt, resume, model string) (*TurnResult, error) {
	args := []string{"--print", "--output-format", "json"}
	if model != "" {
		args = append(args, "--model", model)
	}
	if resume != "" {
		args = append(args, "--resume", resume)
	}
	args = append(args, d.extraArgs...)

	stdout, stderr, err := d.runner(ctx, d.workdir, d.binary, args, prompt)
	if err != nil {
		if tail := d.masker.Mask(tailOf(stderr)); tail != "" {
			return nil, fmt.Errorf("agent turn failed: %w: %s", err, tail)
		}
		return nil, fmt.Errorf("agent turn failed: %w", err)
	}
	return parseTurnOutput(stdout, resume, d.masker)
}

// cliResult is the shape of the binary's --output-format json record.
type cliResult struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	IsError   bool   `json:"is_error"`
	Usage     struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// parseTurnOutput decodes the JSON result record, falling back to the
// raw output when the binary emitted plain text. All text leaving here,
// including error lines, passes through the masker.
func parseTurnOutput(stdout []byte, resume string, masker *masking.Masker) (*TurnResult, error) {
	var res cliResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &res); err != nil {
		text := strings.TrimSpace(string(stdout))
		if text == "" {
			return nil, fmt.Errorf("agent produced no output")
		}
		return &TurnResult{Text: masker.Mask(text), SessionID: resume}, nil
	}
	if res.IsError {
		return nil, fmt.Errorf("agent returned error result: %s", masker.Mask(firstLine(res.Result)))
	}
	sessionID := res.SessionID
	if sessionID == "" {
		sessionID = resume
	}
	return &TurnResult{
		Text:      masker.Mask(res.Result),
		SessionID: sessionID,
		TokensIn:  res.Usage.InputTokens,
		TokensOut: res.Usage.OutputTokens,
	}, nil
}

func runCommand(ctx context.Context, workdir, binary string, args []string, stdin string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = workdir
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func tailOf(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
