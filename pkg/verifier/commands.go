package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// CommandResult records one validation or smoke command run.
type CommandResult struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Claimed  bool          `json:"claimed,omitempty"`
	Duration time.Duration `json:"duration"`
}

const (
	commandOutputTail = 2000
	smokeCommandCap   = 3
)

var makefileTestRe = regexp.MustCompile(`(?m)^test\s*:`)

// runCommand executes one command line in dir with stdin closed and a
// combined output buffer. A non-nil error means the command never ran.
func runCommand(ctx context.Context, dir, cmdline string) (string, int, error) {
	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return "", 0, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return buf.String(), exitErr.ExitCode(), nil
		}
		return buf.String(), -1, err
	}
	return buf.String(), 0, nil
}

// validate is layer 3. Agent-claimed commands are preferred, capped,
// and authoritative: the first non-zero exit fails the layer. Detected
// commands are advisory only, so a pre-existing broken test suite does
// not reject every step. No runnable command means the layer passes.
func (v *Verifier) validate(ctx context.Context, ev *Evidence) ([]CommandResult, *CommandResult) {
	results, failed := v.validateClaimed(ctx, ev)
	if len(results) > 0 || failed != nil {
		return results, failed
	}

	for _, cmdline := range detectProjectCommands(v.workdir) {
		res := v.runOne(ctx, cmdline, v.cfg.CommandTimeout)
		results = append(results, res)
	}
	return results, nil
}

// validateClaimed runs only the commands the response itself claimed,
// capped. The first non-zero exit fails; skipped launches do not.
func (v *Verifier) validateClaimed(ctx context.Context, ev *Evidence) ([]CommandResult, *CommandResult) {
	claimed := append(append([]string{}, ev.TestCommands...), ev.BuildCommands...)
	if limit := v.cfg.MaxClaimedCommands; limit > 0 && len(claimed) > limit {
		claimed = claimed[:limit]
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	var results []CommandResult
	for _, cmdline := range claimed {
		res := v.runOne(ctx, cmdline, v.cfg.CommandTimeout)
		res.Claimed = true
		results = append(results, res)
		if !res.Skipped && res.ExitCode != 0 {
			failed := res
			return results, &failed
		}
	}
	return results, nil
}

func (v *Verifier) runOne(parent context.Context, cmdline string, timeout time.Duration) CommandResult {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	output, code, err := v.run(ctx, v.workdir, cmdline)
	res := CommandResult{
		Command:  cmdline,
		ExitCode: code,
		Output:   tail(output, commandOutputTail),
		Duration: time.Since(start),
	}
	if err != nil {
		// Launch failures are environment problems, not evidence
		// against the claim.
		v.logger.Warn("Validation command did not launch", "command", cmdline, "error", err)
		res.Skipped = true
		res.ExitCode = 0
	}
	return res
}

// detectProjectCommands inspects the working directory for the three
// recognized project shapes.
func detectProjectCommands(workdir string) []string {
	var commands []string
	if hasNpmTestScript(workdir) {
		commands = append(commands, "npm test")
	}
	if hasPytestMarkers(workdir) {
		commands = append(commands, "pytest")
	}
	if hasMakefileTestTarget(workdir) {
		commands = append(commands, "make test")
	}
	return commands
}

// hasNpmTestScript reports a package.json with a real test script, not
// npm init's "no test specified" stub.
func hasNpmTestScript(workdir string) bool {
	data, err := os.ReadFile(filepath.Join(workdir, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	script := pkg.Scripts["test"]
	return script != "" && !strings.Contains(script, "no test specified")
}

func hasPytestMarkers(workdir string) bool {
	for _, name := range []string{"pytest.ini", "conftest.py"} {
		if _, err := os.Stat(filepath.Join(workdir, name)); err == nil {
			return true
		}
	}
	if data, err := os.ReadFile(filepath.Join(workdir, "pyproject.toml")); err == nil {
		if strings.Contains(string(data), "[tool.pytest") {
			return true
		}
	}
	if data, err := os.ReadFile(filepath.Join(workdir, "setup.cfg")); err == nil {
		if strings.Contains(string(data), "[tool:pytest]") {
			return true
		}
	}
	return false
}

func hasMakefileTestTarget(workdir string) bool {
	for _, name := range []string{"Makefile", "makefile"} {
		if data, err := os.ReadFile(filepath.Join(workdir, name)); err == nil {
			return makefileTestRe.Match(data)
		}
	}
	return false
}

// SmokeReport is the cycle-end health check outcome.
type SmokeReport struct {
	Results []CommandResult `json:"results,omitempty"`
	Passed  bool            `json:"passed"`
	Summary string          `json:"summary"`
}

// SmokeTest runs the curated build/test invocations for whatever
// project shapes the working directory shows, independent of any
// completion claim. No applicable command is a pass.
func (v *Verifier) SmokeTest(ctx context.Context, goal string) *SmokeReport {
	commands := v.smokeCommands(goal)
	if len(commands) == 0 {
		v.noteSmoke(true)
		return &SmokeReport{Passed: true, Summary: "none applicable"}
	}

	report := &SmokeReport{Passed: true}
	ran, failedCount, skippedCount := 0, 0, 0
	for _, cmdline := range commands {
		res := v.runOne(ctx, cmdline, v.cfg.SmokeTimeout)
		report.Results = append(report.Results, res)
		if res.Skipped {
			skippedCount++
			continue
		}
		ran++
		if res.ExitCode != 0 {
			failedCount++
			report.Passed = false
		}
	}
	if ran == 0 {
		report.Passed = true
		report.Summary = "none applicable"
	} else {
		report.Summary = fmt.Sprintf("%d ran, %d failed, %d skipped", ran, failedCount, skippedCount)
	}
	v.noteSmoke(report.Passed)
	return report
}

// smokeCommands picks invocations by project marker, with goal
// keywords widening the set.
func (v *Verifier) smokeCommands(goal string) []string {
	var commands []string
	lower := strings.ToLower(goal)
	wantsTests := strings.Contains(lower, "test")

	if _, err := os.Stat(filepath.Join(v.workdir, "go.mod")); err == nil {
		commands = append(commands, "go build ./...")
		if wantsTests {
			commands = append(commands, "go test ./...")
		}
	}
	if _, err := os.Stat(filepath.Join(v.workdir, "Cargo.toml")); err == nil {
		commands = append(commands, "cargo check")
	}
	if hasNpmTestScript(v.workdir) {
		commands = append(commands, "npm test")
	}
	if hasPytestMarkers(v.workdir) {
		commands = append(commands, "pytest")
	}
	if hasMakefileTestTarget(v.workdir) {
		commands = append(commands, "make test")
	}

	if len(commands) > smokeCommandCap {
		commands = commands[:smokeCommandCap]
	}
	return commands
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
