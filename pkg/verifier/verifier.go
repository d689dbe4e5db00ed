// Package verifier enforces completion claims with three layers:
// parse the agent's evidence, stat the claimed artifacts, and run the
// claimed validation commands. A separate smoke-test phase checks
// project health at cycle end independent of any claim.
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/events"
)

// Layer names, used in events and rejection prompts.
const (
	LayerEvidence   = "evidence"
	LayerArtifacts  = "artifacts"
	LayerValidation = "validation"
)

// Result is the outcome of one claim verification.
type Result struct {
	Passed          bool            `json:"passed"`
	FailedLayer     string          `json:"failed_layer,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Evidence        *Evidence       `json:"evidence,omitempty"`
	Artifacts       *ArtifactReport `json:"artifacts,omitempty"`
	Commands        []CommandResult `json:"commands,omitempty"`
	RejectionPrompt string          `json:"-"`
}

// Record is one bounded-history entry.
type Record struct {
	Objective   string    `json:"objective"`
	Passed      bool      `json:"passed"`
	FailedLayer string    `json:"failed_layer,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Verifier checks completion claims against the working directory.
type Verifier struct {
	cfg     *config.VerifierConfig
	workdir string
	logger  *slog.Logger

	// run is the command executor, swapped by tests.
	run func(ctx context.Context, dir, cmdline string) (string, int, error)

	mu            sync.Mutex
	history       []Record
	checked       int
	rejected      int
	filesVerified int
	filesMissing  int
	smokeRuns     int
	smokeFailures int
}

// New builds a verifier rooted at workdir.
func New(cfg *config.VerifierConfig, workdir string) *Verifier {
	return &Verifier{
		cfg:     cfg,
		workdir: workdir,
		logger:  slog.Default().With("component", "verifier"),
		run:     runCommand,
	}
}

// VerifyClaim runs the three layers over a challenge response. The
// returned Result always carries whatever evidence was parsed; on
// failure it also carries the rejection prompt to send back.
func (v *Verifier) VerifyClaim(ctx context.Context, objective, challengeResponse string) *Result {
	ev := parseEvidence(challengeResponse, v.cfg.SnippetPrefixLen)
	res := &Result{Evidence: ev}

	if ok, reason := evaluateSufficiency(ev, challengeResponse); !ok {
		return v.finish(objective, res, LayerEvidence, reason)
	}

	res.Artifacts = checkArtifacts(v.workdir, ev.Files)
	if res.Artifacts.failed() {
		return v.finish(objective, res, LayerArtifacts, res.Artifacts.describe())
	}

	results, failed := v.validate(ctx, ev)
	res.Commands = results
	if failed != nil {
		reason := fmt.Sprintf("%q exited %d", failed.Command, failed.ExitCode)
		if failed.Output != "" {
			reason += "\n" + failed.Output
		}
		return v.finish(objective, res, LayerValidation, reason)
	}

	res.Passed = true
	return v.finish(objective, res, "", "")
}

// VerifyStepClaim enforces the artifact and validation layers over a
// step-completion response. Whether the step's meaning was satisfied is
// the supervisor's call; this only vets what the response itself
// claims, so a response claiming no files and no commands passes.
// Detected project commands are not run for step claims.
func (v *Verifier) VerifyStepClaim(ctx context.Context, objective, response string) *Result {
	ev := parseEvidence(response, v.cfg.SnippetPrefixLen)
	res := &Result{Evidence: ev}

	res.Artifacts = checkArtifacts(v.workdir, ev.Files)
	if res.Artifacts.failed() {
		return v.finish(objective, res, LayerArtifacts, res.Artifacts.describe())
	}

	results, failed := v.validateClaimed(ctx, ev)
	res.Commands = results
	if failed != nil {
		reason := fmt.Sprintf("%q exited %d", failed.Command, failed.ExitCode)
		if failed.Output != "" {
			reason += "\n" + failed.Output
		}
		return v.finish(objective, res, LayerValidation, reason)
	}

	res.Passed = true
	return v.finish(objective, res, "", "")
}

func (v *Verifier) finish(objective string, res *Result, layer, reason string) *Result {
	if layer != "" {
		res.Passed = false
		res.FailedLayer = layer
		res.Reason = reason
		res.RejectionPrompt = rejectionPrompt(objective, layer, reason)
		v.logger.Info("Completion claim rejected", "objective", objective, "layer", layer, "reason", reason)
	} else {
		v.logger.Info("Completion claim verified", "objective", objective,
			"files", len(res.Evidence.Files), "commands", len(res.Commands))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.checked++
	if !res.Passed {
		v.rejected++
	}
	if res.Artifacts != nil {
		v.filesVerified += len(res.Artifacts.Verified)
		v.filesMissing += len(res.Artifacts.Missing)
	}
	v.history = append(v.history, Record{
		Objective:   objective,
		Passed:      res.Passed,
		FailedLayer: layer,
		Reason:      reason,
		CheckedAt:   time.Now(),
	})
	if limit := v.cfg.HistoryLimit; limit > 0 && len(v.history) > limit {
		v.history = v.history[len(v.history)-limit:]
	}
	return res
}

func (v *Verifier) noteSmoke(passed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.smokeRuns++
	if !passed {
		v.smokeFailures++
	}
}

// History returns a copy of the bounded verification history.
func (v *Verifier) History() []Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Record, len(v.history))
	copy(out, v.history)
	return out
}

// Stats summarizes verifier activity for the final report.
func (v *Verifier) Stats() events.VerifierStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return events.VerifierStats{
		ClaimsChecked:  v.checked,
		ClaimsRejected: v.rejected,
		FilesVerified:  v.filesVerified,
		FilesMissing:   v.filesMissing,
	}
}
