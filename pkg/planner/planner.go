// Package planner turns goals into executable plans by driving the
// planning agent conversation: initial plans, salvage sub-plans for
// blocked steps, and decomposition of complex steps. Parsing is
// forgiving; planning output problems degrade to best-effort plans
// instead of failing the run.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/claude-runner/claude-runner/pkg/agent"
	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/plan"
)

const (
	// maxSubPlanSteps caps a salvage sequence.
	maxSubPlanSteps = 4
	// maxDecomposeSteps caps a decomposition.
	maxDecomposeSteps = 5
)

// Planner drives the planning agent. Each call is a fresh one-shot
// conversation; the planner never accumulates session state.
type Planner struct {
	driver agent.Driver
	logger *slog.Logger
}

// New builds a planner on its own agent driver.
func New(factory agent.Factory) *Planner {
	return &Planner{
		driver: factory.NewDriver(config.RolePlanner),
		logger: slog.Default().With("component", "planner"),
	}
}

// CreatePlan asks the agent for a step plan and enriches it with
// dependency analysis. Fails only when the agent cannot be reached; a
// malformed response degrades to numbered-list extraction and, as the
// last resort, a single-step plan covering the whole goal.
func (p *Planner) CreatePlan(ctx context.Context, goal, goalContext, workdir string) (*plan.Plan, error) {
	contextBlock := ""
	if strings.TrimSpace(goalContext) != "" {
		contextBlock = "Context:\n" + goalContext + "\n\n"
	}
	prompt := fmt.Sprintf(planUserTemplate, goal, contextBlock, workdir)

	res, err := p.driver.StartSession(ctx, planSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("planning turn failed: %w", err)
	}

	parsed := ParsePlanResponse(res.Text)
	if parsed.Fallback {
		p.logger.Warn("Plan template missing, extracted numbered list",
			"steps", len(parsed.Steps))
	}
	if parsed.TotalSteps > 0 && parsed.TotalSteps != len(parsed.Steps) {
		p.logger.Warn("Declared step count differs from parsed steps",
			"declared", parsed.TotalSteps, "parsed", len(parsed.Steps))
	}
	if len(parsed.Steps) == 0 {
		p.logger.Warn("Unparseable plan response, using single-step plan")
		parsed.Steps = []*plan.Step{{
			Number:      "1",
			Description: "Complete the goal: " + goal,
			Complexity:  plan.ComplexityComplex,
			Status:      plan.StatusPending,
		}}
	}

	pl := plan.New(goal, parsed.Analysis, parsed.Steps)
	plan.Analyze(pl)
	if err := pl.Validate(); err != nil {
		// Renumbering makes this unreachable for parser output; guard
		// against future parser changes.
		return nil, fmt.Errorf("parsed plan invalid: %w", err)
	}
	return pl, nil
}

// CreateSubPlan asks for a salvage sequence for a blocked step. A nil
// SubPlan with nil error means the agent declined.
func (p *Planner) CreateSubPlan(ctx context.Context, blocked *plan.Step, reason, workdir string) (*plan.SubPlan, error) {
	prompt := fmt.Sprintf(subPlanUserTemplate, blocked.Description, reason, workdir)
	res, err := p.driver.StartSession(ctx, subPlanSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("sub-plan turn failed: %w", err)
	}

	steps := parseSubList(res.Text, subPlanRe)
	if len(steps) == 0 {
		p.logger.Info("Agent declined sub-plan", "step", blocked.Number)
		return nil, nil
	}
	if len(steps) > maxSubPlanSteps {
		steps = steps[:maxSubPlanSteps]
	}
	return &plan.SubPlan{
		ParentNumber: blocked.Number,
		Reason:       reason,
		Steps:        steps,
	}, nil
}

// DecomposeStep splits a complex or slow step into 2-5 leaves. A nil
// slice with nil error means the step stays as-is.
func (p *Planner) DecomposeStep(ctx context.Context, step *plan.Step, workdir string) ([]*plan.Step, error) {
	prompt := fmt.Sprintf(decomposeUserTemplate, step.Description, workdir)
	res, err := p.driver.StartSession(ctx, decomposeSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("decompose turn failed: %w", err)
	}

	steps := parseSubList(res.Text, substepsRe)
	if len(steps) < 2 {
		// One sub-step is a rename, not a split.
		p.logger.Info("Step not decomposed", "step", step.Number, "substeps", len(steps))
		return nil, nil
	}
	if len(steps) > maxDecomposeSteps {
		steps = steps[:maxDecomposeSteps]
	}
	return steps, nil
}
