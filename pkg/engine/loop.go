package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/claude-runner/claude-runner/pkg/agent"
	"github.com/claude-runner/claude-runner/pkg/events"
	"github.com/claude-runner/claude-runner/pkg/plan"
	"github.com/claude-runner/claude-runner/pkg/recovery"
	"github.com/claude-runner/claude-runner/pkg/supervisor"
	"github.com/claude-runner/claude-runner/pkg/verifier"
)

// cycleResult is how one inner execution cycle ended.
type cycleResult int

const (
	// cyclePlanDone: every top-level step reached a terminal status.
	cyclePlanDone cycleResult = iota
	// cycleClaimAccepted: a goal-completion claim survived verification.
	cycleClaimAccepted
	cycleInterrupted
	cycleTimeUp
	cycleDrift
)

const stepResultMax = 200

// runCycle drives the worker through the current plan one turn at a
// time until the plan is done, a goal claim verifies, time runs out,
// the operator stops the run, or the supervisor declares drift. Agent
// failures never end a cycle; they restart the session and continue.
func (e *Engine) runCycle(ctx context.Context) cycleResult {
	for {
		if e.interrupted() {
			return cycleInterrupted
		}
		if e.timeLeft() <= 0 {
			completed, total := e.pl.Progress()
			e.pub.TimeExhausted(e.elapsed(), completed, total)
			return cycleTimeUp
		}
		if e.pl.IsComplete() {
			return cyclePlanDone
		}
		current := e.pl.CurrentStep()
		if current == nil {
			return cyclePlanDone
		}

		if e.maybeDecompose(ctx, current) {
			continue
		}

		if e.cfg.Engine.Parallel {
			if batch := e.filterBatch(); len(batch) >= 2 {
				e.runBatch(ctx, batch)
				continue
			}
		}

		if current.Status == plan.StatusPending || current.Status == plan.StatusBlocked {
			e.pl.Start(current.Number)
			_ = e.store.UpdateStepProgress(current.Number, plan.StatusInProgress, "")
		}

		queued := e.drainPrompts()
		turnStart := e.now()
		res, err := e.driveTurn(ctx, func() string { return e.buildIterationPrompt(current, queued) })
		if err != nil {
			if cr, done := e.handleTurnError(ctx, err, current); done {
				return cr
			}
			continue
		}
		e.abortStreak = 0
		e.iterations++

		sig := DetectSignals(res.Text)
		if dup, occurrences := e.mem.NoteResponse(res.Text); dup {
			e.logger.Warn("Duplicate response detected", "occurrences", occurrences)
			e.pub.DuplicateResponseDetected(occurrences)
			e.sup.NoteDuplicate()
		}

		assessment := e.superviseTurn(ctx, res.Text, current)
		if assessment.Action == supervisor.ActionAbort {
			e.pub.Escalation("ABORT", assessment.Reason, e.sup.ConsecutiveIssues())
			return cycleDrift
		}
		e.noteAction(current, sig)

		cr, done := e.processSignals(ctx, sig, res.Text, current)
		e.pub.IterationComplete(events.IterationPayload{
			Iteration: e.iterations,
			Cycle:     e.cycle,
			Step:      current.Number,
			Score:     assessment.Score,
			Action:    string(assessment.Action),
			TokensIn:  res.TokensIn,
			TokensOut: res.TokensOut,
			Duration:  e.now().Sub(turnStart).Round(time.Millisecond).String(),
			TimeLeft:  e.timeLeft().Round(time.Second).String(),
		})
		if done {
			return cr
		}
		e.pace(ctx)
	}
}

// buildIterationPrompt assembles the next worker turn: queued coaching
// first, then urgency, periodic reminders, the memory context block,
// and the work order. A fresh session also gets the plan checklist.
func (e *Engine) buildIterationPrompt(st *plan.Step, queued []string) string {
	var parts []string
	parts = append(parts, queued...)

	if !e.worker.HasActiveSession() {
		parts = append(parts, "Plan:\n"+planOutline(e.pl))
	}
	if tp := timePressure(e.timeLeft()); tp != "" {
		parts = append(parts, tp)
	}
	n := e.iterations + 1
	if every := e.cfg.Engine.GoalReminderEvery; every > 0 && n%every == 0 {
		parts = append(parts, goalReminder(e.goal.Statement, e.goal.SubGoals))
	}
	if every := e.cfg.Engine.ProgressCheckEvery; every > 0 && n%every == 0 {
		parts = append(parts, progressCheckLine)
	}

	completed, total := e.pl.Progress()
	parts = append(parts, e.mem.BuildContext(e.goal.Statement, st.Number+": "+st.Description, completed, total))
	parts = append(parts, workOrder(st))
	return joinPrompt(parts)
}

// driveTurn sends one prompt through the recovery layer. The prompt is
// rebuilt per attempt so a context trim is reflected in the retry. On
// success the exchange lands in memory and the agent session id is
// persisted for resume.
func (e *Engine) driveTurn(ctx context.Context, build func() string) (*agent.TurnResult, error) {
	var res *agent.TurnResult
	var prompt string
	err := e.rec.ExecuteWithRetry(ctx, func() error {
		prompt = build()
		var terr error
		if e.worker.HasActiveSession() {
			res, terr = e.worker.Continue(ctx, prompt)
		} else {
			res, terr = e.worker.StartSession(ctx, e.systemCtx, prompt)
		}
		return terr
	}, recovery.RetryOptions{
		OperationID: "worker-turn",
		OnContextAction: func() error {
			before, after, compressed := e.mem.CompressIfNeeded()
			if compressed {
				e.pub.HistoryCompressed(before, after)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	now := e.now()
	e.mem.Record(agent.Message{Role: agent.RoleUser, Content: prompt, Timestamp: now})
	e.mem.Record(agent.Message{Role: agent.RoleAssistant, Content: res.Text, Timestamp: now})
	e.mem.RecordUsage(res.TokensIn, res.TokensOut)
	if res.SessionID != "" {
		_ = e.store.SetAgentSession(res.SessionID)
	}
	return res, nil
}

// handleTurnError absorbs a failed turn. Only context termination ends
// the cycle; every recovery strategy keeps the loop alive, at worst by
// restarting the agent session after a bounded pause.
func (e *Engine) handleTurnError(ctx context.Context, err error, st *plan.Step) (cycleResult, bool) {
	if ctx.Err() != nil {
		if e.interrupted() {
			return cycleInterrupted, true
		}
		return cycleTimeUp, true
	}

	switch recovery.StrategyOf(err) {
	case recovery.StrategySkipStep:
		e.logger.Warn("Skipping step on resource failure", "step", st.Number, "error", err)
		e.pl.Skip(st.Number, err.Error())
		_ = e.store.UpdateStepProgress(st.Number, plan.StatusSkipped, err.Error())
		e.pub.StepSkipped(stepRef(st), err.Error())
	case recovery.StrategyEscalate:
		e.logger.Error("Turn failed with a non-retryable input error", "step", st.Number, "error", err)
		e.pub.Escalation("CRITICAL", "turn failed: "+err.Error(), e.sup.ConsecutiveIssues())
		e.growDelay()
	default:
		// ABORT or unclassified: fresh agent session, bounded pause,
		// keep going. The run survives everything here.
		e.abortStreak++
		delay := boundedBackoff(e.cfg.Recovery.BaseDelay, e.abortStreak, e.cfg.Recovery.AbortBackoffCap)
		e.logger.Error("Agent session unrecoverable, restarting",
			"step", st.Number, "restart_in", delay, "streak", e.abortStreak, "error", err)
		if e.timeLeft() > 0 && !e.interrupted() {
			_ = e.sleep(ctx, delay)
		}
		e.worker.Reset()
		e.mem.Reset()
		e.growDelay()
	}
	return 0, false
}

// superviseTurn scores the response and translates the action into
// coaching, pacing, and escalation events. A failed supervision turn
// is treated as a clean continue; the watcher must not stall the work.
func (e *Engine) superviseTurn(ctx context.Context, responseText string, st *plan.Step) *supervisor.Assessment {
	stepCtx := st.Number + ": " + st.Description
	a, err := e.sup.Check(ctx, responseText, e.recentActions, stepCtx)
	if err != nil {
		e.logger.Warn("Supervision unavailable, continuing", "error", err)
		return &supervisor.Assessment{Score: 70, Action: supervisor.ActionContinue, Reason: "supervision unavailable"}
	}

	switch a.Action {
	case supervisor.ActionContinue:
		e.shrinkDelay()
	case supervisor.ActionCritical:
		e.pub.Escalation("CRITICAL", a.Reason, e.sup.ConsecutiveIssues())
		e.queuePrompt(criticalPrompt(a.Reason, e.sup.ConsecutiveIssues()))
		e.growDelay()
	case supervisor.ActionAbort:
		e.growDelay()
	default:
		e.queuePrompt(coachingPrompt(a.Action, a.Reason, e.goal.Statement))
		e.growDelay()
	}
	return a
}

// noteAction records what this turn amounted to for future supervision
// prompts.
func (e *Engine) noteAction(st *plan.Step, sig Signals) {
	action := "worked step " + st.Number
	switch {
	case sig.Blocked:
		action = "step " + st.Number + " blocked: " + sig.BlockedReason
	case sig.StepComplete:
		action = "claimed step " + st.Number + " complete"
	}
	if sig.GoalClaimed {
		action += "; claimed the goal complete"
	}
	e.recentActions = append(e.recentActions, action)
	if limit := e.cfg.Supervisor.RecentActionWindow * 2; limit > 0 && len(e.recentActions) > limit {
		e.recentActions = e.recentActions[len(e.recentActions)-limit:]
	}
}

// processSignals dispatches whatever the response declared. A pending
// verification challenge consumes the whole response; otherwise step
// signals are handled first and a goal claim last, so a response that
// both finishes the last step and claims the goal behaves sensibly.
func (e *Engine) processSignals(ctx context.Context, sig Signals, text string, current *plan.Step) (cycleResult, bool) {
	if e.challengePending {
		e.challengePending = false
		return e.verifyGoalClaim(ctx, text, true)
	}

	if sig.Blocked {
		e.handleBlocked(ctx, e.claimedStep(sig, current), sig.BlockedReason)
	} else if sig.StepComplete {
		e.handleStepComplete(ctx, e.claimedStep(sig, current), text)
	}
	if sig.GoalClaimed {
		return e.verifyGoalClaim(ctx, text, false)
	}
	return 0, false
}

// claimedStep resolves which step a sentinel talked about: the number
// it carried when that names an open leaf, else the current step.
func (e *Engine) claimedStep(sig Signals, current *plan.Step) *plan.Step {
	if sig.StepNumber == "" {
		return current
	}
	if st := e.pl.StepByNumber(sig.StepNumber); st != nil && st.IsLeaf() && !st.Status.IsTerminal() {
		return st
	}
	return current
}

// handleStepComplete gates a STEP COMPLETE claim: the supervisor judges
// whether the step's meaning was satisfied, then the verifier checks
// the claimed artifacts and commands. Either gate failing reopens the
// step with a rejection prompt.
func (e *Engine) handleStepComplete(ctx context.Context, st *plan.Step, text string) {
	ref := stepRef(st)
	e.pub.StepVerificationPending(ref)
	e.pub.StepVerificationStarted(ref)

	sv, err := e.sup.VerifyStepCompletion(ctx, st, text)
	if err != nil {
		e.logger.Warn("Step verification unavailable, accepting claim", "step", st.Number, "error", err)
		sv = &supervisor.StepVerification{Verified: true, Reason: "verification unavailable"}
	}
	if !sv.Verified {
		e.logger.Info("Step claim rejected by supervisor", "step", st.Number, "reason", sv.Reason)
		e.pub.StepRejected(ref, sv.Reason)
		e.queuePrompt(stepRejectedPrompt(st, sv.Reason))
		return
	}

	vres := e.ver.VerifyStepClaim(ctx, st.Description, text)
	if !vres.Passed {
		e.logger.Info("Step claim rejected by verifier",
			"step", st.Number, "layer", vres.FailedLayer, "reason", vres.Reason)
		e.pub.StepRejected(ref, vres.Reason)
		e.queuePrompt(vres.RejectionPrompt)
		return
	}

	e.pl.Complete(st.Number)
	_ = e.store.UpdateStepProgress(st.Number, plan.StatusCompleted, firstLine(text, stepResultMax))
	e.pub.StepComplete(stepRef(st), st.Elapsed())
	_, _ = e.store.CreateCheckpoint("step "+st.Number+" complete", e.pl)
	e.mem.RecordDecision("step " + st.Number + " completed: " + st.Description)
	e.logger.Info("Step complete", "step", st.Number)
}

// verifyGoalClaim vets a goal-completion claim. A claim failing only on
// evidence gets exactly one structured challenge; an evidence-backed
// failure counts as a false claim and sends the rejection back to the
// worker. The run continues past false claims either way.
func (e *Engine) verifyGoalClaim(ctx context.Context, text string, fromChallenge bool) (cycleResult, bool) {
	e.pub.VerificationStarted()
	res := e.ver.VerifyClaim(ctx, e.goal.Statement, text)
	if res.Passed {
		e.logger.Info("Goal claim verified")
		return cycleClaimAccepted, true
	}

	if res.FailedLayer == verifier.LayerEvidence && !fromChallenge {
		e.logger.Info("Goal claim lacks evidence, challenging")
		e.queuePrompt(verifier.ChallengePrompt(e.goal.Statement, e.goal.SubGoals))
		e.challengePending = true
		return 0, false
	}

	e.falseClaims++
	e.logger.Warn("Goal claim rejected",
		"layer", res.FailedLayer, "reason", res.Reason, "false_claims", e.falseClaims)
	e.queuePrompt(res.RejectionPrompt)
	if e.falseClaims == e.cfg.Engine.MaxFalseClaims {
		e.pub.Escalation("FALSE_CLAIMS",
			fmt.Sprintf("%d unsupported completion claims", e.falseClaims), 0)
	}
	return 0, false
}

// handleBlocked records the blockage and, for a top-level step that was
// never salvaged before, asks the planner for a recovery sub-plan.
// Everything else fails the step; the gap cycle picks up the pieces.
func (e *Engine) handleBlocked(ctx context.Context, st *plan.Step, reason string) {
	ref := stepRef(st)
	e.pl.Block(st.Number, reason)
	_ = e.store.UpdateStepProgress(st.Number, plan.StatusBlocked, reason)
	e.pub.StepBlocked(ref, reason)
	e.logger.Warn("Step blocked", "step", st.Number, "reason", reason)

	if !st.SubPlanned && !st.IsSubStep() {
		e.pub.StepBlockedReplanning(ref, reason)
		e.pub.SubPlanCreating(ref)
		sp, err := e.planner.CreateSubPlan(ctx, st, reason, e.goal.Workdir)
		if err == nil && sp != nil {
			if aerr := e.pl.ApplySubPlan(sp); aerr == nil {
				children := e.pl.Children(st.Number)
				_ = e.store.SetPlan(e.pl)
				e.pub.SubPlanCreated(ref, stepRefs(children))
				e.queuePrompt(subPlanPrompt(st, children))
				e.mem.RecordDecision("step " + st.Number + " blocked, salvage sub-plan injected")
				e.logger.Info("Salvage sub-plan injected", "step", st.Number, "substeps", len(children))
				return
			} else {
				err = aerr
			}
		}
		failReason := "agent declined a salvage plan"
		if err != nil {
			failReason = err.Error()
		}
		e.pub.SubPlanFailed(ref, failReason)
	}

	e.pl.Fail(st.Number, reason)
	_ = e.store.UpdateStepProgress(st.Number, plan.StatusFailed, reason)
	e.pub.StepFailed(stepRef(st), reason)
	e.mem.RecordDecision("step " + st.Number + " failed: " + reason)
}

// maybeDecompose splits a step that is declared complex or has been in
// progress past the slow threshold. Each step is only ever offered for
// decomposition once.
func (e *Engine) maybeDecompose(ctx context.Context, st *plan.Step) bool {
	if e.decomposeTried[st.Number] || !st.IsLeaf() {
		return false
	}
	slow := st.Status == plan.StatusInProgress && st.Elapsed() > e.cfg.Engine.SlowStepThreshold
	if st.Complexity != plan.ComplexityComplex && !slow {
		return false
	}
	e.decomposeTried[st.Number] = true

	reason := "complex step"
	if slow {
		reason = fmt.Sprintf("in progress for %s", st.Elapsed().Round(time.Second))
	}
	ref := stepRef(st)
	e.pub.StepDecomposing(ref, reason)

	children, err := e.planner.DecomposeStep(ctx, st, e.goal.Workdir)
	if err != nil || len(children) == 0 {
		if err != nil {
			e.logger.Warn("Decomposition failed, running step whole", "step", st.Number, "error", err)
		}
		return false
	}
	if derr := e.pl.Decompose(st.Number, children); derr != nil {
		e.logger.Warn("Decomposition rejected", "step", st.Number, "error", derr)
		return false
	}
	_ = e.store.SetPlan(e.pl)
	e.pub.StepDecomposed(ref, stepRefs(e.pl.Children(st.Number)))
	e.logger.Info("Step decomposed", "step", st.Number, "substeps", len(children))
	return true
}

// ── Pacing ─────────────────────────────────────────────────────

func (e *Engine) pace(ctx context.Context) {
	if e.turnDelay <= 0 || e.timeLeft() <= 0 || e.interrupted() {
		return
	}
	_ = e.sleep(ctx, e.turnDelay)
}

func (e *Engine) shrinkDelay() {
	next := e.turnDelay * 3 / 4
	if next < e.cfg.Engine.MinTurnDelay {
		next = e.cfg.Engine.MinTurnDelay
	}
	e.setDelay(next, "clean supervision")
}

func (e *Engine) growDelay() {
	next := e.turnDelay * 2
	if next > e.cfg.Engine.MaxTurnDelay {
		next = e.cfg.Engine.MaxTurnDelay
	}
	e.setDelay(next, "intervention")
}

func (e *Engine) setDelay(d time.Duration, reason string) {
	if d == e.turnDelay {
		return
	}
	e.turnDelay = d
	e.pub.StrategyAdjusted(d, reason)
}

func joinPrompt(parts []string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += p
	}
	return out
}
