// Package engine is the autonomous control loop: it turns a goal into
// a plan, drives the worker agent through it turn by turn, lets the
// supervisor and verifier gate every completion claim, and survives
// everything short of the deadline or an operator shutdown. The outer
// loop re-plans against verification gaps until the goal verifies or
// the cycle budget runs out.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude-runner/claude-runner/pkg/agent"
	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/events"
	"github.com/claude-runner/claude-runner/pkg/memory"
	"github.com/claude-runner/claude-runner/pkg/plan"
	"github.com/claude-runner/claude-runner/pkg/planner"
	"github.com/claude-runner/claude-runner/pkg/recovery"
	"github.com/claude-runner/claude-runner/pkg/session"
	"github.com/claude-runner/claude-runner/pkg/supervisor"
	"github.com/claude-runner/claude-runner/pkg/verifier"
)

// Final run statuses carried by the complete event.
const (
	StatusCompleted          = "completed"
	StatusVerificationFailed = "verification_failed"
	StatusTimeExpired        = "time_expired"
	StatusAborted            = "aborted"
	StatusStopped            = "stopped"
)

// Goal is the operator's request for one run.
type Goal struct {
	Statement string
	SubGoals  []string
	Workdir   string
	Context   string
	// Resume selects an earlier session: empty for a fresh run,
	// "latest" for the newest resumable session matching the goal, or
	// an explicit session id. A resumed session supplies the goal when
	// Statement is empty.
	Resume string
}

// outcome is how the run loop ended.
type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeVerificationFailed
	outcomeTimeExpired
	outcomeOperator
	outcomeDrift
)

// Engine owns one run. Construct with New, drive with Run, interrupt
// with Stop. Run is not reentrant.
type Engine struct {
	cfg     *config.Config
	goal    Goal
	factory agent.Factory
	pub     *events.Publisher
	logger  *slog.Logger

	planner *planner.Planner
	mem     *memory.Manager
	rec     *recovery.Recovery
	store   *session.Store
	worker  agent.Driver

	// Built in Run once the session is resolved; a resumed session may
	// supply the goal the supervisor scores against.
	sup *supervisor.Supervisor
	ver *verifier.Verifier

	// Test seams.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	deadline  time.Time
	pl        *plan.Plan
	systemCtx string

	iterations       int
	cycle            int
	turnDelay        time.Duration
	abortStreak      int
	falseClaims      int
	challengePending bool
	pendingPrompts   []string
	recentActions    []string
	decomposeTried   map[string]bool
	batched          map[string]bool
	goalVerification *supervisor.GoalVerification

	stopOnce   sync.Once
	stopCh     chan struct{}
	stopMu     sync.Mutex
	stopReason string
}

// New assembles an engine for one goal. The bus may be shared with the
// API layer; a nil bus disables events.
func New(cfg *config.Config, goal Goal, factory agent.Factory, bus *events.Bus) *Engine {
	if goal.Workdir == "" {
		goal.Workdir = "."
	}
	return &Engine{
		cfg:            cfg,
		goal:           goal,
		factory:        factory,
		pub:            events.NewPublisher(bus, uuid.New().String()),
		logger:         slog.Default().With("component", "engine"),
		planner:        planner.New(factory),
		mem:            memory.NewManager(cfg.Memory),
		rec:            recovery.New(cfg.Recovery),
		store:          session.New(cfg.State, goal.Workdir),
		worker:         factory.NewDriver(config.RoleWorker),
		now:            time.Now,
		sleep:          sleepCtx,
		stopCh:         make(chan struct{}),
		decomposeTried: make(map[string]bool),
		batched:        make(map[string]bool),
	}
}

// Stop requests a graceful shutdown: the loop exits at the next safe
// point, and an in-flight agent turn gets ShutdownGrace before its
// context is cancelled. Safe to call from any goroutine, once or more.
func (e *Engine) Stop(reason string) {
	e.stopOnce.Do(func() {
		e.stopMu.Lock()
		e.stopReason = reason
		e.stopMu.Unlock()
		e.logger.Info("Shutdown requested", "reason", reason)
		close(e.stopCh)
	})
}

func (e *Engine) interrupted() bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

func (e *Engine) shutdownReason() string {
	e.stopMu.Lock()
	defer e.stopMu.Unlock()
	return e.stopReason
}

// watchStop cancels the run context ShutdownGrace after a stop request
// so a wedged agent turn cannot outlive the operator's patience.
func (e *Engine) watchStop(ctx context.Context, cancel context.CancelFunc) {
	select {
	case <-e.stopCh:
	case <-ctx.Done():
		return
	}
	timer := time.NewTimer(e.cfg.Engine.ShutdownGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
		cancel()
	case <-ctx.Done():
	}
}

// Run executes the goal to one of the final statuses and returns the
// final report. The error is non-nil only for setup failures; every
// mid-run failure is absorbed by the loop and reflected in the report.
func (e *Engine) Run(ctx context.Context) (*events.CompletePayload, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.watchStop(runCtx, cancel)

	sess, err := e.openSession()
	if err != nil {
		e.pub.FatalError(err)
		return nil, err
	}
	defer func() { _ = e.store.Close() }()

	e.sup = supervisor.New(e.factory, e.cfg.Supervisor, e.goal.Statement)
	e.ver = verifier.New(e.cfg.Verifier, e.goal.Workdir)
	e.systemCtx = workerSystemContext(e.goal)

	start := e.now()
	e.deadline = start.Add(e.cfg.Engine.TimeLimit)
	e.pub.Initialized(e.goal.Statement, e.goal.SubGoals, e.goal.Workdir, sess.ID)
	e.pub.Started(e.deadline, e.cfg.Engine.TimeLimit)
	e.logger.Info("Run started",
		"goal", e.goal.Statement,
		"session_id", sess.ID,
		"deadline", e.deadline.Format(time.RFC3339))

	out := e.runLoop(runCtx)
	report := e.finish(runCtx, out, start, sess.ID)
	e.pub.Complete(*report)
	e.logger.Info("Run finished", "status", report.Status, "iterations", report.Iterations, "cycles", report.Cycles)
	return report, nil
}

// openSession initializes state storage and resolves the session to
// run in: fresh, an explicit resume, or the newest resumable match.
func (e *Engine) openSession() (*session.Session, error) {
	if err := e.store.Initialize(); err != nil {
		return nil, fmt.Errorf("state store init: %w", err)
	}

	resumeID := e.goal.Resume
	if resumeID == "latest" {
		found, err := e.store.GetResumableSession(e.goal.Statement)
		if err != nil {
			return nil, err
		}
		if found == nil {
			e.logger.Info("No resumable session, starting fresh", "goal", e.goal.Statement)
			resumeID = ""
		} else {
			resumeID = found.ID
		}
	}

	if resumeID != "" {
		sess, err := e.store.StartSession(e.goal.Statement, session.StartOptions{Resume: resumeID})
		if err != nil {
			return nil, err
		}
		// The stored run is the unit being resumed; its goal wins.
		if sess.Goal != "" {
			e.goal.Statement = sess.Goal
		}
		if len(sess.SubGoals) > 0 {
			e.goal.SubGoals = sess.SubGoals
		}
		e.pub.Resuming(sess.ID, sess.UpdatedAt)
		if sess.Plan != nil {
			e.pl = sess.Plan
			completed, total := e.pl.Progress()
			cur := ""
			if st := e.pl.CurrentStep(); st != nil {
				cur = st.Number
			}
			e.pub.PlanRestored(cur, completed, total)
		}
		return sess, nil
	}

	if e.goal.Statement == "" {
		return nil, fmt.Errorf("no goal given and nothing to resume")
	}
	return e.store.StartSession(e.goal.Statement, session.StartOptions{SubGoals: e.goal.SubGoals})
}

// runLoop is the outer plan-execute-verify loop. Each pass after the
// first plans against the previous verification's gaps in a fresh
// worker session.
func (e *Engine) runLoop(ctx context.Context) outcome {
	e.turnDelay = e.cfg.Engine.MinTurnDelay

	startCycle := 1
	if e.pl != nil && e.pl.Cycle > 1 {
		startCycle = e.pl.Cycle
	}
	for e.cycle = startCycle; ; e.cycle++ {
		if e.pl == nil {
			if out, ok := e.makePlan(ctx, nil); !ok {
				return out
			}
			e.reviewPlan(ctx)
		}

		switch e.runCycle(ctx) {
		case cycleInterrupted:
			return outcomeOperator
		case cycleTimeUp:
			return outcomeTimeExpired
		case cycleDrift:
			return outcomeDrift
		}

		gv := e.verifyGoal(ctx)
		if gv != nil && gv.Achieved.IsTruthy() && gv.Confidence == supervisor.ConfidenceHigh {
			return outcomeCompleted
		}
		if e.cycle >= e.cfg.Engine.MaxCycles {
			e.logger.Warn("Cycle budget exhausted without verified goal", "cycles", e.cycle)
			return outcomeVerificationFailed
		}

		if out, ok := e.makePlan(ctx, gv); !ok {
			return out
		}
		e.reviewPlan(ctx)
		e.worker.Reset()
		e.mem.Reset()
	}
}

// makePlan asks the planner for a plan and keeps asking, under backoff,
// until it gets one or the run ends. Planning failures never end a run
// by themselves. gv non-nil means a gap plan for the next cycle.
func (e *Engine) makePlan(ctx context.Context, gv *supervisor.GoalVerification) (outcome, bool) {
	e.pub.Planning()
	goalContext := e.goal.Context
	gap := gv != nil
	if gap {
		goalContext = gapContext(gv, e.pl)
	}

	for attempt := 1; ; attempt++ {
		if e.interrupted() {
			return outcomeOperator, false
		}
		if e.timeLeft() <= 0 {
			return outcomeTimeExpired, false
		}

		pl, err := e.planner.CreatePlan(ctx, e.goal.Statement, goalContext, e.goal.Workdir)
		if err == nil {
			if gap {
				pl.Cycle = e.cycle + 1
			}
			e.pl = pl
			// Step numbers restart with each plan.
			e.decomposeTried = make(map[string]bool)
			e.batched = make(map[string]bool)
			_ = e.store.SetPlan(pl)
			e.pub.PlanCreated(pl.Analysis, stepRefs(pl.Steps), gap)
			e.logger.Info("Plan ready", "steps", len(pl.Steps), "gap_plan", gap)
			return 0, true
		}

		delay := boundedBackoff(e.cfg.Recovery.BaseDelay, attempt, e.cfg.Recovery.AbortBackoffCap)
		e.logger.Error("Planning failed, retrying", "attempt", attempt, "retry_in", delay, "error", err)
		if serr := e.sleep(ctx, delay); serr != nil {
			if e.interrupted() {
				return outcomeOperator, false
			}
			return outcomeTimeExpired, false
		}
	}
}

// reviewPlan runs the advisory pre-execution review. Nothing here can
// stop the run; disapproval becomes a warning event and a note in the
// worker's next prompt.
func (e *Engine) reviewPlan(ctx context.Context) {
	e.pub.PlanReviewStarted()
	review, err := e.sup.ReviewPlan(ctx, e.pl)
	if err != nil {
		e.logger.Warn("Plan review unavailable, proceeding", "error", err)
		e.pub.PlanReviewWarning(events.PlanReviewPayload{
			Approved: true,
			Issues:   []string{"review unavailable: " + err.Error()},
		})
		return
	}

	payload := events.PlanReviewPayload{
		Approved:     review.Approved,
		Issues:       review.Issues,
		MissingSteps: review.MissingSteps,
		Suggestions:  review.Suggestions,
	}
	if review.Approved {
		e.pub.PlanReviewComplete(payload)
		return
	}
	e.pub.PlanReviewWarning(payload)
	if len(review.Issues)+len(review.MissingSteps)+len(review.Suggestions) > 0 {
		e.queuePrompt(reviewAdvicePrompt(review))
	}
}

// verifyGoal asks the supervisor for the whole-goal verdict. The verdict
// is cached for the final report; a verification failure reads as an
// inconclusive PARTIAL/LOW so absence of proof never passes for proof.
func (e *Engine) verifyGoal(ctx context.Context) *supervisor.GoalVerification {
	e.pub.VerificationStarted()
	gv, err := e.sup.VerifyGoalAchieved(ctx, e.pl, e.goal.Workdir)
	if err != nil {
		e.logger.Warn("Goal verification unavailable", "error", err)
		gv = &supervisor.GoalVerification{
			Achieved:   supervisor.VerdictPartial,
			Confidence: supervisor.ConfidenceLow,
			Reason:     "verification unavailable: " + err.Error(),
		}
	}
	e.goalVerification = gv
	e.pub.GoalVerificationComplete(events.GoalVerificationPayload{
		Achieved:       string(gv.Achieved),
		Confidence:     string(gv.Confidence),
		Gaps:           gv.Gaps,
		Recommendation: gv.Recommendation,
	})
	return gv
}

// finish runs the final verification phase, attempts a summary turn,
// closes the session per the outcome, and assembles the report.
// Operator shutdowns skip verification so Ctrl-C stays prompt.
func (e *Engine) finish(ctx context.Context, out outcome, start time.Time, sessionID string) *events.CompletePayload {
	status := statusOf(out)

	var final *events.FinalVerificationPayload
	if out != outcomeOperator && e.pl != nil {
		final = e.finalVerification(ctx)
		if status == StatusCompleted && final != nil && !final.ClaimPassed {
			status = StatusVerificationFailed
		}
	}
	e.summaryTurn(ctx, out)

	shutdownReason := ""
	switch out {
	case outcomeOperator:
		shutdownReason = e.shutdownReason()
		if shutdownReason == "" {
			shutdownReason = "operator shutdown"
		}
	case outcomeDrift:
		shutdownReason = "persistent drift"
	}

	switch status {
	case StatusCompleted:
		_ = e.store.CompleteSession(summaryOf(e.goalVerification), e.pl)
	case StatusAborted:
		// Interrupted sessions stay resumable.
		_ = e.store.InterruptSession(shutdownReason)
	case StatusTimeExpired:
		// Running out of budget is not failure; a later run picks the
		// session back up.
		_ = e.store.InterruptSession("time limit reached")
	default:
		reason := shutdownReason
		if reason == "" {
			reason = status
		}
		_ = e.store.FailSession(reason)
	}

	report := &events.CompletePayload{
		Status:            status,
		Goal:              e.goal.Statement,
		SubGoals:          e.goal.SubGoals,
		SessionID:         sessionID,
		Elapsed:           e.now().Sub(start).Round(time.Second).String(),
		TimeLimit:         e.cfg.Engine.TimeLimit.String(),
		Iterations:        e.iterations,
		Cycles:            e.cycle,
		Supervision:       e.sup.Stats(),
		Verifier:          e.ver.Stats(),
		FinalVerification: final,
		ShutdownReason:    shutdownReason,
	}
	if e.pl != nil {
		report.PlanSummary = planSummary(e.pl)
	}
	return report
}

// finalVerification re-checks the goal verdict and runs smoke tests.
// The cycle's successful verification is reused rather than re-asked.
func (e *Engine) finalVerification(ctx context.Context) *events.FinalVerificationPayload {
	e.pub.FinalVerificationStarted()

	gv := e.goalVerification
	if gv == nil {
		gv = e.verifyGoal(ctx)
	}

	smoke := e.ver.SmokeTest(ctx, e.goal.Statement)
	ran, failed := smokeLists(smoke)
	e.pub.SmokeTestsComplete(events.SmokeTestsPayload{
		Passed: smoke.Passed, Ran: ran, Failed: failed, Summary: smoke.Summary,
	})

	stats := e.ver.Stats()
	payload := &events.FinalVerificationPayload{
		ClaimPassed:    gv != nil && gv.Achieved.IsTruthy() && smoke.Passed,
		ArtifactsFound: stats.FilesVerified,
	}
	if gv != nil {
		payload.Missing = gv.Gaps
		if !gv.Achieved.IsTruthy() {
			payload.Reasons = append(payload.Reasons, fmt.Sprintf("goal %s with %s confidence", gv.Achieved, gv.Confidence))
		}
	}
	if !smoke.Passed {
		payload.Reasons = append(payload.Reasons, "smoke tests failed: "+smoke.Summary)
	}

	if payload.ClaimPassed {
		e.pub.FinalVerificationPassed(*payload)
	} else {
		e.pub.FinalVerificationFailed(*payload)
	}
	return payload
}

// summaryTurn asks the worker for a handover summary, best effort and
// bounded by the shutdown grace.
func (e *Engine) summaryTurn(ctx context.Context, out outcome) {
	if !e.worker.HasActiveSession() {
		return
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Engine.ShutdownGrace)
	defer cancel()
	res, err := e.worker.Continue(tctx, summaryPrompt)
	if err != nil {
		e.logger.Warn("Summary turn failed", "error", err)
		return
	}
	e.mem.RecordDecision("final summary: " + firstLine(res.Text, 200))
	if out != outcomeCompleted {
		_ = e.store.SetSummary(firstLine(res.Text, 500))
	}
}

func statusOf(out outcome) string {
	switch out {
	case outcomeCompleted:
		return StatusCompleted
	case outcomeVerificationFailed:
		return StatusVerificationFailed
	case outcomeTimeExpired:
		return StatusTimeExpired
	case outcomeOperator:
		return StatusAborted
	case outcomeDrift:
		return StatusStopped
	}
	return StatusStopped
}

// ── Small helpers ──────────────────────────────────────────────

func (e *Engine) timeLeft() time.Duration {
	return e.deadline.Sub(e.now())
}

func (e *Engine) elapsed() time.Duration {
	return e.cfg.Engine.TimeLimit - e.timeLeft()
}

func (e *Engine) queuePrompt(p string) {
	if p != "" {
		e.pendingPrompts = append(e.pendingPrompts, p)
	}
}

func (e *Engine) drainPrompts() []string {
	out := e.pendingPrompts
	e.pendingPrompts = nil
	return out
}

func stepRef(st *plan.Step) events.StepRef {
	return events.StepRef{Number: st.Number, Description: st.Description, Status: string(st.Status)}
}

func stepRefs(steps []*plan.Step) []events.StepRef {
	out := make([]events.StepRef, len(steps))
	for i, st := range steps {
		out[i] = stepRef(st)
	}
	return out
}

func planSummary(pl *plan.Plan) []events.StepSummary {
	out := make([]events.StepSummary, len(pl.Steps))
	for i, st := range pl.Steps {
		out[i] = events.StepSummary{
			Number:      st.Number,
			Description: st.Description,
			Status:      string(st.Status),
			FailReason:  st.FailReason,
		}
	}
	return out
}

func smokeLists(report *verifier.SmokeReport) (ran, failed []string) {
	for _, r := range report.Results {
		if r.Skipped {
			continue
		}
		ran = append(ran, r.Command)
		if r.ExitCode != 0 {
			failed = append(failed, r.Command)
		}
	}
	return ran, failed
}

func summaryOf(gv *supervisor.GoalVerification) string {
	if gv == nil {
		return "goal achieved"
	}
	s := fmt.Sprintf("goal %s (%s confidence)", gv.Achieved, gv.Confidence)
	if gv.Reason != "" {
		s += ": " + gv.Reason
	}
	return s
}

func firstLine(text string, limit int) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if limit > 0 && len(text) > limit {
		text = text[:limit]
	}
	return text
}

// boundedBackoff doubles from base per attempt, clamped to limit.
func boundedBackoff(base time.Duration, attempt int, limit time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if limit > 0 && d >= limit {
			return limit
		}
	}
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
