package events

import (
	"time"

	"github.com/google/uuid"
)

// Publisher emits typed events for one run. All methods are nil-safe so
// callers never need publisher guards; a nil Publisher is a no-op sink.
type Publisher struct {
	bus   *Bus
	runID string
}

// NewPublisher creates a publisher bound to a run id.
func NewPublisher(bus *Bus, runID string) *Publisher {
	return &Publisher{bus: bus, runID: runID}
}

// Bus returns the underlying bus, nil for a nil publisher.
func (p *Publisher) Bus() *Bus {
	if p == nil {
		return nil
	}
	return p.bus
}

func (p *Publisher) publish(eventType string, payload any) {
	if p == nil || p.bus == nil {
		return
	}
	p.bus.Publish(Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     p.runID,
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Payload:   payload,
	})
}

// ── Run lifecycle ──────────────────────────────────────────────

func (p *Publisher) Initialized(goal string, subGoals []string, workdir, sessionID string) {
	p.publish(EventTypeInitialized, InitializedPayload{
		Goal: goal, SubGoals: subGoals, Workdir: workdir, SessionID: sessionID,
	})
}

func (p *Publisher) Started(deadline time.Time, timeLimit time.Duration) {
	p.publish(EventTypeStarted, StartedPayload{
		Deadline: deadline.Format(time.RFC3339), TimeLimit: timeLimit.String(),
	})
}

func (p *Publisher) Complete(report CompletePayload) {
	p.publish(EventTypeComplete, report)
}

func (p *Publisher) FatalError(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.publish(EventTypeFatalError, FatalErrorPayload{Error: msg})
}

// ── Planning ───────────────────────────────────────────────────

func (p *Publisher) Planning() {
	p.publish(EventTypePlanning, nil)
}

func (p *Publisher) PlanCreated(analysis string, steps []StepRef, gapPlan bool) {
	p.publish(EventTypePlanCreated, PlanCreatedPayload{
		Analysis: analysis, TotalSteps: len(steps), Steps: steps, GapPlan: gapPlan,
	})
}

func (p *Publisher) PlanReviewStarted() {
	p.publish(EventTypePlanReviewStarted, nil)
}

func (p *Publisher) PlanReviewComplete(review PlanReviewPayload) {
	p.publish(EventTypePlanReviewComplete, review)
}

func (p *Publisher) PlanReviewWarning(review PlanReviewPayload) {
	p.publish(EventTypePlanReviewWarning, review)
}

func (p *Publisher) Resuming(sessionID string, updatedAt time.Time) {
	p.publish(EventTypeResuming, ResumingPayload{
		SessionID: sessionID, UpdatedAt: updatedAt.Format(time.RFC3339),
	})
}

func (p *Publisher) PlanRestored(currentStep string, completed, total int) {
	p.publish(EventTypePlanRestored, PlanRestoredPayload{
		CurrentStep: currentStep, CompletedSteps: completed, TotalSteps: total,
	})
}

// ── Step execution ─────────────────────────────────────────────

func (p *Publisher) StepDecomposing(step StepRef, reason string) {
	p.publish(EventTypeStepDecomposing, StepPayload{Step: step, Reason: reason})
}

func (p *Publisher) StepDecomposed(step StepRef, children []StepRef) {
	p.publish(EventTypeStepDecomposed, StepDecomposedPayload{Step: step, Children: children})
}

func (p *Publisher) ParallelBatchStarted(steps []StepRef, workers int) {
	p.publish(EventTypeParallelBatchStarted, ParallelBatchPayload{Steps: steps, Workers: workers})
}

func (p *Publisher) ParallelBatchCompleted(steps []StepRef, succeeded, failed int) {
	p.publish(EventTypeParallelBatchCompleted, ParallelBatchPayload{
		Steps: steps, Workers: len(steps), Succeeded: succeeded, Failed: failed,
	})
}

func (p *Publisher) IterationComplete(it IterationPayload) {
	p.publish(EventTypeIterationComplete, it)
}

func (p *Publisher) DuplicateResponseDetected(occurrences int) {
	p.publish(EventTypeDuplicateResponse, DuplicatePayload{Occurrences: occurrences})
}

func (p *Publisher) StepVerificationPending(step StepRef) {
	p.publish(EventTypeStepVerificationPending, StepPayload{Step: step})
}

func (p *Publisher) StepVerificationStarted(step StepRef) {
	p.publish(EventTypeStepVerificationStarted, StepPayload{Step: step})
}

func (p *Publisher) StepComplete(step StepRef, elapsed time.Duration) {
	p.publish(EventTypeStepComplete, StepPayload{Step: step, Elapsed: elapsed.String()})
}

func (p *Publisher) StepRejected(step StepRef, reason string) {
	p.publish(EventTypeStepRejected, StepPayload{Step: step, Reason: reason})
}

func (p *Publisher) StepBlockedReplanning(step StepRef, reason string) {
	p.publish(EventTypeStepBlockedReplanning, StepPayload{Step: step, Reason: reason})
}

func (p *Publisher) SubPlanCreating(step StepRef) {
	p.publish(EventTypeSubPlanCreating, StepPayload{Step: step})
}

func (p *Publisher) SubPlanCreated(step StepRef, subSteps []StepRef) {
	p.publish(EventTypeSubPlanCreated, SubPlanCreatedPayload{Step: step, SubSteps: subSteps})
}

func (p *Publisher) SubPlanFailed(step StepRef, reason string) {
	p.publish(EventTypeSubPlanFailed, StepPayload{Step: step, Reason: reason})
}

func (p *Publisher) StepFailed(step StepRef, reason string) {
	p.publish(EventTypeStepFailed, StepPayload{Step: step, Reason: reason})
}

func (p *Publisher) StepBlocked(step StepRef, reason string) {
	p.publish(EventTypeStepBlocked, StepPayload{Step: step, Reason: reason})
}

func (p *Publisher) StepSkipped(step StepRef, reason string) {
	p.publish(EventTypeStepSkipped, StepPayload{Step: step, Reason: reason})
}

// ── Verification ───────────────────────────────────────────────

func (p *Publisher) VerificationStarted() {
	p.publish(EventTypeVerificationStarted, nil)
}

func (p *Publisher) FinalVerificationStarted() {
	p.publish(EventTypeFinalVerificationStarted, nil)
}

func (p *Publisher) GoalVerificationComplete(v GoalVerificationPayload) {
	p.publish(EventTypeGoalVerificationComplete, v)
}

func (p *Publisher) SmokeTestsComplete(s SmokeTestsPayload) {
	p.publish(EventTypeSmokeTestsComplete, s)
}

func (p *Publisher) FinalVerificationPassed(v FinalVerificationPayload) {
	p.publish(EventTypeFinalVerificationPassed, v)
}

func (p *Publisher) FinalVerificationFailed(v FinalVerificationPayload) {
	p.publish(EventTypeFinalVerificationFailed, v)
}

// ── Retry loop ─────────────────────────────────────────────────

func (p *Publisher) RetryLoopStarted(maxAttempts int) {
	p.publish(EventTypeRetryLoopStarted, RetryLoopPayload{MaxAttempts: maxAttempts})
}

func (p *Publisher) AttemptStarting(attempt, maxAttempts int) {
	p.publish(EventTypeAttemptStarting, RetryLoopPayload{Attempt: attempt, MaxAttempts: maxAttempts})
}

func (p *Publisher) AttemptCompleted(attempt, maxAttempts int, status string) {
	p.publish(EventTypeAttemptCompleted, RetryLoopPayload{
		Attempt: attempt, MaxAttempts: maxAttempts, Status: status,
	})
}

func (p *Publisher) RetryLoopCompleted(attempts, maxAttempts int, status string) {
	p.publish(EventTypeRetryLoopCompleted, RetryLoopPayload{
		Attempt: attempts, MaxAttempts: maxAttempts, Status: status,
	})
}

// ── Engine adjustments ─────────────────────────────────────────

func (p *Publisher) TimeExhausted(elapsed time.Duration, completed, total int) {
	p.publish(EventTypeTimeExhausted, TimeExhaustedPayload{
		Elapsed: elapsed.String(), CompletedSteps: completed, TotalSteps: total,
	})
}

func (p *Publisher) HistoryCompressed(before, after int) {
	p.publish(EventTypeHistoryCompressed, HistoryCompressedPayload{
		MessagesBefore: before, MessagesAfter: after,
	})
}

func (p *Publisher) StrategyAdjusted(turnDelay time.Duration, reason string) {
	p.publish(EventTypeStrategyAdjusted, StrategyAdjustedPayload{
		TurnDelay: turnDelay.String(), Reason: reason,
	})
}

func (p *Publisher) Escalation(level, reason string, consecutiveIssues int) {
	p.publish(EventTypeEscalation, EscalationPayload{
		Level: level, Reason: reason, ConsecutiveIssues: consecutiveIssues,
	})
}
