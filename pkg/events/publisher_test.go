package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_NilReceiverIsNoOp(t *testing.T) {
	var p *Publisher

	// None of these may panic.
	p.Planning()
	p.StepComplete(StepRef{Number: "1"}, time.Second)
	p.FatalError(errors.New("boom"))
	assert.Nil(t, p.Bus())
}

func TestPublisher_NilBusIsNoOp(t *testing.T) {
	p := NewPublisher(nil, "run-1")

	p.Planning()
	p.Escalation("REFOCUS", "drift", 3)
}

func TestPublisher_EnvelopeFields(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()
	p := NewPublisher(bus, "run-42")

	p.Planning()

	history := bus.Catchup(0, 0)
	require.Len(t, history, 1)
	evt := history[0]

	assert.Equal(t, EventTypePlanning, evt.Type)
	assert.Equal(t, "run-42", evt.RunID)
	assert.NotEmpty(t, evt.ID)
	_, err := time.Parse(time.RFC3339Nano, evt.Timestamp)
	require.NoError(t, err)
}

func TestPublisher_TypedPayloads(t *testing.T) {
	bus := NewBus(100)
	defer bus.Close()
	p := NewPublisher(bus, "run-1")

	steps := []StepRef{
		{Number: "1", Description: "Create database schema", Status: "pending"},
		{Number: "2", Description: "Write unit tests", Status: "pending"},
	}

	p.PlanCreated("two independent steps", steps, false)
	p.StepComplete(steps[0], 90*time.Second)
	p.StepBlocked(steps[1], "missing credentials")
	p.DuplicateResponseDetected(2)
	p.HistoryCompressed(40, 12)
	p.TimeExhausted(2*time.Hour, 4, 6)

	history := bus.Catchup(0, 0)
	require.Len(t, history, 6)

	plan, ok := history[0].Payload.(PlanCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, 2, plan.TotalSteps)
	assert.Equal(t, "two independent steps", plan.Analysis)
	assert.False(t, plan.GapPlan)

	done, ok := history[1].Payload.(StepPayload)
	require.True(t, ok)
	assert.Equal(t, "1", done.Step.Number)
	assert.Equal(t, "1m30s", done.Elapsed)

	blocked, ok := history[2].Payload.(StepPayload)
	require.True(t, ok)
	assert.Equal(t, "missing credentials", blocked.Reason)

	dup, ok := history[3].Payload.(DuplicatePayload)
	require.True(t, ok)
	assert.Equal(t, 2, dup.Occurrences)

	comp, ok := history[4].Payload.(HistoryCompressedPayload)
	require.True(t, ok)
	assert.Equal(t, 40, comp.MessagesBefore)
	assert.Equal(t, 12, comp.MessagesAfter)

	exhausted, ok := history[5].Payload.(TimeExhaustedPayload)
	require.True(t, ok)
	assert.Equal(t, 4, exhausted.CompletedSteps)
	assert.Equal(t, 6, exhausted.TotalSteps)
}

func TestPublisher_EventTypeCoverage(t *testing.T) {
	bus := NewBus(200)
	defer bus.Close()
	p := NewPublisher(bus, "run-1")

	step := StepRef{Number: "3", Description: "Implement API endpoint"}
	now := time.Now()

	p.Initialized("build service", []string{"api", "tests"}, "/tmp/w", "s-1")
	p.Started(now.Add(2*time.Hour), 2*time.Hour)
	p.Planning()
	p.PlanCreated("analysis", []StepRef{step}, false)
	p.PlanReviewStarted()
	p.PlanReviewComplete(PlanReviewPayload{Approved: true})
	p.PlanReviewWarning(PlanReviewPayload{Approved: false, Issues: []string{"vague step"}})
	p.Resuming("s-1", now)
	p.PlanRestored("3", 2, 5)
	p.StepDecomposing(step, "slow step")
	p.StepDecomposed(step, []StepRef{{Number: "3.1"}})
	p.ParallelBatchStarted([]StepRef{step}, 2)
	p.ParallelBatchCompleted([]StepRef{step}, 1, 0)
	p.IterationComplete(IterationPayload{Iteration: 7, Cycle: 1})
	p.DuplicateResponseDetected(2)
	p.StepVerificationPending(step)
	p.StepVerificationStarted(step)
	p.StepComplete(step, time.Minute)
	p.StepRejected(step, "no evidence")
	p.StepBlockedReplanning(step, "blocked")
	p.SubPlanCreating(step)
	p.SubPlanCreated(step, []StepRef{{Number: "3.1"}})
	p.SubPlanFailed(step, "planner unavailable")
	p.StepFailed(step, "verification failed twice")
	p.StepBlocked(step, "missing dependency")
	p.StepSkipped(step, "repeated transient errors")
	p.VerificationStarted()
	p.FinalVerificationStarted()
	p.GoalVerificationComplete(GoalVerificationPayload{Achieved: "YES", Confidence: "HIGH"})
	p.SmokeTestsComplete(SmokeTestsPayload{Passed: true, Summary: "all suites passed"})
	p.FinalVerificationPassed(FinalVerificationPayload{ClaimPassed: true})
	p.FinalVerificationFailed(FinalVerificationPayload{ClaimPassed: false})
	p.RetryLoopStarted(3)
	p.AttemptStarting(1, 3)
	p.AttemptCompleted(1, 3, "incomplete")
	p.RetryLoopCompleted(2, 3, "completed")
	p.TimeExhausted(time.Hour, 3, 5)
	p.HistoryCompressed(30, 10)
	p.StrategyAdjusted(5*time.Second, "repeated timeouts")
	p.Escalation("CRITICAL", "consecutive issues", 4)
	p.Complete(CompletePayload{Status: "completed"})
	p.FatalError(errors.New("boom"))

	want := []string{
		EventTypeInitialized,
		EventTypeStarted,
		EventTypePlanning,
		EventTypePlanCreated,
		EventTypePlanReviewStarted,
		EventTypePlanReviewComplete,
		EventTypePlanReviewWarning,
		EventTypeResuming,
		EventTypePlanRestored,
		EventTypeStepDecomposing,
		EventTypeStepDecomposed,
		EventTypeParallelBatchStarted,
		EventTypeParallelBatchCompleted,
		EventTypeIterationComplete,
		EventTypeDuplicateResponse,
		EventTypeStepVerificationPending,
		EventTypeStepVerificationStarted,
		EventTypeStepComplete,
		EventTypeStepRejected,
		EventTypeStepBlockedReplanning,
		EventTypeSubPlanCreating,
		EventTypeSubPlanCreated,
		EventTypeSubPlanFailed,
		EventTypeStepFailed,
		EventTypeStepBlocked,
		EventTypeStepSkipped,
		EventTypeVerificationStarted,
		EventTypeFinalVerificationStarted,
		EventTypeGoalVerificationComplete,
		EventTypeSmokeTestsComplete,
		EventTypeFinalVerificationPassed,
		EventTypeFinalVerificationFailed,
		EventTypeRetryLoopStarted,
		EventTypeAttemptStarting,
		EventTypeAttemptCompleted,
		EventTypeRetryLoopCompleted,
		EventTypeTimeExhausted,
		EventTypeHistoryCompressed,
		EventTypeStrategyAdjusted,
		EventTypeEscalation,
		EventTypeComplete,
		EventTypeFatalError,
	}

	history := bus.Catchup(0, 0)
	require.Len(t, history, len(want))
	for i, evt := range history {
		assert.Equal(t, want[i], evt.Type, "event %d", i)
	}
}
