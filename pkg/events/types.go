// Package events provides the append-only event stream the engine emits
// and the dashboard consumes: a bounded in-memory bus with catch-up
// delivery, a typed publisher, and the WebSocket fan-out hub.
//
// Every event carries an RFC3339Nano timestamp, the owning run id, a
// monotonically increasing sequence number, and a type-specific payload.
// The bus keeps a sliding window of recent events so late subscribers
// (and reconnecting WebSocket clients) can catch up without a database.
package events

// Run lifecycle.
const (
	EventTypeInitialized = "initialized"
	EventTypeStarted     = "started"
	EventTypeComplete    = "complete"
	EventTypeFatalError  = "fatal_error"
)

// Planning.
const (
	EventTypePlanning           = "planning"
	EventTypePlanCreated        = "plan_created"
	EventTypePlanReviewStarted  = "plan_review_started"
	EventTypePlanReviewComplete = "plan_review_complete"
	EventTypePlanReviewWarning  = "plan_review_warning"
	EventTypeResuming           = "resuming"
	EventTypePlanRestored       = "plan_restored"
)

// Step execution.
const (
	EventTypeStepDecomposing         = "step_decomposing"
	EventTypeStepDecomposed          = "step_decomposed"
	EventTypeParallelBatchStarted    = "parallel_batch_started"
	EventTypeParallelBatchCompleted  = "parallel_batch_completed"
	EventTypeIterationComplete       = "iteration_complete"
	EventTypeDuplicateResponse       = "duplicate_response_detected"
	EventTypeStepVerificationPending = "step_verification_pending"
	EventTypeStepVerificationStarted = "step_verification_started"
	EventTypeStepComplete            = "step_complete"
	EventTypeStepRejected            = "step_rejected"
	EventTypeStepBlockedReplanning   = "step_blocked_replanning"
	EventTypeSubPlanCreating         = "subplan_creating"
	EventTypeSubPlanCreated          = "subplan_created"
	EventTypeSubPlanFailed           = "subplan_failed"
	EventTypeStepFailed              = "step_failed"
	EventTypeStepBlocked             = "step_blocked"
	EventTypeStepSkipped             = "step_skipped"
)

// Verification.
const (
	EventTypeVerificationStarted        = "verification_started"
	EventTypeFinalVerificationStarted   = "final_verification_started"
	EventTypeGoalVerificationComplete   = "goal_verification_complete"
	EventTypeSmokeTestsComplete         = "smoke_tests_complete"
	EventTypeFinalVerificationPassed    = "final_verification_passed"
	EventTypeFinalVerificationFailed    = "final_verification_failed"
)

// Retry loop (operator --retry mode).
const (
	EventTypeRetryLoopStarted   = "retry_loop_started"
	EventTypeAttemptStarting    = "attempt_starting"
	EventTypeAttemptCompleted   = "attempt_completed"
	EventTypeRetryLoopCompleted = "retry_loop_completed"
)

// Engine adjustments.
const (
	EventTypeTimeExhausted     = "time_exhausted"
	EventTypeHistoryCompressed = "history_compressed"
	EventTypeStrategyAdjusted  = "strategy_adjusted"
	EventTypeEscalation        = "escalation"
)

// Event is the envelope every emitted record shares. Payload holds one of
// the typed structs from payloads.go (or nil for marker events).
type Event struct {
	Seq       int64  `json:"seq"`
	ID        string `json:"id"`
	Type      string `json:"type"`
	RunID     string `json:"run_id"`
	Timestamp string `json:"timestamp"` // RFC3339Nano
	Payload   any    `json:"payload,omitempty"`
}

// ClientMessage is the JSON structure for client → server WebSocket
// messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	LastEventID *int64 `json:"last_event_id,omitempty"` // for catchup
}
