package events

// StepRef identifies a plan step inside an event payload.
type StepRef struct {
	Number      string `json:"number"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
}

// InitializedPayload is the payload for initialized events.
type InitializedPayload struct {
	Goal      string   `json:"goal"`
	SubGoals  []string `json:"sub_goals,omitempty"`
	Workdir   string   `json:"workdir"`
	SessionID string   `json:"session_id"`
}

// StartedPayload is the payload for started events.
type StartedPayload struct {
	Deadline  string `json:"deadline"` // RFC3339
	TimeLimit string `json:"time_limit"`
}

// PlanCreatedPayload is the payload for plan_created events.
type PlanCreatedPayload struct {
	Analysis   string    `json:"analysis,omitempty"`
	TotalSteps int       `json:"total_steps"`
	Steps      []StepRef `json:"steps"`
	GapPlan    bool      `json:"gap_plan,omitempty"` // true when re-planning against verification gaps
}

// PlanReviewPayload is the payload for plan_review_complete and
// plan_review_warning events.
type PlanReviewPayload struct {
	Approved     bool     `json:"approved"`
	Issues       []string `json:"issues,omitempty"`
	MissingSteps []string `json:"missing_steps,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

// ResumingPayload is the payload for resuming events.
type ResumingPayload struct {
	SessionID string `json:"session_id"`
	UpdatedAt string `json:"updated_at"`
}

// PlanRestoredPayload is the payload for plan_restored events.
type PlanRestoredPayload struct {
	CurrentStep    string `json:"current_step"`
	CompletedSteps int    `json:"completed_steps"`
	TotalSteps     int    `json:"total_steps"`
}

// StepPayload is the shared payload for single-step lifecycle events
// (step_complete, step_failed, step_blocked, step_skipped, step_rejected,
// step_verification_*, step_decomposing, step_blocked_replanning,
// subplan_creating, subplan_failed).
type StepPayload struct {
	Step    StepRef `json:"step"`
	Reason  string  `json:"reason,omitempty"`
	Elapsed string  `json:"elapsed,omitempty"`
}

// StepDecomposedPayload is the payload for step_decomposed events.
type StepDecomposedPayload struct {
	Step     StepRef   `json:"step"`
	Children []StepRef `json:"children"`
}

// SubPlanCreatedPayload is the payload for subplan_created events.
type SubPlanCreatedPayload struct {
	Step     StepRef   `json:"step"`
	SubSteps []StepRef `json:"sub_steps"`
}

// ParallelBatchPayload is the payload for parallel_batch_started and
// parallel_batch_completed events.
type ParallelBatchPayload struct {
	Steps     []StepRef `json:"steps"`
	Workers   int       `json:"workers"`
	Succeeded int       `json:"succeeded,omitempty"`
	Failed    int       `json:"failed,omitempty"`
}

// IterationPayload is the payload for iteration_complete events.
type IterationPayload struct {
	Iteration int    `json:"iteration"`
	Cycle     int    `json:"cycle"`
	Step      string `json:"step,omitempty"`
	Score     int    `json:"score"`
	Action    string `json:"action"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
	Duration  string `json:"duration"`
	TimeLeft  string `json:"time_left"`
}

// DuplicatePayload is the payload for duplicate_response_detected events.
type DuplicatePayload struct {
	Occurrences int `json:"occurrences"`
}

// GoalVerificationPayload is the payload for goal_verification_complete
// events.
type GoalVerificationPayload struct {
	Achieved       string   `json:"achieved"`   // YES, NO, PARTIAL
	Confidence     string   `json:"confidence"` // HIGH, MEDIUM, LOW
	Gaps           []string `json:"gaps,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// SmokeTestsPayload is the payload for smoke_tests_complete events.
type SmokeTestsPayload struct {
	Passed  bool     `json:"passed"`
	Ran     []string `json:"ran,omitempty"`
	Failed  []string `json:"failed,omitempty"`
	Summary string   `json:"summary"`
}

// FinalVerificationPayload is the payload for final_verification_passed
// and final_verification_failed events.
type FinalVerificationPayload struct {
	ClaimPassed    bool     `json:"claim_passed"`
	ArtifactsFound int      `json:"artifacts_found"`
	Missing        []string `json:"missing,omitempty"`
	Reasons        []string `json:"reasons,omitempty"`
}

// RetryLoopPayload is the payload for retry_loop_* and attempt_* events.
type RetryLoopPayload struct {
	Attempt     int    `json:"attempt,omitempty"`
	MaxAttempts int    `json:"max_attempts"`
	Status      string `json:"status,omitempty"`
}

// TimeExhaustedPayload is the payload for time_exhausted events.
type TimeExhaustedPayload struct {
	Elapsed        string `json:"elapsed"`
	CompletedSteps int    `json:"completed_steps"`
	TotalSteps     int    `json:"total_steps"`
}

// HistoryCompressedPayload is the payload for history_compressed events.
type HistoryCompressedPayload struct {
	MessagesBefore int `json:"messages_before"`
	MessagesAfter  int `json:"messages_after"`
}

// StrategyAdjustedPayload is the payload for strategy_adjusted events.
type StrategyAdjustedPayload struct {
	TurnDelay string `json:"turn_delay"`
	Reason    string `json:"reason"`
}

// EscalationPayload is the payload for escalation events.
type EscalationPayload struct {
	Level             string `json:"level"` // CRITICAL, ABORT, FALSE_CLAIMS
	Reason            string `json:"reason"`
	ConsecutiveIssues int    `json:"consecutive_issues,omitempty"`
}

// FatalErrorPayload is the payload for fatal_error events.
type FatalErrorPayload struct {
	Error string `json:"error"`
}

// StepSummary is one plan step in the final report.
type StepSummary struct {
	Number      string `json:"number"`
	Description string `json:"description"`
	Status      string `json:"status"`
	FailReason  string `json:"fail_reason,omitempty"`
}

// SupervisionStats summarizes the supervisor's activity for the final
// report.
type SupervisionStats struct {
	Checks        int     `json:"checks"`
	AverageScore  float64 `json:"average_score"`
	Interventions int     `json:"interventions"`
	Escalations   int     `json:"escalations"`
}

// VerifierStats summarizes the verifier's activity for the final report.
type VerifierStats struct {
	ClaimsChecked  int `json:"claims_checked"`
	ClaimsRejected int `json:"claims_rejected"`
	FilesVerified  int `json:"files_verified"`
	FilesMissing   int `json:"files_missing"`
}

// CompletePayload is the final report carried by the complete event.
type CompletePayload struct {
	Status            string                    `json:"status"` // completed, verification_failed, time_expired, aborted, stopped
	Goal              string                    `json:"goal"`
	SubGoals          []string                  `json:"sub_goals,omitempty"`
	SessionID         string                    `json:"session_id"`
	PlanSummary       []StepSummary             `json:"plan_summary"`
	Elapsed           string                    `json:"elapsed"`
	TimeLimit         string                    `json:"time_limit"`
	Iterations        int                       `json:"iterations"`
	Cycles            int                       `json:"cycles"`
	Supervision       SupervisionStats          `json:"supervision"`
	Verifier          VerifierStats             `json:"verifier"`
	FinalVerification *FinalVerificationPayload `json:"final_verification,omitempty"`
	ShutdownReason    string                    `json:"shutdown_reason,omitempty"`
}
