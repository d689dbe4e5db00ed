// Package supervisor runs the second, read-only agent conversation
// that watches the worker: it scores every response against the goal,
// escalates interventions along a fixed ladder, reviews plans before
// execution, and verifies step and goal completion claims.
package supervisor

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"

	"github.com/claude-runner/claude-runner/pkg/agent"
	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/events"
	"github.com/claude-runner/claude-runner/pkg/memory"
	"github.com/claude-runner/claude-runner/pkg/plan"
)

// Action is the supervisor's intervention decision for one check.
type Action string

const (
	ActionContinue Action = "CONTINUE"
	ActionRemind   Action = "REMIND"
	ActionCorrect  Action = "CORRECT"
	ActionRefocus  Action = "REFOCUS"
	ActionCritical Action = "CRITICAL"
	ActionAbort    Action = "ABORT"
)

// Escalation ladder thresholds over the consecutive-issue counter.
const (
	correctThreshold = 2
	refocusThreshold = 3
	// WarnThreshold is where duplicate-response detection forces the
	// counter; the next issue after it aborts.
	WarnThreshold  = 4
	abortThreshold = 5
)

// Score bands.
const (
	continueScore = 70
	remindScore   = 50
	refocusScore  = 30
)

// How much text feeds the prompt and the cache key.
const (
	assessPromptMax = 4000
	cacheKeyPrefix  = 500
)

// Assessment is the outcome of one supervision check.
type Assessment struct {
	Score  int
	Action Action
	Reason string
	Cached bool
}

// PlanReview is the supervisor's pre-execution verdict on a plan.
// Review never blocks execution; a disapproval surfaces as a warning.
type PlanReview struct {
	Approved     bool
	Issues       []string
	MissingSteps []string
	Suggestions  []string
}

// StepVerification is the verdict on one step-completion claim.
type StepVerification struct {
	Verified bool
	Reason   string
}

// GoalVerification is the verdict on the whole goal.
type GoalVerification struct {
	Achieved       Verdict
	Confidence     Confidence
	Gaps           []string
	Recommendation string
	Reason         string
}

// Supervisor owns the scoring conversation and the consecutive-issue
// counter. One instance serves one run.
type Supervisor struct {
	driver agent.Driver
	cfg    *config.SupervisorConfig
	goal   string
	cache  *memory.Cache
	logger *slog.Logger

	mu                sync.Mutex
	consecutiveIssues int
	scores            []int
	checks            int
	scoreSum          int
	interventions     int
	escalations       int
}

// New builds a supervisor on its own agent driver.
func New(factory agent.Factory, cfg *config.SupervisorConfig, goal string) *Supervisor {
	return &Supervisor{
		driver: factory.NewDriver(config.RoleSupervisor),
		cfg:    cfg,
		goal:   goal,
		cache:  memory.NewCache(cfg.AssessmentCacheSize, cfg.AssessmentCacheTTL),
		logger: slog.Default().With("component", "supervisor"),
	}
}

// Check scores the worker's latest response and decides the
// intervention. Identical responses under an identical issue count hit
// the assessment cache; only CONTINUE outcomes are cached so an
// intervention is never replayed from stale state.
func (s *Supervisor) Check(ctx context.Context, lastResponse string, recentActions []string, currentStepCtx string) (*Assessment, error) {
	s.mu.Lock()
	issues := s.consecutiveIssues
	s.mu.Unlock()

	key := s.cacheKey(lastResponse, issues)
	if v, ok := s.cache.Get(key); ok {
		cached := v.(*Assessment)
		s.recordCheck(cached.Score, ActionContinue)
		return &Assessment{Score: cached.Score, Action: ActionContinue, Reason: cached.Reason, Cached: true}, nil
	}

	if n := s.cfg.RecentActionWindow; n > 0 && len(recentActions) > n {
		recentActions = recentActions[len(recentActions)-n:]
	}
	actionsBlock := "- none"
	if len(recentActions) > 0 {
		actionsBlock = "- " + strings.Join(recentActions, "\n- ")
	}
	prompt := fmt.Sprintf(checkUserTemplate,
		s.goal, currentStepCtx, actionsBlock, truncate(lastResponse, assessPromptMax))

	res, err := s.driver.StartSession(ctx, checkSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("supervision turn failed: %w", err)
	}

	score, ok := parseScore(res.Text)
	reason := parseReason(res.Text)
	if !ok {
		// A broken supervisor must not punish the worker.
		s.logger.Warn("Unparseable supervision response, defaulting to continue")
		score = continueScore
		if reason == "" {
			reason = "supervision response unparseable"
		}
	}

	action := s.decide(score)
	s.recordCheck(score, action)
	a := &Assessment{Score: score, Action: action, Reason: reason}
	if action == ActionContinue {
		s.cache.Put(key, a)
	}
	return a, nil
}

// decide applies the escalation ladder and updates the
// consecutive-issue counter.
func (s *Supervisor) decide(score int) Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	if score >= continueScore {
		s.consecutiveIssues = 0
		return ActionContinue
	}
	s.consecutiveIssues++
	issues := s.consecutiveIssues

	switch {
	case issues >= abortThreshold:
		return ActionAbort
	case issues >= WarnThreshold:
		return ActionCritical
	case score < refocusScore || issues >= refocusThreshold:
		return ActionRefocus
	case score < remindScore || issues >= correctThreshold:
		return ActionCorrect
	default:
		return ActionRemind
	}
}

// NoteDuplicate forces the consecutive-issue counter to the warn
// threshold. Called by the engine when the worker repeats itself.
func (s *Supervisor) NoteDuplicate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consecutiveIssues < WarnThreshold {
		s.consecutiveIssues = WarnThreshold
	}
}

// ConsecutiveIssues returns the current counter value.
func (s *Supervisor) ConsecutiveIssues() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveIssues
}

// ReviewPlan asks for a pre-execution review. Unparseable output
// approves: review is advisory and never blocks a run.
func (s *Supervisor) ReviewPlan(ctx context.Context, pl *plan.Plan) (*PlanReview, error) {
	prompt := fmt.Sprintf(reviewUserTemplate, s.goal, planListing(pl))
	res, err := s.driver.StartSession(ctx, reviewSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan review turn failed: %w", err)
	}

	approved := true
	if m := approvedRe.FindStringSubmatch(res.Text); m != nil {
		approved = !IsFalsy(m[1])
	}
	return &PlanReview{
		Approved:     approved,
		Issues:       parseList(res.Text, "issues"),
		MissingSteps: parseList(res.Text, "missing_steps"),
		Suggestions:  parseList(res.Text, "suggestions"),
	}, nil
}

// VerifyStepCompletion checks one completion claim against the step
// description. Only a definite NO rejects; inconclusive verdicts pass
// so a garbled supervisor cannot wedge the run on one step.
func (s *Supervisor) VerifyStepCompletion(ctx context.Context, step *plan.Step, response string) (*StepVerification, error) {
	prompt := fmt.Sprintf(stepVerifyUserTemplate, step.Description, truncate(response, assessPromptMax))
	res, err := s.driver.StartSession(ctx, stepVerifySystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("step verification turn failed: %w", err)
	}

	verified := true
	if m := verifiedRe.FindStringSubmatch(res.Text); m != nil {
		verified = !IsFalsy(m[1])
	}
	return &StepVerification{Verified: verified, Reason: parseReason(res.Text)}, nil
}

// VerifyGoalAchieved checks the whole goal against the final plan
// state. A missing ACHIEVED field reads as PARTIAL and a missing
// CONFIDENCE as LOW, so absent output can never pass for certainty.
func (s *Supervisor) VerifyGoalAchieved(ctx context.Context, pl *plan.Plan, workdir string) (*GoalVerification, error) {
	prompt := fmt.Sprintf(goalVerifyUserTemplate, s.goal, statusListing(pl), workdir)
	res, err := s.driver.StartSession(ctx, goalVerifySystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("goal verification turn failed: %w", err)
	}

	achieved := VerdictPartial
	if m := achievedRe.FindStringSubmatch(res.Text); m != nil {
		achieved = ParseVerdict(m[1])
	}
	confidence := ConfidenceLow
	if m := confidenceRe.FindStringSubmatch(res.Text); m != nil {
		confidence = ParseConfidence(m[1])
	}
	recommendation := ""
	if m := recommendationRe.FindStringSubmatch(res.Text); m != nil {
		recommendation = strings.TrimSpace(m[1])
	}
	return &GoalVerification{
		Achieved:       achieved,
		Confidence:     confidence,
		Gaps:           parseList(res.Text, "gaps"),
		Recommendation: recommendation,
		Reason:         parseReason(res.Text),
	}, nil
}

// Stats summarizes supervision activity for the final report.
func (s *Supervisor) Stats() events.SupervisionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	avg := 0.0
	if s.checks > 0 {
		avg = float64(s.scoreSum) / float64(s.checks)
	}
	return events.SupervisionStats{
		Checks:        s.checks,
		AverageScore:  avg,
		Interventions: s.interventions,
		Escalations:   s.escalations,
	}
}

func (s *Supervisor) recordCheck(score int, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	s.scoreSum += score
	s.scores = append(s.scores, score)
	if limit := s.cfg.ScoreHistoryLimit; limit > 0 && len(s.scores) > limit {
		s.scores = s.scores[len(s.scores)-limit:]
	}
	if action != ActionContinue {
		s.interventions++
	}
	if action == ActionCritical || action == ActionAbort {
		s.escalations++
	}
}

// cacheKey hashes the response prefix with the goal and the issue
// count. The counter is part of the key: the same response deserves a
// different look once the agent is already in trouble.
func (s *Supervisor) cacheKey(response string, issues int) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(truncate(response, cacheKeyPrefix)))
	return fmt.Sprintf("%x|%s|%d", h.Sum64(), s.goal, issues)
}

func planListing(pl *plan.Plan) string {
	var sb strings.Builder
	for _, st := range pl.Steps {
		fmt.Fprintf(&sb, "%s. %s [%s]\n", st.Number, st.Description, st.Complexity)
	}
	return sb.String()
}

func statusListing(pl *plan.Plan) string {
	var sb strings.Builder
	for _, st := range pl.Steps {
		fmt.Fprintf(&sb, "%s. %s: %s", st.Number, st.Description, st.Status)
		if st.FailReason != "" {
			fmt.Fprintf(&sb, " (%s)", st.FailReason)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
