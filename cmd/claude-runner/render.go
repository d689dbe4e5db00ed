package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/claude-runner/claude-runner/pkg/events"
)

// startRenderer drains one bus subscription onto stdout for the life of
// the process: JSON lines with --json, one human line per event
// otherwise. The returned channel closes after the bus does, so callers
// can wait for the tail of the stream before printing the final report.
func startRenderer(bus *events.Bus) <-chan struct{} {
	done := make(chan struct{})
	_, ch := bus.Subscribe()
	go func() {
		defer close(done)
		enc := json.NewEncoder(os.Stdout)
		for evt := range ch {
			if opts.jsonOut {
				_ = enc.Encode(evt)
				continue
			}
			if opts.quiet {
				continue
			}
			if line := renderLine(evt); line != "" {
				fmt.Println(line)
			}
		}
	}()
	return done
}

func renderLine(evt events.Event) string {
	desc := describe(evt)
	if desc == "" {
		return ""
	}
	return fmt.Sprintf("%s  %-26s %s", clock(evt.Timestamp), evt.Type, desc)
}

func clock(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "--:--:--"
	}
	return t.Local().Format("15:04:05")
}

// describe turns an event payload into the human fragment after the
// type column. Events that return "" are not shown; the complete event
// is covered by the final report.
func describe(evt events.Event) string {
	switch p := evt.Payload.(type) {
	case events.InitializedPayload:
		return fmt.Sprintf("session %s: %s", p.SessionID, p.Goal)
	case events.StartedPayload:
		return fmt.Sprintf("budget %s, deadline %s", p.TimeLimit, p.Deadline)
	case events.PlanCreatedPayload:
		var sb strings.Builder
		label := "plan"
		if p.GapPlan {
			label = "gap plan"
		}
		fmt.Fprintf(&sb, "%s with %d steps", label, p.TotalSteps)
		for _, st := range p.Steps {
			fmt.Fprintf(&sb, "\n            %s. %s", st.Number, st.Description)
		}
		return sb.String()
	case events.PlanReviewPayload:
		if p.Approved {
			return "plan approved"
		}
		return fmt.Sprintf("%d issues, %d missing steps", len(p.Issues), len(p.MissingSteps))
	case events.ResumingPayload:
		return fmt.Sprintf("session %s, last active %s", p.SessionID, p.UpdatedAt)
	case events.PlanRestoredPayload:
		return fmt.Sprintf("%d/%d steps done, continuing at step %s", p.CompletedSteps, p.TotalSteps, p.CurrentStep)
	case events.StepPayload:
		return describeStep(evt.Type, p)
	case events.StepDecomposedPayload:
		var sb strings.Builder
		fmt.Fprintf(&sb, "step %s into %d sub-steps", p.Step.Number, len(p.Children))
		for _, c := range p.Children {
			fmt.Fprintf(&sb, "\n            %s. %s", c.Number, c.Description)
		}
		return sb.String()
	case events.SubPlanCreatedPayload:
		return fmt.Sprintf("step %s: %d sub-steps", p.Step.Number, len(p.SubSteps))
	case events.ParallelBatchPayload:
		if evt.Type == events.EventTypeParallelBatchCompleted {
			return fmt.Sprintf("%d steps on %d workers: %d succeeded, %d failed",
				len(p.Steps), p.Workers, p.Succeeded, p.Failed)
		}
		nums := make([]string, len(p.Steps))
		for i, st := range p.Steps {
			nums[i] = st.Number
		}
		return fmt.Sprintf("steps %s on %d workers", strings.Join(nums, ", "), p.Workers)
	case events.IterationPayload:
		step := ""
		if p.Step != "" {
			step = " step " + p.Step
		}
		return fmt.Sprintf("#%d cycle %d%s score %d %s (%s, %s left)",
			p.Iteration, p.Cycle, step, p.Score, p.Action, p.Duration, p.TimeLeft)
	case events.DuplicatePayload:
		return fmt.Sprintf("same response %d times in a row", p.Occurrences)
	case events.GoalVerificationPayload:
		s := fmt.Sprintf("achieved=%s confidence=%s", p.Achieved, p.Confidence)
		if len(p.Gaps) > 0 {
			s += fmt.Sprintf(", %d gaps: %s", len(p.Gaps), strings.Join(p.Gaps, "; "))
		}
		return s
	case events.SmokeTestsPayload:
		verdict := "passed"
		if !p.Passed {
			verdict = fmt.Sprintf("failed (%s)", strings.Join(p.Failed, "; "))
		}
		return fmt.Sprintf("%d commands, %s", len(p.Ran), verdict)
	case events.FinalVerificationPayload:
		if evt.Type == events.EventTypeFinalVerificationPassed {
			return fmt.Sprintf("%d artifacts confirmed", p.ArtifactsFound)
		}
		return strings.Join(p.Reasons, "; ")
	case events.RetryLoopPayload:
		return describeRetry(evt.Type, p)
	case events.TimeExhaustedPayload:
		return fmt.Sprintf("after %s with %d/%d steps done", p.Elapsed, p.CompletedSteps, p.TotalSteps)
	case events.HistoryCompressedPayload:
		return fmt.Sprintf("%d messages to %d", p.MessagesBefore, p.MessagesAfter)
	case events.StrategyAdjustedPayload:
		return fmt.Sprintf("turn delay %s: %s", p.TurnDelay, p.Reason)
	case events.EscalationPayload:
		return fmt.Sprintf("[%s] %s", p.Level, p.Reason)
	case events.FatalErrorPayload:
		return p.Error
	case events.CompletePayload:
		return ""
	}

	switch evt.Type {
	case events.EventTypePlanning:
		return "drafting the plan"
	case events.EventTypePlanReviewStarted:
		return "supervisor reviewing the plan"
	case events.EventTypeVerificationStarted, events.EventTypeFinalVerificationStarted:
		return "checking results against the goal"
	}
	return evt.Type
}

func describeStep(eventType string, p events.StepPayload) string {
	switch eventType {
	case events.EventTypeStepComplete:
		return fmt.Sprintf("step %s done in %s", p.Step.Number, p.Elapsed)
	case events.EventTypeStepVerificationPending, events.EventTypeStepVerificationStarted:
		return fmt.Sprintf("step %s", p.Step.Number)
	case events.EventTypeSubPlanCreating:
		return fmt.Sprintf("planning sub-steps for step %s", p.Step.Number)
	}
	s := fmt.Sprintf("step %s", p.Step.Number)
	if p.Reason != "" {
		s += ": " + p.Reason
	}
	return s
}

func describeRetry(eventType string, p events.RetryLoopPayload) string {
	switch eventType {
	case events.EventTypeRetryLoopStarted:
		return fmt.Sprintf("up to %d attempts", p.MaxAttempts)
	case events.EventTypeAttemptStarting:
		return fmt.Sprintf("attempt %d/%d", p.Attempt, p.MaxAttempts)
	case events.EventTypeAttemptCompleted:
		return fmt.Sprintf("attempt %d/%d: %s", p.Attempt, p.MaxAttempts, p.Status)
	default:
		return fmt.Sprintf("%s after %d/%d attempts", p.Status, p.Attempt, p.MaxAttempts)
	}
}

// ── final report ──

func printReport(r *events.CompletePayload) {
	if r == nil || opts.jsonOut {
		return
	}

	fmt.Printf("\nRun finished: %s\n", r.Status)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "  goal:\t%s\n", r.Goal)
	for _, sub := range r.SubGoals {
		fmt.Fprintf(w, "  sub-goal:\t%s\n", sub)
	}
	fmt.Fprintf(w, "  session:\t%s\n", r.SessionID)
	fmt.Fprintf(w, "  elapsed:\t%s of %s\n", r.Elapsed, r.TimeLimit)
	fmt.Fprintf(w, "  iterations:\t%d across %d cycles\n", r.Iterations, r.Cycles)
	if r.Supervision.Checks > 0 {
		fmt.Fprintf(w, "  supervision:\t%d checks, average score %.1f, %d interventions, %d escalations\n",
			r.Supervision.Checks, r.Supervision.AverageScore, r.Supervision.Interventions, r.Supervision.Escalations)
	}
	if r.Verifier.ClaimsChecked > 0 || r.Verifier.FilesVerified > 0 {
		fmt.Fprintf(w, "  verifier:\t%d claims checked (%d rejected), %d files verified (%d missing)\n",
			r.Verifier.ClaimsChecked, r.Verifier.ClaimsRejected, r.Verifier.FilesVerified, r.Verifier.FilesMissing)
	}
	if fv := r.FinalVerification; fv != nil {
		verdict := "failed"
		if fv.ClaimPassed {
			verdict = "passed"
		}
		detail := fmt.Sprintf("%d artifacts found", fv.ArtifactsFound)
		if len(fv.Missing) > 0 {
			detail += fmt.Sprintf(", %d missing", len(fv.Missing))
		}
		fmt.Fprintf(w, "  verification:\t%s, %s\n", verdict, detail)
	}
	if r.ShutdownReason != "" {
		fmt.Fprintf(w, "  shutdown:\t%s\n", r.ShutdownReason)
	}
	w.Flush()

	if len(r.PlanSummary) == 0 {
		return
	}
	fmt.Println("  plan:")
	pw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, st := range r.PlanSummary {
		desc := st.Description
		if st.FailReason != "" {
			desc += ": " + st.FailReason
		}
		fmt.Fprintf(pw, "    [%s]\t%s.\t%s\n", stepMarker(st.Status), st.Number, desc)
	}
	pw.Flush()
}

func stepMarker(status string) string {
	switch status {
	case "completed":
		return "x"
	case "in_progress":
		return ">"
	case "failed", "skipped":
		return "-"
	case "blocked":
		return "!"
	case "decomposed":
		return "*"
	default:
		return " "
	}
}
