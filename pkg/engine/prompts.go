package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/claude-runner/claude-runner/pkg/plan"
	"github.com/claude-runner/claude-runner/pkg/supervisor"
)

const workerSystemTemplate = `You are an autonomous coding agent. You work toward one goal without human help; the operator is not watching and will not answer questions.

GOAL: %s
%sWORKING DIRECTORY: %s
%s
Rules:
1. Decide and proceed. Never wait for confirmation.
2. Work on exactly one plan step at a time, in plan order.
3. When a step is genuinely done, say STEP <number> COMPLETE and list the evidence: the files you created or changed and the commands you ran with their results.
4. If a step cannot proceed, say STEP <number> BLOCKED: <reason>.
5. When every step is done and the goal is fully achieved, say TASK COMPLETE with a summary of the evidence.
6. Never claim completion early. Claims are checked against the file system and by running the project's own tests.`

// workerSystemContext renders the system context for worker sessions.
// Every fresh session gets the same rules; continuity across restarts
// comes from the context block in the first prompt, not from here.
func workerSystemContext(goal Goal) string {
	sub := ""
	if len(goal.SubGoals) > 0 {
		var sb strings.Builder
		sb.WriteString("SUB-GOALS:\n")
		for _, s := range goal.SubGoals {
			sb.WriteString("- " + s + "\n")
		}
		sub = sb.String()
	}
	extra := ""
	if strings.TrimSpace(goal.Context) != "" {
		extra = "\nContext:\n" + strings.TrimSpace(goal.Context) + "\n"
	}
	return fmt.Sprintf(workerSystemTemplate, goal.Statement, sub, goal.Workdir, extra)
}

// planOutline renders the plan as a checklist for the first prompt of a
// session.
func planOutline(pl *plan.Plan) string {
	var sb strings.Builder
	for _, st := range pl.Steps {
		marker := " "
		switch st.Status {
		case plan.StatusCompleted:
			marker = "x"
		case plan.StatusInProgress:
			marker = ">"
		case plan.StatusFailed, plan.StatusSkipped:
			marker = "-"
		}
		fmt.Fprintf(&sb, "[%s] %s. %s\n", marker, st.Number, st.Description)
	}
	return sb.String()
}

// workOrder is the closing directive of every iteration prompt.
func workOrder(st *plan.Step) string {
	return fmt.Sprintf("Work on step %s now: %s\nReport STEP %s COMPLETE with evidence when it is done, or STEP %s BLOCKED: <reason> if it cannot proceed.",
		st.Number, st.Description, st.Number, st.Number)
}

// timePressure returns the urgency line for the remaining budget, empty
// while there is plenty of time.
func timePressure(left time.Duration) string {
	switch {
	case left < 5*time.Minute:
		return fmt.Sprintf("TIME: %s left. Stop opening new work. Finish or wind down the current step and report honest state.",
			left.Round(time.Second))
	case left < 15*time.Minute:
		return fmt.Sprintf("TIME: only %s left. Prefer finishing the current step over starting anything new.",
			left.Round(time.Minute))
	case left < 30*time.Minute:
		return fmt.Sprintf("TIME: %s left in the budget. Keep changes small and verifiable.",
			left.Round(time.Minute))
	default:
		return ""
	}
}

func goalReminder(goal string, subGoals []string) string {
	var sb strings.Builder
	sb.WriteString("Reminder of the goal: " + goal)
	for _, s := range subGoals {
		sb.WriteString("\n- " + s)
	}
	return sb.String()
}

const progressCheckLine = `Also report: your percent-complete estimate for the current step and what concretely remains.`

// coachingPrompt renders the supervisor's intervention as the next
// user turn. The severity grows with the action.
func coachingPrompt(action supervisor.Action, reason, goal string) string {
	if reason == "" {
		reason = "recent turns are not advancing the goal"
	}
	switch action {
	case supervisor.ActionCorrect:
		return fmt.Sprintf("Course correction: %s\nReturn to the current step and address this before anything else.", reason)
	case supervisor.ActionRefocus:
		return fmt.Sprintf("STOP. You are drifting from the goal (%s).\nSupervisor: %s\nRe-read the current step and do only that work.", goal, reason)
	default:
		return fmt.Sprintf("Reminder: the goal is %q. Stay on the current step; avoid side quests. (%s)", goal, reason)
	}
}

func criticalPrompt(reason string, consecutiveIssues int) string {
	if reason == "" {
		reason = "no visible progress"
	}
	return fmt.Sprintf("CRITICAL: %d low-progress turns in a row (%s).\nChange approach now. Pick the smallest concrete action that advances the current step and do it this turn.",
		consecutiveIssues, reason)
}

func stepRejectedPrompt(st *plan.Step, reason string) string {
	return fmt.Sprintf("Your STEP %s COMPLETE claim was rejected: %s\nThe step is still open. Finish it, then claim again with concrete evidence: files changed and commands run with their output.",
		st.Number, reason)
}

// subPlanPrompt announces injected salvage steps to the worker.
func subPlanPrompt(parent *plan.Step, children []*plan.Step) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Step %s is blocked. A recovery sequence was added:\n", parent.Number)
	for _, c := range children {
		fmt.Fprintf(&sb, "%s. %s\n", c.Number, c.Description)
	}
	fmt.Fprintf(&sb, "Start with step %s.", children[0].Number)
	return sb.String()
}

// reviewAdvicePrompt folds a disapproving plan review into the next
// prompt. Review is advisory; execution proceeds regardless.
func reviewAdvicePrompt(review *supervisor.PlanReview) string {
	var sb strings.Builder
	sb.WriteString("A reviewer flagged the plan before execution. Keep these points in mind while working:\n")
	for _, iss := range review.Issues {
		sb.WriteString("- " + iss + "\n")
	}
	for _, m := range review.MissingSteps {
		sb.WriteString("- missing: " + m + "\n")
	}
	for _, s := range review.Suggestions {
		sb.WriteString("- " + s + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// batchStepPrompt is the whole conversation for a parallel worker: one
// step, one turn, report and stop.
func batchStepPrompt(st *plan.Step) string {
	return fmt.Sprintf("Complete this single step, then stop:\nStep %s: %s\nReport STEP %s COMPLETE with evidence (files changed, commands run), or STEP %s BLOCKED: <reason> if it cannot proceed. Do not work on anything else.",
		st.Number, st.Description, st.Number, st.Number)
}

const summaryPrompt = `Time is up for this run. Reply with a short handover summary: what was completed, what remains, and anything the next run should know. Do not start new work.`

// gapContext builds the planning context for a follow-up cycle from the
// verification verdict and the failed steps of the executed plan.
func gapContext(gv *supervisor.GoalVerification, pl *plan.Plan) string {
	var sb strings.Builder
	sb.WriteString("A previous plan was executed but verification found the goal incomplete.\n")
	if gv != nil && len(gv.Gaps) > 0 {
		sb.WriteString("Remaining gaps:\n")
		for _, g := range gv.Gaps {
			sb.WriteString("- " + g + "\n")
		}
	}
	if pl != nil {
		if failed := pl.FailedSteps(); len(failed) > 0 {
			sb.WriteString("Failed steps:\n")
			for _, st := range failed {
				fmt.Fprintf(&sb, "- %s: %s (%s)\n", st.Number, st.Description, st.FailReason)
			}
		}
	}
	if gv != nil && gv.Recommendation != "" {
		sb.WriteString("Recommendation: " + gv.Recommendation + "\n")
	}
	sb.WriteString("Plan only the work that closes these gaps. Do not repeat completed work.")
	return sb.String()
}
