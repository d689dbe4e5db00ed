package verifier

import (
	"fmt"
	"strings"
)

// challengeTemplate demands the evidence the parser knows how to read.
// %s = objective, %s = sub-goal checklist.
const challengeTemplate = `Before this can be marked complete, provide concrete evidence.

Objective: %s

Respond with ALL of the following:
1. The exact paths of every file you created or modified, one per line.
2. The most critical piece of implementation code, in a fenced code block.
3. One command that verifies the work (test or build), in backticks.
4. This checklist with "[x]" on every item you actually completed:
%s

If the task required only reading or analysis, say so explicitly and include the command or code that produced your answer.`

// ChallengePrompt builds the layer-1 evidence demand for an objective
// (a step description or the whole goal).
func ChallengePrompt(objective string, subGoals []string) string {
	items := subGoals
	if len(items) == 0 {
		items = []string{objective}
	}
	var sb strings.Builder
	for _, item := range items {
		fmt.Fprintf(&sb, "- [ ] %s\n", item)
	}
	return fmt.Sprintf(challengeTemplate, objective, strings.TrimRight(sb.String(), "\n"))
}

// rejectionTemplate tells the agent which layer failed and what to
// produce before claiming again.
// %s = objective, %s = failure description, %s = demand.
const rejectionTemplate = `Your completion claim was rejected.

Objective: %s
Failed check: %s

%s

Do not claim completion again until this is addressed. Continue working now.`

func rejectionPrompt(objective, layer, reason string) string {
	var demand string
	switch layer {
	case LayerEvidence:
		demand = "Provide the exact file paths you changed and at least one code snippet or runnable verification command."
	case LayerArtifacts:
		demand = "Create the claimed files with real content, or correct the paths so they point at files that exist."
	case LayerValidation:
		demand = "Fix the failing command until it exits cleanly, then show its output."
	default:
		demand = "Produce verifiable evidence of the work."
	}
	return fmt.Sprintf(rejectionTemplate, objective, layer+": "+reason, demand)
}
