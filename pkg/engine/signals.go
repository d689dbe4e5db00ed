package engine

import (
	"regexp"
	"strings"
)

// Signals is what one worker response declared about its own progress.
// Blocked wins over step completion when a response carries both; an
// agent that says "STEP COMPLETE ... STEP BLOCKED: x" is blocked.
type Signals struct {
	StepComplete  bool
	StepNumber    string // optional number the sentinel carried
	Blocked       bool
	BlockedReason string
	GoalClaimed   bool
}

var (
	stepCompleteRe = regexp.MustCompile(`(?i)\bSTEP\s+(?:(\d+(?:\.\d+)*)\s+)?COMPLETE`)
	stepBlockedRe  = regexp.MustCompile(`(?im)\bSTEP\s+(?:(\d+(?:\.\d+)*)\s+)?BLOCKED[:\s]*(.*)$`)

	// percentRe matches an explicit full-progress claim ("100%" and
	// "100 %"), not 100 embedded in a larger number.
	percentRe = regexp.MustCompile(`\b100\s*%`)
)

// goalPhrases are the completion claims the worker is told to emit plus
// the variants agents produce anyway. Matched case-insensitively on the
// whole response.
var goalPhrases = []string{
	"task complete",
	"goal achieved",
	"all goals met",
	"successfully completed all",
	"finished all",
	"all sub-goals complete",
}

// DetectSignals scans one response for the completion and blockage
// sentinels. Detection is deliberately tolerant: the sentinels arrive
// from a language model, so numbering, casing, and trailing punctuation
// all vary.
func DetectSignals(text string) Signals {
	var sig Signals

	if m := stepCompleteRe.FindStringSubmatch(text); m != nil {
		sig.StepComplete = true
		sig.StepNumber = m[1]
	}
	if m := stepBlockedRe.FindStringSubmatch(text); m != nil {
		sig.Blocked = true
		if m[1] != "" {
			sig.StepNumber = m[1]
		}
		sig.BlockedReason = strings.TrimSpace(m[2])
		if sig.BlockedReason == "" {
			sig.BlockedReason = "unspecified"
		}
		sig.StepComplete = false
	}

	lower := strings.ToLower(text)
	for _, phrase := range goalPhrases {
		if strings.Contains(lower, phrase) {
			sig.GoalClaimed = true
			break
		}
	}
	if !sig.GoalClaimed && percentRe.MatchString(text) {
		sig.GoalClaimed = true
	}
	return sig
}
