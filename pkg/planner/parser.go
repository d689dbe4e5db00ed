package planner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/claude-runner/claude-runner/pkg/plan"
)

// ParsedPlan is the structured result of parsing a planning response.
type ParsedPlan struct {
	Analysis string
	Steps    []*plan.Step

	// TotalSteps is the count the agent declared, 0 when absent.
	TotalSteps int

	// Fallback is set when the strict template was missing and the
	// steps came from bare numbered-list extraction.
	Fallback bool
}

// Patterns compiled once.
var (
	numberedLineRe = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.*\S)\s*$`)
	analysisRe     = regexp.MustCompile(`(?i)^analysis:\s*(.*)$`)
	planHeaderRe   = regexp.MustCompile(`(?i)^plan:\s*$`)
	totalStepsRe   = regexp.MustCompile(`(?i)^total_steps:\s*(\d+)\s*$`)
	subPlanRe      = regexp.MustCompile(`(?i)^sub_?plan:\s*$`)
	substepsRe     = regexp.MustCompile(`(?i)^substeps:\s*$`)
)

// ParsePlanResponse parses the strict ANALYSIS/PLAN/TOTAL_STEPS
// template, falling back to bare numbered-list extraction when the
// template is absent. Steps are renumbered sequentially so the plan
// always validates. Never returns an error; an unparseable response
// yields an empty step list for the caller to handle.
func ParsePlanResponse(text string) *ParsedPlan {
	parsed := &ParsedPlan{}
	var analysisLines []string
	section := ""

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)

		if m := analysisRe.FindStringSubmatch(line); m != nil {
			section = "analysis"
			if m[1] != "" {
				analysisLines = append(analysisLines, m[1])
			}
			continue
		}
		if planHeaderRe.MatchString(line) {
			section = "plan"
			continue
		}
		if m := totalStepsRe.FindStringSubmatch(line); m != nil {
			parsed.TotalSteps, _ = strconv.Atoi(m[1])
			section = ""
			continue
		}

		switch section {
		case "analysis":
			if line != "" {
				analysisLines = append(analysisLines, line)
			}
		case "plan":
			if m := numberedLineRe.FindStringSubmatch(line); m != nil {
				parsed.Steps = append(parsed.Steps, parseStepLine(m[2]))
			} else if line != "" && len(parsed.Steps) > 0 {
				// Continuation of the previous description.
				last := parsed.Steps[len(parsed.Steps)-1]
				last.Description += " " + line
			}
		}
	}
	parsed.Analysis = strings.Join(analysisLines, " ")

	if len(parsed.Steps) == 0 {
		parsed.Steps = extractNumberedList(text)
		parsed.Fallback = len(parsed.Steps) > 0
	}
	renumber(parsed.Steps)
	return parsed
}

// parseStepLine splits "description | complexity". A missing or
// unrecognized tag defaults to medium via ParseComplexity.
func parseStepLine(line string) *plan.Step {
	desc := line
	complexity := ""
	if idx := strings.LastIndex(line, "|"); idx >= 0 {
		tag := strings.TrimSpace(line[idx+1:])
		// Only treat the tail as a tag when it is a single word;
		// descriptions may legitimately contain pipes.
		if tag != "" && !strings.ContainsAny(tag, " \t") {
			desc = strings.TrimSpace(line[:idx])
			complexity = tag
		}
	}
	return &plan.Step{
		Description: desc,
		Complexity:  plan.ParseComplexity(complexity),
		Status:      plan.StatusPending,
	}
}

// extractNumberedList pulls every numbered line out of free text.
// Used when the agent ignored the template.
func extractNumberedList(text string) []*plan.Step {
	var steps []*plan.Step
	for _, rawLine := range strings.Split(text, "\n") {
		if m := numberedLineRe.FindStringSubmatch(strings.TrimSpace(rawLine)); m != nil {
			steps = append(steps, parseStepLine(m[2]))
		}
	}
	return steps
}

// parseSubList parses a headed numbered list (SUB_PLAN: or SUBSTEPS:).
// Returns nil when the agent answered NONE or produced no usable list.
func parseSubList(text string, header *regexp.Regexp) []*plan.Step {
	var steps []*plan.Step
	inSection := false
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if strings.EqualFold(line, "NONE") {
			return nil
		}
		if header.MatchString(line) {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if m := numberedLineRe.FindStringSubmatch(line); m != nil {
			steps = append(steps, parseStepLine(m[2]))
		}
	}
	if len(steps) == 0 {
		// Headerless but numbered output still counts.
		steps = extractNumberedList(text)
	}
	return steps
}

// renumber assigns sequential top-level numbers. Agent numbering is
// untrusted; gaps and duplicates are common.
func renumber(steps []*plan.Step) {
	for i, s := range steps {
		s.Number = strconv.Itoa(i + 1)
	}
}
