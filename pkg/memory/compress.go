package memory

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/claude-runner/claude-runner/pkg/agent"
)

var (
	stepCompleteRe = regexp.MustCompile(`(?i)step\s+(\d+(?:\.\d+)*)\s+(?:is\s+)?complete`)
	stepDoneAltRe  = regexp.MustCompile(`(?i)completed\s+step\s+(\d+(?:\.\d+)*)`)
	fileOpRe       = regexp.MustCompile(`(?i)\b(created|wrote|updated|modified|deleted)\b\s+` + "`?" + `([\w./-]+\.\w+)` + "`?")
	errorLineRe    = regexp.MustCompile(`(?im)^.*\b(error|failed|exception)\b.*$`)
	decisionRe     = regexp.MustCompile(`(?im)^.*\b(decided to|decision:|will use|chose)\b.*$`)
)

// keyPoints distills a batch of folded messages into a single
// semicolon-separated summary line: completed steps, file operations,
// the first error seen, and recorded decisions.
func keyPoints(folded []agent.Message) string {
	var points []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		points = append(points, p)
	}

	var firstError string
	for _, msg := range folded {
		for _, m := range stepCompleteRe.FindAllStringSubmatch(msg.Content, -1) {
			add(fmt.Sprintf("completed step %s", m[1]))
		}
		for _, m := range stepDoneAltRe.FindAllStringSubmatch(msg.Content, -1) {
			add(fmt.Sprintf("completed step %s", m[1]))
		}
		for _, m := range fileOpRe.FindAllStringSubmatch(msg.Content, -1) {
			add(fmt.Sprintf("%s %s", strings.ToLower(m[1]), m[2]))
		}
		if firstError == "" {
			if line := errorLineRe.FindString(msg.Content); line != "" {
				firstError = condense(line)
			}
		}
		for _, line := range decisionRe.FindAllString(msg.Content, -1) {
			add(condense(line))
		}
	}
	if firstError != "" {
		add("hit: " + firstError)
	}

	if len(points) == 0 {
		return fmt.Sprintf("%d earlier messages elided", len(folded))
	}
	return strings.Join(points, "; ")
}

// condense trims a line to a single short clause.
func condense(line string) string {
	line = strings.TrimSpace(line)
	if len(line) > 120 {
		line = line[:120]
	}
	return line
}
