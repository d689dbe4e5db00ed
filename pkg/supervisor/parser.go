package supervisor

import (
	"regexp"
	"strconv"
	"strings"
)

// Patterns compiled once. All field headers are matched
// case-insensitively at line starts.
var (
	scoreRe          = regexp.MustCompile(`(?im)^score:\s*(\d+)`)
	reasonRe         = regexp.MustCompile(`(?im)^reason:\s*(.+)$`)
	approvedRe       = regexp.MustCompile(`(?im)^approved:\s*(\S+)`)
	verifiedRe       = regexp.MustCompile(`(?im)^verified:\s*(\S+)`)
	achievedRe       = regexp.MustCompile(`(?im)^achieved:\s*(\S+)`)
	confidenceRe     = regexp.MustCompile(`(?im)^confidence:\s*(\S+)`)
	recommendationRe = regexp.MustCompile(`(?im)^recommendation:\s*(.+)$`)
	bulletRe         = regexp.MustCompile(`^\s*[-*]\s+(.*\S)\s*$`)
	listHeaderRe     = regexp.MustCompile(`(?i)^(issues|missing_steps|suggestions|gaps):\s*$`)
)

// parseScore extracts "SCORE: n" clamped to [0,100]; ok is false when
// the field is absent.
func parseScore(text string) (int, bool) {
	m := scoreRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return n, true
}

// parseReason extracts the first "REASON:" line.
func parseReason(text string) string {
	if m := reasonRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// parseList extracts the bullets under a named list header. A single
// "none" bullet reads as an empty list.
func parseList(text, header string) []string {
	var items []string
	inSection := false
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if m := listHeaderRe.FindStringSubmatch(line); m != nil {
			inSection = strings.EqualFold(m[1], header)
			continue
		}
		if !inSection {
			continue
		}
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			// Any non-bullet line ends the list.
			if line != "" {
				inSection = false
			}
			continue
		}
		item := strings.TrimSpace(m[1])
		if strings.EqualFold(item, "none") {
			continue
		}
		items = append(items, item)
	}
	return items
}
