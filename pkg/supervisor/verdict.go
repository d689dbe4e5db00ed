package supervisor

import "strings"

// Verdict is a three-state verification signal. Several checks are
// legitimately ternary (yes, no, partial); collapsing them into a
// boolean loses the partial case, so call sites use the predicates.
type Verdict string

const (
	VerdictYes     Verdict = "YES"
	VerdictNo      Verdict = "NO"
	VerdictPartial Verdict = "PARTIAL"
)

// ParseVerdict normalizes a free-form value into a Verdict. Agents
// sometimes render the field as a boolean; both spellings land on the
// same state. Anything unrecognized, including the empty string, is
// PARTIAL.
func ParseVerdict(s string) Verdict {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES", "TRUE", "Y", "ACHIEVED", "PASS", "PASSED":
		return VerdictYes
	case "NO", "FALSE", "N", "FAIL", "FAILED":
		return VerdictNo
	default:
		return VerdictPartial
	}
}

// IsTruthy reports a definite yes.
func IsTruthy(s string) bool {
	return ParseVerdict(s) == VerdictYes
}

// IsFalsy reports a definite no.
func IsFalsy(s string) bool {
	return ParseVerdict(s) == VerdictNo
}

// IsInconclusive reports anything that is neither a definite yes nor a
// definite no: PARTIAL, the empty string, or garbage.
func IsInconclusive(s string) bool {
	return ParseVerdict(s) == VerdictPartial
}

func (v Verdict) IsTruthy() bool { return v == VerdictYes }

func (v Verdict) IsFalsy() bool { return v == VerdictNo }

func (v Verdict) IsInconclusive() bool { return v != VerdictYes && v != VerdictNo }

// Confidence grades how much weight a goal verification carries.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ParseConfidence normalizes a free-form value. Unrecognized values
// read as LOW so a garbled verification never passes for certainty.
func ParseConfidence(s string) Confidence {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return ConfidenceHigh
	case "MEDIUM", "MED":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
