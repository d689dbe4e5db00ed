// Package plan defines the executable plan model: a flat vector of
// steps with hierarchical decimal numbering, dependency edges derived
// from step text, and hierarchy-aware work selection. Steps reference
// parents and children by number, never by pointer, so plans survive
// JSON round-trips through session storage unchanged.
package plan

import (
	"strconv"
	"strings"
	"time"
)

// Status represents the lifecycle state of a step.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
	StatusSkipped    Status = "skipped"
	StatusDecomposed Status = "decomposed"
)

// IsTerminal reports whether the status is final for a leaf step.
// A decomposed step is not terminal itself; its terminal status is
// derived from its children.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	case StatusPending, StatusInProgress, StatusBlocked, StatusDecomposed:
		return false
	default:
		return false
	}
}

// Complexity is the planner's effort estimate for a step.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// ParseComplexity maps a free-form tag to a Complexity. Unrecognized
// tags default to medium.
func ParseComplexity(s string) Complexity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple", "easy", "trivial", "low":
		return ComplexitySimple
	case "complex", "hard", "high":
		return ComplexityComplex
	default:
		return ComplexityMedium
	}
}

// Step is one unit of plan work. Number, Description and Complexity
// are fixed at creation; everything else mutates as the engine runs.
// Sub-steps carry their parent's number plus an ordinal ("2" -> "2.1").
type Step struct {
	Number      string     `json:"number"`
	Description string     `json:"description"`
	Complexity  Complexity `json:"complexity"`

	Status     Status     `json:"status"`
	FailReason string     `json:"fail_reason,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`

	Dependencies []string `json:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`
	Artifacts    []string `json:"artifacts,omitempty"`
	Requirements []string `json:"requirements,omitempty"`

	CanParallelize bool `json:"can_parallelize,omitempty"`
	ParallelGroup  int  `json:"parallel_group,omitempty"` // 0 means ungrouped

	DecomposedInto       []string `json:"decomposed_into,omitempty"`
	ParentNumber         string   `json:"parent_number,omitempty"`
	SubPlanned           bool     `json:"sub_planned,omitempty"`
	CompletedViaSubtasks bool     `json:"completed_via_subtasks,omitempty"`
}

// IsLeaf reports whether the step has no injected children. Only leaf
// steps are ever executed.
func (s *Step) IsLeaf() bool {
	return len(s.DecomposedInto) == 0
}

// IsSubStep reports whether the step was injected under a parent.
func (s *Step) IsSubStep() bool {
	return s.ParentNumber != ""
}

// Elapsed returns how long the step has been (or was) running, zero if
// it never started.
func (s *Step) Elapsed() time.Duration {
	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// HasRequirement reports whether the step consumes the given label.
func (s *Step) HasRequirement(label string) bool {
	for _, r := range s.Requirements {
		if r == label {
			return true
		}
	}
	return false
}

// DependsOn reports whether the step lists num as a direct dependency.
func (s *Step) DependsOn(num string) bool {
	for _, d := range s.Dependencies {
		if d == num {
			return true
		}
	}
	return false
}

// CompareNumbers orders hierarchical step numbers segment by segment,
// numerically: "2" < "2.1" < "2.2" < "2.11" < "3". Non-numeric
// segments fall back to string comparison.
func CompareNumbers(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		if aerr != nil || berr != nil {
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
			continue
		}
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	default:
		return 0
	}
}
