package plan

import (
	"fmt"
	"strings"
	"time"
)

// Plan is an ordered sequence of steps toward one goal. Steps live in
// a flat vector in execution order; decomposed children sit directly
// after their parent.
type Plan struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	Analysis  string    `json:"analysis,omitempty"`
	Steps     []*Step   `json:"steps"`
	Cycle     int       `json:"cycle"` // outer cycle that produced it; >1 means gap plan
	CreatedAt time.Time `json:"created_at"`
}

// SubPlan is a salvage sequence for one blocked step. Unlike
// decomposition it retries the same objective rather than splitting it.
type SubPlan struct {
	ParentNumber string  `json:"parent_number"`
	Reason       string  `json:"reason"`
	Steps        []*Step `json:"steps"`
}

// New creates a plan over the given steps. Step numbers and
// dependencies are taken as-is; call Validate to check them.
func New(goal, analysis string, steps []*Step) *Plan {
	return &Plan{
		Goal:      goal,
		Analysis:  analysis,
		Steps:     steps,
		Cycle:     1,
		CreatedAt: time.Now(),
	}
}

// Validate checks structural invariants: unique step numbers and
// dependencies that reference only existing, lower-numbered steps.
func (p *Plan) Validate() error {
	seen := make(map[string]bool, len(p.Steps))
	var problems []string
	for _, s := range p.Steps {
		if seen[s.Number] {
			problems = append(problems, fmt.Sprintf("duplicate step number %s", s.Number))
		}
		seen[s.Number] = true
	}
	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			if !seen[dep] {
				problems = append(problems, fmt.Sprintf("step %s depends on unknown step %s", s.Number, dep))
				continue
			}
			if CompareNumbers(dep, s.Number) >= 0 {
				problems = append(problems, fmt.Sprintf("step %s depends on later step %s", s.Number, dep))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid plan: %s", strings.Join(problems, "; "))
	}
	return nil
}

// StepByNumber returns the step with the given number, nil if absent.
func (p *Plan) StepByNumber(num string) *Step {
	for _, s := range p.Steps {
		if s.Number == num {
			return s
		}
	}
	return nil
}

// TopLevel returns the steps that have no parent, in plan order.
func (p *Plan) TopLevel() []*Step {
	var out []*Step
	for _, s := range p.Steps {
		if !s.IsSubStep() {
			out = append(out, s)
		}
	}
	return out
}

// Children returns the injected children of a step, in plan order.
func (p *Plan) Children(num string) []*Step {
	parent := p.StepByNumber(num)
	if parent == nil {
		return nil
	}
	out := make([]*Step, 0, len(parent.DecomposedInto))
	for _, child := range parent.DecomposedInto {
		if s := p.StepByNumber(child); s != nil {
			out = append(out, s)
		}
	}
	return out
}

// FailedSteps returns every step whose status is failed, in plan order.
func (p *Plan) FailedSteps() []*Step {
	var out []*Step
	for _, s := range p.Steps {
		if s.Status == StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// CurrentStep returns the leftmost leaf in plan order that is not
// terminal and whose parent is not terminal. A decomposed parent is
// never returned. Nil means no executable work remains.
func (p *Plan) CurrentStep() *Step {
	for _, s := range p.Steps {
		if !s.IsLeaf() || s.Status.IsTerminal() {
			continue
		}
		if parent := p.StepByNumber(s.ParentNumber); parent != nil && parent.Status.IsTerminal() {
			continue
		}
		return s
	}
	return nil
}

// ReadySteps returns every non-terminal leaf step that is not
// in_progress, whose parent is not terminal, and whose dependencies
// all appear in the completed set.
func (p *Plan) ReadySteps(completed map[string]bool) []*Step {
	var out []*Step
	for _, s := range p.Steps {
		if !s.IsLeaf() || s.Status.IsTerminal() || s.Status == StatusInProgress {
			continue
		}
		if parent := p.StepByNumber(s.ParentNumber); parent != nil && parent.Status.IsTerminal() {
			continue
		}
		if !p.depsSatisfied(s, completed) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (p *Plan) depsSatisfied(s *Step, completed map[string]bool) bool {
	for _, dep := range s.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// NextExecutableBatch returns a mutually parallelizable subset of the
// ready set, greedily built in plan order and bounded by maxWorkers.
// Steps in the batch never depend on each other, never share an
// artifact label, and never both require an exclusive resource.
func (p *Plan) NextExecutableBatch(completed map[string]bool, maxWorkers int) []*Step {
	ready := p.ReadySteps(completed)
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	var batch []*Step
	for _, candidate := range ready {
		ok := true
		for _, member := range batch {
			if !canRunTogether(candidate, member) {
				ok = false
				break
			}
		}
		if ok {
			batch = append(batch, candidate)
		}
		if len(batch) == maxWorkers {
			break
		}
	}
	return batch
}

// exclusiveLabels are resources only one step may hold at a time.
var exclusiveLabels = map[string]bool{
	LabelDatabase: true,
	LabelConfig:   true,
	LabelEnv:      true,
}

func canRunTogether(a, b *Step) bool {
	if a.DependsOn(b.Number) || b.DependsOn(a.Number) {
		return false
	}
	for _, art := range a.Artifacts {
		for _, other := range b.Artifacts {
			if art == other {
				return false
			}
		}
	}
	if requiresExclusive(a) && requiresExclusive(b) {
		return false
	}
	return true
}

func requiresExclusive(s *Step) bool {
	for _, r := range s.Requirements {
		if exclusiveLabels[r] {
			return true
		}
	}
	return false
}

// ── Status transitions ─────────────────────────────────────────

// Start marks a step in_progress and stamps its start time.
func (p *Plan) Start(num string) {
	if s := p.StepByNumber(num); s != nil {
		now := time.Now()
		s.Status = StatusInProgress
		if s.StartTime == nil {
			s.StartTime = &now
		}
	}
}

// Complete marks a step completed and reconciles decomposed parents.
func (p *Plan) Complete(num string) {
	p.finish(num, StatusCompleted, "")
}

// Fail marks a step failed with a reason and reconciles parents.
func (p *Plan) Fail(num, reason string) {
	p.finish(num, StatusFailed, reason)
}

// Skip marks a step skipped with a reason and reconciles parents.
func (p *Plan) Skip(num, reason string) {
	p.finish(num, StatusSkipped, reason)
}

// Block marks a step blocked with a reason. Blocked is not terminal;
// the engine either sub-plans the step or fails it.
func (p *Plan) Block(num, reason string) {
	if s := p.StepByNumber(num); s != nil {
		s.Status = StatusBlocked
		s.FailReason = reason
	}
}

// Reopen returns a non-terminal step to pending so it is selected
// again, used when a parallel worker's result could not be verified.
func (p *Plan) Reopen(num string) {
	if s := p.StepByNumber(num); s != nil && !s.Status.IsTerminal() {
		s.Status = StatusPending
		s.FailReason = ""
	}
}

func (p *Plan) finish(num string, status Status, reason string) {
	s := p.StepByNumber(num)
	if s == nil {
		return
	}
	now := time.Now()
	s.Status = status
	s.FailReason = reason
	if s.EndTime == nil {
		s.EndTime = &now
	}
	p.reconcile()
}

// reconcile derives the status of decomposed parents from their
// children: completed when all children completed, failed when all are
// terminal and at least one failed, skipped when all are terminal with
// skips but no failures. Runs to a fixpoint so nested decompositions
// cascade upward.
func (p *Plan) reconcile() {
	for changed := true; changed; {
		changed = false
		for _, parent := range p.Steps {
			if parent.IsLeaf() || parent.Status.IsTerminal() {
				continue
			}
			children := p.Children(parent.Number)
			if len(children) == 0 {
				continue
			}
			allTerminal, allCompleted := true, true
			failed := 0
			var failReason string
			for _, c := range children {
				if !c.Status.IsTerminal() {
					allTerminal = false
					allCompleted = false
					break
				}
				if c.Status != StatusCompleted {
					allCompleted = false
				}
				if c.Status == StatusFailed {
					failed++
					if failReason == "" {
						failReason = fmt.Sprintf("sub-step %s failed: %s", c.Number, c.FailReason)
					}
				}
			}
			if !allTerminal {
				continue
			}
			now := time.Now()
			switch {
			case allCompleted:
				parent.Status = StatusCompleted
				parent.CompletedViaSubtasks = true
			case failed > 0:
				parent.Status = StatusFailed
				parent.FailReason = failReason
			default:
				parent.Status = StatusSkipped
			}
			if parent.EndTime == nil {
				parent.EndTime = &now
			}
			changed = true
		}
	}
}

// ── Decomposition and sub-plans ────────────────────────────────

// Decompose replaces a step's execution with the given children,
// numbered under the parent and injected directly after it in plan
// order. The first child inherits the parent's dependencies and each
// further child depends on its predecessor. The parent becomes
// decomposed and is never executed itself.
func (p *Plan) Decompose(parentNum string, children []*Step) error {
	parent := p.StepByNumber(parentNum)
	if parent == nil {
		return fmt.Errorf("decompose: no step %s", parentNum)
	}
	if !parent.IsLeaf() {
		return fmt.Errorf("decompose: step %s already has children", parentNum)
	}
	if len(children) == 0 {
		return fmt.Errorf("decompose: no children for step %s", parentNum)
	}
	p.inject(parent, children)
	parent.Status = StatusDecomposed
	return nil
}

// ApplySubPlan injects a salvage sequence under a blocked step. The
// parent is marked sub-planned so the engine never requests a second
// salvage for it.
func (p *Plan) ApplySubPlan(sp *SubPlan) error {
	parent := p.StepByNumber(sp.ParentNumber)
	if parent == nil {
		return fmt.Errorf("subplan: no step %s", sp.ParentNumber)
	}
	if parent.SubPlanned {
		return fmt.Errorf("subplan: step %s already sub-planned", sp.ParentNumber)
	}
	if !parent.IsLeaf() {
		return fmt.Errorf("subplan: step %s already has children", sp.ParentNumber)
	}
	if len(sp.Steps) == 0 {
		return fmt.Errorf("subplan: empty sub-plan for step %s", sp.ParentNumber)
	}
	p.inject(parent, sp.Steps)
	parent.Status = StatusDecomposed
	parent.SubPlanned = true
	return nil
}

// inject numbers children under the parent, wires their dependency
// chain, and splices them into the step vector after the parent.
func (p *Plan) inject(parent *Step, children []*Step) {
	numbers := make([]string, len(children))
	for i, c := range children {
		c.Number = fmt.Sprintf("%s.%d", parent.Number, i+1)
		c.ParentNumber = parent.Number
		c.Status = StatusPending
		if i == 0 {
			c.Dependencies = append([]string(nil), parent.Dependencies...)
		} else {
			c.Dependencies = []string{children[i-1].Number}
		}
		numbers[i] = c.Number
	}
	parent.DecomposedInto = numbers

	idx := 0
	for i, s := range p.Steps {
		if s.Number == parent.Number {
			idx = i
			break
		}
	}
	rest := append([]*Step(nil), p.Steps[idx+1:]...)
	p.Steps = append(p.Steps[:idx+1], append(children, rest...)...)
}

// ── Progress ───────────────────────────────────────────────────

// IsComplete reports whether every top-level step reached a terminal
// status.
func (p *Plan) IsComplete() bool {
	for _, s := range p.TopLevel() {
		if !s.Status.IsTerminal() {
			return false
		}
	}
	return len(p.Steps) > 0
}

// Progress returns completed and total counts over top-level steps.
func (p *Plan) Progress() (completed, total int) {
	for _, s := range p.TopLevel() {
		total++
		if s.Status == StatusCompleted {
			completed++
		}
	}
	return completed, total
}

// CompletedSet returns the numbers of all completed and skipped steps.
// Skipped steps release their dependents; the work they gated was
// deliberately abandoned, not forgotten.
func (p *Plan) CompletedSet() map[string]bool {
	out := make(map[string]bool)
	for _, s := range p.Steps {
		if s.Status == StatusCompleted || s.Status == StatusSkipped {
			out[s.Number] = true
		}
	}
	return out
}
