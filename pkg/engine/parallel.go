package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/plan"
	"github.com/claude-runner/claude-runner/pkg/supervisor"
)

// workerResult is one batch worker's outcome, merged on the main
// fiber after the whole batch has finished.
type workerResult struct {
	idx  int
	step *plan.Step
	text string
	err  error
}

// filterBatch returns the next independent batch, excluding steps a
// batch already attempted; those retry serially. Below two steps a
// batch is not worth a fan-out.
func (e *Engine) filterBatch() []*plan.Step {
	var out []*plan.Step
	for _, st := range e.pl.NextExecutableBatch(e.pl.CompletedSet(), e.cfg.Engine.MaxParallelWorkers) {
		if !e.batched[st.Number] {
			out = append(out, st)
		}
	}
	if len(out) < 2 {
		return nil
	}
	return out
}

// runBatch fans the batch out to isolated single-step agent sessions
// and merges the results in step order. Workers never touch the plan
// or the session store; all mutation happens here after the join.
func (e *Engine) runBatch(ctx context.Context, batch []*plan.Step) {
	refs := stepRefs(batch)
	e.pub.ParallelBatchStarted(refs, len(batch))
	e.logger.Info("Dispatching parallel batch", "steps", len(batch))

	results := make(chan workerResult, len(batch))
	var wg sync.WaitGroup
	for i, st := range batch {
		e.batched[st.Number] = true
		e.pl.Start(st.Number)
		_ = e.store.UpdateStepProgress(st.Number, plan.StatusInProgress, "")

		drv := e.factory.NewDriver(config.RoleWorker)
		wg.Add(1)
		go func(idx int, st *plan.Step) {
			defer wg.Done()
			wctx, cancel := context.WithDeadline(ctx, e.deadline)
			defer cancel()
			res, err := drv.StartSession(wctx, e.systemCtx, batchStepPrompt(st))
			if err != nil {
				results <- workerResult{idx: idx, step: st, err: err}
				return
			}
			results <- workerResult{idx: idx, step: st, text: res.Text}
		}(i, st)
	}
	wg.Wait()
	close(results)

	merged := make([]workerResult, 0, len(batch))
	for r := range results {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].idx < merged[j].idx })

	var succeeded, failed int
	for _, r := range merged {
		st := r.step
		if r.err != nil {
			if ctx.Err() != nil {
				// Interrupted mid-batch: leave the step runnable for resume.
				e.pl.Reopen(st.Number)
				failed++
				continue
			}
			e.logger.Warn("Batch worker failed", "step", st.Number, "error", r.err)
			e.pl.Fail(st.Number, r.err.Error())
			_ = e.store.UpdateStepProgress(st.Number, plan.StatusFailed, r.err.Error())
			e.pub.StepFailed(stepRef(st), r.err.Error())
			failed++
			continue
		}

		e.iterations++
		sig := DetectSignals(r.text)
		switch {
		case sig.Blocked:
			// Stays non-terminal; the serial path retries it and owns
			// any salvage planning.
			e.pl.Block(st.Number, sig.BlockedReason)
			_ = e.store.UpdateStepProgress(st.Number, plan.StatusBlocked, sig.BlockedReason)
			e.pub.StepBlocked(stepRef(st), sig.BlockedReason)
			failed++
		case sig.StepComplete:
			if e.acceptBatchStep(ctx, st, r.text) {
				succeeded++
			} else {
				failed++
			}
		default:
			e.pl.Reopen(st.Number)
			e.pub.StepRejected(stepRef(st), "no completion signal from batch worker")
			failed++
		}
	}

	e.pub.ParallelBatchCompleted(refs, succeeded, failed)
	e.logger.Info("Parallel batch merged", "succeeded", succeeded, "failed", failed)
}

// acceptBatchStep runs the same two verification gates as the serial
// path. A rejected batch step reopens instead of prompting, since the
// worker session that made the claim is already gone.
func (e *Engine) acceptBatchStep(ctx context.Context, st *plan.Step, text string) bool {
	ref := stepRef(st)
	e.pub.StepVerificationStarted(ref)

	sv, err := e.sup.VerifyStepCompletion(ctx, st, text)
	if err != nil {
		e.logger.Warn("Step verification unavailable, accepting claim", "step", st.Number, "error", err)
		sv = &supervisor.StepVerification{Verified: true, Reason: "verification unavailable"}
	}
	if !sv.Verified {
		e.pl.Reopen(st.Number)
		e.pub.StepRejected(ref, sv.Reason)
		return false
	}

	vres := e.ver.VerifyStepClaim(ctx, st.Description, text)
	if !vres.Passed {
		e.pl.Reopen(st.Number)
		e.pub.StepRejected(ref, vres.Reason)
		return false
	}

	e.pl.Complete(st.Number)
	_ = e.store.UpdateStepProgress(st.Number, plan.StatusCompleted, firstLine(text, stepResultMax))
	e.pub.StepComplete(ref, st.Elapsed())
	e.mem.RecordDecision("step " + st.Number + " completed: " + st.Description)
	return true
}
