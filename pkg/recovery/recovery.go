// Package recovery turns raw operation errors into recovery
// directives: every failure is classified into a category, mapped to a
// strategy, retried with jittered exponential backoff where that can
// help, and fenced by a per-operation circuit breaker. Callers never
// see an unclassified error.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/claude-runner/claude-runner/pkg/config"
)

// Strategy is the recovery dispatch decision for a classified error.
type Strategy string

const (
	// StrategyRetryBackoff retries with exponential backoff up to MaxDelay.
	StrategyRetryBackoff Strategy = "RETRY_BACKOFF"
	// StrategyRetryExtended retries with the longer ExtendedMaxDelay ceiling.
	StrategyRetryExtended Strategy = "RETRY_EXTENDED"
	// StrategyTrimContext asks the caller to shrink context, then retries.
	StrategyTrimContext Strategy = "TRIM_CONTEXT"
	// StrategySkipStep tells the executor to skip the current step.
	StrategySkipStep Strategy = "SKIP_STEP"
	// StrategyEscalate surfaces the error without stopping the run.
	StrategyEscalate Strategy = "ESCALATE"
	// StrategyAbort tells the executor to reset the agent session and
	// continue. The run loop survives ABORT.
	StrategyAbort Strategy = "ABORT"
)

// ErrCircuitOpen marks calls rejected by an open circuit breaker.
var ErrCircuitOpen = errors.New("circuit open")

// Directive is the classified outcome of a failed operation.
type Directive struct {
	Category Category
	Strategy Strategy
	Attempts int
	Err      error
}

func (d *Directive) Error() string {
	return fmt.Sprintf("%s/%s after %d attempt(s): %v", d.Category, d.Strategy, d.Attempts, d.Err)
}

func (d *Directive) Unwrap() error {
	return d.Err
}

// StrategyOf extracts the directive strategy from an error chain.
// Errors that never went through recovery read as ABORT.
func StrategyOf(err error) Strategy {
	var d *Directive
	if errors.As(err, &d) {
		return d.Strategy
	}
	return StrategyAbort
}

// CategoryOf extracts the directive category from an error chain.
func CategoryOf(err error) Category {
	var d *Directive
	if errors.As(err, &d) {
		return d.Category
	}
	return ClassifyError(err)
}

// strategyFor maps a category to its dispatch strategy.
func strategyFor(cat Category) Strategy {
	switch cat {
	case CategoryTransient, CategoryTimeout, CategoryInternal:
		return StrategyRetryBackoff
	case CategoryRateLimit:
		return StrategyRetryExtended
	case CategoryContext:
		return StrategyTrimContext
	case CategoryResource:
		return StrategySkipStep
	case CategoryValidation:
		return StrategyEscalate
	case CategoryPermission, CategoryPermanent:
		return StrategyAbort
	}
	return StrategyAbort
}

func retryable(s Strategy) bool {
	switch s {
	case StrategyRetryBackoff, StrategyRetryExtended, StrategyTrimContext:
		return true
	}
	return false
}

// RetryOptions parameterize one ExecuteWithRetry call.
type RetryOptions struct {
	// OperationID scopes the circuit breaker. Required.
	OperationID string
	// MaxRetries overrides the configured retry budget when positive.
	MaxRetries int
	// OnError observes every failed attempt.
	OnError func(attempt int, err error, category Category, strategy Strategy)
	// OnContextAction runs before a TRIM_CONTEXT retry.
	OnContextAction func() error
}

// Recovery executes operations under the classify-retry-breaker
// contract.
type Recovery struct {
	cfg     *config.RecoveryConfig
	breaker *breaker
	logger  *slog.Logger

	// sleep is swapped by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg *config.RecoveryConfig) *Recovery {
	return &Recovery{
		cfg:     cfg,
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerWindow, cfg.BreakerCooldown),
		logger:  slog.Default().With("component", "recovery"),
		sleep:   sleepCtx,
	}
}

// ExecuteWithRetry runs op, classifying failures and retrying where
// the strategy allows. The returned error is always nil, a context
// error, or a *Directive.
func (r *Recovery) ExecuteWithRetry(ctx context.Context, op func() error, opts RetryOptions) error {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = r.cfg.MaxRetries
	}

	var lastErr error
	var lastCat Category
	for attempt := 0; ; attempt++ {
		if !r.breaker.allow(opts.OperationID) {
			r.logger.Warn("Circuit open, forcing abort",
				"operation", opts.OperationID)
			return &Directive{
				Category: CategoryInternal,
				Strategy: StrategyAbort,
				Attempts: attempt,
				Err:      fmt.Errorf("%w for operation %q", ErrCircuitOpen, opts.OperationID),
			}
		}

		err := op()
		if err == nil {
			r.breaker.recordSuccess(opts.OperationID)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		lastCat = ClassifyError(err)
		strategy := strategyFor(lastCat)
		opened := r.breaker.recordFailure(opts.OperationID)
		if opts.OnError != nil {
			opts.OnError(attempt+1, err, lastCat, strategy)
		}
		r.logger.Warn("Operation failed",
			"operation", opts.OperationID,
			"attempt", attempt+1,
			"category", lastCat,
			"strategy", strategy,
			"error", err)

		if opened {
			return &Directive{Category: lastCat, Strategy: StrategyAbort, Attempts: attempt + 1, Err: lastErr}
		}
		if !retryable(strategy) {
			return &Directive{Category: lastCat, Strategy: strategy, Attempts: attempt + 1, Err: lastErr}
		}
		if attempt >= maxRetries {
			break
		}

		if strategy == StrategyTrimContext && opts.OnContextAction != nil {
			if cerr := opts.OnContextAction(); cerr != nil {
				r.logger.Warn("Context action failed", "operation", opts.OperationID, "error", cerr)
			}
		}

		delay := r.jittered(r.delayBase(attempt, strategy))
		if serr := r.sleep(ctx, delay); serr != nil {
			return serr
		}
	}

	// Retries exhausted. The caller gets an abort directive so the run
	// loop can reset the agent session and keep going.
	return &Directive{Category: lastCat, Strategy: StrategyAbort, Attempts: maxRetries + 1, Err: lastErr}
}

// delayBase computes the exponential backoff base for an attempt.
// Doubles from BaseDelay, clamped to the strategy's ceiling. Base
// delays are non-decreasing in the attempt number.
func (r *Recovery) delayBase(attempt int, strategy Strategy) time.Duration {
	ceiling := r.cfg.MaxDelay
	if strategy == StrategyRetryExtended {
		ceiling = r.cfg.ExtendedMaxDelay
	}
	d := r.cfg.BaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// jittered adds up to 50% random jitter on top of the base delay.
func (r *Recovery) jittered(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return base + time.Duration(rand.Int63n(int64(base/2)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
