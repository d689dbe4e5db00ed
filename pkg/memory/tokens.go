package memory

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Trend describes the direction of recent token consumption.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// Estimator counts tokens for budget decisions. It uses the cl100k_base
// encoding when available and falls back to a chars/4 heuristic when
// the encoding cannot be loaded.
type Estimator struct {
	once   sync.Once
	enc    *tiktoken.Tiktoken
	logger *slog.Logger
}

func NewEstimator() *Estimator {
	return &Estimator{
		logger: slog.Default().With("component", "memory.estimator"),
	}
}

// Count returns the estimated token count for text.
func (e *Estimator) Count(text string) int {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			e.logger.Warn("Token encoding unavailable, using character heuristic", "error", err)
			return
		}
		e.enc = enc
	})
	if e.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(e.enc.Encode(text, nil, nil))
}

// TokenTracker keeps a bounded history of per-turn token totals and
// reports the overall consumption trend.
type TokenTracker struct {
	mu      sync.Mutex
	history []int
	limit   int
	total   int
}

func NewTokenTracker(limit int) *TokenTracker {
	if limit <= 0 {
		limit = 100
	}
	return &TokenTracker{limit: limit}
}

// Record adds one turn's input and output token counts.
func (t *TokenTracker) Record(tokensIn, tokensOut int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	turn := tokensIn + tokensOut
	t.total += turn
	t.history = append(t.history, turn)
	if len(t.history) > t.limit {
		t.history = t.history[len(t.history)-t.limit:]
	}
}

// Total returns the cumulative token count across all recorded turns,
// including turns that have aged out of the history window.
func (t *TokenTracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Average returns the mean tokens per turn over the retained history.
func (t *TokenTracker) Average() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) == 0 {
		return 0
	}
	sum := 0
	for _, v := range t.history {
		sum += v
	}
	return float64(sum) / float64(len(t.history))
}

// Trend compares the recent half of the history against the older half.
// A recent-to-older ratio above 1.2 reads as increasing, below 0.8 as
// decreasing, otherwise stable. Fewer than four samples is stable.
func (t *TokenTracker) Trend() Trend {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) < 4 {
		return TrendStable
	}
	mid := len(t.history) / 2
	older := mean(t.history[:mid])
	recent := mean(t.history[mid:])
	if older == 0 {
		return TrendStable
	}
	ratio := recent / older
	switch {
	case ratio > 1.2:
		return TrendIncreasing
	case ratio < 0.8:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func mean(vals []int) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return float64(sum) / float64(len(vals))
}
