package recovery

import (
	"sync"
	"time"
)

// breaker tracks consecutive failures per operation id and opens after
// a threshold is hit inside the reset window. Open circuits reject
// calls until the cool-down passes, then close for a fresh probe.
type breaker struct {
	threshold int
	window    time.Duration
	cooldown  time.Duration

	mu     sync.Mutex
	states map[string]*breakerState
	now    func() time.Time
}

type breakerState struct {
	failures    int
	windowStart time.Time
	openedAt    time.Time
	open        bool
}

func newBreaker(threshold int, window, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		states:    make(map[string]*breakerState),
		now:       time.Now,
	}
}

// allow reports whether a call for the operation id may proceed.
func (b *breaker) allow(operationID string) bool {
	if b.threshold <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[operationID]
	if !ok || !st.open {
		return true
	}
	if b.now().Sub(st.openedAt) >= b.cooldown {
		delete(b.states, operationID)
		return true
	}
	return false
}

// recordFailure counts one failure and reports whether the circuit is
// now open.
func (b *breaker) recordFailure(operationID string) bool {
	if b.threshold <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	st, ok := b.states[operationID]
	if !ok {
		st = &breakerState{windowStart: now}
		b.states[operationID] = st
	}
	if st.open {
		return true
	}
	// A stale streak restarts the window.
	if b.window > 0 && now.Sub(st.windowStart) > b.window {
		st.failures = 0
		st.windowStart = now
	}
	st.failures++
	if st.failures >= b.threshold {
		st.open = true
		st.openedAt = now
		return true
	}
	return false
}

// recordSuccess clears the failure streak for the operation id.
func (b *breaker) recordSuccess(operationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, operationID)
}
