package events

import (
	"log/slog"
	"sync"
)

// subscriberBuffer is the channel capacity given to each subscriber.
// A subscriber that falls this far behind starts losing events; the
// bounded history window covers recovery via Catchup.
const subscriberBuffer = 64

// Bus is the in-process event stream: a bounded sliding window of recent
// events plus fan-out to live subscribers. Safe for concurrent publishers;
// parallel step workers publish alongside the main loop.
type Bus struct {
	mu           sync.RWMutex
	history      []Event
	nextSeq      int64
	subs         map[int]chan Event
	nextSubID    int
	closed       bool
	historyLimit int
	dropped      int64
}

// NewBus creates a bus retaining at most historyLimit events for catch-up.
func NewBus(historyLimit int) *Bus {
	if historyLimit < 1 {
		historyLimit = 1
	}
	return &Bus{
		subs:         make(map[int]chan Event),
		historyLimit: historyLimit,
	}
}

// Publish assigns the event its sequence number, appends it to the history
// window, and fans it out. Delivery to a full subscriber is dropped rather
// than blocking the engine.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.nextSeq++
	evt.Seq = b.nextSeq

	b.history = append(b.history, evt)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}

	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped++
			slog.Warn("Event subscriber lagging, dropping event",
				"subscriber", id, "type", evt.Type, "seq", evt.Seq)
		}
	}
	b.mu.Unlock()
}

// Subscribe registers a live subscriber and returns its id and channel.
// The channel is closed on Unsubscribe or bus Close.
func (b *Bus) Subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	id := b.nextSubID
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Catchup returns buffered events with Seq > sinceSeq, oldest first,
// capped at limit (0 means the whole window).
func (b *Bus) Catchup(sinceSeq int64, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, len(b.history))
	for _, evt := range b.history {
		if evt.Seq > sinceSeq {
			out = append(out, evt)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// LastSeq returns the sequence number of the newest published event.
func (b *Bus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}

// Dropped returns how many events were lost to lagging subscribers.
func (b *Bus) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close shuts the bus down: all subscriber channels are closed and further
// publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
