package memory

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a bounded LRU cache with per-entry TTL. It is safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List

	now func() time.Time
}

type cacheEntry struct {
	key     string
	value   any
	expires time.Time
}

func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &Cache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the cached value for key, or false when the key is
// missing or its entry has expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.value, true
}

// Put stores a value under key, evicting the least recently used entry
// when the cache is full.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expires := c.now().Add(c.ttl)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expires = expires
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value, expires: expires})
}

// Len reports the number of entries currently held, including any that
// have expired but not yet been purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Entry is a point-in-time copy of one live cache entry, used for
// persistence.
type Entry struct {
	Key     string    `json:"key"`
	Value   any       `json:"value"`
	Expires time.Time `json:"expires"`
}

// Snapshot returns the live entries, most recently used first.
// Expired entries are excluded.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]Entry, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*cacheEntry)
		if c.ttl > 0 && now.After(entry.expires) {
			continue
		}
		out = append(out, Entry{Key: entry.key, Value: entry.value, Expires: entry.expires})
	}
	return out
}

// Restore seeds the cache from snapshot entries, preserving their
// original expiry and recency order. Expired entries are skipped.
func (c *Cache) Restore(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if c.ttl > 0 && now.After(e.Expires) {
			continue
		}
		if el, ok := c.entries[e.Key]; ok {
			c.order.Remove(el)
			delete(c.entries, e.Key)
		}
		if c.order.Len() >= c.maxSize {
			oldest := c.order.Back()
			if oldest != nil {
				c.order.Remove(oldest)
				delete(c.entries, oldest.Value.(*cacheEntry).key)
			}
		}
		c.entries[e.Key] = c.order.PushFront(&cacheEntry{key: e.Key, value: e.Value, expires: e.Expires})
	}
}

// Purge removes all expired entries and returns how many were dropped.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return 0
	}
	now := c.now()
	dropped := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*cacheEntry)
		if now.After(entry.expires) {
			c.order.Remove(el)
			delete(c.entries, entry.key)
			dropped++
		}
		el = prev
	}
	return dropped
}
