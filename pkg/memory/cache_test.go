package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetPut(t *testing.T) {
	c := NewCache(4, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, time.Minute)
	c.Put("a", "A")
	c.Put("b", "B")

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", "C")
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCacheUpdateExistingKey(t *testing.T) {
	c := NewCache(2, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10)
	c.Put("c", 3)

	// The refresh of a pushed b to the back.
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(4, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("a", 1)
	_, ok := c.Get("a")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	// The expired entry was dropped on read.
	assert.Equal(t, 0, c.Len())
}

func TestCachePurge(t *testing.T) {
	c := NewCache(8, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("old1", 1)
	c.Put("old2", 2)
	now = now.Add(2 * time.Minute)
	c.Put("fresh", 3)

	dropped := c.Purge()
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewCache(4, 0)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("a", 1)
	now = now.Add(24 * time.Hour)

	_, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 0, c.Purge())
}

func TestCacheSnapshotRestore(t *testing.T) {
	c := NewCache(4, time.Minute)
	c.Put("a", "A")
	c.Put("b", "B")
	_, _ = c.Get("a") // a becomes most recent

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Key)
	assert.Equal(t, "b", snap[1].Key)

	fresh := NewCache(2, time.Minute)
	fresh.Restore(snap)
	assert.Equal(t, 2, fresh.Len())
	v, ok := fresh.Get("b")
	require.True(t, ok)
	assert.Equal(t, "B", v)

	// Recency order survived the round trip: "b" was least recent, so
	// an insert evicts it first once it is least recent again.
	_, _ = fresh.Get("a")
	fresh.Put("c", "C")
	_, ok = fresh.Get("b")
	assert.False(t, ok)
	_, ok = fresh.Get("a")
	assert.True(t, ok)
}

func TestCacheRestoreSkipsExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewCache(4, time.Minute)
	c.now = func() time.Time { return now }

	c.Restore([]Entry{
		{Key: "stale", Value: "S", Expires: now.Add(-time.Second)},
		{Key: "fresh", Value: "F", Expires: now.Add(time.Minute)},
	})
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}
