package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowsWithinBurstThenRejects(t *testing.T) {
	l := New(1, 2)
	defer l.Stop()

	assert.True(t, l.Allow("key1", 60, 2), "first request within burst should be allowed")
	assert.True(t, l.Allow("key1", 60, 2), "second request within burst should be allowed")
	assert.False(t, l.Allow("key1", 60, 2), "third request should exceed the burst of 2")
}

func TestLimiter_PerKeyBucketsAreIndependent(t *testing.T) {
	l := New(1, 1)
	defer l.Stop()

	assert.True(t, l.Allow("key1", 60, 1))
	assert.False(t, l.Allow("key1", 60, 1))
	assert.True(t, l.Allow("key2", 60, 1), "a different credential must have its own bucket")
}

func TestLimiter_EvictsStaleBuckets(t *testing.T) {
	l := New(1, 1)
	defer l.Stop()

	l.Allow("old", 60, 1)
	l.mu.Lock()
	l.buckets["old"].updatedAt = time.Now().Add(-2 * staleAfter)
	l.mu.Unlock()

	l.mu.Lock()
	l.evictStaleLocked()
	_, stillThere := l.buckets["old"]
	l.mu.Unlock()

	assert.False(t, stillThere)
}

func TestLimiter_ForceEvictsOldestTenPercentAtCeiling(t *testing.T) {
	l := &Limiter{
		buckets:      make(map[string]*bucket),
		ceiling:      100,
		defaultRate:  1,
		defaultBurst: 1,
		stopCh:       make(chan struct{}),
	}

	now := time.Now()
	for i := 0; i < 100; i++ {
		key := string(rune('a' + i%26)) + string(rune(i))
		l.buckets[key] = &bucket{updatedAt: now.Add(time.Duration(i) * time.Second)}
	}
	require.Len(t, l.buckets, 100)

	l.forceEvictLocked()
	assert.LessOrEqual(t, len(l.buckets), 91, "at least 10% of buckets should be force-evicted at ceiling")
}

func TestLimiter_Size(t *testing.T) {
	l := New(1, 1)
	defer l.Stop()

	assert.Equal(t, 0, l.Size())
	l.Allow("k", 60, 1)
	assert.Equal(t, 1, l.Size())
}
