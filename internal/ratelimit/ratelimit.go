// Package ratelimit implements the per-credential token-bucket
// limiter with bounded memory and eviction described in §4.4.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/overwatch/ingestion-gateway/internal/logger"
)

const (
	defaultCeiling   = 10000
	staleAfter       = 1 * time.Hour
	sweepInterval    = 5 * time.Minute
	forceEvictFrac   = 0.10
)

// bucket pairs a token-bucket limiter with the instant it was last
// touched, for staleness-based eviction.
type bucket struct {
	limiter   *rate.Limiter
	updatedAt time.Time
}

// Limiter is a bounded, per-credential token-bucket rate limiter.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	ceiling int

	defaultRate  rate.Limit
	defaultBurst int

	stopCh chan struct{}
}

// New constructs a Limiter with the given default rate (events per
// second) and burst, applied to every credential the first time it is
// seen. A background sweep every 5 minutes removes buckets untouched
// for longer than 1 hour, mirroring the teacher's cleanupRoutine.
func New(defaultRatePerSecond float64, defaultBurst int) *Limiter {
	l := &Limiter{
		buckets:      make(map[string]*bucket),
		ceiling:      defaultCeiling,
		defaultRate:  rate.Limit(defaultRatePerSecond),
		defaultBurst: defaultBurst,
		stopCh:       make(chan struct{}),
	}
	go l.sweepRoutine()
	return l
}

// Allow reports whether a request for credential key is admitted,
// creating a bucket on first sight with the configured per-project
// rate (ratePerMinute, converted to per-second) and burst.
func (l *Limiter) Allow(key string, ratePerMinute int, burst int) bool {
	return l.getBucket(key, ratePerMinute, burst).limiter.Allow()
}

func (l *Limiter) getBucket(key string, ratePerMinute, burst int) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		b.updatedAt = time.Now()
		return b
	}

	if len(l.buckets) >= l.ceiling {
		l.evictStaleLocked()
		if len(l.buckets) >= l.ceiling {
			l.forceEvictLocked()
		}
	}

	r := l.defaultRate
	if ratePerMinute > 0 {
		r = rate.Limit(float64(ratePerMinute) / 60.0)
	}
	b := burst
	if b <= 0 {
		b = l.defaultBurst
	}

	nb := &bucket{limiter: rate.NewLimiter(r, b), updatedAt: time.Now()}
	l.buckets[key] = nb
	return nb
}

// evictStaleLocked removes buckets untouched for longer than
// staleAfter. Caller holds l.mu.
func (l *Limiter) evictStaleLocked() {
	cutoff := time.Now().Add(-staleAfter)
	for k, b := range l.buckets {
		if b.updatedAt.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

// forceEvictLocked drops the oldest 10% of buckets by last-updated
// instant when eviction of stale entries alone was insufficient.
// Caller holds l.mu.
func (l *Limiter) forceEvictLocked() {
	n := len(l.buckets)
	if n == 0 {
		return
	}
	toEvict := int(float64(n) * forceEvictFrac)
	if toEvict < 1 {
		toEvict = 1
	}

	type kv struct {
		key string
		at  time.Time
	}
	ordered := make([]kv, 0, n)
	for k, b := range l.buckets {
		ordered = append(ordered, kv{k, b.updatedAt})
	}
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].at.Before(ordered[i].at) {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	for i := 0; i < toEvict && i < len(ordered); i++ {
		delete(l.buckets, ordered[i].key)
	}
}

func (l *Limiter) sweepRoutine() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	log := logger.RateLimit()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			before := len(l.buckets)
			l.evictStaleLocked()
			after := len(l.buckets)
			l.mu.Unlock()
			if before != after {
				log.Debug().Int("evicted", before-after).Msg("rate limiter sweep")
			}
		case <-l.stopCh:
			return
		}
	}
}

// Size reports the current bucket table size, for tests and metrics.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop halts the background sweep goroutine.
func (l *Limiter) Stop() {
	close(l.stopCh)
}
