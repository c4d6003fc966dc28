package server

import (
	"sync"
	"time"
)

// sweepThreshold is the bucket count above which expired buckets are
// removed.
const sweepThreshold = 5000

type rateBucket struct {
	count       int
	windowStart time.Time
}

// rateLimiter is a fixed-window counter per client key. A window opens on
// the first request and lasts window; within it at most limit requests pass.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*rateBucket
	now     func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*rateBucket),
		now:     time.Now,
	}
}

// Allow counts one request for key and reports whether it may proceed.
func (l *rateLimiter) Allow(key string) bool {
	if l.limit <= 0 || l.window <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		l.buckets[key] = &rateBucket{count: 1, windowStart: now}
		l.sweep(now)
		return true
	}

	b.count++
	if b.count > l.limit {
		return false
	}
	l.sweep(now)
	return true
}

func (l *rateLimiter) sweep(now time.Time) {
	if len(l.buckets) <= sweepThreshold {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window {
			delete(l.buckets, k)
		}
	}
}

func (l *rateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
