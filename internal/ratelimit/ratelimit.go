// Package ratelimit limits relay ingress per client with lazy-refill token
// buckets. Each client gets a per-minute event budget that refills
// continuously; there is no background goroutine.
package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed           bool
	Limit             int64
	Remaining         int64
	RetryAfterSeconds float64
}

// bucket is a token bucket with lazy refill.
type bucket struct {
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastFill time.Time
}

func newBucket(perMinute int64, now time.Time) *bucket {
	return &bucket{
		tokens:   float64(perMinute),
		max:      float64(perMinute),
		rate:     float64(perMinute) / 60.0,
		lastFill: now,
	}
}

// refill adds tokens for the time elapsed since the last refill.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.max, b.tokens+elapsed*b.rate)
	b.lastFill = now
}

func (b *bucket) tryConsume(n float64, now time.Time) (remaining int64, allowed bool) {
	b.refill(now)
	if b.tokens >= n {
		b.tokens -= n
		return int64(b.tokens), true
	}
	return int64(b.tokens), false
}

// retryAfter returns seconds until n tokens are available.
func (b *bucket) retryAfter(n float64) float64 {
	if b.tokens >= n {
		return 0
	}
	return (n - b.tokens) / b.rate
}

// Limiter holds the bucket for a single client.
type Limiter struct {
	mu       sync.Mutex
	bucket   *bucket
	limit    int64
	lastUsed time.Time
}

// allow consumes n tokens. A request costing more than the whole budget is
// charged the full budget, so large batches are admitted only from a full
// bucket rather than never.
func (l *Limiter) allow(n int64, now time.Time) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastUsed = now

	cost := float64(min(max(n, 1), l.limit))
	remaining, ok := l.bucket.tryConsume(cost, now)
	if ok {
		return Result{Allowed: true, Limit: l.limit, Remaining: remaining}
	}
	return Result{
		Limit:             l.limit,
		Remaining:         remaining,
		RetryAfterSeconds: l.bucket.retryAfter(cost),
	}
}

// Registry manages per-client Limiters sharing one limit.
type Registry struct {
	mu        sync.RWMutex
	perMinute int64
	limiters  map[string]*Limiter
	now       func() time.Time
}

// NewRegistry creates a registry allowing perMinute events per client.
// perMinute <= 0 disables limiting.
func NewRegistry(perMinute int64) *Registry {
	return &Registry{
		perMinute: perMinute,
		limiters:  make(map[string]*Limiter),
		now:       time.Now,
	}
}

// Allow charges n events to key.
func (r *Registry) Allow(key string, n int64) Result {
	if r.perMinute <= 0 {
		return Result{Allowed: true}
	}
	now := r.now()
	return r.get(key, now).allow(n, now)
}

func (r *Registry) get(key string, now time.Time) *Limiter {
	r.mu.RLock()
	l, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check after acquiring write lock.
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l = &Limiter{bucket: newBucket(r.perMinute, now), limit: r.perMinute, lastUsed: now}
	r.limiters[key] = l
	return l
}

// EvictStale removes limiters not used since cutoff.
func (r *Registry) EvictStale(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for k, l := range r.limiters {
		l.mu.Lock()
		stale := l.lastUsed.Before(cutoff)
		l.mu.Unlock()
		if stale {
			delete(r.limiters, k)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}
