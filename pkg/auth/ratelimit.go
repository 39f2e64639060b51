package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether a caller may issue another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// WindowLimiter allows a fixed number of requests per subject and tier in
// each window. The mock backend uses it to produce 429 responses that
// exercise client retries.
type WindowLimiter struct {
	window time.Duration
	tiers  map[string]int
	deflt  int
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count int
	start time.Time
}

// NewWindowLimiter creates a limiter allowing limit requests per window,
// with per-tier overrides. A limit <= 0 disables limiting for that tier.
func NewWindowLimiter(window time.Duration, limit int, tiers map[string]int) *WindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{
		window:   window,
		tiers:    tiers,
		deflt:    limit,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// Allow records the request and returns ErrTooManyRequests once the
// caller's budget for the current window is spent.
func (l *WindowLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Tier
	if tier == "" {
		tier = "default"
	}
	limit := l.deflt
	if n, ok := l.tiers[tier]; ok {
		limit = n
	}
	if limit <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok || now.Sub(c.start) >= l.window {
		l.counters[key] = &counter{count: 1, start: now}
		return nil
	}

	c.count++
	if c.count > limit {
		return ErrTooManyRequests
	}
	return nil
}
