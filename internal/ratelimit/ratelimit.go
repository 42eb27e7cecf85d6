// Package ratelimit provides a fixed-window in-memory request limiter keyed
// by client identity. It lives outside the analysis pipeline and must never
// block it: every operation is a short critical section over a map.
package ratelimit

import (
	"sync"
	"time"
)

// Result reports the outcome of one limiter check.
type Result struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

type windowState struct {
	count       int
	windowStart time.Time
}

// Limiter counts requests per key within a fixed window. Window expiry uses
// the monotonic clock carried by time.Time.
type Limiter struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	store map[string]windowState
	now   func() time.Time
}

// New creates a Limiter allowing limit requests per window per key.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		store:  make(map[string]windowState),
		now:    time.Now,
	}
}

// Check records one request for key and reports whether it is allowed.
func (l *Limiter) Check(key string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupExpired(now)

	current, ok := l.store[key]
	if !ok || now.Sub(current.windowStart) >= l.window {
		l.store[key] = windowState{count: 1, windowStart: now}
		return Result{
			Allowed:           true,
			Remaining:         l.limit - 1,
			RetryAfterSeconds: ceilSeconds(l.window),
		}
	}

	elapsed := now.Sub(current.windowStart)
	if current.count >= l.limit {
		retryAfter := ceilSeconds(l.window - elapsed)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Result{Allowed: false, Remaining: 0, RetryAfterSeconds: retryAfter}
	}

	current.count++
	l.store[key] = current

	remaining := l.limit - current.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:           true,
		Remaining:         remaining,
		RetryAfterSeconds: ceilSeconds(l.window - elapsed),
	}
}

func (l *Limiter) cleanupExpired(now time.Time) {
	for key, state := range l.store {
		if now.Sub(state.windowStart) >= l.window {
			delete(l.store, key)
		}
	}
}

func ceilSeconds(d time.Duration) int {
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
