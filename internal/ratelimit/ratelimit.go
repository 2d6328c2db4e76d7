// Package ratelimit implements a per-key sliding-window rate limiter
// used to bound prompt submissions per user.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows up to limit events per key within a sliding window.
// A zero or negative limit allows everything.
type Limiter struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

// New creates a limiter allowing limit events per window for each key.
func New(limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an event for key and reports whether it fits within the
// window. Denied events are not recorded, so a rejected caller does not
// push its own window further out.
func (l *Limiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.events[key][:0]
	for _, t := range l.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.events[key] = kept
		return false
	}
	l.events[key] = append(kept, now)
	return true
}

// Remaining reports how many events key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	if l.limit <= 0 {
		return 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	active := 0
	for _, t := range l.events[key] {
		if t.After(cutoff) {
			active++
		}
	}
	if active >= l.limit {
		return 0
	}
	return l.limit - active
}
