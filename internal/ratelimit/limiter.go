// Package ratelimit enforces a per-owner request budget over a rolling window.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most Limit requests per owner within any Window-long
// interval. The zero value is not usable; construct with New.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New returns a limiter. A non-positive limit or window disables limiting.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		events: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a request for owner when it fits the budget. When it does
// not, it returns false and how long until the oldest request leaves the window.
func (l *Limiter) Allow(owner string) (bool, time.Duration) {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.trim(owner, now)
	if len(recent) >= l.limit {
		return false, recent[0].Add(l.window).Sub(now)
	}
	l.events[owner] = append(recent, now)
	return true, 0
}

// Remaining reports how many requests owner may still make right now.
func (l *Limiter) Remaining(owner string) int {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit - len(l.trim(owner, l.now()))
}

// Prune drops owners with no requests inside the window.
func (l *Limiter) Prune() int {
	if l == nil {
		return 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for owner := range l.events {
		if len(l.trim(owner, now)) == 0 {
			delete(l.events, owner)
			removed++
		}
	}
	return removed
}

// trim discards timestamps at or before now-window. Caller holds mu.
func (l *Limiter) trim(owner string, now time.Time) []time.Time {
	events := l.events[owner]
	cutoff := now.Add(-l.window)
	drop := 0
	for drop < len(events) && !events[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		events = append(events[:0:0], events[drop:]...)
		l.events[owner] = events
	}
	return events
}
