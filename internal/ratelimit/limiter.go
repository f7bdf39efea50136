// Package ratelimit damps request bursts per (operation, identifier) with an
// in-process sliding window. State is local to one process.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const cleanupInterval = time.Minute

// Result describes one admission check.
type Result struct {
	Allowed   bool
	Remaining int
	// Reset is how long until the window admits another request.
	Reset time.Duration
}

// Limiter keeps the request timestamps seen within each key's window.
type Limiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string][]time.Time
	// longest window seen, used by cleanup
	maxWindow time.Duration
}

func New() *Limiter {
	return &Limiter{now: time.Now, windows: make(map[string][]time.Time)}
}

// Allow records a request for key and reports whether it fits within limit per window.
func (l *Limiter) Allow(key string, limit int, window time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	if window > l.maxWindow {
		l.maxWindow = window
	}
	now := l.now()
	stamps := prune(l.windows[key], now.Add(-window))

	if len(stamps) >= limit {
		l.windows[key] = stamps
		reset := time.Duration(0)
		if len(stamps) > 0 {
			reset = stamps[0].Add(window).Sub(now)
		}
		if reset < 0 {
			reset = 0
		}
		return Result{Allowed: false, Remaining: 0, Reset: reset}
	}

	stamps = append(stamps, now)
	l.windows[key] = stamps
	return Result{Allowed: true, Remaining: limit - len(stamps), Reset: window}
}

// prune drops timestamps at or before cutoff. stamps is ordered oldest first.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// Cleanup drops keys with no timestamps inside the longest known window.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.maxWindow)
	for key, stamps := range l.windows {
		stamps = prune(stamps, cutoff)
		if len(stamps) == 0 {
			delete(l.windows, key)
			continue
		}
		l.windows[key] = stamps
	}
}

// Run calls Cleanup every minute until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string][]time.Time)
}

func (l *Limiter) keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
