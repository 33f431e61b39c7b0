// Package ratelimit implements a sliding-window rate limiter as a pure value
// type. A Limiter carries its own timestamps; Check returns a new Limiter
// instead of mutating shared state, so a limiter can be threaded through
// caller-owned state (one per conversation) without any locking.
package ratelimit

import (
	"fmt"
	"time"
)

// Limiter bounds the number of events within a trailing time window.
// The zero value is unusable; construct with New.
type Limiter struct {
	// MaxCalls is the maximum number of events allowed inside the window.
	MaxCalls int
	// Window is the length of the trailing window.
	Window time.Duration
	// timestamps holds the instants of admitted events within the window.
	// Entries older than the window are pruned lazily on every check.
	timestamps []time.Time
}

// LimitExceededError reports a refused check with enough detail for the
// caller to build a user-facing message.
type LimitExceededError struct {
	// CurrentCount is the number of events active in the window.
	CurrentCount int
	// Requested is the number of events the refused check asked for.
	Requested int
	// MaxCalls is the configured window capacity.
	MaxCalls int
	// Window is the configured window length.
	Window time.Duration
}

// Error implements the error interface.
func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d active + %d requested > %d max in %s window",
		e.CurrentCount, e.Requested, e.MaxCalls, e.Window)
}

// New creates a Limiter allowing maxCalls events per window.
func New(maxCalls int, window time.Duration) Limiter {
	return Limiter{
		MaxCalls: maxCalls,
		Window:   window,
	}
}

// active returns the timestamps still inside the window at now.
// time.Time values produced by time.Now carry a monotonic reading, so the
// Sub-based comparison is immune to wall-clock adjustments.
func (l Limiter) active(now time.Time) []time.Time {
	kept := make([]time.Time, 0, len(l.timestamps))
	for _, ts := range l.timestamps {
		if now.Sub(ts) < l.Window {
			kept = append(kept, ts)
		}
	}
	return kept
}

// Check admits count events at now, returning the updated limiter.
// On refusal it returns the limiter unchanged along with a
// *LimitExceededError; a refused check never consumes capacity.
func (l Limiter) Check(now time.Time, count int) (Limiter, error) {
	if count < 1 {
		count = 1
	}

	kept := l.active(now)
	if len(kept)+count > l.MaxCalls {
		return l, &LimitExceededError{
			CurrentCount: len(kept),
			Requested:    count,
			MaxCalls:     l.MaxCalls,
			Window:       l.Window,
		}
	}

	for i := 0; i < count; i++ {
		kept = append(kept, now)
	}
	l.timestamps = kept
	return l, nil
}

// CurrentCount returns the number of events active in the window at now
// without mutating the limiter.
func (l Limiter) CurrentCount(now time.Time) int {
	count := 0
	for _, ts := range l.timestamps {
		if now.Sub(ts) < l.Window {
			count++
		}
	}
	return count
}

// Prune drops timestamps that have fallen out of the window, returning the
// compacted limiter. Check prunes implicitly; Prune exists for callers that
// want to bound memory between checks.
func (l Limiter) Prune(now time.Time) Limiter {
	l.timestamps = l.active(now)
	return l
}

// Reset clears all recorded events, returning an empty limiter with the
// same capacity and window.
func (l Limiter) Reset() Limiter {
	l.timestamps = nil
	return l
}
