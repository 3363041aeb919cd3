// Package limiter implements the per-rule firing gate: an optional
// "N matches in window W" threshold followed by a cooldown check. The same
// primitive backs log rules, health checks, and resource thresholds.
package limiter

import (
	"sync"
	"time"
)

// Threshold is a count-in-window firing condition.
type Threshold struct {
	Count  int
	Window time.Duration
}

// State holds the mutable firing state for one rule or check. Matches from
// different sources sharing one rule share one State; the mutex serializes
// their updates. The zero value is ready to use.
type State struct {
	mu        sync.Mutex
	lastFired time.Time
	window    []time.Time
}

// Observe records a match at now and reports whether the rule should fire.
//
// Evaluation order: the threshold window is updated first, then fireability
// is decided, then the cooldown gate is applied. With no threshold every
// match is fireable. With a threshold the match is appended, entries older
// than now-W are purged, and the rule fires only once the window holds at
// least Count entries, at which point the window is cleared entirely, so
// the next firing needs Count fresh matches. A zero cooldown never
// suppresses.
func (s *State) Observe(now time.Time, th *Threshold, cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if th != nil {
		s.window = append(s.window, now)
		s.purge(now, th.Window)
		if len(s.window) < th.Count {
			return false
		}
		// Reset on fire: the window restarts from zero, it does not slide.
		s.window = s.window[:0]
	}

	if cooldown > 0 && !s.lastFired.IsZero() && now.Sub(s.lastFired) < cooldown {
		return false
	}
	s.lastFired = now
	return true
}

// Pending returns the number of matches currently in the threshold window,
// after purging entries older than now-window.
func (s *State) Pending(now time.Time, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(now, window)
	return len(s.window)
}

// LastFired returns the time of the most recent firing, or the zero time if
// the rule has never fired.
func (s *State) LastFired() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFired
}

func (s *State) purge(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(s.window) && s.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		s.window = append(s.window[:0], s.window[i:]...)
	}
}

// Counter tracks consecutive failures for threshold policies that count
// occurrences rather than time. Any success resets it to zero.
type Counter struct {
	mu sync.Mutex
	n  int
}

// Fail records one failure and returns the new consecutive count.
func (c *Counter) Fail() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// Reset clears the consecutive count.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}

// Value returns the current consecutive count.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
