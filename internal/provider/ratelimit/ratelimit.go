// Package ratelimit provides a weighted sliding-window request limiter for
// providers whose plans meter calls in cost units per minute rather than
// plain requests per second.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter tracks cumulative weight consumed over a rolling window and blocks
// callers that would exceed the ceiling until enough of the window has
// rolled off. Blocking is cooperative: waiters sleep on a timer and honor
// context cancellation, there is no busy wait.
type Limiter struct {
	window  time.Duration
	ceiling int

	mu     sync.Mutex
	events []event

	now func() time.Time // injectable for tests
}

type event struct {
	at     time.Time
	weight int
}

// New creates a limiter allowing at most ceiling units per window.
func New(ceiling int, window time.Duration) *Limiter {
	if ceiling < 1 {
		ceiling = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		window:  window,
		ceiling: ceiling,
		now:     time.Now,
	}
}

// Acquire blocks until weight units fit inside the current window, then
// consumes them. It returns immediately with the context error when ctx is
// canceled while waiting, and with an error when weight alone exceeds the
// ceiling (that request could never proceed).
func (l *Limiter) Acquire(ctx context.Context, weight int) error {
	if weight < 1 {
		weight = 1
	}
	if weight > l.ceiling {
		return fmt.Errorf("weight %d exceeds window ceiling %d", weight, l.ceiling)
	}

	for {
		wait, ok := l.tryAcquire(weight)
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire consumes weight units if they fit, otherwise reports how long
// until the oldest blocking event rolls out of the window.
func (l *Limiter) tryAcquire(weight int) (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	used := 0
	for _, e := range l.events {
		used += e.weight
	}

	if used+weight <= l.ceiling {
		l.events = append(l.events, event{at: now, weight: weight})
		return 0, true
	}

	// The window is full. Wait for the oldest event to expire.
	wait = l.events[0].at.Add(l.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// pruneLocked drops events older than the window. Callers hold mu.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.events) && !l.events[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		l.events = append(l.events[:0], l.events[i:]...)
	}
}

// Used returns the weight currently consumed inside the window.
func (l *Limiter) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.now())
	used := 0
	for _, e := range l.events {
		used += e.weight
	}
	return used
}
