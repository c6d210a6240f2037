package core

import (
	"fmt"
	"sync"
)

// IterationLimiter enforces the hard ceiling on model calls per run.
type IterationLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewIterationLimiter creates a limiter allowing at most max model calls.
// A max below 1 is raised to 1 so a run can never be unbounded.
func NewIterationLimiter(max int) *IterationLimiter {
	if max < 1 {
		max = 1
	}
	return &IterationLimiter{max: max}
}

// Increment claims the next iteration. It returns ErrIterationLimit without
// advancing the counter once the ceiling has been reached.
func (l *IterationLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count >= l.max {
		return fmt.Errorf("%w: %d", ErrIterationLimit, l.max)
	}

	l.count++

	return nil
}

// Count returns the number of iterations claimed so far.
func (l *IterationLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Max returns the ceiling.
func (l *IterationLimiter) Max() int { return l.max }

// Remaining returns how many iterations are left.
func (l *IterationLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.max - l.count
}
