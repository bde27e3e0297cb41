package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInteractionLimit is returned once the interaction ceiling is exceeded.
var ErrInteractionLimit = errors.New("interaction limit reached")

// InteractionLimiter enforces the maximum number of turns a step may run.
type InteractionLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewInteractionLimiter creates a limiter allowing max turns.
// If max == 0, unlimited turns are allowed.
func NewInteractionLimiter(max int) *InteractionLimiter {
	return &InteractionLimiter{max: max}
}

// Increment claims the next turn. It returns an error wrapping
// ErrInteractionLimit when the claim would exceed the ceiling; the
// counter is not advanced in that case.
func (l *InteractionLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max > 0 && l.count >= l.max {
		return fmt.Errorf("%w: %d turns", ErrInteractionLimit, l.max)
	}
	l.count++

	return nil
}

// Count returns the number of turns claimed so far.
func (l *InteractionLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Max returns the configured ceiling.
func (l *InteractionLimiter) Max() int { return l.max }

// Remaining returns how many turns are left before hitting the ceiling.
func (l *InteractionLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1 // unlimited
	}

	return l.max - l.count
}
