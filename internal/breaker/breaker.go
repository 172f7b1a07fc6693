// Package breaker implements the two-state circuit breaker gating the
// publish pipeline.
package breaker

import (
	"sync"
	"time"
)

// State is a snapshot of the breaker for administrative inspection.
type State struct {
	Open             bool      `json:"open"`
	FailureCount     int       `json:"failureCount"`
	FailureThreshold int       `json:"failureThreshold"`
	LastFailureAt    time.Time `json:"lastFailureAt"`
	ResetTimeout     string    `json:"resetTimeout"`
}

// Breaker tracks consecutive pipeline failures. It is CLOSED while the
// failure count stays below the threshold and OPEN once it reaches it; the
// OPEN state clears only through Evaluate or a manual Reset, never on a
// single successful check.
type Breaker struct {
	mu               sync.Mutex
	failureCount     int
	failureThreshold int
	lastFailureAt    time.Time
	resetTimeout     time.Duration
}

// New constructs a breaker with the provided threshold and reset timeout.
func New(threshold int, resetTimeout time.Duration) *Breaker {
	b := new(Breaker)
	b.failureThreshold = threshold
	b.resetTimeout = resetTimeout
	return b
}

// Allow reports whether the publish pipeline may execute.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount < b.failureThreshold
}

// RecordFailure registers a pipeline failure at the given instant.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailureAt = now
}

// Evaluate runs the periodic reset check. It clears the failure count when
// the quiet period since the last failure exceeds the reset timeout, and
// reports whether a reset happened so the caller can drain the DLQ.
func (b *Breaker) Evaluate(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastFailureAt.IsZero() || b.failureCount == 0 {
		return false
	}
	if now.Sub(b.lastFailureAt) <= b.resetTimeout {
		return false
	}
	b.failureCount = 0
	return true
}

// Reset clears the breaker unconditionally (administrative operation).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.lastFailureAt = time.Time{}
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		Open:             b.failureCount >= b.failureThreshold,
		FailureCount:     b.failureCount,
		FailureThreshold: b.failureThreshold,
		LastFailureAt:    b.lastFailureAt,
		ResetTimeout:     b.resetTimeout.String(),
	}
}
