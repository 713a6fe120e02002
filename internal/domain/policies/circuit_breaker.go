package policies

import (
	"sync"
	"time"
)

const (
	DefaultCircuitBreakerThreshold    = 3
	DefaultCircuitBreakerRecoverAfter = 300000 * time.Millisecond
)

type CircuitBreaker struct {
	mu           sync.Mutex
	threshold    int
	recoverAfter time.Duration
	failureCount int
	lastFailedAt time.Time
	now          func() time.Time
}

func NewCircuitBreaker(threshold int, recoverAfter time.Duration, now func() time.Time) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultCircuitBreakerThreshold
	}
	if recoverAfter <= 0 {
		recoverAfter = DefaultCircuitBreakerRecoverAfter
	}
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		threshold:    threshold,
		recoverAfter: recoverAfter,
		now:          now,
	}
}

// CanRequest is false once threshold consecutive failures were recorded and
// recoverAfter has not yet elapsed since the last one.
func (b *CircuitBreaker) CanRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.lastFailedAt.IsZero() && b.now().Sub(b.lastFailedAt) > b.recoverAfter {
		b.resetLocked()
	}
	return b.failureCount < b.threshold
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailedAt = b.now()
}

func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// RetryAfter is how long an open breaker stays open. Zero when closed.
func (b *CircuitBreaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failureCount < b.threshold || b.lastFailedAt.IsZero() {
		return 0
	}
	remaining := b.recoverAfter - b.now().Sub(b.lastFailedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *CircuitBreaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

func (b *CircuitBreaker) resetLocked() {
	b.failureCount = 0
	b.lastFailedAt = time.Time{}
}
