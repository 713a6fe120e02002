package policies

import (
	"sync"
	"time"
)

const (
	DefaultRateLimitPerWindow = 200
	DefaultRateLimitWindow    = 60 * time.Second
)

// Scheduler runs task once after delay. Implementations decide which
// goroutine the task runs on.
type Scheduler interface {
	Schedule(delay time.Duration, task func())
}

type SchedulerFunc func(delay time.Duration, task func())

func (f SchedulerFunc) Schedule(delay time.Duration, task func()) {
	f(delay, task)
}

type RateLimit struct {
	mu                sync.Mutex
	limit             int
	window            time.Duration
	count             int
	lastIncrementedAt time.Time
	now               func() time.Time
	scheduler         Scheduler
}

func NewRateLimit(limit int, window time.Duration, scheduler Scheduler, now func() time.Time) *RateLimit {
	if limit <= 0 {
		limit = DefaultRateLimitPerWindow
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimit{
		limit:             limit,
		window:            window,
		lastIncrementedAt: now(),
		now:               now,
		scheduler:         scheduler,
	}
}

// CanRequest reports whether another request fits in the current window.
// A counter that has not moved for two windows is assumed to have missed a
// decrement and is cleared.
func (r *RateLimit) CanRequest() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastIncrementedAt.Before(r.now().Add(-2 * r.window)) {
		r.count = 0
	}
	return r.count <= r.limit
}

func (r *RateLimit) Increment(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.count += delta
	r.lastIncrementedAt = r.now()
}

// DecrementWithDelay gives delta back to the budget one window later and
// then runs done, if set.
func (r *RateLimit) DecrementWithDelay(delta int, done func()) {
	task := func() {
		r.mu.Lock()
		r.count -= delta
		if r.count < 0 {
			r.count = 0
		}
		r.mu.Unlock()
		if done != nil {
			done()
		}
	}
	if r.scheduler == nil {
		task()
		return
	}
	r.scheduler.Schedule(r.window, task)
}

func (r *RateLimit) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
