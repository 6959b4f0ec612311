package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttler lets fn run at most once per interval. The first call goes
// through immediately; calls inside the interval collapse into one trailing
// call at the boundary carrying the most recent value.
type Throttler[T any] struct {
	mu       sync.Mutex
	interval time.Duration
	limiter  *rate.Limiter
	fn       func(T)

	timer       *time.Timer
	reservation *rate.Reservation
	pending     bool
	last        T
}

func NewThrottler[T any](interval time.Duration, fn func(T)) *Throttler[T] {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttler[T]{
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
		fn:       fn,
	}
}

func (t *Throttler[T]) Call(v T) {
	t.mu.Lock()
	if t.pending {
		t.last = v
		t.mu.Unlock()
		return
	}

	r := t.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		t.mu.Unlock()
		t.fn(v)
		return
	}

	t.pending = true
	t.last = v
	t.reservation = r
	t.timer = time.AfterFunc(delay, t.fire)
	t.mu.Unlock()
}

// Cancel drops a scheduled trailing call and returns its reserved slot.
func (t *Throttler[T]) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.pending {
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.reservation != nil {
		t.reservation.Cancel()
		t.reservation = nil
	}
	t.pending = false
	var zero T
	t.last = zero
	return true
}

func (t *Throttler[T]) fire() {
	t.mu.Lock()
	if !t.pending {
		t.mu.Unlock()
		return
	}
	v := t.last
	var zero T
	t.last = zero
	t.pending = false
	t.timer = nil
	t.reservation = nil
	t.mu.Unlock()

	t.fn(v)
}
