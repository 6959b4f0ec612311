package ratelimit

import (
	"sync"
	"time"
)

// Debouncer delays fn until wait has elapsed without a new Trigger.
// Only the last value of a burst reaches fn.
type Debouncer[T any] struct {
	mu    sync.Mutex
	wait  time.Duration
	fn    func(T)
	timer *time.Timer
	seq   uint64
	last  T
	armed bool
}

func NewDebouncer[T any](wait time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{wait: wait, fn: fn}
}

// Trigger cancels any pending call and schedules a new one with v.
// A non-positive wait fires synchronously.
func (d *Debouncer[T]) Trigger(v T) {
	if d.wait <= 0 {
		d.fn(v)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	token := d.seq
	d.last = v
	d.armed = true
	d.timer = time.AfterFunc(d.wait, func() {
		d.fire(token)
	})
}

// Cancel drops the pending call, if any, and reports whether one was pending.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.armed {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.armed = false
	var zero T
	d.last = zero
	return true
}

// Flush runs the pending call now instead of waiting for the window to close.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return
	}
	token := d.seq
	d.mu.Unlock()
	d.fire(token)
}

// Pending reports whether a call is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *Debouncer[T]) fire(token uint64) {
	d.mu.Lock()
	// A newer Trigger or a Cancel superseded this timer.
	if !d.armed || token != d.seq {
		d.mu.Unlock()
		return
	}
	v := d.last
	var zero T
	d.last = zero
	d.armed = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.fn(v)
}
