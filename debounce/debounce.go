// Package debounce turns a fast-changing value, such as raw search
// keystrokes, into a slow-changing committed value.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the stable-input period before a search term is
// committed.
const DefaultDelay = 500 * time.Millisecond

// Debouncer commits the last value passed to Set once no new value has
// arrived for the configured delay. Safe for concurrent use.
type Debouncer[T any] struct {
	delay  time.Duration
	commit func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending T
	has     bool
	gen     uint64
	stopped bool
}

// New creates a debouncer that calls commit from its own goroutine.
// A non-positive delay uses DefaultDelay.
func New[T any](delay time.Duration, commit func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[T]{delay: delay, commit: commit}
}

// Set records v and restarts the delay. Any earlier pending value is
// dropped.
func (d *Debouncer[T]) Set(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.gen++
	d.pending = v
	d.has = true
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	v, ok := d.take(gen)
	if ok {
		d.commit(v)
	}
}

// take claims the pending value if gen is still current. Exactly one
// caller can claim a given value.
func (d *Debouncer[T]) take(gen uint64) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero T
	if d.stopped || !d.has || gen != d.gen {
		return zero, false
	}
	v := d.pending
	d.pending = zero
	d.has = false
	d.timer = nil
	return v, true
}

// Flush commits the pending value immediately, on the caller's goroutine.
// It reports whether there was a value to commit.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.mu.Unlock()

	v, ok := d.take(gen)
	if ok {
		d.commit(v)
	}
	return ok
}

// Pending returns the value waiting to be committed, if any.
func (d *Debouncer[T]) Pending() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending, d.has
}

// Stop discards any pending value. Later calls to Set are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.gen++
	var zero T
	d.pending = zero
	d.has = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
