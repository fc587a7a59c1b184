// Package schedule provides a cancellable, debounced task runner.
//
// Only the most recently scheduled invocation can ever run; every earlier one
// becomes a no-op. Work that already started can ask its Token whether it is
// still current before publishing results, which gives callers stale-result
// suppression without tracking request ids themselves.
package schedule

import (
	"sync"
	"time"
)

// Token identifies one scheduled invocation.
type Token struct {
	d   *Debouncer
	gen uint64
}

// Current reports whether no newer invocation has been scheduled and the
// debouncer has not been canceled since this token was issued.
func (t Token) Current() bool {
	if t.d == nil {
		return false
	}
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	return t.d.gen == t.gen
}

// Debouncer delays work until Delay has passed without another Schedule call.
// The zero value is usable and fires on the next timer tick.
type Debouncer struct {
	Delay time.Duration

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	pending func(Token)
}

// New returns a Debouncer with the given quiet period.
func New(delay time.Duration) *Debouncer { return &Debouncer{Delay: delay} }

// Schedule replaces any pending invocation with fn, restarting the quiet
// period. fn runs on its own goroutine.
func (d *Debouncer) Schedule(fn func(Token)) Token {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	d.stopLocked()
	d.pending = fn
	d.timer = time.AfterFunc(d.Delay, func() { d.fire(gen) })
	return Token{d: d, gen: gen}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	fn(Token{d: d, gen: gen})
}

// Cancel drops pending work and invalidates every outstanding Token.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.stopLocked()
	d.pending = nil
}

// Flush runs the pending invocation immediately on the calling goroutine and
// reports whether there was one.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return false
	}
	fn := d.pending
	gen := d.gen
	d.pending = nil
	d.stopLocked()
	d.mu.Unlock()

	fn(Token{d: d, gen: gen})
	return true
}

// Pending reports whether an invocation is waiting for its quiet period.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
