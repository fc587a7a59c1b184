// Package emailcheck decides whether a candidate attorney email already
// belongs to an existing settlement or account, debouncing user input and
// applying only the result for the most recent input.
//
// Remote failures fail open: they are logged and reported as "not existing",
// since ownership is enforced again server-side at persistence time.
package emailcheck

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/schedule"
	"github.com/tbourn/settlement-showcase/internal/sysutil"
)

// DefaultDelay is the quiet period before a check is issued.
const DefaultDelay = 500 * time.Millisecond

// DefaultTimeout bounds a single remote existence lookup.
const DefaultTimeout = 5 * time.Second

// Checker performs the remote existence lookup.
type Checker interface {
	EmailExists(ctx context.Context, email string) (bool, error)
}

// SameEmail compares two addresses case-insensitively, ignoring surrounding
// whitespace. Blank addresses never match.
func SameEmail(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// CheckEmail reports whether email is already in use. It skips the lookup
// entirely when email equals the authenticated session's email, and treats
// lookup errors as "not existing".
func CheckEmail(ctx context.Context, c Checker, email, currentUserEmail string) bool {
	if SameEmail(email, currentUserEmail) {
		return false
	}
	exists, err := c.EmailExists(ctx, strings.TrimSpace(email))
	if err != nil {
		sysutil.Logger(ctx).Warn().Err(err).Msg("email existence check failed; treating as available")
		return false
	}
	return exists
}

// State is the reconciler's view of the current input.
type State struct {
	Email    string
	Checking bool
	Exists   bool
}

// Reconciler debounces email input and publishes results through OnChange.
type Reconciler struct {
	checker  Checker
	deb      *schedule.Debouncer
	timeout  time.Duration
	onChange func(State)

	mu       sync.Mutex
	state    State
	seq      uint64
	done     chan struct{} // closed once the current input is resolved or superseded
	inflight context.CancelFunc

	notifyMu  sync.Mutex
	delivered uint64
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDelay overrides the debounce quiet period.
func WithDelay(d time.Duration) Option { return func(r *Reconciler) { r.deb.Delay = d } }

// WithTimeout overrides the per-lookup timeout.
func WithTimeout(d time.Duration) Option { return func(r *Reconciler) { r.timeout = d } }

// OnChange registers a callback invoked with every state change. It is
// called outside the reconciler's lock.
func OnChange(fn func(State)) Option { return func(r *Reconciler) { r.onChange = fn } }

// NewReconciler builds a Reconciler around c.
func NewReconciler(c Checker, opts ...Option) *Reconciler {
	r := &Reconciler{
		checker: c,
		deb:     schedule.New(DefaultDelay),
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// State returns the latest published state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Input records a new candidate email. Any queued or in-flight check for an
// earlier input is discarded. Blank or malformed emails, and the session's
// own email, resolve immediately as not existing.
func (r *Reconciler) Input(email, currentUserEmail string) {
	r.mu.Lock()
	r.supersedeLocked()

	if !form.ValidEmail(email) || SameEmail(email, currentUserEmail) {
		r.deb.Cancel()
		st, seq := r.setLocked(State{Email: email})
		r.mu.Unlock()
		r.notify(st, seq)
		return
	}

	done := make(chan struct{})
	r.done = done
	st, seq := r.setLocked(State{Email: email, Checking: true})
	r.deb.Schedule(func(tok schedule.Token) { r.run(tok, email, currentUserEmail, done) })
	r.mu.Unlock()
	r.notify(st, seq)
}

func (r *Reconciler) run(tok schedule.Token, email, currentUserEmail string, done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	r.mu.Lock()
	if !tok.Current() {
		r.mu.Unlock()
		return
	}
	r.inflight = cancel
	r.mu.Unlock()

	exists := CheckEmail(ctx, r.checker, email, currentUserEmail)

	r.mu.Lock()
	if !tok.Current() || r.done != done {
		r.mu.Unlock()
		return
	}
	r.inflight = nil
	st, seq := r.setLocked(State{Email: email, Exists: exists})
	close(done)
	r.done = nil
	r.mu.Unlock()
	r.notify(st, seq)
}

// Settle flushes a pending check and waits until the current input has a
// result, returning it. If newer input arrives while waiting, Settle waits
// for that instead.
func (r *Reconciler) Settle(ctx context.Context) (State, error) {
	for {
		r.mu.Lock()
		done, st := r.done, r.state
		r.mu.Unlock()
		if done == nil {
			return st, nil
		}

		r.deb.Flush()
		select {
		case <-done:
		case <-ctx.Done():
			return r.State(), ctx.Err()
		}
	}
}

// Cancel discards queued and in-flight checks; their results are never
// applied. Used on teardown.
func (r *Reconciler) Cancel() {
	r.mu.Lock()
	r.deb.Cancel()
	r.supersedeLocked()
	next := r.state
	next.Checking = false
	st, seq := r.setLocked(next)
	r.mu.Unlock()
	r.notify(st, seq)
}

// supersedeLocked releases waiters on the current input and aborts its
// in-flight lookup. r.mu must be held.
func (r *Reconciler) supersedeLocked() {
	if r.inflight != nil {
		r.inflight()
		r.inflight = nil
	}
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
}

func (r *Reconciler) setLocked(st State) (State, uint64) {
	r.state = st
	r.seq++
	return st, r.seq
}

// notify delivers st unless a newer state was already delivered, so
// callbacks observe states in logical order even when goroutines race.
func (r *Reconciler) notify(st State, seq uint64) {
	if r.onChange == nil {
		return
	}
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if seq <= r.delivered {
		return
	}
	r.delivered = seq
	r.onChange(st)
}

// StoreSink returns an OnChange callback that mirrors settled results into
// the form store's email-conflict flag.
func StoreSink(s *form.Store) func(State) {
	return func(st State) {
		if !st.Checking {
			s.SetEmailConflict(st.Exists)
		}
	}
}
