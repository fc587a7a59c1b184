// Package wizard drives the three-step settlement submission flow on the
// client: details, attorney, review, and then either a direct submission
// (caller already subscribed) or a hosted checkout round-trip.
//
// The Coordinator owns the flow state. Remote work goes through small
// collaborator interfaces; internal/apiclient implements them over HTTP.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/settlement-showcase/internal/emailcheck"
	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/redirect"
	"github.com/tbourn/settlement-showcase/internal/schedule"
	"github.com/tbourn/settlement-showcase/internal/sysutil"
)

// DefaultNextDelay coalesces rapid "next" activations.
const DefaultNextDelay = 300 * time.Millisecond

var (
	// ErrBusy is returned when a step advance or submission is already in
	// flight.
	ErrBusy = errors.New("wizard: operation already in progress")
	// ErrInvalidTransition is returned when an action is not allowed from
	// the current state.
	ErrInvalidTransition = errors.New("wizard: invalid transition")
	// ErrIncomplete is returned when submission is attempted with a draft
	// that does not validate.
	ErrIncomplete = errors.New("wizard: draft is incomplete")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("wizard: closed")
)

// Phase is the coarse position in the flow.
type Phase int

const (
	Editing Phase = iota
	AwaitingCheckoutRedirect
	Submitting
	Submitted
	Failed
)

func (p Phase) String() string {
	switch p {
	case Editing:
		return "editing"
	case AwaitingCheckoutRedirect:
		return "awaiting_checkout_redirect"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// State is a snapshot of the coordinator.
type State struct {
	Phase Phase
	// Step is the current page while Editing, and the page a Failed
	// attempt resumes on.
	Step form.Step
	// Reason explains a Failed state.
	Reason string

	TemporaryID      string
	CheckoutURL      string
	SettlementID     string
	AlreadyCompleted bool
}

func (s State) String() string {
	switch s.Phase {
	case Editing:
		return fmt.Sprintf("editing(%d)", int(s.Step))
	case Failed:
		return "failed(" + s.Reason + ")"
	}
	return s.Phase.String()
}

//
// Collaborators
//

// Gate answers whether the caller may submit without paying.
type Gate interface {
	SubscriptionActive(ctx context.Context, temporaryID string) (bool, error)
}

// CheckoutRequest starts a hosted checkout for the draft.
type CheckoutRequest struct {
	TemporaryID    string
	Email          string
	ReturnURL      string
	Draft          form.Draft
	IdempotencyKey string
}

// CheckoutResult is the server's answer to a checkout request.
type CheckoutResult struct {
	URL              string
	SessionID        string
	SettlementID     string
	AlreadyCompleted bool
}

// Checkout stores the draft unpaid and returns the provider redirect target.
type Checkout interface {
	BeginCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

// Submitter persists a draft for a subscribed caller and returns the new
// settlement id.
type Submitter interface {
	SubmitSettlement(ctx context.Context, temporaryID string, d form.Draft) (string, error)
}

// Confirmer verifies a returned checkout session.
type Confirmer interface {
	ConfirmCheckout(ctx context.Context, sessionID, temporaryID string) error
}

// TempIDStore persists the temporary identifier across the checkout
// redirect (browser storage in the original client).
type TempIDStore interface {
	Load() (string, bool)
	Save(id string) error
	Clear() error
}

// Redirector leaves the application for the provider checkout page.
type Redirector interface {
	Redirect(url string) error
}

// NoticeKind classifies a Notice.
type NoticeKind int

const (
	// NoticeBlocking reports validation failures that keep the user on
	// the current step.
	NoticeBlocking NoticeKind = iota
	// NoticeRetryable reports payment or persistence failures the user can
	// retry.
	NoticeRetryable
	// NoticeInfo reports non-error outcomes such as a canceled checkout.
	NoticeInfo
)

// Notice is surfaced to the user.
type Notice struct {
	Kind    NoticeKind
	Message string
	Fields  map[form.Field]string
	Err     error
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(Notice)
}

// Config wires a Coordinator.
type Config struct {
	Form *form.Store
	// Emails is optional; when set, step 2 waits for the latest email
	// check before validating.
	Emails *emailcheck.Reconciler

	Gate       Gate
	Checkout   Checkout
	Submitter  Submitter
	Confirmer  Confirmer
	TempIDs    TempIDStore
	Redirector Redirector
	Notifier   Notifier

	// ReturnURL is the site origin the provider redirects back to.
	ReturnURL string
	// UserEmail is the signed-in user's email, empty when anonymous.
	UserEmail string

	NextDelay time.Duration
	NewID     func() string
}

// Coordinator is the submission state machine. Methods are safe for
// concurrent use; at most one advance or submission runs at a time.
type Coordinator struct {
	cfg Config
	deb *schedule.Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	busy   atomic.Bool
	mu     sync.Mutex
	state  State
	closed bool
}

// New returns a Coordinator on step 1. It panics when Form or Confirmer is
// nil.
func New(cfg Config) *Coordinator {
	if cfg.Form == nil {
		panic("wizard: Config.Form is required")
	}
	if cfg.Confirmer == nil {
		panic("wizard: Config.Confirmer is required")
	}
	if cfg.NextDelay <= 0 {
		cfg.NextDelay = DefaultNextDelay
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:    cfg,
		deb:    schedule.New(cfg.NextDelay),
		ctx:    ctx,
		cancel: cancel,
		state:  State{Phase: Editing, Step: form.StepDetails},
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) set(st State) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

func (c *Coordinator) acquire() (State, error) {
	c.mu.Lock()
	closed, st := c.closed, c.state
	c.mu.Unlock()
	if closed {
		return st, ErrClosed
	}
	if !c.busy.CompareAndSwap(false, true) {
		return st, ErrBusy
	}
	return st, nil
}

func (c *Coordinator) release() { c.busy.Store(false) }

// Next validates the current step and advances on success. It returns
// false with a nil error when validation fails; the failure is reported
// through the Notifier. Step 2 first waits for email reconciliation.
func (c *Coordinator) Next(ctx context.Context) (bool, error) {
	st, err := c.acquire()
	if err != nil {
		return false, err
	}
	defer c.release()

	if st.Phase != Editing || st.Step >= form.StepReview {
		return false, ErrInvalidTransition
	}

	if st.Step == form.StepAttorney && c.cfg.Emails != nil {
		es, err := c.cfg.Emails.Settle(ctx)
		if err != nil {
			return false, err
		}
		if emailcheck.SameEmail(es.Email, c.cfg.Form.Get(form.AttorneyEmail)) {
			c.cfg.Form.SetEmailConflict(es.Exists)
		}
	}

	if !c.cfg.Form.ValidateStep(st.Step) {
		c.cfg.Notifier.Notify(Notice{
			Kind:    NoticeBlocking,
			Message: "Please fix the highlighted fields",
			Fields:  c.cfg.Form.Errors(),
		})
		return false, nil
	}

	st.Step++
	c.set(st)
	return true, nil
}

// RequestNext schedules Next on the trailing edge of NextDelay. Repeated
// calls within the window collapse into one validation and transition.
func (c *Coordinator) RequestNext() {
	c.deb.Schedule(func(tok schedule.Token) {
		if !tok.Current() {
			return
		}
		if _, err := c.Next(c.ctx); err != nil && !errors.Is(err, ErrBusy) && !errors.Is(err, ErrClosed) {
			sysutil.Logger(c.ctx).Debug().Err(err).Msg("debounced next ignored")
		}
	})
}

// Back moves to the previous step without validation. A Failed attempt
// goes back from the review step.
func (c *Coordinator) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	switch c.state.Phase {
	case Editing, Failed:
	default:
		return ErrInvalidTransition
	}
	step := c.state.Step
	if step > form.StepDetails {
		step--
	}
	c.state = State{Phase: Editing, Step: step, TemporaryID: c.state.TemporaryID}
	return nil
}

// temporaryID returns the identifier for the current attempt, minting and
// persisting one when none exists.
func (c *Coordinator) temporaryID() (string, error) {
	if c.cfg.TempIDs != nil {
		if id, ok := c.cfg.TempIDs.Load(); ok && strings.TrimSpace(id) != "" {
			return id, nil
		}
	}
	id := c.cfg.NewID()
	if c.cfg.TempIDs != nil {
		if err := c.cfg.TempIDs.Save(id); err != nil {
			return "", fmt.Errorf("persist temporary id: %w", err)
		}
	}
	return id, nil
}

// Submit finishes the flow from the review step (or a Failed attempt). A
// subscribed caller is persisted directly; anyone else is sent to checkout.
func (c *Coordinator) Submit(ctx context.Context) (State, error) {
	st, err := c.acquire()
	if err != nil {
		return st, err
	}
	defer c.release()

	if !(st.Phase == Editing && st.Step == form.StepReview) && st.Phase != Failed {
		return st, ErrInvalidTransition
	}
	review := State{Phase: Editing, Step: form.StepReview, TemporaryID: st.TemporaryID}

	if !c.cfg.Form.ValidateStep(form.StepReview) {
		c.cfg.Notifier.Notify(Notice{
			Kind:    NoticeBlocking,
			Message: "Some steps are incomplete",
			Fields:  c.cfg.Form.Errors(),
		})
		c.set(review)
		return review, ErrIncomplete
	}

	tid, err := c.temporaryID()
	if err != nil {
		return c.retryable(ctx, review, "Could not start your submission", err)
	}
	review.TemporaryID = tid
	lg := sysutil.Logger(ctx).With().Str("temporary_id", tid).Logger()

	active := false
	if c.cfg.Gate != nil {
		active, err = c.cfg.Gate.SubscriptionActive(ctx, tid)
		if err != nil {
			return c.retryable(ctx, review, "Could not check your subscription", err)
		}
	}
	draft := c.cfg.Form.Draft()

	if active {
		c.set(State{Phase: Submitting, TemporaryID: tid})
		id, err := c.cfg.Submitter.SubmitSettlement(ctx, tid, draft)
		if err != nil {
			failed := State{Phase: Failed, Step: form.StepReview, Reason: err.Error(), TemporaryID: tid}
			c.set(failed)
			c.cfg.Notifier.Notify(Notice{Kind: NoticeRetryable, Message: "Your settlement could not be saved", Err: err})
			lg.Warn().Err(err).Msg("direct submission failed")
			return failed, err
		}
		lg.Info().Str("settlement_id", id).Msg("settlement submitted")
		return c.finish(State{Phase: Submitted, TemporaryID: tid, SettlementID: id}), nil
	}

	email := c.cfg.UserEmail
	if email == "" {
		email = draft.AttorneyEmail
	}
	res, err := c.cfg.Checkout.BeginCheckout(ctx, CheckoutRequest{
		TemporaryID:    tid,
		Email:          email,
		ReturnURL:      c.cfg.ReturnURL,
		Draft:          draft,
		IdempotencyKey: "checkout-" + tid,
	})
	if err != nil {
		// The server keeps the draft, so retrying resumes it.
		return c.retryable(ctx, review, "Payment could not be started", err)
	}
	if res.AlreadyCompleted {
		lg.Info().Str("settlement_id", res.SettlementID).Msg("checkout already completed")
		return c.finish(State{Phase: Submitted, TemporaryID: tid, SettlementID: res.SettlementID, AlreadyCompleted: true}), nil
	}

	next := State{Phase: AwaitingCheckoutRedirect, TemporaryID: tid, CheckoutURL: res.URL, SettlementID: res.SettlementID}
	c.set(next)
	if c.cfg.Redirector != nil {
		if err := c.cfg.Redirector.Redirect(res.URL); err != nil {
			failed := State{Phase: Failed, Step: form.StepReview, Reason: err.Error(), TemporaryID: tid}
			c.set(failed)
			c.cfg.Notifier.Notify(Notice{Kind: NoticeRetryable, Message: "Could not open the payment page", Err: err})
			return failed, err
		}
	}
	lg.Info().Str("session_id", res.SessionID).Msg("redirecting to checkout")
	return next, nil
}

// Resume handles the return redirect of a checkout. A canceled checkout
// returns to the review step with the draft intact; a completed one is
// verified and the flow finishes.
func (c *Coordinator) Resume(ctx context.Context, returnURL string) (State, error) {
	st, err := c.acquire()
	if err != nil {
		return st, err
	}
	defer c.release()

	conf, err := redirect.ParseConfirmation(returnURL)
	if err != nil {
		return st, err
	}
	tid := conf.TemporaryID
	if tid == "" && c.cfg.TempIDs != nil {
		tid, _ = c.cfg.TempIDs.Load()
	}
	review := State{Phase: Editing, Step: form.StepReview, TemporaryID: tid}

	if conf.Canceled || conf.SessionID == "" {
		if tid != "" && c.cfg.TempIDs != nil {
			if err := c.cfg.TempIDs.Save(tid); err != nil {
				sysutil.Logger(ctx).Warn().Err(err).Msg("could not persist temporary id")
			}
		}
		c.set(review)
		c.cfg.Notifier.Notify(Notice{Kind: NoticeInfo, Message: "Payment was canceled; your draft is saved"})
		return review, nil
	}

	if err := c.cfg.Confirmer.ConfirmCheckout(ctx, conf.SessionID, tid); err != nil {
		failed := State{Phase: Failed, Step: form.StepReview, Reason: err.Error(), TemporaryID: tid}
		c.set(failed)
		c.cfg.Notifier.Notify(Notice{Kind: NoticeRetryable, Message: "We could not confirm your payment", Err: err})
		return failed, err
	}
	return c.finish(State{Phase: Submitted, TemporaryID: tid}), nil
}

// finish records a completed attempt: the temporary id is retired and the
// draft cleared.
func (c *Coordinator) finish(st State) State {
	if c.cfg.TempIDs != nil {
		if err := c.cfg.TempIDs.Clear(); err != nil {
			sysutil.Logger(c.ctx).Warn().Err(err).Msg("could not clear temporary id")
		}
	}
	c.cfg.Form.Reset()
	c.set(st)
	return st
}

func (c *Coordinator) retryable(ctx context.Context, st State, msg string, err error) (State, error) {
	c.set(st)
	c.cfg.Notifier.Notify(Notice{Kind: NoticeRetryable, Message: msg, Err: err})
	sysutil.Logger(ctx).Warn().Err(err).Str("notice", msg).Stringer("state", st).Msg("wizard attempt failed")
	return st, err
}

// Close cancels debounced work and pending email checks. The coordinator
// rejects further actions.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.deb.Cancel()
	if c.cfg.Emails != nil {
		c.cfg.Emails.Cancel()
	}
	c.cancel()
}
