package wizard

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/settlement-showcase/internal/emailcheck"
	"github.com/tbourn/settlement-showcase/internal/form"
)

// ---------- fakes ----------

type fakeGate struct {
	active  bool
	err     error
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *fakeGate) SubscriptionActive(ctx context.Context, _ string) (bool, error) {
	g.calls.Add(1)
	if g.entered != nil {
		close(g.entered)
		<-g.release
	}
	return g.active, g.err
}

type fakeCheckout struct {
	res  *CheckoutResult
	err  error
	reqs []CheckoutRequest
}

func (f *fakeCheckout) BeginCheckout(_ context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeSubmitter struct {
	id    string
	err   error
	calls int
	got   form.Draft
}

func (f *fakeSubmitter) SubmitSettlement(_ context.Context, _ string, d form.Draft) (string, error) {
	f.calls++
	f.got = d
	return f.id, f.err
}

type fakeConfirmer struct {
	err     error
	session string
	tid     string
}

func (f *fakeConfirmer) ConfirmCheckout(_ context.Context, sessionID, tid string) error {
	f.session, f.tid = sessionID, tid
	return f.err
}

type memTempIDs struct {
	mu sync.Mutex
	id string
}

func (m *memTempIDs) Load() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.id != ""
}
func (m *memTempIDs) Save(id string) error { m.mu.Lock(); m.id = id; m.mu.Unlock(); return nil }
func (m *memTempIDs) Clear() error         { m.mu.Lock(); m.id = ""; m.mu.Unlock(); return nil }

type fakeRedirector struct{ urls []string }

func (f *fakeRedirector) Redirect(u string) error { f.urls = append(f.urls, u); return nil }

type notices struct {
	mu   sync.Mutex
	list []Notice
}

func (n *notices) Notify(x Notice) { n.mu.Lock(); n.list = append(n.list, x); n.mu.Unlock() }
func (n *notices) last() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.list) == 0 {
		return Notice{}, false
	}
	return n.list[len(n.list)-1], true
}

type emailChecker struct {
	taken map[string]bool
	calls atomic.Int32
}

func (e *emailChecker) EmailExists(_ context.Context, email string) (bool, error) {
	e.calls.Add(1)
	return e.taken[email], nil
}

// ---------- helpers ----------

type rig struct {
	c        *Coordinator
	store    *form.Store
	gate     *fakeGate
	checkout *fakeCheckout
	submit   *fakeSubmitter
	confirm  *fakeConfirmer
	tids     *memTempIDs
	redirect *fakeRedirector
	notes    *notices
}

func newRig(t *testing.T, mod func(*Config)) *rig {
	t.Helper()
	r := &rig{
		store:    form.NewStore(),
		gate:     &fakeGate{},
		checkout: &fakeCheckout{res: &CheckoutResult{URL: "https://checkout.example/cs_1", SessionID: "cs_1", SettlementID: "s1"}},
		submit:   &fakeSubmitter{id: "s-direct"},
		confirm:  &fakeConfirmer{},
		tids:     &memTempIDs{},
		redirect: &fakeRedirector{},
		notes:    &notices{},
	}
	cfg := Config{
		Form:       r.store,
		Gate:       r.gate,
		Checkout:   r.checkout,
		Submitter:  r.submit,
		Confirmer:  r.confirm,
		TempIDs:    r.tids,
		Redirector: r.redirect,
		Notifier:   r.notes,
		ReturnURL:  "https://showcase.example",
		NextDelay:  20 * time.Millisecond,
		NewID:      func() string { return "tmp-1" },
	}
	if mod != nil {
		mod(&cfg)
	}
	r.c = New(cfg)
	t.Cleanup(r.c.Close)
	return r
}

func fill(s *form.Store) {
	s.Set(form.Amount, "$1,234abc")
	s.Set(form.CaseType, "Auto Accident")
	s.Set(form.SettlementPhase, "Litigation")
	s.Set(form.CaseDescription, "rear-ended at a light")
	s.Set(form.AttorneyName, "Jane Roe")
	s.Set(form.AttorneyEmail, "jane@firm.com")
	s.Set(form.FirmName, "Roe Law")
	s.Set(form.Location, "Austin, TX")
}

func toReview(t *testing.T, r *rig) {
	t.Helper()
	for i := 0; i < 2; i++ {
		ok, err := r.c.Next(context.Background())
		if err != nil || !ok {
			t.Fatalf("next %d: ok=%v err=%v errs=%v", i, ok, err, r.store.Errors())
		}
	}
	if st := r.c.State(); st.Phase != Editing || st.Step != form.StepReview {
		t.Fatalf("not on review: %v", st)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ---------- tests ----------

func TestNext_BlocksOnValidationFailure(t *testing.T) {
	r := newRig(t, nil)
	r.store.Set(form.Amount, "$1,234abc")

	ok, err := r.c.Next(context.Background())
	if err != nil || ok {
		t.Fatalf("expected validation failure, ok=%v err=%v", ok, err)
	}
	if st := r.c.State(); st.Step != form.StepDetails {
		t.Fatalf("step advanced: %v", st)
	}
	if r.store.Get(form.Amount) != "1,234" {
		t.Fatalf("amount not sanitized: %q", r.store.Get(form.Amount))
	}
	n, ok2 := r.notes.last()
	if !ok2 || n.Kind != NoticeBlocking || n.Fields[form.CaseType] == "" {
		t.Fatalf("expected blocking notice on case_type, got %+v", n)
	}
}

func TestNext_And_Back(t *testing.T) {
	r := newRig(t, nil)
	fill(r.store)
	toReview(t, r)

	if _, err := r.c.Next(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("next past review: %v", err)
	}

	// Back never validates.
	r.store.Set(form.FirmName, "")
	if err := r.c.Back(); err != nil {
		t.Fatalf("back: %v", err)
	}
	if err := r.c.Back(); err != nil {
		t.Fatalf("back: %v", err)
	}
	if err := r.c.Back(); err != nil {
		t.Fatalf("back on step 1: %v", err)
	}
	if st := r.c.State(); st.Step != form.StepDetails {
		t.Fatalf("expected step 1, got %v", st)
	}
}

func TestNext_Step2_SettlesEmailCheck(t *testing.T) {
	checker := &emailChecker{taken: map[string]bool{"taken@firm.com": true}}
	var rec *emailcheck.Reconciler
	r := newRig(t, func(cfg *Config) {
		rec = emailcheck.NewReconciler(checker, emailcheck.WithDelay(time.Hour), emailcheck.OnChange(emailcheck.StoreSink(cfg.Form)))
		cfg.Emails = rec
	})
	fill(r.store)
	if ok, _ := r.c.Next(context.Background()); !ok {
		t.Fatalf("step 1 should pass")
	}

	r.store.Set(form.AttorneyEmail, "taken@firm.com")
	rec.Input("taken@firm.com", "")

	// The hour-long debounce is flushed by Next.
	ok, err := r.c.Next(context.Background())
	if err != nil || ok {
		t.Fatalf("expected email conflict to block, ok=%v err=%v", ok, err)
	}
	if r.store.Errors()[form.AttorneyEmail] != form.MsgEmailInUse {
		t.Fatalf("conflict not surfaced: %v", r.store.Errors())
	}
	if checker.calls.Load() != 1 {
		t.Fatalf("expected one lookup, got %d", checker.calls.Load())
	}

	r.store.Set(form.AttorneyEmail, "free@firm.com")
	rec.Input("free@firm.com", "")
	if ok, err := r.c.Next(context.Background()); err != nil || !ok {
		t.Fatalf("free email should pass: ok=%v err=%v", ok, err)
	}
}

func TestRequestNext_CoalescesRapidActivations(t *testing.T) {
	r := newRig(t, nil)
	fill(r.store)

	for i := 0; i < 5; i++ {
		r.c.RequestNext()
	}
	waitFor(t, func() bool { return r.c.State().Step == form.StepAttorney })
	time.Sleep(60 * time.Millisecond)
	if st := r.c.State(); st.Step != form.StepAttorney {
		t.Fatalf("expected a single advance, got %v", st)
	}
}

func TestSubmit_Subscribed_PersistsDirectly(t *testing.T) {
	r := newRig(t, nil)
	r.gate.active = true
	fill(r.store)
	toReview(t, r)

	st, err := r.c.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st.Phase != Submitted || st.SettlementID != "s-direct" {
		t.Fatalf("state=%v", st)
	}
	if len(r.checkout.reqs) != 0 || len(r.redirect.urls) != 0 {
		t.Fatalf("subscribed submit must not check out")
	}
	if r.submit.got.Amount != "1,234" {
		t.Fatalf("draft not passed: %+v", r.submit.got)
	}
	if _, ok := r.tids.Load(); ok {
		t.Fatalf("temporary id should be retired")
	}
	if r.store.Get(form.AttorneyName) != "" {
		t.Fatalf("draft should be cleared")
	}
}

func TestSubmit_PersistenceError_FailsResumably(t *testing.T) {
	r := newRig(t, nil)
	r.gate.active = true
	r.submit.err = errors.New("db down")
	fill(r.store)
	toReview(t, r)

	st, err := r.c.Submit(context.Background())
	if err == nil || st.Phase != Failed || st.Step != form.StepReview {
		t.Fatalf("expected failed(review), got %v err=%v", st, err)
	}
	if n, _ := r.notes.last(); n.Kind != NoticeRetryable {
		t.Fatalf("expected retryable notice, got %+v", n)
	}

	r.submit.err = nil
	st, err = r.c.Submit(context.Background())
	if err != nil || st.Phase != Submitted {
		t.Fatalf("retry: %v err=%v", st, err)
	}
	if r.submit.calls != 2 {
		t.Fatalf("submit calls=%d", r.submit.calls)
	}
}

func TestSubmit_Anonymous_RedirectsToCheckout(t *testing.T) {
	r := newRig(t, nil)
	fill(r.store)
	toReview(t, r)

	st, err := r.c.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st.Phase != AwaitingCheckoutRedirect || st.CheckoutURL != "https://checkout.example/cs_1" {
		t.Fatalf("state=%v", st)
	}
	if len(r.redirect.urls) != 1 || r.redirect.urls[0] != st.CheckoutURL {
		t.Fatalf("redirects=%v", r.redirect.urls)
	}
	req := r.checkout.reqs[0]
	if req.TemporaryID != "tmp-1" || req.Email != "jane@firm.com" || req.ReturnURL != "https://showcase.example" || req.IdempotencyKey == "" {
		t.Fatalf("checkout request=%+v", req)
	}
	if id, _ := r.tids.Load(); id != "tmp-1" {
		t.Fatalf("temporary id must survive the redirect, got %q", id)
	}
	if r.submit.calls != 0 {
		t.Fatalf("anonymous submit must not persist directly")
	}
}

func TestSubmit_ReusesPersistedTemporaryID(t *testing.T) {
	r := newRig(t, func(cfg *Config) {
		cfg.NewID = func() string { t.Fatalf("must not mint a new id"); return "" }
	})
	_ = r.tids.Save("tmp-existing")
	fill(r.store)
	toReview(t, r)

	if _, err := r.c.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.checkout.reqs[0].TemporaryID != "tmp-existing" {
		t.Fatalf("temporary id=%q", r.checkout.reqs[0].TemporaryID)
	}
}

func TestSubmit_AlreadyCompleted_ShortCircuits(t *testing.T) {
	r := newRig(t, nil)
	r.checkout.res = &CheckoutResult{AlreadyCompleted: true, SettlementID: "s-paid"}
	fill(r.store)
	toReview(t, r)

	st, err := r.c.Submit(context.Background())
	if err != nil || st.Phase != Submitted || !st.AlreadyCompleted || st.SettlementID != "s-paid" {
		t.Fatalf("state=%v err=%v", st, err)
	}
	if len(r.redirect.urls) != 0 {
		t.Fatalf("must not redirect when already completed")
	}
}

func TestSubmit_CheckoutError_StaysOnReview(t *testing.T) {
	r := newRig(t, nil)
	r.checkout.err = errors.New("provider unavailable")
	fill(r.store)
	toReview(t, r)

	st, err := r.c.Submit(context.Background())
	if err == nil || st.Phase != Editing || st.Step != form.StepReview {
		t.Fatalf("state=%v err=%v", st, err)
	}
	if r.store.Get(form.AttorneyName) != "Jane Roe" {
		t.Fatalf("draft must be preserved")
	}
	if n, _ := r.notes.last(); n.Kind != NoticeRetryable {
		t.Fatalf("expected retryable notice: %+v", n)
	}
}

func TestSubmit_CheckoutError_LogsFixedMessage(t *testing.T) {
	r := newRig(t, nil)
	r.checkout.err = errors.New("provider unavailable")
	fill(r.store)
	toReview(t, r)

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	if _, err := r.c.Submit(ctx); err == nil {
		t.Fatalf("expected checkout error")
	}
	out := buf.String()
	if !strings.Contains(out, `"message":"wizard attempt failed"`) {
		t.Fatalf("log message: %s", out)
	}
	if !strings.Contains(out, `"notice":"Payment could not be started"`) || !strings.Contains(out, `"state":"editing(3)"`) {
		t.Fatalf("log fields: %s", out)
	}
}

func TestNew_RequiresConfirmer(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic without a Confirmer")
		}
	}()
	New(Config{Form: form.NewStore()})
}

func TestSubmit_IncompleteDraft(t *testing.T) {
	r := newRig(t, nil)
	fill(r.store)
	toReview(t, r)
	r.store.Set(form.Location, "")

	if _, err := r.c.Submit(context.Background()); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if r.gate.calls.Load() != 0 {
		t.Fatalf("gate must not run for an incomplete draft")
	}
}

func TestSubmit_WrongState(t *testing.T) {
	r := newRig(t, nil)
	if _, err := r.c.Submit(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("submit from step 1: %v", err)
	}
}

func TestReentrancyGuard(t *testing.T) {
	r := newRig(t, nil)
	r.gate.entered = make(chan struct{})
	r.gate.release = make(chan struct{})
	r.gate.active = true
	fill(r.store)
	toReview(t, r)

	done := make(chan error, 1)
	go func() {
		_, err := r.c.Submit(context.Background())
		done <- err
	}()
	<-r.gate.entered

	if _, err := r.c.Next(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := r.c.Submit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(r.gate.release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestResume_ConfirmsMalformedReturnURL(t *testing.T) {
	r := newRig(t, nil)
	_ = r.tids.Save("xyz")

	st, err := r.c.Resume(context.Background(), "https://showcase.example/confirmation??session_id=abc?temporaryId=xyz")
	if err != nil || st.Phase != Submitted {
		t.Fatalf("state=%v err=%v", st, err)
	}
	if r.confirm.session != "abc" || r.confirm.tid != "xyz" {
		t.Fatalf("confirmed %q/%q", r.confirm.session, r.confirm.tid)
	}
	if _, ok := r.tids.Load(); ok {
		t.Fatalf("temporary id should be retired after confirmation")
	}
}

func TestResume_CanceledReturnsToReview(t *testing.T) {
	r := newRig(t, nil)
	st, err := r.c.Resume(context.Background(), "https://showcase.example/submit?canceled=1&temporaryId=xyz")
	if err != nil || st.Phase != Editing || st.Step != form.StepReview || st.TemporaryID != "xyz" {
		t.Fatalf("state=%v err=%v", st, err)
	}
	if id, _ := r.tids.Load(); id != "xyz" {
		t.Fatalf("temporary id should be kept for the retry, got %q", id)
	}
}

func TestResume_VerificationFailure(t *testing.T) {
	r := newRig(t, nil)
	r.confirm.err = errors.New("payment incomplete")
	st, err := r.c.Resume(context.Background(), "/confirmation?session_id=abc&temporaryId=xyz")
	if err == nil || st.Phase != Failed || st.Step != form.StepReview {
		t.Fatalf("state=%v err=%v", st, err)
	}
}

func TestClose_RejectsFurtherWork(t *testing.T) {
	r := newRig(t, nil)
	fill(r.store)
	r.c.RequestNext()
	r.c.Close()

	time.Sleep(50 * time.Millisecond)
	if st := r.c.State(); st.Step != form.StepDetails {
		t.Fatalf("debounced next ran after close: %v", st)
	}
	if _, err := r.c.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := r.c.Back(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	if got := (State{Phase: Editing, Step: form.StepAttorney}).String(); got != "editing(2)" {
		t.Fatalf("got %q", got)
	}
	if got := (State{Phase: Failed, Reason: "boom"}).String(); got != "failed(boom)" {
		t.Fatalf("got %q", got)
	}
	if got := AwaitingCheckoutRedirect.String(); got != "awaiting_checkout_redirect" {
		t.Fatalf("got %q", got)
	}
}
