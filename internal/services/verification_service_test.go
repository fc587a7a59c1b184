package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/payments"
	"github.com/tbourn/settlement-showcase/internal/payments/paymentstest"
	"github.com/tbourn/settlement-showcase/internal/repo"
)

// beginCheckout stores a draft for tempID and returns the fake session id.
func beginCheckout(t *testing.T, svc *CheckoutService, tempID, userID string) string {
	t.Helper()
	res, err := svc.Begin(context.Background(), BeginRequest{TemporaryID: tempID, UserID: userID, Draft: validDraft()})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return res.SessionID
}

func activeSub(id string) *payments.Subscription {
	now := time.Now().UTC()
	return &payments.Subscription{
		ID:          id,
		CustomerID:  "cus_1",
		Status:      "active",
		Active:      true,
		PeriodStart: now.Add(-time.Minute).Truncate(time.Second),
		PeriodEnd:   now.Add(30 * 24 * time.Hour).Truncate(time.Second),
	}
}

func TestVerify_MarksPaidAndUpsertsSubscription(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	p := paymentstest.New()
	sid := beginCheckout(t, NewCheckoutService(db, p, testBase), "tmp-1", "")
	sub := activeSub("sub_1")
	p.Complete(sid, sub)

	svc := NewVerificationService(db, p, 0)
	res, err := svc.Verify(ctx, sid, "tmp-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.SettlementsPaid != 1 || res.SubscriptionID != "sub_1" || res.TemporaryID != "tmp-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.ActiveUntil.Equal(sub.PeriodEnd) {
		t.Fatalf("active until = %v; want %v", res.ActiveUntil, sub.PeriodEnd)
	}

	rec, _ := repo.GetSettlementByTemporaryID(ctx, db, "tmp-1")
	if !rec.PaymentCompleted {
		t.Fatalf("settlement not marked paid")
	}
	stored, err := repo.GetSubscriptionByProviderID(ctx, db, "sub_1")
	if err != nil {
		t.Fatalf("subscription not stored: %v", err)
	}
	if stored.TemporaryID == nil || *stored.TemporaryID != "tmp-1" || stored.CustomerEmail != "jane@firm.com" {
		t.Fatalf("subscription identity: %+v", stored)
	}

	// Gate now passes for the temporary id.
	ok, err := NewSubscriptionGate(db).HasActiveSubscription(ctx, Identity{TemporaryID: "tmp-1"})
	if err != nil || !ok {
		t.Fatalf("gate after verify: %v %v", ok, err)
	}
}

func TestVerify_Idempotent(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	p := paymentstest.New()
	sid := beginCheckout(t, NewCheckoutService(db, p, testBase), "tmp-1", "u1")
	p.Complete(sid, activeSub("sub_1"))
	svc := NewVerificationService(db, p, 0)

	for i := 0; i < 3; i++ {
		if _, err := svc.Verify(ctx, sid, "tmp-1"); err != nil {
			t.Fatalf("Verify #%d: %v", i, err)
		}
	}
	var subs int64
	db.Model(&domain.SubscriptionRecord{}).Count(&subs)
	if subs != 1 {
		t.Fatalf("want 1 subscription, got %d", subs)
	}
	if n := countSettlements(t, db); n != 1 {
		t.Fatalf("want 1 settlement, got %d", n)
	}
	rec, _ := repo.GetSettlementByTemporaryID(ctx, db, "tmp-1")
	if !rec.OwnedBy("u1") {
		t.Fatalf("metadata user id not applied: %+v", rec.UserID)
	}
}

func TestVerify_SessionReferenceWinsOverURL(t *testing.T) {
	db := newServiceDB(t)
	p := paymentstest.New()
	sid := beginCheckout(t, NewCheckoutService(db, p, testBase), "tmp-real", "")
	p.Complete(sid, activeSub("sub_1"))

	res, err := NewVerificationService(db, p, 0).Verify(context.Background(), sid, "tmp-tampered")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.TemporaryID != "tmp-real" || res.SettlementsPaid != 1 {
		t.Fatalf("url temporary id used: %+v", res)
	}
}

func TestVerify_FallbackWindowWithoutSubscription(t *testing.T) {
	db := newServiceDB(t)
	p := paymentstest.New()
	sid := beginCheckout(t, NewCheckoutService(db, p, testBase), "tmp-1", "")
	p.Complete(sid, nil)

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewVerificationService(db, p, 48*time.Hour)
	svc.Now = func() time.Time { return fixed }
	res, err := svc.Verify(context.Background(), sid, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.SubscriptionID != "session:"+sid {
		t.Fatalf("subscription key = %q", res.SubscriptionID)
	}
	if !res.ActiveUntil.Equal(fixed.Add(48 * time.Hour)) {
		t.Fatalf("fallback window end = %v", res.ActiveUntil)
	}
}

func TestVerify_Failures(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	p := paymentstest.New()
	sid := beginCheckout(t, NewCheckoutService(db, p, testBase), "tmp-1", "")
	svc := NewVerificationService(db, p, 0)

	if _, err := svc.Verify(ctx, "  ", ""); !errors.Is(err, ErrMissingSessionID) {
		t.Fatalf("blank session: %v", err)
	}
	if _, err := svc.Verify(ctx, sid, "tmp-1"); !errors.Is(err, ErrPaymentIncomplete) {
		t.Fatalf("unpaid session: %v", err)
	}
	rec, _ := repo.GetSettlementByTemporaryID(ctx, db, "tmp-1")
	if rec.PaymentCompleted {
		t.Fatalf("unpaid session marked settlement paid")
	}

	canceled := activeSub("sub_x")
	canceled.Active = false
	p.Complete(sid, canceled)
	if _, err := svc.Verify(ctx, sid, "tmp-1"); !errors.Is(err, ErrPaymentIncomplete) {
		t.Fatalf("inactive subscription: %v", err)
	}

	if _, err := NewVerificationService(db, payments.Unconfigured{}, 0).Verify(ctx, sid, ""); !errors.Is(err, ErrPaymentsUnavailable) {
		t.Fatalf("unconfigured: %v", err)
	}
}

func TestHandleWebhook_CompletesAndDeduplicates(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	p := paymentstest.New()
	sid := beginCheckout(t, NewCheckoutService(db, p, testBase), "tmp-1", "")
	sess := p.Complete(sid, activeSub("sub_1"))

	svc := NewVerificationService(db, p, 0)
	payload := paymentstest.Event(payments.Event{ID: "evt_1", Type: payments.EventCheckoutCompleted, Session: sess})

	res, err := svc.HandleWebhook(ctx, payload, p.WebhookSecret)
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if !res.Handled || res.Duplicate {
		t.Fatalf("first delivery: %+v", res)
	}
	rec, _ := repo.GetSettlementByTemporaryID(ctx, db, "tmp-1")
	if !rec.PaymentCompleted {
		t.Fatalf("webhook did not mark paid")
	}

	again, err := svc.HandleWebhook(ctx, payload, p.WebhookSecret)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !again.Duplicate || again.Handled {
		t.Fatalf("redelivery not deduplicated: %+v", again)
	}

	// Verifying through the redirect afterwards converges on the same rows.
	if _, err := svc.Verify(ctx, sid, "tmp-1"); err != nil {
		t.Fatalf("Verify after webhook: %v", err)
	}
	var subs int64
	db.Model(&domain.SubscriptionRecord{}).Count(&subs)
	if subs != 1 {
		t.Fatalf("want 1 subscription, got %d", subs)
	}
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	db := newServiceDB(t)
	p := paymentstest.New()
	svc := NewVerificationService(db, p, 0)
	payload := paymentstest.Event(payments.Event{ID: "evt_1", Type: payments.EventCheckoutCompleted})
	if _, err := svc.HandleWebhook(context.Background(), payload, "forged"); !errors.Is(err, payments.ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
	var n int64
	db.Model(&domain.WebhookEvent{}).Count(&n)
	if n != 0 {
		t.Fatalf("forged delivery recorded")
	}
}

func TestHandleWebhook_FailedProcessingIsReleased(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	p := paymentstest.New()
	sess := &payments.Session{ID: "cs_1", Paid: true, SubscriptionID: "sub_missing", ClientReferenceID: "tmp-1"}
	payload := paymentstest.Event(payments.Event{ID: "evt_1", Type: payments.EventCheckoutCompleted, Session: sess})
	svc := NewVerificationService(db, p, 0)

	if _, err := svc.HandleWebhook(ctx, payload, p.WebhookSecret); err == nil {
		t.Fatalf("want processing error for unknown subscription")
	}
	var n int64
	db.Model(&domain.WebhookEvent{}).Count(&n)
	if n != 0 {
		t.Fatalf("failed delivery kept; retry would be dropped")
	}

	p.Subscriptions["sub_missing"] = activeSub("sub_missing")
	res, err := svc.HandleWebhook(ctx, payload, p.WebhookSecret)
	if err != nil || !res.Handled {
		t.Fatalf("retry: %+v %v", res, err)
	}
}

func TestHandleWebhook_SubscriptionDeleted(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	seedSubscription(t, db, "sub_1", "u1", "", "", 24*time.Hour)
	p := paymentstest.New()
	svc := NewVerificationService(db, p, 0)

	sub := activeSub("sub_1")
	payload := paymentstest.Event(payments.Event{ID: "evt_del", Type: payments.EventSubscriptionDeleted, Subscription: sub})
	res, err := svc.HandleWebhook(ctx, payload, p.WebhookSecret)
	if err != nil || !res.Handled {
		t.Fatalf("HandleWebhook: %+v %v", res, err)
	}
	ok, _ := NewSubscriptionGate(db).HasActiveSubscription(ctx, Identity{UserID: "u1"})
	if ok {
		t.Fatalf("deleted subscription still passes gate")
	}

	// Unknown subscriptions are acknowledged without error.
	payload = paymentstest.Event(payments.Event{ID: "evt_upd", Type: payments.EventSubscriptionUpdated, Subscription: activeSub("sub_other")})
	res, err = svc.HandleWebhook(ctx, payload, p.WebhookSecret)
	if err != nil || res.Handled {
		t.Fatalf("unknown subscription: %+v %v", res, err)
	}
}
