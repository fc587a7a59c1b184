package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/repo"
)

func TestSubscriptionGate_PriorityAndWindow(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	seedSubscription(t, db, "sub_user", "u1", "", "a@x.com", 24*time.Hour)
	seedSubscription(t, db, "sub_temp", "", "tmp-1", "b@x.com", 24*time.Hour)
	seedSubscription(t, db, "sub_expired", "u2", "tmp-2", "c@x.com", -time.Minute)

	g := NewSubscriptionGate(db)
	cases := []struct {
		id   Identity
		want bool
	}{
		{Identity{UserID: "u1"}, true},
		{Identity{TemporaryID: "tmp-1"}, true},
		// user id wins even when the temporary id alone would pass
		{Identity{UserID: "nobody", TemporaryID: "tmp-1"}, false},
		{Identity{UserID: " u1 ", TemporaryID: "ignored"}, true},
		{Identity{UserID: "u2"}, false},
		{Identity{TemporaryID: "tmp-2"}, false},
		{Identity{}, false},
	}
	for _, tc := range cases {
		got, err := g.HasActiveSubscription(ctx, tc.id)
		if err != nil {
			t.Fatalf("HasActiveSubscription(%+v): %v", tc.id, err)
		}
		if got != tc.want {
			t.Fatalf("HasActiveSubscription(%+v) = %v; want %v", tc.id, got, tc.want)
		}
	}
}

func TestSubscriptionGate_InactiveFlag(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	rec := seedSubscription(t, db, "sub_off", "u1", "", "", 24*time.Hour)
	if err := repo.UpdateSubscriptionWindow(ctx, db, rec.ProviderSubscriptionID, rec.StartsAt, rec.EndsAt, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err := NewSubscriptionGate(db).HasActiveSubscription(ctx, Identity{UserID: "u1"})
	if err != nil || got {
		t.Fatalf("inactive subscription passed gate: %v %v", got, err)
	}
}

func TestSubscriptionGate_ClockIsInjectable(t *testing.T) {
	db := newServiceDB(t)
	seedSubscription(t, db, "sub_1", "u1", "", "", time.Hour)

	g := NewSubscriptionGate(db)
	g.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	got, err := g.HasActiveSubscription(context.Background(), Identity{UserID: "u1"})
	if err != nil || got {
		t.Fatalf("expired by clock but passed: %v %v", got, err)
	}
}

type stubGate struct {
	active bool
	err    error
	calls  int
}

func (g *stubGate) HasActiveSubscription(context.Context, Identity) (bool, error) {
	g.calls++
	return g.active, g.err
}

func TestSubmit_RequiresActiveSubscription(t *testing.T) {
	db := newServiceDB(t)
	svc := NewSubmissionService(db, &stubGate{active: false})

	_, err := svc.Submit(context.Background(), Identity{TemporaryID: "tmp-1"}, validDraft())
	if !errors.Is(err, ErrSubscriptionRequired) {
		t.Fatalf("want ErrSubscriptionRequired, got %v", err)
	}
	if n := countSettlements(t, db); n != 0 {
		t.Fatalf("record left behind: %d", n)
	}
}

func TestSubmit_ValidatesBeforeGate(t *testing.T) {
	db := newServiceDB(t)
	g := &stubGate{active: true}
	svc := NewSubmissionService(db, g)

	d := validDraft()
	d.AttorneyEmail = "not-an-email"
	_, err := svc.Submit(context.Background(), Identity{UserID: "u1"}, d)
	var ve *ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("want *ValidationError, got %v", err)
	}
	if _, ok := ve.Fields["attorney_email"]; !ok {
		t.Fatalf("attorney_email not reported: %+v", ve.Fields)
	}
	if g.calls != 0 {
		t.Fatalf("gate consulted for invalid draft")
	}

	if _, err := svc.Submit(context.Background(), Identity{}, validDraft()); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("want ErrMissingIdentity, got %v", err)
	}
}

func TestSubmit_GateErrorPropagates(t *testing.T) {
	db := newServiceDB(t)
	boom := errors.New("db down")
	svc := NewSubmissionService(db, &stubGate{err: boom})
	if _, err := svc.Submit(context.Background(), Identity{UserID: "u1"}, validDraft()); !errors.Is(err, boom) {
		t.Fatalf("want gate error, got %v", err)
	}
}

func TestSubmit_CreatesPaidRecord(t *testing.T) {
	db := newServiceDB(t)
	seedSubscription(t, db, "sub_1", "u1", "", "", 24*time.Hour)
	svc := NewSubmissionService(db, NewSubscriptionGate(db))

	d := validDraft()
	d.CaseType = "Other"
	d.OtherCaseType = "dog bite"
	rec, err := svc.Submit(context.Background(), Identity{UserID: "u1", TemporaryID: "tmp-9"}, d)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !rec.PaymentCompleted || !rec.OwnedBy("u1") {
		t.Fatalf("record not paid/owned: %+v", rec)
	}
	if rec.Amount != "250,000" {
		t.Fatalf("amount not sanitized: %q", rec.Amount)
	}
	if rec.AttorneyEmail != "jane@firm.com" {
		t.Fatalf("email not normalized: %q", rec.AttorneyEmail)
	}
	if rec.OtherCaseType != "dog bite" {
		t.Fatalf("other case type dropped: %q", rec.OtherCaseType)
	}
}

func TestSubmit_CompletesAbandonedCheckoutDraft(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	seedSubscription(t, db, "sub_1", "", "tmp-1", "", 24*time.Hour)

	draft := &domain.SettlementRecord{
		TemporaryID: domain.StrPtr("tmp-1"), AttorneyName: "Old", AttorneyEmail: "old@x.com",
		FirmName: "F", Location: "L", Amount: "1", CaseType: "Auto Accident",
		CaseDescription: "d", SettlementPhase: "Trial",
	}
	if err := repo.CreateSettlement(ctx, db, draft); err != nil {
		t.Fatalf("seed draft: %v", err)
	}

	svc := NewSubmissionService(db, NewSubscriptionGate(db))
	rec, err := svc.Submit(ctx, Identity{TemporaryID: "tmp-1"}, validDraft())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.ID != draft.ID {
		t.Fatalf("second record created: %s vs %s", rec.ID, draft.ID)
	}
	if !rec.PaymentCompleted || rec.AttorneyName != "Jane Doe" {
		t.Fatalf("draft not completed in place: %+v", rec)
	}
	if n := countSettlements(t, db); n != 1 {
		t.Fatalf("want 1 record, got %d", n)
	}
}
