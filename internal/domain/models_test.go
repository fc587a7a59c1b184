package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	if (SettlementRecord{}).TableName() != "settlements" {
		t.Fatalf("SettlementRecord.TableName() = %q; want %q", (SettlementRecord{}).TableName(), "settlements")
	}
	if (SubscriptionRecord{}).TableName() != "subscriptions" {
		t.Fatalf("SubscriptionRecord.TableName() = %q; want %q", (SubscriptionRecord{}).TableName(), "subscriptions")
	}
	if (WebhookEvent{}).TableName() != "webhook_events" {
		t.Fatalf("WebhookEvent.TableName() = %q; want %q", (WebhookEvent{}).TableName(), "webhook_events")
	}
}

func TestMigrations_Indexes_AndUniqueness(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&SettlementRecord{}, &SubscriptionRecord{}, &WebhookEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&SettlementRecord{}, &SubscriptionRecord{}, &WebhookEvent{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&SettlementRecord{}, "ux_settlements_temporary_id") {
		t.Fatalf("expected unique index ux_settlements_temporary_id on settlements")
	}
	if !m.HasIndex(&SettlementRecord{}, "idx_settlements_public") {
		t.Fatalf("expected index idx_settlements_public on settlements")
	}
	if !m.HasIndex(&SubscriptionRecord{}, "ux_subscriptions_provider_id") {
		t.Fatalf("expected unique index ux_subscriptions_provider_id on subscriptions")
	}
	if !m.HasIndex(&WebhookEvent{}, "ux_webhook_events_provider_event") {
		t.Fatalf("expected unique index ux_webhook_events_provider_event on webhook_events")
	}

	now := time.Now().UTC()
	base := func(id string, tmp *string) *SettlementRecord {
		return &SettlementRecord{
			ID: id, TemporaryID: tmp,
			AttorneyName: "A", AttorneyEmail: "a@x.com", FirmName: "F", Location: "L",
			Amount: "1,000", CaseType: "Other", CaseDescription: "d", SettlementPhase: "Trial",
			CreatedAt: now, UpdatedAt: now,
		}
	}

	// Two records without a temporary id are fine (NULLs are distinct).
	if err := db.Create(base("s1", nil)).Error; err != nil {
		t.Fatalf("insert s1: %v", err)
	}
	if err := db.Create(base("s2", nil)).Error; err != nil {
		t.Fatalf("insert s2: %v", err)
	}

	// At most one record per temporary id.
	if err := db.Create(base("s3", StrPtr("tmp-1"))).Error; err != nil {
		t.Fatalf("insert s3: %v", err)
	}
	if err := db.Create(base("s4", StrPtr("tmp-1"))).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on temporary_id")
	}

	// Webhook redelivery is rejected.
	ev := &WebhookEvent{ID: "e1", Provider: "stripe", ProviderEventID: "evt_1", EventType: "x", Payload: "{}"}
	if err := db.Create(ev).Error; err != nil {
		t.Fatalf("insert event: %v", err)
	}
	dup := &WebhookEvent{ID: "e2", Provider: "stripe", ProviderEventID: "evt_1", EventType: "x", Payload: "{}"}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on (provider, provider_event_id)")
	}
}

func TestSettlementRecord_VisibleAndOwnedBy(t *testing.T) {
	cases := []struct {
		paid, hidden, want bool
	}{
		{true, false, true},
		{true, true, false},
		{false, false, false},
		{false, true, false},
	}
	for _, c := range cases {
		r := SettlementRecord{PaymentCompleted: c.paid, Hidden: c.hidden}
		if got := r.Visible(); got != c.want {
			t.Fatalf("Visible(paid=%v,hidden=%v)=%v; want %v", c.paid, c.hidden, got, c.want)
		}
	}

	r := SettlementRecord{UserID: StrPtr("u1")}
	if !r.OwnedBy("u1") || r.OwnedBy("u2") || r.OwnedBy("") {
		t.Fatalf("OwnedBy unexpected for %+v", r)
	}
	if (SettlementRecord{}).OwnedBy("u1") {
		t.Fatalf("unowned record must not be owned by anyone")
	}
}

func TestSubscriptionRecord_ActiveAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !(SubscriptionRecord{IsActive: true, EndsAt: now.Add(time.Second)}).ActiveAt(now) {
		t.Fatalf("future end should be active")
	}
	if (SubscriptionRecord{IsActive: true, EndsAt: now}).ActiveAt(now) {
		t.Fatalf("end equal to now must not be active")
	}
	if (SubscriptionRecord{IsActive: false, EndsAt: now.Add(time.Hour)}).ActiveAt(now) {
		t.Fatalf("inactive flag must not be active")
	}
}

func TestNormalizeEmail_StrPtr(t *testing.T) {
	if got := NormalizeEmail("  Jane@Firm.COM "); got != "jane@firm.com" {
		t.Fatalf("NormalizeEmail=%q", got)
	}
	if StrPtr("   ") != nil {
		t.Fatalf("StrPtr blank should be nil")
	}
	if p := StrPtr(" x "); p == nil || *p != "x" {
		t.Fatalf("StrPtr trimmed value unexpected: %v", p)
	}
}
