// Package domain defines the persistence models for settlement listings,
// listing subscriptions, and payment-provider webhook deliveries. These types
// are mapped with GORM and form the core data layer of the showcase service.
package domain

import (
	"strings"
	"time"
)

// SettlementRecord is a published (or pending) settlement listing.
//
// Ownership is exactly one of: UserID set (authenticated owner), TemporaryID
// set with UserID nil (anonymous, awaiting reconciliation), or neither. A
// record is publicly visible only when PaymentCompleted is true and Hidden is
// false.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: owning account, nil until claimed.
//   - TemporaryID: browser-minted identifier used before authentication;
//     at most one record per value (unique index).
//   - AttorneyEmail: stored lower-cased; used for identity reconciliation.
//   - Amount, InitialOffer, PolicyLimit, MedicalExpenses: formatted monetary
//     strings containing only digits, ',' and '.'.
//   - PhotoKey: object-store key of the uploaded photo, empty when none.
//   - PaymentCompleted: set once the listing is paid for (or submitted by an
//     active subscriber).
//   - Hidden: owner-controlled visibility toggle.
type SettlementRecord struct {
	ID              string  `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID          *string `json:"user_id"          gorm:"type:varchar(64);index:idx_settlements_user"`
	TemporaryID     *string `json:"temporary_id"     gorm:"type:varchar(64);uniqueIndex:ux_settlements_temporary_id"`
	AttorneyName    string  `json:"attorney_name"    gorm:"type:varchar(255);not null"`
	AttorneyEmail   string  `json:"attorney_email"   gorm:"type:varchar(320);not null;index:idx_settlements_email"`
	FirmName        string  `json:"firm_name"        gorm:"type:varchar(255);not null"`
	FirmWebsite     string  `json:"firm_website"     gorm:"type:varchar(512)"`
	Location        string  `json:"location"         gorm:"type:varchar(255);not null"`
	Amount          string  `json:"amount"           gorm:"type:varchar(64);not null"`
	InitialOffer    string  `json:"initial_offer"    gorm:"type:varchar(64)"`
	PolicyLimit     string  `json:"policy_limit"     gorm:"type:varchar(64)"`
	MedicalExpenses string  `json:"medical_expenses" gorm:"type:varchar(64)"`
	CaseType        string  `json:"case_type"        gorm:"type:varchar(64);not null;index:idx_settlements_case_type"`
	OtherCaseType   string  `json:"other_case_type"  gorm:"type:varchar(255)"`
	CaseDescription string  `json:"case_description" gorm:"type:text;not null"`
	SettlementPhase string  `json:"settlement_phase" gorm:"type:varchar(64);not null"`
	PhotoKey        string  `json:"photo_key"        gorm:"type:varchar(512)"`

	PaymentCompleted bool `json:"payment_completed" gorm:"not null;default:false;index:idx_settlements_public,priority:1"`
	Hidden           bool `json:"hidden"            gorm:"not null;default:false;index:idx_settlements_public,priority:2"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index:idx_settlements_public,priority:3"`
}

// TableName returns the database table name for SettlementRecord.
func (SettlementRecord) TableName() string { return "settlements" }

// Visible reports whether the record may appear in the public gallery.
func (s SettlementRecord) Visible() bool { return s.PaymentCompleted && !s.Hidden }

// OwnedBy reports whether the record belongs to the given user id.
func (s SettlementRecord) OwnedBy(userID string) bool {
	return userID != "" && s.UserID != nil && *s.UserID == userID
}

// SubscriptionRecord is a listing subscription purchased through the payment
// provider. It is keyed by the provider's subscription id so that repeated
// verifications and webhook deliveries converge on one row.
type SubscriptionRecord struct {
	ID                     string    `json:"id"                       gorm:"type:char(36);primaryKey"`
	UserID                 *string   `json:"user_id"                  gorm:"type:varchar(64);index:idx_subscriptions_user"`
	TemporaryID            *string   `json:"temporary_id"             gorm:"type:varchar(64);index:idx_subscriptions_temporary_id"`
	CustomerEmail          string    `json:"customer_email"           gorm:"type:varchar(320);index:idx_subscriptions_email"`
	ProviderCustomerID     string    `json:"provider_customer_id"     gorm:"type:varchar(255)"`
	ProviderSubscriptionID string    `json:"provider_subscription_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_subscriptions_provider_id"`
	StartsAt               time.Time `json:"starts_at"                gorm:"not null"`
	EndsAt                 time.Time `json:"ends_at"                  gorm:"not null;index"`
	IsActive               bool      `json:"is_active"                gorm:"not null;default:false"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// TableName returns the database table name for SubscriptionRecord.
func (SubscriptionRecord) TableName() string { return "subscriptions" }

// ActiveAt reports whether the subscription is active and its window ends
// strictly after now.
func (s SubscriptionRecord) ActiveAt(now time.Time) bool {
	return s.IsActive && s.EndsAt.After(now)
}

// WebhookEvent stores a payment-provider webhook delivery. The
// (provider, provider_event_id) pair is unique so redeliveries are detected
// on insert.
type WebhookEvent struct {
	ID              string     `json:"id"                gorm:"type:char(36);primaryKey"`
	Provider        string     `json:"provider"          gorm:"type:varchar(20);not null;uniqueIndex:ux_webhook_events_provider_event,priority:1"`
	ProviderEventID string     `json:"provider_event_id" gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_provider_event,priority:2"`
	EventType       string     `json:"event_type"        gorm:"type:varchar(100);not null;index"`
	Payload         string     `json:"-"                 gorm:"type:text;not null"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `json:"processing_error"  gorm:"type:text"`
	CreatedAt       time.Time  `json:"created_at"        gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at"        gorm:"autoUpdateTime"`
}

// TableName returns the database table name for WebhookEvent.
func (WebhookEvent) TableName() string { return "webhook_events" }

// NormalizeEmail lower-cases and trims an email address for storage and
// comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StrPtr returns a pointer to s, or nil when s is blank.
func StrPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
