// Package payments is the boundary to the hosted-checkout payment provider.
// Services depend on the Provider interface; Stripe implements it.
package payments

import (
	"context"
	"errors"
	"time"
)

// Metadata keys attached to checkout sessions and their subscriptions.
const (
	MetaTemporaryID = "temporary_id"
	MetaUserID      = "user_id"
)

// Webhook event types the service reacts to.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

var (
	// ErrNotConfigured is returned by every call when no provider credentials
	// were supplied.
	ErrNotConfigured = errors.New("payments: provider not configured")
	// ErrInvalidSignature means a webhook payload failed verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
)

// CheckoutRequest describes a subscription checkout for one draft.
type CheckoutRequest struct {
	TemporaryID   string
	UserID        string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	// IdempotencyKey, when set, is forwarded so that retried creations
	// return the same provider session.
	IdempotencyKey string
}

// Session is the provider's view of a checkout session.
type Session struct {
	ID                string
	URL               string
	Paid              bool
	Complete          bool
	ClientReferenceID string
	Metadata          map[string]string
	CustomerID        string
	CustomerEmail     string
	SubscriptionID    string
	// Subscription is populated when the provider returned it expanded.
	Subscription *Subscription
}

// TemporaryID resolves the draft identifier a session was created for:
// client reference first, then metadata.
func (s *Session) TemporaryID() string {
	if s.ClientReferenceID != "" {
		return s.ClientReferenceID
	}
	return s.Metadata[MetaTemporaryID]
}

// UserID is the authenticated user recorded at checkout, if any.
func (s *Session) UserID() string { return s.Metadata[MetaUserID] }

// Subscription is the provider's view of a recurring subscription.
type Subscription struct {
	ID          string
	CustomerID  string
	Status      string
	Active      bool
	PeriodStart time.Time // zero when the provider did not report one
	PeriodEnd   time.Time
	Metadata    map[string]string
}

// Event is a verified webhook delivery.
type Event struct {
	ID           string
	Type         string
	Payload      []byte
	Session      *Session      // set for checkout.session.* events
	Subscription *Subscription // set for customer.subscription.* events
}

// Provider creates and inspects hosted checkout sessions.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error)
	GetCheckoutSession(ctx context.Context, id string) (*Session, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// Unconfigured is the Provider used when no credentials are set. Every call
// fails with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) CreateCheckoutSession(context.Context, CheckoutRequest) (*Session, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) GetCheckoutSession(context.Context, string) (*Session, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) GetSubscription(context.Context, string) (*Subscription, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) ParseWebhook([]byte, string) (*Event, error) { return nil, ErrNotConfigured }
