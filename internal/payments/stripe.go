package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/tbourn/settlement-showcase/internal/remote"
)

// Stripe implements Provider on top of the Stripe API.
type Stripe struct {
	api           *client.API
	priceID       string
	webhookSecret string
}

// StripeOption customizes the Stripe client.
type StripeOption func(*stripeOptions)

type stripeOptions struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL points the client at a different API host (stripe-mock, tests).
func WithBaseURL(u string) StripeOption { return func(o *stripeOptions) { o.baseURL = u } }

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) StripeOption { return func(o *stripeOptions) { o.httpClient = c } }

// NewStripe builds a Stripe provider that sells priceID as a subscription.
func NewStripe(secretKey, priceID, webhookSecret string, opts ...StripeOption) *Stripe {
	var o stripeOptions
	for _, fn := range opts {
		fn(&o)
	}

	var backends *stripe.Backends
	if o.baseURL != "" || o.httpClient != nil {
		cfg := &stripe.BackendConfig{
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
			HTTPClient:        o.httpClient,
		}
		if o.baseURL != "" {
			cfg.URL = stripe.String(o.baseURL)
		}
		b := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
		backends = &stripe.Backends{API: b, Connect: b, Uploads: b}
	}

	sc := &client.API{}
	sc.Init(secretKey, backends)
	return &Stripe{api: sc, priceID: priceID, webhookSecret: webhookSecret}
}

// CreateCheckoutSession starts a subscription-mode hosted checkout.
// https://stripe.com/docs/api/checkout/sessions/create
func (s *Stripe) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.TemporaryID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(s.priceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetaTemporaryID: req.TemporaryID},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata(MetaTemporaryID, req.TemporaryID)
	if req.UserID != "" {
		params.AddMetadata(MetaUserID, req.UserID)
		params.SubscriptionData.Metadata[MetaUserID] = req.UserID
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classify(err)
	}
	if cs.URL == "" {
		return nil, remote.New(remote.KindProvider, "checkout session has no redirect url")
	}
	return fromStripeSession(cs), nil
}

// GetCheckoutSession retrieves a session with its subscription expanded.
func (s *Stripe) GetCheckoutSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")
	params.AddExpand("customer")

	cs, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, classify(err)
	}
	return fromStripeSession(cs), nil
}

// GetSubscription retrieves a subscription by id.
func (s *Stripe) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, classify(err)
	}
	return fromStripeSubscription(sub), nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if s.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	ev, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: ev.ID, Type: ev.Type, Payload: payload}
	if ev.Data == nil {
		return out, nil
	}
	switch ev.Type {
	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("payments: decode checkout session: %w", err)
		}
		out.Session = fromStripeSession(&cs)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("payments: decode subscription: %w", err)
		}
		out.Subscription = fromStripeSubscription(&sub)
	}
	return out, nil
}

func fromStripeSession(cs *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:                cs.ID,
		URL:               cs.URL,
		Paid:              cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid || cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired,
		Complete:          cs.Status == stripe.CheckoutSessionStatusComplete,
		ClientReferenceID: cs.ClientReferenceID,
		Metadata:          cs.Metadata,
		CustomerEmail:     cs.CustomerEmail,
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		out.CustomerEmail = cs.CustomerDetails.Email
	}
	if cs.Customer != nil {
		out.CustomerID = cs.Customer.ID
		if out.CustomerEmail == "" {
			out.CustomerEmail = cs.Customer.Email
		}
	}
	if cs.Subscription != nil {
		out.SubscriptionID = cs.Subscription.ID
		// An unexpanded reference only carries the id.
		if cs.Subscription.Status != "" {
			out.Subscription = fromStripeSubscription(cs.Subscription)
		}
	}
	return out
}

func fromStripeSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Active:   sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing,
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodStart > 0 {
		out.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	}
	if sub.CurrentPeriodEnd > 0 {
		out.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	return out
}

// classify turns a Stripe client error into a *remote.Error.
func classify(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return remote.Wrap(remote.KindProvider, err)
	}
	kind := remote.KindProvider
	switch {
	case se.HTTPStatusCode == http.StatusNotFound:
		kind = remote.KindNotFound
	case se.HTTPStatusCode == http.StatusTooManyRequests:
		kind = remote.KindRateLimited
	}
	return &remote.Error{Kind: kind, Message: se.Msg, Status: se.HTTPStatusCode, Err: err}
}
