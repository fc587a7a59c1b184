// Package services – VerificationService
//
// This file implements payment verification. After a hosted checkout the
// browser returns with a session id (and the draft's temporary id); the
// provider also posts a checkout.session.completed webhook. Both paths end in
// complete(), which
//
//   - resolves the identity from session metadata, client reference, and
//     finally the URL,
//   - upserts the SubscriptionRecord keyed by provider subscription id with
//     the provider's billing period (or now .. now+FallbackPeriod),
//   - flips payment_completed on the settlement bound to the temporary id.
//
// Every step converges on the same rows, so verifying the same session any
// number of times from either path yields the same state.
//
// Webhook deliveries are recorded by event id before processing. A
// redelivery is acknowledged without reprocessing. A delivery that fails to
// process is forgotten again so the provider's retry gets another chance.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/payments"
	"github.com/tbourn/settlement-showcase/internal/repo"
	"github.com/tbourn/settlement-showcase/internal/sysutil"
)

// ErrMissingSessionID is returned when verification is requested without a
// checkout session id.
var ErrMissingSessionID = errors.New("session id is required")

// WebhookProvider is the provider name stored with webhook deliveries.
const WebhookProvider = "stripe"

// VerifyResult summarizes a verified checkout.
type VerifyResult struct {
	SessionID       string    `json:"session_id"`
	TemporaryID     string    `json:"temporary_id,omitempty"`
	UserID          string    `json:"user_id,omitempty"`
	SubscriptionID  string    `json:"subscription_id"`
	ActiveUntil     time.Time `json:"active_until"`
	SettlementsPaid int64     `json:"settlements_paid"`
}

// VerificationService confirms payments and maintains subscriptions.
type VerificationService struct {
	DB       *gorm.DB
	Provider payments.Provider
	// FallbackPeriod is the subscription window used when the provider
	// reports no billing period.
	FallbackPeriod time.Duration
	Now            func() time.Time
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(db *gorm.DB, p payments.Provider, fallback time.Duration) *VerificationService {
	if fallback <= 0 {
		fallback = 365 * 24 * time.Hour
	}
	return &VerificationService{DB: db, Provider: p, FallbackPeriod: fallback, Now: time.Now}
}

// Verify confirms the checkout session sessionID. urlTemporaryID is the
// temporary id carried by the return URL; the session's own reference wins
// when both are present.
func (s *VerificationService) Verify(ctx context.Context, sessionID, urlTemporaryID string) (*VerifyResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	tr := otel.Tracer("services/VerificationService")
	ctx, span := tr.Start(ctx, "Verify",
		trace.WithAttributes(attribute.String("checkout.session_id", sessionID)),
	)
	defer span.End()

	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	if s.Provider == nil {
		return nil, ErrPaymentsUnavailable
	}
	sess, err := s.Provider.GetCheckoutSession(ctx, sessionID)
	if errors.Is(err, payments.ErrNotConfigured) {
		return nil, ErrPaymentsUnavailable
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res, err := s.complete(ctx, sess, strings.TrimSpace(urlTemporaryID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	paymentsVerifiedTotal.WithLabelValues("redirect").Inc()
	return res, nil
}

func (s *VerificationService) complete(ctx context.Context, sess *payments.Session, urlTemporaryID string) (*VerifyResult, error) {
	if !sess.Paid {
		return nil, ErrPaymentIncomplete
	}
	lg := sysutil.Logger(ctx)

	tempID := sess.TemporaryID()
	if tempID == "" {
		tempID = urlTemporaryID
	} else if urlTemporaryID != "" && urlTemporaryID != tempID {
		lg.Warn().Str("session_id", sess.ID).Msg("return url temporary id differs from checkout session; using session value")
	}
	userID := sess.UserID()

	sub := sess.Subscription
	if sub == nil && sess.SubscriptionID != "" {
		got, err := s.Provider.GetSubscription(ctx, sess.SubscriptionID)
		if err != nil {
			return nil, err
		}
		sub = got
	}

	now := s.Now().UTC()
	rec := &domain.SubscriptionRecord{
		UserID:                 domain.StrPtr(userID),
		TemporaryID:            domain.StrPtr(tempID),
		CustomerEmail:          sess.CustomerEmail,
		ProviderCustomerID:     sess.CustomerID,
		ProviderSubscriptionID: "session:" + sess.ID,
		IsActive:               true,
	}
	rec.StartsAt, rec.EndsAt = s.window(nil, now)
	if sub != nil {
		rec.ProviderSubscriptionID = sub.ID
		rec.IsActive = sub.Active
		rec.StartsAt, rec.EndsAt = s.window(sub, now)
		if rec.ProviderCustomerID == "" {
			rec.ProviderCustomerID = sub.CustomerID
		}
	}

	stored, err := repo.UpsertSubscription(ctx, s.DB, rec)
	if err != nil {
		return nil, err
	}
	if !stored.ActiveAt(now) {
		return nil, ErrPaymentIncomplete
	}

	res := &VerifyResult{
		SessionID:      sess.ID,
		TemporaryID:    tempID,
		UserID:         userID,
		SubscriptionID: stored.ProviderSubscriptionID,
		ActiveUntil:    stored.EndsAt,
	}
	if tempID != "" {
		n, err := repo.MarkSettlementPaid(ctx, s.DB, tempID, userID)
		if err != nil {
			return nil, err
		}
		res.SettlementsPaid = n
	}
	lg.Info().
		Str("session_id", sess.ID).
		Str("subscription_id", stored.ProviderSubscriptionID).
		Int64("settlements_paid", res.SettlementsPaid).
		Msg("payment verified")
	return res, nil
}

// window returns the subscription validity window, falling back to
// now .. now+FallbackPeriod for missing bounds.
func (s *VerificationService) window(sub *payments.Subscription, now time.Time) (time.Time, time.Time) {
	start, end := now, now.Add(s.FallbackPeriod)
	if sub == nil {
		return start, end
	}
	if !sub.PeriodStart.IsZero() {
		start = sub.PeriodStart
	}
	if !sub.PeriodEnd.IsZero() {
		end = sub.PeriodEnd
	}
	return start, end
}

// WebhookResult reports what HandleWebhook did.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Handled   bool   `json:"handled"`
}

// HandleWebhook verifies and processes a provider webhook delivery.
// Signature failures return payments.ErrInvalidSignature.
func (s *VerificationService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	tr := otel.Tracer("services/VerificationService")
	ctx, span := tr.Start(ctx, "HandleWebhook")
	defer span.End()

	if s.Provider == nil {
		return nil, ErrPaymentsUnavailable
	}
	ev, err := s.Provider.ParseWebhook(payload, signature)
	if errors.Is(err, payments.ErrNotConfigured) {
		return nil, ErrPaymentsUnavailable
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("webhook.event_id", ev.ID), attribute.String("webhook.type", ev.Type))
	out := &WebhookResult{EventID: ev.ID, EventType: ev.Type}

	stored, err := repo.RecordWebhookEvent(ctx, s.DB, WebhookProvider, ev.ID, ev.Type, string(payload))
	if errors.Is(err, repo.ErrDuplicate) {
		out.Duplicate = true
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	handled, procErr := s.process(ctx, ev)
	if procErr != nil {
		span.RecordError(procErr)
		if derr := repo.DeleteWebhookEvent(ctx, s.DB, stored.ID); derr != nil {
			sysutil.Logger(ctx).Error().Err(derr).Str("event_id", ev.ID).Msg("could not release failed webhook event")
		}
		return nil, procErr
	}
	if err := repo.MarkWebhookProcessed(ctx, s.DB, stored.ID, nil); err != nil {
		sysutil.Logger(ctx).Warn().Err(err).Str("event_id", ev.ID).Msg("could not mark webhook processed")
	}
	out.Handled = handled
	return out, nil
}

func (s *VerificationService) process(ctx context.Context, ev *payments.Event) (bool, error) {
	switch ev.Type {
	case payments.EventCheckoutCompleted:
		if ev.Session == nil || !ev.Session.Paid {
			// Delayed payment methods complete later with their own event.
			return false, nil
		}
		if _, err := s.complete(ctx, ev.Session, ""); err != nil {
			return false, err
		}
		paymentsVerifiedTotal.WithLabelValues("webhook").Inc()
		return true, nil

	case payments.EventSubscriptionUpdated, payments.EventSubscriptionDeleted:
		if ev.Subscription == nil {
			return false, nil
		}
		sub := ev.Subscription
		start, end := s.window(sub, s.Now().UTC())
		active := sub.Active && ev.Type != payments.EventSubscriptionDeleted
		err := repo.UpdateSubscriptionWindow(ctx, s.DB, sub.ID, start, end, active)
		if errors.Is(err, repo.ErrNotFound) {
			// Not seen yet; checkout completion will create it.
			return false, nil
		}
		return err == nil, err
	}
	return false, nil
}
