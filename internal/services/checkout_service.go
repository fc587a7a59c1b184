// Package services – CheckoutService
//
// This file implements checkout initiation for a submitter without an active
// subscription. Begin validates the draft, stores it as an unpaid settlement
// keyed by the draft's temporary id, and requests a hosted checkout session
// whose success redirect carries the session id and temporary id back to the
// confirmation page.
//
// Re-entering Begin for the same temporary id updates the existing unpaid
// record instead of inserting a second one. When that record is already
// paid, Begin reports AlreadyCompleted without contacting the provider.
//
// Uniqueness of temporary_id is enforced by a unique index. The lookup-then-
// write below is still the primary path; losing an insert race to a
// concurrent request surfaces as repo.ErrDuplicate and the whole upsert is
// retried once, at which point the lookup finds the winner's row.
package services

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/payments"
	"github.com/tbourn/settlement-showcase/internal/redirect"
	"github.com/tbourn/settlement-showcase/internal/repo"
	"github.com/tbourn/settlement-showcase/internal/sysutil"
)

// BeginRequest is a checkout initiation for one draft.
type BeginRequest struct {
	TemporaryID string
	UserID      string
	// Email prefills the provider's checkout form; defaults to the draft's
	// attorney email.
	Email string
	// ReturnURL is the origin the provider redirects back to. Empty means
	// the configured public base URL.
	ReturnURL      string
	Draft          form.Draft
	IdempotencyKey string
}

// BeginResult is the outcome of Begin. Exactly one of URL or
// AlreadyCompleted is set.
type BeginResult struct {
	URL              string
	SessionID        string
	SettlementID     string
	AlreadyCompleted bool
}

// CheckoutService starts hosted checkouts.
type CheckoutService struct {
	DB       *gorm.DB
	Provider payments.Provider
	// PublicBaseURL is the default return origin and the only origin
	// accepted for caller-supplied return URLs. Empty disables the check.
	PublicBaseURL string
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(db *gorm.DB, p payments.Provider, publicBaseURL string) *CheckoutService {
	return &CheckoutService{DB: db, Provider: p, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Begin stores the draft and returns the checkout redirect target.
func (s *CheckoutService) Begin(ctx context.Context, req BeginRequest) (*BeginResult, error) {
	id := Identity{UserID: req.UserID, TemporaryID: req.TemporaryID}.Normalize()
	tr := otel.Tracer("services/CheckoutService")
	ctx, span := tr.Start(ctx, "Begin",
		trace.WithAttributes(
			attribute.String("settlement.temporary_id", id.TemporaryID),
			attribute.Bool("identity.authenticated", id.UserID != ""),
		),
	)
	defer span.End()

	res, err := s.begin(ctx, id, req)
	switch {
	case err != nil:
		checkoutTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.AlreadyCompleted:
		checkoutTotal.WithLabelValues("already_completed").Inc()
	default:
		checkoutTotal.WithLabelValues("created").Inc()
	}
	return res, err
}

func (s *CheckoutService) begin(ctx context.Context, id Identity, req BeginRequest) (*BeginResult, error) {
	if id.TemporaryID == "" {
		return nil, ErrMissingIdentity
	}
	returnURL, err := s.resolveReturnURL(req.ReturnURL)
	if err != nil {
		return nil, err
	}
	draft, err := validateDraft(req.Draft)
	if err != nil {
		return nil, err
	}

	rec, done, err := s.saveDraft(ctx, id, draft)
	if err != nil {
		return nil, err
	}
	if done {
		return &BeginResult{SettlementID: rec.ID, AlreadyCompleted: true}, nil
	}

	if s.Provider == nil {
		return nil, ErrPaymentsUnavailable
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = rec.AttorneyEmail
	}
	sess, err := s.Provider.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		TemporaryID:    id.TemporaryID,
		UserID:         id.UserID,
		CustomerEmail:  email,
		SuccessURL:     redirect.SuccessURL(returnURL, id.TemporaryID),
		CancelURL:      redirect.CancelURL(returnURL, id.TemporaryID),
		IdempotencyKey: req.IdempotencyKey,
	})
	if errors.Is(err, payments.ErrNotConfigured) {
		return nil, ErrPaymentsUnavailable
	}
	if err != nil {
		// The draft stays stored so a retry resumes from it.
		sysutil.Logger(ctx).Warn().Err(err).Str("settlement_id", rec.ID).Msg("checkout session creation failed")
		return nil, err
	}
	return &BeginResult{URL: sess.URL, SessionID: sess.ID, SettlementID: rec.ID}, nil
}

// saveDraft creates or updates the unpaid record for id.TemporaryID. done is
// true when the record was already paid.
func (s *CheckoutService) saveDraft(ctx context.Context, id Identity, draft form.Draft) (rec *domain.SettlementRecord, done bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			existing, err := repo.GetSettlementByTemporaryID(ctx, tx, id.TemporaryID)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				rec = recordFromDraft(draft, id)
				return repo.CreateSettlement(ctx, tx, rec)
			case err != nil:
				return err
			}

			rec = existing
			if existing.PaymentCompleted {
				done = true
				return nil
			}
			upd := recordFromDraft(draft, id)
			if err := repo.UpdateSettlementDraft(ctx, tx, existing.ID, upd); err != nil {
				return err
			}
			if id.UserID != "" && existing.UserID == nil {
				if err := tx.Model(&domain.SettlementRecord{}).
					Where("id = ? AND user_id IS NULL", existing.ID).
					Update("user_id", id.UserID).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, repo.ErrDuplicate) {
			break
		}
		rec, done = nil, false
	}
	if errors.Is(err, repo.ErrNotFound) {
		// Paid between the lookup and the conditional update.
		return s.saveDraftCompleted(ctx, id)
	}
	return rec, done, err
}

func (s *CheckoutService) saveDraftCompleted(ctx context.Context, id Identity) (*domain.SettlementRecord, bool, error) {
	rec, err := repo.GetSettlementByTemporaryID(ctx, s.DB, id.TemporaryID)
	if err != nil {
		return nil, false, err
	}
	return rec, rec.PaymentCompleted, nil
}

// resolveReturnURL defaults raw to PublicBaseURL and rejects other origins.
func (s *CheckoutService) resolveReturnURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		if s.PublicBaseURL == "" {
			return "", ErrInvalidReturnURL
		}
		return s.PublicBaseURL, nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidReturnURL
	}
	if s.PublicBaseURL != "" {
		base, err := url.Parse(s.PublicBaseURL)
		if err != nil || !strings.EqualFold(base.Scheme, u.Scheme) || !strings.EqualFold(base.Host, u.Host) {
			return "", ErrInvalidReturnURL
		}
	}
	return raw, nil
}
