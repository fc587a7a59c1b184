// Package services – SubmissionService
//
// This file implements direct submission for identities that already hold an
// active subscription. The gate is re-run here regardless of what the client
// believed, and the record is inserted as payment-completed only when it
// passes. A failed insert leaves nothing behind.
//
// When a draft for the same temporary id was stored earlier by an abandoned
// checkout, that record is completed in place instead of inserting a second
// one. When the record on that temporary id is already paid, the new draft is
// a separate case and is inserted without a temporary id; it stays linked to
// its owner through user_id or, for anonymous callers, through the attorney
// email on a later sign-in.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/repo"
)

// Gate is the subscription check used by SubmissionService.
type Gate interface {
	HasActiveSubscription(ctx context.Context, id Identity) (bool, error)
}

// SubmissionService persists settlements for subscribed identities.
type SubmissionService struct {
	DB   *gorm.DB
	Gate Gate
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(db *gorm.DB, g Gate) *SubmissionService {
	return &SubmissionService{DB: db, Gate: g}
}

// Submit validates d, re-checks the subscription, and stores a
// payment-completed record owned by id.
func (s *SubmissionService) Submit(ctx context.Context, id Identity, d form.Draft) (*domain.SettlementRecord, error) {
	id = id.Normalize()
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.Bool("identity.authenticated", id.UserID != ""),
		),
	)
	defer span.End()

	rec, err := s.submit(ctx, id, d)
	switch {
	case err == nil:
		submissionsTotal.WithLabelValues("created").Inc()
	case errors.Is(err, ErrSubscriptionRequired):
		submissionsTotal.WithLabelValues("subscription_required").Inc()
	case errors.Is(err, ErrInvalidDraft), errors.Is(err, ErrMissingIdentity):
		submissionsTotal.WithLabelValues("invalid").Inc()
	default:
		submissionsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
	}
	return rec, err
}

func (s *SubmissionService) submit(ctx context.Context, id Identity, d form.Draft) (*domain.SettlementRecord, error) {
	if id.Empty() {
		return nil, ErrMissingIdentity
	}
	draft, err := validateDraft(d)
	if err != nil {
		return nil, err
	}

	active, err := s.Gate.HasActiveSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrSubscriptionRequired
	}

	rec := recordFromDraft(draft, id)
	rec.PaymentCompleted = true
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if id.TemporaryID != "" {
			existing, err := repo.GetSettlementByTemporaryID(ctx, tx, id.TemporaryID)
			switch {
			case err == nil && !existing.PaymentCompleted:
				return completeExisting(ctx, tx, existing, rec, id)
			case err == nil:
				// The temporary id belongs to a finished case.
				rec.TemporaryID = nil
			case !errors.Is(err, repo.ErrNotFound):
				return err
			}
		}
		return repo.CreateSettlement(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return repo.GetSettlement(ctx, s.DB, rec.ID)
}

// completeExisting overwrites an unpaid draft with rec and marks it paid.
func completeExisting(ctx context.Context, tx *gorm.DB, existing, rec *domain.SettlementRecord, id Identity) error {
	rec.ID = existing.ID
	if err := repo.UpdateSettlementDraft(ctx, tx, existing.ID, rec); err != nil {
		return err
	}
	if _, err := repo.MarkSettlementPaid(ctx, tx, id.TemporaryID, id.UserID); err != nil {
		return err
	}
	return nil
}
