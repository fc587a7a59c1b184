// Package services – ReconcileService
//
// This file implements identity reconciliation: once a user authenticates,
// rows created anonymously are linked to the user id. Strategies run in
// order and independently:
//
//  0. subscriptions whose customer email equals the user's email;
//  1. paid settlements whose attorney email equals the user's email;
//  2. settlements carrying a temporary id found on any subscription now
//     linked to the user (including those claimed in step 0).
//
// Each step is a conditional update restricted to rows whose user_id is
// still NULL, so a second run changes nothing.
//
// SessionReconciler runs Reconcile at most once per authenticated session,
// remembering sessions in an injected cache.
package services

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/auth"
	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/repo"
	"github.com/tbourn/settlement-showcase/internal/storage"
	"github.com/tbourn/settlement-showcase/internal/sysutil"
)

// ReconcileResult counts the rows linked by each strategy.
type ReconcileResult struct {
	SubscriptionsByEmail     int64 `json:"subscriptions_by_email"`
	SettlementsByEmail       int64 `json:"settlements_by_email"`
	SettlementsByTemporaryID int64 `json:"settlements_by_temporary_id"`
}

// Total is the number of rows linked.
func (r ReconcileResult) Total() int64 {
	return r.SubscriptionsByEmail + r.SettlementsByEmail + r.SettlementsByTemporaryID
}

// ReconcileService links anonymous rows to authenticated users.
type ReconcileService struct {
	DB *gorm.DB
}

// NewReconcileService constructs a ReconcileService.
func NewReconcileService(db *gorm.DB) *ReconcileService { return &ReconcileService{DB: db} }

// Reconcile links rows to userID. Email-based strategies are skipped when
// email is blank or malformed.
func (s *ReconcileService) Reconcile(ctx context.Context, userID, email string) (ReconcileResult, error) {
	userID = strings.TrimSpace(userID)
	tr := otel.Tracer("services/ReconcileService")
	ctx, span := tr.Start(ctx, "Reconcile",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	var res ReconcileResult
	if userID == "" {
		return res, ErrMissingIdentity
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if form.ValidEmail(email) {
			if res.SubscriptionsByEmail, err = repo.ClaimSubscriptionsByEmail(ctx, tx, email, userID); err != nil {
				return err
			}
			if res.SettlementsByEmail, err = repo.ClaimSettlementsByEmail(ctx, tx, email, userID); err != nil {
				return err
			}
		}
		ids, err := repo.SubscriptionTemporaryIDsByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		res.SettlementsByTemporaryID, err = repo.ClaimSettlementsByTemporaryIDs(ctx, tx, ids, userID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return ReconcileResult{}, err
	}

	reconciledRowsTotal.WithLabelValues("subscription_email").Add(float64(res.SubscriptionsByEmail))
	reconciledRowsTotal.WithLabelValues("settlement_email").Add(float64(res.SettlementsByEmail))
	reconciledRowsTotal.WithLabelValues("settlement_temporary_id").Add(float64(res.SettlementsByTemporaryID))
	if res.Total() > 0 {
		sysutil.Logger(ctx).Info().
			Int64("subscriptions_by_email", res.SubscriptionsByEmail).
			Int64("settlements_by_email", res.SettlementsByEmail).
			Int64("settlements_by_temporary_id", res.SettlementsByTemporaryID).
			Msg("identity reconciled")
	}
	return res, nil
}

// SessionReconciler runs reconciliation once per sign-in session.
type SessionReconciler struct {
	Service *ReconcileService
	Cache   storage.Cache
	// TTL bounds how long a session is remembered.
	TTL time.Duration
}

// NewSessionReconciler constructs a SessionReconciler.
func NewSessionReconciler(svc *ReconcileService, cache storage.Cache) *SessionReconciler {
	return &SessionReconciler{Service: svc, Cache: cache, TTL: 24 * time.Hour}
}

func sessionKey(sessionID string) string { return "reconciled-session:" + sessionID }

// Ensure reconciles id unless its session was already reconciled. ran
// reports whether Reconcile executed.
func (r *SessionReconciler) Ensure(ctx context.Context, id auth.Identity) (ran bool, res ReconcileResult, err error) {
	if id.UserID == "" {
		return false, res, nil
	}
	if id.SessionID != "" && r.Cache != nil {
		first, cerr := r.Cache.Claim(ctx, sessionKey(id.SessionID), r.TTL)
		if cerr != nil {
			sysutil.Logger(ctx).Warn().Err(cerr).Msg("session cache unavailable; reconciling anyway")
		} else if !first {
			return false, res, nil
		}
	}

	res, err = r.Service.Reconcile(ctx, id.UserID, id.Email)
	if err != nil && id.SessionID != "" && r.Cache != nil {
		// Let the next request in this session retry.
		_ = r.Cache.Delete(ctx, sessionKey(id.SessionID))
	}
	return true, res, err
}
