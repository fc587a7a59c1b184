// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// SettlementRecord model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - A second record for the same temporary id maps to ErrDuplicate.
//   - On other DB errors the raw gorm error is propagated.
//
// Ownership-claiming updates (ClaimSettlementsByEmail,
// ClaimSettlementsByTemporaryIDs) are conditional on user_id IS NULL, so
// running them repeatedly changes nothing after the first success.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// draftColumns are the case and attorney fields a checkout retry may
// overwrite on an existing unpaid record.
var draftColumns = []string{
	"attorney_name", "attorney_email", "firm_name", "firm_website", "location",
	"amount", "initial_offer", "policy_limit", "medical_expenses",
	"case_type", "other_case_type", "case_description", "settlement_phase",
	"photo_key", "updated_at",
}

// CreateSettlement inserts rec, assigning a UUID when ID is empty and
// lower-casing the attorney email. A unique violation on temporary_id is
// reported as ErrDuplicate.
func CreateSettlement(ctx context.Context, db *gorm.DB, rec *domain.SettlementRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.AttorneyEmail = domain.NormalizeEmail(rec.AttorneyEmail)

	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetSettlement fetches a record by id regardless of visibility.
func GetSettlement(ctx context.Context, db *gorm.DB, id string) (*domain.SettlementRecord, error) {
	var s domain.SettlementRecord
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSettlementByTemporaryID fetches the record bound to a temporary id.
func GetSettlementByTemporaryID(ctx context.Context, db *gorm.DB, temporaryID string) (*domain.SettlementRecord, error) {
	var s domain.SettlementRecord
	if err := db.WithContext(ctx).Where("temporary_id = ?", temporaryID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSettlementDraft overwrites the draft columns of an unpaid record.
// Paid records are left untouched and reported as ErrNotFound.
func UpdateSettlementDraft(ctx context.Context, db *gorm.DB, id string, rec *domain.SettlementRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	rec.AttorneyEmail = domain.NormalizeEmail(rec.AttorneyEmail)
	res := db.WithContext(ctx).
		Model(&domain.SettlementRecord{}).
		Where("id = ? AND payment_completed = ?", id, false).
		Select(draftColumns).
		Updates(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetVisibleSettlement fetches a record only when it is publicly visible.
func GetVisibleSettlement(ctx context.Context, db *gorm.DB, id string) (*domain.SettlementRecord, error) {
	var s domain.SettlementRecord
	err := visible(db.WithContext(ctx), "").
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountVisibleSettlements returns the number of gallery records, optionally
// filtered by case type.
func CountVisibleSettlements(ctx context.Context, db *gorm.DB, caseType string) (int64, error) {
	var total int64
	err := visible(db.WithContext(ctx).Model(&domain.SettlementRecord{}), caseType).
		Count(&total).Error
	return total, err
}

// ListVisibleSettlementsPage returns a page of gallery records, most recent
// first. Use CountVisibleSettlements for pagination metadata.
func ListVisibleSettlementsPage(ctx context.Context, db *gorm.DB, caseType string, offset, limit int) ([]domain.SettlementRecord, error) {
	var out []domain.SettlementRecord
	err := visible(db.WithContext(ctx), caseType).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListSettlementsByUser returns every record owned by userID, most recent
// first, including hidden and unpaid ones.
func ListSettlementsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.SettlementRecord, error) {
	var out []domain.SettlementRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// SetSettlementHidden toggles visibility of a record owned by userID.
// Returns ErrNotFound when the record is missing or owned by someone else.
func SetSettlementHidden(ctx context.Context, db *gorm.DB, id, userID string, hidden bool) error {
	res := db.WithContext(ctx).
		Model(&domain.SettlementRecord{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"hidden": hidden, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteSettlement hard-deletes a record owned by userID, freeing its
// temporary id. Returns ErrNotFound when nothing matched.
func DeleteSettlement(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.SettlementRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkSettlementPaid flips payment_completed on the record bound to
// temporaryID. When userID is non-empty and the record is still unclaimed,
// ownership is assigned in the same transaction.
func MarkSettlementPaid(ctx context.Context, db *gorm.DB, temporaryID, userID string) (int64, error) {
	var affected int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&domain.SettlementRecord{}).
			Where("temporary_id = ?", temporaryID).
			Updates(map[string]any{"payment_completed": true, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		if userID == "" {
			return nil
		}
		return tx.Model(&domain.SettlementRecord{}).
			Where("temporary_id = ? AND user_id IS NULL", temporaryID).
			Update("user_id", userID).Error
	})
	return affected, err
}

// ClaimSettlementsByEmail assigns userID to paid, unclaimed records whose
// attorney email equals email.
func ClaimSettlementsByEmail(ctx context.Context, db *gorm.DB, email, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.SettlementRecord{}).
		Where("attorney_email = ? AND payment_completed = ? AND user_id IS NULL", domain.NormalizeEmail(email), true).
		Update("user_id", userID)
	return res.RowsAffected, res.Error
}

// ClaimSettlementsByTemporaryIDs assigns userID to unclaimed records bound to
// any of temporaryIDs.
func ClaimSettlementsByTemporaryIDs(ctx context.Context, db *gorm.DB, temporaryIDs []string, userID string) (int64, error) {
	if len(temporaryIDs) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.SettlementRecord{}).
		Where("temporary_id IN ? AND user_id IS NULL", temporaryIDs).
		Update("user_id", userID)
	return res.RowsAffected, res.Error
}

// AttorneyEmailInUse reports whether a paid or claimed record already uses
// the attorney email.
func AttorneyEmailInUse(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.SettlementRecord{}).
		Where("attorney_email = ? AND (payment_completed = ? OR user_id IS NOT NULL)", domain.NormalizeEmail(email), true).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// visible scopes a query to publicly visible records.
func visible(q *gorm.DB, caseType string) *gorm.DB {
	q = q.Where("payment_completed = ? AND hidden = ?", true, false)
	if caseType != "" {
		q = q.Where("case_type = ?", caseType)
	}
	return q
}
