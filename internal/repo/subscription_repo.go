// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// SubscriptionRecord model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/domain"
)

// UpsertSubscription inserts or updates the row keyed by
// ProviderSubscriptionID. Identity columns (user_id, temporary_id,
// customer_email) are only filled, never cleared, by an update. The stored
// row is returned.
func UpsertSubscription(ctx context.Context, db *gorm.DB, in *domain.SubscriptionRecord) (*domain.SubscriptionRecord, error) {
	in.CustomerEmail = domain.NormalizeEmail(in.CustomerEmail)

	var out domain.SubscriptionRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("provider_subscription_id = ?", in.ProviderSubscriptionID).First(&out).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec := *in
			if rec.ID == "" {
				rec.ID = uuid.NewString()
			}
			if err := tx.Create(&rec).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return err
			}
			out = rec
			return nil
		case err != nil:
			return err
		}

		updates := map[string]any{
			"starts_at":  in.StartsAt,
			"ends_at":    in.EndsAt,
			"is_active":  in.IsActive,
			"updated_at": time.Now().UTC(),
		}
		if in.UserID != nil && out.UserID == nil {
			updates["user_id"] = *in.UserID
		}
		if in.TemporaryID != nil && out.TemporaryID == nil {
			updates["temporary_id"] = *in.TemporaryID
		}
		if in.CustomerEmail != "" && out.CustomerEmail == "" {
			updates["customer_email"] = in.CustomerEmail
		}
		if in.ProviderCustomerID != "" {
			updates["provider_customer_id"] = in.ProviderCustomerID
		}
		if err := tx.Model(&out).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", out.ID).First(&out).Error
	})
	if errors.Is(err, ErrDuplicate) {
		// Lost a concurrent insert race; the row now exists, so update it.
		return UpsertSubscription(ctx, db, in)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSubscriptionByProviderID fetches the row for a provider subscription id.
func GetSubscriptionByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*domain.SubscriptionRecord, error) {
	var s domain.SubscriptionRecord
	if err := db.WithContext(ctx).Where("provider_subscription_id = ?", providerSubscriptionID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSubscriptionWindow sets the validity window and active flag of an
// existing subscription. Returns ErrNotFound when no row matched.
func UpdateSubscriptionWindow(ctx context.Context, db *gorm.DB, providerSubscriptionID string, startsAt, endsAt time.Time, active bool) error {
	res := db.WithContext(ctx).
		Model(&domain.SubscriptionRecord{}).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Updates(map[string]any{
			"starts_at":  startsAt,
			"ends_at":    endsAt,
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// HasActiveSubscriptionByUser reports whether userID holds a subscription
// that is active and ends strictly after now.
func HasActiveSubscriptionByUser(ctx context.Context, db *gorm.DB, userID string, now time.Time) (bool, error) {
	return hasActive(ctx, db, "user_id = ?", userID, now)
}

// HasActiveSubscriptionByTemporaryID is HasActiveSubscriptionByUser keyed by
// temporary id.
func HasActiveSubscriptionByTemporaryID(ctx context.Context, db *gorm.DB, temporaryID string, now time.Time) (bool, error) {
	return hasActive(ctx, db, "temporary_id = ?", temporaryID, now)
}

func hasActive(ctx context.Context, db *gorm.DB, cond, arg string, now time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.SubscriptionRecord{}).
		Where(cond, arg).
		Where("is_active = ? AND ends_at > ?", true, now).
		Count(&n).Error
	return n > 0, err
}

// ClaimSubscriptionsByEmail assigns userID to unclaimed subscriptions whose
// customer email equals email.
func ClaimSubscriptionsByEmail(ctx context.Context, db *gorm.DB, email, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.SubscriptionRecord{}).
		Where("customer_email = ? AND user_id IS NULL", domain.NormalizeEmail(email)).
		Update("user_id", userID)
	return res.RowsAffected, res.Error
}

// SubscriptionTemporaryIDsByUser returns the distinct non-null temporary ids
// carried by subscriptions linked to userID.
func SubscriptionTemporaryIDsByUser(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.SubscriptionRecord{}).
		Where("user_id = ? AND temporary_id IS NOT NULL", userID).
		Distinct().
		Pluck("temporary_id", &ids).Error
	return ids, err
}

// CustomerEmailInUse reports whether any subscription carries email.
func CustomerEmailInUse(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.SubscriptionRecord{}).
		Where("customer_email = ?", domain.NormalizeEmail(email)).
		Count(&n).Error
	return n > 0, err
}
