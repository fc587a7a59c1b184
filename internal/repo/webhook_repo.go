// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file stores payment-provider webhook deliveries so
// redeliveries of the same event are processed at most once.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/domain"
)

// RecordWebhookEvent inserts a delivery. A redelivery of an already stored
// (provider, providerEventID) returns ErrDuplicate.
func RecordWebhookEvent(ctx context.Context, db *gorm.DB, provider, providerEventID, eventType, payload string) (*domain.WebhookEvent, error) {
	ev := &domain.WebhookEvent{
		ID:              uuid.NewString(),
		Provider:        provider,
		ProviderEventID: providerEventID,
		EventType:       eventType,
		Payload:         payload,
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return ev, nil
}

// MarkWebhookProcessed stamps the delivery as processed, recording procErr
// (may be nil) for later inspection.
func MarkWebhookProcessed(ctx context.Context, db *gorm.DB, id string, procErr error) error {
	now := time.Now().UTC()
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	res := db.WithContext(ctx).
		Model(&domain.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed_at": &now, "processing_error": msg})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteWebhookEvent removes a delivery so the provider's retry can be
// processed again after a transient failure.
func DeleteWebhookEvent(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.WebhookEvent{}).Error
}
