// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/domain"
)

// GalleryStats returns aggregate metadata for the public gallery: the number
// of visible records (optionally filtered by caseType) and the maximum
// UpdatedAt among them.
//
// When nothing is visible, the returned count is 0 and maxUpdatedAt is nil.
func GalleryStats(ctx context.Context, db *gorm.DB, caseType string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := visible(db.WithContext(ctx).Model(&domain.SettlementRecord{}), caseType)
	return statsOf(q)
}

// UserSettlementsStats returns aggregate metadata for a user's records: the
// total number of rows and the maximum UpdatedAt timestamp among them.
func UserSettlementsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.SettlementRecord{}).Where("user_id = ?", userID)
	return statsOf(q)
}

func statsOf(q *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
