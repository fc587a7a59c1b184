package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/repo"
)

// newServiceDB opens a per-test in-memory database with every table.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func validDraft() form.Draft {
	return form.Draft{
		Amount:          "$250,000",
		InitialOffer:    "50,000",
		CaseType:        "Auto Accident",
		CaseDescription: "Rear-end collision on I-35",
		SettlementPhase: "Pre-Litigation",
		AttorneyName:    "Jane Doe",
		AttorneyEmail:   "Jane@Firm.com",
		FirmName:        "Doe LLP",
		Location:        "Austin, TX",
	}
}

// seedSubscription stores an active subscription ending in d.
func seedSubscription(t *testing.T, db *gorm.DB, providerID, userID, tempID, email string, d time.Duration) *domain.SubscriptionRecord {
	t.Helper()
	now := time.Now().UTC()
	rec, err := repo.UpsertSubscription(context.Background(), db, &domain.SubscriptionRecord{
		UserID:                 domain.StrPtr(userID),
		TemporaryID:            domain.StrPtr(tempID),
		CustomerEmail:          email,
		ProviderSubscriptionID: providerID,
		StartsAt:               now.Add(-time.Hour),
		EndsAt:                 now.Add(d),
		IsActive:               true,
	})
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return rec
}

func countSettlements(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.SettlementRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count settlements: %v", err)
	}
	return n
}

// createRecord inserts rec, filling required columns that are left blank.
func createRecord(t *testing.T, db *gorm.DB, rec *domain.SettlementRecord) *domain.SettlementRecord {
	t.Helper()
	if rec.AttorneyName == "" {
		rec.AttorneyName = "Jane Doe"
	}
	if rec.AttorneyEmail == "" {
		rec.AttorneyEmail = "jane@firm.com"
	}
	if rec.FirmName == "" {
		rec.FirmName = "Doe LLP"
	}
	if rec.Location == "" {
		rec.Location = "Austin, TX"
	}
	if rec.Amount == "" {
		rec.Amount = "1,000"
	}
	if rec.CaseType == "" {
		rec.CaseType = "Auto Accident"
	}
	if rec.CaseDescription == "" {
		rec.CaseDescription = "desc"
	}
	if rec.SettlementPhase == "" {
		rec.SettlementPhase = "Trial"
	}
	if err := repo.CreateSettlement(context.Background(), db, rec); err != nil {
		t.Fatalf("create settlement: %v", err)
	}
	return rec
}
