// Package services – AccountService and PhotoService
//
// AccountService lets an authenticated owner list, hide, and delete their
// settlements. Ownership is enforced in the repository query, so a record
// owned by someone else behaves exactly like a missing one.
//
// PhotoService issues presigned upload URLs for settlement photos.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/repo"
	"github.com/tbourn/settlement-showcase/internal/storage"
	"github.com/tbourn/settlement-showcase/internal/sysutil"
)

// PhotoDeleter removes stored photos.
type PhotoDeleter interface {
	Delete(ctx context.Context, key string) error
}

// AccountService manages a user's own settlements.
type AccountService struct {
	DB     *gorm.DB
	Photos PhotoDeleter
}

// NewAccountService constructs an AccountService. photos may be nil.
func NewAccountService(db *gorm.DB, photos PhotoDeleter) *AccountService {
	return &AccountService{DB: db, Photos: photos}
}

// List returns every settlement owned by userID, hidden and unpaid included.
func (s *AccountService) List(ctx context.Context, userID string) ([]domain.SettlementRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingIdentity
	}
	return repo.ListSettlementsByUser(ctx, s.DB, userID)
}

// Stats returns count and max updated_at of the user's settlements.
func (s *AccountService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.UserSettlementsStats(ctx, s.DB, userID)
}

// SetHidden toggles gallery visibility of an owned settlement.
func (s *AccountService) SetHidden(ctx context.Context, userID, id string, hidden bool) error {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "SetHidden",
		trace.WithAttributes(attribute.String("settlement.id", id), attribute.Bool("settlement.hidden", hidden)),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return ErrMissingIdentity
	}
	err := repo.SetSettlementHidden(ctx, s.DB, id, userID, hidden)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSettlementNotFound
	}
	return err
}

// Delete removes an owned settlement. Its photo is removed best-effort after
// the row is gone.
func (s *AccountService) Delete(ctx context.Context, userID, id string) error {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("settlement.id", id)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return ErrMissingIdentity
	}
	rec, err := repo.GetSettlement(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !rec.OwnedBy(userID)) {
		return ErrSettlementNotFound
	}
	if err != nil {
		return err
	}
	if err := repo.DeleteSettlement(ctx, s.DB, id, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSettlementNotFound
		}
		return err
	}
	if s.Photos != nil && rec.PhotoKey != "" {
		if err := s.Photos.Delete(ctx, rec.PhotoKey); err != nil {
			sysutil.Logger(ctx).Warn().Err(err).Str("settlement_id", id).Msg("photo delete failed")
		}
	}
	return nil
}

// PhotoUploader presigns uploads.
type PhotoUploader interface {
	PresignPut(ctx context.Context, key string) (string, error)
}

// UploadTarget is where the browser should PUT a photo, and the key to store
// in the draft afterwards.
type UploadTarget struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

var safeOwner = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// PhotoService issues photo upload URLs.
type PhotoService struct {
	Store PhotoUploader
}

// NewPhotoService constructs a PhotoService. store may be nil.
func NewPhotoService(store PhotoUploader) *PhotoService { return &PhotoService{Store: store} }

// UploadURL returns a presigned PUT target for a photo of contentType
// attached to the draft temporaryID.
func (s *PhotoService) UploadURL(ctx context.Context, temporaryID, contentType string) (*UploadTarget, error) {
	if s.Store == nil {
		return nil, ErrStorageUnavailable
	}
	temporaryID = strings.TrimSpace(temporaryID)
	if temporaryID != "" && !safeOwner.MatchString(temporaryID) {
		return nil, ErrMissingIdentity
	}
	key, err := storage.PhotoKey(temporaryID, contentType)
	if errors.Is(err, storage.ErrUnsupportedType) {
		return nil, ErrUnsupportedPhoto
	}
	if err != nil {
		return nil, err
	}
	u, err := s.Store.PresignPut(ctx, key)
	if err != nil {
		return nil, err
	}
	return &UploadTarget{Key: key, URL: u}, nil
}
