// Package services – GalleryService
//
// This file implements the public settlement gallery. Only records that are
// payment-completed and not hidden are listed. Items are projected into a
// public view without owner identifiers or the attorney email, and carry a
// presigned photo URL when the photo object exists.
//
// Photo existence is answered through PhotoURLs, which in production is a
// storage.CachedPhotos so repeated gallery loads do not hit the object store.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/repo"
	"github.com/tbourn/settlement-showcase/internal/search"
	"github.com/tbourn/settlement-showcase/internal/sysutil"
	"github.com/tbourn/settlement-showcase/internal/utils"
)

// GalleryRepo defines the repository contract required by GalleryService.
type GalleryRepo interface {
	// CountVisibleSettlements returns the number of visible records.
	CountVisibleSettlements(ctx context.Context, db *gorm.DB, caseType string) (int64, error)

	// ListVisibleSettlementsPage returns a page of visible records.
	ListVisibleSettlementsPage(ctx context.Context, db *gorm.DB, caseType string, offset, limit int) ([]domain.SettlementRecord, error)

	// GetVisibleSettlement fetches one visible record.
	GetVisibleSettlement(ctx context.Context, db *gorm.DB, id string) (*domain.SettlementRecord, error)

	// GalleryStats returns count and max updated_at for ETag generation.
	GalleryStats(ctx context.Context, db *gorm.DB, caseType string) (int64, *time.Time, error)
}

// PhotoURLs resolves a stored photo key to a browser-loadable URL. An empty
// URL means the object does not exist.
type PhotoURLs interface {
	URL(ctx context.Context, key string) (string, error)
}

// GalleryItem is the public projection of a settlement.
type GalleryItem struct {
	ID              string    `json:"id"`
	AttorneyName    string    `json:"attorney_name"`
	FirmName        string    `json:"firm_name"`
	FirmWebsite     string    `json:"firm_website,omitempty"`
	Location        string    `json:"location"`
	Amount          string    `json:"amount"`
	InitialOffer    string    `json:"initial_offer,omitempty"`
	PolicyLimit     string    `json:"policy_limit,omitempty"`
	MedicalExpenses string    `json:"medical_expenses,omitempty"`
	CaseType        string    `json:"case_type"`
	CaseLabel       string    `json:"case_label"`
	CaseDescription string    `json:"case_description"`
	SettlementPhase string    `json:"settlement_phase"`
	PhotoURL        string    `json:"photo_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// GalleryService serves the public gallery.
type GalleryService struct {
	DB     *gorm.DB
	Repo   GalleryRepo
	Photos PhotoURLs

	// PageSizeDefault and PageSizeMax bound list requests.
	PageSizeDefault int
	PageSizeMax     int

	// SearchWindow is how many of the newest visible records a keyword
	// search considers.
	SearchWindow int
}

// NewGalleryService constructs a GalleryService. photos may be nil when no
// object store is configured.
func NewGalleryService(db *gorm.DB, r GalleryRepo, photos PhotoURLs) *GalleryService {
	return &GalleryService{
		DB:              db,
		Repo:            r,
		Photos:          photos,
		PageSizeDefault: 20,
		PageSizeMax:     100,
		SearchWindow:    500,
	}
}

// ListPage returns a page of visible items and the total count. Unknown case
// types yield an empty page.
func (s *GalleryService) ListPage(ctx context.Context, caseType string, page, pageSize int) ([]GalleryItem, int64, error) {
	caseType = strings.TrimSpace(caseType)
	tr := otel.Tracer("services/GalleryService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("gallery.case_type", caseType),
			attribute.Int("gallery.page", page),
		),
	)
	defer span.End()

	_, size, offset := utils.PageBounds(page, pageSize, s.PageSizeDefault, s.PageSizeMax)
	total, err := s.Repo.CountVisibleSettlements(ctx, s.DB, caseType)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []GalleryItem{}, 0, nil
	}
	recs, err := s.Repo.ListVisibleSettlementsPage(ctx, s.DB, caseType, offset, size)
	if err != nil {
		return nil, 0, err
	}
	items := make([]GalleryItem, 0, len(recs))
	for i := range recs {
		items = append(items, s.item(ctx, &recs[i]))
	}
	return items, total, nil
}

// Search ranks the newest visible records against the keywords in q and
// returns at most limit items, best match first. A query with no searchable
// words yields an empty result.
func (s *GalleryService) Search(ctx context.Context, caseType, q string, limit int) ([]GalleryItem, error) {
	caseType = strings.TrimSpace(caseType)
	tr := otel.Tracer("services/GalleryService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("gallery.case_type", caseType),
			attribute.Int("gallery.query_len", len(q)),
		),
	)
	defer span.End()

	if len(search.Tokens(q)) == 0 {
		return []GalleryItem{}, nil
	}
	_, size, _ := utils.PageBounds(1, limit, s.PageSizeDefault, s.PageSizeMax)

	window := s.SearchWindow
	if window <= 0 {
		window = 500
	}
	recs, err := s.Repo.ListVisibleSettlementsPage(ctx, s.DB, caseType, 0, window)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.SettlementRecord, len(recs))
	docs := make([]search.Doc, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		byID[rec.ID] = rec
		docs = append(docs, search.Doc{
			ID: rec.ID,
			Text: strings.Join([]string{
				rec.CaseDescription, s.CaseLabel(rec), rec.FirmName, rec.Location, rec.AttorneyName,
			}, " "),
		})
	}

	hits := search.New(docs).TopK(q, size)
	span.SetAttributes(attribute.Int("gallery.hits", len(hits)))
	items := make([]GalleryItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, s.item(ctx, byID[h.ID]))
	}
	return items, nil
}

// Get returns one visible item.
func (s *GalleryService) Get(ctx context.Context, id string) (*GalleryItem, error) {
	rec, err := s.Repo.GetVisibleSettlement(ctx, s.DB, strings.TrimSpace(id))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSettlementNotFound
	}
	if err != nil {
		return nil, err
	}
	it := s.item(ctx, rec)
	return &it, nil
}

// Stats returns gallery metadata for conditional responses.
func (s *GalleryService) Stats(ctx context.Context, caseType string) (int64, *time.Time, error) {
	return s.Repo.GalleryStats(ctx, s.DB, strings.TrimSpace(caseType))
}

// CaseLabel returns the display label of a record's case type. "Other" shows
// the free-text type in title case. A Caser is stateful, so one is built per
// call.
func (s *GalleryService) CaseLabel(rec *domain.SettlementRecord) string {
	if rec.CaseType == form.CaseOther {
		if other := strings.TrimSpace(rec.OtherCaseType); other != "" {
			return cases.Title(language.English).String(other)
		}
	}
	return rec.CaseType
}

func (s *GalleryService) item(ctx context.Context, rec *domain.SettlementRecord) GalleryItem {
	it := GalleryItem{
		ID:              rec.ID,
		AttorneyName:    rec.AttorneyName,
		FirmName:        rec.FirmName,
		FirmWebsite:     rec.FirmWebsite,
		Location:        rec.Location,
		Amount:          rec.Amount,
		InitialOffer:    rec.InitialOffer,
		PolicyLimit:     rec.PolicyLimit,
		MedicalExpenses: rec.MedicalExpenses,
		CaseType:        rec.CaseType,
		CaseLabel:       s.CaseLabel(rec),
		CaseDescription: rec.CaseDescription,
		SettlementPhase: rec.SettlementPhase,
		CreatedAt:       rec.CreatedAt,
	}
	if s.Photos != nil && rec.PhotoKey != "" {
		u, err := s.Photos.URL(ctx, rec.PhotoKey)
		if err != nil {
			// A broken photo must not hide the listing.
			sysutil.Logger(ctx).Warn().Err(err).Str("settlement_id", rec.ID).Msg("photo url lookup failed")
		}
		it.PhotoURL = u
	}
	return it
}
