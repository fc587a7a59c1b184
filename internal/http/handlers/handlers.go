// Package handlers wires HTTP endpoints to application services.
//
// Handlers are transport-thin: they bind and validate input, resolve the
// caller identity set by middleware, call a service, and translate the result
// into a response. Every service is consumed through a small interface so
// tests can substitute fakes.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/http/middleware"
	"github.com/tbourn/settlement-showcase/internal/services"
	"github.com/tbourn/settlement-showcase/internal/utils"
)

//
// Service contracts (context-aware)
//

// GateService answers whether an identity holds an active subscription.
type GateService interface {
	HasActiveSubscription(ctx context.Context, id services.Identity) (bool, error)
}

// CheckoutService starts hosted checkouts.
type CheckoutService interface {
	Begin(ctx context.Context, req services.BeginRequest) (*services.BeginResult, error)
}

// VerificationService confirms payments from redirects and webhooks.
type VerificationService interface {
	Verify(ctx context.Context, sessionID, temporaryID string) (*services.VerifyResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*services.WebhookResult, error)
}

// SubmissionService persists settlements for subscribed identities.
type SubmissionService interface {
	Submit(ctx context.Context, id services.Identity, d form.Draft) (*domain.SettlementRecord, error)
}

// EmailService answers attorney email availability.
type EmailService interface {
	Exists(ctx context.Context, email, sessionEmail string) (bool, error)
}

// GalleryService serves the public gallery.
type GalleryService interface {
	ListPage(ctx context.Context, caseType string, page, pageSize int) ([]services.GalleryItem, int64, error)
	Search(ctx context.Context, caseType, q string, limit int) ([]services.GalleryItem, error)
	Get(ctx context.Context, id string) (*services.GalleryItem, error)
	Stats(ctx context.Context, caseType string) (int64, *time.Time, error)
}

// AccountService manages a signed-in user's own settlements.
type AccountService interface {
	List(ctx context.Context, userID string) ([]domain.SettlementRecord, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	SetHidden(ctx context.Context, userID, id string, hidden bool) error
	Delete(ctx context.Context, userID, id string) error
}

// ReconcileService links anonymous rows to a signed-in user.
type ReconcileService interface {
	Reconcile(ctx context.Context, userID, email string) (services.ReconcileResult, error)
}

// PhotoService issues presigned upload URLs.
type PhotoService interface {
	UploadURL(ctx context.Context, temporaryID, contentType string) (*services.UploadTarget, error)
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers.
type Services struct {
	Gate         GateService
	Checkout     CheckoutService
	Verification VerificationService
	Submission   SubmissionService
	Email        EmailService
	Gallery      GalleryService
	Account      AccountService
	Reconcile    ReconcileService
	Photos       PhotoService
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	gate     GateService
	checkout CheckoutService
	verify   VerificationService
	submit   SubmissionService
	email    EmailService
	gallery  GalleryService
	account  AccountService
	recon    ReconcileService
	photos   PhotoService
}

// New constructs Handlers bound to s.
func New(s Services) *Handlers {
	return &Handlers{
		gate:     s.Gate,
		checkout: s.Checkout,
		verify:   s.Verification,
		submit:   s.Submission,
		email:    s.Email,
		gallery:  s.Gallery,
		account:  s.Account,
		recon:    s.Reconcile,
		photos:   s.Photos,
	}
}

// identity resolves the caller from middleware state. A temporary id from
// the request body wins over the header.
func identity(c *gin.Context, bodyTemporaryID string) services.Identity {
	tid := strings.TrimSpace(bodyTemporaryID)
	if tid == "" {
		tid = middleware.TemporaryID(c)
	}
	return services.Identity{UserID: middleware.UserID(c), TemporaryID: tid}.Normalize()
}

// sessionEmail is the signed-in caller's email, or "".
func sessionEmail(c *gin.Context) string {
	id, _ := middleware.IdentityFrom(c)
	return id.Email
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses page and page_size query params into bounded values.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page, pageSize, _ = utils.PageBounds(
		utils.AtoiDefault(c.Query("page"), defaultPage),
		utils.AtoiDefault(c.Query("page_size"), defaultPageSize),
		defaultPageSize, maxPageSize,
	)
	return page, pageSize
}

// weakETag returns a W/"..." tag for the parts.
func weakETag(parts ...string) string {
	return `W/"` + strings.Join(parts, ":") + `"`
}

// notModified sets ETag and reports whether If-None-Match matched it.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	inm := c.GetHeader("If-None-Match")
	if inm == "" {
		return false
	}
	for _, candidate := range strings.Split(inm, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}
