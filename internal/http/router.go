// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, compression,
// metrics, CORS, security headers, authentication, idempotency, and rate
// limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/auth"
	"github.com/tbourn/settlement-showcase/internal/config"
	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/http/handlers"
	"github.com/tbourn/settlement-showcase/internal/http/middleware"
	"github.com/tbourn/settlement-showcase/internal/payments"
	"github.com/tbourn/settlement-showcase/internal/repo"
	"github.com/tbourn/settlement-showcase/internal/services"
	"github.com/tbourn/settlement-showcase/internal/storage"
)

// galleryRepoShim adapts the repository free functions to the
// services.GalleryRepo interface.
type galleryRepoShim struct{}

// CountVisibleSettlements proxies repo.CountVisibleSettlements.
func (galleryRepoShim) CountVisibleSettlements(ctx context.Context, db *gorm.DB, caseType string) (int64, error) {
	return repo.CountVisibleSettlements(ctx, db, caseType)
}

// ListVisibleSettlementsPage proxies repo.ListVisibleSettlementsPage.
func (galleryRepoShim) ListVisibleSettlementsPage(ctx context.Context, db *gorm.DB, caseType string, offset, limit int) ([]domain.SettlementRecord, error) {
	return repo.ListVisibleSettlementsPage(ctx, db, caseType, offset, limit)
}

// GetVisibleSettlement proxies repo.GetVisibleSettlement.
func (galleryRepoShim) GetVisibleSettlement(ctx context.Context, db *gorm.DB, id string) (*domain.SettlementRecord, error) {
	return repo.GetVisibleSettlement(ctx, db, id)
}

// GalleryStats proxies repo.GalleryStats (ETag support).
func (galleryRepoShim) GalleryStats(ctx context.Context, db *gorm.DB, caseType string) (int64, *time.Time, error) {
	return repo.GalleryStats(ctx, db, caseType)
}

// Deps are the process-level collaborators the router builds services from.
type Deps struct {
	DB *gorm.DB
	// Payments is the checkout provider; nil means payments.Unconfigured.
	Payments payments.Provider
	// Photos is the object store; nil disables photo upload and URLs.
	Photos storage.PhotoStore
	// Cache backs photo existence lookups and once-per-session
	// reconciliation; nil means an in-process cache.
	Cache storage.Cache
	// Verifier validates bearer tokens; nil trusts X-User-ID headers
	// (local development only).
	Verifier *auth.Verifier
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: access log with PII scrubbing
//  4. RequestLogger: request-scoped logger for handlers and services
//  5. Recovery: capture panics after logger
//  6. Gzip, then the body size limiter
//  7. Metrics
//  8. CORS and security headers (before auth so 401s stay readable)
//  9. Authenticate (resolves the caller, runs session reconciliation)
//  10. Idempotency replay (needs the caller; before rate limiting)
//  11. Rate limiter (per caller, bypass on replay)
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	db := deps.DB
	provider := deps.Payments
	if provider == nil {
		provider = payments.Unconfigured{}
	}
	cache := deps.Cache
	if cache == nil {
		cache = storage.NewMemoryCache()
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Stripe-Signature", "X-API-Key"},
	}))
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics(middleware.MetricsOptions{SkipPaths: []string{"/metrics", "/health"}}))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	api := cfg.APIBasePath
	if api == "/" {
		api = ""
	}
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStorePaths: []string{api + "/checkout-sessions", api + "/confirmation", api + "/account", api + "/subscription", api + "/photos"},
		EnablePolicy: true,
	}))

	reconciler := services.NewSessionReconciler(services.NewReconcileService(db), cache)
	authOpts := middleware.AuthOptions{
		OnIdentity: func(ctx context.Context, id auth.Identity) error {
			_, _, err := reconciler.Ensure(ctx, id)
			return err
		},
	}
	if deps.Verifier != nil {
		authOpts.Verifier = deps.Verifier
	} else {
		authOpts.TrustHeaders = cfg.Auth.TrustHeaders
	}
	r.Use(middleware.Authenticate(authOpts))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Save: func(ctx context.Context, subject, scope, key, resourceID string, resp middleware.StoredResponse) error {
				_, err := repo.CreateIdempotency(ctx, db, subject, scope, key, resourceID, resp.Status, string(resp.Body), cfg.IdempotencyTTL)
				if errors.Is(err, repo.ErrDuplicate) {
					return nil
				}
				return err
			},
		},
		func(ctx context.Context, subject, scope, key string, now time.Time) (*middleware.StoredResponse, error) {
			rec, err := repo.GetIdempotency(ctx, db, subject, scope, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return &middleware.StoredResponse{Status: rec.Status, Body: []byte(rec.Body)}, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIdentity())
	r.Use(rl.Handler())
	// Email probes allow address enumeration; keep them slow per IP.
	emailRL := middleware.NewRateLimiter(1, 10, middleware.KeyByIP())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/provider/storage
	gate := services.NewSubscriptionGate(db)
	svcs := handlers.Services{
		Gate:         gate,
		Checkout:     services.NewCheckoutService(db, provider, cfg.PublicBaseURL),
		Verification: services.NewVerificationService(db, provider, cfg.SubscriptionFallbackPeriod),
		Submission:   services.NewSubmissionService(db, gate),
		Email:        services.NewEmailService(db),
		Reconcile:    reconciler.Service,
	}
	if deps.Photos != nil {
		photos := &storage.CachedPhotos{Store: deps.Photos, Cache: cache}
		svcs.Gallery = services.NewGalleryService(db, galleryRepoShim{}, photos)
		svcs.Account = services.NewAccountService(db, photos)
		svcs.Photos = services.NewPhotoService(deps.Photos)
	} else {
		svcs.Gallery = services.NewGalleryService(db, galleryRepoShim{}, nil)
		svcs.Account = services.NewAccountService(db, nil)
		svcs.Photos = services.NewPhotoService(nil)
	}
	h := handlers.New(svcs)

	v1 := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Checkout & payment verification
		v1.GET("/subscription/status", h.SubscriptionStatus)
		v1.POST("/checkout-sessions", h.CreateCheckoutSession)
		v1.GET("/confirmation", h.ConfirmCheckout)
		v1.POST("/webhooks/stripe", h.StripeWebhook)

		// Submissions
		v1.POST("/submissions", h.CreateSubmission)
		v1.POST("/email-checks", emailRL.Handler(), h.CheckEmail)
		v1.POST("/photos/upload-url", h.CreatePhotoUploadURL)

		// Public gallery
		v1.GET("/settlements", h.ListSettlements)
		v1.GET("/settlements/:id", h.GetSettlement)

		// Account
		acct := v1.Group("/account", middleware.RequireUser())
		acct.GET("/settlements", h.ListAccountSettlements)
		acct.PATCH("/settlements/:id/visibility", h.SetSettlementVisibility)
		acct.DELETE("/settlements/:id", h.DeleteSettlement)
		acct.POST("/reconcile", h.ReconcileAccount)
	}
}

// corsMiddleware returns allow-all CORS when no origins are configured and an
// allowlist otherwise.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderTemporaryID, middleware.HeaderUserID, middleware.HeaderUserEmail,
		middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotentReplayed}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// ACAO: * even without an Origin header, so simple checks see it.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			}),
		}
	}
	return []gin.HandlerFunc{
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
