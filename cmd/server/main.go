// Command server runs the settlement showcase API.
//
// @title       Settlement Showcase API
// @version     1.0
// @description Settlement submissions, subscription checkout, and the public settlement gallery.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/docs"
	"github.com/tbourn/settlement-showcase/internal/auth"
	"github.com/tbourn/settlement-showcase/internal/config"
	httpapi "github.com/tbourn/settlement-showcase/internal/http"
	"github.com/tbourn/settlement-showcase/internal/observability"
	"github.com/tbourn/settlement-showcase/internal/payments"
	"github.com/tbourn/settlement-showcase/internal/repo"
	"github.com/tbourn/settlement-showcase/internal/storage"
	"github.com/tbourn/settlement-showcase/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.ConfigureLogger(os.Stdout, cfg.LogPretty)
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("init tracing")
	}

	dsn := cfg.DBPath
	if cfg.DBDriver == "postgres" {
		dsn = cfg.DatabaseURL
	}
	db, err := repo.Open(cfg.DBDriver, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	deps := httpapi.Deps{DB: db}
	closers := wireIntegrations(ctx, cfg, &deps)

	go purgeIdempotency(ctx, db, time.Hour)

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	for _, c := range closers {
		c()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

// wireIntegrations fills the optional collaborators in deps from cfg and
// returns cleanup funcs. Missing credentials degrade the matching feature
// instead of failing startup.
func wireIntegrations(ctx context.Context, cfg config.Config, deps *httpapi.Deps) []func() {
	var closers []func()

	if cfg.Stripe.SecretKey != "" && cfg.Stripe.PriceID != "" {
		deps.Payments = payments.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.PriceID, cfg.Stripe.WebhookSecret)
		if cfg.Stripe.WebhookSecret == "" {
			log.Warn().Msg("STRIPE_WEBHOOK_SECRET not set; webhooks will be rejected")
		}
	} else {
		deps.Payments = payments.Unconfigured{}
		log.Warn().Msg("stripe not configured; checkout disabled")
	}

	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewVerifier(cfg.Auth.JWTSecret, auth.Options{
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			Leeway:   cfg.Auth.Leeway,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("init token verifier")
		}
		deps.Verifier = v
	} else if cfg.Auth.TrustHeaders {
		log.Warn().Msg("AUTH_TRUST_HEADERS set; trusting X-User-ID headers (development only)")
	} else {
		log.Warn().Msg("AUTH_JWT_SECRET not set; all callers are anonymous and account routes are unavailable")
	}

	if cfg.Storage.Endpoint != "" {
		store, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
			URLTTL:    cfg.Storage.URLTTL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("init photo storage")
		}
		bctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := store.EnsureBucket(bctx); err != nil {
			log.Warn().Err(err).Str("bucket", cfg.Storage.Bucket).Msg("photo bucket unavailable; photos disabled")
		} else {
			deps.Photos = store
		}
		cancel()
	}

	if cfg.Cache.RedisAddr != "" {
		rc := storage.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.Prefix)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rc.Ping(pctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis unreachable; using in-process cache")
			_ = rc.Close()
		} else {
			deps.Cache = rc
			closers = append(closers, func() { _ = rc.Close() })
		}
	}
	if deps.Cache == nil {
		deps.Cache = storage.NewMemoryCache()
	}
	return closers
}

// purgeIdempotency deletes expired idempotency records every interval until
// ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged expired idempotency keys")
			}
		}
	}
}
