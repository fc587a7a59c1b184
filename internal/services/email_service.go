// Package services – EmailService
//
// This file answers whether an attorney email already belongs to an existing
// settlement or account. It backs the asynchronous email check in the
// submission wizard. A caller asking about their own session email always
// gets "not existing".
package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/repo"
)

// EmailService performs email existence lookups.
type EmailService struct {
	DB *gorm.DB
}

// NewEmailService constructs an EmailService.
func NewEmailService(db *gorm.DB) *EmailService { return &EmailService{DB: db} }

// Exists reports whether email is used by a paid or claimed settlement, or by
// any subscription. sessionEmail is the caller's authenticated email, if any.
func (s *EmailService) Exists(ctx context.Context, email, sessionEmail string) (bool, error) {
	tr := otel.Tracer("services/EmailService")
	ctx, span := tr.Start(ctx, "Exists")
	defer span.End()

	email = strings.TrimSpace(email)
	if !form.ValidEmail(email) {
		return false, ErrInvalidEmail
	}
	if sessionEmail != "" && strings.EqualFold(email, strings.TrimSpace(sessionEmail)) {
		emailChecksTotal.WithLabelValues("own_email").Inc()
		return false, nil
	}

	inUse, err := repo.AttorneyEmailInUse(ctx, s.DB, email)
	if err != nil {
		return false, err
	}
	if !inUse {
		if inUse, err = repo.CustomerEmailInUse(ctx, s.DB, email); err != nil {
			return false, err
		}
	}
	if inUse {
		emailChecksTotal.WithLabelValues("exists").Inc()
	} else {
		emailChecksTotal.WithLabelValues("available").Inc()
	}
	return inUse, nil
}
