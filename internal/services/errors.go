// Package services defines the business logic for settlement submission,
// subscription gating, payment verification, and identity reconciliation.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"sort"
	"strings"

	"github.com/tbourn/settlement-showcase/internal/form"
)

var (
	// ErrSettlementNotFound indicates that the requested settlement does not
	// exist, is not visible, or is not owned by the caller.
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrInvalidDraft is returned when a submitted draft fails server-side
	// validation. The concrete error is a *ValidationError.
	ErrInvalidDraft = errors.New("invalid settlement draft")

	// ErrMissingIdentity is returned when neither a user id nor a temporary
	// id identifies the caller.
	ErrMissingIdentity = errors.New("user id or temporary id is required")

	// ErrSubscriptionRequired is returned by direct submission when the
	// identity holds no active subscription.
	ErrSubscriptionRequired = errors.New("an active subscription is required")

	// ErrPaymentIncomplete is returned when a checkout session has not been
	// paid.
	ErrPaymentIncomplete = errors.New("payment not completed")

	// ErrPaymentsUnavailable is returned when no payment provider is
	// configured.
	ErrPaymentsUnavailable = errors.New("payments are not configured")

	// ErrStorageUnavailable is returned when no photo store is configured.
	ErrStorageUnavailable = errors.New("photo storage is not configured")

	// ErrUnsupportedPhoto is returned for uploads that are not jpeg, png, or
	// webp images.
	ErrUnsupportedPhoto = errors.New("photo must be a jpeg, png or webp image")

	// ErrInvalidReturnURL is returned when a checkout return URL is not an
	// absolute http(s) URL on the configured public origin.
	ErrInvalidReturnURL = errors.New("invalid return url")

	// ErrInvalidEmail is returned for a malformed email address.
	ErrInvalidEmail = errors.New("invalid email address")
)

// ValidationError carries per-field messages for a rejected draft.
type ValidationError struct {
	Fields map[form.Field]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		keys = append(keys, string(f))
	}
	sort.Strings(keys)
	return ErrInvalidDraft.Error() + ": " + strings.Join(keys, ", ")
}

// Is makes errors.Is(err, ErrInvalidDraft) true.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidDraft }

// validateDraft sanitizes d and returns it, or a *ValidationError.
func validateDraft(d form.Draft) (form.Draft, error) {
	d = d.Sanitized()
	if errs := form.ValidateDraft(d); len(errs) > 0 {
		return d, &ValidationError{Fields: errs}
	}
	return d, nil
}
