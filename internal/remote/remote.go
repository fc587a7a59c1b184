// Package remote defines the error type returned by every wrapper around a
// remote call (HTTP API, payment provider, object store). Callers branch on
// Kind rather than inspecting error strings or response shapes.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failed remote call.
type Kind string

const (
	KindNetwork         Kind = "network"          // transport failure, timeout, DNS
	KindCanceled        Kind = "canceled"         // caller's context was canceled
	KindValidation      Kind = "validation"       // request rejected as invalid
	KindUnauthorized    Kind = "unauthorized"     // missing or bad credentials
	KindPaymentRequired Kind = "payment_required" // gated behind an active subscription
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindRateLimited     Kind = "rate_limited"
	KindProvider        Kind = "provider" // upstream dependency failed
	KindInternal        Kind = "internal"
)

// Error is the failure half of a remote call result.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status when the failure came from an HTTP response.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same call may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimited, KindProvider, KindInternal:
		return true
	}
	return false
}

// New builds an Error with the given kind and message.
func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Wrap classifies err as a remote failure of the given kind. Context
// cancellation and network errors take precedence over kind.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, Message: err.Error(), Err: err}
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &ne) {
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// KindOf returns the Kind of err, KindInternal for non-remote errors, and ""
// for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a remote Error of kind k.
func IsKind(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// FromStatus maps an HTTP status code to a Kind.
func FromStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusPaymentRequired:
		return KindPaymentRequired
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return KindProvider
	default:
		return KindInternal
	}
}
