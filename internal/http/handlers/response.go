// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints:
// the error envelope, the mapping from service errors to status and code, and
// small success helpers.
//
// Example error response:
//
//	HTTP/1.1 422 Unprocessable Entity
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "validation_failed",
//	  "message": "invalid settlement draft",
//	  "fields": {"amount": "Amount is required"}
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/settlement-showcase/internal/http/middleware"
	"github.com/tbourn/settlement-showcase/internal/payments"
	"github.com/tbourn/settlement-showcase/internal/remote"
	"github.com/tbourn/settlement-showcase/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
	// Per-field validation messages, keyed by JSON field name
	Fields map[string]string `json:"fields,omitempty"`
}

// fail aborts the request with a structured error. 5xx responses are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Message: msg})
}

func failWith(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = middleware.RequestIDFrom(c)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for router-level handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr translates a service error into the envelope. Unknown errors are
// logged in full and reported as a generic 500 without leaking internals.
func failErr(c *gin.Context, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		fields := make(map[string]string, len(verr.Fields))
		for f, msg := range verr.Fields {
			fields[string(f)] = msg
		}
		failWith(c, http.StatusUnprocessableEntity, ErrorResponse{
			Code:    ErrCodeValidationFailed,
			Message: services.ErrInvalidDraft.Error(),
			Fields:  fields,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrMissingIdentity),
		errors.Is(err, services.ErrInvalidReturnURL),
		errors.Is(err, services.ErrMissingSessionID),
		errors.Is(err, services.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrSubscriptionRequired):
		fail(c, http.StatusPaymentRequired, ErrCodePaymentRequired, err.Error())
	case errors.Is(err, services.ErrPaymentIncomplete):
		fail(c, http.StatusPaymentRequired, ErrCodePaymentIncomplete, err.Error())
	case errors.Is(err, services.ErrPaymentsUnavailable),
		errors.Is(err, services.ErrStorageUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error())
	case errors.Is(err, services.ErrSettlementNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrUnsupportedPhoto):
		fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, err.Error())
	case errors.Is(err, payments.ErrInvalidSignature):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSignature, "invalid webhook signature")
	default:
		failRemote(c, err)
	}
}

// failRemote handles errors from upstream providers.
func failRemote(c *gin.Context, err error) {
	var re *remote.Error
	if !errors.As(err, &re) {
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	middleware.LoggerFrom(c).Warn().Err(err).Str("kind", string(re.Kind)).Msg("provider call failed")
	switch re.Kind {
	case remote.KindNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "resource not found at provider")
	case remote.KindRateLimited:
		fail(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "provider is rate limiting; retry shortly")
	case remote.KindValidation:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, re.Message)
	case remote.KindProvider, remote.KindNetwork, remote.KindCanceled:
		fail(c, http.StatusBadGateway, ErrCodeProviderError, "payment provider unavailable; retry shortly")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
