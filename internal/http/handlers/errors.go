// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and give clients a stable, machine-readable
// error taxonomy alongside the human-readable message. Generic codes mirror
// HTTP status semantics; domain codes cover outcomes the status alone cannot
// express (an unpaid checkout versus a missing subscription, for example).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "payment_required",
//	  "message": "an active subscription is required"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidationFailed   = "validation_failed"
	ErrCodePaymentRequired    = "payment_required"
	ErrCodePaymentIncomplete  = "payment_incomplete"
	ErrCodeInvalidSignature   = "invalid_signature"
	ErrCodeProviderError      = "provider_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUnsupportedMedia   = "unsupported_media_type"
)
