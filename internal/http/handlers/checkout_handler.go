// Checkout HTTP handlers.
//
// This file exposes the payment endpoints:
//   - POST /checkout-sessions     (store draft, start hosted checkout)
//   - GET  /confirmation          (verify a return redirect)
//   - POST /webhooks/stripe       (provider webhook deliveries)
//   - GET  /subscription/status   (gate check for the caller)
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/http/middleware"
	"github.com/tbourn/settlement-showcase/internal/redirect"
	"github.com/tbourn/settlement-showcase/internal/services"
)

// CheckoutRequest is the JSON payload for starting a checkout.
type CheckoutRequest struct {
	// TemporaryID identifies the draft across the redirect.
	TemporaryID string `json:"temporary_id" example:"9b2f3a9e-1c1d-4c55-9d7e-5d2b2a6c0f11"`
	// Email prefills the provider's checkout form; defaults to the attorney email.
	Email string `json:"email,omitempty" example:"jane@firm.com"`
	// ReturnURL must be on the configured public origin; defaults to it.
	ReturnURL string     `json:"return_url,omitempty" example:"https://showcase.example"`
	Draft     form.Draft `json:"draft"`
}

// CheckoutResponse is either a redirect target or an already-paid marker.
type CheckoutResponse struct {
	URL              string `json:"url,omitempty" example:"https://checkout.stripe.com/c/pay/cs_test_123"`
	SessionID        string `json:"session_id,omitempty" example:"cs_test_123"`
	SettlementID     string `json:"settlement_id,omitempty"`
	AlreadyCompleted bool   `json:"already_completed,omitempty"`
}

// SubscriptionStatusResponse reports the caller's gate result.
type SubscriptionStatusResponse struct {
	Active bool `json:"active"`
}

// CreateCheckoutSession godoc
// @ID          createCheckoutSession
// @Summary     Start a hosted checkout for a draft
// @Description Validates and stores the draft, then returns the provider checkout URL. When the draft was already paid, returns already_completed instead.
// @Tags        Checkout
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  false "Bearer access token"
// @Param       Idempotency-Key  header  string  false "Retry-safe key"  example(ck-7f9c1d)
// @Param       body             body    handlers.CheckoutRequest  true  "Checkout payload"
//
// @Success     201  {object}  handlers.CheckoutResponse  "Checkout created"
// @Success     200  {object}  handlers.CheckoutResponse  "Already paid"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider error"
// @Failure     503  {object}  handlers.ErrorResponse  "Payments not configured"
// @Router      /checkout-sessions [post]
func (h *Handlers) CreateCheckoutSession(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	id := identity(c, req.TemporaryID)
	idemKey, _ := middleware.GetIdempotencyKey(c)

	res, err := h.checkout.Begin(c.Request.Context(), services.BeginRequest{
		TemporaryID:    id.TemporaryID,
		UserID:         id.UserID,
		Email:          req.Email,
		ReturnURL:      req.ReturnURL,
		Draft:          req.Draft,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetIdempotentResource(c, res.SettlementID)

	resp := CheckoutResponse{
		URL:              res.URL,
		SessionID:        res.SessionID,
		SettlementID:     res.SettlementID,
		AlreadyCompleted: res.AlreadyCompleted,
	}
	if res.AlreadyCompleted {
		ok(c, http.StatusOK, resp)
		return
	}
	ok(c, http.StatusCreated, resp)
}

// ConfirmCheckout godoc
// @ID          confirmCheckout
// @Summary     Verify a checkout return redirect
// @Description Parses the raw return query (stray '?' delimiters tolerated), verifies the session with the provider, and records the subscription and payment. Idempotent.
// @Tags        Checkout
// @Produce     json
//
// @Param       session_id   query  string  true   "Checkout session id"  example(cs_test_123)
// @Param       temporaryId  query  string  false  "Draft temporary id"
//
// @Success     200  {object}  services.VerifyResult
// @Failure     400  {object}  handlers.ErrorResponse  "Missing session id"
// @Failure     402  {object}  handlers.ErrorResponse  "Payment not completed"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown session"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider error"
// @Router      /confirmation [get]
func (h *Handlers) ConfirmCheckout(c *gin.Context) {
	conf, err := redirect.ParseQuery(c.Request.URL.RawQuery)
	if err != nil && !errors.Is(err, redirect.ErrNoParams) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed confirmation query")
		return
	}
	if conf.SessionID == "" {
		failErr(c, services.ErrMissingSessionID)
		return
	}
	res, err := h.verify.Verify(c.Request.Context(), conf.SessionID, conf.TemporaryID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// StripeWebhook godoc
// @ID          stripeWebhook
// @Summary     Receive payment provider webhooks
// @Description Verifies the Stripe-Signature header and processes checkout and subscription events. Deliveries are deduplicated by event id; failed processing answers 500 so the provider retries.
// @Tags        Checkout
// @Accept      json
// @Produce     json
//
// @Param       Stripe-Signature  header  string  true  "Webhook signature"
//
// @Success     200  {object}  services.WebhookResult
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid signature"
// @Failure     500  {object}  handlers.ErrorResponse  "Processing failed"
// @Router      /webhooks/stripe [post]
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read body")
		return
	}
	res, err := h.verify.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// SubscriptionStatus godoc
// @ID          subscriptionStatus
// @Summary     Check the caller's subscription
// @Description Resolves the caller by user id, else temporary id, and reports whether an active subscription exists.
// @Tags        Checkout
// @Produce     json
//
// @Param       Authorization   header  string  false "Bearer access token"
// @Param       X-Temporary-ID  header  string  false "Draft temporary id"
// @Param       temporaryId     query   string  false "Draft temporary id (alternative to header)"
//
// @Success     200  {object}  handlers.SubscriptionStatusResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /subscription/status [get]
func (h *Handlers) SubscriptionStatus(c *gin.Context) {
	id := identity(c, c.Query(redirect.ParamTemporaryID))
	if id.Empty() {
		ok(c, http.StatusOK, SubscriptionStatusResponse{Active: false})
		return
	}
	active, err := h.gate.HasActiveSubscription(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SubscriptionStatusResponse{Active: active})
}
