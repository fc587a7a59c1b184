// Submission HTTP handlers.
//
//   - POST /submissions    (direct submit for subscribed identities)
//   - POST /email-checks   (attorney email availability)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/settlement-showcase/internal/form"
	"github.com/tbourn/settlement-showcase/internal/http/middleware"
)

// SubmissionRequest is the JSON payload for a direct submission.
type SubmissionRequest struct {
	TemporaryID string     `json:"temporary_id,omitempty" example:"9b2f3a9e-1c1d-4c55-9d7e-5d2b2a6c0f11"`
	Draft       form.Draft `json:"draft"`
}

// EmailCheckRequest is the JSON payload for an availability probe.
type EmailCheckRequest struct {
	Email string `json:"email" binding:"required" example:"jane@firm.com"`
}

// EmailCheckResponse reports whether the address is already in use.
type EmailCheckResponse struct {
	Exists bool `json:"exists"`
}

// CreateSubmission godoc
// @ID          createSubmission
// @Summary     Submit a settlement directly
// @Description Re-checks the caller's subscription server-side and stores the settlement as paid. Answers 402 when no active subscription exists.
// @Tags        Submissions
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  false "Bearer access token"
// @Param       X-Temporary-ID   header  string  false "Draft temporary id"
// @Param       Idempotency-Key  header  string  false "Retry-safe key"
// @Param       body             body    handlers.SubmissionRequest  true  "Submission payload"
//
// @Success     201  {object}  domain.SettlementRecord
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     402  {object}  handlers.ErrorResponse  "Subscription required"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submissions [post]
func (h *Handlers) CreateSubmission(c *gin.Context) {
	var req SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	rec, err := h.submit.Submit(c.Request.Context(), identity(c, req.TemporaryID), req.Draft)
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetIdempotentResource(c, rec.ID)
	ok(c, http.StatusCreated, rec)
}

// CheckEmail godoc
// @ID          checkEmail
// @Summary     Check whether an attorney email is already in use
// @Description The caller's own session email never counts as in use.
// @Tags        Submissions
// @Accept      json
// @Produce     json
//
// @Param       Authorization  header  string  false "Bearer access token"
// @Param       body           body    handlers.EmailCheckRequest  true  "Email to check"
//
// @Success     200  {object}  handlers.EmailCheckResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed email"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many checks"
// @Router      /email-checks [post]
func (h *Handlers) CheckEmail(c *gin.Context) {
	var req EmailCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email is required")
		return
	}
	exists, err := h.email.Exists(c.Request.Context(), req.Email, sessionEmail(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, EmailCheckResponse{Exists: exists})
}
