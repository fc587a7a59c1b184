// Account HTTP handlers. All routes except the photo upload require a
// signed-in user (RequireUser middleware).
//
//   - GET    /account/settlements                  (own records, ETag support)
//   - PATCH  /account/settlements/{id}/visibility  (hide / unhide)
//   - DELETE /account/settlements/{id}            (hard delete)
//   - POST   /account/reconcile                   (link anonymous rows)
//   - POST   /photos/upload-url                   (presigned photo upload)
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/settlement-showcase/internal/domain"
	"github.com/tbourn/settlement-showcase/internal/http/middleware"
)

// AccountSettlementsResponse lists the caller's settlements.
type AccountSettlementsResponse struct {
	Settlements []domain.SettlementRecord `json:"settlements"`
}

// VisibilityRequest toggles public visibility.
type VisibilityRequest struct {
	Hidden *bool `json:"hidden" binding:"required" example:"true"`
}

// UploadURLRequest asks for a presigned photo upload.
type UploadURLRequest struct {
	TemporaryID string `json:"temporary_id" example:"9b2f3a9e-1c1d-4c55-9d7e-5d2b2a6c0f11"`
	Filename    string `json:"filename,omitempty" example:"office.jpg"`
	ContentType string `json:"content_type" binding:"required" example:"image/jpeg"`
}

// ListAccountSettlements godoc
// @ID          listAccountSettlements
// @Summary     List the caller's settlements
// @Description Includes unpaid drafts and hidden records. Supports weak ETag via If-None-Match.
// @Tags        Account
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer access token"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object} handlers.AccountSettlementsResponse
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Sign in required"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /account/settlements [get]
func (h *Handlers) ListAccountSettlements(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	if count, maxTS, err := h.account.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := weakETag("account", uid, strconv.FormatInt(count, 10), strconv.FormatInt(ts, 10))
		if notModified(c, etag) {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.account.List(ctx, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	if items == nil {
		items = []domain.SettlementRecord{}
	}
	ok(c, http.StatusOK, AccountSettlementsResponse{Settlements: items})
}

// SetSettlementVisibility godoc
// @ID          setSettlementVisibility
// @Summary     Hide or unhide an owned settlement
// @Tags        Account
// @Accept      json
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer access token"
// @Param       id             path    string  true  "Settlement ID (UUID)"  format(uuid)
// @Param       body           body    handlers.VisibilityRequest  true  "Visibility"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found or not owned"
// @Router      /account/settlements/{id}/visibility [patch]
func (h *Handlers) SetSettlementVisibility(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "settlement id must be a UUID")
		return
	}
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Hidden == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "hidden (boolean) is required")
		return
	}
	if err := h.account.SetHidden(c.Request.Context(), middleware.UserID(c), id, *req.Hidden); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// DeleteSettlement godoc
// @ID          deleteSettlement
// @Summary     Delete an owned settlement
// @Description Removes the record and, best effort, its photo.
// @Tags        Account
//
// @Param       Authorization  header  string  true  "Bearer access token"
// @Param       id             path    string  true  "Settlement ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found or not owned"
// @Router      /account/settlements/{id} [delete]
func (h *Handlers) DeleteSettlement(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "settlement id must be a UUID")
		return
	}
	if err := h.account.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ReconcileAccount godoc
// @ID          reconcileAccount
// @Summary     Link anonymous submissions to the caller
// @Description Claims subscriptions and paid settlements under the caller's email, then settlements sharing a temporary id with the caller's subscriptions. Safe to repeat.
// @Tags        Account
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer access token"
//
// @Success     200  {object} services.ReconcileResult
// @Failure     401  {object} handlers.ErrorResponse "Sign in required"
// @Router      /account/reconcile [post]
func (h *Handlers) ReconcileAccount(c *gin.Context) {
	res, err := h.recon.Reconcile(c.Request.Context(), middleware.UserID(c), sessionEmail(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// CreatePhotoUploadURL godoc
// @ID          createPhotoUploadURL
// @Summary     Presign a photo upload
// @Description Returns a short-lived PUT URL and the object key to store as photo_key. Only jpeg, png and webp are accepted.
// @Tags        Photos
// @Accept      json
// @Produce     json
//
// @Param       X-Temporary-ID  header  string  false "Draft temporary id"
// @Param       body            body    handlers.UploadURLRequest  true  "Upload request"
//
// @Success     201  {object} services.UploadTarget
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     415  {object} handlers.ErrorResponse "Unsupported image type"
// @Failure     503  {object} handlers.ErrorResponse "Storage not configured"
// @Router      /photos/upload-url [post]
func (h *Handlers) CreatePhotoUploadURL(c *gin.Context) {
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content_type is required")
		return
	}
	id := identity(c, req.TemporaryID)
	target, err := h.photos.UploadURL(c.Request.Context(), id.TemporaryID, req.ContentType)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, target)
}
