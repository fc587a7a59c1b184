// Gallery HTTP handlers.
//
//   - GET /settlements       (public gallery, paginated, ETag support)
//   - GET /settlements/{id}  (one visible settlement)
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/settlement-showcase/internal/http/middleware"
	"github.com/tbourn/settlement-showcase/internal/services"
)

// ListSettlementsResponse wraps a gallery page and pagination information.
type ListSettlementsResponse struct {
	Settlements []services.GalleryItem `json:"settlements"`
	Pagination  Pagination             `json:"pagination"`
}

// ListSettlements godoc
// @ID          listSettlements
// @Summary     List public settlements (paginated)
// @Description Returns paid, non-hidden settlements, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Settlements
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"settlements:all:12:1700000000:1:20\")
// @Param       case_type      query   string  false "Filter by case type"          example(Auto Accident)
// @Param       q              query   string  false "Keyword search, best match first; disables ETag"  example(rear-ended truck)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSettlementsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /settlements [get]
func (h *Handlers) ListSettlements(c *gin.Context) {
	ctx := c.Request.Context()
	caseType := strings.TrimSpace(c.Query("case_type"))
	page, pageSize := clampPagination(c)

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		items, err := h.gallery.Search(ctx, caseType, q, pageSize)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, ListSettlementsResponse{
			Settlements: items,
			Pagination:  newPagination(1, pageSize, int64(len(items))),
		})
		return
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := h.gallery.Stats(ctx, caseType); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		scope := caseType
		if scope == "" {
			scope = "all"
		}
		etag := weakETag("settlements", scope,
			strconv.FormatInt(count, 10), strconv.FormatInt(ts, 10),
			strconv.Itoa(page), strconv.Itoa(pageSize))
		if notModified(c, etag) {
			c.Status(http.StatusNotModified)
			return
		}
	} else {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("gallery stats failed; serving without etag")
	}

	items, total, err := h.gallery.ListPage(ctx, caseType, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListSettlementsResponse{
		Settlements: items,
		Pagination:  newPagination(page, pageSize, total),
	})
}

// GetSettlement godoc
// @ID          getSettlement
// @Summary     Get one public settlement
// @Tags        Settlements
// @Produce     json
//
// @Param       id  path  string  true  "Settlement ID (UUID)"  format(uuid)
//
// @Success     200  {object} services.GalleryItem
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /settlements/{id} [get]
func (h *Handlers) GetSettlement(c *gin.Context) {
	it, err := h.gallery.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}
