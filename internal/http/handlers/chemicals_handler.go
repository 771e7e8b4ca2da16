package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
	"github.com/tbourn/allergen-intel-backend/internal/utils"
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListChemicalsResponse wraps a page of resolved chemicals.
type ListChemicalsResponse struct {
	Chemicals  []domain.ChemicalIdentity `json:"chemicals"`
	Pagination Pagination                `json:"pagination"`
}

// ListChemicals godoc
// @ID          listChemicals
// @Summary     List resolved chemicals (paginated)
// @Description Returns chemicals known locally, oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chemicals
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"chemicals:3:1700000000\")
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListChemicalsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chemicals [get]
func (h *Handlers) ListChemicals(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := utils.PageParams(c.Query("page"), c.Query("page_size"), 1, 20)

	// The tag covers the whole collection, so it changes whenever a
	// chemical is added or updated.
	if count, maxTS, err := h.svc.ChemicalsStats(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"chemicals:%d:%d:%d:%d"`, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.svc.ListChemicals(ctx, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListChemicalsResponse{
		Chemicals: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
