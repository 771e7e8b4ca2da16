// Allergen HTTP handlers.
//
// This file exposes the analysis endpoints:
//   - GET  /allergens/analyze/{name}
//   - GET  /allergens/{name}/side-effects
//   - GET  /allergens/{name}/oxidation-products
//   - POST /allergens/analyze-batch
//   - POST /allergens/analyze-product
//   - GET  /allergens/search/health
//
// Handlers are transport-thin: they validate input, call the analysis
// service and translate results into HTTP responses.
package handlers

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
	"github.com/tbourn/allergen-intel-backend/internal/services"
)

// AnalysisService is the application contract consumed by the handlers.
// Implementations must be safe for concurrent use and honor ctx.
type AnalysisService interface {
	Analyze(ctx context.Context, name string) (*services.IngredientAnalysis, error)
	SideEffects(ctx context.Context, name string) ([]domain.SideEffect, error)
	OxidationProducts(ctx context.Context, name string) ([]string, error)
	AnalyzeBatch(ctx context.Context, names []string) (*services.BatchAnalysis, error)
	AnalyzeProduct(ctx context.Context, product string) (*services.ProductAnalysis, error)
	SearchHealth() services.SearchHealth
	ListChemicals(ctx context.Context, page, pageSize int) ([]domain.ChemicalIdentity, int64, error)
	ChemicalsStats(ctx context.Context) (int64, *time.Time, error)
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	svc AnalysisService
}

// New constructs Handlers bound to svc.
func New(svc AnalysisService) *Handlers {
	return &Handlers{svc: svc}
}

// BatchRequest is the JSON payload for batch analysis. A bare JSON array of
// names is accepted as well.
type BatchRequest struct {
	Ingredients []string `json:"ingredients" binding:"required,min=1,dive,max=200" example:"limonene,linalool"`
}

// ProductRequest is the JSON payload for product analysis.
type ProductRequest struct {
	ProductName string `json:"product_name" binding:"required,max=300" example:"CeraVe Moisturizing Cream"`
}

// chemicalName reads the :name path parameter.
func chemicalName(c *gin.Context) (string, bool) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" || len(name) > 200 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chemical name must be 1-200 characters")
		return "", false
	}
	return name, true
}

// AnalyzeAllergen godoc
// @ID          analyzeAllergen
// @Summary     Analyze one chemical
// @Description Resolves the chemical, fetches side effects and oxidation products through the cache tiers and returns a risk assessment.
// @Tags        Allergens
// @Produce     json
// @Param       name  path  string  true  "Chemical name"  example(limonene)
// @Success     200  {object}  services.IngredientAnalysis
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Chemical not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Registry unavailable"
// @Router      /allergens/analyze/{name} [get]
func (h *Handlers) AnalyzeAllergen(c *gin.Context) {
	name, valid := chemicalName(c)
	if !valid {
		return
	}
	a, err := h.svc.Analyze(c.Request.Context(), name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// SideEffects godoc
// @ID          listSideEffects
// @Summary     Side effects of a chemical
// @Tags        Allergens
// @Produce     json
// @Param       name  path  string  true  "Chemical name"  example(limonene)
// @Success     200  {array}   domain.SideEffect
// @Failure     404  {object}  handlers.ErrorResponse  "Chemical not found"
// @Router      /allergens/{name}/side-effects [get]
func (h *Handlers) SideEffects(c *gin.Context) {
	name, valid := chemicalName(c)
	if !valid {
		return
	}
	effects, err := h.svc.SideEffects(c.Request.Context(), name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, effects)
}

// OxidationProducts godoc
// @ID          listOxidationProducts
// @Summary     Oxidation products of a chemical
// @Tags        Allergens
// @Produce     json
// @Param       name  path  string  true  "Chemical name"  example(limonene)
// @Success     200  {array}   string
// @Failure     404  {object}  handlers.ErrorResponse  "Chemical not found"
// @Router      /allergens/{name}/oxidation-products [get]
func (h *Handlers) OxidationProducts(c *gin.Context) {
	name, valid := chemicalName(c)
	if !valid {
		return
	}
	products, err := h.svc.OxidationProducts(c.Request.Context(), name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, products)
}

// AnalyzeBatch godoc
// @ID          analyzeBatch
// @Summary     Analyze several chemicals
// @Description Per-ingredient failures are reported inside the result. Supports Idempotency-Key replay.
// @Tags        Allergens
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string                 false  "Replay key"
// @Param       body             body    handlers.BatchRequest  true   "Ingredient names"
// @Success     200  {object}  services.BatchAnalysis
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /allergens/analyze-batch [post]
func (h *Handlers) AnalyzeBatch(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request body too large or unreadable")
		return
	}
	var req BatchRequest
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err = binding.JSON.BindBody(wrapArray(trimmed), &req)
	} else {
		err = binding.JSON.BindBody(raw, &req)
	}
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be {\"ingredients\": [\"name\", ...]}")
		return
	}

	res, err := h.svc.AnalyzeBatch(c.Request.Context(), req.Ingredients)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func wrapArray(arr []byte) []byte {
	out := make([]byte, 0, len(arr)+16)
	out = append(out, `{"ingredients":`...)
	out = append(out, arr...)
	return append(out, '}')
}

// AnalyzeProduct godoc
// @ID          analyzeProduct
// @Summary     Analyze a consumer product
// @Description Looks up the product's ingredient list and analyses each ingredient. An unknown product returns 200 with an error message and UNKNOWN risk.
// @Tags        Allergens
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string                   false  "Replay key"
// @Param       body             body    handlers.ProductRequest  true   "Product"
// @Success     200  {object}  services.ProductAnalysis
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /allergens/analyze-product [post]
func (h *Handlers) AnalyzeProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ProductName) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Product name is required")
		return
	}
	res, err := h.svc.AnalyzeProduct(c.Request.Context(), req.ProductName)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// SearchHealth godoc
// @ID          searchHealth
// @Summary     Search subsystem health
// @Tags        Allergens
// @Produce     json
// @Success     200  {object}  services.SearchHealth
// @Router      /allergens/search/health [get]
func (h *Handlers) SearchHealth(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.SearchHealth())
}
