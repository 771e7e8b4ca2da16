// Package services – AnalysisService
//
// This file implements AnalysisService, the application-level component
// behind the allergen endpoints. It resolves names, fetches side effects and
// oxidation products through the Coordinator, and derives risk levels,
// warnings and recommendations.
//
// Per-ingredient failures inside batch and product analyses are reported in
// the result rather than failing the whole request.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
	"github.com/tbourn/allergen-intel-backend/internal/parser"
	"github.com/tbourn/allergen-intel-backend/internal/repo"
	"github.com/tbourn/allergen-intel-backend/internal/risk"
)

const (
	DefaultMaxBatchSize     = 50
	DefaultBatchConcurrency = 4

	msgChemicalNotFound  = "Chemical data not found"
	msgIngredientsAbsent = "Could not find ingredient list for this product. " +
		"Try using the full product name with brand (e.g., 'CeraVe Moisturizing Cream')"
)

// SearchCapabilities lists what the search endpoints can answer.
var SearchCapabilities = []string{"allergen_effects", "oxidation_products", "clinical_data", "product_analysis"}

// IngredientAnalysis is the full analysis of one chemical. Error is set, and
// RiskLevel is UNKNOWN, when the chemical could not be analysed.
type IngredientAnalysis struct {
	Chemical          *domain.ChemicalIdentity `json:"chemical,omitempty"`
	SideEffects       []domain.SideEffect      `json:"sideEffects"`
	OxidationProducts []string                 `json:"oxidationProducts"`
	RiskLevel         risk.Level               `json:"riskLevel"`
	RiskAssessment    *risk.Assessment         `json:"riskAssessment,omitempty"`
	Warnings          []string                 `json:"warnings,omitempty"`
	Disclaimer        string                   `json:"disclaimer,omitempty"`
	Error             string                   `json:"error,omitempty"`
}

// BatchSummary aggregates a batch.
type BatchSummary struct {
	TotalIngredients    int        `json:"totalIngredients"`
	HighRiskIngredients int        `json:"highRiskIngredients"`
	OverallRiskLevel    risk.Level `json:"overallRiskLevel"`
}

// BatchAnalysis maps each requested name to its analysis.
type BatchAnalysis struct {
	Results    map[string]*IngredientAnalysis `json:"results"`
	Summary    BatchSummary                   `json:"summary"`
	Disclaimer string                         `json:"disclaimer"`
}

// ProductAnalysis is the analysis of a consumer product's ingredient list.
// TotalIngredients counts the ingredients that could be analysed.
type ProductAnalysis struct {
	ProductName         string                         `json:"productName"`
	TotalIngredients    int                            `json:"totalIngredients"`
	HighRiskIngredients int                            `json:"highRiskIngredients"`
	OverallRiskLevel    risk.Level                     `json:"overallRiskLevel"`
	Ingredients         []string                       `json:"ingredients"`
	DetailedAnalysis    map[string]*IngredientAnalysis `json:"detailedAnalysis"`
	Recommendations     []string                       `json:"recommendations"`
	Disclaimer          string                         `json:"disclaimer"`
	Error               string                         `json:"error,omitempty"`
}

// SearchHealth describes the search subsystem.
type SearchHealth struct {
	Status             string   `json:"status"`
	SearchCapabilities []string `json:"searchCapabilities"`
	Breaker            string   `json:"breaker,omitempty"`
	Disclaimer         string   `json:"disclaimer"`
}

// AnalysisService answers allergen analysis requests.
type AnalysisService struct {
	Coord *Coordinator

	// MaxBatchSize caps names per batch; BatchConcurrency bounds parallel
	// analyses within one batch or product.
	MaxBatchSize     int
	BatchConcurrency int

	// BreakerState, when set, reports the generative search breaker state.
	BreakerState func() string

	log zerolog.Logger
}

// NewAnalysisService constructs an AnalysisService with default limits.
func NewAnalysisService(coord *Coordinator) *AnalysisService {
	return &AnalysisService{
		Coord:            coord,
		MaxBatchSize:     DefaultMaxBatchSize,
		BatchConcurrency: DefaultBatchConcurrency,
		log:              log.With().Str("component", "analysis").Logger(),
	}
}

// Analyze resolves name and returns its side effects, oxidation products,
// risk assessment and warnings.
func (s *AnalysisService) Analyze(ctx context.Context, name string) (*IngredientAnalysis, error) {
	tr := otel.Tracer("services/AnalysisService")
	ctx, span := tr.Start(ctx, "Analyze", trace.WithAttributes(attribute.String("chemical.name", name)))
	defer span.End()

	id, err := s.Coord.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	a := s.analyzeIdentity(ctx, id)
	span.SetAttributes(
		attribute.String("risk.level", string(a.RiskLevel)),
		attribute.Int("side_effects", len(a.SideEffects)),
		attribute.Int("oxidation_products", len(a.OxidationProducts)),
	)
	return a, nil
}

func (s *AnalysisService) analyzeIdentity(ctx context.Context, id *domain.ChemicalIdentity) *IngredientAnalysis {
	effects := s.Coord.FetchSideEffects(ctx, id)
	products := s.Coord.FetchOxidationProducts(ctx, id)
	if len(products) > 0 {
		id.OxidationProducts, _ = repo.MergeNames(id.OxidationProducts, products)
	}
	if effects == nil {
		effects = []domain.SideEffect{}
	}
	if products == nil {
		products = []string{}
	}

	assessment := risk.Assess(effects)
	s.log.Info().Str("chemical", id.CommonName).Int("side_effects", len(effects)).
		Int("oxidation_products", len(products)).Str("risk", string(assessment.Level)).Msg("analysis complete")
	return &IngredientAnalysis{
		Chemical:          id,
		SideEffects:       effects,
		OxidationProducts: products,
		RiskLevel:         assessment.Level,
		RiskAssessment:    &assessment,
		Warnings:          risk.Warnings(id, effects),
		Disclaimer:        risk.Disclaimer,
	}
}

// SideEffects resolves name and returns its side effects.
func (s *AnalysisService) SideEffects(ctx context.Context, name string) ([]domain.SideEffect, error) {
	id, err := s.Coord.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	out := s.Coord.FetchSideEffects(ctx, id)
	if out == nil {
		out = []domain.SideEffect{}
	}
	return out, nil
}

// OxidationProducts resolves name and returns its oxidation products.
func (s *AnalysisService) OxidationProducts(ctx context.Context, name string) ([]string, error) {
	id, err := s.Coord.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	out := s.Coord.FetchOxidationProducts(ctx, id)
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// AnalyzeBatch analyses every non-blank name with bounded concurrency.
// Names that cannot be analysed are reported with an error and UNKNOWN risk.
func (s *AnalysisService) AnalyzeBatch(ctx context.Context, names []string) (*BatchAnalysis, error) {
	tr := otel.Tracer("services/AnalysisService")
	ctx, span := tr.Start(ctx, "AnalyzeBatch", trace.WithAttributes(attribute.Int("batch.size", len(names))))
	defer span.End()

	names = dedupeNames(names)
	if len(names) == 0 {
		return nil, ErrEmptyBatch
	}
	if limit := s.maxBatch(); len(names) > limit {
		return nil, fmt.Errorf("%w: %d given, at most %d allowed", ErrTooManyIngredients, len(names), limit)
	}

	results, err := s.analyzeAll(ctx, names)
	if err != nil {
		return nil, err
	}
	high := countHigh(results)
	return &BatchAnalysis{
		Results: results,
		Summary: BatchSummary{
			TotalIngredients:    len(results),
			HighRiskIngredients: high,
			OverallRiskLevel:    risk.BatchRisk(high, len(results)),
		},
		Disclaimer: risk.Disclaimer,
	}, nil
}

// AnalyzeProduct looks up the ingredient list of product and analyses each
// ingredient. A product whose ingredients cannot be found yields an analysis
// carrying an error message and UNKNOWN risk, not an error.
func (s *AnalysisService) AnalyzeProduct(ctx context.Context, product string) (*ProductAnalysis, error) {
	tr := otel.Tracer("services/AnalysisService")
	ctx, span := tr.Start(ctx, "AnalyzeProduct", trace.WithAttributes(attribute.String("product.name", product)))
	defer span.End()

	product = strings.Join(strings.Fields(product), " ")
	if product == "" {
		return nil, ErrEmptyProduct
	}

	ingredients := s.findIngredients(ctx, product)
	span.SetAttributes(attribute.Int("product.ingredients", len(ingredients)))
	if len(ingredients) == 0 {
		return &ProductAnalysis{
			ProductName:      product,
			OverallRiskLevel: risk.Unknown,
			Ingredients:      []string{},
			DetailedAnalysis: map[string]*IngredientAnalysis{},
			Recommendations:  []string{},
			Disclaimer:       risk.Disclaimer,
			Error:            msgIngredientsAbsent,
		}, nil
	}
	if limit := s.maxBatch(); len(ingredients) > limit {
		s.log.Warn().Str("product", product).Int("ingredients", len(ingredients)).Int("limit", limit).
			Msg("ingredient list truncated")
		ingredients = ingredients[:limit]
	}

	detailed, err := s.analyzeAll(ctx, ingredients)
	if err != nil {
		return nil, err
	}
	analysed := 0
	for _, a := range detailed {
		if a.Error == "" {
			analysed++
		}
	}
	high := countHigh(detailed)
	return &ProductAnalysis{
		ProductName:         product,
		TotalIngredients:    analysed,
		HighRiskIngredients: high,
		OverallRiskLevel:    risk.ProductRisk(high, analysed),
		Ingredients:         ingredients,
		DetailedAnalysis:    detailed,
		Recommendations:     risk.ProductRecommendations(high, analysed),
		Disclaimer:          risk.Disclaimer,
	}, nil
}

func (s *AnalysisService) findIngredients(ctx context.Context, product string) []string {
	if s.Coord.Search == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, s.Coord.timeout())
	defer cancel()

	start := time.Now()
	raw, err := s.Coord.Search.SearchIngredients(sctx, product)
	if err != nil {
		s.log.Warn().Err(err).Str("product", product).Dur("elapsed", time.Since(start)).Msg("ingredient search failed")
		return nil
	}
	if s.Coord.Parser != nil {
		return s.Coord.Parser.Ingredients(raw)
	}
	return parser.ParseIngredients(raw)
}

// analyzeAll analyses names concurrently. Per-name failures are recorded in
// the result; only cancellation of ctx fails the call.
func (s *AnalysisService) analyzeAll(ctx context.Context, names []string) (map[string]*IngredientAnalysis, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]*IngredientAnalysis, len(names))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for _, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := s.analyzeOne(gctx, name)
			mu.Lock()
			out[name] = a
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AnalysisService) analyzeOne(ctx context.Context, name string) *IngredientAnalysis {
	id, err := s.Coord.Resolve(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrChemicalNotFound) {
			s.log.Warn().Err(err).Str("chemical", name).Msg("ingredient not resolved")
		}
		return &IngredientAnalysis{
			SideEffects:       []domain.SideEffect{},
			OxidationProducts: []string{},
			RiskLevel:         risk.Unknown,
			Error:             msgChemicalNotFound,
		}
	}
	a := s.analyzeIdentity(ctx, id)
	a.Disclaimer = ""
	return a
}

// SearchHealth reports the search subsystem status.
func (s *AnalysisService) SearchHealth() SearchHealth {
	h := SearchHealth{
		Status:             "operational",
		SearchCapabilities: append([]string(nil), SearchCapabilities...),
		Disclaimer:         risk.Disclaimer,
	}
	if s.BreakerState != nil {
		h.Breaker = s.BreakerState()
		if h.Breaker == "open" {
			h.Status = "degraded"
		}
	}
	return h
}

// ListChemicals returns a page of known identities and the total count.
func (s *AnalysisService) ListChemicals(ctx context.Context, page, pageSize int) ([]domain.ChemicalIdentity, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountChemicals(ctx, s.Coord.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChemicalIdentity{}, 0, nil
	}
	items, err := repo.ListChemicalsPage(ctx, s.Coord.DB, offset, pageSize)
	return items, total, err
}

// ChemicalsStats returns the identity count and latest update time, used to
// derive list ETags.
func (s *AnalysisService) ChemicalsStats(ctx context.Context) (int64, *time.Time, error) {
	return repo.ChemicalsStats(ctx, s.Coord.DB)
}

func (s *AnalysisService) maxBatch() int {
	if s.MaxBatchSize > 0 {
		return s.MaxBatchSize
	}
	return DefaultMaxBatchSize
}

func (s *AnalysisService) concurrency() int {
	if s.BatchConcurrency > 0 {
		return s.BatchConcurrency
	}
	return DefaultBatchConcurrency
}

func countHigh(results map[string]*IngredientAnalysis) int {
	n := 0
	for _, a := range results {
		if a.RiskLevel == risk.High {
			n++
		}
	}
	return n
}

// dedupeNames trims names, drops blanks and keeps the first spelling of each
// case-insensitive duplicate.
func dedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.Join(strings.Fields(n), " ")
		k := domain.NormalizeName(n)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return out
}
