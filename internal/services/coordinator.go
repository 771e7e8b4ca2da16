// Package services – Coordinator
//
// This file implements the Coordinator, which resolves raw chemical names to
// deduplicated identities and runs the three-tier knowledge lookup:
//
//  1. Exact cache (normalized rows in SQL)
//  2. Semantic cache (raw responses keyed by composite key)
//  3. Generative search (time-bounded)
//
// A fetch never returns an error. Tier failures are logged, counted and
// degrade to the next tier or to an empty result.
//
// Observability: Resolve and Fetch are OpenTelemetry-instrumented; tier
// outcomes are exported as Prometheus counters.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tbourn/allergen-intel-backend/internal/cache"
	"github.com/tbourn/allergen-intel-backend/internal/domain"
	"github.com/tbourn/allergen-intel-backend/internal/generative"
	"github.com/tbourn/allergen-intel-backend/internal/observability"
	"github.com/tbourn/allergen-intel-backend/internal/parser"
	"github.com/tbourn/allergen-intel-backend/internal/registry"
	"github.com/tbourn/allergen-intel-backend/internal/repo"
)

// DefaultSearchTimeout bounds one generative search.
const DefaultSearchTimeout = 45 * time.Second

// Searcher runs generative searches.
type Searcher interface {
	Search(ctx context.Context, kind domain.DataKind, id *domain.ChemicalIdentity) (string, error)
	SearchIngredients(ctx context.Context, product string) (string, error)
}

// TextCache stores raw responses by subject and tag.
type TextCache interface {
	Get(ctx context.Context, subject string, tag domain.CacheTag) (string, bool)
	Put(ctx context.Context, subject string, tag domain.CacheTag, raw string) error
}

// FetchState is the last state a fetch reached.
type FetchState string

const (
	StateUnresolved   FetchState = "UNRESOLVED"
	StateTier1Miss    FetchState = "TIER1_MISS"
	StateTier2Miss    FetchState = "TIER2_MISS"
	StateTier3Pending FetchState = "TIER3_PENDING"
	StateTier3Success FetchState = "TIER3_SUCCESS"
	StateTier3Timeout FetchState = "TIER3_TIMEOUT"
	StateTier3Error   FetchState = "TIER3_ERROR"
	StateDone         FetchState = "DONE"
)

// FetchResult is the outcome of one tiered fetch. Tier names the tier that
// answered; State is DONE for cache hits and the tier-3 outcome otherwise.
type FetchResult struct {
	Kind              domain.DataKind     `json:"kind"`
	Tier              string              `json:"tier"`
	State             FetchState          `json:"state"`
	SideEffects       []domain.SideEffect `json:"side_effects,omitempty"`
	OxidationProducts []string            `json:"oxidation_products,omitempty"`
}

// Len returns the number of records of the result's kind.
func (r FetchResult) Len() int {
	return cache.Records{SideEffects: r.SideEffects, OxidationProducts: r.OxidationProducts}.Len(r.Kind)
}

// Coordinator owns identity resolution and the tier fallback policy.
type Coordinator struct {
	DB       *gorm.DB
	Exact    *cache.ExactCache
	Semantic TextCache
	Registry registry.Resolver
	Search   Searcher
	Parser   *parser.Parser

	// SearchTimeout bounds tier 3. Zero means DefaultSearchTimeout.
	SearchTimeout time.Duration
	// Coalesce shares one in-flight tier-3 search among identical fetches.
	Coalesce bool

	group singleflight.Group
	log   zerolog.Logger
}

// NewCoordinator wires a coordinator with default tuning. semantic may be nil.
func NewCoordinator(db *gorm.DB, semantic TextCache, reg registry.Resolver, search Searcher) *Coordinator {
	return &Coordinator{
		DB:            db,
		Exact:         cache.NewExactCache(db),
		Semantic:      semantic,
		Registry:      reg,
		Search:        search,
		Parser:        parser.New(),
		SearchTimeout: DefaultSearchTimeout,
		Coalesce:      true,
		log:           log.With().Str("component", "coordinator").Logger(),
	}
}

func (c *Coordinator) timeout() time.Duration {
	if c.SearchTimeout > 0 {
		return c.SearchTimeout
	}
	return DefaultSearchTimeout
}

// Resolve maps a raw name to a persisted identity. Local names and synonyms
// are tried first; the registry is consulted on a miss. A registry answer
// whose external id is already known returns the existing identity and
// records rawName as a synonym.
func (c *Coordinator) Resolve(ctx context.Context, rawName string) (*domain.ChemicalIdentity, error) {
	tr := otel.Tracer("services/Coordinator")
	ctx, span := tr.Start(ctx, "Resolve", trace.WithAttributes(attribute.String("chemical.name", rawName)))
	defer span.End()

	name := strings.Join(strings.Fields(rawName), " ")
	if name == "" {
		return nil, ErrEmptyName
	}

	if id, err := repo.FindChemicalByName(ctx, c.DB, name); err == nil {
		span.SetAttributes(attribute.String("resolve.source", "name"))
		return id, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		span.RecordError(err)
		return nil, fmt.Errorf("find chemical by name: %w", err)
	}
	if id, err := repo.FindChemicalBySynonym(ctx, c.DB, name); err == nil {
		span.SetAttributes(attribute.String("resolve.source", "synonym"))
		return id, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		span.RecordError(err)
		return nil, fmt.Errorf("find chemical by synonym: %w", err)
	}

	if c.Registry == nil {
		return nil, ErrRegistryUnavailable
	}
	rec, err := c.Registry.Lookup(ctx, name)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		span.SetAttributes(attribute.String("resolve.source", "none"))
		return nil, ErrChemicalNotFound
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "registry lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	if existing, err := c.byExternalID(ctx, rec.ExternalID, name); err == nil {
		span.SetAttributes(attribute.String("resolve.source", "external_id"))
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		span.RecordError(err)
		return nil, err
	}

	id, err := repo.CreateChemical(ctx, c.DB, identityFromRecord(name, rec))
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost a race with a concurrent resolve; return the winner.
		if winner, werr := c.byExternalID(ctx, rec.ExternalID, name); werr == nil {
			return winner, nil
		}
		return repo.FindChemicalByName(ctx, c.DB, name)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create chemical: %w", err)
	}
	span.SetAttributes(attribute.String("resolve.source", "registry"), attribute.String("chemical.id", id.ID))
	c.log.Info().Str("name", name).Int64("external_id", rec.ExternalID).Str("id", id.ID).Msg("chemical resolved")
	return id, nil
}

// byExternalID returns the identity owning externalID and records alias on it.
func (c *Coordinator) byExternalID(ctx context.Context, externalID int64, alias string) (*domain.ChemicalIdentity, error) {
	existing, err := repo.FindChemicalByExternalID(ctx, c.DB, externalID)
	if err != nil {
		return nil, err
	}
	if domain.NormalizeName(existing.CommonName) != domain.NormalizeName(alias) {
		if err := repo.AddChemicalSynonym(ctx, c.DB, existing.ID, alias); err != nil {
			c.log.Warn().Err(err).Str("id", existing.ID).Str("alias", alias).Msg("synonym not recorded")
		} else {
			existing.Synonyms, _ = repo.MergeNames(existing.Synonyms, []string{alias})
		}
	}
	return existing, nil
}

func identityFromRecord(name string, rec *registry.Record) *domain.ChemicalIdentity {
	ext := rec.ExternalID
	return &domain.ChemicalIdentity{
		ExternalID:       &ext,
		CommonName:       name,
		IUPACName:        rec.IUPACName,
		CASNumber:        rec.CASNumber,
		MolecularFormula: rec.MolecularFormula,
		MolecularWeight:  rec.MolecularWeight,
		Structure:        rec.Structure,
		InChI:            rec.InChI,
		InChIKey:         rec.InChIKey,
		Synonyms:         append([]string(nil), rec.Synonyms...),
	}
}

// FetchSideEffects runs the tiered fetch for side effects.
func (c *Coordinator) FetchSideEffects(ctx context.Context, id *domain.ChemicalIdentity) []domain.SideEffect {
	return c.Fetch(ctx, id, domain.KindSideEffects).SideEffects
}

// FetchOxidationProducts runs the tiered fetch for oxidation products.
func (c *Coordinator) FetchOxidationProducts(ctx context.Context, id *domain.ChemicalIdentity) []string {
	return c.Fetch(ctx, id, domain.KindOxidationProducts).OxidationProducts
}

// Fetch runs exact, semantic and generative tiers in order and returns the
// first non-empty answer. It never fails; total failure yields an empty result.
func (c *Coordinator) Fetch(ctx context.Context, id *domain.ChemicalIdentity, kind domain.DataKind) FetchResult {
	tr := otel.Tracer("services/Coordinator")
	ctx, span := tr.Start(ctx, "Fetch", trace.WithAttributes(attribute.String("fetch.kind", string(kind))))
	defer span.End()

	res := FetchResult{Kind: kind, Tier: observability.TierNone, State: StateUnresolved}
	if id == nil || strings.TrimSpace(id.CommonName) == "" {
		return finish(span, res)
	}
	span.SetAttributes(attribute.String("chemical.id", id.ID), attribute.String("chemical.name", id.CommonName))
	lg := c.log.With().Str("chemical", id.CommonName).Str("kind", string(kind)).Logger()

	// Tier 1
	if c.Exact != nil {
		recs, hit, err := c.Exact.Lookup(ctx, id, kind)
		if err != nil {
			lg.Warn().Err(err).Msg("exact cache lookup failed")
		}
		if hit {
			return finish(span, withRecords(res, recs, observability.TierExact, StateDone))
		}
	}
	res.State = StateTier1Miss
	span.AddEvent(string(StateTier1Miss))

	// Tier 2
	if c.Semantic != nil {
		if raw, ok := c.Semantic.Get(ctx, id.CommonName, kind.Tag()); ok {
			recs := c.parse(kind, raw, id)
			if recs.Len(kind) > 0 {
				lg.Debug().Int("records", recs.Len(kind)).Msg("semantic cache hit")
				recs = c.store(ctx, lg, id, kind, recs)
				return finish(span, withRecords(res, recs, observability.TierSemantic, StateDone))
			}
			lg.Info().Msg("semantic entry parsed to zero records, falling through")
		}
	}
	res.State = StateTier2Miss
	span.AddEvent(string(StateTier2Miss))

	// Tier 3
	if c.Search == nil {
		return finish(span, res)
	}
	span.AddEvent(string(StateTier3Pending))
	recs, state := c.generate(ctx, lg, id, kind)
	res.State = state
	if state == StateTier3Success && recs.Len(kind) > 0 {
		return finish(span, withRecords(res, recs, observability.TierGenerative, state))
	}
	return finish(span, res)
}

type generated struct {
	recs  cache.Records
	state FetchState
}

// generate runs tier 3 and waits at most the search timeout for it, whether
// or not the searcher honours cancellation. With coalescing, the search runs
// on a context that survives the caller so that cache writes complete for
// later callers.
func (c *Coordinator) generate(ctx context.Context, lg zerolog.Logger, id *domain.ChemicalIdentity, kind domain.DataKind) (cache.Records, FetchState) {
	// The search may outlive this caller, so it works on its own copy.
	own := *id

	var ch <-chan singleflight.Result
	if c.Coalesce {
		key := string(kind) + ":" + id.ID
		if id.ID == "" {
			key = string(kind) + ":name:" + domain.NormalizeName(id.CommonName)
		}
		detached := context.WithoutCancel(ctx)
		ch = c.group.DoChan(key, func() (any, error) {
			sctx, cancel := context.WithTimeout(detached, c.timeout())
			defer cancel()
			return c.searchAndStore(sctx, lg, &own, kind), nil
		})
	} else {
		sctx, cancel := context.WithTimeout(ctx, c.timeout())
		defer cancel()
		out := make(chan singleflight.Result, 1)
		go func() {
			out <- singleflight.Result{Val: c.searchAndStore(sctx, lg, &own, kind)}
		}()
		ch = out
	}

	timer := time.NewTimer(c.timeout())
	defer timer.Stop()

	select {
	case r := <-ch:
		g := r.Val.(generated)
		return g.recs, g.state
	case <-timer.C:
		lg.Warn().Dur("timeout", c.timeout()).Msg("generative search exceeded deadline, abandoning wait")
		return cache.Records{}, StateTier3Timeout
	case <-ctx.Done():
		lg.Info().Err(ctx.Err()).Msg("caller left before search finished")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return cache.Records{}, StateTier3Timeout
		}
		return cache.Records{}, StateTier3Error
	}
}

func (c *Coordinator) searchAndStore(ctx context.Context, lg zerolog.Logger, id *domain.ChemicalIdentity, kind domain.DataKind) generated {
	start := time.Now()
	raw, err := c.Search.Search(ctx, kind, id)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, generative.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			observability.ObserveSearch(string(kind), observability.OutcomeTimeout, elapsed)
			lg.Warn().Dur("elapsed", elapsed).Msg("generative search timed out")
			return generated{state: StateTier3Timeout}
		}
		observability.ObserveSearch(string(kind), observability.OutcomeError, elapsed)
		lg.Warn().Err(err).Dur("elapsed", elapsed).Msg("generative search failed")
		return generated{state: StateTier3Error}
	}
	observability.ObserveSearch(string(kind), observability.OutcomeSuccess, elapsed)

	if c.Semantic != nil {
		if err := c.Semantic.Put(ctx, id.CommonName, kind.Tag(), raw); err != nil {
			lg.Warn().Err(err).Msg("semantic cache write failed")
		}
	}
	recs := c.parse(kind, raw, id)
	if recs.Len(kind) == 0 {
		lg.Info().Msg("generative answer parsed to zero records")
		return generated{state: StateTier3Success}
	}
	return generated{recs: c.store(ctx, lg, id, kind, recs), state: StateTier3Success}
}

func (c *Coordinator) parse(kind domain.DataKind, raw string, id *domain.ChemicalIdentity) cache.Records {
	if c.Parser == nil {
		if kind == domain.KindOxidationProducts {
			return cache.Records{OxidationProducts: parser.ParseOxidationProducts(raw)}
		}
		return cache.Records{SideEffects: parser.ParseSideEffects(raw, id)}
	}
	if kind == domain.KindOxidationProducts {
		return cache.Records{OxidationProducts: c.Parser.OxidationProducts(raw)}
	}
	return cache.Records{SideEffects: c.Parser.SideEffects(raw, id)}
}

// store persists recs and returns the stored form. When the identity cannot
// be stored the parsed records are returned unchanged.
func (c *Coordinator) store(ctx context.Context, lg zerolog.Logger, id *domain.ChemicalIdentity, kind domain.DataKind, recs cache.Records) cache.Records {
	if c.Exact == nil || !id.Resolved() {
		return recs
	}
	switch kind {
	case domain.KindOxidationProducts:
		merged, err := c.Exact.StoreOxidationProducts(ctx, id, recs.OxidationProducts)
		if err != nil {
			lg.Warn().Err(err).Msg("exact cache write failed")
			return recs
		}
		return cache.Records{OxidationProducts: merged}
	default:
		rows, err := c.Exact.StoreSideEffects(ctx, id, recs.SideEffects)
		if err != nil {
			lg.Warn().Err(err).Msg("exact cache write failed")
			return recs
		}
		return cache.Records{SideEffects: rows}
	}
}

func withRecords(res FetchResult, recs cache.Records, tier string, state FetchState) FetchResult {
	res.Tier = tier
	res.State = state
	res.SideEffects = recs.SideEffects
	res.OxidationProducts = recs.OxidationProducts
	return res
}

func finish(span trace.Span, res FetchResult) FetchResult {
	observability.TierHit(string(res.Kind), res.Tier)
	span.SetAttributes(
		attribute.String("fetch.tier", res.Tier),
		attribute.String("fetch.state", string(res.State)),
		attribute.Int("fetch.records", res.Len()),
	)
	return res
}
