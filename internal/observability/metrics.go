package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tier labels used by TierHits.
const (
	TierExact      = "exact"
	TierSemantic   = "semantic"
	TierGenerative = "generative"
	TierNone       = "none"
)

// Outcome labels shared by the cache and search collectors.
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeStale   = "stale"
	OutcomeError   = "error"
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
)

var (
	tierHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allergen_tier_hits_total",
			Help: "Fetches answered per knowledge tier.",
		},
		[]string{"kind", "tier"},
	)

	// Buckets reach past the default 45s search deadline.
	searchDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allergen_generative_search_seconds",
			Help:    "Duration of generative search calls in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		},
		[]string{"kind", "outcome"},
	)

	semanticLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allergen_semantic_cache_total",
			Help: "Semantic cache lookups by tag and outcome.",
		},
		[]string{"tag", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(tierHits, searchDur, semanticLookups)
}

// TierHit records that a fetch of kind was answered by tier.
func TierHit(kind, tier string) { tierHits.WithLabelValues(kind, tier).Inc() }

// ObserveSearch records one generative search call.
func ObserveSearch(kind, outcome string, d time.Duration) {
	searchDur.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

// SemanticLookup records a semantic cache lookup outcome.
func SemanticLookup(tag, outcome string) { semanticLookups.WithLabelValues(tag, outcome).Inc() }
