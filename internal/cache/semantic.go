package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
	"github.com/tbourn/allergen-intel-backend/internal/observability"
	"github.com/tbourn/allergen-intel-backend/internal/search"
)

// StalePolicy decides what Get does with an entry past its TTL.
type StalePolicy int

const (
	// ServeStale returns expired entries as hits.
	ServeStale StalePolicy = iota
	// StaleAsMiss treats expired entries as absent.
	StaleAsMiss
)

const (
	DefaultTopK          = 10
	DefaultMinSimilarity = 0.5
	DefaultTTLDays       = 30
)

// Entry is the metadata view of a stored semantic document.
type Entry struct {
	Key      string
	Tag      domain.CacheTag
	CachedAt time.Time
	TTLDays  int
}

// IsExpired reports whether e is older than its TTL at now.
func IsExpired(e Entry, now time.Time) bool {
	ttl := e.TTLDays
	if ttl <= 0 {
		ttl = DefaultTTLDays
	}
	return now.Sub(e.CachedAt) > time.Duration(ttl)*24*time.Hour
}

// CompositeKey builds the exact identity of a semantic entry.
func CompositeKey(subject string, tag domain.CacheTag) string {
	return string(tag) + ":" + strings.ToLower(strings.TrimSpace(subject))
}

// SemanticCache stores raw responses in a vector store and returns them only
// on an exact composite-key match. Vector similarity narrows candidates; it
// never decides a hit on its own.
type SemanticCache struct {
	Embedder search.Embedder
	Store    search.VectorStore

	TopK          int
	MinSimilarity float64
	TTLDays       int
	Policy        StalePolicy

	Now func() time.Time
	Log zerolog.Logger
}

// NewSemanticCache returns a cache with default tuning.
func NewSemanticCache(emb search.Embedder, store search.VectorStore) *SemanticCache {
	return &SemanticCache{
		Embedder:      emb,
		Store:         store,
		TopK:          DefaultTopK,
		MinSimilarity: DefaultMinSimilarity,
		TTLDays:       DefaultTTLDays,
		Policy:        ServeStale,
		Log:           log.With().Str("component", "semantic_cache").Logger(),
	}
}

func (c *SemanticCache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Get returns the raw payload stored for subject under tag. Embedding or
// store failures are logged and reported as a miss.
func (c *SemanticCache) Get(ctx context.Context, subject string, tag domain.CacheTag) (string, bool) {
	key := CompositeKey(subject, tag)
	raw, outcome, err := c.get(ctx, key, tag)
	if err != nil {
		c.Log.Warn().Err(err).Str("key", key).Msg("semantic cache lookup failed")
	}
	observability.SemanticLookup(string(tag), outcome)
	return raw, outcome == observability.OutcomeHit
}

func (c *SemanticCache) get(ctx context.Context, key string, tag domain.CacheTag) (string, string, error) {
	if c.Embedder == nil || c.Store == nil {
		return "", observability.OutcomeError, errors.Join(ErrCacheUnavailable, errors.New("semantic cache not configured"))
	}
	vec, err := c.Embedder.Embed(ctx, key)
	if err != nil {
		return "", observability.OutcomeError, errors.Join(ErrCacheUnavailable, err)
	}
	topK := c.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	matches, err := c.Store.Similar(ctx, search.Query{
		Vector:   vec,
		TopK:     topK,
		MinScore: c.MinSimilarity,
		Tag:      string(tag),
	})
	if err != nil {
		return "", observability.OutcomeError, errors.Join(ErrCacheUnavailable, err)
	}

	for _, m := range matches {
		if m.Key != key {
			continue
		}
		head, body, _ := strings.Cut(m.Content, "\n")
		if head != key {
			continue
		}
		e := Entry{Key: m.Key, Tag: domain.CacheTag(m.Tag), CachedAt: m.CachedAt, TTLDays: m.TTLDays}
		if c.Policy == StaleAsMiss && IsExpired(e, c.now()) {
			return "", observability.OutcomeStale, nil
		}
		return body, observability.OutcomeHit, nil
	}
	return "", observability.OutcomeMiss, nil
}

// Put stores raw for subject under tag, replacing any previous entry with
// the same composite key.
func (c *SemanticCache) Put(ctx context.Context, subject string, tag domain.CacheTag, raw string) error {
	if c.Embedder == nil || c.Store == nil {
		return ErrCacheUnavailable
	}
	key := CompositeKey(subject, tag)
	vec, err := c.Embedder.Embed(ctx, key)
	if err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	ttl := c.TTLDays
	if ttl <= 0 {
		ttl = DefaultTTLDays
	}
	doc := search.Document{
		Key:      key,
		Tag:      string(tag),
		Subject:  strings.TrimSpace(subject),
		Content:  key + "\n" + raw,
		Vector:   vec,
		CachedAt: c.now(),
		TTLDays:  ttl,
	}
	if err := c.Store.Upsert(ctx, doc); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}
