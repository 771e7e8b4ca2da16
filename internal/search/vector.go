// Package search provides the vector side of the semantic cache: embedding
// providers that turn short texts into vectors, and stores that answer
// nearest-neighbour queries over those vectors.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for tunables
//   - Deterministic scoring and sorting (stable order for ties)
//   - Stores are safe for concurrent use
//
// Scoring uses cosine similarity between the query vector and each stored
// document vector. Similarity is only a recall device: callers must still
// verify an exact key before trusting a match.
package search

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// store's or embedder's configured dimension.
var ErrDimensionMismatch = errors.New("search: vector dimension mismatch")

// Embedder converts text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Document is one stored unit addressed by Key.
type Document struct {
	Key      string    `json:"key"`
	Tag      string    `json:"tag"`
	Subject  string    `json:"subject"`
	Content  string    `json:"content"`
	Vector   []float32 `json:"vector"`
	CachedAt time.Time `json:"cached_at"`
	TTLDays  int       `json:"ttl_days"`
}

// Match is a Document with its similarity to the query vector.
type Match struct {
	Document
	Score float64
}

// Query describes a nearest-neighbour lookup. Tag restricts candidates when
// non-empty. Documents scoring below MinScore are dropped.
type Query struct {
	Vector   []float32
	TopK     int
	MinScore float64
	Tag      string
}

// VectorStore is implemented by every semantic cache backend.
type VectorStore interface {
	Upsert(ctx context.Context, doc Document) error
	Similar(ctx context.Context, q Query) ([]Match, error)
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// is empty, zero, or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank scores docs against q and returns at most q.TopK matches ordered by
// score desc, then newest first, then key asc.
func rank(docs []Document, q Query) []Match {
	k := q.TopK
	if k <= 0 {
		k = 10
	}
	buf := make([]Match, 0, len(docs))
	for _, d := range docs {
		if q.Tag != "" && d.Tag != q.Tag {
			continue
		}
		s := Cosine(q.Vector, d.Vector)
		if s < q.MinScore || s <= 0 {
			continue
		}
		buf = append(buf, Match{Document: d, Score: s})
	}
	if len(buf) == 0 {
		return nil
	}
	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		if !buf[a].CachedAt.Equal(buf[b].CachedAt) {
			return buf[a].CachedAt.After(buf[b].CachedAt)
		}
		return buf[a].Key < buf[b].Key
	})
	if k > len(buf) {
		k = len(buf)
	}
	return buf[:k]
}
