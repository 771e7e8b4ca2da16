package search

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); !approx(got, 1) {
		t.Fatalf("identical vectors: %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); !approx(got, 0) {
		t.Fatalf("orthogonal vectors: %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1}); got != 0 {
		t.Fatalf("length mismatch should be 0, got %v", got)
	}
	if got := Cosine(nil, nil); got != 0 {
		t.Fatalf("empty should be 0, got %v", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("zero vector should be 0, got %v", got)
	}
}

func TestRank_FiltersSortsAndLimits(t *testing.T) {
	now := time.Now()
	docs := []Document{
		{Key: "b", Tag: "x", Vector: []float32{1, 0}, CachedAt: now},
		{Key: "a", Tag: "x", Vector: []float32{1, 0}, CachedAt: now},
		{Key: "newer", Tag: "x", Vector: []float32{1, 0}, CachedAt: now.Add(time.Minute)},
		{Key: "weak", Tag: "x", Vector: []float32{1, 1}, CachedAt: now},
		{Key: "other-tag", Tag: "y", Vector: []float32{1, 0}, CachedAt: now},
		{Key: "opposite", Tag: "x", Vector: []float32{-1, 0}, CachedAt: now},
	}
	got := rank(docs, Query{Vector: []float32{1, 0}, Tag: "x", TopK: 3, MinScore: 0.5})
	if len(got) != 3 {
		t.Fatalf("want 3 matches, got %d", len(got))
	}
	want := []string{"newer", "a", "b"}
	for i, k := range want {
		if got[i].Key != k {
			t.Fatalf("pos %d: want %s got %s", i, k, got[i].Key)
		}
	}

	all := rank(docs, Query{Vector: []float32{1, 0}, Tag: "x", MinScore: 0.5})
	if len(all) != 4 || all[3].Key != "weak" {
		t.Fatalf("unexpected full ranking: %+v", all)
	}

	if rank(docs, Query{Vector: []float32{1, 0}, Tag: "none"}) != nil {
		t.Fatalf("unknown tag should give nil")
	}
}

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(WithDimension(64))
	if e.Dimension() != 64 {
		t.Fatalf("dimension=%d", e.Dimension())
	}
	a, err := e.Embed(context.Background(), "Limonene")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, _ := e.Embed(context.Background(), "  limonene ")
	if len(a) != 64 {
		t.Fatalf("len=%d", len(a))
	}
	if !approx(Cosine(a, b), 1) {
		t.Fatalf("case and whitespace should not matter")
	}
	var n float64
	for _, v := range a {
		n += float64(v) * float64(v)
	}
	if !approx(n, 1) {
		t.Fatalf("vector not unit length: %v", n)
	}
}

func TestHashEmbedder_SimilarNamesScoreHigher(t *testing.T) {
	e := NewHashEmbedder()
	ctx := context.Background()
	q, _ := e.Embed(ctx, "allergen_effects:limonene")
	near, _ := e.Embed(ctx, "allergen_effects:d-limonene")
	far, _ := e.Embed(ctx, "oxidation_products:benzyl alcohol")
	if Cosine(q, near) <= Cosine(q, far) {
		t.Fatalf("expected near > far: %v vs %v", Cosine(q, near), Cosine(q, far))
	}
}

func TestHashEmbedder_EmptyAndCancelled(t *testing.T) {
	e := NewHashEmbedder(WithDimension(8), WithStopwords([]string{"the"}), WithGramSize(1))
	v, err := e.Embed(context.Background(), "the --- ")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Embed(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("Linalool, OXIDE (2%) ＡＢ", map[string]struct{}{"oxide": {}})
	want := []string{"linalool", "2", "ab"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(2)
	if err := m.Upsert(ctx, Document{Key: "k", Vector: []float32{1}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("want ErrDimensionMismatch, got %v", err)
	}
	vec := []float32{1, 0}
	if err := m.Upsert(ctx, Document{Key: "k", Tag: "t", Content: "v1", Vector: vec}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	vec[0] = 0 // caller mutation must not leak into the store
	if err := m.Upsert(ctx, Document{Key: "j", Tag: "t", Content: "x", Vector: []float32{0, 1}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := m.Upsert(ctx, Document{Key: "k", Tag: "t", Content: "v2", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("len=%d", m.Len())
	}
	got, err := m.Similar(ctx, Query{Vector: []float32{1, 0}, Tag: "t", MinScore: 0.5})
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(got) != 1 || got[0].Key != "k" || got[0].Content != "v2" {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestSQLStore_RoundTripAndTagFilter(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "sem.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if s, err := db.DB(); err == nil {
			_ = s.Close()
		}
	})
	if err := db.AutoMigrate(&domain.SemanticEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	s := NewSQLStore(db)
	now := time.Now().UTC().Truncate(time.Second)
	docs := []Document{
		{Key: "allergen_effects:limonene", Tag: "allergen_effects", Subject: "Limonene", Content: "a", Vector: []float32{1, 0}, CachedAt: now, TTLDays: 30},
		{Key: "oxidation_products:limonene", Tag: "oxidation_products", Subject: "Limonene", Content: "b", Vector: []float32{1, 0}, CachedAt: now, TTLDays: 30},
	}
	for _, d := range docs {
		if err := s.Upsert(ctx, d); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	// Overwrite by key.
	docs[0].Content = "a2"
	if err := s.Upsert(ctx, docs[0]); err != nil {
		t.Fatalf("upsert overwrite: %v", err)
	}

	got, err := s.Similar(ctx, Query{Vector: []float32{1, 0}, Tag: "allergen_effects", MinScore: 0.5})
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(got) != 1 || got[0].Key != "allergen_effects:limonene" || got[0].Content != "a2" {
		t.Fatalf("unexpected: %+v", got)
	}
	if got[0].TTLDays != 30 || !got[0].CachedAt.Equal(now) {
		t.Fatalf("metadata lost: %+v", got[0].Document)
	}
}
