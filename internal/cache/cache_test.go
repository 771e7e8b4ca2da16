package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
	"github.com/tbourn/allergen-intel-backend/internal/repo"
	"github.com/tbourn/allergen-intel-backend/internal/search"
)

func newCacheDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), repo.WithLogLevel(logger.Silent))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if s, err := db.DB(); err == nil {
			_ = s.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedIdentity(t *testing.T, db *gorm.DB, name string) *domain.ChemicalIdentity {
	t.Helper()
	c, err := repo.CreateChemical(context.Background(), db, &domain.ChemicalIdentity{CommonName: name})
	if err != nil {
		t.Fatalf("create chemical: %v", err)
	}
	return c
}

// constEmbedder maps every text to the same vector so that only the exact
// key check separates candidates.
type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder down")
}

type failingStore struct{ search.VectorStore }

func (failingStore) Similar(context.Context, search.Query) ([]search.Match, error) {
	return nil, errors.New("index down")
}

func TestExactCache_SideEffectsIdempotentStore(t *testing.T) {
	ctx := context.Background()
	db := newCacheDB(t)
	c := NewExactCache(db)
	id := seedIdentity(t, db, "Limonene")

	if _, hit, err := c.Lookup(ctx, id, domain.KindSideEffects); err != nil || hit {
		t.Fatalf("empty cache should miss: hit=%v err=%v", hit, err)
	}

	recs := Records{SideEffects: []domain.SideEffect{
		{Effect: "Contact dermatitis", Severity: domain.SeverityModerate, ConfidenceScore: 70},
		{Effect: "contact dermatitis", Severity: domain.SeveritySevere, ConfidenceScore: 70},
		{Effect: "Eczema", Severity: domain.SeverityMild, ConfidenceScore: 70},
	}}
	for i := 0; i < 2; i++ {
		if err := c.Store(ctx, id, domain.KindSideEffects, recs); err != nil {
			t.Fatalf("store #%d: %v", i, err)
		}
	}

	got, hit, err := c.Lookup(ctx, id, domain.KindSideEffects)
	if err != nil || !hit {
		t.Fatalf("lookup: hit=%v err=%v", hit, err)
	}
	if len(got.SideEffects) != 2 {
		t.Fatalf("want 2 records after dedup, got %d", len(got.SideEffects))
	}
	for _, r := range got.SideEffects {
		if r.EffectKey == "contact dermatitis" && r.Severity != domain.SeverityModerate {
			t.Fatalf("first occurrence should win, got %s", r.Severity)
		}
	}
	if got.Len(domain.KindSideEffects) != 2 {
		t.Fatalf("Len mismatch")
	}
}

func TestExactCache_OxidationProductsMerge(t *testing.T) {
	ctx := context.Background()
	db := newCacheDB(t)
	c := NewExactCache(db)
	id := seedIdentity(t, db, "Linalool")

	if err := c.Store(ctx, id, domain.KindOxidationProducts, Records{OxidationProducts: []string{"Linalool hydroperoxide"}}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := c.Store(ctx, id, domain.KindOxidationProducts, Records{OxidationProducts: []string{"linalool hydroperoxide", "Linalool oxide"}}); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, hit, err := c.Lookup(ctx, id, domain.KindOxidationProducts)
	if err != nil || !hit {
		t.Fatalf("lookup: hit=%v err=%v", hit, err)
	}
	if len(got.OxidationProducts) != 2 || got.OxidationProducts[0] != "Linalool hydroperoxide" {
		t.Fatalf("unexpected list: %v", got.OxidationProducts)
	}
	if len(id.OxidationProducts) != 2 {
		t.Fatalf("identity copy not refreshed: %v", id.OxidationProducts)
	}
}

func TestExactCache_Unresolved(t *testing.T) {
	ctx := context.Background()
	c := NewExactCache(newCacheDB(t))
	id := &domain.ChemicalIdentity{CommonName: "ghost"}

	if _, hit, err := c.Lookup(ctx, id, domain.KindSideEffects); hit || err != nil {
		t.Fatalf("unresolved lookup must miss quietly: hit=%v err=%v", hit, err)
	}
	err := c.Store(ctx, id, domain.KindSideEffects, Records{SideEffects: []domain.SideEffect{{Effect: "x"}}})
	if !errors.Is(err, ErrIdentityUnresolved) {
		t.Fatalf("want ErrIdentityUnresolved, got %v", err)
	}
	if _, err := c.StoreOxidationProducts(ctx, nil, []string{"x"}); !errors.Is(err, ErrIdentityUnresolved) {
		t.Fatalf("nil identity: want ErrIdentityUnresolved, got %v", err)
	}
}

func TestCompositeKey(t *testing.T) {
	if got := CompositeKey("  Limonene ", domain.TagAllergenEffects); got != "allergen_effects:limonene" {
		t.Fatalf("got %q", got)
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	e := Entry{CachedAt: now.AddDate(0, 0, -30), TTLDays: 30}
	if IsExpired(e, now) {
		t.Fatalf("exactly ttl days old is not expired")
	}
	e.CachedAt = e.CachedAt.Add(-time.Second)
	if !IsExpired(e, now) {
		t.Fatalf("older than ttl must be expired")
	}
	e = Entry{CachedAt: now.AddDate(0, 0, -31)}
	if !IsExpired(e, now) {
		t.Fatalf("zero ttl falls back to the default")
	}
}

func TestSemanticCache_ExactKeyFiltering(t *testing.T) {
	ctx := context.Background()
	sc := NewSemanticCache(constEmbedder{}, search.NewMemoryStore(3))

	if err := sc.Put(ctx, "Limonene", domain.TagAllergenEffects, "EFFECT: Rash"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := sc.Put(ctx, "Linalool", domain.TagAllergenEffects, "EFFECT: Hives"); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, hit := sc.Get(ctx, "Linalene", domain.TagAllergenEffects); hit {
		t.Fatalf("similar but different subject must miss")
	}
	raw, hit := sc.Get(ctx, " LINALOOL", domain.TagAllergenEffects)
	if !hit || raw != "EFFECT: Hives" {
		t.Fatalf("want Linalool payload, got hit=%v raw=%q", hit, raw)
	}
	if _, hit := sc.Get(ctx, "Linalool", domain.TagOxidationProducts); hit {
		t.Fatalf("other tag must miss")
	}
}

func TestSemanticCache_RejectsCorruptContent(t *testing.T) {
	ctx := context.Background()
	store := search.NewMemoryStore(3)
	sc := NewSemanticCache(constEmbedder{}, store)
	key := CompositeKey("Limonene", domain.TagAllergenEffects)
	_ = store.Upsert(ctx, search.Document{
		Key: key, Tag: string(domain.TagAllergenEffects),
		Content: "allergen_effects:linalool\nEFFECT: Hives", Vector: []float32{1, 0, 0},
	})
	if _, hit := sc.Get(ctx, "Limonene", domain.TagAllergenEffects); hit {
		t.Fatalf("content whose first line disagrees with the key must miss")
	}
}

func TestSemanticCache_StalePolicy(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	sc := NewSemanticCache(constEmbedder{}, search.NewMemoryStore(3))
	sc.Now = func() time.Time { return now.AddDate(0, 0, -40) }
	if err := sc.Put(ctx, "Limonene", domain.TagAllergenEffects, "old"); err != nil {
		t.Fatalf("put: %v", err)
	}
	sc.Now = func() time.Time { return now }

	if raw, hit := sc.Get(ctx, "Limonene", domain.TagAllergenEffects); !hit || raw != "old" {
		t.Fatalf("ServeStale should return expired entries")
	}
	sc.Policy = StaleAsMiss
	if _, hit := sc.Get(ctx, "Limonene", domain.TagAllergenEffects); hit {
		t.Fatalf("StaleAsMiss should miss on expired entries")
	}
}

func TestSemanticCache_ErrorsAreMisses(t *testing.T) {
	ctx := context.Background()
	sc := NewSemanticCache(failingEmbedder{}, search.NewMemoryStore(0))
	if _, hit := sc.Get(ctx, "Limonene", domain.TagAllergenEffects); hit {
		t.Fatalf("embedder error must be a miss")
	}
	if err := sc.Put(ctx, "Limonene", domain.TagAllergenEffects, "x"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("want ErrCacheUnavailable, got %v", err)
	}

	sc = NewSemanticCache(constEmbedder{}, failingStore{})
	if _, hit := sc.Get(ctx, "Limonene", domain.TagAllergenEffects); hit {
		t.Fatalf("store error must be a miss")
	}

	var empty SemanticCache
	if _, hit := empty.Get(ctx, "x", domain.TagAllergenEffects); hit {
		t.Fatalf("unconfigured cache must miss")
	}
}

func TestSemanticCache_SQLBackend(t *testing.T) {
	ctx := context.Background()
	db := newCacheDB(t)
	sc := NewSemanticCache(search.NewHashEmbedder(), search.NewSQLStore(db))
	if err := sc.Put(ctx, "Limonene", domain.TagOxidationProducts, "PRODUCT: Limonene oxide"); err != nil {
		t.Fatalf("put: %v", err)
	}
	row, err := repo.GetSemanticEntry(ctx, db, "oxidation_products:limonene")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if row.Content != "oxidation_products:limonene\nPRODUCT: Limonene oxide" || row.TTLDays != DefaultTTLDays {
		t.Fatalf("unexpected row: %+v", row)
	}
	raw, hit := sc.Get(ctx, "limonene", domain.TagOxidationProducts)
	if !hit || raw != "PRODUCT: Limonene oxide" {
		t.Fatalf("hit=%v raw=%q", hit, raw)
	}
}
