package search

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
	"github.com/tbourn/allergen-intel-backend/internal/repo"
)

// SQLStore persists documents in the semantic_entries table. Candidates are
// filtered by tag in SQL and scored in process.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps db. The semantic_entries table must already be migrated.
func NewSQLStore(db *gorm.DB) *SQLStore { return &SQLStore{db: db} }

// Upsert writes doc, overwriting the entry with the same key.
func (s *SQLStore) Upsert(ctx context.Context, doc Document) error {
	return repo.UpsertSemanticEntry(ctx, s.db, &domain.SemanticEntry{
		CacheKey:  doc.Key,
		Tag:       doc.Tag,
		Subject:   doc.Subject,
		Content:   doc.Content,
		Embedding: doc.Vector,
		CachedAt:  doc.CachedAt,
		TTLDays:   doc.TTLDays,
	})
}

// Similar loads the candidates for q.Tag and ranks them.
func (s *SQLStore) Similar(ctx context.Context, q Query) ([]Match, error) {
	rows, err := repo.ListSemanticEntries(ctx, s.db, q.Tag)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, Document{
			Key:      r.CacheKey,
			Tag:      r.Tag,
			Subject:  r.Subject,
			Content:  r.Content,
			Vector:   r.Embedding,
			CachedAt: r.CachedAt,
			TTLDays:  r.TTLDays,
		})
	}
	return rank(docs, q), nil
}
