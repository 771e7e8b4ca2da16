package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

// UpsertSemanticEntry inserts e or, when an entry with the same cache key
// exists, overwrites its content, embedding and metadata (last write wins).
func UpsertSemanticEntry(ctx context.Context, db *gorm.DB, e *domain.SemanticEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"tag", "subject", "content", "embedding", "cached_at", "ttl_days"}),
	}).Create(e).Error
}

// GetSemanticEntry fetches an entry by its exact composite key.
func GetSemanticEntry(ctx context.Context, db *gorm.DB, cacheKey string) (*domain.SemanticEntry, error) {
	var e domain.SemanticEntry
	if err := db.WithContext(ctx).Where("cache_key = ?", cacheKey).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// ListSemanticEntries returns every entry, or only those carrying tag when it
// is non-empty. Results are ordered newest first.
func ListSemanticEntries(ctx context.Context, db *gorm.DB, tag string) ([]domain.SemanticEntry, error) {
	var out []domain.SemanticEntry
	q := db.WithContext(ctx).Order("cached_at DESC, cache_key ASC")
	if tag != "" {
		q = q.Where("tag = ?", tag)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountSemanticEntries returns the number of stored entries.
func CountSemanticEntries(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.SemanticEntry{}).Count(&total).Error
	return total, err
}
