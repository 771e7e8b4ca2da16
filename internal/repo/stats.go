// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

// ChemicalsStats returns the number of persisted identities and the greatest
// UpdatedAt among them. When the table is empty the count is 0 and
// maxUpdatedAt is nil.
func ChemicalsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ChemicalIdentity{})
	return latest(q, "updated_at")
}

// SideEffectsStats returns the number of side effects of a chemical and the
// newest CreatedAt among them.
func SideEffectsStats(ctx context.Context, db *gorm.DB, chemicalID string) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.SideEffect{}).Where("chemical_id = ?", chemicalID)
	return latest(q, "created_at")
}

func latest(q *gorm.DB, column string) (int64, *time.Time, error) {
	var count int64
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Order + Limit instead of MAX(): SQLite returns MAX() over DATETIME as TEXT.
	var row struct {
		UpdatedAt time.Time
		CreatedAt time.Time
	}
	if err := q.Session(&gorm.Session{}).Select(column).Order(column + " DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	if column == "created_at" {
		return count, &row.CreatedAt, nil
	}
	return count, &row.UpdatedAt, nil
}
