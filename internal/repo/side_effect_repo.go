package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

// ListSideEffects returns the side effects recorded for a chemical, most
// severe first and then by label.
func ListSideEffects(ctx context.Context, db *gorm.DB, chemicalID string) ([]domain.SideEffect, error) {
	var out []domain.SideEffect
	err := db.WithContext(ctx).
		Where("chemical_id = ?", chemicalID).
		Order(`CASE severity
			WHEN 'LIFE_THREATENING' THEN 4
			WHEN 'SEVERE' THEN 3
			WHEN 'MODERATE' THEN 2
			WHEN 'MILD' THEN 1
			ELSE 0 END DESC`).
		Order("effect_key ASC").
		Find(&out).Error
	return out, err
}

// CountSideEffects returns how many side effects are stored for a chemical.
func CountSideEffects(ctx context.Context, db *gorm.DB, chemicalID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.SideEffect{}).Where("chemical_id = ?", chemicalID).Count(&total).Error
	return total, err
}

// ReplaceSideEffects atomically swaps the stored side effects of a chemical
// for recs. Records sharing an effect key keep the first occurrence. A row
// whose effect key is already stored keeps its ID and CreatedAt; keys no
// longer present are removed. The persisted rows are returned.
func ReplaceSideEffects(ctx context.Context, db *gorm.DB, chemicalID string, recs []domain.SideEffect) ([]domain.SideEffect, error) {
	now := time.Now().UTC()
	rows := make([]domain.SideEffect, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		key := domain.NormalizeName(r.Effect)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		r.ID = uuid.NewString()
		r.ChemicalID = chemicalID
		r.EffectKey = key
		r.Chemical = domain.ChemicalIdentity{}
		if r.AffectedBodyAreas == nil {
			r.AffectedBodyAreas = []string{}
		}
		if r.Sources == nil {
			r.Sources = []domain.SourceReference{}
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		rows = append(rows, r)
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []domain.SideEffect
		if err := tx.Select("id", "effect_key", "created_at").
			Where("chemical_id = ?", chemicalID).
			Find(&existing).Error; err != nil {
			return err
		}
		prior := make(map[string]domain.SideEffect, len(existing))
		for _, e := range existing {
			prior[e.EffectKey] = e
		}
		keys := make([]string, 0, len(rows))
		for i := range rows {
			if e, ok := prior[rows[i].EffectKey]; ok {
				rows[i].ID = e.ID
				rows[i].CreatedAt = e.CreatedAt
			}
			keys = append(keys, rows[i].EffectKey)
		}

		stale := tx.Where("chemical_id = ?", chemicalID)
		if len(keys) > 0 {
			stale = stale.Where("effect_key NOT IN ?", keys)
		}
		if err := stale.Delete(&domain.SideEffect{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Omit("Chemical").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
