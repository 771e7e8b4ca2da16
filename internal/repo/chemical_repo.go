// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChemicalIdentity model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only persistence
// and query composition.
//
// Error semantics:
//   - When an identity is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - A unique-index violation on create is reported as ErrDuplicate.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a row with the same unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// CreateChemical inserts c with a fresh UUID and a NameKey derived from its
// common name. It returns ErrDuplicate when another identity already owns the
// same name key or external id.
func CreateChemical(ctx context.Context, db *gorm.DB, c *domain.ChemicalIdentity) (*domain.ChemicalIdentity, error) {
	now := time.Now().UTC()
	c.ID = uuid.NewString()
	c.NameKey = domain.NormalizeName(c.CommonName)
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Synonyms == nil {
		c.Synonyms = []string{}
	}
	if c.OxidationProducts == nil {
		c.OxidationProducts = []string{}
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		c.ID = ""
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// GetChemical fetches an identity by primary key.
func GetChemical(ctx context.Context, db *gorm.DB, id string) (*domain.ChemicalIdentity, error) {
	var c domain.ChemicalIdentity
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindChemicalByName looks an identity up by its case-insensitive common name.
func FindChemicalByName(ctx context.Context, db *gorm.DB, name string) (*domain.ChemicalIdentity, error) {
	key := domain.NormalizeName(name)
	if key == "" {
		return nil, ErrNotFound
	}
	var c domain.ChemicalIdentity
	if err := db.WithContext(ctx).Where("name_key = ?", key).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindChemicalByExternalID looks an identity up by registry compound id.
func FindChemicalByExternalID(ctx context.Context, db *gorm.DB, externalID int64) (*domain.ChemicalIdentity, error) {
	var c domain.ChemicalIdentity
	if err := db.WithContext(ctx).Where("external_id = ?", externalID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindChemicalBySynonym returns the oldest identity listing name among its
// synonyms (case-insensitive). Synonym lists may overlap across identities.
func FindChemicalBySynonym(ctx context.Context, db *gorm.DB, name string) (*domain.ChemicalIdentity, error) {
	key := domain.NormalizeName(name)
	if key == "" {
		return nil, ErrNotFound
	}
	var c domain.ChemicalIdentity
	err := db.WithContext(ctx).
		Where("EXISTS (SELECT 1 FROM json_each(chemical_identities.synonyms) WHERE lower(json_each.value) = ?)", key).
		Order("created_at ASC, id ASC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AddChemicalSynonym appends alias to the identity's synonym list unless an
// equal entry (case-insensitive) is already present.
func AddChemicalSynonym(ctx context.Context, db *gorm.DB, id, alias string) error {
	alias = strings.Join(strings.Fields(alias), " ")
	if alias == "" {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.ChemicalIdentity
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		merged, changed := MergeNames(c.Synonyms, []string{alias})
		if !changed {
			return nil
		}
		return tx.Model(&domain.ChemicalIdentity{}).Where("id = ?", id).
			Updates(map[string]any{"synonyms": datatypes.JSONSlice[string](merged), "updated_at": time.Now().UTC()}).Error
	})
}

// MergeOxidationProducts merges names into the identity's oxidation product
// list and returns the stored list.
func MergeOxidationProducts(ctx context.Context, db *gorm.DB, id string, names []string) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.ChemicalIdentity
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		merged, changed := MergeNames(c.OxidationProducts, names)
		out = merged
		if !changed {
			return nil
		}
		return tx.Model(&domain.ChemicalIdentity{}).Where("id = ?", id).
			Updates(map[string]any{"oxidation_products": datatypes.JSONSlice[string](merged), "updated_at": time.Now().UTC()}).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountChemicals returns the number of persisted identities.
func CountChemicals(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.ChemicalIdentity{}).Count(&total).Error
	return total, err
}

// ListChemicalsPage returns identities ordered by common name.
func ListChemicalsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ChemicalIdentity, error) {
	var out []domain.ChemicalIdentity
	err := db.WithContext(ctx).
		Order("name_key ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MergeNames appends the entries of add that are not already in base,
// comparing case-insensitively. Blank entries are skipped. The second result
// reports whether anything was appended.
func MergeNames(base, add []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, n := range base {
		k := domain.NormalizeName(n)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	changed := false
	for _, n := range add {
		n = strings.TrimSpace(n)
		k := domain.NormalizeName(n)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
		changed = true
	}
	return out, changed
}

// isUniqueViolation detects UNIQUE constraint failures. glebarez/sqlite often
// returns plain-text errors instead of gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
