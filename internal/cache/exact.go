// Package cache holds the two local knowledge tiers consulted before any
// generative search: the exact cache of normalized records keyed by chemical
// identity, and the semantic cache of raw responses keyed by subject and tag.
package cache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
	"github.com/tbourn/allergen-intel-backend/internal/repo"
)

var (
	// ErrIdentityUnresolved is returned when storing against an identity that
	// has not been persisted yet.
	ErrIdentityUnresolved = errors.New("cache: identity unresolved")
	// ErrCacheUnavailable wraps storage failures of either tier.
	ErrCacheUnavailable = errors.New("cache: unavailable")
)

// Records carries the payload of one data kind. Only the field matching the
// kind is meaningful.
type Records struct {
	SideEffects       []domain.SideEffect
	OxidationProducts []string
}

// Len returns the number of records for kind.
func (r Records) Len(kind domain.DataKind) int {
	if kind == domain.KindOxidationProducts {
		return len(r.OxidationProducts)
	}
	return len(r.SideEffects)
}

// ExactCache answers from persisted, normalized records.
type ExactCache struct {
	DB *gorm.DB
}

// NewExactCache wraps db.
func NewExactCache(db *gorm.DB) *ExactCache { return &ExactCache{DB: db} }

// Lookup returns the stored records of kind for identity. A hit means at
// least one record exists. An unresolved identity is always a miss.
func (c *ExactCache) Lookup(ctx context.Context, id *domain.ChemicalIdentity, kind domain.DataKind) (Records, bool, error) {
	if !id.Resolved() {
		return Records{}, false, nil
	}
	switch kind {
	case domain.KindOxidationProducts:
		names, hit, err := c.LookupOxidationProducts(ctx, id)
		return Records{OxidationProducts: names}, hit, err
	default:
		recs, hit, err := c.LookupSideEffects(ctx, id)
		return Records{SideEffects: recs}, hit, err
	}
}

// Store persists recs for identity and kind.
func (c *ExactCache) Store(ctx context.Context, id *domain.ChemicalIdentity, kind domain.DataKind, recs Records) error {
	switch kind {
	case domain.KindOxidationProducts:
		_, err := c.StoreOxidationProducts(ctx, id, recs.OxidationProducts)
		return err
	default:
		_, err := c.StoreSideEffects(ctx, id, recs.SideEffects)
		return err
	}
}

// LookupSideEffects returns the persisted side effects of identity.
func (c *ExactCache) LookupSideEffects(ctx context.Context, id *domain.ChemicalIdentity) ([]domain.SideEffect, bool, error) {
	if !id.Resolved() {
		return nil, false, nil
	}
	recs, err := repo.ListSideEffects(ctx, c.DB, id.ID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: list side effects: %v", ErrCacheUnavailable, err)
	}
	return recs, len(recs) > 0, nil
}

// StoreSideEffects replaces the identity's side effects with recs. Records
// sharing an effect label keep the first occurrence, so storing the same
// list twice leaves the same set.
func (c *ExactCache) StoreSideEffects(ctx context.Context, id *domain.ChemicalIdentity, recs []domain.SideEffect) ([]domain.SideEffect, error) {
	if !id.Resolved() {
		return nil, ErrIdentityUnresolved
	}
	rows, err := repo.ReplaceSideEffects(ctx, c.DB, id.ID, recs)
	if err != nil {
		return nil, fmt.Errorf("%w: replace side effects: %v", ErrCacheUnavailable, err)
	}
	return rows, nil
}

// LookupOxidationProducts reads the identity's oxidation product list from
// storage.
func (c *ExactCache) LookupOxidationProducts(ctx context.Context, id *domain.ChemicalIdentity) ([]string, bool, error) {
	if !id.Resolved() {
		return nil, false, nil
	}
	row, err := repo.GetChemical(ctx, c.DB, id.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: get chemical: %v", ErrCacheUnavailable, err)
	}
	names := []string(row.OxidationProducts)
	return names, len(names) > 0, nil
}

// StoreOxidationProducts merges names into the identity's list and mirrors
// the stored list onto id.
func (c *ExactCache) StoreOxidationProducts(ctx context.Context, id *domain.ChemicalIdentity, names []string) ([]string, error) {
	if !id.Resolved() {
		return nil, ErrIdentityUnresolved
	}
	merged, err := repo.MergeOxidationProducts(ctx, c.DB, id.ID, names)
	if err != nil {
		return nil, fmt.Errorf("%w: merge oxidation products: %v", ErrCacheUnavailable, err)
	}
	id.OxidationProducts = merged
	return merged, nil
}
