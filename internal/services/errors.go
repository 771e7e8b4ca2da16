// Package services defines the business logic for chemical resolution,
// tiered knowledge fetches and allergen analysis. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import "errors"

var (
	// ErrEmptyName is returned when a chemical name is blank after trimming.
	ErrEmptyName = errors.New("chemical name is empty")

	// ErrChemicalNotFound indicates that neither local storage nor the
	// registry knows the requested chemical.
	ErrChemicalNotFound = errors.New("chemical not found")

	// ErrRegistryUnavailable is returned when the registry could not be
	// queried (network, upstream errors, invalid records).
	ErrRegistryUnavailable = errors.New("chemical registry unavailable")

	// ErrTooManyIngredients is returned when a batch exceeds the configured
	// maximum size.
	ErrTooManyIngredients = errors.New("too many ingredients")

	// ErrEmptyBatch is returned when a batch holds no non-blank names.
	ErrEmptyBatch = errors.New("ingredient list is empty")

	// ErrEmptyProduct is returned when a product name is blank.
	ErrEmptyProduct = errors.New("product name is empty")
)
