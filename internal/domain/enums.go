package domain

import "strings"

// Severity is the ordered clinical severity of a documented reaction.
type Severity string

const (
	SeverityMild            Severity = "MILD"
	SeverityModerate        Severity = "MODERATE"
	SeveritySevere          Severity = "SEVERE"
	SeverityLifeThreatening Severity = "LIFE_THREATENING"
)

// Ordinal returns the position of s in MILD < MODERATE < SEVERE <
// LIFE_THREATENING, starting at 1. Unknown values return 0.
func (s Severity) Ordinal() int {
	switch s {
	case SeverityMild:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	case SeverityLifeThreatening:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool { return s.Ordinal() > 0 }

// AtLeast reports whether s ranks at or above other.
func (s Severity) AtLeast(other Severity) bool { return s.Ordinal() >= other.Ordinal() }

// VerificationStatus records whether a side effect is backed by a parsed
// source reference.
type VerificationStatus string

const (
	Unverified VerificationStatus = "UNVERIFIED"
	Verified   VerificationStatus = "VERIFIED"
)

// DataKind selects which kind of knowledge a fetch produces.
type DataKind string

const (
	KindSideEffects       DataKind = "SIDE_EFFECTS"
	KindOxidationProducts DataKind = "OXIDATION_PRODUCTS"
)

// ParseDataKind accepts the canonical names and their lower/kebab variants.
func ParseDataKind(s string) (DataKind, bool) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case string(KindSideEffects):
		return KindSideEffects, true
	case string(KindOxidationProducts):
		return KindOxidationProducts, true
	}
	return "", false
}

// Tag returns the semantic cache tag that stores raw responses of kind k.
func (k DataKind) Tag() CacheTag {
	if k == KindOxidationProducts {
		return TagOxidationProducts
	}
	return TagAllergenEffects
}

// CacheTag namespaces semantic cache entries.
type CacheTag string

const (
	TagAllergenEffects   CacheTag = "allergen_effects"
	TagOxidationProducts CacheTag = "oxidation_products"
	TagRegistryCompound  CacheTag = "registry_compound"
	TagRegistrySynonyms  CacheTag = "registry_synonyms"
)
