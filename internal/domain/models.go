// Package domain defines the persistence models for chemical identities,
// documented side effects and semantic cache entries. These types are mapped
// with GORM and form the core data layer of the allergen intelligence service.
package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ChemicalIdentity is the canonical, deduplicated representation of one
// chemical compound. It is keyed primarily by the registry compound id and
// secondarily by its case-insensitive common name.
//
// Fields:
//   - ID: stable UUID primary key (char(36)); empty until persisted.
//   - ExternalID: registry compound id (PubChem CID); unique when present.
//   - CommonName: the name the identity was first resolved under.
//   - NameKey: normalized CommonName used for case-insensitive uniqueness.
//   - Synonyms / OxidationProducts: JSON encoded name lists.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type ChemicalIdentity struct {
	ID                 string                      `json:"id"                         gorm:"type:char(36);primaryKey"`
	ExternalID         *int64                      `json:"external_id,omitempty"      gorm:"uniqueIndex:ux_chemical_external_id"`
	CommonName         string                      `json:"common_name"                gorm:"type:varchar(255);not null"`
	NameKey            string                      `json:"-"                          gorm:"type:varchar(255);not null;uniqueIndex:ux_chemical_name_key"`
	IUPACName          string                      `json:"iupac_name,omitempty"       gorm:"type:text"`
	CASNumber          string                      `json:"cas_number,omitempty"       gorm:"type:varchar(32);index"`
	MolecularFormula   string                      `json:"molecular_formula,omitempty" gorm:"type:varchar(128)"`
	MolecularWeight    *float64                    `json:"molecular_weight,omitempty"`
	Structure          string                      `json:"structure,omitempty"        gorm:"type:text"`
	InChI              string                      `json:"inchi,omitempty"            gorm:"type:text"`
	InChIKey           string                      `json:"inchi_key,omitempty"        gorm:"type:varchar(64)"`
	Synonyms           datatypes.JSONSlice[string] `json:"synonyms"`
	OxidationProducts  datatypes.JSONSlice[string] `json:"oxidation_products"`
	ChemicalFamily     string                      `json:"chemical_family,omitempty"  gorm:"type:varchar(128)"`
	IsOxidationProduct bool                        `json:"is_oxidation_product"       gorm:"not null;default:false"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

// TableName returns the database table name for ChemicalIdentity.
func (ChemicalIdentity) TableName() string { return "chemical_identities" }

// Resolved reports whether the identity has a stable persistence key.
func (c *ChemicalIdentity) Resolved() bool {
	return c != nil && strings.TrimSpace(c.ID) != ""
}

// SourceReference is best-effort citation metadata extracted from a search
// response.
type SourceReference struct {
	Title           string     `json:"title,omitempty"`
	URL             string     `json:"url,omitempty"`
	DOI             string     `json:"doi,omitempty"`
	StudyType       string     `json:"study_type,omitempty"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	Citation        string     `json:"citation,omitempty"`
}

// SideEffect is one documented reaction attributed to a chemical identity.
// Records are written only by the response parser and are replaced as a set
// when the exact cache stores a fresh result for the same chemical; a record
// keeps its ID across stores while its effect key is unchanged.
type SideEffect struct {
	ID                     string                               `json:"id"                     gorm:"type:char(36);primaryKey"`
	ChemicalID             string                               `json:"chemical_id"            gorm:"type:char(36);not null;index;uniqueIndex:ux_side_effect_chemical_effect,priority:1"`
	Effect                 string                               `json:"effect"                 gorm:"type:varchar(255);not null"`
	EffectKey              string                               `json:"-"                      gorm:"type:varchar(255);not null;uniqueIndex:ux_side_effect_chemical_effect,priority:2"`
	Description            string                               `json:"description,omitempty"  gorm:"type:text"`
	Severity               Severity                             `json:"severity"               gorm:"type:varchar(32);not null;default:'MODERATE'"`
	PrevalenceRate         *float64                             `json:"prevalence_rate,omitempty"`
	Population             string                               `json:"population,omitempty"   gorm:"type:text"`
	ExposureRoute          string                               `json:"exposure_route,omitempty" gorm:"type:text"`
	Onset                  string                               `json:"onset,omitempty"        gorm:"type:varchar(255)"`
	Dosage                 string                               `json:"dosage,omitempty"       gorm:"type:varchar(255)"`
	AffectedBodyAreas      datatypes.JSONSlice[string]          `json:"affected_body_areas"`
	StudyEvidence          string                               `json:"study_evidence,omitempty" gorm:"type:text"`
	Sources                datatypes.JSONSlice[SourceReference] `json:"sources"`
	VerificationStatus     VerificationStatus                   `json:"verification_status"    gorm:"type:varchar(16);not null;default:'UNVERIFIED'"`
	ConfidenceScore        int                                  `json:"confidence_score"       gorm:"not null;check:confidence_score BETWEEN 0 AND 100"`
	IsFromOxidationProduct bool                                 `json:"is_from_oxidation_product"`
	SpecificChemicalForm   string                               `json:"specific_chemical_form,omitempty" gorm:"type:varchar(255)"`
	StudyDate              *time.Time                           `json:"study_date,omitempty"`
	LastVerified           *time.Time                           `json:"last_verified,omitempty"`
	CreatedAt              time.Time                            `json:"created_at"`

	// Chemical is the owning identity. Side effects are cascade-deleted if
	// the identity is removed by an administrator.
	Chemical ChemicalIdentity `json:"-" gorm:"foreignKey:ChemicalID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SideEffect.
func (SideEffect) TableName() string { return "side_effects" }

// SemanticEntry is one raw search response held by the SQL-backed semantic
// cache. Content is prefixed with CacheKey on its first line.
type SemanticEntry struct {
	ID        string                       `json:"id"        gorm:"type:char(36);primaryKey"`
	CacheKey  string                       `json:"cache_key" gorm:"type:varchar(512);not null;uniqueIndex:ux_semantic_cache_key"`
	Tag       string                       `json:"tag"       gorm:"type:varchar(64);not null;index"`
	Subject   string                       `json:"subject"   gorm:"type:varchar(255);not null"`
	Content   string                       `json:"content"   gorm:"type:text;not null"`
	Embedding datatypes.JSONSlice[float32] `json:"-"`
	CachedAt  time.Time                    `json:"cached_at" gorm:"not null;index"`
	TTLDays   int                          `json:"ttl_days"  gorm:"not null;default:30"`
}

// TableName returns the database table name for SemanticEntry.
func (SemanticEntry) TableName() string { return "semantic_entries" }

// NormalizeName trims, collapses inner whitespace and lower-cases a chemical
// name. The result is used as the case-insensitive identity key.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
