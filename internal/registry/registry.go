// Package registry resolves consumer-facing chemical names against an
// external compound registry (PubChem) and returns canonical identifiers.
package registry

import (
	"context"
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ErrNotFound is returned when the registry has no compound for a name.
var ErrNotFound = errors.New("registry: compound not found")

// ErrInvalidRecord is returned when the registry answered with data that
// fails validation.
var ErrInvalidRecord = errors.New("registry: invalid record")

// Record is the canonical identification the registry returns for a name.
type Record struct {
	ExternalID       int64    `json:"external_id"       validate:"required,gt=0"`
	IUPACName        string   `json:"iupac_name"        validate:"max=2048"`
	CASNumber        string   `json:"cas_number"        validate:"omitempty,cas"`
	MolecularFormula string   `json:"molecular_formula" validate:"max=128"`
	MolecularWeight  *float64 `json:"molecular_weight"  validate:"omitempty,gt=0"`
	Structure        string   `json:"structure"`
	InChI            string   `json:"inchi"             validate:"omitempty,startswith=InChI="`
	InChIKey         string   `json:"inchi_key"         validate:"omitempty,len=27"`
	Synonyms         []string `json:"synonyms"          validate:"max=10,dive,required"`
}

// Resolver looks up a name in a chemical registry.
type Resolver interface {
	Lookup(ctx context.Context, name string) (*Record, error)
}

// casRE matches CAS registry numbers such as 5989-27-5.
var casRE = regexp.MustCompile(`^\d{2,7}-\d{2}-\d$`)

// IsCAS reports whether s is shaped like a CAS registry number.
func IsCAS(s string) bool { return casRE.MatchString(s) }

// CASFromSynonyms returns the first synonym shaped like a CAS number.
func CASFromSynonyms(synonyms []string) string {
	for _, s := range synonyms {
		if IsCAS(s) {
			return s
		}
	}
	return ""
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("cas", func(fl validator.FieldLevel) bool {
		return IsCAS(fl.Field().String())
	})
	return v
}
