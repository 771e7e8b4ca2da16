// Package risk derives risk levels, assessments and rule-based warnings from
// side-effect records. Everything here is pure and deterministic.
package risk

import (
	"fmt"
	"strings"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

// Level is a coarse risk classification.
type Level string

const (
	Unknown  Level = "UNKNOWN"
	Low      Level = "LOW"
	Moderate Level = "MODERATE"
	High     Level = "HIGH"
)

const (
	OxidationAlert   = "OXIDATION ALERT: This chemical forms allergenic oxidation products when exposed to air or light."
	SevereAlert      = "SEVERE REACTION RISK: This chemical has been associated with severe allergic reactions."
	RespiratoryAlert = "RESPIRATORY ALERT: May cause breathing difficulties or respiratory sensitization."

	Disclaimer = "MEDICAL DISCLAIMER: This information is for educational and research purposes only. " +
		"It does not constitute medical advice, diagnosis, or treatment recommendations. " +
		"Always consult qualified healthcare professionals for medical decisions."
)

var respiratoryKeywords = []string{"respiratory", "lung", "airway", "bronch", "breath", "nasal", "asthma"}

// Assessment summarises a set of side-effect records.
type Assessment struct {
	Level              Level   `json:"risk_level"`
	MaxSeverityOrdinal int     `json:"max_severity_level"`
	AveragePrevalence  float64 `json:"average_prevalence"`
	PrevalenceSamples  int     `json:"prevalence_samples"`
	TotalCount         int     `json:"total_reactions_found"`
}

// LevelOf classifies records by their most severe entry.
func LevelOf(records []domain.SideEffect) Level {
	if len(records) == 0 {
		return Unknown
	}
	top := maxSeverity(records)
	switch {
	case top >= domain.SeveritySevere.Ordinal():
		return High
	case top >= domain.SeverityModerate.Ordinal():
		return Moderate
	default:
		return Low
	}
}

// Assess computes the assessment of records. Prevalence is averaged over
// records that carry one; records without are ignored, not counted as zero.
func Assess(records []domain.SideEffect) Assessment {
	a := Assessment{
		Level:              LevelOf(records),
		MaxSeverityOrdinal: maxSeverity(records),
		TotalCount:         len(records),
	}
	var sum float64
	for _, r := range records {
		if r.PrevalenceRate == nil {
			continue
		}
		sum += *r.PrevalenceRate
		a.PrevalenceSamples++
	}
	if a.PrevalenceSamples > 0 {
		a.AveragePrevalence = sum / float64(a.PrevalenceSamples)
	}
	return a
}

// Warnings returns the alerts that apply to id and records, in fixed order.
func Warnings(id *domain.ChemicalIdentity, records []domain.SideEffect) []string {
	out := []string{}
	if id != nil && len(id.OxidationProducts) > 0 {
		out = append(out, OxidationAlert)
	}
	if maxSeverity(records) >= domain.SeveritySevere.Ordinal() {
		out = append(out, SevereAlert)
	}
	if anyRespiratory(records) {
		out = append(out, RespiratoryAlert)
	}
	return out
}

// ProductRisk rates a product from its analysed ingredients.
func ProductRisk(highCount, total int) Level {
	switch {
	case highCount > 0:
		return High
	case total > 5:
		return Moderate
	case total > 0:
		return Low
	default:
		return Unknown
	}
}

// BatchRisk rates a batch: HIGH when any ingredient is high risk, LOW when
// anything was analysed, UNKNOWN otherwise.
func BatchRisk(highCount, total int) Level {
	switch {
	case highCount > 0:
		return High
	case total > 0:
		return Low
	default:
		return Unknown
	}
}

// ProductRecommendations returns consumer guidance for a product analysis.
func ProductRecommendations(highCount, total int) []string {
	var out []string
	if highCount == 0 {
		out = append(out,
			"No high-risk allergens detected in this formulation",
			"Perform patch test before first use if you have sensitive skin",
		)
	} else {
		out = append(out,
			fmt.Sprintf("This product contains %d high-risk allergen(s)", highCount),
			"Consult with a dermatologist before use if you have known allergies",
			"Perform a patch test on inner arm for 48 hours before facial application",
		)
	}
	if total > 15 {
		out = append(out, "Complex formulation with many ingredients - monitor for reactions")
	}
	return append(out, "Always check individual ingredient sensitivities before use")
}

func maxSeverity(records []domain.SideEffect) int {
	top := 0
	for _, r := range records {
		if o := r.Severity.Ordinal(); o > top {
			top = o
		}
	}
	return top
}

func anyRespiratory(records []domain.SideEffect) bool {
	for _, r := range records {
		for _, area := range r.AffectedBodyAreas {
			low := strings.ToLower(area)
			for _, kw := range respiratoryKeywords {
				if strings.Contains(low, kw) {
					return true
				}
			}
		}
	}
	return false
}
