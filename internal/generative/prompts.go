package generative

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

// maxPromptSynonyms caps the alternative names added to a side-effects prompt.
const maxPromptSynonyms = 5

// Prompt is one system/user message pair sent to the search model.
type Prompt struct {
	Kind   string
	System string
	User   string
}

const sideEffectsSystem = `You are a medical researcher specializing in allergen identification and side effect documentation.

**CRITICAL MEDICAL DISCLAIMER REQUIREMENTS:**
- This information is for research purposes only
- All findings must cite authoritative medical sources
- Never provide medical advice or diagnoses
- Always recommend consulting healthcare professionals

**RESEARCH STANDARDS:**
1. Prioritize peer-reviewed medical literature
2. Search PubMed, medical journals, and clinical databases
3. Focus on evidence-based findings with source attribution
4. Include prevalence rates and severity classifications when available
5. Distinguish between immediate and delayed reactions
6. Note population-specific variations (age, gender, genetics)

**Response Format for Each Side Effect:**
EFFECT: [specific reaction name]
SEVERITY: [MILD/MODERATE/SEVERE/LIFE_THREATENING]
PREVALENCE: [percentage or "rare/common/very common"]
POPULATION: [affected groups - general/sensitive individuals/specific demographics]
MECHANISM: [how the reaction occurs - IgE-mediated/contact sensitivity/irritant/etc]
ONSET: [immediate/hours/days after exposure]
AREAS: [body areas affected]
EVIDENCE: [study details, sample size, methodology]
SOURCE: [exact citation with DOI if available]

**Source Quality Priorities:**
1. Peer-reviewed medical journals
2. Clinical trial data
3. Government health agencies (FDA, EMA, etc)
4. Professional medical associations
5. Established medical databases

Exclude anecdotal reports, social media, and non-medical sources.`

const sideEffectsUser = `Research documented side effects and allergic reactions for %[1]s:

**Chemical Identifiers:**
- Common Name: %[1]s
- IUPAC Name: %[2]s
- CAS Number: %[3]s
- Molecular Formula: %[4]s
- PubChem CID: %[5]s

**Search Requirements:**
1. Focus on allergic reactions and sensitization
2. Include both immediate and delayed hypersensitivity
3. Search for oxidation product allergies (e.g., "%[6]s hydroperoxide", "%[6]s oxide")
4. Look for contact dermatitis and respiratory reactions
5. Include cross-reactivity with similar compounds

**Priority Search Terms:**
- "allergic contact dermatitis"
- "sensitization"
- "hypersensitivity"
- "occupational allergy"
- "fragrance allergy" (if applicable)
- "cosmetic allergy" (if applicable)

**Key Research Areas:**
- Dermatology and contact dermatitis literature
- Occupational health studies
- Cosmetic ingredient safety data
- Food allergy research (if applicable)
- Environmental health studies

Report only scientifically documented effects with proper source attribution.
`

const oxidationSystem = `You are a chemical oxidation expert specializing in allergen formation.

**CRITICAL REQUIREMENTS:**
1. Search ONLY for peer-reviewed scientific sources
2. Focus on oxidation products that cause allergic reactions
3. Include IUPAC names and CAS numbers when available
4. Verify information from multiple authoritative sources
5. Exclude speculative or unverified claims

**Response Format:**
For each oxidation product found:
PRODUCT: [exact chemical name]
CAS: [CAS number if available]
FORMED_BY: [oxidation mechanism]
ALLERGENICITY: [confirmed/suspected/unknown]
SOURCE: [research paper or database]`

const oxidationUser = `Search for oxidation products of %[1]s (CAS: %[2]s, SMILES: %[3]s) that are known allergens.

**Search Focus:**
- Air oxidation products (exposure to oxygen)
- Light-induced oxidation (UV/visible light)
- Heat-induced oxidation products
- Products formed during storage or processing

**Priority Sources:**
- PubMed/NCBI research papers
- Chemical safety databases (ECHA, EPA)
- Peer-reviewed dermatology journals
- Contact dermatitis research

**Key Terms to Include:**
- "oxidation products"
- "allergenic potential"
- "contact sensitization"
- "dermatitis"
- "%[4]s hydroperoxide"
- "%[4]s oxide"

Only report oxidation products with documented evidence of allergenic properties.
`

const ingredientsSystem = `You are a product ingredient researcher. Find the COMPLETE ingredient list for consumer products from official sources.

Response Format:
INGREDIENT: [exact chemical name]
INGREDIENT: [exact chemical name]`

const ingredientsUser = `Find the complete ingredient list for: "%s"
Use INCI names for cosmetics. List each ingredient starting with "INGREDIENT:"`

// SideEffectsPrompt asks for documented reactions to id.
func SideEffectsPrompt(id *domain.ChemicalIdentity) Prompt {
	name := id.CommonName
	cid := "unknown"
	if id.ExternalID != nil {
		cid = strconv.FormatInt(*id.ExternalID, 10)
	}

	var b strings.Builder
	fmt.Fprintf(&b, sideEffectsUser,
		name, orUnknown(id.IUPACName), orUnknown(id.CASNumber), orUnknown(id.MolecularFormula),
		cid, strings.ToLower(name))

	if n := min(len(id.Synonyms), maxPromptSynonyms); n > 0 {
		b.WriteString("\n**Alternative Names to Search:**\n")
		for _, s := range id.Synonyms[:n] {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	return Prompt{Kind: string(domain.KindSideEffects), System: sideEffectsSystem, User: b.String()}
}

// OxidationPrompt asks for allergenic oxidation products of id.
func OxidationPrompt(id *domain.ChemicalIdentity) Prompt {
	return Prompt{
		Kind:   string(domain.KindOxidationProducts),
		System: oxidationSystem,
		User: fmt.Sprintf(oxidationUser,
			id.CommonName, orUnknown(id.CASNumber), orUnknown(id.Structure), strings.ToLower(id.CommonName)),
	}
}

// IngredientsPrompt asks for the ingredient list of a consumer product.
func IngredientsPrompt(product string) Prompt {
	return Prompt{
		Kind:   "INGREDIENTS",
		System: ingredientsSystem,
		User:   fmt.Sprintf(ingredientsUser, product),
	}
}

// PromptFor selects the prompt builder for kind.
func PromptFor(kind domain.DataKind, id *domain.ChemicalIdentity) Prompt {
	if kind == domain.KindOxidationProducts {
		return OxidationPrompt(id)
	}
	return SideEffectsPrompt(id)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
