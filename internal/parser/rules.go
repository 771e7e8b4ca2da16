// Package parser turns the semi-structured text returned by the generative
// search backend into typed records.
//
// The accepted grammar is a set of Rules, each naming a field and the labels
// that introduce it. Rules are compiled into one line-anchored regular
// expression, so supporting a new label spelling means editing a rule, not
// the extraction code. Recognised label forms:
//
//	LABEL: value
//	**LABEL:** value
//	**LABEL**: value
//	- LABEL: value        (also "*", "+", "•" and "1." bullets)
//	### LABEL: value
//
// Parsing is best effort: unknown lines are ignored, malformed blocks are
// skipped, and nothing in this package panics on hostile input.
package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Field identifies one labelled value inside a block.
type Field string

const (
	FieldEffect     Field = "EFFECT"
	FieldSeverity   Field = "SEVERITY"
	FieldPrevalence Field = "PREVALENCE"
	FieldPopulation Field = "POPULATION"
	FieldMechanism  Field = "MECHANISM"
	FieldOnset      Field = "ONSET"
	FieldAreas      Field = "AREAS"
	FieldEvidence   Field = "EVIDENCE"
	FieldSource     Field = "SOURCE"
	FieldDosage     Field = "DOSAGE"
	FieldForm       Field = "FORM"

	FieldProduct       Field = "PRODUCT"
	FieldCAS           Field = "CAS"
	FieldFormedBy      Field = "FORMED_BY"
	FieldAllergenicity Field = "ALLERGENICITY"

	FieldIngredient Field = "INGREDIENT"
)

// Rule maps the labels that may introduce a field onto that field. Labels
// are matched case-insensitively; spaces, underscores and hyphens inside a
// label are interchangeable.
type Rule struct {
	Field  Field
	Labels []string
}

// Block is one record's worth of labelled values. Only the first value of a
// repeated field is kept.
type Block map[Field]string

// Grammar is a compiled rule set. Blocks start at the primary field.
type Grammar struct {
	primary Field
	re      *regexp.Regexp
	byLabel map[string]Field
}

// SideEffectRules is the default grammar for side-effect responses.
var SideEffectRules = []Rule{
	{FieldEffect, []string{"EFFECT"}},
	{FieldSeverity, []string{"SEVERITY"}},
	{FieldPrevalence, []string{"PREVALENCE", "FREQUENCY", "INCIDENCE"}},
	{FieldPopulation, []string{"POPULATION", "AFFECTED POPULATION"}},
	{FieldMechanism, []string{"MECHANISM", "EXPOSURE ROUTE", "ROUTE"}},
	{FieldOnset, []string{"ONSET"}},
	{FieldAreas, []string{"AREAS", "AFFECTED AREAS", "BODY AREAS", "AFFECTED BODY AREAS"}},
	{FieldEvidence, []string{"EVIDENCE", "STUDY EVIDENCE"}},
	{FieldSource, []string{"SOURCE", "SOURCES", "REFERENCE", "CITATION"}},
	{FieldDosage, []string{"DOSAGE", "CONCENTRATION"}},
	{FieldForm, []string{"FORM", "CHEMICAL FORM", "SPECIFIC FORM"}},
}

// OxidationRules is the default grammar for oxidation-product responses.
var OxidationRules = []Rule{
	{FieldProduct, []string{"PRODUCT", "OXIDATION PRODUCT"}},
	{FieldCAS, []string{"CAS", "CAS NUMBER"}},
	{FieldFormedBy, []string{"FORMED BY", "FORMED_BY", "FORMATION"}},
	{FieldAllergenicity, []string{"ALLERGENICITY"}},
	{FieldSource, []string{"SOURCE", "SOURCES", "REFERENCE"}},
}

// IngredientRules is the default grammar for product ingredient lists.
var IngredientRules = []Rule{
	{FieldIngredient, []string{"INGREDIENT"}},
}

// Compile builds a Grammar whose blocks start at primary. primary must be
// one of the rule fields.
func Compile(primary Field, rules ...Rule) (*Grammar, error) {
	byLabel := make(map[string]Field)
	var alts []string
	hasPrimary := false
	for _, r := range rules {
		if r.Field == primary {
			hasPrimary = true
		}
		for _, l := range r.Labels {
			k := labelKey(l)
			if k == "" {
				continue
			}
			if f, dup := byLabel[k]; dup && f != r.Field {
				return nil, fmt.Errorf("parser: label %q bound to %s and %s", l, f, r.Field)
			}
			if _, dup := byLabel[k]; dup {
				continue
			}
			byLabel[k] = r.Field
			alts = append(alts, labelPattern(k))
		}
	}
	if !hasPrimary {
		return nil, fmt.Errorf("parser: primary field %s has no rule", primary)
	}
	if len(alts) == 0 {
		return nil, fmt.Errorf("parser: no labels")
	}
	// Longest first so "AFFECTED AREAS" is tried before "AREAS".
	sort.SliceStable(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })

	expr := `(?i)^[ \t]*(?:#{1,6}[ \t]+)?(?:(?:[-*+•]|\d{1,3}[.)])[ \t]+)?` +
		`(?:\*\*|__)?[ \t]*(` + strings.Join(alts, "|") + `)[ \t]*(?:\*\*|__)?[ \t]*:[ \t]*(?:\*\*|__)?`
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Grammar{primary: primary, re: re, byLabel: byLabel}, nil
}

// MustCompile is Compile for package-level grammars.
func MustCompile(primary Field, rules ...Rule) *Grammar {
	g, err := Compile(primary, rules...)
	if err != nil {
		panic(err)
	}
	return g
}

// Primary returns the block-starting field.
func (g *Grammar) Primary() Field { return g.primary }

// Lookup returns the field a label introduces.
func (g *Grammar) Lookup(label string) (Field, bool) {
	f, ok := g.byLabel[labelKey(label)]
	return f, ok
}

// matchLine reports the field introduced on line and the value that follows
// the label on the same line.
func (g *Grammar) matchLine(line string) (Field, string, bool) {
	loc := g.re.FindStringSubmatchIndex(line)
	if loc == nil {
		return "", "", false
	}
	f, ok := g.Lookup(line[loc[2]:loc[3]])
	if !ok {
		return "", "", false
	}
	return f, cleanValue(line[loc[1]:]), true
}

// Blocks splits raw into blocks. Text before the first primary label is
// ignored. Unlabelled lines continue the previous field until a blank line.
// Lines have no length limit.
func (g *Grammar) Blocks(raw string) []Block {
	var (
		out   []Block
		cur   Block
		field Field
	)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			field = ""
			continue
		}
		if f, val, ok := g.matchLine(line); ok {
			if f == g.primary {
				cur = Block{f: val}
				out = append(out, cur)
				field = f
				continue
			}
			if cur == nil {
				continue
			}
			if _, seen := cur[f]; seen {
				field = ""
				continue
			}
			cur[f] = val
			field = f
			continue
		}
		if cur == nil || field == "" {
			continue
		}
		extra := cleanValue(bulletRE.ReplaceAllString(line, ""))
		if extra == "" {
			continue
		}
		if cur[field] == "" {
			cur[field] = extra
		} else {
			cur[field] += "\n" + extra
		}
	}
	return out
}

var bulletRE = regexp.MustCompile(`^[ \t]*[-*+•][ \t]+`)

func labelKey(l string) string {
	l = strings.ToUpper(strings.TrimSpace(l))
	l = strings.NewReplacer("_", " ", "-", " ").Replace(l)
	return strings.Join(strings.Fields(l), " ")
}

func labelPattern(key string) string {
	parts := strings.Fields(key)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `[ \t_-]+`)
}

// cleanValue trims whitespace and stray emphasis markers around a value.
func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "**")
	s = strings.TrimSuffix(s, "**")
	s = strings.TrimPrefix(s, "__")
	s = strings.TrimSuffix(s, "__")
	return strings.TrimSpace(s)
}
