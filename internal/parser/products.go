package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

var numberedRE = regexp.MustCompile(`^\s*\d+\.\s+(.+)$`)

// Placeholder names the generator emits when it has nothing to report.
var placeholderNames = map[string]struct{}{
	"none": {}, "n/a": {}, "na": {}, "unknown": {}, "not applicable": {}, "none known": {},
}

// ParseOxidationProducts parses raw with the default Parser.
func ParseOxidationProducts(raw string) []string { return defaultParser.OxidationProducts(raw) }

// ParseIngredients parses raw with the default Parser.
func ParseIngredients(raw string) []string { return defaultParser.Ingredients(raw) }

// OxidationProducts returns the product names of every PRODUCT block,
// deduplicated case-insensitively in first-seen order. The result is never
// nil.
func (p *Parser) OxidationProducts(raw string) []string {
	out := []string{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	seen := map[string]struct{}{}
	for i, blk := range p.oxidation.Blocks(p.oxidation.FlattenTables(raw)) {
		name, ok := p.safeName(i, "oxidation", func() string { return blk[FieldProduct] })
		if ok {
			out = appendUnique(out, seen, name)
		}
	}
	return out
}

// Ingredients returns the names listed as "INGREDIENT: name" or as
// numbered lines ("1. name"), deduplicated case-insensitively.
func (p *Parser) Ingredients(raw string) []string {
	out := []string{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	seen := map[string]struct{}{}
	for i, line := range strings.Split(raw, "\n") {
		name, ok := p.safeName(i, "ingredient", func() string {
			if f, val, ok := p.ingredients.matchLine(line); ok && f == FieldIngredient {
				return val
			}
			if m := numberedRE.FindStringSubmatch(line); m != nil {
				return m[1]
			}
			return ""
		})
		if ok {
			out = appendUnique(out, seen, name)
		}
	}
	return out
}

// safeName runs extract under recover and cleans its result.
func (p *Parser) safeName(i int, what string, extract func() string) (name string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn().Int("block", i).Str("kind", what).Str("panic", fmt.Sprint(r)).Msg("skipping unparseable block")
			name, ok = "", false
		}
	}()
	name = cleanLabel(extract())
	if name == "" {
		return "", false
	}
	if _, skip := placeholderNames[strings.ToLower(name)]; skip {
		return "", false
	}
	return name, true
}

func appendUnique(out []string, seen map[string]struct{}, name string) []string {
	k := domain.NormalizeName(name)
	if _, dup := seen[k]; dup {
		return out
	}
	seen[k] = struct{}{}
	return append(out, name)
}
