package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

const (
	// UnverifiedConfidence is assigned to records without a parsed source.
	UnverifiedConfidence = 70
	// VerifiedConfidence is assigned once a source reference is parsed.
	VerifiedConfidence = 85

	maxCitationRunes = 500
	maxTitleRunes    = 255
	literatureReview = "Literature Review"
)

var (
	percentRE = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	doiRE     = regexp.MustCompile(`10\.\d{4,}/\S+`)
	urlRE     = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)
	yearRE    = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	areaSepRE = regexp.MustCompile(`[,;\n]`)
)

// Parser converts raw search responses into records. The zero value is not
// usable; use New.
type Parser struct {
	effects     *Grammar
	oxidation   *Grammar
	ingredients *Grammar

	log zerolog.Logger
	now func() time.Time

	// buildEffect is swapped in tests to exercise panic recovery.
	buildEffect func(Block, *domain.ChemicalIdentity, time.Time) (domain.SideEffect, bool)
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for skipped blocks.
func WithLogger(l zerolog.Logger) Option { return func(p *Parser) { p.log = l } }

// WithClock overrides the time source used for LastVerified.
func WithClock(now func() time.Time) Option { return func(p *Parser) { p.now = now } }

// WithSideEffectRules replaces the side-effect grammar.
func WithSideEffectRules(rules ...Rule) Option {
	return func(p *Parser) { p.effects = MustCompile(FieldEffect, rules...) }
}

// New returns a Parser using the default grammars.
func New(opts ...Option) *Parser {
	p := &Parser{
		effects:     MustCompile(FieldEffect, SideEffectRules...),
		oxidation:   MustCompile(FieldProduct, OxidationRules...),
		ingredients: MustCompile(FieldIngredient, IngredientRules...),
		log:         log.With().Str("component", "parser").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		buildEffect: buildSideEffect,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var defaultParser = New()

// ParseSideEffects parses raw with the default Parser.
func ParseSideEffects(raw string, id *domain.ChemicalIdentity) []domain.SideEffect {
	return defaultParser.SideEffects(raw, id)
}

// SideEffects extracts one record per EFFECT block. Blocks without a label
// are dropped; a block that fails to parse is logged and skipped. The result
// is never nil.
func (p *Parser) SideEffects(raw string, id *domain.ChemicalIdentity) []domain.SideEffect {
	out := []domain.SideEffect{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	now := p.now()
	for i, blk := range p.effects.Blocks(p.effects.FlattenTables(raw)) {
		rec, ok := p.safeBuild(i, blk, id, now)
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

func (p *Parser) safeBuild(i int, blk Block, id *domain.ChemicalIdentity, now time.Time) (rec domain.SideEffect, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn().Int("block", i).Str("panic", fmt.Sprint(r)).Msg("skipping unparseable effect block")
			rec, ok = domain.SideEffect{}, false
		}
	}()
	return p.buildEffect(blk, id, now)
}

func buildSideEffect(blk Block, id *domain.ChemicalIdentity, now time.Time) (domain.SideEffect, bool) {
	label := cleanLabel(blk[FieldEffect])
	if label == "" {
		return domain.SideEffect{}, false
	}

	rec := domain.SideEffect{
		Effect:             label,
		Description:        "Documented allergic reaction: " + label,
		Severity:           domain.SeverityModerate,
		AffectedBodyAreas:  []string{},
		Sources:            []domain.SourceReference{},
		VerificationStatus: domain.Unverified,
		ConfidenceScore:    UnverifiedConfidence,
	}
	if id != nil {
		rec.ChemicalID = id.ID
		rec.IsFromOxidationProduct = id.IsOxidationProduct
	}

	if v, ok := blk[FieldSeverity]; ok {
		rec.Severity = ParseSeverity(v)
	}
	if v, ok := blk[FieldPrevalence]; ok {
		rec.PrevalenceRate = ParsePrevalence(v)
	}
	rec.Population = blk[FieldPopulation]
	rec.ExposureRoute = blk[FieldMechanism]
	rec.Onset = blk[FieldOnset]
	rec.Dosage = blk[FieldDosage]
	rec.StudyEvidence = blk[FieldEvidence]
	if v, ok := blk[FieldAreas]; ok {
		rec.AffectedBodyAreas = ParseAreas(v)
	}
	if form := blk[FieldForm]; form != "" {
		rec.SpecificChemicalForm = form
		low := strings.ToLower(form)
		if strings.Contains(low, "oxid") || strings.Contains(low, "peroxide") {
			rec.IsFromOxidationProduct = true
		}
	}
	if v := blk[FieldSource]; v != "" {
		src := ParseSource(v)
		rec.Sources = []domain.SourceReference{src}
		rec.VerificationStatus = domain.Verified
		rec.ConfidenceScore = VerifiedConfidence
		rec.StudyDate = src.PublicationDate
		verified := now
		rec.LastVerified = &verified
	}
	return rec, true
}

// ParseSeverity maps free text to a severity by keyword, checking
// life-threatening or severe first, then moderate, then mild. Anything else
// is MODERATE.
func ParseSeverity(s string) domain.Severity {
	low := strings.ToLower(s)
	low = strings.NewReplacer("_", " ", "-", " ").Replace(low)
	switch {
	case strings.Contains(low, "life threatening"), strings.Contains(low, "severe"):
		return domain.SeveritySevere
	case strings.Contains(low, "moderate"):
		return domain.SeverityModerate
	case strings.Contains(low, "mild"):
		return domain.SeverityMild
	default:
		return domain.SeverityModerate
	}
}

// ParsePrevalence returns a probability in [0,1], or nil when s names
// neither a percentage nor a known frequency word.
func ParsePrevalence(s string) *float64 {
	if m := percentRE.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			f := math.Max(0, math.Min(1, v/100))
			return &f
		}
	}
	low := strings.ToLower(s)
	var f float64
	switch {
	case strings.Contains(low, "very common"):
		f = 0.50
	case strings.Contains(low, "uncommon"):
		f = 0.05
	case strings.Contains(low, "common"):
		f = 0.20
	case strings.Contains(low, "rare"):
		f = 0.01
	default:
		return nil
	}
	return &f
}

// ParseAreas splits a body-area list on commas, semicolons and line breaks.
func ParseAreas(s string) []string {
	out := []string{}
	for _, a := range areaSepRE.Split(s, -1) {
		a = strings.TrimSpace(strings.Trim(strings.TrimSpace(a), "*_.[]"))
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// ParseSource extracts a DOI, URL and publication year from citation text.
// The text itself is kept as the citation.
func ParseSource(s string) domain.SourceReference {
	s = strings.TrimSpace(s)
	ref := domain.SourceReference{
		StudyType: literatureReview,
		Citation:  truncateRunes(s, maxCitationRunes),
	}
	cut := len(s)
	if loc := doiRE.FindStringIndex(s); loc != nil {
		ref.DOI = strings.TrimRight(s[loc[0]:loc[1]], ".,;)]")
		cut = min(cut, loc[0])
	}
	if loc := urlRE.FindStringIndex(s); loc != nil {
		ref.URL = strings.TrimRight(s[loc[0]:loc[1]], ".,;")
		cut = min(cut, loc[0])
	}
	if y := yearRE.FindString(s); y != "" {
		if year, err := strconv.Atoi(y); err == nil {
			d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			ref.PublicationDate = &d
		}
	}
	title := strings.TrimRight(s[:cut], " -:,;(")
	low := strings.ToLower(title)
	for _, suf := range []string{"doi", "url"} {
		if strings.HasSuffix(low, suf) {
			title = title[:len(title)-len(suf)]
			break
		}
	}
	if title = strings.TrimRight(title, " -:,;("); title != "" {
		ref.Title = truncateRunes(title, maxTitleRunes)
	}
	return ref
}

// cleanLabel strips brackets, quotes and emphasis the generator tends to
// leave around names.
func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(strings.Trim(s, "*_`\"'[] \t"))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
