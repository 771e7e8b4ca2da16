package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

const (
	DefaultPubChemBaseURL = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"
	maxSynonyms           = 10
	maxBodyBytes          = 8 << 20
)

// ResponseCache keeps raw registry payloads between process restarts. The
// semantic cache satisfies it.
type ResponseCache interface {
	Get(ctx context.Context, subject string, tag domain.CacheTag) (string, bool)
	Put(ctx context.Context, subject string, tag domain.CacheTag, raw string) error
}

// Config tunes a PubChem client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	NegativeTTL time.Duration
	RPS         float64
	Burst       int
}

// DefaultConfig returns the production settings. PubChem asks clients to
// stay at or below five requests per second.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultPubChemBaseURL,
		Timeout:     10 * time.Second,
		NegativeTTL: time.Hour,
		RPS:         5,
		Burst:       5,
	}
}

// PubChem is a Resolver backed by the PubChem PUG REST API.
type PubChem struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	negative   *gocache.Cache
	responses  ResponseCache
	validate   *validator.Validate
	log        zerolog.Logger
}

// Option configures a PubChem client.
type Option func(*PubChem)

// WithHTTPClient replaces the HTTP client (tests use a mock transport).
func WithHTTPClient(c *http.Client) Option { return func(p *PubChem) { p.httpClient = c } }

// WithResponseCache stores raw compound and synonym payloads in rc.
func WithResponseCache(rc ResponseCache) Option { return func(p *PubChem) { p.responses = rc } }

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option { return func(p *PubChem) { p.log = l } }

// NewPubChem builds a client. Zero config fields take DefaultConfig values.
func NewPubChem(cfg Config, opts ...Option) *PubChem {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = def.NegativeTTL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}

	p := &PubChem{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		negative:   gocache.New(cfg.NegativeTTL, 2*cfg.NegativeTTL),
		validate:   newValidator(),
		log:        log.With().Str("component", "pubchem").Logger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Lookup resolves name to a Record. Names the registry does not know are
// remembered for the negative TTL and answered with ErrNotFound without a
// network call.
func (p *PubChem) Lookup(ctx context.Context, name string) (*Record, error) {
	key := domain.NormalizeName(name)
	if key == "" {
		return nil, ErrNotFound
	}
	if _, unknown := p.negative.Get(key); unknown {
		return nil, ErrNotFound
	}

	raw, err := p.compoundJSON(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.negative.SetDefault(key, struct{}{})
		}
		return nil, err
	}
	rec, err := parseCompound(raw)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.negative.SetDefault(key, struct{}{})
		}
		return nil, err
	}

	syns, err := p.synonyms(ctx, rec.ExternalID)
	if err != nil {
		p.log.Warn().Err(err).Int64("cid", rec.ExternalID).Msg("synonym lookup failed")
		syns = []string{}
	}
	rec.Synonyms = syns
	if rec.CASNumber == "" {
		rec.CASNumber = CASFromSynonyms(syns)
	}

	if err := p.validate.Struct(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return rec, nil
}

func (p *PubChem) compoundJSON(ctx context.Context, key string) (string, error) {
	if raw, ok := p.cached(ctx, key, domain.TagRegistryCompound); ok {
		if _, err := parseCompound(raw); err == nil {
			return raw, nil
		}
		p.log.Debug().Str("name", key).Msg("cached compound unparseable, refetching")
	}
	raw, err := p.get(ctx, "/compound/name/"+url.PathEscape(key)+"/JSON")
	if err != nil {
		return "", err
	}
	p.store(ctx, key, domain.TagRegistryCompound, raw)
	return raw, nil
}

func (p *PubChem) synonyms(ctx context.Context, cid int64) ([]string, error) {
	subject := "CID_" + strconv.FormatInt(cid, 10)
	if raw, ok := p.cached(ctx, subject, domain.TagRegistrySynonyms); ok {
		if syns, err := parseSynonyms(raw); err == nil {
			return syns, nil
		}
	}
	raw, err := p.get(ctx, "/compound/cid/"+strconv.FormatInt(cid, 10)+"/synonyms/JSON")
	if err != nil {
		return nil, err
	}
	syns, err := parseSynonyms(raw)
	if err != nil {
		return nil, err
	}
	p.store(ctx, subject, domain.TagRegistrySynonyms, raw)
	return syns, nil
}

func (p *PubChem) cached(ctx context.Context, subject string, tag domain.CacheTag) (string, bool) {
	if p.responses == nil {
		return "", false
	}
	return p.responses.Get(ctx, subject, tag)
}

func (p *PubChem) store(ctx context.Context, subject string, tag domain.CacheTag, raw string) {
	if p.responses == nil {
		return
	}
	if err := p.responses.Put(ctx, subject, tag, raw); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Str("tag", string(tag)).Msg("registry response not cached")
	}
}

// get performs one rate-limited GET. 400 and 404 both mean the registry
// cannot resolve the input.
func (p *PubChem) get(ctx context.Context, path string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pubchem request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("pubchem read body: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return "", ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("pubchem status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return string(body), nil
}

// ---------------- payloads ----------------

type compoundResponse struct {
	PCCompounds []struct {
		ID struct {
			ID struct {
				CID int64 `json:"cid"`
			} `json:"id"`
		} `json:"id"`
		Props []struct {
			URN struct {
				Label string `json:"label"`
				Name  string `json:"name"`
			} `json:"urn"`
			Value struct {
				SVal *string  `json:"sval"`
				FVal *float64 `json:"fval"`
			} `json:"value"`
		} `json:"props"`
	} `json:"PC_Compounds"`
}

func parseCompound(raw string) (*Record, error) {
	var resp compoundResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("pubchem compound json: %w", err)
	}
	if len(resp.PCCompounds) == 0 || resp.PCCompounds[0].ID.ID.CID <= 0 {
		return nil, ErrNotFound
	}
	c := resp.PCCompounds[0]
	rec := &Record{ExternalID: c.ID.ID.CID, Synonyms: []string{}}
	for _, prop := range c.Props {
		sval := ""
		if prop.Value.SVal != nil {
			sval = strings.TrimSpace(*prop.Value.SVal)
		}
		switch prop.URN.Label {
		case "IUPAC Name":
			// PubChem lists several styles; keep the preferred one.
			if rec.IUPACName == "" || prop.URN.Name == "Preferred" {
				rec.IUPACName = sval
			}
		case "Molecular Formula":
			rec.MolecularFormula = sval
		case "Molecular Weight":
			if w, err := strconv.ParseFloat(sval, 64); err == nil {
				rec.MolecularWeight = &w
			} else if prop.Value.FVal != nil {
				w := *prop.Value.FVal
				rec.MolecularWeight = &w
			}
		case "SMILES":
			if rec.Structure == "" || prop.URN.Name == "Canonical" || prop.URN.Name == "Connectivity" {
				rec.Structure = sval
			}
		case "InChI":
			rec.InChI = sval
		case "InChIKey":
			rec.InChIKey = sval
		case "CAS":
			rec.CASNumber = sval
		}
	}
	return rec, nil
}

type synonymsResponse struct {
	InformationList struct {
		Information []struct {
			CID     int64    `json:"CID"`
			Synonym []string `json:"Synonym"`
		} `json:"Information"`
	} `json:"InformationList"`
}

func parseSynonyms(raw string) ([]string, error) {
	var resp synonymsResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("pubchem synonyms json: %w", err)
	}
	out := []string{}
	if len(resp.InformationList.Information) == 0 {
		return out, nil
	}
	for _, s := range resp.InformationList.Information[0].Synonym {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxSynonyms {
			break
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
