package search

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// HashEmbedder is a local, deterministic Embedder based on feature hashing of
// word tokens and character trigrams. It needs no network and produces
// similar vectors for strings sharing words or spelling fragments, which is
// enough for candidate narrowing over short chemical names.
type HashEmbedder struct {
	cfg config
}

// Option configures a HashEmbedder.
type Option func(*config)

type config struct {
	dim       int
	stopwords map[string]struct{}
	gramSize  int
}

func defaultConfig() config {
	return config{
		dim:       256,
		stopwords: nil,
		gramSize:  3,
	}
}

// WithDimension sets the output vector length. Non-positive values are ignored.
func WithDimension(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.dim = n
		}
	}
}

// WithStopwords drops the given words before hashing.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithGramSize sets the character n-gram length (default 3). Values below 2
// are ignored.
func WithGramSize(n int) Option {
	return func(c *config) {
		if n >= 2 {
			c.gramSize = n
		}
	}
}

// NewHashEmbedder builds a HashEmbedder.
func NewHashEmbedder(opts ...Option) *HashEmbedder {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &HashEmbedder{cfg: cfg}
}

// Dimension returns the length of produced vectors.
func (h *HashEmbedder) Dimension() int { return h.cfg.dim }

// Embed returns the L2-normalized feature vector of text. Text without any
// word token yields a zero vector.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, h.cfg.dim)
	for _, w := range tokenize(text, h.cfg.stopwords) {
		h.add(vec, "w:"+w, 1.0)
		padded := "^" + w + "$"
		runes := []rune(padded)
		for i := 0; i+h.cfg.gramSize <= len(runes); i++ {
			h.add(vec, "g:"+string(runes[i:i+h.cfg.gramSize]), 0.5)
		}
	}

	var norm2 float64
	for _, v := range vec {
		norm2 += v * v
	}
	out := make([]float32, h.cfg.dim)
	if norm2 == 0 {
		return out, nil
	}
	inv := 1 / math.Sqrt(norm2)
	for i, v := range vec {
		out[i] = float32(v * inv)
	}
	return out, nil
}

// add hashes feature into a bucket; a second hash bit picks the sign so
// collisions tend to cancel instead of accumulate.
func (h *HashEmbedder) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(len(vec)))
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// tokenize lower-cases s, folds it to NFKC and returns its word tokens in
// order, minus stopwords.
func tokenize(s string, stop map[string]struct{}) []string {
	s = strings.ToLower(norm.NFKC.String(s))
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out = append(out, w)
	}
	return out
}
