package search

import (
	"context"
	"errors"
	"strings"

	"github.com/tbourn/allergen-intel-backend/internal/oaihttp"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client *oaihttp.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder returns an Embedder backed by client. dim is requested
// from the upstream and enforced on every response when positive.
func NewOpenAIEmbedder(client *oaihttp.Client, model string, dim int) (*OpenAIEmbedder, error) {
	if client == nil {
		return nil, errors.New("search: nil embeddings client")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{client: client, model: model, dim: dim}, nil
}

// Dimension returns the configured vector length (0 means unchecked).
func (e *OpenAIEmbedder) Dimension() int { return e.dim }

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.client.Embed(ctx, e.model, []string{text}, e.dim)
	if err != nil {
		return nil, err
	}
	v := vecs[0]
	if e.dim > 0 && len(v) != e.dim {
		return nil, ErrDimensionMismatch
	}
	return v, nil
}
