// Package generative queries a web-search-enabled chat model for allergen
// knowledge. Calls go through a circuit breaker and an outbound rate limit;
// callers own the deadline.
package generative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
	"github.com/tbourn/allergen-intel-backend/internal/oaihttp"
)

var (
	// ErrTimeout is returned when the deadline passed before an answer arrived.
	ErrTimeout = errors.New("generative: search timed out")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("generative: search unavailable")
	// ErrEmptyResponse is returned when the model answered without text.
	ErrEmptyResponse = errors.New("generative: empty response")
)

// APIError is a non-2xx answer from the upstream.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("generative: upstream status %d: %s", e.Status, body)
}

// Chatter sends one chat completion request.
type Chatter interface {
	Chat(ctx context.Context, req oaihttp.ChatRequest) (string, error)
}

// Config tunes a Client.
type Config struct {
	Model             string
	SearchContextSize string

	RPS   float64
	Burst int

	// Breaker trips once MinRequests calls were seen in the current interval
	// and at least FailureRatio of them failed.
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerInterval     time.Duration
	BreakerOpenTimeout  time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Model:               "gpt-4o-search-preview",
		SearchContextSize:   "medium",
		RPS:                 1,
		Burst:               2,
		BreakerMinRequests:  5,
		BreakerFailureRatio: 0.8,
		BreakerInterval:     time.Minute,
		BreakerOpenTimeout:  30 * time.Second,
	}
}

// Client runs generative searches.
type Client struct {
	chat    Chatter
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// New builds a Client over chat. Zero config fields take DefaultConfig values.
func New(chat Chatter, cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.SearchContextSize == "" {
		cfg.SearchContextSize = def.SearchContextSize
	}
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = def.BreakerMinRequests
	}
	if cfg.BreakerFailureRatio <= 0 {
		cfg.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if cfg.BreakerInterval <= 0 {
		cfg.BreakerInterval = def.BreakerInterval
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = def.BreakerOpenTimeout
	}

	c := &Client{
		chat:    chat,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		log:     log.With().Str("component", "generative").Logger(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generative-search",
		MaxRequests: 1,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			// The caller walking away and a blank answer are not upstream faults.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, oaihttp.ErrEmptyCompletion)
		},
	})
	return c
}

// Search asks for knowledge of kind about id and returns the raw answer.
func (c *Client) Search(ctx context.Context, kind domain.DataKind, id *domain.ChemicalIdentity) (string, error) {
	if id == nil {
		return "", errors.New("generative: nil identity")
	}
	return c.run(ctx, PromptFor(kind, id))
}

// SearchIngredients asks for the ingredient list of product.
func (c *Client) SearchIngredients(ctx context.Context, product string) (string, error) {
	return c.run(ctx, IngredientsPrompt(product))
}

func (c *Client) run(ctx context.Context, p Prompt) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.chat.Chat(ctx, oaihttp.ChatRequest{
			Model: c.cfg.Model,
			Messages: []oaihttp.Message{
				{Role: "system", Content: p.System},
				{Role: "user", Content: p.User},
			},
			WebSearchOptions: &oaihttp.WebSearchOptions{SearchContextSize: c.cfg.SearchContextSize},
		})
	})
	if err != nil {
		err = classify(ctx, err)
		c.log.Debug().Err(err).Str("kind", p.Kind).Dur("elapsed", time.Since(start)).Msg("search failed")
		return "", err
	}

	text, _ := out.(string)
	c.log.Debug().Str("kind", p.Kind).Int("chars", len(text)).Dur("elapsed", time.Since(start)).Msg("search answered")
	return text, nil
}

// State reports the breaker state ("closed", "half-open" or "open").
func (c *Client) State() string { return c.breaker.State().String() }

func classify(ctx context.Context, err error) error {
	var httpErr *oaihttp.HTTPError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, oaihttp.ErrEmptyCompletion):
		return ErrEmptyResponse
	case errors.As(err, &httpErr):
		return &APIError{Status: httpErr.StatusCode, Body: httpErr.Body}
	default:
		return fmt.Errorf("generative: %w", err)
	}
}
