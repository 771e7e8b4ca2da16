// Package oaihttp is a small client for OpenAI-compatible HTTP APIs. It
// covers the two endpoints the service needs: chat completions (optionally
// with web search) and embeddings.
package oaihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Config describes an upstream endpoint.
type Config struct {
	BaseURL             string
	APIKey              string
	ChatCompletionsPath string
	EmbeddingsPath      string
}

// Client talks to one OpenAI-compatible upstream. It is safe for concurrent use.
type Client struct {
	baseURL             string
	apiKey              string
	chatCompletionsPath string
	embeddingsPath      string
	httpClient          *http.Client
}

// HTTPError is returned for non-2xx upstream responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "upstream http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("upstream http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("upstream http error: status=%d body=%s", e.StatusCode, e.Body)
}

// New builds a Client with a tuned transport. Per-call deadlines come from
// the caller's context.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("oaihttp: base url required")
	}
	chatPath := strings.TrimSpace(cfg.ChatCompletionsPath)
	if chatPath == "" {
		chatPath = "/v1/chat/completions"
	}
	embPath := strings.TrimSpace(cfg.EmbeddingsPath)
	if embPath == "" {
		embPath = "/v1/embeddings"
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL:             baseURL,
		apiKey:              strings.TrimSpace(cfg.APIKey),
		chatCompletionsPath: chatPath,
		embeddingsPath:      embPath,
		httpClient:          &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using
// a custom RoundTripper.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) (*Client, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c, nil
}

// ---------------- Embeddings ----------------

type embeddingsRequest struct {
	Model      string `json:"model"`
	Input      any    `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order. dims is forwarded when
// positive (models that support shortened embeddings honour it).
func (c *Client) Embed(ctx context.Context, model string, inputs []string, dims int) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	var resp embeddingsResponse
	req := embeddingsRequest{Model: model, Input: inputs, Dimensions: dims}
	if err := c.doJSON(ctx, http.MethodPost, c.embeddingsPath, req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(inputs))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			// Some servers omit indices but keep ordering.
			idx = i
		}
		if idx < len(out) {
			out[idx] = vec
		}
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("embeddings missing index=%d (model=%s)", i, model)
		}
	}
	return out, nil
}

// ---------------- Chat completions ----------------

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WebSearchOptions enables the upstream's built-in web search tool.
type WebSearchOptions struct {
	SearchContextSize string `json:"search_context_size,omitempty"`
}

// ChatRequest is the subset of the chat completions request body we send.
type ChatRequest struct {
	Model            string            `json:"model"`
	Messages         []Message         `json:"messages"`
	Temperature      *float64          `json:"temperature,omitempty"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	WebSearchOptions *WebSearchOptions `json:"web_search_options,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content,omitempty"`
		} `json:"message,omitempty"`
		Text string `json:"text,omitempty"`
	} `json:"choices"`
}

// ErrEmptyCompletion is returned when the upstream answered without text.
var ErrEmptyCompletion = errors.New("oaihttp: empty completion")

// Chat sends req and returns the first choice's text.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	var resp chatResponse
	if err := c.doJSON(ctx, http.MethodPost, c.chatCompletionsPath, req, &resp); err != nil {
		return "", err
	}
	for _, ch := range resp.Choices {
		if s := strings.TrimSpace(ch.Message.Content); s != "" {
			return s, nil
		}
		if s := strings.TrimSpace(ch.Text); s != "" {
			return s, nil
		}
	}
	return "", ErrEmptyCompletion
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
