package oaihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func newTestClient(t *testing.T, rt roundTripperFunc) *Client {
	t.Helper()
	c, err := NewWithHTTPClient(Config{BaseURL: "http://example.test/", APIKey: "k"}, &http.Client{Transport: rt})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

func TestChat_SendsWebSearchOptionsAndAuth(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.String() != "http://example.test/v1/chat/completions" {
			t.Fatalf("url=%s", r.URL.String())
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Fatalf("auth header=%q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return jsonResponse(200, `{"choices":[{"message":{"content":"  EFFECT: Rash \n"}}]}`), nil
	})

	out, err := c.Chat(context.Background(), ChatRequest{
		Model:            "m",
		Messages:         []Message{{Role: "user", Content: "hi"}},
		WebSearchOptions: &WebSearchOptions{SearchContextSize: "medium"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out != "EFFECT: Rash" {
		t.Fatalf("out=%q", out)
	}
	wso, ok := got["web_search_options"].(map[string]any)
	if !ok || wso["search_context_size"] != "medium" {
		t.Fatalf("web_search_options missing: %#v", got)
	}
	if _, ok := got["temperature"]; ok {
		t.Fatalf("temperature should be omitted when nil")
	}
}

func TestChat_EmptyCompletion(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"choices":[{"message":{"content":"   "}}]}`), nil
	})
	_, err := c.Chat(context.Background(), ChatRequest{Model: "m"})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("want ErrEmptyCompletion, got %v", err)
	}
}

func TestDoJSON_HTTPError(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(503, `{"error":"overloaded"}`), nil
	})
	_, err := c.Chat(context.Background(), ChatRequest{Model: "m"})
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("want *HTTPError, got %T %v", err, err)
	}
	if he.StatusCode != 503 || !strings.Contains(he.Error(), "overloaded") {
		t.Fatalf("unexpected error: %v", he)
	}
}

func TestEmbed_ReordersByIndex(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["dimensions"] != float64(3) {
			t.Fatalf("dimensions=%v", req["dimensions"])
		}
		return jsonResponse(200, `{"data":[
			{"index":1,"embedding":[0,1,0]},
			{"index":0,"embedding":[1,0,0]}
		]}`), nil
	})
	vecs, err := c.Embed(context.Background(), "e", []string{"a", "b"}, 3)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("unexpected order: %v", vecs)
	}
}

func TestEmbed_MissingIndex(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"data":[{"index":0,"embedding":[1]}]}`), nil
	})
	if _, err := c.Embed(context.Background(), "e", []string{"a", "b"}, 0); err == nil {
		t.Fatalf("expected error for missing vector")
	}
}

func TestEmbed_EmptyInputs(t *testing.T) {
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	vecs, err := c.Embed(context.Background(), "e", nil, 0)
	if err != nil || len(vecs) != 0 {
		t.Fatalf("vecs=%v err=%v", vecs, err)
	}
}
