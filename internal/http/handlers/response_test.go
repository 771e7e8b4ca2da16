package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/allergen-intel-backend/internal/services"
)

func Test_fail_500_LogsAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	// simulate RequestID + request-scoped logger
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != ErrCodeInternal || resp.Message != "kaboom" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func Test_Fail_404_And_ok(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-404")
		c.Next()
	})
	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope")
	})
	r.GET("/ok", func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"ok": true, "n": 1})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json 404: %v", err)
	}
	if er.RequestID != "rid-404" || er.Code != ErrCodeNotFound || er.Message != "nope" {
		t.Fatalf("unexpected 404 body: %+v", er)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}
	var okBody map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &okBody); err != nil {
		t.Fatalf("json 201: %v", err)
	}
	if okBody["ok"] != true || int(okBody["n"].(float64)) != 1 {
		t.Fatalf("unexpected ok body: %#v", okBody)
	}
}

func Test_statusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrEmptyName, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrEmptyBatch, http.StatusBadRequest, ErrCodeBadRequest},
		{fmt.Errorf("%w: 60 given, at most 50 allowed", services.ErrTooManyIngredients), http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrEmptyProduct, http.StatusBadRequest, ErrCodeBadRequest},
		{fmt.Errorf("resolve: %w", services.ErrChemicalNotFound), http.StatusNotFound, ErrCodeNotFound},
		{services.ErrRegistryUnavailable, http.StatusServiceUnavailable, ErrCodeUpstream},
		{fmt.Errorf("fetch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, ErrCodeTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		status, code, msg := statusFor(tc.err)
		if status != tc.status || code != tc.code || msg == "" {
			t.Errorf("statusFor(%v) = %d %q %q, want %d %q", tc.err, status, code, msg, tc.status, tc.code)
		}
	}

	_, _, msg := statusFor(fmt.Errorf("%w: 60 given, at most 50 allowed", services.ErrTooManyIngredients))
	if !strings.Contains(msg, "at most 50") {
		t.Fatalf("limit should be surfaced, got %q", msg)
	}
	if _, _, msg := statusFor(errors.New("secret dsn=/var/db")); strings.Contains(msg, "dsn") {
		t.Fatalf("internal detail leaked: %q", msg)
	}
}

func Test_failErr_AttachesServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var attached []string
	r.Use(func(c *gin.Context) {
		c.Next()
		attached = c.Errors.Errors()
	})
	r.GET("/err/:kind", func(c *gin.Context) {
		if c.Param("kind") == "client" {
			failErr(c, services.ErrChemicalNotFound)
			return
		}
		failErr(c, errors.New("gorm: database is locked"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/err/client", nil))
	if w.Code != http.StatusNotFound || len(attached) != 0 {
		t.Fatalf("client error: %d attached=%v", w.Code, attached)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/err/server", nil))
	if w.Code != http.StatusInternalServerError || len(attached) != 1 {
		t.Fatalf("server error: %d attached=%v", w.Code, attached)
	}
	if strings.Contains(w.Body.String(), "locked") {
		t.Fatalf("internal error leaked to client: %s", w.Body.String())
	}
}
