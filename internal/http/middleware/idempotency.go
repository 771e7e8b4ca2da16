// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements response replay for unsafe methods. A client that
// retries a POST analysis with the same Idempotency-Key receives the stored
// response instead of triggering another generative search. Persistence is
// injected through IdempotencyLookup and IdempotencySave so the middleware
// stays independent of the storage layer.
package middleware

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplayed marks responses served from storage.
const HeaderIdempotentReplayed = "Idempotent-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultMaxKeyLen     = 200
	defaultMaxStoredBody = 1 << 20
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// StoredResponse is a response captured for replay.
type StoredResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// IdempotencyLookup returns the stored response for (scope, key) that is
// still valid at now, or nil when none exists.
type IdempotencyLookup func(ctx context.Context, scope, key string, now time.Time) (*StoredResponse, error)

// IdempotencySave persists a successful response for (scope, key).
type IdempotencySave func(ctx context.Context, scope, key string, resp StoredResponse) error

// IdempotencyOptions configures Idempotency.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// MaxBody caps the size of a response that will be stored. Larger
	// responses are served but not recorded.
	MaxBody int
}

// GetIdempotencyKey returns the validated key stashed by Idempotency.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyIdemKey).(string)
	return s, s != ""
}

// IsReplay reports whether the response was served from storage.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// Scope names the operation a key belongs to: method plus route pattern.
func Scope(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return c.Request.Method + " " + path
}

// Idempotency validates the Idempotency-Key header on POST, PUT and PATCH
// requests, replays a stored response when one exists, and otherwise records
// the handler's 2xx response for later retries.
//
// Requests without the header, and safe methods, pass through untouched.
// Lookup or save failures are logged and never fail the request.
func Idempotency(opts IdempotencyOptions, lookup IdempotencyLookup, save IdempotencySave) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxKeyLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	maxBody := opts.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxStoredBody
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_request",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		ctx := c.Request.Context()
		scope := Scope(c)
		lg := LoggerFrom(c)

		if lookup != nil {
			prev, err := lookup(ctx, scope, key, time.Now().UTC())
			if err != nil {
				lg.Warn().Err(err).Str("scope", scope).Msg("idempotency lookup failed")
			}
			if prev != nil {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
				c.Header(HeaderIdempotentReplayed, "true")
				c.Data(prev.Status, prev.ContentType, prev.Body)
				c.Abort()
				return
			}
		}

		cw := &captureWriter{ResponseWriter: c.Writer, limit: maxBody}
		c.Writer = cw
		c.Next()

		status := cw.Status()
		if save == nil || status < 200 || status >= 300 || cw.overflow || cw.buf.Len() == 0 {
			return
		}
		resp := StoredResponse{
			Status:      status,
			ContentType: cw.Header().Get("Content-Type"),
			Body:        bytes.Clone(cw.buf.Bytes()),
		}
		if err := save(context.WithoutCancel(ctx), scope, key, resp); err != nil {
			lg.Warn().Err(err).Str("scope", scope).Msg("idempotency save failed")
		}
	}
}

// captureWriter tees the response body into a bounded buffer.
type captureWriter struct {
	gin.ResponseWriter
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (w *captureWriter) capture(n int, write func()) {
	if w.overflow {
		return
	}
	if w.buf.Len()+n > w.limit {
		w.overflow = true
		w.buf.Reset()
		return
	}
	write()
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.capture(len(b), func() { w.buf.Write(b) })
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.capture(len(s), func() { w.buf.WriteString(s) })
	return w.ResponseWriter.WriteString(s)
}
