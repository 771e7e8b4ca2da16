// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket rate limiter with one
// bucket per client identity. Buckets live in a go-cache store and expire
// after an idle period, which bounds memory without a manual sweep.
//
// The limiter protects the upstream search quota; it is not an
// authorization mechanism. Replays served by Idempotency skip it.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// DefaultBucketIdleTTL is how long an unused bucket is kept.
const DefaultBucketIdleTTL = 10 * time.Minute

// KeyFunc selects the identity used to key a rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByClientIP keys buckets by the client IP as resolved by Gin (honoring
// trusted proxies).
func KeyByClientIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

// KeyByRouteAndIP keys buckets per route and client, so a burst against the
// analysis routes does not starve cheap listing calls.
func KeyByRouteAndIP() KeyFunc {
	return func(c *gin.Context) string {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		return route + "|ip:" + c.ClientIP()
	}
}

// RateLimiter implements a per-key token-bucket limiter. Safe for concurrent
// use.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	keyFn   KeyFunc
	buckets *gocache.Cache
}

// NewRateLimiter builds a limiter issuing rps tokens per second with the given
// burst (coerced to at least 1). idleTTL <= 0 uses DefaultBucketIdleTTL.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc, idleTTL time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = DefaultBucketIdleTTL
	}
	if keyFn == nil {
		keyFn = KeyByClientIP()
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: gocache.New(idleTTL, 2*idleTTL),
	}
}

// limiter returns the bucket for key, creating it on first use and sliding
// its expiry on every hit.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.buckets.Get(key); ok {
		lim := v.(*rate.Limiter)
		rl.buckets.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	if err := rl.buckets.Add(key, lim, gocache.DefaultExpiration); err != nil {
		// Lost the race; use the winner's bucket.
		if v, ok := rl.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// IsRateBypass reports whether Idempotency marked this request as a replay.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// Handler enforces the limit. Denied requests get 429 with Retry-After and
// the standard error envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		lim := rl.limiter(rl.keyFn(c))
		if lim.Allow() {
			c.Next()
			return
		}

		retry := 1
		if rl.rps > 0 {
			if secs := int(1/float64(rl.rps) + 0.999); secs > retry {
				retry = secs
			}
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
