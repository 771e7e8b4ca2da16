// Package httpapi wires the HTTP transport (Gin) to the analysis service,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, idempotent replay, rate limiting, CORS and security headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/allergen-intel-backend/internal/config"
	"github.com/tbourn/allergen-intel-backend/internal/http/handlers"
	"github.com/tbourn/allergen-intel-backend/internal/http/middleware"
	"github.com/tbourn/allergen-intel-backend/internal/repo"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip (before idempotency so stored bodies are uncompressed)
//  7. Metrics
//  8. CORS and security headers (replayed responses carry them too)
//  9. Idempotent replay (before rate limiter so replays bypass it)
//  10. Rate limiter per client IP
func RegisterRoutes(r *gin.Engine, svc handlers.AnalysisService, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	r.Use(limitBody(maxBody))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	useCORS(r, cfg.CORS.AllowedOrigins)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	lookup, save := idempotencyStore(db, cfg.IdempotencyTTL)
	r.Use(middleware.Idempotency(middleware.IdempotencyOptions{MaxLen: 200}, lookup, save))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP(), 0)
	r.Use(rl.Handler())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc)
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		al := api.Group("/allergens")
		al.GET("/analyze/:name", h.AnalyzeAllergen)
		al.GET("/:name/side-effects", h.SideEffects)
		al.GET("/:name/oxidation-products", h.OxidationProducts)
		al.POST("/analyze-batch", h.AnalyzeBatch)
		al.POST("/analyze-product", h.AnalyzeProduct)
		al.GET("/search/health", h.SearchHealth)

		api.GET("/chemicals", h.ListChemicals)
	}
}

// idempotencyStore adapts the repo helpers to the middleware callbacks.
func idempotencyStore(db *gorm.DB, ttl time.Duration) (middleware.IdempotencyLookup, middleware.IdempotencySave) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	lookup := func(ctx context.Context, scope, key string, now time.Time) (*middleware.StoredResponse, error) {
		rec, err := repo.GetIdempotency(ctx, db, scope, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &middleware.StoredResponse{Status: rec.Status, ContentType: rec.ContentType, Body: rec.Body}, nil
	}
	save := func(ctx context.Context, scope, key string, resp middleware.StoredResponse) error {
		_, err := repo.CreateIdempotency(ctx, db, scope, key, resp.Status, resp.ContentType, resp.Body, ttl)
		if errors.Is(err, repo.ErrDuplicate) {
			// a concurrent retry won the race; its response is equivalent
			return nil
		}
		return err
	}
	return lookup, save
}

// useCORS installs the CORS posture. An empty list or "*" allows all origins.
func useCORS(r *gin.Engine, origins []string) {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", middleware.HeaderIdempotentReplayed, "Retry-After"}
	methods := []string{"GET", "POST", "OPTIONS"}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}

	if allowAll {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

// limitBody caps the request body size using http.MaxBytesReader. Requests
// exceeding the cap cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
