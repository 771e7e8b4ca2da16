// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server, logging,
// storage, cache, search, registry and observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SearchConfig configures the generative search upstream.
type SearchConfig struct {
	BaseURL     string        // OPENAI_BASE_URL
	APIKey      string        // OPENAI_API_KEY
	Model       string        // OPENAI_SEARCH_MODEL
	ContextSize string        // SEARCH_CONTEXT_SIZE: low|medium|high
	Timeout     time.Duration // SEARCH_TIMEOUT
	Coalesce    bool          // SEARCH_COALESCE
	RPS         float64       // SEARCH_RPS
	Burst       int           // SEARCH_BURST
}

// EmbeddingConfig selects the semantic cache embedder.
type EmbeddingConfig struct {
	Provider string // EMBEDDER: hash|openai
	Model    string // EMBEDDING_MODEL
	Dim      int    // EMBEDDING_DIM
}

// SemanticConfig configures the semantic cache and its backend.
type SemanticConfig struct {
	Backend       string  // SEMANTIC_BACKEND: sqlite|memory|redis
	TopK          int     // SEMANTIC_TOP_K
	MinSimilarity float64 // SEMANTIC_MIN_SIMILARITY
	TTLDays       int     // SEMANTIC_TTL_DAYS
	StaleAsMiss   bool    // SEMANTIC_STALE_AS_MISS
}

// RedisConfig is used when SEMANTIC_BACKEND=redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RegistryConfig configures the chemical registry client.
type RegistryConfig struct {
	BaseURL     string        // PUBCHEM_BASE_URL
	Timeout     time.Duration // REGISTRY_TIMEOUT
	NegativeTTL time.Duration // REGISTRY_NEGATIVE_TTL
	RPS         float64       // REGISTRY_RPS
}

// BatchConfig bounds batch and product analyses.
type BatchConfig struct {
	Concurrency int // BATCH_CONCURRENCY
	MaxSize     int // MAX_BATCH_SIZE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must exceed SEARCH_TIMEOUT for analysis routes
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBPath string // SQLite path

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Knowledge tiers
	Search    SearchConfig
	Embedding EmbeddingConfig
	Semantic  SemanticConfig
	Redis     RedisConfig
	Registry  RegistryConfig
	Batch     BatchConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 64<<10)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBPath: getenv("DB_PATH", "data/allergen.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Search: SearchConfig{
			BaseURL:     getenv("OPENAI_BASE_URL", "https://api.openai.com"),
			APIKey:      getenv("OPENAI_API_KEY", ""),
			Model:       getenv("OPENAI_SEARCH_MODEL", "gpt-4o-search-preview"),
			ContextSize: strings.ToLower(getenv("SEARCH_CONTEXT_SIZE", "medium")),
			Timeout:     getdur("SEARCH_TIMEOUT", 45*time.Second),
			Coalesce:    getbool("SEARCH_COALESCE", true),
			RPS:         getfloat("SEARCH_RPS", 1.0),
			Burst:       getint("SEARCH_BURST", 2),
		},
		Embedding: EmbeddingConfig{
			Provider: strings.ToLower(getenv("EMBEDDER", "hash")),
			Model:    getenv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dim:      getint("EMBEDDING_DIM", 256),
		},
		Semantic: SemanticConfig{
			Backend:       strings.ToLower(getenv("SEMANTIC_BACKEND", "sqlite")),
			TopK:          getint("SEMANTIC_TOP_K", 10),
			MinSimilarity: getfloat("SEMANTIC_MIN_SIMILARITY", 0.5),
			TTLDays:       getint("SEMANTIC_TTL_DAYS", 30),
			StaleAsMiss:   getbool("SEMANTIC_STALE_AS_MISS", false),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
			Prefix:   getenv("REDIS_PREFIX", "allergen:semcache:"),
		},
		Registry: RegistryConfig{
			BaseURL:     getenv("PUBCHEM_BASE_URL", "https://pubchem.ncbi.nlm.nih.gov/rest/pug"),
			Timeout:     getdur("REGISTRY_TIMEOUT", 10*time.Second),
			NegativeTTL: getdur("REGISTRY_NEGATIVE_TTL", time.Hour),
			RPS:         getfloat("REGISTRY_RPS", 5.0),
		},
		Batch: BatchConfig{
			Concurrency: getint("BATCH_CONCURRENCY", 4),
			MaxSize:     getint("MAX_BATCH_SIZE", 50),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "allergen-intel-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if p, err := strconv.Atoi(cfg.Port); err != nil || p < 1 || p > 65535 {
		return cfg, fmt.Errorf("PORT must be a number in 1..65535, got %q", cfg.Port)
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if err := cfg.validateKnowledge(); err != nil {
		return cfg, err
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func (cfg Config) validateKnowledge() error {
	switch cfg.Search.ContextSize {
	case "low", "medium", "high":
	default:
		return errors.New("SEARCH_CONTEXT_SIZE must be one of: low, medium, high")
	}
	if cfg.Search.Timeout <= 0 {
		return errors.New("SEARCH_TIMEOUT must be > 0")
	}
	if cfg.Search.RPS <= 0 || cfg.Search.Burst < 1 {
		return errors.New("SEARCH_RPS must be > 0 and SEARCH_BURST >= 1")
	}
	switch cfg.Embedding.Provider {
	case "hash":
	case "openai":
		if cfg.Search.APIKey == "" {
			return errors.New("EMBEDDER=openai requires OPENAI_API_KEY")
		}
	default:
		return errors.New("EMBEDDER must be one of: hash, openai")
	}
	if cfg.Embedding.Dim < 8 || cfg.Embedding.Dim > 4096 {
		return errors.New("EMBEDDING_DIM must be in [8,4096]")
	}
	switch cfg.Semantic.Backend {
	case "sqlite", "memory":
	case "redis":
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return errors.New("SEMANTIC_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return errors.New("SEMANTIC_BACKEND must be one of: sqlite, memory, redis")
	}
	if cfg.Semantic.TopK < 1 {
		return errors.New("SEMANTIC_TOP_K must be >= 1")
	}
	if cfg.Semantic.MinSimilarity < 0 || cfg.Semantic.MinSimilarity > 1 {
		return errors.New("SEMANTIC_MIN_SIMILARITY must be between 0 and 1")
	}
	if cfg.Semantic.TTLDays < 1 {
		return errors.New("SEMANTIC_TTL_DAYS must be >= 1")
	}
	if cfg.Registry.Timeout <= 0 || cfg.Registry.NegativeTTL <= 0 || cfg.Registry.RPS <= 0 {
		return errors.New("REGISTRY_TIMEOUT, REGISTRY_NEGATIVE_TTL and REGISTRY_RPS must be > 0")
	}
	if cfg.Batch.Concurrency < 1 || cfg.Batch.MaxSize < 1 {
		return errors.New("BATCH_CONCURRENCY and MAX_BATCH_SIZE must be >= 1")
	}
	return nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
