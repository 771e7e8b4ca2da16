package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "90s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	t.Setenv("DB_PATH", "db.sqlite")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// Knowledge tiers
	t.Setenv("SEARCH_TIMEOUT", "30s")
	t.Setenv("SEARCH_COALESCE", "off")
	t.Setenv("SEARCH_CONTEXT_SIZE", "HIGH")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EMBEDDER", "openai")
	t.Setenv("EMBEDDING_DIM", "64")
	t.Setenv("SEMANTIC_BACKEND", "Redis")
	t.Setenv("SEMANTIC_TTL_DAYS", "7")
	t.Setenv("SEMANTIC_STALE_AS_MISS", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REGISTRY_NEGATIVE_TTL", "10m")
	t.Setenv("MAX_BATCH_SIZE", "20")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 90*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging / Docs
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DBPath != "db.sqlite" {
		t.Fatalf("db path unexpected: %q", cfg.DBPath)
	}

	// Rate limiting (parse fallback to defaults)
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}

	// Knowledge tiers
	if cfg.Search.Timeout != 30*time.Second || cfg.Search.Coalesce || cfg.Search.ContextSize != "high" ||
		cfg.Search.Model != "gpt-4o-search-preview" || cfg.Search.BaseURL != "https://api.openai.com" {
		t.Fatalf("search unexpected: %+v", cfg.Search)
	}
	if cfg.Embedding.Provider != "openai" || cfg.Embedding.Dim != 64 || cfg.Embedding.Model != "text-embedding-3-small" {
		t.Fatalf("embedding unexpected: %+v", cfg.Embedding)
	}
	if cfg.Semantic.Backend != "redis" || cfg.Semantic.TTLDays != 7 || !cfg.Semantic.StaleAsMiss ||
		cfg.Semantic.TopK != 10 || cfg.Semantic.MinSimilarity != 0.5 {
		t.Fatalf("semantic unexpected: %+v", cfg.Semantic)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 3 || cfg.Redis.Prefix != "allergen:semcache:" {
		t.Fatalf("redis unexpected: %+v", cfg.Redis)
	}
	if cfg.Registry.NegativeTTL != 10*time.Minute || cfg.Registry.Timeout != 10*time.Second || cfg.Registry.RPS != 5 {
		t.Fatalf("registry unexpected: %+v", cfg.Registry)
	}
	if cfg.Batch.MaxSize != 20 || cfg.Batch.Concurrency != 4 {
		t.Fatalf("batch unexpected: %+v", cfg.Batch)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_KnowledgeDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Search.Timeout != 45*time.Second || !cfg.Search.Coalesce || cfg.Search.RPS != 1 || cfg.Search.Burst != 2 {
		t.Fatalf("search defaults: %+v", cfg.Search)
	}
	if cfg.Embedding.Provider != "hash" || cfg.Embedding.Dim != 256 {
		t.Fatalf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Semantic.Backend != "sqlite" || cfg.Semantic.TTLDays != 30 || cfg.Semantic.StaleAsMiss {
		t.Fatalf("semantic defaults: %+v", cfg.Semantic)
	}
	if cfg.DBPath != "data/allergen.db" || cfg.OTEL.ServiceName != "allergen-intel-backend" {
		t.Fatalf("defaults: %q %q", cfg.DBPath, cfg.OTEL.ServiceName)
	}
	if cfg.WriteTimeout <= cfg.Search.Timeout {
		t.Fatalf("write timeout %v should exceed search timeout %v", cfg.WriteTimeout, cfg.Search.Timeout)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-numeric PORT", map[string]string{"PORT": "http"}, "PORT must be a number"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"max body bytes <= 0", map[string]string{"MAX_BODY_BYTES": "-1"}, "MAX_BODY_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl non-positive", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"bad context size", map[string]string{"SEARCH_CONTEXT_SIZE": "huge"}, "SEARCH_CONTEXT_SIZE"},
		{"search timeout zero", map[string]string{"SEARCH_TIMEOUT": "0s"}, "SEARCH_TIMEOUT"},
		{"search rps zero", map[string]string{"SEARCH_RPS": "0"}, "SEARCH_RPS"},
		{"unknown embedder", map[string]string{"EMBEDDER": "bert"}, "EMBEDDER"},
		{"openai embedder without key", map[string]string{"EMBEDDER": "openai"}, "OPENAI_API_KEY"},
		{"embedding dim too small", map[string]string{"EMBEDDING_DIM": "4"}, "EMBEDDING_DIM"},
		{"unknown backend", map[string]string{"SEMANTIC_BACKEND": "mongo"}, "SEMANTIC_BACKEND"},
		{"top k zero", map[string]string{"SEMANTIC_TOP_K": "0"}, "SEMANTIC_TOP_K"},
		{"similarity out of range", map[string]string{"SEMANTIC_MIN_SIMILARITY": "1.5"}, "SEMANTIC_MIN_SIMILARITY"},
		{"ttl days zero", map[string]string{"SEMANTIC_TTL_DAYS": "0"}, "SEMANTIC_TTL_DAYS"},
		{"registry rps zero", map[string]string{"REGISTRY_RPS": "0"}, "REGISTRY_RPS"},
		{"batch size zero", map[string]string{"MAX_BATCH_SIZE": "0"}, "MAX_BATCH_SIZE"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + keySuffix(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + keySuffix(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	in := " a, ,b ,  c  ,"
	want := []string{"a", "b", "c"}
	if got := splitCSV(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}

	if normalizeBasePath("") != "/" {
		t.Fatalf("normalizeBasePath empty -> '/' failed")
	}
	if normalizeBasePath("v1") != "/v1" {
		t.Fatalf("normalizeBasePath missing leading slash failed")
	}
	if normalizeBasePath("/v1/") != "/v1" {
		t.Fatalf("normalizeBasePath trailing slash trim failed")
	}
	if normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath whitespace failed")
	}
}

func keySuffix(i int) string { return string('a' + rune(i)) }

func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "OPENAI_API_KEY", "EMBEDDER", "SEMANTIC_BACKEND", "DB_PATH"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("unexpected base path from MustLoad: %q", cfg.APIBasePath)
	}
}
