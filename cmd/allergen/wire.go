package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/allergen-intel-backend/internal/cache"
	"github.com/tbourn/allergen-intel-backend/internal/config"
	"github.com/tbourn/allergen-intel-backend/internal/generative"
	"github.com/tbourn/allergen-intel-backend/internal/oaihttp"
	"github.com/tbourn/allergen-intel-backend/internal/registry"
	"github.com/tbourn/allergen-intel-backend/internal/repo"
	"github.com/tbourn/allergen-intel-backend/internal/search"
	"github.com/tbourn/allergen-intel-backend/internal/services"
	"github.com/tbourn/allergen-intel-backend/internal/sysutil"
)

// loadConfig reads the dotenv file named by --env-file (a missing file is
// fine), loads the environment configuration and installs the global logger.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Root().PersistentFlags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	sysutil.ConfigureLogging(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	return cfg, nil
}

// app holds the wired knowledge stack.
type app struct {
	db      *gorm.DB
	svc     *services.AnalysisService
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("shutdown: close failed")
		}
	}
}

// newApp opens the database, builds the semantic cache, registry client and
// generative search, and returns the analysis service over them.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := repo.OpenSQLite(cfg.DBPath, repo.WithTracing())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	if err := repo.AutoMigrate(db); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	oai, err := oaihttp.New(oaihttp.Config{BaseURL: cfg.Search.BaseURL, APIKey: cfg.Search.APIKey})
	if err != nil {
		a.Close()
		return nil, err
	}

	emb, err := newEmbedder(cfg.Embedding, oai)
	if err != nil {
		a.Close()
		return nil, err
	}
	store, closeStore, err := newVectorStore(ctx, cfg, db)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	semantic := cache.NewSemanticCache(emb, store)
	semantic.TopK = cfg.Semantic.TopK
	semantic.MinSimilarity = cfg.Semantic.MinSimilarity
	semantic.TTLDays = cfg.Semantic.TTLDays
	if cfg.Semantic.StaleAsMiss {
		semantic.Policy = cache.StaleAsMiss
	}

	reg := registry.NewPubChem(registry.Config{
		BaseURL:     cfg.Registry.BaseURL,
		Timeout:     cfg.Registry.Timeout,
		NegativeTTL: cfg.Registry.NegativeTTL,
		RPS:         cfg.Registry.RPS,
	}, registry.WithResponseCache(semantic))

	gen := generative.New(oai, generative.Config{
		Model:             cfg.Search.Model,
		SearchContextSize: cfg.Search.ContextSize,
		RPS:               cfg.Search.RPS,
		Burst:             cfg.Search.Burst,
	})

	coord := services.NewCoordinator(db, semantic, reg, gen)
	coord.SearchTimeout = cfg.Search.Timeout
	coord.Coalesce = cfg.Search.Coalesce

	svc := services.NewAnalysisService(coord)
	svc.MaxBatchSize = cfg.Batch.MaxSize
	svc.BatchConcurrency = cfg.Batch.Concurrency
	svc.BreakerState = gen.State
	a.svc = svc

	log.Info().
		Str("db", cfg.DBPath).
		Str("semantic_backend", cfg.Semantic.Backend).
		Str("embedder", cfg.Embedding.Provider).
		Str("search_model", cfg.Search.Model).
		Dur("search_timeout", cfg.Search.Timeout).
		Bool("coalesce", cfg.Search.Coalesce).
		Msg("knowledge tiers ready")
	return a, nil
}

func newEmbedder(cfg config.EmbeddingConfig, oai *oaihttp.Client) (search.Embedder, error) {
	switch cfg.Provider {
	case "", "hash":
		return search.NewHashEmbedder(search.WithDimension(cfg.Dim)), nil
	case "openai":
		return search.NewOpenAIEmbedder(oai, cfg.Model, cfg.Dim)
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Provider)
	}
}

// newVectorStore returns the semantic backend and, for remote stores, a
// closer for the connection.
func newVectorStore(ctx context.Context, cfg config.Config, db *gorm.DB) (search.VectorStore, func() error, error) {
	switch cfg.Semantic.Backend {
	case "", "sqlite":
		return search.NewSQLStore(db), nil, nil
	case "memory":
		return search.NewMemoryStore(cfg.Embedding.Dim), nil, nil
	case "redis":
		rdb, err := search.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return search.NewRedisStore(rdb, cfg.Redis.Prefix), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown semantic backend %q", cfg.Semantic.Backend)
	}
}
