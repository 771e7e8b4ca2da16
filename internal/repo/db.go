// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/allergen-intel-backend/internal/domain"
)

// Option tweaks how OpenSQLite configures the returned handle.
type Option func(*openOptions)

type openOptions struct {
	tracing  bool
	logLevel logger.LogLevel
}

// WithTracing installs the GORM OpenTelemetry plugin so every statement is
// recorded as a span under the active request trace.
func WithTracing() Option { return func(o *openOptions) { o.tracing = true } }

// WithLogLevel overrides the GORM logger level (default: Warn).
func WithLogLevel(l logger.LogLevel) Option { return func(o *openOptions) { o.logLevel = l } }

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string, opts ...Option) (*gorm.DB, error) {
	o := openOptions{logLevel: logger.Warn}
	for _, fn := range opts {
		fn(&o)
	}

	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(withPragmas(path)), &gorm.Config{
		Logger: logger.Default.LogMode(o.logLevel),
	})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if o.tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// withPragmas appends per-connection PRAGMAs to the DSN. Statements executed
// after Open only reach one pooled connection, foreign keys and the busy
// timeout must hold on all of them.
func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.ChemicalIdentity{},
		&domain.SideEffect{},
		&domain.SemanticEntry{},
		&domain.Idempotency{},
	)
}
