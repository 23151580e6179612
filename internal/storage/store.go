package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"trading-analyst/internal/config"
)

var (
	// ErrNotConfigured indicates no database DSN was provided.
	ErrNotConfigured = errors.New("storage: database not configured")
)

// AnalysisStore persists analysis runs.
type AnalysisStore interface {
	InsertAnalysis(ctx context.Context, rec AnalysisRecord) error
	ListRecentAnalyses(ctx context.Context, limit int) ([]AnalysisRecord, error)
}

// MergeRunStore persists merged groups.
type MergeRunStore interface {
	InsertMergeRun(ctx context.Context, rec MergeRunRecord) error
	ListRecentMergeRuns(ctx context.Context, limit int) ([]MergeRunRecord, error)
}

// Store aggregates both record kinds plus lifecycle hooks.
type Store interface {
	AnalysisStore
	MergeRunStore
	EnsureSchema(ctx context.Context) error
	Close()
}

// Backend names a storage engine.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// ParseDSN picks the backend for dsn. postgres:// and postgresql:// use pgx;
// sqlite://path, file: URIs and bare paths use the embedded database.
func ParseDSN(dsn string) (Backend, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", ErrNotConfigured
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return BackendPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite dsn has no path: %q", dsn)
		}
		return BackendSQLite, path, nil
	default:
		return BackendSQLite, dsn, nil
	}
}

// Open connects to the configured backend and ensures its schema exists.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	backend, target, err := ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	var store Store
	switch backend {
	case BackendPostgres:
		cfg.DSN = target
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = NewPGStore(pool)
	case BackendSQLite:
		s, err := OpenSQLite(target)
		if err != nil {
			return nil, err
		}
		store = s
	}

	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
