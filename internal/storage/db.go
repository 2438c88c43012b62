// Package db provides PostgreSQL database access for the change observer.
//
// This package contains:
//   - DB: Connection pool wrapper
//   - Repository methods for websites, settings, scrape results, alerts,
//     crawl sessions and the analyzed opportunity ledger
//   - Migration support via goose
//   - Type conversions between Go and PostgreSQL types
//
// Queries are written against pgx directly and scanned into pgtype values.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps a PostgreSQL connection pool and exposes the repository methods.
type DB struct {
	Pool   *pgxpool.Pool
	Logger *zerolog.Logger
}

// PoolOptions tunes the pgx pool. Zero fields keep the pgx default.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolOptions returns the pool sizing used by the worker.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          defaultMaxConns,
		MinConns:          defaultMinConns,
		MaxConnIdleTime:   defaultMaxConnIdleTime,
		MaxConnLifetime:   defaultMaxConnLifetime,
		HealthCheckPeriod: defaultHealthCheckPeriod,
	}
}

// New connects with DefaultPoolOptions.
func New(ctx context.Context, dsn string, logger *zerolog.Logger) (*DB, error) {
	return NewWithOptions(ctx, dsn, DefaultPoolOptions(), logger)
}

// NewWithOptions parses dsn, applies opts and connects, retrying while the
// database is still coming up.
func NewWithOptions(ctx context.Context, dsn string, opts PoolOptions, logger *zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	opts.apply(cfg)

	pool, err := dial(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &DB{Pool: pool, Logger: logger}, nil
}

func (o PoolOptions) apply(cfg *pgxpool.Config) {
	if o.MaxConns > 0 {
		cfg.MaxConns = o.MaxConns
	}

	if o.MinConns > 0 {
		cfg.MinConns = o.MinConns
	}

	if o.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = o.MaxConnIdleTime
	}

	if o.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = o.MaxConnLifetime
	}

	if o.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = o.HealthCheckPeriod
	}
}

// dial opens the pool and pings it, up to maxConnectionRetries attempts.
func dial(ctx context.Context, cfg *pgxpool.Config, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	var lastErr error

	for attempt := 1; attempt <= maxConnectionRetries; attempt++ {
		pool, err := openAndPing(ctx, cfg)
		if err == nil {
			return pool, nil
		}

		lastErr = err

		logger.Warn().Err(err).Int("attempt", attempt).Msg("database not reachable yet")

		timer := time.NewTimer(ConnectionRetrySleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("connect to database: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("connect to database after %d attempts: %w", maxConnectionRetries, lastErr)
}

func openAndPing(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	return nil
}
