// Package store is the durable side of the tracking hub: a PostgreSQL
// persistence layer over a pgx connection pool. It owns the normalized
// schema (users, devices, sessions, points, laps, waypoints, planned
// events), the get-or-create identity resolution, the single-transaction
// point ingest, and the read paths for history preload, lap times, and
// the weather/barometer digests.
//
// The store is optional at runtime. When the database is unreachable at
// startup the server runs memory-only; a nil *Store is valid and every
// method on it reports ErrUnavailable.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bernd-roth/GeoTracker/internal/config"
)

// -------------------------------------------------------------------------
// Store Errors
// -------------------------------------------------------------------------

// Sentinel errors for Store operations.
var (
	// ErrUnavailable indicates the store is running without a database
	// (degraded, memory-only mode).
	ErrUnavailable = errors.New("store unavailable")

	// ErrSessionNotFound indicates no tracking session exists for the
	// given session id.
	ErrSessionNotFound = errors.New("tracking session not found")

	// ErrNoDevice indicates the device name was empty, whitespace, or the
	// literal "None" and no device row applies.
	ErrNoDevice = errors.New("no heart rate device")
)

// -------------------------------------------------------------------------
// Store
// -------------------------------------------------------------------------

// Store wraps the pgx pool with the tracking persistence operations.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects the pool, applies the schema, and verifies the connection
// with a round trip. The caller decides whether a failure is fatal or the
// start of degraded mode.
func Open(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] =
		strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	s := &Store{
		pool:   pool,
		logger: logger.With(slog.String("component", "store")),
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connection test: %w", err)
	}

	s.logger.Info("database connection pool ready",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("database", cfg.Name),
	)
	return s, nil
}

// Available reports whether durable writes are possible.
func (s *Store) Available() bool {
	return s != nil && s.pool != nil
}

// Close releases the pool. Safe on a nil store.
func (s *Store) Close() {
	if s.Available() {
		s.pool.Close()
		s.logger.Info("database connection pool closed")
	}
}

// withTx runs fn inside a transaction, committing on nil error.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isNoRows reports whether err is the pgx empty-result sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// nullableTime converts a *time.Time for insertion, preserving NULL.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
