// Package loader publishes a finished POI table into a PostgreSQL schema
// with COPY, so it can be queried with the pgx driver.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/parquet"
	"github.com/wegman-software/osmpoi-go/internal/poi"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

// Stats holds loader statistics
type Stats struct {
	RowsLoaded int64
	Duration   time.Duration
}

// Producer streams POIs to fn until it is exhausted or fn fails.
type Producer func(ctx context.Context, fn func(poi.POI) error) error

// FromStore reads the poi table of a dataset store.
func FromStore(s *store.Store) Producer {
	return func(ctx context.Context, fn func(poi.POI) error) error {
		return poi.Scan(ctx, s, fn)
	}
}

// FromParquet reads a file written by parquet.Export.
func FromParquet(path string) Producer {
	return func(ctx context.Context, fn func(poi.POI) error) error {
		return parquet.Read(ctx, path, fn)
	}
}

// Loader copies POIs into PostgreSQL
type Loader struct {
	pool   *pgxpool.Pool
	schema string
}

// New connects to PostgreSQL. dsn must not set search_path; the schema is
// applied per transaction.
func New(ctx context.Context, dsn, schema string) (*Loader, error) {
	if !store.ValidIdent(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return &Loader{pool: pool, schema: schema}, nil
}

// Close closes connections
func (l *Loader) Close() {
	l.pool.Close()
}

// Load replaces <schema>.poi with the rows of src in one transaction.
func (l *Loader) Load(ctx context.Context, src Producer) (*Stats, error) {
	log := logger.Get()
	start := time.Now()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	setup := []string{
		"CREATE SCHEMA IF NOT EXISTS " + l.schema,
		"SET LOCAL search_path TO " + l.schema,
		"DROP TABLE IF EXISTS poi",
	}
	setup = append(setup, poi.CreateStatements...)
	for _, stmt := range setup {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("preparing %s.poi: %w", l.schema, err)
		}
	}

	copyCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rows := newRowSource(copyCtx, src)

	count, err := tx.CopyFrom(ctx, pgx.Identifier{"poi"}, poi.Columns, rows)
	if err != nil {
		return nil, fmt.Errorf("COPY failed: %w", err)
	}

	log.Info("Creating index", zap.String("schema", l.schema))
	if _, err := tx.Exec(ctx, poi.IndexStatement); err != nil {
		return nil, fmt.Errorf("indexing poi: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	stats := &Stats{RowsLoaded: count, Duration: time.Since(start)}
	log.Info("Table loaded",
		zap.String("schema", l.schema),
		zap.Int64("rows", stats.RowsLoaded),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)))
	return stats, nil
}
