// Package store implements every pipeline read and write interface over
// Postgres. Reads go through the prepared statements registered by the db
// package; upserts are sent as pgx batches keyed on each table's natural key.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/scoracle-nhl/internal/accuracy"
	"github.com/albapepper/scoracle-nhl/internal/projection"
	"github.com/albapepper/scoracle-nhl/internal/runs"
	"github.com/albapepper/scoracle-nhl/internal/strength"
)

var (
	_ strength.Store    = (*Store)(nil)
	_ projection.Source = (*Store)(nil)
	_ projection.Sink   = (*Store)(nil)
	_ accuracy.Source   = (*Store)(nil)
	_ accuracy.Sink     = (*Store)(nil)
	_ runs.Store        = (*Store)(nil)
)

// teamHistoryGames is how many recent games a team's targets average over.
const teamHistoryGames = 10

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store is the Postgres-backed pipeline store.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// sendBatch executes every queued statement and closes the batch.
func (s *Store) sendBatch(ctx context.Context, table string, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	br := s.db.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert %s row %d: %w", table, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	s.logger.Debug("Batch upserted", "table", table, "rows", b.Len())
	return nil
}

// collect runs a prepared query and scans every row with scan.
func collect[T any](ctx context.Context, db DB, stmt string, scan func(pgx.Rows) (T, error), args ...any) ([]T, error) {
	rows, err := db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", stmt, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", stmt, err)
	}
	return out, nil
}
