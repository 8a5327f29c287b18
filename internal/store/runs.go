package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/runs"
)

// InsertRun records a new running run.
func (s *Store) InsertRun(ctx context.Context, r runs.Run) error {
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO `+config.RunsTable+` (id, kind, as_of_date, status, metrics, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, string(r.Kind), r.AsOfDate, string(r.Status), metrics, r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// FinalizeRun moves a running run to its terminal status. A run that is no
// longer running is left untouched and reported as already finalized.
func (s *Store) FinalizeRun(ctx context.Context, r runs.Run) error {
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE `+config.RunsTable+`
		SET status = $2,
			metrics = $3,
			error = NULLIF($4, ''),
			finished_at = $5
		WHERE id = $1 AND status = 'running'`,
		r.ID, string(r.Status), metrics, r.Error, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return runs.ErrAlreadyFinalized
	}
	return nil
}

func scanRun(row pgx.Row) (*runs.Run, error) {
	var r runs.Run
	var kind, status string
	var metrics []byte
	if err := row.Scan(&r.ID, &kind, &r.AsOfDate, &status, &metrics, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	r.Kind, r.Status = runs.Kind(kind), runs.Status(status)
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	return &r, nil
}

// LatestSucceededRun returns the most recent succeeded run of kind for asOf,
// or nil when there is none.
func (s *Store) LatestSucceededRun(ctx context.Context, kind runs.Kind, asOf time.Time) (*runs.Run, error) {
	r, err := scanRun(s.db.QueryRow(ctx, "latest_succeeded_run", string(kind), asOf))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest %s run: %w", kind, err)
	}
	return r, nil
}

// GetRun returns a run by id, or nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*runs.Run, error) {
	r, err := scanRun(s.db.QueryRow(ctx, "run_by_id", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// AbandonStaleRuns fails runs still marked running that started before
// cutoff. A process that dies mid-run leaves such rows behind.
func (s *Store) AbandonStaleRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE `+config.RunsTable+`
		SET status = 'failed',
			error = 'abandoned: process exited before the run finished',
			finished_at = NOW()
		WHERE status = 'running' AND started_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("abandon stale runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
