package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-nhl/internal/accuracy"
	"github.com/albapepper/scoracle-nhl/internal/runs"
	"github.com/albapepper/scoracle-nhl/internal/strength"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeRows serves canned rows, assigning each value to its destination.
type fakeRows struct {
	data [][]any
	i    int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.i-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.i-1]
	if len(row) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		if v == nil {
			continue
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

type fakeRow struct {
	rows *fakeRows
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if !r.rows.Next() {
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

type fakeBatchResults struct {
	n      int
	failAt int
	err    error
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	b.n++
	if b.failAt > 0 && b.n == b.failAt {
		return pgconn.CommandTag{}, b.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}
func (b *fakeBatchResults) Query() (pgx.Rows, error) { return &fakeRows{}, nil }
func (b *fakeBatchResults) QueryRow() pgx.Row        { return fakeRow{rows: &fakeRows{}} }
func (b *fakeBatchResults) Close() error             { return nil }

type fakeDB struct {
	rows    map[string][][]any
	execTag string
	execSQL []string
	execArg [][]any
	batches []*pgx.Batch
	results *fakeBatchResults
}

func (d *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execSQL = append(d.execSQL, sql)
	d.execArg = append(d.execArg, args)
	return pgconn.NewCommandTag(d.execTag), nil
}

func (d *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	return &fakeRows{data: d.rows[sql]}, nil
}

func (d *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	return fakeRow{rows: &fakeRows{data: d.rows[sql]}}
}

func (d *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	d.batches = append(d.batches, b)
	if d.results == nil {
		d.results = &fakeBatchResults{}
	}
	return d.results
}

func TestUpsertPlayerGameRows_QueuesOneStatementPerRow(t *testing.T) {
	db := &fakeDB{}
	s := New(db, quiet)
	rows := []strength.PlayerGameRow{
		{GameID: 1, PlayerID: 8, TeamID: 10, TOI: strength.Split{ES: 600, PP: 60}},
		{GameID: 1, PlayerID: 9, TeamID: 10, Goals: strength.Split{PP: 1}},
	}

	require.NoError(t, s.UpsertPlayerGameRows(context.Background(), rows))

	require.Len(t, db.batches, 1)
	q := db.batches[0].QueuedQueries
	require.Len(t, q, 2)
	assert.Contains(t, q[0].SQL, "ON CONFLICT (game_id, player_id) DO UPDATE")
	assert.Len(t, q[0].Arguments, 17)
	assert.Equal(t, 600, q[0].Arguments[5])
	assert.Equal(t, 1, q[1].Arguments[12])
}

func TestUpsert_EmptyBatchIsNoop(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db, quiet).UpsertTeamGameRows(context.Background(), nil))
	assert.Empty(t, db.batches)
}

func TestSendBatch_ReportsFailingRow(t *testing.T) {
	db := &fakeDB{results: &fakeBatchResults{failAt: 2, err: errors.New("deadlock detected")}}
	rows := []accuracy.ScopeAggregate{{Scope: accuracy.ScopeOverall}, {Scope: accuracy.ScopeSkater}}

	err := New(db, quiet).UpsertScopeAggregates(context.Background(), rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
	assert.Contains(t, err.Error(), "deadlock detected")
}

func TestProcessedGames(t *testing.T) {
	db := &fakeDB{rows: map[string][][]any{"processed_games": {{int64(3)}, {int64(5)}}}}

	got, err := New(db, quiet).ProcessedGames(context.Background(), []int64{3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{3: true, 5: true}, got)
}

func TestTeamHistory_NoGamesIsNil(t *testing.T) {
	db := &fakeDB{rows: map[string][][]any{"team_history": {{0, 0.0, 0.0, 0.0, 0.0}}}}
	h, err := New(db, quiet).TeamHistory(context.Background(), 10, time.Now())
	require.NoError(t, err)
	assert.Nil(t, h)

	db.rows["team_history"] = [][]any{{10, 15000.0, 3000.0, 25.0, 5.0}}
	h, err = New(db, quiet).TeamHistory(context.Background(), 10, time.Now())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, 10, h.TeamID)
	assert.Equal(t, 3000.0, h.TOIPP)
}

func TestRunningAggregates(t *testing.T) {
	db := &fakeDB{rows: map[string][][]any{"running_aggregates": {
		{"overall", 4, 2.5, 3.0, 5.0},
		{"goalie", 1, 0.5, 1.0, 1.0},
	}}}

	got, err := New(db, quiet).RunningAggregates(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, accuracy.Aggregate{Count: 4, AccuracySum: 2.5, ErrorAbsSum: 3, ErrorSqSum: 5}, got[accuracy.ScopeOverall])
	assert.NotContains(t, got, accuracy.ScopeSkater)
}

func TestFinalizeRun_OnlyFromRunning(t *testing.T) {
	db := &fakeDB{execTag: "UPDATE 0"}
	s := New(db, quiet)
	now := time.Now()
	r := runs.Run{ID: uuid.New(), Status: runs.StatusSucceeded, FinishedAt: &now}

	err := s.FinalizeRun(context.Background(), r)
	assert.ErrorIs(t, err, runs.ErrAlreadyFinalized)
	assert.True(t, strings.Contains(db.execSQL[0], "status = 'running'"))

	db.execTag = "UPDATE 1"
	require.NoError(t, s.FinalizeRun(context.Background(), r))
}

func TestGetRun_MissingIsNil(t *testing.T) {
	r, err := New(&fakeDB{}, quiet).GetRun(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestGetRun_DecodesMetrics(t *testing.T) {
	id := uuid.New()
	started := time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)
	db := &fakeDB{rows: map[string][][]any{"run_by_id": {{
		id, "projection", started, "succeeded", []byte(`{"counters":{"games_projected":3}}`), "", started, nil,
	}}}}

	r, err := New(db, quiet).GetRun(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, runs.KindProjection, r.Kind)
	assert.Equal(t, runs.StatusSucceeded, r.Status)
	assert.Equal(t, 3.0, r.Metrics.Counters["games_projected"])
	assert.Nil(t, r.FinishedAt)
}

func TestAbandonStaleRuns(t *testing.T) {
	db := &fakeDB{execTag: "UPDATE 2"}
	cutoff := time.Date(2024, 11, 5, 6, 0, 0, 0, time.UTC)

	n, err := New(db, quiet).AbandonStaleRuns(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, db.execSQL[0], "WHERE status = 'running' AND started_at < $1")
	assert.Equal(t, []any{cutoff}, db.execArg[0])
}

func TestDeleteSupersededRuns_DropsRowsBeforeRuns(t *testing.T) {
	db := &fakeDB{}
	asOf := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	keep := uuid.New()

	require.NoError(t, New(db, quiet).DeleteSupersededRuns(context.Background(), asOf, keep))

	require.Len(t, db.batches, 1)
	q := db.batches[0].QueuedQueries
	require.Len(t, q, 4)
	for i, table := range []string{"player_projections", "team_projections", "goalie_projections", "projection_runs"} {
		assert.True(t, strings.HasPrefix(q[i].SQL, "DELETE FROM "+table+" "), q[i].SQL)
		assert.Contains(t, q[i].SQL, "status <> 'running'")
		assert.Equal(t, []any{asOf, keep}, q[i].Arguments)
	}
}
