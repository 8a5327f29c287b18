package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/albapepper/scoracle-nhl/internal/accuracy"
	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/projection"
)

// PlayerProjections returns every skater projection of a run.
func (s *Store) PlayerProjections(ctx context.Context, runID uuid.UUID) ([]projection.PlayerProjection, error) {
	return collect(ctx, s.db, "player_projections", func(r pgx.Rows) (projection.PlayerProjection, error) {
		var p projection.PlayerProjection
		err := r.Scan(
			&p.RunID, &p.GameID, &p.PlayerID, &p.TeamID, &p.OpponentID, &p.HorizonGames, &p.AsOfDate,
			&p.Availability, &p.TOIES, &p.TOIPP, &p.ShotsES, &p.ShotsPP,
			&p.Goals, &p.Assists, &p.Hits, &p.Blocks,
		)
		return p, err
	}, runID)
}

// GoalieProjections returns every goalie projection of a run.
func (s *Store) GoalieProjections(ctx context.Context, runID uuid.UUID) ([]projection.GoalieProjection, error) {
	return collect(ctx, s.db, "goalie_projections", func(r pgx.Rows) (projection.GoalieProjection, error) {
		var g projection.GoalieProjection
		err := r.Scan(
			&g.RunID, &g.GameID, &g.GoalieID, &g.TeamID, &g.OpponentID, &g.HorizonGames, &g.AsOfDate,
			&g.StartProbability, &g.StarterSource, &g.ShotsAgainst, &g.Saves, &g.GoalsAllowed,
			&g.WinProbability, &g.ShutoutProbability,
		)
		return g, err
	}, runID)
}

// OccurredGames returns the final games played on date.
func (s *Store) OccurredGames(ctx context.Context, date time.Time) (map[int64]bool, error) {
	ids, err := collect(ctx, s.db, "occurred_games", func(r pgx.Rows) (int64, error) {
		var id int64
		err := r.Scan(&id)
		return id, err
	}, date)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// SkaterActuals returns realized skater lines for games on date.
func (s *Store) SkaterActuals(ctx context.Context, date time.Time) ([]accuracy.ActualLine, error) {
	return collect(ctx, s.db, "skater_actuals", func(r pgx.Rows) (accuracy.ActualLine, error) {
		var a accuracy.ActualLine
		err := r.Scan(&a.PlayerID, &a.GameID, &a.TeamID,
			&a.Line.Goals, &a.Line.Assists, &a.Line.Shots, &a.Line.Hits, &a.Line.Blocks)
		return a, err
	}, date)
}

func scanGoalieLine(r pgx.Rows) (accuracy.ActualLine, error) {
	var a accuracy.ActualLine
	err := r.Scan(&a.PlayerID, &a.GameID, &a.TeamID,
		&a.Line.Saves, &a.Line.GoalsAgainst, &a.Line.Win, &a.Line.Shutout)
	return a, err
}

// GoalieActuals returns realized goalie lines from the box-score feed.
func (s *Store) GoalieActuals(ctx context.Context, date time.Time) ([]accuracy.ActualLine, error) {
	return collect(ctx, s.db, "goalie_actuals", scanGoalieLine, date)
}

// GoalieActualsFallback returns realized goalie lines from the game-summary
// feed, used when the box score has no row.
func (s *Store) GoalieActualsFallback(ctx context.Context, date time.Time) ([]accuracy.ActualLine, error) {
	return collect(ctx, s.db, "goalie_actuals_fallback", scanGoalieLine, date)
}

// RunningAggregates returns the running totals persisted for date.
func (s *Store) RunningAggregates(ctx context.Context, date time.Time) (map[accuracy.Scope]accuracy.Aggregate, error) {
	type scoped struct {
		scope accuracy.Scope
		agg   accuracy.Aggregate
	}
	rows, err := collect(ctx, s.db, "running_aggregates", func(r pgx.Rows) (scoped, error) {
		var sc scoped
		var scope string
		err := r.Scan(&scope, &sc.agg.Count, &sc.agg.AccuracySum, &sc.agg.ErrorAbsSum, &sc.agg.ErrorSqSum)
		sc.scope = accuracy.Scope(scope)
		return sc, err
	}, date)
	if err != nil {
		return nil, err
	}
	out := make(map[accuracy.Scope]accuracy.Aggregate, len(rows))
	for _, r := range rows {
		out[r.scope] = r.agg
	}
	return out, nil
}

// UpsertResults writes scored player-games keyed by
// (as-of, actual date, player, game, type).
func (s *Store) UpsertResults(ctx context.Context, rows []accuracy.ResultRow) error {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
			INSERT INTO `+config.AccuracyResultsTable+` (
				as_of_date, actual_date, player_id, game_id, player_type, run_id, team_id,
				predicted, actual, predicted_points, actual_points, error_abs, error_sq, accuracy
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (as_of_date, actual_date, player_id, game_id, player_type) DO UPDATE SET
				run_id = EXCLUDED.run_id,
				team_id = EXCLUDED.team_id,
				predicted = EXCLUDED.predicted,
				actual = EXCLUDED.actual,
				predicted_points = EXCLUDED.predicted_points,
				actual_points = EXCLUDED.actual_points,
				error_abs = EXCLUDED.error_abs,
				error_sq = EXCLUDED.error_sq,
				accuracy = EXCLUDED.accuracy`,
			r.AsOfDate, r.ActualDate, r.PlayerID, r.GameID, string(r.PlayerType), r.RunID, r.TeamID,
			r.Predicted, r.Actual, r.PredPoints, r.ActPoints, r.ErrorAbs, r.ErrorSq, r.Accuracy,
		)
	}
	return s.sendBatch(ctx, config.AccuracyResultsTable, b)
}

// UpsertStatAggregates writes per-stat aggregates keyed by
// (actual date, type, stat).
func (s *Store) UpsertStatAggregates(ctx context.Context, rows []accuracy.StatAggregate) error {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
			INSERT INTO `+config.AccuracyStatTable+` (
				actual_date, player_type, stat, run_id, count, error_abs_sum, error_sq_sum, mae, rmse
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (actual_date, player_type, stat) DO UPDATE SET
				run_id = EXCLUDED.run_id,
				count = EXCLUDED.count,
				error_abs_sum = EXCLUDED.error_abs_sum,
				error_sq_sum = EXCLUDED.error_sq_sum,
				mae = EXCLUDED.mae,
				rmse = EXCLUDED.rmse`,
			r.ActualDate, string(r.PlayerType), string(r.Stat), r.RunID,
			r.Count, r.ErrorAbsSum, r.ErrorSqSum, r.MAE(), r.RMSE(),
		)
	}
	return s.sendBatch(ctx, config.AccuracyStatTable, b)
}

// UpsertPlayerAggregates writes per-player daily aggregates keyed by
// (actual date, player, type).
func (s *Store) UpsertPlayerAggregates(ctx context.Context, rows []accuracy.PlayerAggregate) error {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
			INSERT INTO `+config.AccuracyPlayerTable+` (
				actual_date, player_id, player_type, count, accuracy_sum, error_abs_sum, error_sq_sum,
				accuracy_avg, mae, rmse
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (actual_date, player_id, player_type) DO UPDATE SET
				count = EXCLUDED.count,
				accuracy_sum = EXCLUDED.accuracy_sum,
				error_abs_sum = EXCLUDED.error_abs_sum,
				error_sq_sum = EXCLUDED.error_sq_sum,
				accuracy_avg = EXCLUDED.accuracy_avg,
				mae = EXCLUDED.mae,
				rmse = EXCLUDED.rmse`,
			r.ActualDate, r.PlayerID, string(r.PlayerType), r.Count, r.AccuracySum, r.ErrorAbsSum, r.ErrorSqSum,
			r.AccuracyAvg(), r.MAE(), r.RMSE(),
		)
	}
	return s.sendBatch(ctx, config.AccuracyPlayerTable, b)
}

// UpsertScopeAggregates writes daily and running aggregates keyed by
// (actual date, scope).
func (s *Store) UpsertScopeAggregates(ctx context.Context, rows []accuracy.ScopeAggregate) error {
	b := &pgx.Batch{}
	for _, r := range rows {
		d, run := r.Daily, r.Running
		b.Queue(`
			INSERT INTO `+config.AccuracyScopeTable+` (
				actual_date, scope,
				daily_count, daily_accuracy_sum, daily_error_abs_sum, daily_error_sq_sum,
				daily_accuracy_avg, daily_mae, daily_rmse,
				running_count, running_accuracy_sum, running_error_abs_sum, running_error_sq_sum,
				running_accuracy_avg, running_mae, running_rmse
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (actual_date, scope) DO UPDATE SET
				daily_count = EXCLUDED.daily_count,
				daily_accuracy_sum = EXCLUDED.daily_accuracy_sum,
				daily_error_abs_sum = EXCLUDED.daily_error_abs_sum,
				daily_error_sq_sum = EXCLUDED.daily_error_sq_sum,
				daily_accuracy_avg = EXCLUDED.daily_accuracy_avg,
				daily_mae = EXCLUDED.daily_mae,
				daily_rmse = EXCLUDED.daily_rmse,
				running_count = EXCLUDED.running_count,
				running_accuracy_sum = EXCLUDED.running_accuracy_sum,
				running_error_abs_sum = EXCLUDED.running_error_abs_sum,
				running_error_sq_sum = EXCLUDED.running_error_sq_sum,
				running_accuracy_avg = EXCLUDED.running_accuracy_avg,
				running_mae = EXCLUDED.running_mae,
				running_rmse = EXCLUDED.running_rmse`,
			r.ActualDate, string(r.Scope),
			d.Count, d.AccuracySum, d.ErrorAbsSum, d.ErrorSqSum, d.AccuracyAvg(), d.MAE(), d.RMSE(),
			run.Count, run.AccuracySum, run.ErrorAbsSum, run.ErrorSqSum, run.AccuracyAvg(), run.MAE(), run.RMSE(),
		)
	}
	return s.sendBatch(ctx, config.AccuracyScopeTable, b)
}
