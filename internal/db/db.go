// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/scoracle-nhl/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Statements maps every prepared statement name to its SQL. Exposed so the
// store can be pointed at a connection that was not opened through New.
var Statements = map[string]string{
	// Health
	"health_check": "SELECT 1",

	// Strength: raw feeds
	"games_between": `SELECT id, game_date, season, game_type, home_team_id, away_team_id
		FROM ` + config.GamesTable + ` WHERE game_date BETWEEN $1 AND $2 ORDER BY game_date, id`,
	"game_by_id": `SELECT id, game_date, season, game_type, home_team_id, away_team_id
		FROM ` + config.GamesTable + ` WHERE id = $1`,
	"shift_rows": `SELECT game_id, player_id, team_id, period, start_time, end_time, duration
		FROM ` + config.ShiftsTable + ` WHERE game_id = $1`,
	"play_rows": `SELECT game_id, event_id, period, time_in_period, situation_code, type_desc_key,
			event_owner_team_id, shooting_player_id, scoring_player_id, assist1_player_id, assist2_player_id
		FROM ` + config.PlaysTable + ` WHERE game_id = $1 ORDER BY period, event_id`,

	// Strength: persisted rows
	"player_strength_rows": `SELECT game_id, game_date, season, player_id, team_id,
			toi_es, toi_pp, toi_pk, shots_es, shots_pp, shots_pk,
			goals_es, goals_pp, goals_pk, assists_es, assists_pp, assists_pk
		FROM ` + config.PlayerStrengthTable + ` WHERE game_id = $1`,
	"processed_games": `SELECT DISTINCT game_id FROM ` + config.PlayerStrengthTable + ` WHERE game_id = ANY($1)`,

	// Projection inputs
	"scheduled_games": `SELECT id, game_date, home_team_id, away_team_id
		FROM ` + config.GamesTable + ` WHERE game_date = $1 AND game_type IN (2, 3) ORDER BY id`,
	"team_skaters": `SELECT player_id FROM ` + config.RostersTable + `
		WHERE team_id = $1 AND position <> 'G' AND active ORDER BY player_id`,
	"team_goalies": `SELECT player_id FROM ` + config.RostersTable + `
		WHERE team_id = $1 AND position = 'G' AND active ORDER BY depth_order NULLS LAST, player_id`,
	"rolling_rows": `SELECT DISTINCT ON (player_id, strength) player_id, strength, as_of_date,
			toi_last5, toi_all_time, shots_per60_last5, shots_per60_all_time,
			hits_per60_last5, hits_per60_all_time, blocks_per60_last5, blocks_per60_all_time
		FROM ` + config.RollingTable + `
		WHERE player_id = ANY($1) AND as_of_date < $2
		ORDER BY player_id, strength, as_of_date DESC`,
	"season_totals": `SELECT s.player_id,
			SUM(s.goals_es + s.goals_pp + s.goals_pk)::int,
			SUM(s.assists_es + s.assists_pp + s.assists_pk)::int,
			SUM(s.shots_es + s.shots_pp + s.shots_pk)::int
		FROM ` + config.PlayerStrengthTable + ` s
		WHERE s.player_id = ANY($1) AND s.game_date < $2
			AND s.season = (SELECT MAX(season) FROM ` + config.GamesTable + ` WHERE game_date < $2)
		GROUP BY s.player_id`,
	"team_history": `SELECT COUNT(*)::int, COALESCE(AVG(toi_es), 0), COALESCE(AVG(toi_pp), 0),
			COALESCE(AVG(shots_es), 0), COALESCE(AVG(shots_pp), 0)
		FROM (
			SELECT toi_es, toi_pp, shots_es, shots_pp FROM ` + config.TeamStrengthTable + `
			WHERE team_id = $1 AND game_date < $2 ORDER BY game_date DESC LIMIT $3
		) recent`,
	"start_probabilities": `SELECT game_id, team_id, goalie_id, probability
		FROM ` + config.StartProbTable + ` WHERE game_id = $1`,
	"roster_events": `SELECT event_id, team_id, player_id, event_type, confidence, payload, effective_from, effective_to
		FROM ` + config.RosterEventsTable + `
		WHERE team_id = ANY($1) AND effective_from <= $3 AND (effective_to IS NULL OR effective_to >= $2)`,

	// Backtest inputs
	"player_projections": `SELECT run_id, game_id, player_id, team_id, opponent_id, horizon_games, as_of_date,
			availability, toi_es, toi_pp, shots_es, shots_pp, goals, assists, hits, blocks
		FROM ` + config.PlayerProjTable + ` WHERE run_id = $1`,
	"goalie_projections": `SELECT run_id, game_id, goalie_id, team_id, opponent_id, horizon_games, as_of_date,
			start_probability, starter_source, shots_against, saves, goals_allowed,
			win_probability, shutout_probability
		FROM ` + config.GoalieProjTable + ` WHERE run_id = $1`,
	"occurred_games": `SELECT id FROM ` + config.GamesTable + `
		WHERE game_date = $1 AND game_state IN ('OFF', 'FINAL')`,
	"skater_actuals": `SELECT b.player_id, b.game_id, b.team_id,
			b.goals::float8, b.assists::float8, b.shots::float8, b.hits::float8, b.blocks::float8
		FROM ` + config.SkaterBoxTable + ` b JOIN ` + config.GamesTable + ` g ON g.id = b.game_id
		WHERE g.game_date = $1`,
	"goalie_actuals": `SELECT b.player_id, b.game_id, b.team_id, b.saves::float8, b.goals_against::float8,
			(b.decision = 'W')::int::float8, (b.goals_against = 0 AND b.decision = 'W')::int::float8
		FROM ` + config.GoalieBoxTable + ` b JOIN ` + config.GamesTable + ` g ON g.id = b.game_id
		WHERE g.game_date = $1`,
	"goalie_actuals_fallback": `SELECT s.player_id, s.game_id, s.team_id, s.saves::float8, s.goals_against::float8,
			s.win::int::float8, s.shutout::int::float8
		FROM ` + config.GoalieSummaryTable + ` s WHERE s.game_date = $1`,
	"running_aggregates": `SELECT scope, running_count, running_accuracy_sum, running_error_abs_sum, running_error_sq_sum
		FROM ` + config.AccuracyScopeTable + ` WHERE actual_date = $1`,

	// Runs
	"latest_succeeded_run": `SELECT id, kind, as_of_date, status, metrics, COALESCE(error, ''), started_at, finished_at
		FROM ` + config.RunsTable + `
		WHERE kind = $1 AND as_of_date = $2 AND status = 'succeeded'
		ORDER BY started_at DESC LIMIT 1`,
	"run_by_id": `SELECT id, kind, as_of_date, status, metrics, COALESCE(error, ''), started_at, finished_at
		FROM ` + config.RunsTable + ` WHERE id = $1`,

	// API: accuracy reads (Postgres returns complete JSON)
	"api_accuracy_scopes": `SELECT COALESCE(json_agg(row_to_json(a) ORDER BY a.actual_date, a.scope), '[]'::json)
		FROM ` + config.AccuracyScopeTable + ` a WHERE a.actual_date BETWEEN $1 AND $2`,
	"api_accuracy_stats": `SELECT COALESCE(json_agg(row_to_json(a) ORDER BY a.player_type, a.stat), '[]'::json)
		FROM ` + config.AccuracyStatTable + ` a WHERE a.actual_date = $1`,
	"api_accuracy_players": `SELECT COALESCE(json_agg(row_to_json(a) ORDER BY a.mae DESC), '[]'::json)
		FROM ` + config.AccuracyPlayerTable + ` a WHERE a.actual_date = $1`,
	"api_accuracy_player_history": `SELECT COALESCE(json_agg(row_to_json(a) ORDER BY a.actual_date), '[]'::json)
		FROM ` + config.AccuracyResultsTable + ` a WHERE a.player_id = $1 AND a.actual_date BETWEEN $2 AND $3`,
}

// registerPreparedStatements registers all statements the API and pipeline
// layers use. Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
