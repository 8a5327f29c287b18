package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/albapepper/scoracle-nhl/internal/availability"
	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/projection"
	"github.com/albapepper/scoracle-nhl/internal/situation"
)

// ScheduledGames lists regular-season and playoff games on date.
func (s *Store) ScheduledGames(ctx context.Context, date time.Time) ([]projection.Game, error) {
	return collect(ctx, s.db, "scheduled_games", func(r pgx.Rows) (projection.Game, error) {
		var g projection.Game
		err := r.Scan(&g.ID, &g.Date, &g.HomeTeamID, &g.AwayTeamID)
		return g, err
	}, date)
}

func scanID(r pgx.Rows) (int, error) {
	var id int
	err := r.Scan(&id)
	return id, err
}

// TeamSkaters lists a team's active skaters.
func (s *Store) TeamSkaters(ctx context.Context, teamID int) ([]int, error) {
	return collect(ctx, s.db, "team_skaters", scanID, teamID)
}

// TeamGoalies lists a team's active goalies in depth-chart order.
func (s *Store) TeamGoalies(ctx context.Context, teamID int, _ int64) ([]int, error) {
	return collect(ctx, s.db, "team_goalies", scanID, teamID)
}

// RollingRows returns the latest rolling row per player and strength dated
// strictly before before.
func (s *Store) RollingRows(ctx context.Context, playerIDs []int, before time.Time) ([]projection.RollingRow, error) {
	return collect(ctx, s.db, "rolling_rows", func(r pgx.Rows) (projection.RollingRow, error) {
		var row projection.RollingRow
		var st string
		err := r.Scan(
			&row.PlayerID, &st, &row.AsOf,
			&row.TOILast5, &row.TOIAllTime,
			&row.ShotsPer60Last5, &row.ShotsPer60AllTime,
			&row.HitsPer60Last5, &row.HitsPer60AllTime,
			&row.BlocksPer60Last5, &row.BlocksPer60AllTime,
		)
		row.Strength = situation.Strength(st)
		return row, err
	}, playerIDs, before)
}

// SeasonTotals sums each player's all-strength goals, assists and shots for
// the current season before the given date.
func (s *Store) SeasonTotals(ctx context.Context, playerIDs []int, before time.Time) ([]projection.SeasonTotals, error) {
	return collect(ctx, s.db, "season_totals", func(r pgx.Rows) (projection.SeasonTotals, error) {
		var t projection.SeasonTotals
		err := r.Scan(&t.PlayerID, &t.Goals, &t.Assists, &t.Shots)
		return t, err
	}, playerIDs, before)
}

// TeamHistory averages a team's recent strength rows. It returns nil when
// the team has no games before the date.
func (s *Store) TeamHistory(ctx context.Context, teamID int, before time.Time) (*projection.TeamHistory, error) {
	h := projection.TeamHistory{TeamID: teamID}
	err := s.db.QueryRow(ctx, "team_history", teamID, before, teamHistoryGames).
		Scan(&h.Games, &h.TOIES, &h.TOIPP, &h.ShotsES, &h.ShotsPP)
	if err != nil {
		return nil, fmt.Errorf("team history %d: %w", teamID, err)
	}
	if h.Games == 0 {
		return nil, nil
	}
	return &h, nil
}

// StartProbabilities returns a game's goalie start-probability rows.
func (s *Store) StartProbabilities(ctx context.Context, gameID int64) ([]projection.StartProbability, error) {
	return collect(ctx, s.db, "start_probabilities", func(r pgx.Rows) (projection.StartProbability, error) {
		var p projection.StartProbability
		err := r.Scan(&p.GameID, &p.TeamID, &p.GoalieID, &p.Probability)
		return p, err
	}, gameID)
}

// RosterEvents returns the teams' events overlapping w.
func (s *Store) RosterEvents(ctx context.Context, teamIDs []int, w availability.Window) ([]availability.RosterEvent, error) {
	return collect(ctx, s.db, "roster_events", func(r pgx.Rows) (availability.RosterEvent, error) {
		var e availability.RosterEvent
		err := r.Scan(&e.EventID, &e.TeamID, &e.PlayerID, &e.EventType, &e.Confidence,
			&e.Payload, &e.EffectiveFrom, &e.EffectiveTo)
		return e, err
	}, teamIDs, w.Start, w.End)
}

// UpsertPlayerProjections writes skater projections keyed by
// (run, game, player, horizon).
func (s *Store) UpsertPlayerProjections(ctx context.Context, rows []projection.PlayerProjection) error {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
			INSERT INTO `+config.PlayerProjTable+` (
				run_id, game_id, player_id, team_id, opponent_id, horizon_games, as_of_date,
				availability, toi_es, toi_pp, shots_es, shots_pp, goals, assists, hits, blocks
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (run_id, game_id, player_id, horizon_games) DO UPDATE SET
				team_id = EXCLUDED.team_id,
				opponent_id = EXCLUDED.opponent_id,
				as_of_date = EXCLUDED.as_of_date,
				availability = EXCLUDED.availability,
				toi_es = EXCLUDED.toi_es,
				toi_pp = EXCLUDED.toi_pp,
				shots_es = EXCLUDED.shots_es,
				shots_pp = EXCLUDED.shots_pp,
				goals = EXCLUDED.goals,
				assists = EXCLUDED.assists,
				hits = EXCLUDED.hits,
				blocks = EXCLUDED.blocks`,
			r.RunID, r.GameID, r.PlayerID, r.TeamID, r.OpponentID, r.HorizonGames, r.AsOfDate,
			r.Availability, r.TOIES, r.TOIPP, r.ShotsES, r.ShotsPP, r.Goals, r.Assists, r.Hits, r.Blocks,
		)
	}
	return s.sendBatch(ctx, config.PlayerProjTable, b)
}

// UpsertTeamProjections writes team totals keyed by (run, game, team, horizon).
func (s *Store) UpsertTeamProjections(ctx context.Context, rows []projection.TeamProjection) error {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
			INSERT INTO `+config.TeamProjTable+` (
				run_id, game_id, team_id, opponent_id, horizon_games, as_of_date, skaters,
				toi_es, toi_pp, shots_es, shots_pp, goals, assists, toi_before
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (run_id, game_id, team_id, horizon_games) DO UPDATE SET
				opponent_id = EXCLUDED.opponent_id,
				as_of_date = EXCLUDED.as_of_date,
				skaters = EXCLUDED.skaters,
				toi_es = EXCLUDED.toi_es,
				toi_pp = EXCLUDED.toi_pp,
				shots_es = EXCLUDED.shots_es,
				shots_pp = EXCLUDED.shots_pp,
				goals = EXCLUDED.goals,
				assists = EXCLUDED.assists,
				toi_before = EXCLUDED.toi_before`,
			r.RunID, r.GameID, r.TeamID, r.OpponentID, r.HorizonGames, r.AsOfDate, r.Skaters,
			r.TOIES, r.TOIPP, r.ShotsES, r.ShotsPP, r.Goals, r.Assists, r.TOIBefore,
		)
	}
	return s.sendBatch(ctx, config.TeamProjTable, b)
}

// UpsertGoalieProjections writes starter projections keyed by
// (run, game, goalie, horizon).
func (s *Store) UpsertGoalieProjections(ctx context.Context, rows []projection.GoalieProjection) error {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
			INSERT INTO `+config.GoalieProjTable+` (
				run_id, game_id, goalie_id, team_id, opponent_id, horizon_games, as_of_date,
				start_probability, starter_source, shots_against, saves, goals_allowed,
				win_probability, shutout_probability
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (run_id, game_id, goalie_id, horizon_games) DO UPDATE SET
				team_id = EXCLUDED.team_id,
				opponent_id = EXCLUDED.opponent_id,
				as_of_date = EXCLUDED.as_of_date,
				start_probability = EXCLUDED.start_probability,
				starter_source = EXCLUDED.starter_source,
				shots_against = EXCLUDED.shots_against,
				saves = EXCLUDED.saves,
				goals_allowed = EXCLUDED.goals_allowed,
				win_probability = EXCLUDED.win_probability,
				shutout_probability = EXCLUDED.shutout_probability`,
			r.RunID, r.GameID, r.GoalieID, r.TeamID, r.OpponentID, r.HorizonGames, r.AsOfDate,
			r.StartProbability, r.StarterSource, r.ShotsAgainst, r.Saves, r.GoalsAllowed,
			r.WinProbability, r.ShutoutProbability,
		)
	}
	return s.sendBatch(ctx, config.GoalieProjTable, b)
}

// DeleteSupersededRuns drops the rows and run records of every finished
// projection run as of asOf other than keep. The batch runs in one implicit
// transaction, so a failure leaves the earlier runs intact.
func (s *Store) DeleteSupersededRuns(ctx context.Context, asOf time.Time, keep uuid.UUID) error {
	superseded := `SELECT id FROM ` + config.RunsTable + `
		WHERE kind = 'projection' AND as_of_date = $1 AND id <> $2 AND status <> 'running'`
	b := &pgx.Batch{}
	for _, table := range []string{config.PlayerProjTable, config.TeamProjTable, config.GoalieProjTable} {
		b.Queue(`DELETE FROM `+table+` WHERE run_id IN (`+superseded+`)`, asOf, keep)
	}
	b.Queue(`DELETE FROM `+config.RunsTable+` WHERE id IN (`+superseded+`)`, asOf, keep)
	return s.sendBatch(ctx, "superseded "+config.RunsTable, b)
}
