package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/strength"
)

func scanGame(r pgx.Row) (strength.Game, error) {
	var g strength.Game
	err := r.Scan(&g.ID, &g.Date, &g.Season, &g.GameType, &g.HomeTeamID, &g.AwayTeamID)
	return g, err
}

// GamesBetween lists games dated within [start, end].
func (s *Store) GamesBetween(ctx context.Context, start, end time.Time) ([]strength.Game, error) {
	return collect(ctx, s.db, "games_between", func(r pgx.Rows) (strength.Game, error) { return scanGame(r) }, start, end)
}

// GameByID returns one schedule row.
func (s *Store) GameByID(ctx context.Context, gameID int64) (*strength.Game, error) {
	g, err := scanGame(s.db.QueryRow(ctx, "game_by_id", gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("game %d not found", gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("get game %d: %w", gameID, err)
	}
	return &g, nil
}

// ShiftRows returns a game's raw shifts.
func (s *Store) ShiftRows(ctx context.Context, gameID int64) ([]strength.ShiftRow, error) {
	return collect(ctx, s.db, "shift_rows", func(r pgx.Rows) (strength.ShiftRow, error) {
		var sr strength.ShiftRow
		err := r.Scan(&sr.GameID, &sr.PlayerID, &sr.TeamID, &sr.Period, &sr.StartTime, &sr.EndTime, &sr.Duration)
		return sr, err
	}, gameID)
}

// PlayRows returns a game's raw play-by-play.
func (s *Store) PlayRows(ctx context.Context, gameID int64) ([]strength.PlayRow, error) {
	return collect(ctx, s.db, "play_rows", func(r pgx.Rows) (strength.PlayRow, error) {
		var p strength.PlayRow
		err := r.Scan(
			&p.GameID, &p.EventID, &p.Period, &p.TimeInPeriod, &p.SituationCode, &p.TypeKey,
			&p.EventOwnerTeamID, &p.ShootingPlayerID, &p.ScoringPlayerID,
			&p.Assist1PlayerID, &p.Assist2PlayerID,
		)
		return p, err
	}, gameID)
}

// PlayerGameRows returns the persisted player strength rows of a game.
func (s *Store) PlayerGameRows(ctx context.Context, gameID int64) ([]strength.PlayerGameRow, error) {
	return collect(ctx, s.db, "player_strength_rows", func(r pgx.Rows) (strength.PlayerGameRow, error) {
		var p strength.PlayerGameRow
		err := r.Scan(
			&p.GameID, &p.GameDate, &p.Season, &p.PlayerID, &p.TeamID,
			&p.TOI.ES, &p.TOI.PP, &p.TOI.PK,
			&p.Shots.ES, &p.Shots.PP, &p.Shots.PK,
			&p.Goals.ES, &p.Goals.PP, &p.Goals.PK,
			&p.Assists.ES, &p.Assists.PP, &p.Assists.PK,
		)
		return p, err
	}, gameID)
}

// ProcessedGames reports which of gameIDs already have player rows.
func (s *Store) ProcessedGames(ctx context.Context, gameIDs []int64) (map[int64]bool, error) {
	ids, err := collect(ctx, s.db, "processed_games", func(r pgx.Rows) (int64, error) {
		var id int64
		err := r.Scan(&id)
		return id, err
	}, gameIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// UpsertPlayerGameRows writes player strength rows keyed by (game, player).
func (s *Store) UpsertPlayerGameRows(ctx context.Context, rows []strength.PlayerGameRow) error {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
			INSERT INTO `+config.PlayerStrengthTable+` (
				game_id, game_date, season, player_id, team_id,
				toi_es, toi_pp, toi_pk, shots_es, shots_pp, shots_pk,
				goals_es, goals_pp, goals_pk, assists_es, assists_pp, assists_pk
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (game_id, player_id) DO UPDATE SET
				game_date = EXCLUDED.game_date,
				season = EXCLUDED.season,
				team_id = EXCLUDED.team_id,
				toi_es = EXCLUDED.toi_es,
				toi_pp = EXCLUDED.toi_pp,
				toi_pk = EXCLUDED.toi_pk,
				shots_es = EXCLUDED.shots_es,
				shots_pp = EXCLUDED.shots_pp,
				shots_pk = EXCLUDED.shots_pk,
				goals_es = EXCLUDED.goals_es,
				goals_pp = EXCLUDED.goals_pp,
				goals_pk = EXCLUDED.goals_pk,
				assists_es = EXCLUDED.assists_es,
				assists_pp = EXCLUDED.assists_pp,
				assists_pk = EXCLUDED.assists_pk,
				updated_at = NOW()`,
			r.GameID, r.GameDate, r.Season, r.PlayerID, r.TeamID,
			r.TOI.ES, r.TOI.PP, r.TOI.PK, r.Shots.ES, r.Shots.PP, r.Shots.PK,
			r.Goals.ES, r.Goals.PP, r.Goals.PK, r.Assists.ES, r.Assists.PP, r.Assists.PK,
		)
	}
	return s.sendBatch(ctx, config.PlayerStrengthTable, b)
}

// UpsertTeamGameRows writes team strength rows keyed by (game, team).
func (s *Store) UpsertTeamGameRows(ctx context.Context, rows []strength.TeamGameRow) error {
	b := &pgx.Batch{}
	for _, r := range rows {
		b.Queue(`
			INSERT INTO `+config.TeamStrengthTable+` (
				game_id, game_date, season, team_id,
				toi_es, toi_pp, toi_pk, shots_es, shots_pp, shots_pk,
				goals_es, goals_pp, goals_pk, assists_es, assists_pp, assists_pk
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (game_id, team_id) DO UPDATE SET
				game_date = EXCLUDED.game_date,
				season = EXCLUDED.season,
				toi_es = EXCLUDED.toi_es,
				toi_pp = EXCLUDED.toi_pp,
				toi_pk = EXCLUDED.toi_pk,
				shots_es = EXCLUDED.shots_es,
				shots_pp = EXCLUDED.shots_pp,
				shots_pk = EXCLUDED.shots_pk,
				goals_es = EXCLUDED.goals_es,
				goals_pp = EXCLUDED.goals_pp,
				goals_pk = EXCLUDED.goals_pk,
				assists_es = EXCLUDED.assists_es,
				assists_pp = EXCLUDED.assists_pp,
				assists_pk = EXCLUDED.assists_pk,
				updated_at = NOW()`,
			r.GameID, r.GameDate, r.Season, r.TeamID,
			r.TOI.ES, r.TOI.PP, r.TOI.PK, r.Shots.ES, r.Shots.PP, r.Shots.PK,
			r.Goals.ES, r.Goals.PP, r.Goals.PK, r.Assists.ES, r.Assists.PP, r.Assists.PK,
		)
	}
	return s.sendBatch(ctx, config.TeamStrengthTable, b)
}
