package strength

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/albapepper/scoracle-nhl/internal/retry"
)

// Source reads the raw feeds and previously persisted player rows.
type Source interface {
	GamesBetween(ctx context.Context, start, end time.Time) ([]Game, error)
	GameByID(ctx context.Context, gameID int64) (*Game, error)
	ShiftRows(ctx context.Context, gameID int64) ([]ShiftRow, error)
	PlayRows(ctx context.Context, gameID int64) ([]PlayRow, error)
	PlayerGameRows(ctx context.Context, gameID int64) ([]PlayerGameRow, error)
	ProcessedGames(ctx context.Context, gameIDs []int64) (map[int64]bool, error)
}

// Sink writes the game-strength tables. Both upserts are keyed by
// (game, entity) and overwrite on conflict.
type Sink interface {
	UpsertPlayerGameRows(ctx context.Context, rows []PlayerGameRow) error
	UpsertTeamGameRows(ctx context.Context, rows []TeamGameRow) error
}

// Store is everything the builder needs.
type Store interface {
	Source
	Sink
}

// Options are the control-surface parameters of a build.
type Options struct {
	// Deadline is a wall-clock cutoff checked between games. Zero means none.
	Deadline time.Time
	// Overwrite recomputes games that already have player rows.
	Overwrite bool
}

// Builder runs shift attribution and event aggregation game by game and
// persists the results.
type Builder struct {
	store  Store
	retry  retry.Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(store Store, policy retry.Policy, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: store, retry: policy, logger: logger, now: time.Now}
}

// ComputePlayerRows merges the TOI split of every player present in the
// shift data with their event split. Players with events but no shifts are
// not emitted.
func ComputePlayerRows(g Game, plays []PlayRow, shiftRows []ShiftRow) ([]PlayerGameRow, int) {
	shifts, rejected := ParseShifts(shiftRows)
	toi := AttributeShifts(g, plays, shifts)
	events := AggregateEvents(g, plays)

	rows := make([]PlayerGameRow, 0, len(toi))
	for playerID, t := range toi {
		row := PlayerGameRow{
			GameID:   g.ID,
			GameDate: g.Date,
			Season:   g.Season,
			PlayerID: playerID,
			TeamID:   t.TeamID,
			TOI:      t.TOI,
		}
		if ev, ok := events[playerID]; ok {
			row.Shots = ev.Shots
			row.Goals = ev.Goals
			row.Assists = ev.Assists
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PlayerID < rows[j].PlayerID })
	return rows, rejected
}

// SumTeamRows folds player rows into one row per (game, team).
func SumTeamRows(players []PlayerGameRow) []TeamGameRow {
	type key struct {
		game int64
		team int
	}
	acc := make(map[key]*TeamGameRow)
	var order []key
	for _, p := range players {
		k := key{p.GameID, p.TeamID}
		t, ok := acc[k]
		if !ok {
			t = &TeamGameRow{GameID: p.GameID, GameDate: p.GameDate, Season: p.Season, TeamID: p.TeamID}
			acc[k] = t
			order = append(order, k)
		}
		t.TOI = t.TOI.Plus(p.TOI)
		t.Shots = t.Shots.Plus(p.Shots)
		t.Goals = t.Goals.Plus(p.Goals)
		t.Assists = t.Assists.Plus(p.Assists)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].game != order[j].game {
			return order[i].game < order[j].game
		}
		return order[i].team < order[j].team
	})
	out := make([]TeamGameRow, 0, len(order))
	for _, k := range order {
		out = append(out, *acc[k])
	}
	return out
}

// BuildPlayers attributes and persists player rows for every game in
// [start, end]. A failing game is recorded and skipped; the deadline is only
// checked between games.
func (b *Builder) BuildPlayers(ctx context.Context, start, end time.Time, opts Options) BuildResult {
	var result BuildResult

	games, err := retry.Value(ctx, b.retry, b.logger, "list games", func(ctx context.Context) ([]Game, error) {
		return b.store.GamesBetween(ctx, start, end)
	})
	if err != nil {
		result.AddErrorf("list games: %v", err)
		return result
	}
	result.GamesFound = len(games)
	b.logger.Info("Building player strength rows",
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly), "games", len(games))

	done := map[int64]bool{}
	if !opts.Overwrite && len(games) > 0 {
		ids := make([]int64, len(games))
		for i, g := range games {
			ids[i] = g.ID
		}
		done, err = b.store.ProcessedGames(ctx, ids)
		if err != nil {
			result.AddErrorf("check processed games: %v", err)
			return result
		}
	}

	for i, g := range games {
		if b.stop(ctx, opts.Deadline) {
			result.DeadlineReached = true
			b.logger.Warn("Stopping player build before deadline",
				"processed", result.GamesProcessed, "remaining", len(games)-i)
			break
		}
		if done[g.ID] {
			result.GamesSkipped++
			continue
		}

		n, rejected, err := b.buildGame(ctx, g)
		result.ShiftsRejected += rejected
		if err != nil {
			result.AddErrorf("game %d: %v", g.ID, err)
			continue
		}
		if n == 0 {
			result.GamesSkipped++
			continue
		}
		result.GamesProcessed++
		result.PlayerRowsUpserted += n

		if result.GamesProcessed%25 == 0 {
			b.logger.Info("Player build progress", "processed", result.GamesProcessed, "found", result.GamesFound)
		}
	}

	b.logger.Info("Player strength build complete", "summary", result.Summary())
	return result
}

// BuildTeams sums persisted player rows into team rows for every game in
// [start, end]. It does not recompute attribution, so it can be rerun alone.
func (b *Builder) BuildTeams(ctx context.Context, start, end time.Time, opts Options) BuildResult {
	var result BuildResult

	games, err := retry.Value(ctx, b.retry, b.logger, "list games", func(ctx context.Context) ([]Game, error) {
		return b.store.GamesBetween(ctx, start, end)
	})
	if err != nil {
		result.AddErrorf("list games: %v", err)
		return result
	}
	result.GamesFound = len(games)

	for i, g := range games {
		if b.stop(ctx, opts.Deadline) {
			result.DeadlineReached = true
			b.logger.Warn("Stopping team build before deadline",
				"processed", result.GamesProcessed, "remaining", len(games)-i)
			break
		}
		n, err := b.buildTeamGame(ctx, g.ID)
		if err != nil {
			result.AddErrorf("game %d: %v", g.ID, err)
			continue
		}
		if n == 0 {
			result.GamesSkipped++
			continue
		}
		result.GamesProcessed++
		result.TeamRowsUpserted += n
	}

	b.logger.Info("Team strength build complete", "summary", result.Summary())
	return result
}

// BuildGame recomputes both tables for a single game.
func (b *Builder) BuildGame(ctx context.Context, gameID int64) BuildResult {
	result := BuildResult{GamesFound: 1}

	g, err := retry.Value(ctx, b.retry, b.logger, "get game", func(ctx context.Context) (*Game, error) {
		return b.store.GameByID(ctx, gameID)
	})
	if err != nil {
		result.AddErrorf("game %d: %v", gameID, err)
		return result
	}

	n, rejected, err := b.buildGame(ctx, *g)
	result.ShiftsRejected = rejected
	if err != nil {
		result.AddErrorf("game %d: %v", gameID, err)
		return result
	}
	if n == 0 {
		result.GamesSkipped = 1
		return result
	}
	result.PlayerRowsUpserted = n

	teams, err := b.buildTeamGame(ctx, gameID)
	if err != nil {
		result.AddErrorf("game %d teams: %v", gameID, err)
		return result
	}
	result.TeamRowsUpserted = teams
	result.GamesProcessed = 1
	return result
}

func (b *Builder) buildGame(ctx context.Context, g Game) (int, int, error) {
	shiftRows, err := retry.Value(ctx, b.retry, b.logger, "fetch shifts", func(ctx context.Context) ([]ShiftRow, error) {
		return b.store.ShiftRows(ctx, g.ID)
	})
	if err != nil {
		return 0, 0, err
	}
	plays, err := retry.Value(ctx, b.retry, b.logger, "fetch plays", func(ctx context.Context) ([]PlayRow, error) {
		return b.store.PlayRows(ctx, g.ID)
	})
	if err != nil {
		return 0, 0, err
	}

	rows, rejected := ComputePlayerRows(g, plays, shiftRows)
	if len(rows) == 0 {
		b.logger.Warn("No shift data for game", "game_id", g.ID)
		return 0, rejected, nil
	}

	err = retry.Do(ctx, b.retry, b.logger, "upsert player rows", func(ctx context.Context) error {
		return b.store.UpsertPlayerGameRows(ctx, rows)
	})
	if err != nil {
		return 0, rejected, err
	}
	return len(rows), rejected, nil
}

func (b *Builder) buildTeamGame(ctx context.Context, gameID int64) (int, error) {
	players, err := retry.Value(ctx, b.retry, b.logger, "fetch player rows", func(ctx context.Context) ([]PlayerGameRow, error) {
		return b.store.PlayerGameRows(ctx, gameID)
	})
	if err != nil {
		return 0, err
	}
	teams := SumTeamRows(players)
	if len(teams) == 0 {
		return 0, nil
	}
	if err := retry.Do(ctx, b.retry, b.logger, "upsert team rows", func(ctx context.Context) error {
		return b.store.UpsertTeamGameRows(ctx, teams)
	}); err != nil {
		return 0, err
	}
	return len(teams), nil
}

func (b *Builder) stop(ctx context.Context, deadline time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	return !deadline.IsZero() && !b.now().Before(deadline)
}
