package accuracy_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-nhl/internal/accuracy"
	"github.com/albapepper/scoracle-nhl/internal/availability"
	"github.com/albapepper/scoracle-nhl/internal/projection"
	"github.com/albapepper/scoracle-nhl/internal/retry"
	"github.com/albapepper/scoracle-nhl/internal/runs"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var day1 = time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

// league plays one game a day between teams 10 and 20 and filters every
// read by date the way the database statements do.
type league struct {
	mu sync.Mutex

	games   []projection.Game
	skaters map[int][]int
	goalies map[int][]int

	players map[uuid.UUID][]projection.PlayerProjection
	goalieP map[uuid.UUID][]projection.GoalieProjection
	results []accuracy.ResultRow
	scopes  map[time.Time]map[accuracy.Scope]accuracy.Aggregate
}

func newLeague(days int) *league {
	l := &league{
		skaters: map[int][]int{10: {1, 2}, 20: {21, 22}},
		goalies: map[int][]int{10: {30}, 20: {40}},
		players: map[uuid.UUID][]projection.PlayerProjection{},
		goalieP: map[uuid.UUID][]projection.GoalieProjection{},
		scopes:  map[time.Time]map[accuracy.Scope]accuracy.Aggregate{},
	}
	for i := 0; i < days; i++ {
		l.games = append(l.games, projection.Game{
			ID: int64(i + 1), Date: day1.AddDate(0, 0, i), HomeTeamID: 10, AwayTeamID: 20,
		})
	}
	return l
}

func (l *league) gamesOn(date time.Time) []projection.Game {
	var out []projection.Game
	for _, g := range l.games {
		if g.Date.Equal(date) {
			out = append(out, g)
		}
	}
	return out
}

// projection.Source

func (l *league) ScheduledGames(_ context.Context, date time.Time) ([]projection.Game, error) {
	return l.gamesOn(date), nil
}

func (l *league) TeamSkaters(_ context.Context, teamID int) ([]int, error) {
	return l.skaters[teamID], nil
}

func (l *league) TeamGoalies(_ context.Context, teamID int, _ int64) ([]int, error) {
	return l.goalies[teamID], nil
}

func (l *league) RollingRows(context.Context, []int, time.Time) ([]projection.RollingRow, error) {
	return nil, nil
}

func (l *league) SeasonTotals(context.Context, []int, time.Time) ([]projection.SeasonTotals, error) {
	return nil, nil
}

func (l *league) TeamHistory(context.Context, int, time.Time) (*projection.TeamHistory, error) {
	return nil, nil
}

func (l *league) StartProbabilities(context.Context, int64) ([]projection.StartProbability, error) {
	return nil, nil
}

func (l *league) RosterEvents(context.Context, []int, availability.Window) ([]availability.RosterEvent, error) {
	return nil, nil
}

// projection.Sink

func (l *league) UpsertPlayerProjections(_ context.Context, rows []projection.PlayerProjection) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rows {
		l.players[r.RunID] = append(l.players[r.RunID], r)
	}
	return nil
}

func (l *league) UpsertTeamProjections(context.Context, []projection.TeamProjection) error {
	return nil
}

func (l *league) UpsertGoalieProjections(_ context.Context, rows []projection.GoalieProjection) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rows {
		l.goalieP[r.RunID] = append(l.goalieP[r.RunID], r)
	}
	return nil
}

func (l *league) DeleteSupersededRuns(context.Context, time.Time, uuid.UUID) error {
	return nil
}

// accuracy.Source

func (l *league) PlayerProjections(_ context.Context, runID uuid.UUID) ([]projection.PlayerProjection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.players[runID], nil
}

func (l *league) GoalieProjections(_ context.Context, runID uuid.UUID) ([]projection.GoalieProjection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.goalieP[runID], nil
}

func (l *league) OccurredGames(_ context.Context, date time.Time) (map[int64]bool, error) {
	out := map[int64]bool{}
	for _, g := range l.gamesOn(date) {
		out[g.ID] = true
	}
	return out, nil
}

func (l *league) SkaterActuals(_ context.Context, date time.Time) ([]accuracy.ActualLine, error) {
	var out []accuracy.ActualLine
	for _, g := range l.gamesOn(date) {
		for _, team := range []int{g.HomeTeamID, g.AwayTeamID} {
			for _, pid := range l.skaters[team] {
				out = append(out, accuracy.ActualLine{PlayerID: pid, GameID: g.ID, TeamID: team,
					Line: accuracy.Line{Shots: 2, Hits: 1}})
			}
		}
	}
	return out, nil
}

func (l *league) GoalieActuals(_ context.Context, date time.Time) ([]accuracy.ActualLine, error) {
	var out []accuracy.ActualLine
	for _, g := range l.gamesOn(date) {
		for _, team := range []int{g.HomeTeamID, g.AwayTeamID} {
			out = append(out, accuracy.ActualLine{PlayerID: l.goalies[team][0], GameID: g.ID, TeamID: team,
				Line: accuracy.Line{Saves: 25, GoalsAgainst: 3}})
		}
	}
	return out, nil
}

func (l *league) GoalieActualsFallback(context.Context, time.Time) ([]accuracy.ActualLine, error) {
	return nil, nil
}

func (l *league) RunningAggregates(_ context.Context, date time.Time) (map[accuracy.Scope]accuracy.Aggregate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scopes[date], nil
}

// accuracy.Sink

func (l *league) UpsertResults(_ context.Context, rows []accuracy.ResultRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, rows...)
	return nil
}

func (l *league) UpsertStatAggregates(context.Context, []accuracy.StatAggregate) error { return nil }

func (l *league) UpsertPlayerAggregates(context.Context, []accuracy.PlayerAggregate) error {
	return nil
}

func (l *league) UpsertScopeAggregates(_ context.Context, rows []accuracy.ScopeAggregate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rows {
		if l.scopes[r.ActualDate] == nil {
			l.scopes[r.ActualDate] = map[accuracy.Scope]accuracy.Aggregate{}
		}
		l.scopes[r.ActualDate][r.Scope] = r.Running
	}
	return nil
}

func TestDefaultCycle_BacktestScoresEveryProjectedSlate(t *testing.T) {
	ctx := context.Background()
	l := newLeague(6)
	runStore := runs.NewMemoryStore()
	runner := projection.NewRunner(l, l, runStore, retry.None(), time.UTC, quiet)
	backtester := accuracy.NewBacktester(l, l, runStore, retry.None(), quiet)

	for i := 0; i < 5; i++ {
		run, err := runner.Run(ctx, day1.AddDate(0, 0, i), projection.Options{})
		require.NoError(t, err)
		require.Equal(t, runs.StatusSucceeded, run.Status)
	}

	res := backtester.RunRange(ctx, day1.AddDate(0, 0, 1), day1.AddDate(0, 0, 5), accuracy.Options{})
	require.Empty(t, res.Errors)
	assert.Equal(t, 5, res.DatesProcessed)
	require.NotEmpty(t, l.results)
	assert.Equal(t, res.ResultRows, len(l.results))

	perDate := map[time.Time]int{}
	for _, r := range l.results {
		assert.Equal(t, r.ActualDate.AddDate(0, 0, -1), r.AsOfDate)
		assert.Equal(t, int64(r.ActualDate.Sub(day1)/(24*time.Hour))+1, r.GameID, "scored game is the one played on the actual date")
		perDate[r.ActualDate]++
	}
	for i := 1; i <= 5; i++ {
		// Four skaters and two starting goalies per game.
		assert.Equal(t, 6, perDate[day1.AddDate(0, 0, i)])
	}
}

func TestDefaultCycle_MissingProjectionRunFailsDate(t *testing.T) {
	ctx := context.Background()
	l := newLeague(3)
	runStore := runs.NewMemoryStore()
	runner := projection.NewRunner(l, l, runStore, retry.None(), time.UTC, quiet)
	backtester := accuracy.NewBacktester(l, l, runStore, retry.None(), quiet)

	_, err := runner.Run(ctx, day1, projection.Options{})
	require.NoError(t, err)

	res := backtester.RunRange(ctx, day1.AddDate(0, 0, 1), day1.AddDate(0, 0, 2), accuracy.Options{})
	assert.Equal(t, 1, res.DatesProcessed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], day1.AddDate(0, 0, 2).Format(time.DateOnly))
}
