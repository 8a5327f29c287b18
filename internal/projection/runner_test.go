package projection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-nhl/internal/availability"
	"github.com/albapepper/scoracle-nhl/internal/retry"
	"github.com/albapepper/scoracle-nhl/internal/runs"
	"github.com/albapepper/scoracle-nhl/internal/situation"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var asOf = time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu sync.Mutex

	games      []Game
	gamesErr   error
	skaters    map[int][]int
	skatersErr map[int]error
	goalies    map[int][]int
	rows       []RollingRow
	totals     []SeasonTotals
	history    map[int]*TeamHistory
	probs      map[int64][]StartProbability
	events     []availability.RosterEvent

	players    []PlayerProjection
	teams      []TeamProjection
	goalieRows []GoalieProjection
	kept       []uuid.UUID
	pruneErr   error
}

func (s *fakeStore) ScheduledGames(_ context.Context, date time.Time) ([]Game, error) {
	if s.gamesErr != nil {
		return nil, s.gamesErr
	}
	var out []Game
	for _, g := range s.games {
		if g.Date.Equal(date) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *fakeStore) TeamSkaters(_ context.Context, teamID int) ([]int, error) {
	if err := s.skatersErr[teamID]; err != nil {
		return nil, err
	}
	return s.skaters[teamID], nil
}

func (s *fakeStore) TeamGoalies(_ context.Context, teamID int, _ int64) ([]int, error) {
	return s.goalies[teamID], nil
}

func (s *fakeStore) RollingRows(_ context.Context, ids []int, _ time.Time) ([]RollingRow, error) {
	want := map[int]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []RollingRow
	for _, r := range s.rows {
		if want[r.PlayerID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) SeasonTotals(_ context.Context, _ []int, _ time.Time) ([]SeasonTotals, error) {
	return s.totals, nil
}

func (s *fakeStore) TeamHistory(_ context.Context, teamID int, _ time.Time) (*TeamHistory, error) {
	return s.history[teamID], nil
}

func (s *fakeStore) StartProbabilities(_ context.Context, gameID int64) ([]StartProbability, error) {
	return s.probs[gameID], nil
}

func (s *fakeStore) RosterEvents(_ context.Context, _ []int, _ availability.Window) ([]availability.RosterEvent, error) {
	return s.events, nil
}

func (s *fakeStore) UpsertPlayerProjections(_ context.Context, rows []PlayerProjection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = append(s.players, rows...)
	return nil
}

func (s *fakeStore) UpsertTeamProjections(_ context.Context, rows []TeamProjection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams = append(s.teams, rows...)
	return nil
}

func (s *fakeStore) UpsertGoalieProjections(_ context.Context, rows []GoalieProjection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goalieRows = append(s.goalieRows, rows...)
	return nil
}

func (s *fakeStore) DeleteSupersededRuns(_ context.Context, _ time.Time, keep uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pruneErr != nil {
		return s.pruneErr
	}
	s.kept = append(s.kept, keep)
	return nil
}

func id(v int) *int { return &v }

func newFixture() *fakeStore {
	before := asOf.AddDate(0, 0, -1)
	return &fakeStore{
		games: []Game{{ID: 100, Date: asOf, HomeTeamID: 10, AwayTeamID: 20}},
		skaters: map[int][]int{
			10: {1, 2, 3, 4},
			20: {21, 22, 23},
		},
		goalies: map[int][]int{10: {30, 31}, 20: {40}},
		rows: []RollingRow{
			{PlayerID: 1, Strength: situation.ES, AsOf: before, TOILast5: f(1200), ShotsPer60Last5: f(9)},
			{PlayerID: 1, Strength: situation.PP, AsOf: before, TOILast5: f(240), ShotsPer60Last5: f(12)},
			{PlayerID: 2, Strength: situation.ES, AsOf: before, TOIAllTime: f(1000), ShotsPer60AllTime: f(7)},
			{PlayerID: 1, Strength: situation.ES, AsOf: asOf, TOILast5: f(99999)},
		},
		totals:  []SeasonTotals{{PlayerID: 1, Goals: 5, Assists: 7, Shots: 50}},
		history: map[int]*TeamHistory{10: {TeamID: 10, Games: 10, TOIES: 15000, TOIPP: 3000, ShotsES: 25, ShotsPP: 5}},
		probs:   map[int64][]StartProbability{100: {{GameID: 100, TeamID: 10, GoalieID: 31, Probability: 0.7}}},
		events: []availability.RosterEvent{
			{EventID: "e1", TeamID: 10, PlayerID: id(4), EventType: availability.InjuryOut, EffectiveFrom: before},
			{EventID: "e2", TeamID: 10, PlayerID: id(3), EventType: availability.DayToDay, Confidence: f(0.5), EffectiveFrom: before},
		},
	}
}

func newRunner(s *fakeStore, runStore runs.Store) *Runner {
	return NewRunner(s, s, runStore, retry.None(), time.UTC, quiet)
}

func TestRunner_ProjectsAndReconcilesBothTeams(t *testing.T) {
	s := newFixture()
	runStore := runs.NewMemoryStore()

	run, err := newRunner(s, runStore).Run(context.Background(), asOf, Options{})
	require.NoError(t, err)
	assert.Equal(t, runs.StatusSucceeded, run.Status)
	assert.Equal(t, 1.0, run.Metrics.Counters["games_projected"])
	assert.Equal(t, 1.0, run.Metrics.Counters["players_excluded"])

	require.Len(t, s.teams, 2)
	for _, team := range s.teams {
		assert.Equal(t, run.ID, team.RunID)
		assert.Equal(t, DefaultHorizonGames, team.HorizonGames)
		assert.InDelta(t, float64(SkaterBudgetSeconds), team.TOIES+team.TOIPP, 1e-6)
	}

	byPlayer := map[int]PlayerProjection{}
	for _, p := range s.players {
		byPlayer[p.PlayerID] = p
	}
	require.Len(t, byPlayer, 6)
	assert.NotContains(t, byPlayer, 4, "injured player is excluded")
	assert.InDelta(t, 0.7, byPlayer[3].Availability, 1e-12)

	var homeES, homeShotsES float64
	for _, p := range s.players {
		if p.TeamID == 10 {
			homeES += p.TOIES
			homeShotsES += p.ShotsES
		}
	}
	assert.InDelta(t, 15000, homeES, 1e-6)
	assert.InDelta(t, 25, homeShotsES, 1e-6)

	assert.Greater(t, run.Metrics.Counters["fallback:toi_es:last5"], 0.0)
	assert.Greater(t, run.Metrics.Counters["fallback:toi_es:all_time"], 0.0)
	assert.Greater(t, run.Metrics.Counters["fallback:toi_es:default"], 0.0)
}

func TestRunner_GoaliesFaceOpponentReconciledShots(t *testing.T) {
	s := newFixture()

	_, err := newRunner(s, runs.NewMemoryStore()).Run(context.Background(), asOf, Options{HorizonGames: 1})
	require.NoError(t, err)

	shotsFor := map[int]float64{}
	for _, team := range s.teams {
		shotsFor[team.TeamID] = team.ShotsES + team.ShotsPP
	}

	require.Len(t, s.goalieRows, 2)
	for _, gp := range s.goalieRows {
		switch gp.TeamID {
		case 10:
			assert.Equal(t, 31, gp.GoalieID)
			assert.Equal(t, StarterFromProbability, gp.StarterSource)
			assert.InDelta(t, shotsFor[20], gp.ShotsAgainst, 1e-9)
		case 20:
			assert.Equal(t, 40, gp.GoalieID)
			assert.Equal(t, StarterFromRoster, gp.StarterSource)
			assert.InDelta(t, 30, gp.ShotsAgainst, 1e-9)
		default:
			t.Fatalf("unexpected team %d", gp.TeamID)
		}
		assert.Equal(t, asOf, gp.AsOfDate)
	}
}

func TestRunner_EmptyRosterSkipsOpposingGoalie(t *testing.T) {
	s := newFixture()
	s.skaters[20] = nil

	run, err := newRunner(s, runs.NewMemoryStore()).Run(context.Background(), asOf, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, run.Metrics.Counters["empty_rosters"])
	assert.Equal(t, 1.0, run.Metrics.Counters["goalies_skipped"])
	require.Len(t, s.goalieRows, 1)
	assert.Equal(t, 20, s.goalieRows[0].TeamID)
	assert.NotEmpty(t, run.Metrics.Warnings)
}

func TestRunner_FailedGameIsRecordedAndLoopContinues(t *testing.T) {
	s := newFixture()
	s.games = append(s.games, Game{ID: 101, Date: asOf, HomeTeamID: 50, AwayTeamID: 60})
	s.skaters[50] = []int{51}
	s.skaters[60] = []int{61}
	s.skatersErr = map[int]error{10: errors.New("connection reset")}

	run, err := newRunner(s, runs.NewMemoryStore()).Run(context.Background(), asOf, Options{})
	require.NoError(t, err)
	assert.Equal(t, runs.StatusSucceeded, run.Status)
	assert.Equal(t, 1.0, run.Metrics.Counters["games_failed"])
	assert.Equal(t, 1.0, run.Metrics.Counters["games_projected"])
	for _, p := range s.players {
		assert.Equal(t, int64(101), p.GameID)
	}
}

func TestRunner_AllGamesFailedFailsRun(t *testing.T) {
	s := newFixture()
	s.skatersErr = map[int]error{20: errors.New("connection reset")}

	run, err := newRunner(s, runs.NewMemoryStore()).Run(context.Background(), asOf, Options{})
	require.Error(t, err)
	assert.Equal(t, runs.StatusFailed, run.Status)
}

func TestRunner_ScheduleErrorFailsRun(t *testing.T) {
	s := newFixture()
	s.gamesErr = errors.New("store down")
	runStore := runs.NewMemoryStore()

	run, err := newRunner(s, runStore).Run(context.Background(), asOf, Options{})
	require.Error(t, err)
	assert.Equal(t, runs.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "store down")

	stored, err := runStore.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, runs.StatusFailed, stored.Status)
}

func TestRunner_DeadlineStopsBetweenGames(t *testing.T) {
	s := newFixture()
	r := newRunner(s, runs.NewMemoryStore())
	r.now = func() time.Time { return asOf.Add(time.Hour) }

	run, err := r.Run(context.Background(), asOf, Options{Deadline: asOf})
	require.NoError(t, err)
	assert.Equal(t, 1.0, run.Metrics.Counters["deadline_reached"])
	assert.Zero(t, run.Metrics.Counters["games_projected"])
	assert.Empty(t, s.players)
}

func TestRunner_SlateCoversLookaheadDays(t *testing.T) {
	s := newFixture()
	tomorrow := asOf.AddDate(0, 0, 1)
	s.games = append(s.games,
		Game{ID: 200, Date: tomorrow, HomeTeamID: 20, AwayTeamID: 10},
		Game{ID: 300, Date: asOf.AddDate(0, 0, 2), HomeTeamID: 10, AwayTeamID: 20},
	)

	run, err := newRunner(s, runs.NewMemoryStore()).Run(context.Background(), asOf, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, run.Metrics.Counters["games_found"])
	assert.Equal(t, 2.0, run.Metrics.Counters["games_projected"])

	games := map[int64]bool{}
	for _, p := range s.players {
		games[p.GameID] = true
		assert.Equal(t, asOf, p.AsOfDate)
	}
	assert.Equal(t, map[int64]bool{100: true, 200: true}, games)
}

func TestRunner_LookaheadWidensSlate(t *testing.T) {
	s := newFixture()
	s.games = append(s.games, Game{ID: 200, Date: asOf.AddDate(0, 0, 3), HomeTeamID: 20, AwayTeamID: 10})

	run, err := newRunner(s, runs.NewMemoryStore()).Run(context.Background(), asOf, Options{LookaheadDays: 3})
	require.NoError(t, err)
	assert.Equal(t, 2.0, run.Metrics.Counters["games_found"])
	assert.Equal(t, 4.0, run.Metrics.Counters["slate_days"])
}

func TestRunner_SucceededRunSupersedesEarlierRuns(t *testing.T) {
	s := newFixture()

	run, err := newRunner(s, runs.NewMemoryStore()).Run(context.Background(), asOf, Options{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{run.ID}, s.kept)
}

func TestRunner_FailedRunKeepsEarlierRuns(t *testing.T) {
	s := newFixture()
	s.gamesErr = errors.New("store down")

	_, err := newRunner(s, runs.NewMemoryStore()).Run(context.Background(), asOf, Options{})
	require.Error(t, err)
	assert.Empty(t, s.kept)
}

func TestRunner_PruneFailureDoesNotFailRun(t *testing.T) {
	s := newFixture()
	s.pruneErr = errors.New("lock timeout")

	run, err := newRunner(s, runs.NewMemoryStore()).Run(context.Background(), asOf, Options{})
	require.NoError(t, err)
	assert.Equal(t, runs.StatusSucceeded, run.Status)
}
