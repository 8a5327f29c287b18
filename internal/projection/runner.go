package projection

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/albapepper/scoracle-nhl/internal/availability"
	"github.com/albapepper/scoracle-nhl/internal/retry"
	"github.com/albapepper/scoracle-nhl/internal/runs"
	"github.com/albapepper/scoracle-nhl/internal/situation"
)

// Options are the control-surface parameters of a projection run.
type Options struct {
	// Deadline is a wall-clock cutoff checked between games. Zero means none.
	Deadline time.Time
	// HorizonGames is stamped on every row. Zero means DefaultHorizonGames.
	HorizonGames int
	// LookaheadDays extends the slate to games on asOf through
	// asOf+LookaheadDays. Zero means DefaultLookaheadDays.
	LookaheadDays int
}

// Runner produces one projection run per as-of date.
type Runner struct {
	source  Source
	sink    Sink
	runs    runs.Store
	builder Builder
	retry   retry.Policy
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner creates a Runner. loc is the timezone that defines a game day.
func NewRunner(source Source, sink Sink, runStore runs.Store, policy retry.Policy, loc *time.Location, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		source:  source,
		sink:    sink,
		runs:    runStore,
		builder: NewBuilder(),
		retry:   policy,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

// teamInputs is everything loaded for one side of a game.
type teamInputs struct {
	teamID     int
	skaters    []int
	goalies    []int
	history    *TeamHistory
	rows       map[int]map[situation.Strength]*RollingRow
	totals     map[int]*SeasonTotals
	resolution availability.Resolution
}

// teamResult is one side after reconciliation.
type teamResult struct {
	players []PlayerProjection
	team    TeamProjection
	shots   ShotTotals
}

// Run projects every game scheduled from asOf through asOf+LookaheadDays,
// using only data dated before asOf. Per-game failures are counted in the
// run's metrics and the loop continues; failing to list the schedule fails
// the run. Once the run succeeds, earlier runs for the same as-of date are
// deleted.
func (r *Runner) Run(ctx context.Context, asOf time.Time, opts Options) (runs.Run, error) {
	if opts.HorizonGames <= 0 {
		opts.HorizonGames = DefaultHorizonGames
	}
	if opts.LookaheadDays <= 0 {
		opts.LookaheadDays = DefaultLookaheadDays
	}
	run, err := runs.Execute(ctx, r.runs, runs.KindProjection, asOf, r.logger, func(ctx context.Context, t *runs.Tracker) error {
		m := t.Metrics()

		games, err := r.slate(ctx, asOf, opts.LookaheadDays)
		if err != nil {
			return err
		}
		m.Set("games_found", float64(len(games)))
		m.Set("slate_days", float64(opts.LookaheadDays+1))
		r.logger.Info("Projecting games", "run_id", t.Run().ID, "as_of", asOf.Format(time.DateOnly),
			"lookahead_days", opts.LookaheadDays, "games", len(games))

		for i, g := range games {
			if r.stop(ctx, opts.Deadline) {
				m.Set("deadline_reached", 1)
				r.logger.Warn("Stopping projection before deadline",
					"projected", m.Get("games_projected"), "remaining", len(games)-i)
				break
			}
			if err := r.projectGame(ctx, t.Run().ID, asOf, g, opts, m); err != nil {
				m.Inc("games_failed")
				m.Warnf("game %d: %v", g.ID, err)
				r.logger.Error("Game projection failed", "game_id", g.ID, "error", err)
				continue
			}
			m.Inc("games_projected")
		}

		if len(games) > 0 && m.Get("games_projected") == 0 && m.Get("games_failed") > 0 {
			return fmt.Errorf("all %d games failed", len(games))
		}
		return nil
	})
	if err != nil || run.Status != runs.StatusSucceeded {
		return run, err
	}

	if err := retry.Do(ctx, r.retry, r.logger, "delete superseded runs", func(ctx context.Context) error {
		return r.sink.DeleteSupersededRuns(ctx, asOf, run.ID)
	}); err != nil {
		r.logger.Warn("Superseded projection runs kept", "as_of", asOf.Format(time.DateOnly), "run_id", run.ID, "error", err)
	}
	return run, nil
}

// slate lists the games scheduled on each day from asOf through
// asOf+lookahead, in date order.
func (r *Runner) slate(ctx context.Context, asOf time.Time, lookahead int) ([]Game, error) {
	var games []Game
	for i := 0; i <= lookahead; i++ {
		day := asOf.AddDate(0, 0, i)
		dayGames, err := retry.Value(ctx, r.retry, r.logger, "list scheduled games", func(ctx context.Context) ([]Game, error) {
			return r.source.ScheduledGames(ctx, day)
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", day.Format(time.DateOnly), err)
		}
		games = append(games, dayGames...)
	}
	return games, nil
}

func (r *Runner) projectGame(ctx context.Context, runID uuid.UUID, asOf time.Time, g Game, opts Options, m *runs.Metrics) error {
	day := availability.DayWindow(asOf, r.loc)
	cutoff := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, r.loc)

	events, err := retry.Value(ctx, r.retry, r.logger, "fetch roster events", func(ctx context.Context) ([]availability.RosterEvent, error) {
		return r.source.RosterEvents(ctx, []int{g.HomeTeamID, g.AwayTeamID}, day)
	})
	if err != nil {
		return err
	}
	resolution := availability.Resolve(events, day)

	var home, away teamInputs
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		home, err = r.loadTeam(egCtx, g, g.HomeTeamID, cutoff)
		return err
	})
	eg.Go(func() error {
		var err error
		away, err = r.loadTeam(egCtx, g, g.AwayTeamID, cutoff)
		return err
	})
	if err := eg.Wait(); err != nil {
		return err
	}
	home.resolution, away.resolution = resolution, resolution

	probs, err := retry.Value(ctx, r.retry, r.logger, "fetch start probabilities", func(ctx context.Context) ([]StartProbability, error) {
		return r.source.StartProbabilities(ctx, g.ID)
	})
	if err != nil {
		return err
	}

	shots := make(map[int]*ShotTotals, 2)
	var players []PlayerProjection
	var teams []TeamProjection
	for _, in := range []teamInputs{home, away} {
		res, ok := r.reconcileTeam(runID, asOf, g, in, opts, m)
		if !ok {
			continue
		}
		players = append(players, res.players...)
		teams = append(teams, res.team)
		totals := res.shots
		shots[in.teamID] = &totals
	}

	var goalies []GoalieProjection
	for _, in := range []teamInputs{home, away} {
		choice, ok := SelectStarter(in.teamID, resolution, probs, in.goalies)
		if !ok {
			m.Inc("goalies_no_starter")
			m.Warnf("game %d team %d: no starting goalie", g.ID, in.teamID)
			continue
		}
		m.Inc("goalie_starter:" + choice.Source)
		gp, ok := ProjectGoalie(g, choice, shots[g.Opponent(in.teamID)])
		if !ok {
			m.Inc("goalies_skipped")
			m.Warnf("game %d goalie %d: opponent shot totals unavailable", g.ID, choice.GoalieID)
			continue
		}
		gp.RunID = runID
		gp.HorizonGames = opts.HorizonGames
		gp.AsOfDate = asOf
		goalies = append(goalies, gp)
	}

	if err := r.write(ctx, players, teams, goalies); err != nil {
		return err
	}
	m.Add("players_projected", float64(len(players)))
	m.Add("goalies_projected", float64(len(goalies)))
	return nil
}

func (r *Runner) loadTeam(ctx context.Context, g Game, teamID int, cutoff time.Time) (teamInputs, error) {
	in := teamInputs{teamID: teamID}

	skaters, err := retry.Value(ctx, r.retry, r.logger, "fetch skaters", func(ctx context.Context) ([]int, error) {
		return r.source.TeamSkaters(ctx, teamID)
	})
	if err != nil {
		return in, err
	}
	in.skaters = skaters

	in.goalies, err = retry.Value(ctx, r.retry, r.logger, "fetch goalies", func(ctx context.Context) ([]int, error) {
		return r.source.TeamGoalies(ctx, teamID, g.ID)
	})
	if err != nil {
		return in, err
	}

	in.history, err = retry.Value(ctx, r.retry, r.logger, "fetch team history", func(ctx context.Context) (*TeamHistory, error) {
		return r.source.TeamHistory(ctx, teamID, cutoff)
	})
	if err != nil {
		return in, err
	}

	if len(skaters) == 0 {
		return in, nil
	}

	rows, err := retry.Value(ctx, r.retry, r.logger, "fetch rolling rows", func(ctx context.Context) ([]RollingRow, error) {
		return r.source.RollingRows(ctx, skaters, cutoff)
	})
	if err != nil {
		return in, err
	}
	in.rows = LatestRows(rows, func(row RollingRow) bool { return row.AsOf.Before(cutoff) })

	totals, err := retry.Value(ctx, r.retry, r.logger, "fetch season totals", func(ctx context.Context) ([]SeasonTotals, error) {
		return r.source.SeasonTotals(ctx, skaters, cutoff)
	})
	if err != nil {
		return in, err
	}
	in.totals = make(map[int]*SeasonTotals, len(totals))
	for i := range totals {
		in.totals[totals[i].PlayerID] = &totals[i]
	}
	return in, nil
}

func (r *Runner) reconcileTeam(runID uuid.UUID, asOf time.Time, g Game, in teamInputs, opts Options, m *runs.Metrics) (teamResult, bool) {
	counts := FallbackCounts{}
	var cands []Candidate
	for _, pid := range in.skaters {
		if in.resolution.Excluded(pid) {
			m.Inc("players_excluded")
			continue
		}
		pin := PlayerInputs{Totals: in.totals[pid]}
		if byStrength, ok := in.rows[pid]; ok {
			pin.ES, pin.PP = byStrength[situation.ES], byStrength[situation.PP]
		}
		cands = append(cands, r.builder.Candidate(pid, in.teamID, pin, in.resolution.Multiplier(pid), counts))
	}
	for k, n := range counts {
		m.Add("fallback:"+k, float64(n))
	}
	if len(cands) == 0 {
		m.Inc("empty_rosters")
		m.Warnf("game %d team %d: empty roster", g.ID, in.teamID)
		return teamResult{}, false
	}

	if in.history == nil || in.history.Games == 0 {
		m.Inc("team_history_missing")
	}
	targets := BuildTargets(in.history, cands)
	reconciled, rep := Reconcile(cands, targets)
	if large := rep.LargeCorrections(); len(large) > 0 {
		m.Inc("large_corrections")
		r.logger.Info("Large reconciliation correction",
			"game_id", g.ID, "team_id", in.teamID, "fields", large,
			"toi_before", math.Round(rep.TOIBefore), "toi_after", math.Round(rep.TOIAfter))
	}
	if dev := math.Abs(rep.TOIScale() - 1); dev > m.Get("toi_scale_max_deviation") {
		m.Set("toi_scale_max_deviation", dev)
	}

	res := teamResult{
		team: TeamProjection{
			RunID:        runID,
			GameID:       g.ID,
			TeamID:       in.teamID,
			OpponentID:   g.Opponent(in.teamID),
			HorizonGames: opts.HorizonGames,
			AsOfDate:     asOf,
			Skaters:      len(reconciled),
			TOIBefore:    rep.TOIBefore,
		},
	}
	for _, c := range reconciled {
		p := PlayerProjection{
			RunID:        runID,
			GameID:       g.ID,
			PlayerID:     c.PlayerID,
			TeamID:       c.TeamID,
			OpponentID:   g.Opponent(c.TeamID),
			HorizonGames: opts.HorizonGames,
			AsOfDate:     asOf,
			Availability: c.Availability,
			TOIES:        c.TOIES,
			TOIPP:        c.TOIPP,
			ShotsES:      c.ShotsES,
			ShotsPP:      c.ShotsPP,
			Goals:        c.Goals(),
			Assists:      c.Assists(),
			Hits:         c.Hits(),
			Blocks:       c.Blocks(),
		}
		res.players = append(res.players, p)
		res.team.TOIES += p.TOIES
		res.team.TOIPP += p.TOIPP
		res.team.ShotsES += p.ShotsES
		res.team.ShotsPP += p.ShotsPP
		res.team.Goals += p.Goals
		res.team.Assists += p.Assists
	}
	res.shots = ShotTotals{ES: res.team.ShotsES, PP: res.team.ShotsPP}
	return res, true
}

func (r *Runner) write(ctx context.Context, players []PlayerProjection, teams []TeamProjection, goalies []GoalieProjection) error {
	if len(players) > 0 {
		if err := retry.Do(ctx, r.retry, r.logger, "upsert player projections", func(ctx context.Context) error {
			return r.sink.UpsertPlayerProjections(ctx, players)
		}); err != nil {
			return err
		}
	}
	if len(teams) > 0 {
		if err := retry.Do(ctx, r.retry, r.logger, "upsert team projections", func(ctx context.Context) error {
			return r.sink.UpsertTeamProjections(ctx, teams)
		}); err != nil {
			return err
		}
	}
	if len(goalies) > 0 {
		if err := retry.Do(ctx, r.retry, r.logger, "upsert goalie projections", func(ctx context.Context) error {
			return r.sink.UpsertGoalieProjections(ctx, goalies)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) stop(ctx context.Context, deadline time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	return !deadline.IsZero() && !r.now().Before(deadline)
}
