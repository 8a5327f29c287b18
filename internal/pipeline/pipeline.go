// Package pipeline wires the strength builder, projection runner and
// backtester into the jobs the CLI, HTTP API, scheduler and listener trigger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/scoracle-nhl/internal/accuracy"
	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/projection"
	"github.com/albapepper/scoracle-nhl/internal/runs"
	"github.com/albapepper/scoracle-nhl/internal/store"
	"github.com/albapepper/scoracle-nhl/internal/strength"
)

// Job names used for mutual exclusion and logging.
const (
	JobStrength   = "strength"
	JobProjection = "projection"
	JobBacktest   = "backtest"
	JobDaily      = "daily"
)

// ErrBusy is returned when a job of the same name is already running.
var ErrBusy = errors.New("job already running")

// StrengthBuilder builds game-strength rows.
type StrengthBuilder interface {
	BuildPlayers(ctx context.Context, start, end time.Time, opts strength.Options) strength.BuildResult
	BuildTeams(ctx context.Context, start, end time.Time, opts strength.Options) strength.BuildResult
	BuildGame(ctx context.Context, gameID int64) strength.BuildResult
}

// Projector produces one projection run per as-of date.
type Projector interface {
	Run(ctx context.Context, asOf time.Time, opts projection.Options) (runs.Run, error)
}

// Backtester scores projection runs over a date range.
type Backtester interface {
	RunRange(ctx context.Context, start, end time.Time, opts accuracy.Options) accuracy.RangeResult
}

// Settings are the pipeline-level knobs taken from config.
type Settings struct {
	Location     *time.Location
	JobDeadline  time.Duration
	LookbackDays int
	HorizonGames int
	BackfillDays int
}

// SettingsFrom extracts pipeline settings from the loaded config.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Location:     cfg.Timezone,
		JobDeadline:  cfg.JobDeadline,
		LookbackDays: cfg.BacktestLookback,
		HorizonGames: cfg.ProjectionHorizon,
		BackfillDays: cfg.StrengthBackfill,
	}
}

// Pipeline runs the batch jobs. At most one job of each name runs at a time.
type Pipeline struct {
	strength   StrengthBuilder
	projector  Projector
	backtester Backtester
	settings   Settings
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.Mutex
	busy map[string]bool
}

// New builds the production pipeline over a Postgres store.
func New(st *store.Store, cfg *config.Config, logger *slog.Logger) *Pipeline {
	policy := cfg.RetryPolicy()
	return NewWith(
		strength.NewBuilder(st, policy, logger),
		projection.NewRunner(st, st, st, policy, cfg.Timezone, logger),
		accuracy.NewBacktester(st, st, st, policy, logger),
		SettingsFrom(cfg),
		logger,
	)
}

// NewWith assembles a pipeline from its parts.
func NewWith(sb StrengthBuilder, pr Projector, bt Backtester, settings Settings, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Pipeline{
		strength:   sb,
		projector:  pr,
		backtester: bt,
		settings:   settings,
		logger:     logger,
		now:        time.Now,
		busy:       make(map[string]bool),
	}
}

// Location is the timezone dates are interpreted in.
func (p *Pipeline) Location() *time.Location { return p.settings.Location }

// Today returns local midnight of the current date.
func (p *Pipeline) Today() time.Time {
	n := p.now().In(p.settings.Location)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, p.settings.Location)
}

// Acquire marks job as running. The returned release must be called when
// the job ends; ok is false if the job is already running.
func (p *Pipeline) Acquire(job string) (release func(), ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy[job] {
		return nil, false
	}
	p.busy[job] = true
	return func() {
		p.mu.Lock()
		delete(p.busy, job)
		p.mu.Unlock()
	}, true
}

func (p *Pipeline) deadline() time.Time {
	if p.settings.JobDeadline <= 0 {
		return time.Time{}
	}
	return p.now().Add(p.settings.JobDeadline)
}

// BuildPlayers rebuilds player strength rows for games in [start, end].
func (p *Pipeline) BuildPlayers(ctx context.Context, start, end time.Time, overwrite bool) strength.BuildResult {
	return p.strength.BuildPlayers(ctx, start, end, strength.Options{Deadline: p.deadline(), Overwrite: overwrite})
}

// BuildTeams rebuilds team strength rows for games in [start, end].
func (p *Pipeline) BuildTeams(ctx context.Context, start, end time.Time, overwrite bool) strength.BuildResult {
	return p.strength.BuildTeams(ctx, start, end, strength.Options{Deadline: p.deadline(), Overwrite: overwrite})
}

// BuildGame rebuilds player and team strength rows for one game.
func (p *Pipeline) BuildGame(ctx context.Context, gameID int64) strength.BuildResult {
	return p.strength.BuildGame(ctx, gameID)
}

// Project runs projections as of asOf. horizon <= 0 uses the configured horizon.
func (p *Pipeline) Project(ctx context.Context, asOf time.Time, horizon int) (runs.Run, error) {
	if horizon <= 0 {
		horizon = p.settings.HorizonGames
	}
	return p.projector.Run(ctx, asOf, p.projectionOptions(p.deadline(), horizon))
}

// projectionOptions covers the slate the backtest will score: a run as of D
// holds games through D+LookbackDays.
func (p *Pipeline) projectionOptions(deadline time.Time, horizon int) projection.Options {
	return projection.Options{Deadline: deadline, HorizonGames: horizon, LookaheadDays: p.settings.LookbackDays}
}

// Backtest scores every date in [start, end]. lookback <= 0 uses the
// configured lookback.
func (p *Pipeline) Backtest(ctx context.Context, start, end time.Time, lookback int) accuracy.RangeResult {
	if lookback <= 0 {
		lookback = p.settings.LookbackDays
	}
	return p.backtester.RunRange(ctx, start, end, accuracy.Options{LookbackDays: lookback, Deadline: p.deadline()})
}

// DailyResult is the outcome of one scheduled batch.
type DailyResult struct {
	Date       time.Time
	Strength   strength.BuildResult
	Projection runs.Run
	Backtest   accuracy.RangeResult
	Errors     []string
}

// AddErrorf records a formatted error message.
func (r *DailyResult) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the batch.
func (r *DailyResult) Summary() string {
	return fmt.Sprintf("date=%s strength=[%s] projection=%s backtest=[%s] errors=%d",
		r.Date.Format(time.DateOnly), r.Strength.Summary(), r.Projection.Status,
		r.Backtest.Summary(), len(r.Errors))
}

// Daily re-attributes the last BackfillDays of games, projects today's slate
// and scores yesterday. Each stage runs even if an earlier one failed.
func (p *Pipeline) Daily(ctx context.Context) (DailyResult, error) {
	release, ok := p.Acquire(JobDaily)
	if !ok {
		return DailyResult{}, ErrBusy
	}
	defer release()

	today := p.Today()
	yesterday := today.AddDate(0, 0, -1)
	res := DailyResult{Date: today}
	deadline := p.deadline()
	opts := strength.Options{Deadline: deadline, Overwrite: true}

	if p.settings.BackfillDays > 0 {
		from := today.AddDate(0, 0, -p.settings.BackfillDays)
		res.Strength.Add(p.strength.BuildPlayers(ctx, from, yesterday, opts))
		res.Strength.Add(p.strength.BuildTeams(ctx, from, yesterday, opts))
		for _, e := range res.Strength.Errors {
			res.AddErrorf("strength: %s", e)
		}
	}

	run, err := p.projector.Run(ctx, today, p.projectionOptions(deadline, p.settings.HorizonGames))
	res.Projection = run
	if err != nil {
		res.AddErrorf("projection: %v", err)
	}

	res.Backtest = p.backtester.RunRange(ctx, yesterday, yesterday,
		accuracy.Options{LookbackDays: p.settings.LookbackDays, Deadline: deadline})
	for _, e := range res.Backtest.Errors {
		res.AddErrorf("backtest: %s", e)
	}

	p.logger.Info("Daily batch finished", "summary", res.Summary())
	return res, nil
}
