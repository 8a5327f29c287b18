package accuracy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/albapepper/scoracle-nhl/internal/projection"
	"github.com/albapepper/scoracle-nhl/internal/retry"
	"github.com/albapepper/scoracle-nhl/internal/runs"
)

// Options are the control-surface parameters of a backtest.
type Options struct {
	// LookbackDays is the offset O; the run scored against date D is the
	// latest succeeded projection run as of D-O. Zero means DefaultLookbackDays.
	LookbackDays int
	// Deadline is a wall-clock cutoff checked between dates. Zero means none.
	Deadline time.Time
}

// RangeResult tracks a multi-date backtest.
type RangeResult struct {
	DatesFound      int
	DatesProcessed  int
	ResultRows      int
	DeadlineReached bool
	Runs            []runs.Run
	Errors          []string
}

// AddErrorf records a formatted error message.
func (r *RangeResult) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the backtest.
func (r *RangeResult) Summary() string {
	return fmt.Sprintf("dates=%d/%d results=%d deadline=%v errors=%d",
		r.DatesProcessed, r.DatesFound, r.ResultRows, r.DeadlineReached, len(r.Errors))
}

// Backtester scores projection runs against realized stats.
type Backtester struct {
	source Source
	sink   Sink
	runs   runs.Store
	retry  retry.Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewBacktester creates a Backtester.
func NewBacktester(source Source, sink Sink, runStore runs.Store, policy retry.Policy, logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{source: source, sink: sink, runs: runStore, retry: policy, logger: logger, now: time.Now}
}

// Run backtests one realized date inside an accuracy run. The running
// totals chain from the previous date's persisted running aggregates.
func (b *Backtester) Run(ctx context.Context, date time.Time, opts Options) (runs.Run, DateReport, error) {
	return b.run(ctx, date, opts, nil)
}

// RunRange backtests every date in [start, end] in order. A failing date is
// recorded and the loop continues; the deadline is only checked between
// dates.
func (b *Backtester) RunRange(ctx context.Context, start, end time.Time, opts Options) RangeResult {
	var dates []time.Time
	for d := dateOnly(start); !d.After(dateOnly(end)); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	result := RangeResult{DatesFound: len(dates)}

	var carry map[Scope]Aggregate
	for i, d := range dates {
		if b.stop(ctx, opts.Deadline) {
			result.DeadlineReached = true
			b.logger.Warn("Stopping backtest before deadline",
				"processed", result.DatesProcessed, "remaining", len(dates)-i)
			break
		}

		run, rep, err := b.run(ctx, d, opts, carry)
		if run.ID != uuid.Nil {
			result.Runs = append(result.Runs, run)
		}
		if err != nil {
			carry = nil
			result.AddErrorf("%s: %v", d.Format(time.DateOnly), err)
			continue
		}
		carry = rep.Running()
		result.DatesProcessed++
		result.ResultRows += len(rep.Results)
	}

	b.logger.Info("Backtest complete", "summary", result.Summary())
	return result
}

func (b *Backtester) run(ctx context.Context, date time.Time, opts Options, prev map[Scope]Aggregate) (runs.Run, DateReport, error) {
	date = dateOnly(date)
	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}

	var rep DateReport
	run, err := runs.Execute(ctx, b.runs, runs.KindAccuracy, date, b.logger, func(ctx context.Context, t *runs.Tracker) error {
		m := t.Metrics()
		asOf := date.AddDate(0, 0, -lookback)

		proj, err := retry.Value(ctx, b.retry, b.logger, "find projection run", func(ctx context.Context) (*runs.Run, error) {
			return b.runs.LatestSucceededRun(ctx, runs.KindProjection, asOf)
		})
		if err != nil {
			return err
		}
		if proj == nil {
			return fmt.Errorf("as of %s: %w", asOf.Format(time.DateOnly), ErrNoProjectionRun)
		}

		in, err := b.load(ctx, date, asOf, proj)
		if err != nil {
			return err
		}

		if prev == nil {
			prev, err = retry.Value(ctx, b.retry, b.logger, "fetch previous running totals", func(ctx context.Context) (map[Scope]Aggregate, error) {
				return b.source.RunningAggregates(ctx, date.AddDate(0, 0, -1))
			})
			if err != nil {
				return err
			}
			if len(prev) == 0 {
				m.Set("running_restarted", 1)
			}
		}

		rep = Evaluate(in, prev)
		if err := b.write(ctx, rep); err != nil {
			return err
		}

		d := rep.Diagnostics
		m.Set("projection_run_found", 1)
		m.Set("games_occurred", float64(len(in.Occurred)))
		m.Set("results", float64(len(rep.Results)))
		m.Set("projections_not_played", float64(d.ProjectionsNotPlayed))
		m.Set("skaters_matched", float64(d.SkatersMatched))
		m.Set("skaters_unmatched", float64(d.SkatersUnmatched))
		m.Set("goalies_primary", float64(d.GoaliesPrimary))
		m.Set("goalies_fallback", float64(d.GoaliesFallback))
		m.Set("goalies_unmatched", float64(d.GoaliesUnmatched))
		for _, s := range rep.Scopes {
			m.Set("daily_accuracy_avg:"+string(s.Scope), s.Daily.AccuracyAvg())
		}

		b.logger.Info("Backtest date scored",
			"actual_date", date.Format(time.DateOnly), "projection_run", proj.ID,
			"results", len(rep.Results), "goalies_fallback", d.GoaliesFallback, "goalies_unmatched", d.GoaliesUnmatched)
		return nil
	})
	return run, rep, err
}

func (b *Backtester) load(ctx context.Context, date, asOf time.Time, proj *runs.Run) (Inputs, error) {
	in := Inputs{ActualDate: date, AsOfDate: asOf, RunID: proj.ID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Players, err = retry.Value(gctx, b.retry, b.logger, "fetch player projections", func(ctx context.Context) ([]projection.PlayerProjection, error) {
			return b.source.PlayerProjections(ctx, proj.ID)
		})
		return err
	})
	g.Go(func() error {
		var err error
		in.Goalies, err = retry.Value(gctx, b.retry, b.logger, "fetch goalie projections", func(ctx context.Context) ([]projection.GoalieProjection, error) {
			return b.source.GoalieProjections(ctx, proj.ID)
		})
		return err
	})
	g.Go(func() error {
		var err error
		in.Occurred, err = retry.Value(gctx, b.retry, b.logger, "fetch occurred games", func(ctx context.Context) (map[int64]bool, error) {
			return b.source.OccurredGames(ctx, date)
		})
		return err
	})
	g.Go(func() error {
		var err error
		in.Skaters, err = retry.Value(gctx, b.retry, b.logger, "fetch skater actuals", func(ctx context.Context) ([]ActualLine, error) {
			return b.source.SkaterActuals(ctx, date)
		})
		return err
	})
	g.Go(func() error {
		var err error
		in.GoaliePrimary, err = retry.Value(gctx, b.retry, b.logger, "fetch goalie actuals", func(ctx context.Context) ([]ActualLine, error) {
			return b.source.GoalieActuals(ctx, date)
		})
		return err
	})
	g.Go(func() error {
		var err error
		in.GoalieFallback, err = retry.Value(gctx, b.retry, b.logger, "fetch fallback goalie actuals", func(ctx context.Context) ([]ActualLine, error) {
			return b.source.GoalieActualsFallback(ctx, date)
		})
		return err
	})
	return in, g.Wait()
}

func (b *Backtester) write(ctx context.Context, rep DateReport) error {
	steps := []struct {
		op string
		fn func(ctx context.Context) error
	}{
		{"upsert accuracy results", func(ctx context.Context) error { return b.sink.UpsertResults(ctx, rep.Results) }},
		{"upsert stat aggregates", func(ctx context.Context) error { return b.sink.UpsertStatAggregates(ctx, rep.Stats) }},
		{"upsert player aggregates", func(ctx context.Context) error { return b.sink.UpsertPlayerAggregates(ctx, rep.Players) }},
		{"upsert scope aggregates", func(ctx context.Context) error { return b.sink.UpsertScopeAggregates(ctx, rep.Scopes) }},
	}
	for _, s := range steps {
		if err := retry.Do(ctx, b.retry, b.logger, s.op, s.fn); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backtester) stop(ctx context.Context, deadline time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	return !deadline.IsZero() && !b.now().Before(deadline)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
