// Package maintenance runs periodic background tasks as Go tickers: the
// daily pipeline batch and a sweep that fails runs orphaned by a crash.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/pipeline"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	ScheduleInterval time.Duration // How often to check whether today's batch ran
	JanitorInterval  time.Duration // Stale run sweep
	StaleRunAfter    time.Duration // Age at which a running run is abandoned
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ScheduleInterval: 1 * time.Hour,
		JanitorInterval:  30 * time.Minute,
		StaleRunAfter:    6 * time.Hour,
	}
}

// ConfigFrom derives the maintenance config from the loaded app config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.ScheduleInterval = cfg.ScheduleInterval
	if !cfg.ScheduleEnabled {
		c.ScheduleInterval = 0
	}
	if cfg.StaleRunAfter > 0 {
		c.StaleRunAfter = cfg.StaleRunAfter
	}
	return c
}

// DailyJob is the pipeline batch the scheduler drives.
type DailyJob interface {
	Today() time.Time
	Daily(ctx context.Context) (pipeline.DailyResult, error)
}

// RunJanitor fails runs left in the running state.
type RunJanitor interface {
	AbandonStaleRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, job DailyJob, janitor RunJanitor, cfg Config, hooks []Hook, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"schedule", cfg.ScheduleInterval,
		"janitor", cfg.JanitorInterval,
		"stale_run_after", cfg.StaleRunAfter)

	var wg sync.WaitGroup
	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Daily batch: once per local date, checked on start and every interval
	if cfg.ScheduleInterval > 0 {
		d := &dailyTask{job: job, hooks: hooks, logger: logger}
		t := time.NewTicker(cfg.ScheduleInterval)
		tickers = append(tickers, t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.tick(ctx)
			runLoop(ctx, t.C, func() { d.tick(ctx) })
		}()
	}

	// Janitor: fail runs whose process died before finalizing them
	if cfg.JanitorInterval > 0 && cfg.StaleRunAfter > 0 {
		t := time.NewTicker(cfg.JanitorInterval)
		tickers = append(tickers, t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runLoop(ctx, t.C, func() { abandonStaleRuns(ctx, janitor, cfg.StaleRunAfter, time.Now(), logger) })
		}()
	}

	<-ctx.Done()
	wg.Wait()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// dailyTask runs the pipeline batch at most once per local date. A batch
// that could not start (already running) is retried on the next tick.
type dailyTask struct {
	job     DailyJob
	hooks   []Hook
	logger  *slog.Logger
	lastDay time.Time
}

func (d *dailyTask) tick(ctx context.Context) bool {
	today := d.job.Today()
	if today.Equal(d.lastDay) {
		return false
	}

	start := time.Now()
	res, err := d.job.Daily(ctx)
	if errors.Is(err, pipeline.ErrBusy) {
		d.logger.Info("Daily batch skipped, already running")
		return false
	}
	if err != nil {
		d.logger.Error("Daily batch failed", "error", err)
		return false
	}

	d.lastDay = today
	d.logger.Info("Daily batch complete",
		"date", today.Format(time.DateOnly),
		"duration", time.Since(start).Round(time.Second),
		"errors", len(res.Errors))
	for _, hook := range d.hooks {
		hook(ctx, res)
	}
	return true
}

// abandonStaleRuns fails runs that have been running longer than maxAge.
func abandonStaleRuns(ctx context.Context, janitor RunJanitor, maxAge time.Duration, now time.Time, logger *slog.Logger) {
	n, err := janitor.AbandonStaleRuns(ctx, now.Add(-maxAge))
	if err != nil {
		logger.Warn("Janitor: failed to abandon stale runs", "error", err)
		return
	}
	if n > 0 {
		logger.Info("Janitor: abandoned stale runs", "count", n)
	}
}
