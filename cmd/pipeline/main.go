// Command pipeline is the Scoracle NHL batch CLI.
//
// Usage:
//
//	scoracle-pipeline strength players --start 2024-10-04 --end 2024-10-31
//	scoracle-pipeline strength teams --start 2024-10-04 --end 2024-10-31
//	scoracle-pipeline strength game --id 2024020001
//	scoracle-pipeline project --date 2024-11-05
//	scoracle-pipeline backtest --start 2024-10-05 --end 2024-11-04 --lookback 1
//	scoracle-pipeline daily
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/db"
	"github.com/albapepper/scoracle-nhl/internal/pipeline"
	"github.com/albapepper/scoracle-nhl/internal/store"
	"github.com/albapepper/scoracle-nhl/internal/strength"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "scoracle-pipeline",
		Short:        "Scoracle NHL strength, projection and backtest pipeline",
		SilenceUsage: true,
	}

	root.AddCommand(strengthCmd())
	root.AddCommand(projectCmd())
	root.AddCommand(backtestCmd())
	root.AddCommand(dailyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// strength command
// --------------------------------------------------------------------------

// buildFunc is a range build on the pipeline (players or teams).
type buildFunc func(ctx context.Context, start, end time.Time, overwrite bool) strength.BuildResult

func strengthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strength",
		Short: "Build ES/PP/PK game-strength tables",
	}
	cmd.AddCommand(strengthRangeCmd("players", "Attribute player TOI and events by strength state",
		func(p *pipeline.Pipeline) buildFunc {
			return p.BuildPlayers
		}))
	cmd.AddCommand(strengthRangeCmd("teams", "Sum player strength rows into team rows",
		func(p *pipeline.Pipeline) buildFunc {
			return p.BuildTeams
		}))
	cmd.AddCommand(strengthGameCmd())
	return cmd
}

func strengthRangeCmd(use, short string, pick func(*pipeline.Pipeline) buildFunc) *cobra.Command {
	var (
		start, end string
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(func(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) error {
				yesterday := p.Today().AddDate(0, 0, -1)
				from, to, err := dateRange(start, end, cfg.Timezone, yesterday, yesterday)
				if err != nil {
					return err
				}
				began := time.Now()
				result := pick(p)(ctx, from, to, overwrite)
				logger.Info("Strength build finished",
					"target", use,
					"duration", time.Since(began).Round(time.Second),
					"summary", result.Summary())
				logErrors("strength error", result.Errors)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "First game date, YYYY-MM-DD (default yesterday)")
	cmd.Flags().StringVar(&end, "end", "", "Last game date, YYYY-MM-DD (default yesterday)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Recompute games that already have rows")
	return cmd
}

func strengthGameCmd() *cobra.Command {
	var gameID int64
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Rebuild player and team strength rows for one game",
		RunE: func(cmd *cobra.Command, args []string) error {
			if gameID == 0 {
				return fmt.Errorf("--id is required")
			}
			return runPipeline(func(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) error {
				result := p.BuildGame(ctx, gameID)
				logger.Info("Game strength rebuilt", "game_id", gameID, "summary", result.Summary())
				if len(result.Errors) > 0 {
					return fmt.Errorf("game %d: %s", gameID, result.Errors[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&gameID, "id", 0, "Game ID")
	return cmd
}

// --------------------------------------------------------------------------
// project command
// --------------------------------------------------------------------------

func projectCmd() *cobra.Command {
	var (
		date    string
		horizon int
	)
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project players, teams and goalies for a date's slate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(func(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) error {
				asOf, err := parseDate("date", date, cfg.Timezone, p.Today())
				if err != nil {
					return err
				}
				began := time.Now()
				run, err := p.Project(ctx, asOf, horizon)
				logger.Info("Projection run finished",
					"run_id", run.ID,
					"status", run.Status,
					"duration", time.Since(began).Round(time.Second),
					"games_projected", run.Metrics.Counters["games_projected"],
					"games_failed", run.Metrics.Counters["games_failed"])
				return err
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "As-of date, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "Horizon in games (default PROJECTION_HORIZON_GAMES)")
	return cmd
}

// --------------------------------------------------------------------------
// backtest command
// --------------------------------------------------------------------------

func backtestCmd() *cobra.Command {
	var (
		start, end string
		lookback   int
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Score projection runs against realized stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(func(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) error {
				yesterday := p.Today().AddDate(0, 0, -1)
				from, to, err := dateRange(start, end, cfg.Timezone, yesterday, yesterday)
				if err != nil {
					return err
				}
				began := time.Now()
				result := p.Backtest(ctx, from, to, lookback)
				logger.Info("Backtest finished",
					"duration", time.Since(began).Round(time.Second),
					"summary", result.Summary())
				logErrors("backtest error", result.Errors)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "First actual date, YYYY-MM-DD (default yesterday)")
	cmd.Flags().StringVar(&end, "end", "", "Last actual date, YYYY-MM-DD (default yesterday)")
	cmd.Flags().IntVar(&lookback, "lookback", 0, "Days between projection as-of and actual date (default BACKTEST_LOOKBACK_DAYS)")
	return cmd
}

// --------------------------------------------------------------------------
// daily command
// --------------------------------------------------------------------------

func dailyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Run the scheduled batch once: strength backfill, today's projections, yesterday's backtest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(func(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) error {
				result, err := p.Daily(ctx)
				if err != nil {
					return err
				}
				logErrors("daily error", result.Errors)
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runPipeline handles config loading, DB connection, and context cancellation.
func runPipeline(fn func(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool.Pool, logger)
	return fn(ctx, cfg, pipeline.New(st, cfg, logger))
}

func dateRange(start, end string, loc *time.Location, defStart, defEnd time.Time) (time.Time, time.Time, error) {
	from, err := parseDate("start", start, loc, defStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate("end", end, loc, defEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s is before --start %s", end, start)
	}
	return from, to, nil
}

func parseDate(flag, v string, loc *time.Location, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", flag, err)
	}
	return t, nil
}

func logErrors(msg string, errs []string) {
	for _, e := range errs {
		logger.Error(msg, "error", e)
	}
}
