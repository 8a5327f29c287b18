package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/scoracle-nhl/internal/cache"
	"github.com/albapepper/scoracle-nhl/internal/pipeline"
)

// Hook runs after a successful daily batch.
type Hook func(ctx context.Context, res pipeline.DailyResult)

// PurgeAccuracyCache drops cached accuracy reads so the API serves the
// aggregates the batch just wrote.
func PurgeAccuracyCache(c *cache.Cache, logger *slog.Logger) Hook {
	return func(_ context.Context, res pipeline.DailyResult) {
		if res.Backtest.DatesProcessed == 0 {
			return
		}
		n := c.InvalidatePrefix(cache.AccuracyPrefix)
		logger.Info("Purged accuracy cache after daily batch", "keys", n)
	}
}

// LogBatchErrors logs each per-stage error of the batch.
func LogBatchErrors(logger *slog.Logger) Hook {
	return func(_ context.Context, res pipeline.DailyResult) {
		for _, e := range res.Errors {
			logger.Warn("Daily batch error", "date", res.Date.Format(time.DateOnly), "error", e)
		}
	}
}
