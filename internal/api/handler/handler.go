// Package handler provides HTTP handlers for all API endpoints.
// Accuracy reads query Postgres directly and pass the JSON it builds through
// untouched. Job endpoints start pipeline jobs in the background.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/albapepper/scoracle-nhl/internal/accuracy"
	"github.com/albapepper/scoracle-nhl/internal/api/respond"
	"github.com/albapepper/scoracle-nhl/internal/cache"
	"github.com/albapepper/scoracle-nhl/internal/runs"
	"github.com/albapepper/scoracle-nhl/internal/strength"
)

// Querier is the subset of pgxpool.Pool the read handlers use.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunReader looks up run records.
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*runs.Run, error)
	LatestSucceededRun(ctx context.Context, kind runs.Kind, asOf time.Time) (*runs.Run, error)
}

// Jobs is the pipeline surface the job endpoints drive.
type Jobs interface {
	Location() *time.Location
	Today() time.Time
	Acquire(job string) (release func(), ok bool)
	BuildPlayers(ctx context.Context, start, end time.Time, overwrite bool) strength.BuildResult
	BuildTeams(ctx context.Context, start, end time.Time, overwrite bool) strength.BuildResult
	Project(ctx context.Context, asOf time.Time, horizon int) (runs.Run, error)
	Backtest(ctx context.Context, start, end time.Time, lookback int) accuracy.RangeResult
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db     Querier
	cache  *cache.Cache
	runs   RunReader
	jobs   Jobs
	base   context.Context
	logger *slog.Logger
	spawn  func(func())
}

// New creates a Handler. Background jobs inherit base, so cancelling it
// stops them at their next deadline check.
func New(base context.Context, db Querier, c *cache.Cache, runReader RunReader, jobs Jobs, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		db:     db,
		cache:  c,
		runs:   runReader,
		jobs:   jobs,
		base:   base,
		logger: logger,
		spawn:  func(fn func()) { go fn() },
	}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":     "Scoracle NHL Pipeline API",
		"version":  "1.0.0",
		"status":   "running",
		"timezone": h.jobs.Location().String(),
		"endpoints": []string{
			"POST /api/v1/jobs/strength/players",
			"POST /api/v1/jobs/strength/teams",
			"POST /api/v1/jobs/project",
			"POST /api/v1/jobs/backtest",
			"GET /api/v1/accuracy/scopes",
			"GET /api/v1/accuracy/stats/{date}",
			"GET /api/v1/accuracy/players/{date}",
			"GET /api/v1/accuracy/history/{playerID}",
			"GET /api/v1/runs/latest",
			"GET /api/v1/runs/{id}",
		},
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	var n int
	err := h.db.QueryRow(r.Context(), "health_check").Scan(&n)
	if err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
