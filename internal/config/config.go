// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/albapepper/scoracle-nhl/internal/retry"
)

// --------------------------------------------------------------------------
// Table names: single source of truth for every statement in internal/db and internal/store
// --------------------------------------------------------------------------

const (
	// Raw feeds (written by the ingestion service, read here)
	GamesTable         = "games"
	PlaysTable         = "play_by_play"
	ShiftsTable        = "shifts"
	RostersTable       = "rosters"
	RollingTable       = "player_rolling_averages"
	RosterEventsTable  = "roster_events"
	StartProbTable     = "goalie_start_probabilities"
	SkaterBoxTable     = "skater_box_scores"
	GoalieBoxTable     = "goalie_box_scores"
	GoalieSummaryTable = "goalie_game_summaries"

	// Strength tables
	PlayerStrengthTable = "player_game_strength"
	TeamStrengthTable   = "team_game_strength"

	// Projections
	RunsTable            = "projection_runs"
	PlayerProjTable      = "player_projections"
	TeamProjTable        = "team_projections"
	GoalieProjTable      = "goalie_projections"
	AccuracyResultsTable = "accuracy_results"
	AccuracyStatTable    = "accuracy_stat_daily"
	AccuracyPlayerTable  = "accuracy_player_daily"
	AccuracyScopeTable   = "accuracy_scope_daily"
)

// GameDataChannel is the NOTIFY channel the ingestion service signals when a
// game's shifts and plays have landed.
const GameDataChannel = "game_data_loaded"

// --------------------------------------------------------------------------
// Config struct: populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Pipeline
	Timezone          *time.Location
	BacktestLookback  int
	JobDeadline       time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	StrengthBackfill  int // days re-attributed by the daily schedule
	ScheduleEnabled   bool
	ScheduleInterval  time.Duration
	ListenerEnabled   bool
	ProjectionHorizon int
	StaleRunAfter     time.Duration // running runs older than this are failed by the janitor

	// Cache
	CacheEnabled bool
	CacheTTL     time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("NEON_DATABASE_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or NEON_DATABASE_URL must be set")
	}

	tzName := envOr("PIPELINE_TIMEZONE", "America/New_York")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("PIPELINE_TIMEZONE %q: %w", tzName, err)
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		Timezone:          loc,
		BacktestLookback:  envInt("BACKTEST_LOOKBACK_DAYS", 1),
		JobDeadline:       time.Duration(envInt("JOB_DEADLINE_MINUTES", 20)) * time.Minute,
		RetryAttempts:     envInt("RETRY_ATTEMPTS", 3),
		RetryBaseDelay:    time.Duration(envInt("RETRY_BASE_DELAY_MS", 500)) * time.Millisecond,
		RetryMaxDelay:     time.Duration(envInt("RETRY_MAX_DELAY_MS", 10000)) * time.Millisecond,
		StrengthBackfill:  envInt("STRENGTH_BACKFILL_DAYS", 2),
		ScheduleEnabled:   envBool("SCHEDULE_ENABLED", true),
		ScheduleInterval:  time.Duration(envInt("SCHEDULE_INTERVAL_MINUTES", 60)) * time.Minute,
		ListenerEnabled:   envBool("LISTENER_ENABLED", true),
		ProjectionHorizon: envInt("PROJECTION_HORIZON_GAMES", 1),
		StaleRunAfter:     time.Duration(envInt("STALE_RUN_MINUTES", 360)) * time.Minute,

		CacheEnabled: envBool("CACHE_ENABLED", true),
		CacheTTL:     time.Duration(envInt("CACHE_TTL_SECONDS", 300)) * time.Second,
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// RetryPolicy is the backoff used at the store boundary.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{Attempts: c.RetryAttempts, BaseDelay: c.RetryBaseDelay, MaxDelay: c.RetryMaxDelay}
}

// Deadline returns the wall-clock cutoff for a job started at now.
func (c *Config) Deadline(now time.Time) time.Time {
	if c.JobDeadline <= 0 {
		return time.Time{}
	}
	return now.Add(c.JobDeadline)
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
