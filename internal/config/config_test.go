package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NEON_DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/nhl")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cfg.Timezone.String())
	assert.Equal(t, 1, cfg.BacktestLookback)
	assert.Equal(t, 20*time.Minute, cfg.JobDeadline)
	assert.Equal(t, 2, cfg.StrengthBackfill)
	assert.Equal(t, 1, cfg.ProjectionHorizon)
	assert.Equal(t, 6*time.Hour, cfg.StaleRunAfter)
	assert.True(t, cfg.ScheduleEnabled)
	assert.Equal(t, 3, cfg.RetryPolicy().Attempts)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NEON_DATABASE_URL", "postgres://neon/nhl")
	t.Setenv("PIPELINE_TIMEZONE", "America/Los_Angeles")
	t.Setenv("BACKTEST_LOOKBACK_DAYS", "3")
	t.Setenv("JOB_DEADLINE_MINUTES", "0")
	t.Setenv("SCHEDULE_ENABLED", "false")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RETRY_BASE_DELAY_MS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://neon/nhl", cfg.DatabaseURL)
	assert.Equal(t, "America/Los_Angeles", cfg.Timezone.String())
	assert.Equal(t, 3, cfg.BacktestLookback)
	assert.False(t, cfg.ScheduleEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.True(t, cfg.Deadline(time.Now()).IsZero())
}

func TestLoad_BadTimezone(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/nhl")
	t.Setenv("PIPELINE_TIMEZONE", "Mars/Olympus")
	_, err := Load()
	assert.Error(t, err)
}

func TestDeadline(t *testing.T) {
	now := time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)
	cfg := &Config{JobDeadline: 20 * time.Minute}
	assert.Equal(t, now.Add(20*time.Minute), cfg.Deadline(now))
}
