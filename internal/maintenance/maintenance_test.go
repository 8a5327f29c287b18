package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-nhl/internal/accuracy"
	"github.com/albapepper/scoracle-nhl/internal/cache"
	"github.com/albapepper/scoracle-nhl/internal/config"
	"github.com/albapepper/scoracle-nhl/internal/pipeline"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeDaily struct {
	mu    sync.Mutex
	today time.Time
	calls int
	err   error
	res   pipeline.DailyResult
}

func (f *fakeDaily) Today() time.Time { return f.today }

func (f *fakeDaily) Daily(context.Context) (pipeline.DailyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func (f *fakeDaily) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestDailyTask_OncePerDate(t *testing.T) {
	job := &fakeDaily{today: time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)}
	hooked := 0
	d := &dailyTask{job: job, logger: quiet, hooks: []Hook{
		func(context.Context, pipeline.DailyResult) { hooked++ },
	}}

	assert.True(t, d.tick(context.Background()))
	assert.False(t, d.tick(context.Background()))
	assert.Equal(t, 1, job.calls)
	assert.Equal(t, 1, hooked)

	job.today = job.today.AddDate(0, 0, 1)
	assert.True(t, d.tick(context.Background()))
	assert.Equal(t, 2, job.calls)
}

func TestDailyTask_RetriesWhenBusy(t *testing.T) {
	job := &fakeDaily{today: time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC), err: pipeline.ErrBusy}
	d := &dailyTask{job: job, logger: quiet}

	assert.False(t, d.tick(context.Background()))
	job.err = nil
	assert.True(t, d.tick(context.Background()))
	assert.Equal(t, 2, job.calls)
}

type fakeJanitor struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakeJanitor) AbandonStaleRuns(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestAbandonStaleRuns_Cutoff(t *testing.T) {
	j := &fakeJanitor{n: 1}
	now := time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)
	abandonStaleRuns(context.Background(), j, 6*time.Hour, now, quiet)
	assert.Equal(t, time.Date(2024, 11, 5, 6, 0, 0, 0, time.UTC), j.cutoff)

	j.err = errors.New("db down")
	abandonStaleRuns(context.Background(), j, 6*time.Hour, now, quiet)
}

func TestPurgeAccuracyCache(t *testing.T) {
	c := cache.New(true)
	c.Set("accuracy:stats:2024-11-04", []byte(`[]`), time.Hour)
	hook := PurgeAccuracyCache(c, quiet)

	hook(context.Background(), pipeline.DailyResult{})
	_, _, ok := c.Get("accuracy:stats:2024-11-04")
	require.True(t, ok, "nothing scored, cache kept")

	hook(context.Background(), pipeline.DailyResult{Backtest: accuracy.RangeResult{DatesProcessed: 1}})
	_, _, ok = c.Get("accuracy:stats:2024-11-04")
	assert.False(t, ok)
}

func TestConfigFrom(t *testing.T) {
	c := ConfigFrom(&config.Config{ScheduleEnabled: false, ScheduleInterval: time.Hour})
	assert.Zero(t, c.ScheduleInterval)
	assert.Equal(t, 6*time.Hour, c.StaleRunAfter)

	c = ConfigFrom(&config.Config{ScheduleEnabled: true, ScheduleInterval: 15 * time.Minute, StaleRunAfter: time.Hour})
	assert.Equal(t, 15*time.Minute, c.ScheduleInterval)
	assert.Equal(t, time.Hour, c.StaleRunAfter)
}

func TestStart_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &fakeDaily{today: time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)}
	done := make(chan struct{})
	go func() {
		Start(ctx, job, &fakeJanitor{}, Config{ScheduleInterval: time.Hour}, nil, quiet)
		close(done)
	}()

	require.Eventually(t, func() bool { return job.callCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
