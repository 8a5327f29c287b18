// Package runs models the lifecycle of a pipeline run: created as running,
// finalized exactly once as succeeded or failed together with the metrics
// accumulated along the way.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Kind distinguishes projection runs from accuracy backtests.
type Kind string

const (
	KindProjection Kind = "projection"
	KindAccuracy   Kind = "accuracy"
)

// ErrAlreadyFinalized is returned when a run is finalized a second time.
var ErrAlreadyFinalized = errors.New("run already finalized")

// Run is an immutable snapshot of a run record.
type Run struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	AsOfDate   time.Time       `json:"as_of_date"`
	Status     Status          `json:"status"`
	Metrics    MetricsSnapshot `json:"metrics"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Terminal reports whether the run has reached a final status.
func (r Run) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// finish returns a copy of r in its terminal state.
func (r Run) finish(status Status, m MetricsSnapshot, errMsg string, at time.Time) Run {
	r.Status = status
	r.Metrics = m
	r.Error = errMsg
	r.FinishedAt = &at
	return r
}

// Store persists run records.
type Store interface {
	InsertRun(ctx context.Context, r Run) error
	FinalizeRun(ctx context.Context, r Run) error
	LatestSucceededRun(ctx context.Context, kind Kind, asOf time.Time) (*Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
}

// MetricsSnapshot is the serialized form of a run's metrics.
type MetricsSnapshot struct {
	Counters map[string]float64 `json:"counters"`
	Warnings []string           `json:"warnings,omitempty"`
}

// maxWarnings caps the warning list so a noisy run cannot bloat its record.
const maxWarnings = 200

// Metrics accumulates data-quality counters and diagnostics for a run.
// It is safe for concurrent use.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]float64
	warnings []string
	dropped  int
}

// NewMetrics returns an empty metrics accumulator.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]float64)}
}

// Inc adds 1 to a counter.
func (m *Metrics) Inc(name string) { m.Add(name, 1) }

// Add adds v to a counter.
func (m *Metrics) Add(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += v
}

// Set overwrites a counter.
func (m *Metrics) Set(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] = v
}

// Get returns a counter value.
func (m *Metrics) Get(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Warnf records a diagnostic message.
func (m *Metrics) Warnf(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.warnings) >= maxWarnings {
		m.dropped++
		return
	}
	m.warnings = append(m.warnings, fmt.Sprintf(format, args...))
}

// Snapshot copies the current state.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	counters := make(map[string]float64, len(m.counters)+1)
	for k, v := range m.counters {
		counters[k] = v
	}
	if m.dropped > 0 {
		counters["warnings_dropped"] = float64(m.dropped)
	}
	warnings := make([]string, len(m.warnings))
	copy(warnings, m.warnings)
	return MetricsSnapshot{Counters: counters, Warnings: warnings}
}

// Names returns the counter names in sorted order.
func (s MetricsSnapshot) Names() []string {
	names := make([]string, 0, len(s.Counters))
	for k := range s.Counters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Tracker owns one run from creation to its single terminal transition.
type Tracker struct {
	store   Store
	logger  *slog.Logger
	now     func() time.Time
	run     Run
	metrics *Metrics

	mu    sync.Mutex
	final *Run
}

// Start inserts a new running run and returns its tracker.
func Start(ctx context.Context, store Store, kind Kind, asOf time.Time, logger *slog.Logger) (*Tracker, error) {
	return start(ctx, store, kind, asOf, logger, time.Now)
}

func start(ctx context.Context, store Store, kind Kind, asOf time.Time, logger *slog.Logger, now func() time.Time) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	run := Run{
		ID:        uuid.New(),
		Kind:      kind,
		AsOfDate:  asOf,
		Status:    StatusRunning,
		StartedAt: now(),
	}
	if err := store.InsertRun(ctx, run); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	logger.Info("Run started", "run_id", run.ID, "kind", kind, "as_of", asOf.Format(time.DateOnly))
	return &Tracker{store: store, logger: logger, now: now, run: run, metrics: NewMetrics()}, nil
}

// Run returns the run as created.
func (t *Tracker) Run() Run { return t.run }

// Metrics returns the accumulator threaded through the run's steps.
func (t *Tracker) Metrics() *Metrics { return t.metrics }

// Finish finalizes the run: succeeded when runErr is nil, failed otherwise.
// Only the first call has effect; later calls return ErrAlreadyFinalized.
func (t *Tracker) Finish(ctx context.Context, runErr error) (Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.final != nil {
		return *t.final, ErrAlreadyFinalized
	}

	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	final := t.run.finish(status, t.metrics.Snapshot(), msg, t.now())
	t.final = &final

	// Finalization must land even if the run's own context was cancelled.
	writeCtx := context.WithoutCancel(ctx)
	if err := t.store.FinalizeRun(writeCtx, final); err != nil {
		t.logger.Error("Failed to finalize run", "run_id", final.ID, "status", status, "error", err)
		return final, fmt.Errorf("finalize run %s: %w", final.ID, err)
	}
	t.logger.Info("Run finalized",
		"run_id", final.ID, "kind", final.Kind, "status", status,
		"duration", final.FinishedAt.Sub(final.StartedAt).Round(time.Millisecond))
	return final, nil
}

// Execute starts a run, calls fn, and finalizes the run with fn's outcome.
// A panic in fn finalizes the run as failed and is then re-raised.
func Execute(ctx context.Context, store Store, kind Kind, asOf time.Time, logger *slog.Logger,
	fn func(ctx context.Context, t *Tracker) error) (run Run, err error) {
	t, err := Start(ctx, store, kind, asOf, logger)
	if err != nil {
		return Run{}, err
	}
	return execute(ctx, t, fn)
}

func execute(ctx context.Context, t *Tracker, fn func(ctx context.Context, t *Tracker) error) (run Run, err error) {
	defer func() {
		if p := recover(); p != nil {
			_, _ = t.Finish(ctx, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	runErr := fn(ctx, t)
	final, finErr := t.Finish(ctx, runErr)
	if runErr != nil {
		return final, runErr
	}
	return final, finErr
}
