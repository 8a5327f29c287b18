package strength

import "fmt"

// BuildResult tracks counts and errors from a strength-table build.
type BuildResult struct {
	GamesFound         int
	GamesProcessed     int
	GamesSkipped       int
	PlayerRowsUpserted int
	TeamRowsUpserted   int
	ShiftsRejected     int
	DeadlineReached    bool
	Errors             []string
}

// Add merges another BuildResult into this one.
func (r *BuildResult) Add(other BuildResult) {
	r.GamesFound += other.GamesFound
	r.GamesProcessed += other.GamesProcessed
	r.GamesSkipped += other.GamesSkipped
	r.PlayerRowsUpserted += other.PlayerRowsUpserted
	r.TeamRowsUpserted += other.TeamRowsUpserted
	r.ShiftsRejected += other.ShiftsRejected
	r.DeadlineReached = r.DeadlineReached || other.DeadlineReached
	r.Errors = append(r.Errors, other.Errors...)
}

// AddErrorf records a formatted error message.
func (r *BuildResult) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the build.
func (r *BuildResult) Summary() string {
	return fmt.Sprintf(
		"games=%d/%d skipped=%d player_rows=%d team_rows=%d rejected_shifts=%d deadline=%v errors=%d",
		r.GamesProcessed, r.GamesFound, r.GamesSkipped,
		r.PlayerRowsUpserted, r.TeamRowsUpserted, r.ShiftsRejected,
		r.DeadlineReached, len(r.Errors),
	)
}
