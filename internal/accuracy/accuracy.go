// Package accuracy backtests persisted projections against realized box
// scores and keeps per-player, per-stat and per-scope error aggregates,
// including running totals chained across dates.
package accuracy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/scoracle-nhl/internal/projection"
)

// ErrNoProjectionRun is returned when no succeeded projection run exists for
// the lookback as-of date.
var ErrNoProjectionRun = errors.New("no succeeded projection run")

// DefaultLookbackDays is the offset between a realized date and the as-of
// date of the projection run scored against it.
const DefaultLookbackDays = 1

// PlayerType separates skater and goalie rows.
type PlayerType string

const (
	Skater PlayerType = "skater"
	Goalie PlayerType = "goalie"
)

// Scope is the population an aggregate covers.
type Scope string

const (
	ScopeOverall Scope = "overall"
	ScopeSkater  Scope = "skater"
	ScopeGoalie  Scope = "goalie"
)

// Scopes lists every scope in persistence order.
var Scopes = []Scope{ScopeOverall, ScopeSkater, ScopeGoalie}

// ActualLine is one realized stat line.
type ActualLine struct {
	PlayerID int
	GameID   int64
	TeamID   int
	Line     Line
}

// Source reads persisted projections and realized stats.
type Source interface {
	PlayerProjections(ctx context.Context, runID uuid.UUID) ([]projection.PlayerProjection, error)
	GoalieProjections(ctx context.Context, runID uuid.UUID) ([]projection.GoalieProjection, error)
	// OccurredGames returns the ids of games that were played on date.
	OccurredGames(ctx context.Context, date time.Time) (map[int64]bool, error)
	SkaterActuals(ctx context.Context, date time.Time) ([]ActualLine, error)
	GoalieActuals(ctx context.Context, date time.Time) ([]ActualLine, error)
	GoalieActualsFallback(ctx context.Context, date time.Time) ([]ActualLine, error)
	// RunningAggregates returns the running totals persisted for date, empty
	// when there are none.
	RunningAggregates(ctx context.Context, date time.Time) (map[Scope]Aggregate, error)
}

// Sink persists backtest output. Every upsert overwrites on its natural key.
type Sink interface {
	UpsertResults(ctx context.Context, rows []ResultRow) error
	UpsertStatAggregates(ctx context.Context, rows []StatAggregate) error
	UpsertPlayerAggregates(ctx context.Context, rows []PlayerAggregate) error
	UpsertScopeAggregates(ctx context.Context, rows []ScopeAggregate) error
}

// ResultRow is one scored player-game, keyed by (as-of, actual date,
// player, game, type).
type ResultRow struct {
	RunID      uuid.UUID
	AsOfDate   time.Time
	ActualDate time.Time
	PlayerID   int
	GameID     int64
	TeamID     int
	PlayerType PlayerType
	Predicted  Line
	Actual     Line
	PredPoints float64
	ActPoints  float64
	ErrorAbs   float64
	ErrorSq    float64
	Accuracy   float64
}

// StatAggregate is one stat's error aggregate for a date.
type StatAggregate struct {
	ActualDate time.Time
	RunID      uuid.UUID
	PlayerType PlayerType
	Stat       Stat
	Aggregate
}

// PlayerAggregate is one player's fantasy-point aggregate for a date.
type PlayerAggregate struct {
	ActualDate time.Time
	PlayerID   int
	PlayerType PlayerType
	Aggregate
}

// ScopeAggregate is a scope's daily aggregate and its running total through
// ActualDate.
type ScopeAggregate struct {
	ActualDate time.Time
	Scope      Scope
	Daily      Aggregate
	Running    Aggregate
}

// Diagnostics counts how projections were matched to realized lines.
type Diagnostics struct {
	ProjectionsNotPlayed int `json:"projections_not_played"`
	SkatersMatched       int `json:"skaters_matched"`
	SkatersUnmatched     int `json:"skaters_unmatched"`
	GoaliesPrimary       int `json:"goalies_primary"`
	GoaliesFallback      int `json:"goalies_fallback"`
	GoaliesUnmatched     int `json:"goalies_unmatched"`
}

// DateReport is the outcome of scoring one realized date.
type DateReport struct {
	ActualDate  time.Time
	AsOfDate    time.Time
	RunID       uuid.UUID
	Results     []ResultRow
	Stats       []StatAggregate
	Players     []PlayerAggregate
	Scopes      []ScopeAggregate
	Diagnostics Diagnostics
}
