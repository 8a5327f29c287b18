// Package projection produces the daily player, team and goalie projections:
// unconstrained per-player estimates from rolling rates and availability,
// reconciled so team totals match team targets, then goalie lines derived
// from the opponent's reconciled shots.
package projection

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/scoracle-nhl/internal/availability"
	"github.com/albapepper/scoracle-nhl/internal/situation"
)

// Epsilon is the tolerance under which a float sum is treated as zero.
const Epsilon = 1e-9

// DefaultHorizonGames is the horizon stamped on daily projections.
const DefaultHorizonGames = 1

// DefaultLookaheadDays is how many days past the as-of date a run covers.
// It matches the backtest's default lookback, so the run as of D-1 holds
// the slate scored for D.
const DefaultLookaheadDays = 1

// Game is a scheduled game to project.
type Game struct {
	ID         int64
	Date       time.Time
	HomeTeamID int
	AwayTeamID int
}

// Opponent returns the other team in the game.
func (g Game) Opponent(teamID int) int {
	if teamID == g.HomeTeamID {
		return g.AwayTeamID
	}
	return g.HomeTeamID
}

// RollingRow is a player's rolling-average row for one strength state.
// Every metric is optional; absent values fall through the provider chain.
type RollingRow struct {
	PlayerID           int
	Strength           situation.Strength
	AsOf               time.Time
	TOILast5           *float64
	TOIAllTime         *float64
	ShotsPer60Last5    *float64
	ShotsPer60AllTime  *float64
	HitsPer60Last5     *float64
	HitsPer60AllTime   *float64
	BlocksPer60Last5   *float64
	BlocksPer60AllTime *float64
}

// SeasonTotals are a player's all-strength season counts.
type SeasonTotals struct {
	PlayerID int
	Goals    int
	Assists  int
	Shots    int
}

// TeamHistory is a team's recent per-game strength averages.
type TeamHistory struct {
	TeamID  int
	Games   int
	TOIES   float64
	TOIPP   float64
	ShotsES float64
	ShotsPP float64
}

// StartProbability is one row of the external goalie start-probability table.
type StartProbability struct {
	GameID      int64
	TeamID      int
	GoalieID    int
	Probability float64
}

// Source reads projection inputs. Rolling rows and totals are as of, but
// strictly before, the given date.
type Source interface {
	ScheduledGames(ctx context.Context, date time.Time) ([]Game, error)
	TeamSkaters(ctx context.Context, teamID int) ([]int, error)
	TeamGoalies(ctx context.Context, teamID int, gameID int64) ([]int, error)
	RollingRows(ctx context.Context, playerIDs []int, before time.Time) ([]RollingRow, error)
	SeasonTotals(ctx context.Context, playerIDs []int, before time.Time) ([]SeasonTotals, error)
	TeamHistory(ctx context.Context, teamID int, before time.Time) (*TeamHistory, error)
	StartProbabilities(ctx context.Context, gameID int64) ([]StartProbability, error)
	RosterEvents(ctx context.Context, teamIDs []int, w availability.Window) ([]availability.RosterEvent, error)
}

// Sink persists projection rows, keyed by (run, game, entity, horizon).
type Sink interface {
	UpsertPlayerProjections(ctx context.Context, rows []PlayerProjection) error
	UpsertTeamProjections(ctx context.Context, rows []TeamProjection) error
	UpsertGoalieProjections(ctx context.Context, rows []GoalieProjection) error
	// DeleteSupersededRuns removes every finished projection run as of asOf
	// other than keep, together with its rows.
	DeleteSupersededRuns(ctx context.Context, asOf time.Time, keep uuid.UUID) error
}

// PlayerProjection is a persisted skater projection.
type PlayerProjection struct {
	RunID        uuid.UUID
	GameID       int64
	PlayerID     int
	TeamID       int
	OpponentID   int
	HorizonGames int
	AsOfDate     time.Time
	Availability float64
	TOIES        float64
	TOIPP        float64
	ShotsES      float64
	ShotsPP      float64
	Goals        float64
	Assists      float64
	Hits         float64
	Blocks       float64
}

// TeamProjection is a persisted team total after reconciliation.
type TeamProjection struct {
	RunID        uuid.UUID
	GameID       int64
	TeamID       int
	OpponentID   int
	HorizonGames int
	AsOfDate     time.Time
	Skaters      int
	TOIES        float64
	TOIPP        float64
	ShotsES      float64
	ShotsPP      float64
	Goals        float64
	Assists      float64
	TOIBefore    float64
}

// GoalieProjection is a persisted starting-goalie projection.
type GoalieProjection struct {
	RunID              uuid.UUID
	GameID             int64
	GoalieID           int
	TeamID             int
	OpponentID         int
	HorizonGames       int
	AsOfDate           time.Time
	StartProbability   float64
	StarterSource      string
	ShotsAgainst       float64
	Saves              float64
	GoalsAllowed       float64
	WinProbability     float64
	ShutoutProbability float64
}
