// Package strength turns a game's play-by-play and shift feeds into
// per-player and per-team totals split by strength state, and persists them
// as the game-strength tables every downstream projection reads from.
package strength

import (
	"time"

	"github.com/albapepper/scoracle-nhl/internal/situation"
)

// Game types as used by the league schedule feed.
const (
	GameTypePreseason = 1
	GameTypeRegular   = 2
	GameTypePlayoff   = 3
)

// Play type keys that carry shot attribution.
const (
	TypeShotOnGoal = "shot-on-goal"
	TypeGoal       = "goal"
)

// Game is the schedule row a build iterates over.
type Game struct {
	ID         int64
	Date       time.Time
	Season     int
	GameType   int
	HomeTeamID int
	AwayTeamID int
}

// PlayRow is one raw play-by-play event. Optional columns stay pointers so a
// missing value is never mistaken for zero.
type PlayRow struct {
	GameID           int64
	EventID          int
	Period           int
	TimeInPeriod     *string
	SituationCode    *string
	TypeKey          string
	EventOwnerTeamID *int
	ShootingPlayerID *int
	ScoringPlayerID  *int
	Assist1PlayerID  *int
	Assist2PlayerID  *int
}

// ShiftRow is one raw shift as delivered by the shift feed.
type ShiftRow struct {
	GameID    int64
	PlayerID  *int
	TeamID    *int
	Period    *int
	StartTime *string
	EndTime   *string
	Duration  *string
}

// Split holds one integer quantity bucketed by strength state.
type Split struct {
	ES int `json:"es"`
	PP int `json:"pp"`
	PK int `json:"pk"`
}

// Add increments the bucket for s by n.
func (s *Split) Add(st situation.Strength, n int) {
	switch st {
	case situation.PP:
		s.PP += n
	case situation.PK:
		s.PK += n
	default:
		s.ES += n
	}
}

// Plus returns the element-wise sum of two splits.
func (s Split) Plus(o Split) Split {
	return Split{ES: s.ES + o.ES, PP: s.PP + o.PP, PK: s.PK + o.PK}
}

// Total is ES+PP+PK.
func (s Split) Total() int {
	return s.ES + s.PP + s.PK
}

// PlayerGameRow is the persisted per-(game, player) strength row.
type PlayerGameRow struct {
	GameID   int64
	GameDate time.Time
	Season   int
	PlayerID int
	TeamID   int
	TOI      Split
	Shots    Split
	Goals    Split
	Assists  Split
}

// TeamGameRow is the persisted per-(game, team) strength row: the sum of the
// team's player rows for that game.
type TeamGameRow struct {
	GameID   int64
	GameDate time.Time
	Season   int
	TeamID   int
	TOI      Split
	Shots    Split
	Goals    Split
	Assists  Split
}
