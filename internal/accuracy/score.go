package accuracy

import "math"

// Fantasy scoring weights, shared by predicted and realized lines.
const (
	pointsGoal    = 3.0
	pointsAssist  = 2.0
	pointsShot    = 0.5
	pointsHit     = 0.5
	pointsBlock   = 0.5
	pointsSave    = 0.2
	pointsGA      = -1.0
	pointsWin     = 4.0
	pointsShutout = 3.0
)

// Line is one stat line, predicted or realized. Skaters use the first five
// fields and goalies the last four. Win and Shutout are 0/1 when realized
// and probabilities when predicted.
type Line struct {
	Goals        float64 `json:"goals"`
	Assists      float64 `json:"assists"`
	Shots        float64 `json:"shots"`
	Hits         float64 `json:"hits"`
	Blocks       float64 `json:"blocks"`
	Saves        float64 `json:"saves"`
	GoalsAgainst float64 `json:"goals_against"`
	Win          float64 `json:"win"`
	Shutout      float64 `json:"shutout"`
}

// FantasyPoints scores a line for the given player type.
func FantasyPoints(pt PlayerType, l Line) float64 {
	if pt == Goalie {
		return l.Saves*pointsSave + l.GoalsAgainst*pointsGA + l.Win*pointsWin + l.Shutout*pointsShutout
	}
	return l.Goals*pointsGoal + l.Assists*pointsAssist + l.Shots*pointsShot + l.Hits*pointsHit + l.Blocks*pointsBlock
}

// Score returns |p-a|, (p-a)² and the accuracy transform 1/(1+|p-a|).
func Score(predicted, actual float64) (errAbs, errSq, acc float64) {
	d := predicted - actual
	errAbs = math.Abs(d)
	return errAbs, d * d, 1 / (1 + errAbs)
}

// Aggregate accumulates scores. The zero value is an empty aggregate.
type Aggregate struct {
	Count       int     `json:"count"`
	AccuracySum float64 `json:"accuracy_sum"`
	ErrorAbsSum float64 `json:"error_abs_sum"`
	ErrorSqSum  float64 `json:"error_sq_sum"`
}

// Add scores one predicted/actual pair into a.
func (a *Aggregate) Add(predicted, actual float64) {
	errAbs, errSq, acc := Score(predicted, actual)
	a.Count++
	a.AccuracySum += acc
	a.ErrorAbsSum += errAbs
	a.ErrorSqSum += errSq
}

// Merge returns the sum of a and o.
func (a Aggregate) Merge(o Aggregate) Aggregate {
	return Aggregate{
		Count:       a.Count + o.Count,
		AccuracySum: a.AccuracySum + o.AccuracySum,
		ErrorAbsSum: a.ErrorAbsSum + o.ErrorAbsSum,
		ErrorSqSum:  a.ErrorSqSum + o.ErrorSqSum,
	}
}

// AccuracyAvg is the mean accuracy, 0 when empty.
func (a Aggregate) AccuracyAvg() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.AccuracySum / float64(a.Count)
}

// MAE is the mean absolute error, 0 when empty.
func (a Aggregate) MAE() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.ErrorAbsSum / float64(a.Count)
}

// RMSE is the root mean squared error, 0 when empty.
func (a Aggregate) RMSE() float64 {
	if a.Count == 0 {
		return 0
	}
	return math.Sqrt(a.ErrorSqSum / float64(a.Count))
}

// Stat names a per-stat aggregate.
type Stat string

const (
	StatGoals        Stat = "goals"
	StatAssists      Stat = "assists"
	StatShots        Stat = "shots"
	StatHits         Stat = "hits"
	StatBlocks       Stat = "blocks"
	StatSaves        Stat = "saves"
	StatGoalsAgainst Stat = "goals_against"
	StatWins         Stat = "wins"
	StatShutouts     Stat = "shutouts"
)

// SkaterStats and GoalieStats are the per-stat aggregates kept per type.
var (
	SkaterStats = []Stat{StatGoals, StatAssists, StatShots, StatHits, StatBlocks}
	GoalieStats = []Stat{StatSaves, StatGoalsAgainst, StatWins, StatShutouts}
)

// Value reads stat s from the line.
func (l Line) Value(s Stat) float64 {
	switch s {
	case StatGoals:
		return l.Goals
	case StatAssists:
		return l.Assists
	case StatShots:
		return l.Shots
	case StatHits:
		return l.Hits
	case StatBlocks:
		return l.Blocks
	case StatSaves:
		return l.Saves
	case StatGoalsAgainst:
		return l.GoalsAgainst
	case StatWins:
		return l.Win
	case StatShutouts:
		return l.Shutout
	default:
		return 0
	}
}
