package accuracy

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/scoracle-nhl/internal/projection"
)

// Inputs is everything needed to score one realized date.
type Inputs struct {
	ActualDate     time.Time
	AsOfDate       time.Time
	RunID          uuid.UUID
	Players        []projection.PlayerProjection
	Goalies        []projection.GoalieProjection
	Occurred       map[int64]bool
	Skaters        []ActualLine
	GoaliePrimary  []ActualLine
	GoalieFallback []ActualLine
}

type lineKey struct {
	playerID int
	gameID   int64
}

func index(lines []ActualLine) map[lineKey]ActualLine {
	out := make(map[lineKey]ActualLine, len(lines))
	for _, l := range lines {
		out[lineKey{l.PlayerID, l.GameID}] = l
	}
	return out
}

// PredictedSkater maps a skater projection to a line.
func PredictedSkater(p projection.PlayerProjection) Line {
	return Line{
		Goals:   p.Goals,
		Assists: p.Assists,
		Shots:   p.ShotsES + p.ShotsPP,
		Hits:    p.Hits,
		Blocks:  p.Blocks,
	}
}

// PredictedGoalie maps a goalie projection to a line.
func PredictedGoalie(g projection.GoalieProjection) Line {
	return Line{
		Saves:        g.Saves,
		GoalsAgainst: g.GoalsAllowed,
		Win:          g.WinProbability,
		Shutout:      g.ShutoutProbability,
	}
}

// Evaluate scores a date's projections. prevRunning is the previous date's
// running totals; scopes missing from it start at zero.
func Evaluate(in Inputs, prevRunning map[Scope]Aggregate) DateReport {
	rep := DateReport{ActualDate: in.ActualDate, AsOfDate: in.AsOfDate, RunID: in.RunID}

	skaters := index(in.Skaters)
	primary := index(in.GoaliePrimary)
	fallback := index(in.GoalieFallback)

	for _, p := range in.Players {
		if !in.Occurred[p.GameID] {
			rep.Diagnostics.ProjectionsNotPlayed++
			continue
		}
		actual, ok := skaters[lineKey{p.PlayerID, p.GameID}]
		if !ok {
			rep.Diagnostics.SkatersUnmatched++
			continue
		}
		rep.Diagnostics.SkatersMatched++
		rep.Results = append(rep.Results, result(in, p.PlayerID, p.GameID, p.TeamID, Skater, PredictedSkater(p), actual.Line))
	}

	for _, g := range in.Goalies {
		if !in.Occurred[g.GameID] {
			rep.Diagnostics.ProjectionsNotPlayed++
			continue
		}
		k := lineKey{g.GoalieID, g.GameID}
		actual, ok := primary[k]
		if ok {
			rep.Diagnostics.GoaliesPrimary++
		} else if actual, ok = fallback[k]; ok {
			rep.Diagnostics.GoaliesFallback++
		} else {
			rep.Diagnostics.GoaliesUnmatched++
			continue
		}
		rep.Results = append(rep.Results, result(in, g.GoalieID, g.GameID, g.TeamID, Goalie, PredictedGoalie(g), actual.Line))
	}

	rep.Stats = statAggregates(in, rep.Results)
	rep.Players = playerAggregates(in.ActualDate, rep.Results)
	rep.Scopes = scopeAggregates(in.ActualDate, rep.Results, prevRunning)
	return rep
}

func result(in Inputs, playerID int, gameID int64, teamID int, pt PlayerType, pred, act Line) ResultRow {
	pp, ap := FantasyPoints(pt, pred), FantasyPoints(pt, act)
	errAbs, errSq, acc := Score(pp, ap)
	return ResultRow{
		RunID:      in.RunID,
		AsOfDate:   in.AsOfDate,
		ActualDate: in.ActualDate,
		PlayerID:   playerID,
		GameID:     gameID,
		TeamID:     teamID,
		PlayerType: pt,
		Predicted:  pred,
		Actual:     act,
		PredPoints: pp,
		ActPoints:  ap,
		ErrorAbs:   errAbs,
		ErrorSq:    errSq,
		Accuracy:   acc,
	}
}

func statAggregates(in Inputs, results []ResultRow) []StatAggregate {
	var out []StatAggregate
	for _, group := range []struct {
		pt    PlayerType
		stats []Stat
	}{{Skater, SkaterStats}, {Goalie, GoalieStats}} {
		for _, s := range group.stats {
			var agg Aggregate
			for _, r := range results {
				if r.PlayerType == group.pt {
					agg.Add(r.Predicted.Value(s), r.Actual.Value(s))
				}
			}
			out = append(out, StatAggregate{
				ActualDate: in.ActualDate,
				RunID:      in.RunID,
				PlayerType: group.pt,
				Stat:       s,
				Aggregate:  agg,
			})
		}
	}
	return out
}

func playerAggregates(date time.Time, results []ResultRow) []PlayerAggregate {
	type key struct {
		playerID int
		pt       PlayerType
	}
	byPlayer := make(map[key]*Aggregate)
	for _, r := range results {
		k := key{r.PlayerID, r.PlayerType}
		if byPlayer[k] == nil {
			byPlayer[k] = &Aggregate{}
		}
		byPlayer[k].Add(r.PredPoints, r.ActPoints)
	}

	out := make([]PlayerAggregate, 0, len(byPlayer))
	for k, agg := range byPlayer {
		out = append(out, PlayerAggregate{ActualDate: date, PlayerID: k.playerID, PlayerType: k.pt, Aggregate: *agg})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlayerID != out[j].PlayerID {
			return out[i].PlayerID < out[j].PlayerID
		}
		return out[i].PlayerType < out[j].PlayerType
	})
	return out
}

// DailyByScope aggregates fantasy-point scores per scope.
func DailyByScope(results []ResultRow) map[Scope]Aggregate {
	daily := make(map[Scope]Aggregate, len(Scopes))
	for _, r := range results {
		for _, s := range []Scope{ScopeOverall, Scope(r.PlayerType)} {
			agg := daily[s]
			agg.Add(r.PredPoints, r.ActPoints)
			daily[s] = agg
		}
	}
	return daily
}

// Chain adds a date's daily aggregates to the previous running totals.
func Chain(prevRunning, daily map[Scope]Aggregate) map[Scope]Aggregate {
	out := make(map[Scope]Aggregate, len(Scopes))
	for _, s := range Scopes {
		out[s] = prevRunning[s].Merge(daily[s])
	}
	return out
}

func scopeAggregates(date time.Time, results []ResultRow, prevRunning map[Scope]Aggregate) []ScopeAggregate {
	daily := DailyByScope(results)
	running := Chain(prevRunning, daily)
	out := make([]ScopeAggregate, 0, len(Scopes))
	for _, s := range Scopes {
		out = append(out, ScopeAggregate{ActualDate: date, Scope: s, Daily: daily[s], Running: running[s]})
	}
	return out
}

// Running returns the report's running totals by scope.
func (r DateReport) Running() map[Scope]Aggregate {
	out := make(map[Scope]Aggregate, len(r.Scopes))
	for _, s := range r.Scopes {
		out[s.Scope] = s.Running
	}
	return out
}
