package projection

import (
	"math"
	"sort"

	"github.com/albapepper/scoracle-nhl/internal/availability"
)

// LeagueSavePct is the save percentage used until goalie-specific priors
// are available.
const LeagueSavePct = 0.900

// baselineWinProb is the neutral chance that a starter's team wins.
const baselineWinProb = 0.5

// rosterStartProb is the start probability assumed for a goalie picked only
// because they are listed first on the roster.
const rosterStartProb = 0.5

// Starter sources in selection order.
const (
	StarterFromRosterEvent = "roster_event"
	StarterFromProbability = "start_probability"
	StarterFromRoster      = "roster"
)

// StarterChoice is the goalie selected to start for a team.
type StarterChoice struct {
	TeamID      int
	GoalieID    int
	Probability float64
	Source      string
}

// ShotTotals are a team's reconciled shots by strength.
type ShotTotals struct {
	ES float64
	PP float64
}

// Total is ES+PP.
func (s ShotTotals) Total() float64 { return s.ES + s.PP }

// SelectStarter picks a team's starter: roster-event override, then the
// most probable row of the start-probability table, then the first goalie
// listed on the pre-game roster.
func SelectStarter(teamID int, res availability.Resolution, probs []StartProbability, roster []int) (StarterChoice, bool) {
	if s, ok := res.Starter(teamID); ok {
		return StarterChoice{TeamID: teamID, GoalieID: s.PlayerID, Probability: s.Probability, Source: StarterFromRosterEvent}, true
	}

	var teamProbs []StartProbability
	for _, p := range probs {
		if p.TeamID == teamID {
			teamProbs = append(teamProbs, p)
		}
	}
	if len(teamProbs) > 0 {
		sort.SliceStable(teamProbs, func(i, j int) bool {
			if teamProbs[i].Probability != teamProbs[j].Probability {
				return teamProbs[i].Probability > teamProbs[j].Probability
			}
			return teamProbs[i].GoalieID < teamProbs[j].GoalieID
		})
		best := teamProbs[0]
		return StarterChoice{TeamID: teamID, GoalieID: best.GoalieID, Probability: clamp(best.Probability, 0, 1), Source: StarterFromProbability}, true
	}

	if len(roster) > 0 {
		return StarterChoice{TeamID: teamID, GoalieID: roster[0], Probability: rosterStartProb, Source: StarterFromRoster}, true
	}
	return StarterChoice{}, false
}

// ProjectGoalie derives the starter's line from the opponent's reconciled
// shots. ok is false when the opponent totals are unavailable.
func ProjectGoalie(g Game, choice StarterChoice, opponent *ShotTotals) (GoalieProjection, bool) {
	if opponent == nil {
		return GoalieProjection{}, false
	}
	shots := max(opponent.Total(), 0)
	goals := shots * (1 - LeagueSavePct)

	return GoalieProjection{
		GameID:             g.ID,
		GoalieID:           choice.GoalieID,
		TeamID:             choice.TeamID,
		OpponentID:         g.Opponent(choice.TeamID),
		StartProbability:   choice.Probability,
		StarterSource:      choice.Source,
		ShotsAgainst:       shots,
		GoalsAllowed:       goals,
		Saves:              shots - goals,
		WinProbability:     baselineWinProb * choice.Probability,
		ShutoutProbability: choice.Probability * math.Exp(-goals),
	}, true
}
