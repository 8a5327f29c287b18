package strength

import "github.com/albapepper/scoracle-nhl/internal/situation"

// PlayerEvents is one player's shot, goal and assist counts split by strength.
type PlayerEvents struct {
	PlayerID int
	TeamID   int
	Shots    Split
	Goals    Split
	Assists  Split
}

// AggregateEvents classifies each play by its own situation code and tallies
// shots, goals and assists. Shootout attempts, plays without an owning team
// and plays without the player id their category needs are skipped.
func AggregateEvents(g Game, plays []PlayRow) map[int]*PlayerEvents {
	out := make(map[int]*PlayerEvents)
	get := func(playerID, teamID int) *PlayerEvents {
		pe, ok := out[playerID]
		if !ok {
			pe = &PlayerEvents{PlayerID: playerID, TeamID: teamID}
			out[playerID] = pe
		}
		return pe
	}

	for _, p := range plays {
		if p.EventOwnerTeamID == nil || *p.EventOwnerTeamID <= 0 {
			continue
		}
		if p.TypeKey != TypeShotOnGoal && p.TypeKey != TypeGoal {
			continue
		}
		if IsShootout(p.Period, g.GameType) {
			continue
		}
		teamID := *p.EventOwnerTeamID
		st := situation.ForTeam(situation.ParsePtr(p.SituationCode), teamID, g.HomeTeamID, g.AwayTeamID)

		shooter := p.ShootingPlayerID
		if p.TypeKey == TypeGoal && shooter == nil {
			shooter = p.ScoringPlayerID
		}
		if shooter != nil {
			get(*shooter, teamID).Shots.Add(st, 1)
		}

		if p.TypeKey != TypeGoal || p.ScoringPlayerID == nil {
			continue
		}
		get(*p.ScoringPlayerID, teamID).Goals.Add(st, 1)
		for _, a := range []*int{p.Assist1PlayerID, p.Assist2PlayerID} {
			if a != nil {
				get(*a, teamID).Assists.Add(st, 1)
			}
		}
	}
	return out
}
