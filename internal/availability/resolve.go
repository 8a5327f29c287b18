package availability

import "time"

// PlayerStatus is the authoritative availability of one player.
type PlayerStatus struct {
	PlayerID      int
	TeamID        int
	EventID       string
	EventType     string
	Multiplier    float64
	EffectiveFrom time.Time
}

// GoalieStart is a team's roster-event starting-goalie candidate.
type GoalieStart struct {
	TeamID        int
	PlayerID      int
	EventID       string
	Probability   float64
	EffectiveFrom time.Time
}

// Resolution is the resolved availability picture for one target date.
type Resolution struct {
	Players  map[int]PlayerStatus
	Starters map[int]GoalieStart
}

// Multiplier returns the availability multiplier for a player, 1 when no
// event applies.
func (r Resolution) Multiplier(playerID int) float64 {
	if s, ok := r.Players[playerID]; ok {
		return s.Multiplier
	}
	return fullAvailability
}

// Excluded reports whether the player is removed from projection entirely.
func (r Resolution) Excluded(playerID int) bool {
	return r.Multiplier(playerID) <= 0
}

// Starter returns the roster-event starter override for a team.
func (r Resolution) Starter(teamID int) (GoalieStart, bool) {
	s, ok := r.Starters[teamID]
	return s, ok
}

// Resolve filters events to those active in w and picks, per player, the
// latest event that has an availability effect, and per team, the most
// probable goalie-start candidate.
func Resolve(events []RosterEvent, w Window) Resolution {
	res := Resolution{
		Players:  make(map[int]PlayerStatus),
		Starters: make(map[int]GoalieStart),
	}

	for _, e := range events {
		if !e.Active(w) || e.PlayerID == nil {
			continue
		}
		playerID := *e.PlayerID

		if m, ok := Multiplier(e.EventType, e.Confidence); ok {
			cur, exists := res.Players[playerID]
			if !exists || newer(e.EffectiveFrom, e.EventID, cur.EffectiveFrom, cur.EventID) {
				res.Players[playerID] = PlayerStatus{
					PlayerID:      playerID,
					TeamID:        e.TeamID,
					EventID:       e.EventID,
					EventType:     e.EventType,
					Multiplier:    m,
					EffectiveFrom: e.EffectiveFrom,
				}
			}
		}

		if p, ok := StartProbability(e.EventType, e.Confidence); ok {
			cur, exists := res.Starters[e.TeamID]
			better := !exists || p > cur.Probability ||
				(p == cur.Probability && newer(e.EffectiveFrom, e.EventID, cur.EffectiveFrom, cur.EventID))
			if better {
				res.Starters[e.TeamID] = GoalieStart{
					TeamID:        e.TeamID,
					PlayerID:      playerID,
					EventID:       e.EventID,
					Probability:   p,
					EffectiveFrom: e.EffectiveFrom,
				}
			}
		}
	}
	return res
}

// newer orders events by EffectiveFrom, breaking ties by event id so the
// result does not depend on input order.
func newer(aFrom time.Time, aID string, bFrom time.Time, bID string) bool {
	if !aFrom.Equal(bFrom) {
		return aFrom.After(bFrom)
	}
	return aID > bID
}
