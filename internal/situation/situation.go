// Package situation parses NHL situation codes and classifies the strength
// state (even strength, power play, penalty kill) of a team at a moment in
// the game. It also carries the clock and interval helpers shared by shift
// attribution and reconciliation.
package situation

// Strength is a team-relative skater-count state.
type Strength string

const (
	ES Strength = "es"
	PP Strength = "pp"
	PK Strength = "pk"
)

// All lists the strength states in storage column order.
var All = []Strength{ES, PP, PK}

// Digits are the per-side skater and goalie counts carried by a 4-character
// situation code, in code order.
type Digits struct {
	AwaySkaters int
	HomeSkaters int
	AwayGoalies int
	HomeGoalies int
}

// Parse decodes a situation code such as "1551". It returns nil for anything
// that is not exactly four ASCII digits; callers treat nil as even strength.
func Parse(code string) *Digits {
	if len(code) != 4 {
		return nil
	}
	var n [4]int
	for i := 0; i < 4; i++ {
		c := code[i]
		if c < '0' || c > '9' {
			return nil
		}
		n[i] = int(c - '0')
	}
	return &Digits{
		AwaySkaters: n[0],
		HomeSkaters: n[1],
		AwayGoalies: n[2],
		HomeGoalies: n[3],
	}
}

// ParsePtr is Parse for optional codes coming straight off a row.
func ParsePtr(code *string) *Digits {
	if code == nil {
		return nil
	}
	return Parse(*code)
}

// ForTeam returns the strength state for teamID. The comparison is purely
// relative: 4-on-3 is PP for the side with four skaters.
func ForTeam(d *Digits, teamID, homeTeamID, awayTeamID int) Strength {
	if d == nil {
		return ES
	}
	var own, opp int
	switch teamID {
	case homeTeamID:
		own, opp = d.HomeSkaters, d.AwaySkaters
	case awayTeamID:
		own, opp = d.AwaySkaters, d.HomeSkaters
	default:
		return ES
	}
	switch {
	case own > opp:
		return PP
	case own < opp:
		return PK
	default:
		return ES
	}
}
