package strength

import (
	"sort"

	"github.com/albapepper/scoracle-nhl/internal/situation"
)

// Shift is a validated ice-time interval in seconds from period start.
type Shift struct {
	PlayerID int
	TeamID   int
	Period   int
	Start    int
	End      int
}

// Duration is End-Start, never negative.
func (s Shift) Duration() int {
	return max(s.End-s.Start, 0)
}

// ParseShift validates a raw shift. The end is the declared end time when it
// lies after the start; otherwise it is start + declared duration.
func ParseShift(r ShiftRow) (Shift, bool) {
	if r.PlayerID == nil || r.TeamID == nil || r.Period == nil || r.StartTime == nil {
		return Shift{}, false
	}
	start, ok := situation.ParseClock(*r.StartTime)
	if !ok {
		return Shift{}, false
	}

	end := start
	if r.EndTime != nil {
		if declared, ok := situation.ParseClock(*r.EndTime); ok {
			end = max(declared, start)
		}
	}
	if end <= start && r.Duration != nil {
		if dur, ok := situation.ParseClock(*r.Duration); ok {
			end = start + dur
		}
	}

	return Shift{
		PlayerID: *r.PlayerID,
		TeamID:   *r.TeamID,
		Period:   *r.Period,
		Start:    start,
		End:      end,
	}, true
}

// PlayerTOI is one player's ice time for a game split by strength.
type PlayerTOI struct {
	PlayerID int
	TeamID   int
	TOI      Split
}

// PeriodSegments builds the situation segments of every period touched by
// either the plays or the shifts. Each period ends at the later of its
// nominal length and the latest shift or play time seen in it.
func PeriodSegments(g Game, plays []PlayRow, shifts []Shift) map[int][]Segment {
	marks := make(map[int][]Mark)
	ends := make(map[int]int)

	for _, p := range plays {
		if p.TimeInPeriod == nil {
			continue
		}
		t, ok := situation.ParseClock(*p.TimeInPeriod)
		if !ok {
			continue
		}
		marks[p.Period] = append(marks[p.Period], Mark{Time: t, Code: p.SituationCode})
		ends[p.Period] = max(ends[p.Period], t)
	}
	for _, s := range shifts {
		ends[s.Period] = max(ends[s.Period], s.End)
	}

	out := make(map[int][]Segment, len(ends))
	for period, latest := range ends {
		periodEnd := max(PeriodLength(period, g.GameType), latest)
		out[period] = BuildSegments(marks[period], periodEnd)
	}
	return out
}

// AttributeShifts overlaps every shift with its period's segments and sums
// the seconds per player into ES/PP/PK buckets.
func AttributeShifts(g Game, plays []PlayRow, shifts []Shift) map[int]*PlayerTOI {
	segments := PeriodSegments(g, plays, shifts)
	out := make(map[int]*PlayerTOI)

	for _, s := range shifts {
		acc, ok := out[s.PlayerID]
		if !ok {
			acc = &PlayerTOI{PlayerID: s.PlayerID, TeamID: s.TeamID}
			out[s.PlayerID] = acc
		}
		for _, seg := range segments[s.Period] {
			secs := situation.Overlap(s.Start, s.End, seg.Start, seg.End)
			if secs <= 0 {
				continue
			}
			acc.TOI.Add(situation.ForTeam(seg.Digits, s.TeamID, g.HomeTeamID, g.AwayTeamID), secs)
		}
	}
	return out
}

// ParseShifts validates raw rows, returning the usable shifts and how many
// rows were rejected.
func ParseShifts(rows []ShiftRow) ([]Shift, int) {
	shifts := make([]Shift, 0, len(rows))
	rejected := 0
	for _, r := range rows {
		s, ok := ParseShift(r)
		if !ok {
			rejected++
			continue
		}
		shifts = append(shifts, s)
	}
	sort.SliceStable(shifts, func(i, j int) bool {
		if shifts[i].Period != shifts[j].Period {
			return shifts[i].Period < shifts[j].Period
		}
		return shifts[i].Start < shifts[j].Start
	})
	return shifts, rejected
}
