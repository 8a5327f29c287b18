package strength

import (
	"sort"

	"github.com/albapepper/scoracle-nhl/internal/situation"
)

// Segment is a stretch of a period played under one situation code.
// Digits is nil when the period had no usable events.
type Segment struct {
	Start  int
	End    int
	Digits *situation.Digits
}

// Mark is a play's position in the period clock and the code attached to it.
type Mark struct {
	Time int
	Code *string
}

// PeriodLength is the nominal length of a period in seconds. Regular-season
// overtime is five minutes; shootouts (period 5+) carry no ice time.
func PeriodLength(period, gameType int) int {
	switch {
	case period <= 3:
		return 1200
	case gameType == GameTypePlayoff:
		return 1200
	case period == 4:
		return 300
	default:
		return 0
	}
}

// IsShootout reports whether period is a regular-season shootout.
func IsShootout(period, gameType int) bool {
	return period > 4 && gameType != GameTypePlayoff
}

// BuildSegments orders marks by time and turns each into a segment that runs
// until the next mark, the last one closing at periodEnd. The first segment
// is extended back to 0:00 so the segments cover [0, periodEnd) exactly.
// With no marks a single segment with nil digits covers the period.
func BuildSegments(marks []Mark, periodEnd int) []Segment {
	if periodEnd < 0 {
		periodEnd = 0
	}
	if len(marks) == 0 {
		return []Segment{{Start: 0, End: periodEnd}}
	}

	sorted := make([]Mark, len(marks))
	copy(sorted, marks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	segments := make([]Segment, 0, len(sorted))
	for i, m := range sorted {
		start := min(max(m.Time, 0), periodEnd)
		if i == 0 {
			start = 0
		}
		end := periodEnd
		if i+1 < len(sorted) {
			end = min(max(sorted[i+1].Time, start), periodEnd)
		}
		segments = append(segments, Segment{
			Start:  start,
			End:    end,
			Digits: situation.ParsePtr(m.Code),
		})
	}
	return segments
}
