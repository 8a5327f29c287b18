package projection

import (
	"sort"

	"github.com/albapepper/scoracle-nhl/internal/situation"
)

// Default smoothing and bounds for goal and assist rates.
const (
	goalPriorGoals   = 2
	goalPriorShots   = 40
	goalRateMin      = 0.03
	goalRateMax      = 0.25
	assistPriorA     = 3
	assistPriorG     = 3
	assistRateMin    = 0.2
	assistRateMax    = 1.4
	secondsPerMinute = 60.0
	secondsPerHour   = 3600.0
)

// Candidate is a player's unconstrained estimate before reconciliation.
type Candidate struct {
	PlayerID     int
	TeamID       int
	Availability float64
	TOIES        float64
	TOIPP        float64
	ShotsES      float64
	ShotsPP      float64
	GoalRate     float64
	AssistRate   float64
	HitsPer60    float64
	BlocksPer60  float64
}

// TOI is total projected seconds.
func (c Candidate) TOI() float64 { return c.TOIES + c.TOIPP }

// Shots is total projected shots.
func (c Candidate) Shots() float64 { return c.ShotsES + c.ShotsPP }

// Goals is shots converted at the smoothed goal rate.
func (c Candidate) Goals() float64 { return c.Shots() * c.GoalRate }

// Assists follows goals at the smoothed assists-per-goal ratio. The rate is
// assists over twice goals, so two assists are available per goal.
func (c Candidate) Assists() float64 { return c.Goals() * 2 * c.AssistRate }

// Hits is the per-60 hit rate over projected ice time.
func (c Candidate) Hits() float64 { return c.HitsPer60 * c.TOI() / secondsPerHour }

// Blocks is the per-60 block rate over projected ice time.
func (c Candidate) Blocks() float64 { return c.BlocksPer60 * c.TOI() / secondsPerHour }

// GoalRate is the Laplace-smoothed shooting percentage.
func GoalRate(goals, shots int) float64 {
	return clamp(float64(goals+goalPriorGoals)/float64(shots+goalPriorShots), goalRateMin, goalRateMax)
}

// AssistRate is the smoothed assists-per-goal ratio.
func AssistRate(assists, goals int) float64 {
	return clamp(float64(assists+assistPriorA)/(float64(goals+assistPriorG)*2), assistRateMin, assistRateMax)
}

// ShotsFromRate converts a per-60 rate to shots over toiSeconds.
func ShotsFromRate(per60, toiSeconds float64) float64 {
	return per60 / secondsPerMinute * (toiSeconds / secondsPerMinute)
}

// PlayerInputs are the rows one candidate is built from.
type PlayerInputs struct {
	ES     *RollingRow
	PP     *RollingRow
	Totals *SeasonTotals
}

// FallbackCounts tallies which provider served each metric, keyed
// "<metric>_<strength>:<provider>".
type FallbackCounts map[string]int

// Builder creates candidates from rolling rows.
type Builder struct {
	ES Chain
	PP Chain
}

// NewBuilder returns a Builder using the default chains.
func NewBuilder() Builder {
	return Builder{ES: DefaultChain(situation.ES), PP: DefaultChain(situation.PP)}
}

// Candidate builds one player's unconstrained estimate and scales TOI and
// shots by the availability multiplier. Rates are ratios and stay unscaled.
func (b Builder) Candidate(playerID, teamID int, in PlayerInputs, multiplier float64, counts FallbackCounts) Candidate {
	resolve := func(chain Chain, row *RollingRow, s situation.Strength, m Metric) float64 {
		v, src := chain.Resolve(row, m)
		if counts != nil {
			counts[string(m)+"_"+string(s)+":"+src]++
		}
		return max(v, 0)
	}

	toiES := resolve(b.ES, in.ES, situation.ES, MetricTOI)
	toiPP := resolve(b.PP, in.PP, situation.PP, MetricTOI)
	rateES := resolve(b.ES, in.ES, situation.ES, MetricShotRate)
	ratePP := resolve(b.PP, in.PP, situation.PP, MetricShotRate)

	var goals, assists, shots int
	if in.Totals != nil {
		goals, assists, shots = in.Totals.Goals, in.Totals.Assists, in.Totals.Shots
	}

	m := clamp(multiplier, 0, 1)
	return Candidate{
		PlayerID:     playerID,
		TeamID:       teamID,
		Availability: m,
		TOIES:        toiES * m,
		TOIPP:        toiPP * m,
		ShotsES:      ShotsFromRate(rateES, toiES) * m,
		ShotsPP:      ShotsFromRate(ratePP, toiPP) * m,
		// Rates stay unscaled; goals and assists derive from the scaled shots.
		GoalRate:     GoalRate(goals, shots),
		AssistRate:   AssistRate(assists, goals),
		HitsPer60:    resolve(b.ES, in.ES, situation.ES, MetricHitRate),
		BlocksPer60:  resolve(b.ES, in.ES, situation.ES, MetricBlockRate),
	}
}

// LatestRows indexes rolling rows by player and strength, keeping the most
// recent row strictly before cutoff.
func LatestRows(rows []RollingRow, cutoff func(RollingRow) bool) map[int]map[situation.Strength]*RollingRow {
	out := make(map[int]map[situation.Strength]*RollingRow)
	sorted := make([]RollingRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AsOf.Before(sorted[j].AsOf) })
	for i := range sorted {
		r := sorted[i]
		if cutoff != nil && !cutoff(r) {
			continue
		}
		if out[r.PlayerID] == nil {
			out[r.PlayerID] = make(map[situation.Strength]*RollingRow)
		}
		out[r.PlayerID][r.Strength] = &r
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
