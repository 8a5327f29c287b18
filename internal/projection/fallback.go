package projection

import "github.com/albapepper/scoracle-nhl/internal/situation"

// Metric names a per-strength quantity read from a rolling row.
type Metric string

const (
	MetricTOI       Metric = "toi"
	MetricShotRate  Metric = "shots_per_60"
	MetricHitRate   Metric = "hits_per_60"
	MetricBlockRate Metric = "blocks_per_60"
)

// Provider yields a metric value from a rolling row, or ok=false when it has
// nothing to offer. row may be nil.
type Provider interface {
	Name() string
	Value(row *RollingRow, m Metric) (float64, bool)
}

// Chain evaluates providers in order and takes the first match.
type Chain []Provider

// Resolve returns the first provider's value and that provider's name. If
// nothing matches the value is zero and the name empty.
func (c Chain) Resolve(row *RollingRow, m Metric) (float64, string) {
	for _, p := range c {
		if v, ok := p.Value(row, m); ok {
			return v, p.Name()
		}
	}
	return 0, ""
}

// Last5 reads the last-5-game averages.
type Last5 struct{}

func (Last5) Name() string { return "last5" }

func (Last5) Value(row *RollingRow, m Metric) (float64, bool) {
	if row == nil {
		return 0, false
	}
	return deref(pick(m, row.TOILast5, row.ShotsPer60Last5, row.HitsPer60Last5, row.BlocksPer60Last5))
}

// AllTime reads the all-time averages.
type AllTime struct{}

func (AllTime) Name() string { return "all_time" }

func (AllTime) Value(row *RollingRow, m Metric) (float64, bool) {
	if row == nil {
		return 0, false
	}
	return deref(pick(m, row.TOIAllTime, row.ShotsPer60AllTime, row.HitsPer60AllTime, row.BlocksPer60AllTime))
}

// Defaults supplies fixed league-typical values per strength.
type Defaults struct {
	Strength situation.Strength
	Values   map[situation.Strength]map[Metric]float64
}

func (d Defaults) Name() string { return "default" }

func (d Defaults) Value(_ *RollingRow, m Metric) (float64, bool) {
	v, ok := d.Values[d.Strength][m]
	return v, ok
}

// DefaultValues are the fallbacks used when a player has no rolling history.
var DefaultValues = map[situation.Strength]map[Metric]float64{
	situation.ES: {MetricTOI: 700, MetricShotRate: 6, MetricHitRate: 0, MetricBlockRate: 0},
	situation.PP: {MetricTOI: 120, MetricShotRate: 8, MetricHitRate: 0, MetricBlockRate: 0},
}

// DefaultChain is last-5 → all-time → fixed default for strength s.
func DefaultChain(s situation.Strength) Chain {
	return Chain{Last5{}, AllTime{}, Defaults{Strength: s, Values: DefaultValues}}
}

func pick(m Metric, toi, shots, hits, blocks *float64) *float64 {
	switch m {
	case MetricTOI:
		return toi
	case MetricShotRate:
		return shots
	case MetricHitRate:
		return hits
	case MetricBlockRate:
		return blocks
	default:
		return nil
	}
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}
