package projection

import "math"

// SkaterBudgetSeconds is the team's skater-role seconds per game: five
// skaters on the ice for sixty minutes.
const SkaterBudgetSeconds = 5 * 60 * 60

// MaxPPShare caps the power-play share of the TOI budget.
const MaxPPShare = 0.5

// LargeCorrection is the |scale-1| above which a correction is reported.
const LargeCorrection = 0.01

// Field is one reconciled candidate field.
type Field string

const (
	FieldTOIES   Field = "toi_es"
	FieldTOIPP   Field = "toi_pp"
	FieldShotsES Field = "shots_es"
	FieldShotsPP Field = "shots_pp"
)

// Fields lists the reconciled fields in order.
var Fields = []Field{FieldTOIES, FieldTOIPP, FieldShotsES, FieldShotsPP}

// TeamTargets are the totals a team's candidates must sum to.
type TeamTargets struct {
	TOIES   float64
	TOIPP   float64
	ShotsES float64
	ShotsPP float64
}

func (t TeamTargets) get(f Field) float64 {
	switch f {
	case FieldTOIES:
		return t.TOIES
	case FieldTOIPP:
		return t.TOIPP
	case FieldShotsES:
		return t.ShotsES
	default:
		return t.ShotsPP
	}
}

func field(c *Candidate, f Field) *float64 {
	switch f {
	case FieldTOIES:
		return &c.TOIES
	case FieldTOIPP:
		return &c.TOIPP
	case FieldShotsES:
		return &c.ShotsES
	default:
		return &c.ShotsPP
	}
}

// Report describes one reconciliation.
type Report struct {
	TOIBefore  float64
	TOIAfter   float64
	Before     map[Field]float64
	Scale      map[Field]float64
	Degenerate []Field
}

// TOIScale is the implied overall TOI scale factor.
func (r Report) TOIScale() float64 {
	if math.Abs(r.TOIBefore) < Epsilon {
		return 0
	}
	return r.TOIAfter / r.TOIBefore
}

// LargeCorrections lists fields whose scale differs from 1 by more than
// LargeCorrection. Degenerate fields are always included.
func (r Report) LargeCorrections() []Field {
	var out []Field
	for _, f := range Fields {
		s, ok := r.Scale[f]
		if !ok {
			continue
		}
		if math.Abs(s-1) > LargeCorrection {
			out = append(out, f)
		}
	}
	out = append(out, r.Degenerate...)
	return out
}

// BuildTargets derives a team's targets. The TOI budget is split by the
// team's historical PP share, or by the candidates' own split without
// history, with the PP share capped at MaxPPShare. Shot targets are the
// team's historical per-game shots, or the unconstrained sums without
// history.
func BuildTargets(hist *TeamHistory, cands []Candidate) TeamTargets {
	var toiES, toiPP, shotsES, shotsPP float64
	for _, c := range cands {
		toiES += c.TOIES
		toiPP += c.TOIPP
		shotsES += c.ShotsES
		shotsPP += c.ShotsPP
	}

	ppShare := 0.0
	switch {
	case hist != nil && hist.TOIES+hist.TOIPP > Epsilon:
		ppShare = hist.TOIPP / (hist.TOIES + hist.TOIPP)
	case toiES+toiPP > Epsilon:
		ppShare = toiPP / (toiES + toiPP)
	}
	ppShare = clamp(ppShare, 0, MaxPPShare)

	t := TeamTargets{
		TOIES:   SkaterBudgetSeconds * (1 - ppShare),
		TOIPP:   SkaterBudgetSeconds * ppShare,
		ShotsES: shotsES,
		ShotsPP: shotsPP,
	}
	if hist != nil && hist.Games > 0 {
		t.ShotsES = max(hist.ShotsES, 0)
		t.ShotsPP = max(hist.ShotsPP, 0)
	}
	return t
}

// Reconcile scales each field independently so its sum equals the target,
// keeping every player's share of the unconstrained sum. A field whose sum
// is zero gets the target split evenly. The input slice is not modified.
func Reconcile(cands []Candidate, targets TeamTargets) ([]Candidate, Report) {
	out := make([]Candidate, len(cands))
	copy(out, cands)

	rep := Report{
		Before: make(map[Field]float64, len(Fields)),
		Scale:  make(map[Field]float64, len(Fields)),
	}
	for _, c := range cands {
		rep.TOIBefore += c.TOI()
	}
	if len(out) == 0 {
		return out, rep
	}

	for _, f := range Fields {
		target := max(targets.get(f), 0)
		sum := 0.0
		for i := range out {
			sum += *field(&out[i], f)
		}
		rep.Before[f] = sum

		if math.Abs(sum) < Epsilon {
			even := target / float64(len(out))
			for i := range out {
				*field(&out[i], f) = even
			}
			rep.Degenerate = append(rep.Degenerate, f)
			continue
		}

		scale := target / sum
		rep.Scale[f] = scale
		for i := range out {
			*field(&out[i], f) *= scale
		}
	}

	for _, c := range out {
		rep.TOIAfter += c.TOI()
	}
	return out, rep
}
