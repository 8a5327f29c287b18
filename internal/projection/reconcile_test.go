package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_ScalesEveryPlayerByTargetOverSum(t *testing.T) {
	cands := []Candidate{{PlayerID: 1, TOIES: 6000}, {PlayerID: 2, TOIES: 5000}, {PlayerID: 3, TOIES: 4000}}

	out, rep := Reconcile(cands, TeamTargets{TOIES: 18000})

	require.Len(t, out, 3)
	for i := range cands {
		assert.InDelta(t, cands[i].TOIES*1.2, out[i].TOIES, 1e-9)
	}
	assert.InDelta(t, 1.2, rep.Scale[FieldTOIES], 1e-12)
	assert.InDelta(t, 15000, rep.TOIBefore, 1e-9)
	assert.InDelta(t, 18000, rep.TOIAfter, 1e-9)
	assert.Equal(t, 6000.0, cands[0].TOIES, "input is not modified")
}

func TestReconcile_ConservesTargets(t *testing.T) {
	cases := [][]Candidate{
		{{TOIES: 1, TOIPP: 2, ShotsES: 0.3, ShotsPP: 0.1}},
		{{TOIES: 700, TOIPP: 120, ShotsES: 1.2, ShotsPP: 0.3}, {TOIES: 1100, TOIPP: 0, ShotsES: 2.4, ShotsPP: 0.01}},
		{{TOIES: 1e-3, TOIPP: 5, ShotsES: 7, ShotsPP: 3}, {TOIES: 9e5, TOIPP: 5, ShotsES: 0.2, ShotsPP: 0}, {TOIES: 12, TOIPP: 0.5, ShotsES: 0, ShotsPP: 4}},
	}
	targets := TeamTargets{TOIES: 15300, TOIPP: 2700, ShotsES: 24.5, ShotsPP: 5.5}

	for _, cands := range cases {
		out, _ := Reconcile(cands, targets)
		var sum TeamTargets
		for _, c := range out {
			sum.TOIES += c.TOIES
			sum.TOIPP += c.TOIPP
			sum.ShotsES += c.ShotsES
			sum.ShotsPP += c.ShotsPP
		}
		assert.InDelta(t, targets.TOIES, sum.TOIES, 1e-6)
		assert.InDelta(t, targets.TOIPP, sum.TOIPP, 1e-6)
		assert.InDelta(t, targets.ShotsES, sum.ShotsES, 1e-6)
		assert.InDelta(t, targets.ShotsPP, sum.ShotsPP, 1e-6)
	}
}

func TestReconcile_ZeroStaysZero(t *testing.T) {
	cands := []Candidate{{TOIES: 900, TOIPP: 0, ShotsES: 2}, {TOIES: 0, TOIPP: 300, ShotsES: 0}}

	out, _ := Reconcile(cands, TeamTargets{TOIES: 18000, TOIPP: 1000, ShotsES: 30})

	assert.Equal(t, 0.0, out[0].TOIPP)
	assert.Equal(t, 0.0, out[1].TOIES)
	assert.Equal(t, 0.0, out[1].ShotsES)
	for _, c := range out {
		for _, fld := range Fields {
			assert.GreaterOrEqual(t, *field(&c, fld), 0.0)
		}
	}
}

func TestReconcile_DegenerateFieldSplitsEvenly(t *testing.T) {
	cands := []Candidate{{TOIES: 10}, {TOIES: 20}, {TOIES: 30}, {TOIES: 40}}

	out, rep := Reconcile(cands, TeamTargets{TOIES: 100, TOIPP: 2000})

	for _, c := range out {
		assert.InDelta(t, 500, c.TOIPP, 1e-9)
	}
	assert.Contains(t, rep.Degenerate, FieldTOIPP)
	assert.Contains(t, rep.LargeCorrections(), FieldTOIPP)
	assert.NotContains(t, rep.Scale, FieldTOIPP)
}

func TestReconcile_Empty(t *testing.T) {
	out, rep := Reconcile(nil, TeamTargets{TOIES: 18000})
	assert.Empty(t, out)
	assert.Zero(t, rep.TOIAfter)
	assert.Zero(t, rep.TOIScale())
}

func TestReport_LargeCorrections(t *testing.T) {
	rep := Report{Scale: map[Field]float64{FieldTOIES: 1.005, FieldTOIPP: 0.9, FieldShotsES: 1.02, FieldShotsPP: 1}}
	assert.Equal(t, []Field{FieldTOIPP, FieldShotsES}, rep.LargeCorrections())
}

func TestBuildTargets_FromHistory(t *testing.T) {
	hist := &TeamHistory{Games: 10, TOIES: 15000, TOIPP: 3000, ShotsES: 25, ShotsPP: 6}

	got := BuildTargets(hist, []Candidate{{TOIES: 700, TOIPP: 120, ShotsES: 1, ShotsPP: 1}})

	assert.InDelta(t, 15000, got.TOIES, 1e-9)
	assert.InDelta(t, 3000, got.TOIPP, 1e-9)
	assert.Equal(t, 25.0, got.ShotsES)
	assert.Equal(t, 6.0, got.ShotsPP)
	assert.InDelta(t, float64(SkaterBudgetSeconds), got.TOIES+got.TOIPP, 1e-9)
}

func TestBuildTargets_WithoutHistoryUsesUnconstrainedSplit(t *testing.T) {
	cands := []Candidate{{TOIES: 600, TOIPP: 200, ShotsES: 2, ShotsPP: 1}, {TOIES: 1000, TOIPP: 200, ShotsES: 3, ShotsPP: 0.5}}

	got := BuildTargets(nil, cands)

	assert.InDelta(t, 18000*0.2, got.TOIPP, 1e-9)
	assert.InDelta(t, 18000*0.8, got.TOIES, 1e-9)
	assert.InDelta(t, 5.0, got.ShotsES, 1e-12)
	assert.InDelta(t, 1.5, got.ShotsPP, 1e-12)
}

func TestBuildTargets_CapsPPShare(t *testing.T) {
	got := BuildTargets(&TeamHistory{Games: 1, TOIES: 100, TOIPP: 900}, nil)
	assert.InDelta(t, 9000, got.TOIPP, 1e-9)
	assert.InDelta(t, 9000, got.TOIES, 1e-9)
}
