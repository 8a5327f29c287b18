package projection

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-nhl/internal/availability"
)

func TestSelectStarter_Order(t *testing.T) {
	probs := []StartProbability{
		{GameID: 1, TeamID: 10, GoalieID: 31, Probability: 0.4},
		{GameID: 1, TeamID: 10, GoalieID: 35, Probability: 0.6},
		{GameID: 1, TeamID: 20, GoalieID: 40, Probability: 0.9},
	}
	override := availability.Resolution{Starters: map[int]availability.GoalieStart{
		10: {TeamID: 10, PlayerID: 30, Probability: 1},
	}}

	got, ok := SelectStarter(10, override, probs, []int{33})
	require.True(t, ok)
	assert.Equal(t, 30, got.GoalieID)
	assert.Equal(t, StarterFromRosterEvent, got.Source)

	got, ok = SelectStarter(10, availability.Resolution{}, probs, []int{33})
	require.True(t, ok)
	assert.Equal(t, 35, got.GoalieID)
	assert.Equal(t, 0.6, got.Probability)
	assert.Equal(t, StarterFromProbability, got.Source)

	got, ok = SelectStarter(30, availability.Resolution{}, probs, []int{50, 51})
	require.True(t, ok)
	assert.Equal(t, 50, got.GoalieID)
	assert.Equal(t, StarterFromRoster, got.Source)

	_, ok = SelectStarter(30, availability.Resolution{}, probs, nil)
	assert.False(t, ok)
}

func TestProjectGoalie(t *testing.T) {
	g := Game{ID: 7, Date: time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC), HomeTeamID: 10, AwayTeamID: 20}
	choice := StarterChoice{TeamID: 10, GoalieID: 35, Probability: 0.8, Source: StarterFromProbability}

	gp, ok := ProjectGoalie(g, choice, &ShotTotals{ES: 24, PP: 6})
	require.True(t, ok)
	assert.Equal(t, 20, gp.OpponentID)
	assert.InDelta(t, 30, gp.ShotsAgainst, 1e-12)
	assert.InDelta(t, 3, gp.GoalsAllowed, 1e-9)
	assert.InDelta(t, 27, gp.Saves, 1e-9)
	assert.InDelta(t, 0.4, gp.WinProbability, 1e-12)
	assert.InDelta(t, 0.8*math.Exp(-3), gp.ShutoutProbability, 1e-9)

	_, ok = ProjectGoalie(g, choice, nil)
	assert.False(t, ok)
}
