// Package availability turns roster-status events (injuries, call-ups,
// confirmed or likely goalie starts) into per-player availability
// multipliers and per-team starting-goalie candidates for one target date.
package availability

import (
	"encoding/json"
	"time"
)

// Event types published by the roster-event feed.
const (
	InjuryOut            = "INJURY_OUT"
	SendDown             = "SENDDOWN"
	DayToDay             = "DTD"
	Return               = "RETURN"
	CallUp               = "CALLUP"
	GoalieStartConfirmed = "GOALIE_START_CONFIRMED"
	GoalieStartLikely    = "GOALIE_START_LIKELY"
)

const (
	dtdDiscount          = 0.6
	dtdFloor             = 0.2
	dtdDefaultConfidence = 0.5
	likelyStartFloor     = 0.5
	likelyStartDefault   = 0.75
	confirmedStartProb   = 1.0
	fullAvailability     = 1.0
	excludedAvailability = 0.0
)

// RosterEvent is one externally observed status change.
type RosterEvent struct {
	EventID       string
	TeamID        int
	PlayerID      *int
	EventType     string
	Confidence    *float64
	Payload       json.RawMessage
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
}

// Window is the inclusive [Start, End] span of the target date.
type Window struct {
	Start time.Time
	End   time.Time
}

// DayWindow returns the window covering date's calendar day in loc.
func DayWindow(date time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	d := date.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.Add(24*time.Hour - time.Nanosecond)}
}

// Active reports whether e is in effect at any point of w.
func (e RosterEvent) Active(w Window) bool {
	if e.EffectiveFrom.After(w.End) {
		return false
	}
	return e.EffectiveTo == nil || !e.EffectiveTo.Before(w.Start)
}

// Multiplier maps an event type to its availability effect. ok is false for
// types that have no availability effect.
func Multiplier(eventType string, confidence *float64) (float64, bool) {
	switch eventType {
	case InjuryOut, SendDown:
		return excludedAvailability, true
	case DayToDay:
		c := dtdDefaultConfidence
		if confidence != nil {
			c = clamp(*confidence, 0, 1)
		}
		return clamp(1-dtdDiscount*c, dtdFloor, 1), true
	case Return, CallUp:
		return fullAvailability, true
	default:
		return 0, false
	}
}

// StartProbability maps a goalie-start event to its probability. ok is false
// for any other type.
func StartProbability(eventType string, confidence *float64) (float64, bool) {
	switch eventType {
	case GoalieStartConfirmed:
		return confirmedStartProb, true
	case GoalieStartLikely:
		if confidence == nil {
			return likelyStartDefault, true
		}
		return clamp(*confidence, likelyStartFloor, 1), true
	default:
		return 0, false
	}
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
