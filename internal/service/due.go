package service

import (
	"time"

	"building_monitor/internal/models"
)

// Timing holds the per-group durations the scheduler works with.
type Timing struct {
	Lookahead     time.Duration
	WaitBuffer    time.Duration
	DefaultRetry  time.Duration
	ErrorBackoff  time.Duration
	LongDefer     time.Duration
	AuthPause     time.Duration
	EntityTimeout time.Duration
}

// SelectDue returns the entities whose next event is unknown or falls at or
// before now+lookahead, in input order.
func SelectDue(entities []models.Entity, state models.StateMap, now time.Time, lookahead time.Duration) []models.Entity {
	horizon := now.Add(lookahead)
	due := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		next := state[e.ID]
		if next == nil || !next.After(horizon) {
			due = append(due, e)
		}
	}
	return due
}

// NextWait is the only place that decides how long the scheduler sleeps
// between rounds. state must already be restricted to configured entities.
func NextWait(state models.StateMap, now time.Time, outcome models.RoundOutcome, t Timing) time.Duration {
	switch outcome {
	case models.RoundInterrupted:
		return 0
	case models.RoundAuthRequired:
		return t.AuthPause
	case models.RoundSomeErrors:
		return t.ErrorBackoff
	}

	var earliest *time.Time
	for _, next := range state {
		if next == nil || !next.After(now) {
			continue
		}
		if earliest == nil || next.Before(*earliest) {
			earliest = next
		}
	}
	if earliest == nil {
		return t.DefaultRetry
	}
	return earliest.Sub(now) + t.WaitBuffer
}
