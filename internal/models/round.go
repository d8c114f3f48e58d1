package models

import "time"

// RoundOutcome is the terminal state of one scheduler round.
type RoundOutcome string

const (
	RoundAllClean     RoundOutcome = "all_clean"
	RoundSomeErrors   RoundOutcome = "some_errors"
	RoundAuthRequired RoundOutcome = "auth_required"
	RoundInterrupted  RoundOutcome = "interrupted"
)

// RoundReport summarizes one pass over the due entities of a group.
type RoundReport struct {
	ID           string              `json:"id"`
	Group        string              `json:"group"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Due          int                 `json:"due"`
	Processed    int                 `json:"processed"`
	Failed       int                 `json:"failed"`
	Outcome      RoundOutcome        `json:"outcome"`
	NextWait     time.Duration       `json:"next_wait_ns"`
	Errors       map[EntityID]string `json:"errors,omitempty"`
	StateError   string              `json:"state_error,omitempty"`
	SessionError string              `json:"session_error,omitempty"`
}
