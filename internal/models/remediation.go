package models

import "time"

// Command is an action the Actuator can execute against an entity.
type Command string

const (
	CommandStartProduction Command = "start_production"
	CommandRemediateOnce   Command = "remediate_once"
	CommandRemediateTwice  Command = "remediate_twice"
)

// RemediationOutcome is what the Actuator reports after executing a Command.
type RemediationOutcome interface {
	isRemediationOutcome()
}

// Started means the command took effect. NewFinishAt is set when the backend
// could read the resulting completion time directly.
type Started struct {
	NewFinishAt *time.Time
}

// Failed means the backend declined or could not complete the command.
type Failed struct {
	Reason string
}

// NotNeeded means there was nothing to do, e.g. production already running.
type NotNeeded struct{}

func (Started) isRemediationOutcome()   {}
func (Failed) isRemediationOutcome()    {}
func (NotNeeded) isRemediationOutcome() {}

// OutcomeName is a short label used in logs, events and metrics.
func OutcomeName(o RemediationOutcome) string {
	switch o.(type) {
	case Started:
		return "started"
	case Failed:
		return "failed"
	case NotNeeded:
		return "not_needed"
	default:
		return "invalid"
	}
}
