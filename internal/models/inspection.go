package models

import "time"

// InspectionResult is the observed status of an entity. The concrete types
// below are the only implementations.
type InspectionResult interface {
	isInspectionResult()
}

// UnderConstruction reports a build or rebuild that completes at FinishAt.
type UnderConstruction struct {
	FinishAt time.Time
}

// Healthy reports an idle entity with nothing in progress and no degradation.
type Healthy struct{}

// Degraded reports a resource metric below the healthy bound. Secondary is an
// optional second metric the remediation policy may consult.
type Degraded struct {
	Metric    float64
	Secondary *float64
}

// Producing reports an active production cycle that completes at FinishAt.
type Producing struct {
	FinishAt time.Time
}

// Unknown is returned when the backend could not classify the entity.
type Unknown struct {
	Reason string
}

func (UnderConstruction) isInspectionResult() {}
func (Healthy) isInspectionResult()           {}
func (Degraded) isInspectionResult()          {}
func (Producing) isInspectionResult()         {}
func (Unknown) isInspectionResult()           {}

// ResultName is a short label used in logs, events and metrics.
func ResultName(r InspectionResult) string {
	switch r.(type) {
	case UnderConstruction:
		return "under_construction"
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Producing:
		return "producing"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}
