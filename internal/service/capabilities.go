package service

import (
	"context"

	"building_monitor/internal/models"
)

// Inspector reads the current status of an entity. It must not change the
// monitored system. models.ErrAuthRequired signals an unauthenticated session.
type Inspector interface {
	Inspect(ctx context.Context, e models.Entity) (models.InspectionResult, error)
}

// Actuator executes a command against an entity. Commands are safe to retry.
type Actuator interface {
	Act(ctx context.Context, e models.Entity, cmd models.Command) (models.RemediationOutcome, error)
}

// SessionChecker is optionally implemented by an Inspector that can tell
// whether its session is still authenticated without touching an entity.
type SessionChecker interface {
	CheckSession(ctx context.Context) error
}

// Notifier delivers human-readable alerts. Notify must not block and has no
// error to report.
type Notifier interface {
	Notify(subject, body string)
}

// EventRecorder receives scheduler events for the event log.
type EventRecorder interface {
	Append(ctx context.Context, e models.MonitorEvent) error
}

// NopNotifier discards every alert.
type NopNotifier struct{}

func (NopNotifier) Notify(string, string) {}
