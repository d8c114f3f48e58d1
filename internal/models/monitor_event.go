package models

import "time"

// Event types written to the event log.
const (
	EventRound        = "ROUND"
	EventInspect      = "INSPECT"
	EventRemediate    = "REMEDIATE"
	EventNotify       = "NOTIFY"
	EventError        = "ERROR"
	EventAuthRequired = "AUTH_REQUIRED"
)

// MonitorEvent is a single log entry.
type MonitorEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Group       string    `json:"group"`
	EntityID    EntityID  `json:"entity_id,omitempty"`
	Type        string    `json:"type"`        // ROUND | INSPECT | REMEDIATE | NOTIFY | ERROR | AUTH_REQUIRED
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
