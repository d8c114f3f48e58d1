package repository

import (
	"context"
	"time"

	"building_monitor/internal/models"
)

// StateStore persists next_event_at per entity for one group.
//
// Load never fails the caller: a missing backing store yields an empty map and
// a nil error; unreadable or corrupt data yields an empty map and an error
// wrapping models.ErrCorruptState, which callers treat as a warning.
// Save replaces the stored map atomically.
type StateStore interface {
	Load(ctx context.Context) (models.StateMap, error)
	Save(ctx context.Context, state models.StateMap) error
	Close() error
}

type EventRepo interface {
	Append(ctx context.Context, e models.MonitorEvent) error
	List(ctx context.Context, f EventFilter) ([]models.MonitorEvent, error)
}

// EventFilter narrows List results. Zero values mean "no filter".
type EventFilter struct {
	From     time.Time
	To       time.Time
	Type     string
	Group    string
	EntityID models.EntityID
	Limit    int
}

// timestampLayout is fixed-width so stored values sort lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		// tolerate hand-edited rows written as plain RFC3339
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
