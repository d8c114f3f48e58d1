package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"building_monitor/internal/models"
	"building_monitor/internal/repository"
)

// LogFilter supports history filtering by time range, type, group and entity.
type LogFilter struct {
	From     time.Time // inclusive; zero means no lower bound
	To       time.Time // inclusive; zero means no upper bound
	Type     string    // "", "ROUND", "INSPECT", "REMEDIATE", "NOTIFY", "ERROR", "AUTH_REQUIRED"
	Group    string
	EntityID models.EntityID
	Limit    int // most recent N; zero means all
}

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

// ErrInvalidFilter wraps every filter validation failure.
var ErrInvalidFilter = errors.New("invalid log filter")

var (
	errInvalidTimeRange = fmt.Errorf("%w: From must be <= To", ErrInvalidFilter)
	errInvalidLimit     = fmt.Errorf("%w: limit must not be negative", ErrInvalidFilter)
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (repository.EventFilter, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return repository.EventFilter{}, errInvalidTimeRange
	}
	if f.Limit < 0 {
		return repository.EventFilter{}, errInvalidLimit
	}

	return repository.EventFilter{
		From:     from,
		To:       to,
		Type:     normalizeEventType(f.Type),
		Group:    strings.TrimSpace(f.Group),
		EntityID: models.EntityID(strings.TrimSpace(string(f.EntityID))),
		Limit:    f.Limit,
	}, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.MonitorEvent, error) {
	rf, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, rf)
}
