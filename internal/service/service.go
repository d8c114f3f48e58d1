package service

import (
	"context"

	"building_monitor/internal/models"
	"building_monitor/internal/repository"
)

type Authorization interface {
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (string, error)
}

// Monitoring exposes read-only group status and the operator wake request.
type Monitoring interface {
	Groups() []GroupStatus
	Group(name string) (GroupStatus, error)
	Wake(name string) error
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.MonitorEvent, error)
}

// Service aggregates what the HTTP layer needs. Scheduling itself is driven
// by MonitoringService.RunAll from the process runner.
type Service struct {
	Monitoring
	EventLog
	Authorization
}

func NewService(monitoring *MonitoringService, events repository.EventRepo, creds Credentials) *Service {
	return &Service{
		Monitoring:    monitoring,
		EventLog:      NewEventLogService(events),
		Authorization: NewAuthService(creds),
	}
}
