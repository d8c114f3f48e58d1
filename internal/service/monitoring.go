package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"building_monitor/internal/models"

	"golang.org/x/sync/errgroup"
)

// ErrGroupNotFound is returned for an unknown group name.
var ErrGroupNotFound = errors.New("group not found")

// MonitoringService owns the schedulers of every configured group. Groups
// share nothing mutable; each runs in its own goroutine.
type MonitoringService struct {
	order  []string
	groups map[string]*SchedulerService
}

func NewMonitoringService(schedulers ...*SchedulerService) *MonitoringService {
	m := &MonitoringService{groups: make(map[string]*SchedulerService, len(schedulers))}
	for _, s := range schedulers {
		m.order = append(m.order, s.Name())
		m.groups[s.Name()] = s
	}
	return m
}

// Groups returns a status snapshot of every group in configuration order.
func (m *MonitoringService) Groups() []GroupStatus {
	out := make([]GroupStatus, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.groups[name].Status())
	}
	return out
}

// Group returns one group's status.
func (m *MonitoringService) Group(name string) (GroupStatus, error) {
	s, ok := m.groups[name]
	if !ok {
		return GroupStatus{}, fmt.Errorf("%w: %q", ErrGroupNotFound, name)
	}
	return s.Status(), nil
}

// Wake ends the named group's inter-round sleep.
func (m *MonitoringService) Wake(name string) error {
	s, ok := m.groups[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrGroupNotFound, name)
	}
	s.Wake()
	return nil
}

// RunAll runs every scheduler until ctx is canceled.
func (m *MonitoringService) RunAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range m.order {
		s := m.groups[name]
		g.Go(func() error {
			return s.RunForever(gctx)
		})
	}
	return g.Wait()
}

// RunOnce runs a single round for each named group (all groups when names is
// empty) concurrently and returns the reports in configuration order.
func (m *MonitoringService) RunOnce(ctx context.Context, names ...string) ([]models.RoundReport, error) {
	selected := m.order
	if len(names) > 0 {
		selected = nil
		for _, n := range names {
			if _, ok := m.groups[n]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrGroupNotFound, n)
			}
			selected = append(selected, n)
		}
	}

	reports := make([]models.RoundReport, len(selected))
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for i, name := range selected {
		s := m.groups[name]
		g.Go(func() error {
			r := s.ProcessDueEntities(ctx)
			mu.Lock()
			reports[i] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return reports, nil
}
