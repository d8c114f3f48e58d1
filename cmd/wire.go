package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"building_monitor/internal/backend/browser"
	"building_monitor/internal/config"
	"building_monitor/internal/logger"
	"building_monitor/internal/notify"
	"building_monitor/internal/repository"
	"building_monitor/internal/repository/db"
	"building_monitor/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const drainTimeout = 15 * time.Second

// app is everything a run or once invocation needs, plus the handles to
// release on exit.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	events     *repository.EventSQLite
	registry   *prometheus.Registry
	dispatcher *notify.Dispatcher
	monitoring *service.MonitoringService

	closers []io.Closer
}

// buildApp opens the event log, notification sinks, stores and browser
// sessions for the selected groups (all when names is empty). Groups with
// backend "none" are skipped.
func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger, names []string) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(a.registry)

	eventsDB, err := db.InitDB(cfg.EventsDB)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	a.closers = append(a.closers, eventsDB)
	a.events = repository.NewEventSQLite(eventsDB)

	sinks, err := buildSinks(ctx, cfg.Notify, log)
	if err != nil {
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(notify.Options{
		QueueSize: cfg.Notify.QueueSize,
		PerMinute: cfg.Notify.PerMinute,
		Burst:     cfg.Notify.Burst,
	}, log.With("component", "notifier"), a.events, sinks...)

	groups, err := selectGroups(cfg, names)
	if err != nil {
		return nil, err
	}

	var schedulers []*service.SchedulerService
	for _, gc := range groups {
		if gc.Backend == config.BackendNone {
			log.Warnw("group_skipped", "group", gc.Name, "reason", "backend none")
			continue
		}
		s, err := a.buildScheduler(ctx, gc, metrics)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", gc.Name, err)
		}
		schedulers = append(schedulers, s)
	}
	if len(schedulers) == 0 {
		return nil, errors.New("no runnable groups selected")
	}
	a.monitoring = service.NewMonitoringService(schedulers...)
	return a, nil
}

func (a *app) buildScheduler(ctx context.Context, gc config.GroupConfig, metrics *service.Metrics) (*service.SchedulerService, error) {
	entities, err := gc.EntityList()
	if err != nil {
		return nil, err
	}
	table, err := gc.PolicyTable()
	if err != nil {
		return nil, err
	}

	store, err := openStore(a.cfg, gc, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)

	session, err := browser.Open(ctx, gc.Browser, a.log.With("group", gc.Name))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, session)

	return service.NewSchedulerService(
		service.Group{
			Name:     gc.Name,
			Entities: entities,
			Timing:   timing(gc.Timing),
			Policy:   table,
		},
		store,
		browser.NewInspector(session),
		browser.NewActuator(session),
		a.dispatcher,
		service.WithEvents(a.events),
		service.WithMetrics(metrics),
		service.WithLogger(a.log),
	), nil
}

// Close drains pending notifications, then releases browsers, stores and
// the event log in reverse order of opening.
func (a *app) Close(ctx context.Context) {
	if a.dispatcher != nil {
		dctx, cancel := context.WithTimeout(ctx, drainTimeout)
		if err := a.dispatcher.Close(dctx); err != nil {
			a.log.Warnw("notifier_drain_incomplete", "err", err, "dropped", a.dispatcher.Dropped())
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warnw("close_failed", "err", err)
		}
	}
	a.closers = nil
}

func selectGroups(cfg *config.Config, names []string) ([]config.GroupConfig, error) {
	if len(names) == 0 {
		return cfg.Groups, nil
	}
	out := make([]config.GroupConfig, 0, len(names))
	for _, n := range names {
		i := slices.IndexFunc(cfg.Groups, func(g config.GroupConfig) bool { return g.Name == n })
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", service.ErrGroupNotFound, n)
		}
		out = append(out, cfg.Groups[i])
	}
	return out, nil
}

// openStore builds the configured state store of one group.
func openStore(cfg *config.Config, gc config.GroupConfig, log *logger.Logger) (repository.StateStore, error) {
	log = log.With("group", gc.Name)
	switch gc.Store.Backend {
	case config.StoreFile:
		return repository.NewFileStore(gc.Store.Path, log)
	case config.StoreSQLite:
		conn, err := db.InitDB(gc.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open state db: %w", err)
		}
		return repository.NewStateSQLite(conn, log), nil
	case config.StoreRedis:
		client := repository.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		return repository.NewStateRedis(client, gc.Store.Key, log), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", gc.Store.Backend)
}

func buildSinks(ctx context.Context, nc config.NotifyConfig, log *logger.Logger) ([]notify.Sink, error) {
	sinks := []notify.Sink{notify.NewLogSink(log.With("component", "alerts"))}
	if nc.Gmail.Enabled {
		g, err := notify.NewGmailSink(ctx, nc.Gmail.CredentialsFile, nc.Gmail.TokenFile, nc.Gmail.From, nc.Gmail.To)
		if err != nil {
			return nil, fmt.Errorf("gmail sink: %w", err)
		}
		sinks = append(sinks, g)
	}
	return sinks, nil
}

func timing(t config.TimingConfig) service.Timing {
	return service.Timing{
		Lookahead:     t.Lookahead,
		WaitBuffer:    t.WaitBuffer,
		DefaultRetry:  t.DefaultRetry,
		ErrorBackoff:  t.ErrorBackoff,
		LongDefer:     t.LongDefer,
		AuthPause:     t.AuthPause,
		EntityTimeout: t.EntityTimeout,
	}
}

func credentials(ac config.AuthConfig) service.Credentials {
	return service.Credentials{
		Username:     ac.Username,
		PasswordHash: ac.PasswordHash,
		SigningKey:   ac.SigningKey,
		TokenTTL:     ac.TokenTTL,
	}
}
