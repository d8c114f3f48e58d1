package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"building_monitor/internal/logger"
	"building_monitor/internal/models"
	"building_monitor/internal/policy"
	"building_monitor/internal/repository"

	"github.com/google/uuid"
)

// Group describes one independently scheduled set of entities.
type Group struct {
	Name     string
	Entities []models.Entity
	Timing   Timing
	Policy   policy.Table
}

// EntityStatus is the operator view of one entity.
type EntityStatus struct {
	ID          models.EntityID `json:"id"`
	Kind        models.Kind     `json:"kind"`
	NextEventAt *time.Time      `json:"next_event_at"`
	Due         bool            `json:"due"`
	LastResult  string          `json:"last_result,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}

// GroupStatus is a point-in-time copy of a scheduler's state.
type GroupStatus struct {
	Group       string              `json:"group"`
	Running     bool                `json:"running"`
	AuthBlocked bool                `json:"auth_blocked"`
	NextRoundAt *time.Time          `json:"next_round_at,omitempty"`
	LastRound   *models.RoundReport `json:"last_round,omitempty"`
	Entities    []EntityStatus      `json:"entities"`
}

// SchedulerService runs rounds for one group: select due entities, inspect,
// remediate, persist, then sleep for NextWait.
//
// ProcessDueEntities must not be called concurrently for the same group;
// RunForever is normally its only caller.
type SchedulerService struct {
	group     Group
	store     repository.StateStore
	inspector Inspector
	actuator  Actuator
	notifier  Notifier
	events    EventRecorder
	metrics   *Metrics
	log       *logger.Logger
	now       func() time.Time

	wake chan struct{}

	mu           sync.Mutex
	running      bool
	authNotified bool
	lastState    models.StateMap
	lastResults  map[models.EntityID]string
	lastErrors   map[models.EntityID]string
	lastRound    *models.RoundReport
	nextRoundAt  *time.Time

	// finish times already announced as completed, per construction entity.
	// Only the round goroutine touches it.
	completions map[models.EntityID]time.Time
}

// Option customizes a SchedulerService.
type Option func(*SchedulerService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *SchedulerService) { s.now = now }
}

// WithEvents records round and entity events.
func WithEvents(r EventRecorder) Option {
	return func(s *SchedulerService) { s.events = r }
}

func WithMetrics(m *Metrics) Option {
	return func(s *SchedulerService) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *SchedulerService) { s.log = l }
}

func NewSchedulerService(g Group, store repository.StateStore, inspector Inspector, actuator Actuator, notifier Notifier, opts ...Option) *SchedulerService {
	s := &SchedulerService{
		group:       g,
		store:       store,
		inspector:   inspector,
		actuator:    actuator,
		notifier:    notifier,
		now:         time.Now,
		wake:        make(chan struct{}, 1),
		lastState:   models.StateMap{},
		lastResults: map[models.EntityID]string{},
		lastErrors:  map[models.EntityID]string{},
		completions: map[models.EntityID]time.Time{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	s.log = s.log.With("group", g.Name)
	return s
}

// Name returns the group name.
func (s *SchedulerService) Name() string { return s.group.Name }

// RunForever runs rounds until ctx is canceled. A round in progress finishes
// its current entity before the loop exits. Returns nil on shutdown.
func (s *SchedulerService) RunForever(ctx context.Context) error {
	s.log.Infow("scheduler_started", "entities", len(s.group.Entities))
	defer s.log.Infow("scheduler_stopped")

	for {
		report := s.ProcessDueEntities(ctx)
		if report.Outcome == models.RoundInterrupted || ctx.Err() != nil {
			return nil
		}

		wait := report.NextWait
		at := s.now().Add(wait).UTC()
		s.mu.Lock()
		s.nextRoundAt = &at
		s.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		case <-s.wake:
			t.Stop()
			s.log.Infow("scheduler_woken", "remaining", at.Sub(s.now()).Round(time.Second).String())
		}
	}
}

// Wake cuts the current inter-round sleep short. It never interrupts a
// running round.
func (s *SchedulerService) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ProcessDueEntities runs one round and returns its report. Per-entity
// failures never abort the round; they only select the error backoff.
func (s *SchedulerService) ProcessDueEntities(ctx context.Context) models.RoundReport {
	started := s.now()
	report := models.RoundReport{
		ID:        uuid.NewString(),
		Group:     s.group.Name,
		StartedAt: started.UTC(),
		Errors:    map[models.EntityID]string{},
	}
	s.setRunning(true)
	defer s.setRunning(false)

	state, err := s.store.Load(ctx)
	if state == nil {
		state = models.StateMap{}
	}
	if err != nil {
		// corrupt or unreachable state reads as empty; every entity is due
		s.log.Warnw("state_load_failed", "err", err)
		report.StateError = err.Error()
	}

	outcome := s.runEntities(ctx, state, &report)
	if outcome == models.RoundAllClean && (report.Failed > 0 || report.StateError != "" || report.SessionError != "") {
		outcome = models.RoundSomeErrors
	}
	if outcome != models.RoundAuthRequired && outcome != models.RoundInterrupted {
		s.clearAuthGate()
	}

	finished := s.now()
	report.Outcome = outcome
	report.FinishedAt = finished.UTC()
	report.NextWait = NextWait(state.Subset(s.group.Entities), finished, outcome, s.group.Timing)

	s.finishRound(state, report)
	s.metrics.observeRound(s.group.Name, string(outcome), finished.Sub(started), report.NextWait, report.Due)
	s.record(ctx, models.MonitorEvent{
		Type:        models.EventRound,
		Description: fmt.Sprintf("round %s: %d due, %d processed, %d failed", outcome, report.Due, report.Processed, report.Failed),
		Metadata: map[string]any{
			"round_id":  report.ID,
			"outcome":   string(outcome),
			"due":       report.Due,
			"processed": report.Processed,
			"failed":    report.Failed,
			"next_wait": report.NextWait.String(),
		},
	})
	s.log.Infow("round_finished",
		"outcome", outcome,
		"due", report.Due,
		"processed", report.Processed,
		"failed", report.Failed,
		"next_wait", report.NextWait.String(),
	)
	return report
}

// runEntities processes due entities in order and saves the whole map after
// each success. It returns the round outcome before error escalation.
func (s *SchedulerService) runEntities(ctx context.Context, state models.StateMap, report *models.RoundReport) models.RoundOutcome {
	if ctx.Err() != nil {
		return models.RoundInterrupted
	}

	if checker, ok := s.inspector.(SessionChecker); ok {
		cctx, cancel := s.entityContext(ctx)
		err := checker.CheckSession(cctx)
		cancel()
		if errors.Is(err, models.ErrAuthRequired) {
			s.authGate(ctx, "", err)
			return models.RoundAuthRequired
		}
		if err != nil {
			// entities are still processed; the round takes the error backoff
			s.log.Warnw("session_check_failed", "err", err)
			s.metrics.observeError(s.group.Name, errorClass(err))
			report.SessionError = err.Error()
		}
	}

	due := SelectDue(s.group.Entities, state, s.now(), s.group.Timing.Lookahead)
	report.Due = len(due)

	for _, e := range due {
		if ctx.Err() != nil {
			s.log.Infow("round_interrupted", "remaining", report.Due-report.Processed-report.Failed)
			return models.RoundInterrupted
		}

		err := s.processEntity(ctx, e, state)
		if errors.Is(err, models.ErrAuthRequired) {
			s.authGate(ctx, e.ID, err)
			return models.RoundAuthRequired
		}
		if err != nil {
			report.Failed++
			report.Errors[e.ID] = err.Error()
			s.entityFailed(ctx, e, err)
			continue
		}

		report.Processed++
		s.setEntityError(e.ID, "")
		if err := s.store.Save(context.WithoutCancel(ctx), state); err != nil {
			s.log.Errorw("state_save_failed", "entity_id", e.ID, "err", err)
			report.StateError = err.Error()
		}
	}
	return models.RoundAllClean
}

// processEntity inspects one entity and, on success, writes exactly one new
// value for it into state. On error state is left untouched.
func (s *SchedulerService) processEntity(ctx context.Context, e models.Entity, state models.StateMap) error {
	ectx, cancel := s.entityContext(ctx)
	defer cancel()

	res, err := s.inspect(ectx, e)
	if err != nil {
		return err
	}

	var next *time.Time
	switch e.Kind {
	case models.KindConstruction:
		next, err = s.processConstruction(ectx, e, res, state[e.ID])
	case models.KindProduction:
		next, err = s.processProduction(ectx, e, res)
	case models.KindDegradation:
		next, err = s.processDegradation(ectx, e, res)
	default:
		err = fmt.Errorf("entity %s has unknown kind %q", e.ID, e.Kind)
	}
	if err != nil {
		return err
	}

	state[e.ID] = models.CopyTime(next)
	s.log.Debugw("entity_processed", "entity_id", e.ID, "next_event_at", next)
	return nil
}

func (s *SchedulerService) processConstruction(ctx context.Context, e models.Entity, res models.InspectionResult, prev *time.Time) (*time.Time, error) {
	now := s.now()
	switch r := res.(type) {
	case models.UnderConstruction:
		if r.FinishAt.After(now) {
			delete(s.completions, e.ID)
			return models.TimePtr(r.FinishAt), nil
		}
		if last, seen := s.completions[e.ID]; prev != nil && (!seen || !last.Equal(r.FinishAt)) {
			s.notifyCompleted(ctx, e)
			s.completions[e.ID] = r.FinishAt
		}
		next, err := s.reinspectFinish(ctx, e)
		if err != nil {
			return nil, err
		}
		delete(s.completions, e.ID)
		return next, nil
	case models.Healthy:
		if _, seen := s.completions[e.ID]; prev != nil && !seen {
			s.notifyCompleted(ctx, e)
		}
		delete(s.completions, e.ID)
		return nil, nil
	case models.Producing:
		return models.TimePtr(r.FinishAt), nil
	default:
		return nil, unexpectedResult(e, res)
	}
}

func (s *SchedulerService) processProduction(ctx context.Context, e models.Entity, res models.InspectionResult) (*time.Time, error) {
	switch r := res.(type) {
	case models.Producing:
		return models.TimePtr(r.FinishAt), nil
	case models.UnderConstruction:
		return models.TimePtr(r.FinishAt), nil
	case models.Healthy:
		return s.remediate(ctx, e, models.CommandStartProduction)
	default:
		return nil, unexpectedResult(e, res)
	}
}

func (s *SchedulerService) processDegradation(ctx context.Context, e models.Entity, res models.InspectionResult) (*time.Time, error) {
	now := s.now()
	switch r := res.(type) {
	case models.UnderConstruction:
		return models.TimePtr(r.FinishAt), nil
	case models.Producing:
		return models.TimePtr(r.FinishAt), nil
	case models.Healthy:
		return models.TimePtr(now.Add(s.group.Timing.LongDefer)), nil
	case models.Degraded:
		decision := s.group.Policy.Decide(r.Metric, r.Secondary)
		s.log.Infow("policy_decided", "entity_id", e.ID, "metric", r.Metric, "secondary", r.Secondary, "decision", decision)
		switch decision {
		case policy.Single:
			return s.remediate(ctx, e, models.CommandRemediateOnce)
		case policy.Double:
			return s.remediate(ctx, e, models.CommandRemediateTwice)
		default:
			return models.TimePtr(now.Add(s.group.Timing.LongDefer)), nil
		}
	default:
		return nil, unexpectedResult(e, res)
	}
}

// remediate runs cmd and turns its outcome into the next event time.
func (s *SchedulerService) remediate(ctx context.Context, e models.Entity, cmd models.Command) (*time.Time, error) {
	out, err := s.actuator.Act(ctx, e, cmd)
	if err != nil {
		s.metrics.observeRemediation(s.group.Name, string(cmd), "error")
		if errors.Is(err, models.ErrAuthRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s on %s: %v", models.ErrRemediationFailed, cmd, e.ID, err)
	}

	name := models.OutcomeName(out)
	s.metrics.observeRemediation(s.group.Name, string(cmd), name)
	s.record(ctx, models.MonitorEvent{
		EntityID:    e.ID,
		Type:        models.EventRemediate,
		Description: fmt.Sprintf("%s: %s", cmd, name),
		Metadata:    map[string]any{"command": string(cmd), "outcome": name},
	})

	switch o := out.(type) {
	case models.Started:
		s.notifyStarted(ctx, e, cmd)
		if o.NewFinishAt != nil {
			return models.CopyTime(o.NewFinishAt), nil
		}
		return s.reinspectFinish(ctx, e)
	case models.NotNeeded:
		return s.reinspectFinish(ctx, e)
	case models.Failed:
		return nil, fmt.Errorf("%w: %s on %s: %s", models.ErrRemediationFailed, cmd, e.ID, o.Reason)
	default:
		return nil, fmt.Errorf("%w: %s on %s: unexpected outcome %T", models.ErrRemediationFailed, cmd, e.ID, out)
	}
}

// reinspectFinish inspects once more and keeps a future finish time if the
// entity reports one. A construction timer that is still in the past is a
// stale page, not a result.
func (s *SchedulerService) reinspectFinish(ctx context.Context, e models.Entity) (*time.Time, error) {
	res, err := s.inspect(ctx, e)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch r := res.(type) {
	case models.UnderConstruction:
		if r.FinishAt.After(now) {
			return models.TimePtr(r.FinishAt), nil
		}
		return nil, fmt.Errorf("%w: %s construction timer %s is still in the past",
			models.ErrTransientInspection, e.ID, r.FinishAt.UTC().Format(time.RFC3339))
	case models.Producing:
		if r.FinishAt.After(now) {
			return models.TimePtr(r.FinishAt), nil
		}
	case models.Unknown:
		return nil, unexpectedResult(e, res)
	}
	return nil, nil
}

func (s *SchedulerService) inspect(ctx context.Context, e models.Entity) (models.InspectionResult, error) {
	res, err := s.inspector.Inspect(ctx, e)
	if err != nil {
		s.metrics.observeInspection(s.group.Name, "error")
		if errors.Is(err, models.ErrAuthRequired) || errors.Is(err, models.ErrTransientInspection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: inspect %s: %v", models.ErrTransientInspection, e.ID, err)
	}
	if res == nil {
		s.metrics.observeInspection(s.group.Name, "invalid")
		return nil, fmt.Errorf("%w: inspect %s returned no result", models.ErrTransientInspection, e.ID)
	}

	name := models.ResultName(res)
	s.metrics.observeInspection(s.group.Name, name)
	s.setEntityResult(e.ID, name)
	s.record(ctx, models.MonitorEvent{
		EntityID:    e.ID,
		Type:        models.EventInspect,
		Description: name,
		Metadata:    inspectionMeta(res),
	})
	return res, nil
}

func unexpectedResult(e models.Entity, res models.InspectionResult) error {
	if u, ok := res.(models.Unknown); ok {
		return fmt.Errorf("%w: %s status unknown: %s", models.ErrTransientInspection, e.ID, u.Reason)
	}
	return fmt.Errorf("%w: %s entity %s reported %s", models.ErrTransientInspection, e.Kind, e.ID, models.ResultName(res))
}

func inspectionMeta(res models.InspectionResult) map[string]any {
	switch r := res.(type) {
	case models.UnderConstruction:
		return map[string]any{"finish_at": r.FinishAt.UTC()}
	case models.Producing:
		return map[string]any{"finish_at": r.FinishAt.UTC()}
	case models.Degraded:
		m := map[string]any{"metric": r.Metric}
		if r.Secondary != nil {
			m["secondary"] = *r.Secondary
		}
		return m
	case models.Unknown:
		return map[string]any{"reason": r.Reason}
	default:
		return nil
	}
}

// entityContext detaches from shutdown so an entity is never left half
// processed, bounded by the per-entity timeout.
func (s *SchedulerService) entityContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if s.group.Timing.EntityTimeout > 0 {
		return context.WithTimeout(base, s.group.Timing.EntityTimeout)
	}
	return context.WithCancel(base)
}

func (s *SchedulerService) entityFailed(ctx context.Context, e models.Entity, err error) {
	class := errorClass(err)
	s.metrics.observeError(s.group.Name, class)
	s.setEntityError(e.ID, err.Error())
	s.log.Warnw("entity_failed", "entity_id", e.ID, "kind", e.Kind, "class", class, "err", err)
	s.record(ctx, models.MonitorEvent{
		EntityID:    e.ID,
		Type:        models.EventError,
		Description: err.Error(),
		Metadata:    map[string]any{"class": class},
	})
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, models.ErrRemediationFailed):
		return "remediation_failed"
	case errors.Is(err, models.ErrTransientInspection):
		return "transient_inspection"
	case errors.Is(err, models.ErrAuthRequired):
		return "auth_required"
	default:
		return "other"
	}
}

// authGate records the gate and notifies once until a round passes it.
func (s *SchedulerService) authGate(ctx context.Context, id models.EntityID, err error) {
	s.mu.Lock()
	first := !s.authNotified
	s.authNotified = true
	s.mu.Unlock()

	s.metrics.observeError(s.group.Name, "auth_required")
	s.log.Warnw("auth_required", "entity_id", id, "err", err, "pause", s.group.Timing.AuthPause.String())
	s.record(ctx, models.MonitorEvent{
		EntityID:    id,
		Type:        models.EventAuthRequired,
		Description: err.Error(),
	})
	if first {
		s.notify(ctx, id,
			fmt.Sprintf("[%s] login required", s.group.Name),
			fmt.Sprintf("The %s session is not authenticated. Log in again; the monitor retries in %s.",
				s.group.Name, s.group.Timing.AuthPause))
	}
}

func (s *SchedulerService) clearAuthGate() {
	s.mu.Lock()
	s.authNotified = false
	s.mu.Unlock()
}

func (s *SchedulerService) notifyCompleted(ctx context.Context, e models.Entity) {
	s.notify(ctx, e.ID,
		fmt.Sprintf("[%s] %s finished", s.group.Name, e.ID),
		fmt.Sprintf("Construction of %s has completed.", e.ID))
}

func (s *SchedulerService) notifyStarted(ctx context.Context, e models.Entity, cmd models.Command) {
	s.notify(ctx, e.ID,
		fmt.Sprintf("[%s] %s on %s", s.group.Name, cmd, e.ID),
		fmt.Sprintf("Command %s was accepted for %s.", cmd, e.ID))
}

func (s *SchedulerService) notify(ctx context.Context, id models.EntityID, subject, body string) {
	s.notifier.Notify(subject, body)
	s.record(ctx, models.MonitorEvent{
		EntityID:    id,
		Type:        models.EventNotify,
		Description: subject,
	})
}

// record appends to the event log; failures are logged and otherwise ignored.
func (s *SchedulerService) record(ctx context.Context, ev models.MonitorEvent) {
	if s.events == nil {
		return
	}
	ev.Group = s.group.Name
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	if err := s.events.Append(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warnw("event_append_failed", "type", ev.Type, "err", err)
	}
}

func (s *SchedulerService) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	if v {
		s.nextRoundAt = nil
	}
	s.mu.Unlock()
}

func (s *SchedulerService) setEntityResult(id models.EntityID, result string) {
	s.mu.Lock()
	s.lastResults[id] = result
	s.mu.Unlock()
}

func (s *SchedulerService) setEntityError(id models.EntityID, msg string) {
	s.mu.Lock()
	if msg == "" {
		delete(s.lastErrors, id)
	} else {
		s.lastErrors[id] = msg
	}
	s.mu.Unlock()
}

func (s *SchedulerService) finishRound(state models.StateMap, report models.RoundReport) {
	snapshot := state.Subset(s.group.Entities)
	s.mu.Lock()
	s.lastState = snapshot
	s.lastRound = &report
	s.mu.Unlock()
}

// Status returns a copy of the scheduler's view. It never touches the store.
func (s *SchedulerService) Status() GroupStatus {
	now := s.now()
	horizon := now.Add(s.group.Timing.Lookahead)

	s.mu.Lock()
	defer s.mu.Unlock()

	st := GroupStatus{
		Group:       s.group.Name,
		Running:     s.running,
		AuthBlocked: s.authNotified,
		NextRoundAt: models.CopyTime(s.nextRoundAt),
		Entities:    make([]EntityStatus, 0, len(s.group.Entities)),
	}
	if s.lastRound != nil {
		r := *s.lastRound
		r.Errors = make(map[models.EntityID]string, len(s.lastRound.Errors))
		for k, v := range s.lastRound.Errors {
			r.Errors[k] = v
		}
		st.LastRound = &r
	}
	for _, e := range s.group.Entities {
		next := models.CopyTime(s.lastState[e.ID])
		st.Entities = append(st.Entities, EntityStatus{
			ID:          e.ID,
			Kind:        e.Kind,
			NextEventAt: next,
			Due:         next == nil || !next.After(horizon),
			LastResult:  s.lastResults[e.ID],
			LastError:   s.lastErrors[e.ID],
		})
	}
	return st
}
