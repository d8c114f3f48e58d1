// Package notify delivers operator alerts without ever blocking the caller.
package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"building_monitor/internal/logger"
	"building_monitor/internal/models"

	"golang.org/x/time/rate"
)

const sendTimeout = 30 * time.Second

// Message is one alert.
type Message struct {
	Subject string
	Body    string
	At      time.Time
}

// Sink is a delivery channel (log, mail, ...).
type Sink interface {
	Name() string
	Send(ctx context.Context, m Message) error
}

// EventRecorder receives delivery failures for the event log.
type EventRecorder interface {
	Append(ctx context.Context, e models.MonitorEvent) error
}

type Options struct {
	QueueSize int
	PerMinute float64 // <= 0 disables throttling
	Burst     int
}

// Dispatcher queues alerts and fans them out to every sink from a single
// worker goroutine. A full queue drops the alert with a warning.
type Dispatcher struct {
	queue   chan Message
	limiter *rate.Limiter
	sinks   []Sink
	events  EventRecorder
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	sent    atomic.Int64
}

func NewDispatcher(opts Options, log *logger.Logger, events EventRecorder, sinks ...Sink) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	limit := rate.Inf
	if opts.PerMinute > 0 {
		limit = rate.Limit(opts.PerMinute / 60)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:   make(chan Message, opts.QueueSize),
		limiter: rate.NewLimiter(limit, opts.Burst),
		sinks:   sinks,
		events:  events,
		log:     log.With("component", "notifier"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues an alert and returns immediately.
func (d *Dispatcher) Notify(subject, body string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(subject, "closed")
		return
	}
	select {
	case d.queue <- Message{Subject: subject, Body: body, At: time.Now().UTC()}:
	default:
		d.drop(subject, "queue_full")
	}
}

// Dropped reports how many alerts were discarded.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Sent reports how many alerts reached at least one sink.
func (d *Dispatcher) Sent() int64 { return d.sent.Load() }

// Close stops accepting alerts and waits for the queue to drain until ctx
// expires; undelivered alerts are abandoned after that.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return fmt.Errorf("notifier drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for m := range d.queue {
		if err := d.limiter.Wait(d.ctx); err != nil {
			d.drop(m.Subject, "shutdown")
			continue
		}
		d.deliver(m)
	}
}

func (d *Dispatcher) deliver(m Message) {
	delivered := false
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(d.ctx, sendTimeout)
		err := s.Send(ctx, m)
		cancel()
		if err != nil {
			d.log.Warnw("notification_failed", "sink", s.Name(), "subject", m.Subject, "err", err)
			d.record(models.MonitorEvent{
				Type:        models.EventError,
				Description: fmt.Sprintf("notification via %s failed: %v", s.Name(), err),
				Metadata:    map[string]any{"sink": s.Name(), "subject": m.Subject},
			})
			continue
		}
		delivered = true
	}
	if delivered {
		d.sent.Add(1)
	}
}

func (d *Dispatcher) drop(subject, reason string) {
	d.dropped.Add(1)
	d.log.Warnw("notification_dropped", "subject", subject, "reason", reason)
}

func (d *Dispatcher) record(ev models.MonitorEvent) {
	if d.events == nil {
		return
	}
	ev.Group = "notifier"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.events.Append(ctx, ev); err != nil {
		d.log.Warnw("event_append_failed", "err", err)
	}
}
