package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are shared by every scheduler in the process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	rounds        *prometheus.CounterVec
	roundDuration *prometheus.HistogramVec
	inspections   *prometheus.CounterVec
	remediations  *prometheus.CounterVec
	entityErrors  *prometheus.CounterVec
	dueEntities   *prometheus.GaugeVec
	nextWait      *prometheus.GaugeVec
}

// NewMetrics registers the scheduler collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rounds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buildmon",
			Name:      "rounds_total",
			Help:      "Scheduler rounds by terminal outcome",
		}, []string{"group", "outcome"}),
		roundDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "buildmon",
			Name:      "round_duration_seconds",
			Help:      "Wall time of one scheduler round",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"group"}),
		inspections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buildmon",
			Name:      "inspections_total",
			Help:      "Inspector results by type",
		}, []string{"group", "result"}),
		remediations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buildmon",
			Name:      "remediations_total",
			Help:      "Actuator commands by outcome",
		}, []string{"group", "command", "outcome"}),
		entityErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buildmon",
			Name:      "entity_errors_total",
			Help:      "Per-entity failures by class",
		}, []string{"group", "class"}),
		dueEntities: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "buildmon",
			Name:      "due_entities",
			Help:      "Entities selected in the last round",
		}, []string{"group"}),
		nextWait: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "buildmon",
			Name:      "next_wait_seconds",
			Help:      "Sleep computed at the end of the last round",
		}, []string{"group"}),
	}
}

func (m *Metrics) observeRound(group, outcome string, took, wait time.Duration, due int) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(group, outcome).Inc()
	m.roundDuration.WithLabelValues(group).Observe(took.Seconds())
	m.dueEntities.WithLabelValues(group).Set(float64(due))
	m.nextWait.WithLabelValues(group).Set(wait.Seconds())
}

func (m *Metrics) observeInspection(group, result string) {
	if m == nil {
		return
	}
	m.inspections.WithLabelValues(group, result).Inc()
}

func (m *Metrics) observeRemediation(group, command, outcome string) {
	if m == nil {
		return
	}
	m.remediations.WithLabelValues(group, command, outcome).Inc()
}

func (m *Metrics) observeError(group, class string) {
	if m == nil {
		return
	}
	m.entityErrors.WithLabelValues(group, class).Inc()
}
