package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the workflow counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions   *prometheus.CounterVec
	wipRejections *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	sweeps        prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentline",
			Name:      "status_transitions_total",
			Help:      "Deliverable status changes by target status.",
		}, []string{"to"}),
		wipRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentline",
			Name:      "wip_rejections_total",
			Help:      "Moves rejected because the target stage was at its WIP limit.",
		}, []string{"stage"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentline",
			Name:      "approval_decisions_total",
			Help:      "Approval decisions by outcome.",
		}, []string{"status"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentline",
			Name:      "notifications_total",
			Help:      "Notification emission attempts by type and result.",
		}, []string{"type", "result"}),
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Namespace: "contentline",
			Name:      "overdue_sweeps_total",
			Help:      "Overdue sweeps executed.",
		}),
	}
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) WIPRejected(stage string) {
	if m == nil {
		return
	}
	m.wipRejections.WithLabelValues(stage).Inc()
}

func (m *Metrics) Decision(status string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(status).Inc()
}

// Notification result is one of created, duplicate, failed.
func (m *Metrics) Notification(typ, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(typ, result).Inc()
}

func (m *Metrics) Sweep() {
	if m == nil {
		return
	}
	m.sweeps.Inc()
}
