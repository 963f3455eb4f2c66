package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/planner/core/notification"
	"github.com/trezcool/planner/core/planning"
)

const namespace = "planner"

// Metrics records planning events on its own registry.
type Metrics struct {
	registry             *prometheus.Registry
	plansCreated         prometheus.Counter
	plansReset           prometheus.Counter
	transitions          *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
}

var _ planning.Recorder = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		plansCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_created_total",
			Help:      "Weekly plans created.",
		}),
		plansReset: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_reset_total",
			Help:      "Weekly plans deleted by an administrator.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_transitions_total",
			Help:      "Moderation transitions by target status.",
		}, []string{"status"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered, by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.plansCreated,
		m.plansReset,
		m.transitions,
		m.notificationFailures,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PlanCreated() { m.plansCreated.Inc() }
func (m *Metrics) PlanReset()   { m.plansReset.Inc() }

func (m *Metrics) PlanTransitioned(to planning.Status) {
	m.transitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) NotificationFailed(kind notification.Kind) {
	m.notificationFailures.WithLabelValues(string(kind)).Inc()
}
