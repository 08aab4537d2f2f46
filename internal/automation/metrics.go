package automation

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the automation subsystem.
type Metrics struct {
	EventsTotal      prometheus.Counter
	EvaluationsTotal *prometheus.CounterVec
	FiringsTotal     *prometheus.CounterVec
	ActionsTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns automation metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prefect_automation_events_total",
			Help: "Total events ingested by the automation engine.",
		}),
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefect_automation_evaluations_total",
			Help: "Total trigger evaluations by trigger.",
		}, []string{"trigger"}),
		FiringsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefect_automation_firings_total",
			Help: "Total trigger firings by trigger and posture.",
		}, []string{"trigger", "posture"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefect_automation_actions_total",
			Help: "Total trigger actions executed by type and status.",
		}, []string{"action", "status"}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.EvaluationsTotal,
		m.FiringsTotal,
		m.ActionsTotal,
	)

	return m
}
