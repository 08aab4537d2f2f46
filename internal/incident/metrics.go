package incident

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the incident subsystem.
type Metrics struct {
	DeclaredTotal *prometheus.CounterVec
	ResolvedTotal *prometheus.CounterVec
	CommentsTotal prometheus.Counter
	OpenIncidents prometheus.Gauge
	TimeToResolve prometheus.Histogram
}

// NewMetrics registers and returns incident metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DeclaredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefect_incidents_declared_total",
			Help: "Total incidents declared by severity.",
		}, []string{"severity"}),
		ResolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prefect_incidents_resolved_total",
			Help: "Total incidents resolved by severity.",
		}, []string{"severity"}),
		CommentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prefect_incident_comments_total",
			Help: "Total comments added to incidents.",
		}),
		OpenIncidents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prefect_incidents_open",
			Help: "Incidents currently not resolved.",
		}),
		TimeToResolve: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prefect_incident_time_to_resolve_seconds",
			Help:    "Time from declaration to resolution.",
			Buckets: prometheus.ExponentialBuckets(60, 2, 12), // 1m .. ~3.5d
		}),
	}

	reg.MustRegister(
		m.DeclaredTotal,
		m.ResolvedTotal,
		m.CommentsTotal,
		m.OpenIncidents,
		m.TimeToResolve,
	)

	return m
}
