package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Backend related metrics
	BackendRequests *prometheus.CounterVec
	BackendLatency  *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec

	// Appointment view metrics
	ViewLoads         *prometheus.CounterVec
	ActiveViews       prometheus.Gauge
	Transitions       *prometheus.CounterVec
	StaleResponses    prometheus.Counter
	UnknownStatusRows prometheus.Counter

	// Session metrics
	SessionOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg. A nil
// registerer means the default prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		BackendRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total number of requests sent to the appointment backend",
		}, []string{"operation", "status"}),
		BackendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of appointment backend requests",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),

		ViewLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "view_loads_total",
			Help:      "Total number of appointment view loads by outcome",
		}, []string{"outcome"}),
		ActiveViews: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "active_views",
			Help:      "Current number of activated appointment views",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Total number of status transitions by target and outcome",
		}, []string{"target", "outcome"}),
		StaleResponses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "stale_responses_total",
			Help:      "Responses dropped because their view was torn down",
		}),
		UnknownStatusRows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "unknown_status_rows_total",
			Help:      "Appointments received with a status outside the known set",
		}),

		SessionOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Total number of session store operations",
		}, []string{"operation", "status"}),
	}
}

// New creates metrics on a private registry, for tests and the CLI.
func New(namespace string) *Metrics {
	return NewMetrics(namespace, prometheus.NewRegistry())
}
