package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the survey service.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsExpired   prometheus.Counter
	ActiveSessions    prometheus.Gauge

	OutOfOrderRedirects prometheus.Counter
	StepSubmissions     *prometheus.CounterVec
	QualityFlags        *prometheus.CounterVec
	PersistFailures     prometheus.Counter
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "survey_sessions_started_total",
			Help: "Total number of survey sessions started",
		}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "survey_sessions_completed_total",
			Help: "Total number of survey sessions completed",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "survey_sessions_expired_total",
			Help: "Total number of survey sessions that timed out",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "survey_sessions_active",
			Help: "Number of in-memory survey sessions",
		}),

		OutOfOrderRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "survey_out_of_order_redirects_total",
			Help: "Total number of step accesses rejected for skipping ahead",
		}),
		StepSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "survey_step_submissions_total",
			Help: "Total number of accepted step submissions",
		}, []string{"step"}),
		QualityFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "survey_quality_flags_total",
			Help: "Total number of advisory data-quality flags raised",
		}, []string{"kind"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "survey_persist_failures_total",
			Help: "Total number of failed persistence writes",
		}),
	}

	registry.MustRegister(
		m.SessionsStarted,
		m.SessionsCompleted,
		m.SessionsExpired,
		m.ActiveSessions,
		m.OutOfOrderRedirects,
		m.StepSubmissions,
		m.QualityFlags,
		m.PersistFailures,
	)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
