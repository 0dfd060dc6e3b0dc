// Package monitoring exposes Prometheus metrics for the service.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so wiring stays optional in tests.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SessionsActive prometheus.Gauge
	SessionsReaped prometheus.Counter

	SearchesTotal      prometheus.Counter
	CaptchaSolves      *prometheus.CounterVec
	ExtractionDegraded prometheus.Counter
	ArtifactsSaved     prometheus.Counter
}

// New creates a metrics collector on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courtscout_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "courtscout_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "courtscout_sessions_active",
			Help: "Number of live browser sessions",
		}),
		SessionsReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "courtscout_sessions_reaped_total",
			Help: "Sessions evicted by the idle reaper",
		}),
		SearchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "courtscout_searches_total",
			Help: "Completed search submissions",
		}),
		CaptchaSolves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courtscout_captcha_solves_total",
				Help: "Captcha solve attempts by engine and outcome",
			},
			[]string{"engine", "outcome"},
		),
		ExtractionDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "courtscout_extraction_degraded_total",
			Help: "Extractions that needed the raw-markup fallback",
		}),
		ArtifactsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "courtscout_artifacts_saved_total",
			Help: "Rendered documents persisted to the artifact store",
		}),
	}
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// CaptchaSolve records one solve attempt outcome for an engine.
func (m *Metrics) CaptchaSolve(engine, outcome string) {
	if m == nil {
		return
	}
	m.CaptchaSolves.WithLabelValues(engine, outcome).Inc()
}

// SessionOpened / SessionClosed track the live-session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed(reaped bool) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	if reaped {
		m.SessionsReaped.Inc()
	}
}

// SearchCompleted counts one successful submission.
func (m *Metrics) SearchCompleted() {
	if m == nil {
		return
	}
	m.SearchesTotal.Inc()
}

// ExtractionFellBack counts a degraded extraction.
func (m *Metrics) ExtractionFellBack() {
	if m == nil {
		return
	}
	m.ExtractionDegraded.Inc()
}

// ArtifactSaved counts one persisted artifact.
func (m *Metrics) ArtifactSaved() {
	if m == nil {
		return
	}
	m.ArtifactsSaved.Inc()
}
