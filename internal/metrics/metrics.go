package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Outcome labels for backend requests
const (
	OutcomeSuccess = "success"
	OutcomeStatus  = "status_error"
	OutcomeNetwork = "network_error"
	OutcomeSkipped = "no_session"
)

// Recorder records backend request metrics on its own registry
type Recorder struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates a Recorder with a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_dashboard_backend_requests_total",
				Help: "Total number of backend requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_dashboard_backend_request_duration_seconds",
				Help:    "Duration of backend requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}
}

// ObserveRequest records one backend request. A nil Recorder is a no-op.
func (r *Recorder) ObserveRequest(endpoint, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(endpoint, outcome).Inc()
	if outcome != OutcomeSkipped {
		r.latency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RequestCount returns the number of requests recorded for endpoint and outcome
func (r *Recorder) RequestCount(endpoint, outcome string) float64 {
	if r == nil {
		return 0
	}
	var m dto.Metric
	if err := r.requests.WithLabelValues(endpoint, outcome).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
