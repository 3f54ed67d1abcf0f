package loadtest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"loadprobe/internal/classify"
)

// Metrics holds the Prometheus collectors for one load run. Each run owns its
// registry so tests and repeated runs never collide on registration.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	MarkersTotal    *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ActiveVUs       prometheus.Gauge
	BreakpointIter  *prometheus.GaugeVec
}

// NewMetrics creates and registers the load driver collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loadprobe_requests_total",
			Help: "Completed requests, partitioned by outcome.",
		}, []string{"outcome"}),
		MarkersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loadprobe_body_markers_total",
			Help: "Responses whose body matched a classifier marker.",
		}, []string{"category"}),
		RequestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "loadprobe_request_duration_seconds",
			Help:    "Round-trip time of completed requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		ActiveVUs: f.NewGauge(prometheus.GaugeOpts{
			Name: "loadprobe_active_vus",
			Help: "Virtual users currently running iterations.",
		}),
		BreakpointIter: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loadprobe_breakpoint_iteration",
			Help: "Iteration at which a breakpoint first occurred (absent until it does).",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observe(res classify.Result, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome(res)).Inc()
	m.RequestDuration.Observe(seconds)
	switch {
	case res.RateLimited:
		m.MarkersTotal.WithLabelValues(string(classify.CategoryRateLimited)).Inc()
	case res.StorageError:
		m.MarkersTotal.WithLabelValues(string(classify.CategoryStorageError)).Inc()
	}
}

func (m *Metrics) breakpoint(kind string, iteration int64) {
	if m == nil {
		return
	}
	m.BreakpointIter.WithLabelValues(kind).Set(float64(iteration))
}

func outcome(res classify.Result) string {
	switch {
	case res.Success:
		return "success"
	case res.Timeout:
		return "timeout"
	default:
		return "error"
	}
}
