package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	results *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewPrometheusRecorder registers facilitator counters and latency histograms
// with the default registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	results := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402",
			Name:      "results_total",
			Help:      "verify/settle results by operation, network and outcome",
		},
		[]string{"operation", "network", "outcome"},
	)

	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402",
			Name:      "operation_duration_seconds",
			Help:      "verify/settle latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "network"},
	)

	prometheus.MustRegister(results, latency)

	return &PrometheusRecorder{results: results, latency: latency}
}

func (p *PrometheusRecorder) CountResult(operation, network, outcome string) {
	p.results.WithLabelValues(operation, network, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveDuration(operation, network string, d time.Duration) {
	p.latency.WithLabelValues(operation, network).Observe(d.Seconds())
}
