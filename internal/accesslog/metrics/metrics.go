package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for access log operations.
type Metrics struct {
	EntriesRecorded *prometheus.CounterVec
	AppendFailures  prometheus.Counter
	PublishFailures prometheus.Counter
	AppendLatency   prometheus.Histogram
}

// New registers and returns access log metrics collectors.
func New() *Metrics {
	return &Metrics{
		EntriesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctum_access_log_entries_total",
			Help: "Total number of AI access events recorded, labeled by feature",
		}, []string{"feature"}),
		AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sanctum_access_log_append_failures_total",
			Help: "Total number of failed access log writes; each one means an exercised access is missing from the durable trail",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sanctum_access_log_publish_failures_total",
			Help: "Total number of failed best-effort fan-out publishes of access log entries",
		}),
		AppendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanctum_access_log_append_latency_seconds",
			Help:    "Latency of access log append operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementEntriesRecorded(feature string) {
	m.EntriesRecorded.WithLabelValues(feature).Inc()
}

func (m *Metrics) IncrementAppendFailures() {
	m.AppendFailures.Inc()
}

func (m *Metrics) IncrementPublishFailures() {
	m.PublishFailures.Inc()
}

func (m *Metrics) ObserveAppendLatency(seconds float64) {
	m.AppendLatency.Observe(seconds)
}
