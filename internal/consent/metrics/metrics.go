package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for consent operations.
type Metrics struct {
	ConsentsGranted    *prometheus.CounterVec
	ConsentsDenied     prometheus.Counter
	ConsentsRevoked    prometheus.Counter
	ConsentCheckPassed *prometheus.CounterVec
	ConsentCheckFailed *prometheus.CounterVec
	Deauthorizations   prometheus.Counter
	GrantLatency       prometheus.Histogram
}

// New registers and returns consent metrics collectors.
func New() *Metrics {
	return &Metrics{
		ConsentsGranted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctum_consents_granted_total",
			Help: "Total number of feature consents granted, labeled by feature",
		}, []string{"feature"}),
		ConsentsDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sanctum_consents_denied_total",
			Help: "Total number of consent denials by participants",
		}),
		ConsentsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sanctum_consents_revoked_total",
			Help: "Total number of consent revocations",
		}),
		ConsentCheckPassed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctum_consent_checks_passed_total",
			Help: "Total number of evaluations that allowed AI access, labeled by feature",
		}, []string{"feature"}),
		ConsentCheckFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctum_consent_checks_failed_total",
			Help: "Total number of evaluations that denied AI access, labeled by feature",
		}, []string{"feature"}),
		Deauthorizations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sanctum_ai_deauthorizations_total",
			Help: "Total number of immediate deauthorizations triggered by revokes under a unanimous rule",
		}),
		GrantLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanctum_consent_grant_latency_seconds",
			Help:    "Latency of consent grant operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementConsentsGranted(feature string) {
	m.ConsentsGranted.WithLabelValues(feature).Inc()
}

func (m *Metrics) IncrementConsentsDenied() {
	m.ConsentsDenied.Inc()
}

func (m *Metrics) IncrementConsentsRevoked() {
	m.ConsentsRevoked.Inc()
}

func (m *Metrics) IncrementConsentCheckPassed(feature string) {
	m.ConsentCheckPassed.WithLabelValues(feature).Inc()
}

func (m *Metrics) IncrementConsentCheckFailed(feature string) {
	m.ConsentCheckFailed.WithLabelValues(feature).Inc()
}

func (m *Metrics) IncrementDeauthorizations() {
	m.Deauthorizations.Inc()
}

func (m *Metrics) ObserveGrantLatency(seconds float64) {
	m.GrantLatency.Observe(seconds)
}
