package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus instruments.
type Metrics struct {
	requests        *prometheus.CounterVec
	redirects       *prometheus.CounterVec
	backendAttempts prometheus.Histogram
	queueWait       prometheus.Histogram
	requestSeconds  prometheus.Histogram
	compactions     prometheus.Counter
}

// NewMetrics registers the gateway instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutorgate",
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome (ok, redirect, or error code).",
		}, []string{"outcome"}),
		redirects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutorgate",
			Name:      "redirects_total",
			Help:      "Policy redirects by kind.",
		}, []string{"kind"}),
		backendAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tutorgate",
			Name:      "backend_attempts",
			Help:      "Backend attempts consumed per successful call.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		queueWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tutorgate",
			Name:      "queue_wait_seconds",
			Help:      "Time spent waiting for an admission slot.",
			Buckets:   prometheus.DefBuckets,
		}),
		requestSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tutorgate",
			Name:      "request_seconds",
			Help:      "End-to-end chat request duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		compactions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tutorgate",
			Name:      "conversation_compactions_total",
			Help:      "Conversations folded into their summary on save.",
		}),
	}
}

func (m *Metrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRedirect(kind string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeCall(attempts int, queueWait, total float64) {
	if m == nil {
		return
	}
	m.backendAttempts.Observe(float64(attempts))
	m.queueWait.Observe(queueWait)
	m.requestSeconds.Observe(total)
}

func (m *Metrics) observeCompaction() {
	if m == nil {
		return
	}
	m.compactions.Inc()
}
