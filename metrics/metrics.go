package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docsearch"

// Search modes.
const (
	ModePage   = "page"
	ModeStream = "stream"
	ModeLinked = "linked"
)

// Outcomes shared by search requests and backend round trips.
const (
	OutcomeOK                = "ok"
	OutcomeEmpty             = "empty"
	OutcomeInvalid           = "invalid"
	OutcomeHighlightRejected = "highlight_rejected"
	OutcomeRejected          = "rejected"
	OutcomeUnavailable       = "unavailable"
	OutcomeCancelled         = "cancelled"
	OutcomeError             = "error"
)

type Metrics struct {
	searchRequests     *prometheus.CounterVec
	backendRequests    *prometheus.CounterVec
	backendDuration    prometheus.Histogram
	highlightFallbacks prometheus.Counter
	streamedDocuments  prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by mode and outcome",
		}, []string{"mode", "outcome"}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Round trips to the search backend by outcome",
		}, []string{"outcome"}),
		backendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Search backend round trip duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		highlightFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "highlight_fallbacks_total",
			Help:      "Searches retried without highlighting after the backend rejected it",
		}),
		streamedDocuments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streamed_documents_total",
			Help:      "Documents emitted by streaming searches",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.searchRequests, m.backendRequests, m.backendDuration, m.highlightFallbacks, m.streamedDocuments)
	}
	return m
}

func (m *Metrics) ObserveSearch(mode string, outcome string) {
	m.searchRequests.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ObserveBackend(outcome string, elapsed time.Duration) {
	m.backendRequests.WithLabelValues(outcome).Inc()
	m.backendDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) HighlightFallback() {
	m.highlightFallbacks.Inc()
}

func (m *Metrics) StreamedDocuments(count int) {
	m.streamedDocuments.Add(float64(count))
}
