// Package metrics exposes Prometheus collectors for the search pipeline and HTTP API.
package metrics

import (
	"sync"
	"time"

	"github.com/lox/email-vector-engine/internal/intent"
	"github.com/lox/email-vector-engine/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "email_engine"

var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Completed searches by query type",
		},
		[]string{"query_type"},
	)

	SearchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_errors_total",
			Help:      "Searches aborted by a vector index failure",
		},
		[]string{"kind"}, // "connection" / "retrieval"
	)

	IntentParsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_parses_total",
			Help:      "Query intents produced, by parser",
		},
		[]string{"source"},
	)

	IntentFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_fallbacks_total",
			Help:      "Language model parses that fell back to regex parsing",
		},
		[]string{"reason"},
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Vector index query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SearchesTotal,
			SearchErrorsTotal,
			IntentParsesTotal,
			IntentFallbacksTotal,
			RetrievalDuration,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}

// Recorder feeds pipeline events into the collectors
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (*Recorder) ObserveSearch(queryType types.QueryType) {
	SearchesTotal.WithLabelValues(string(queryType)).Inc()
}

func (*Recorder) ObserveError(kind string) {
	SearchErrorsTotal.WithLabelValues(kind).Inc()
}

func (*Recorder) ObserveParse(source intent.Source, reason intent.FallbackReason) {
	IntentParsesTotal.WithLabelValues(string(source)).Inc()
	// regex-only requests are not fallbacks
	if reason != intent.FallbackNone && reason != intent.FallbackDisabled {
		IntentFallbacksTotal.WithLabelValues(string(reason)).Inc()
	}
}

func (*Recorder) ObserveRetrieval(d time.Duration) {
	RetrievalDuration.Observe(d.Seconds())
}
