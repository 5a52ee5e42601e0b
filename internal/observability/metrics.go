package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the scoring pipeline.
type Metrics struct {
	FetchRequests *prometheus.CounterVec   // labels: endpoint, outcome={success,error,aborted}
	FetchRetries  *prometheus.CounterVec   // labels: endpoint
	FetchDuration *prometheus.HistogramVec // labels: endpoint

	CacheLookups *prometheus.CounterVec // labels: layer={url,regional,persisted}, result={hit,miss}

	ScoresComputed prometheus.Counter
	DegradedInputs *prometheus.CounterVec // labels: source={weather,light_pollution,aqi,forecast}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchRequests,
		m.FetchRetries,
		m.FetchDuration,
		m.CacheLookups,
		m.ScoresComputed,
		m.DegradedInputs,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siqs",
			Name:      "fetch_requests_total",
			Help:      "Terminal outbound fetch outcomes by endpoint.",
		}, []string{"endpoint", "outcome"}),
		FetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siqs",
			Name:      "fetch_retries_total",
			Help:      "Retry attempts issued by the fetch layer.",
		}, []string{"endpoint"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "siqs",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a complete fetch including retries.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siqs",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by layer and result.",
		}, []string{"layer", "result"}),
		ScoresComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "siqs",
			Name:      "scores_computed_total",
			Help:      "Total composite scores computed.",
		}),
		DegradedInputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siqs",
			Name:      "degraded_inputs_total",
			Help:      "Score computations that fell back to a default input.",
		}, []string{"source"}),
	}
}
