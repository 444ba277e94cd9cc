// Package metrics defines the Prometheus metric collectors used by the lookup
// and ingestion services and serves them for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	LookupsTotal         *prometheus.CounterVec
	LookupLatency        *prometheus.HistogramVec
	LookupCandidates     prometheus.Histogram
	VocabularyMutations  *prometheus.CounterVec
	VocabularySize       prometheus.Gauge
	IndexBuckets         prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CacheBreakerState    prometheus.Gauge
	CacheBreakerChanges  *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec
	EventsPublishedTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg means the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuzzy_lookups_total",
				Help: "Total fuzzy lookups by outcome (match, no_match, error).",
			},
			[]string{"outcome"},
		),
		LookupLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fuzzy_lookup_latency_seconds",
				Help:    "Fuzzy lookup latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
			},
			[]string{"cache_status"},
		),
		LookupCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fuzzy_lookup_candidates",
				Help:    "Number of candidates returned per lookup.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		VocabularyMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocabulary_mutations_total",
				Help: "Vocabulary mutations by operation (add, remove) and effect (applied, noop).",
			},
			[]string{"op", "effect"},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vocabulary_terms",
				Help: "Number of distinct terms in the fuzzy index.",
			},
		),
		IndexBuckets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fuzzy_index_buckets",
				Help: "Number of deletion-hash buckets in the fuzzy index.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of lookup cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of lookup cache misses.",
			},
		),
		CacheBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lookup_cache_breaker_state",
				Help: "State of the breaker guarding the lookup cache (0 closed, 1 open, 2 half-open).",
			},
		),
		CacheBreakerChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lookup_cache_breaker_transitions_total",
				Help: "Lookup cache breaker transitions by target state.",
			},
			[]string{"to"},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocabulary_events_consumed_total",
				Help: "Vocabulary events consumed by result (applied, malformed, failed).",
			},
			[]string{"result"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vocabulary_events_published_total",
				Help: "Vocabulary events published by status (ok, error).",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.LookupsTotal,
		m.LookupLatency,
		m.LookupCandidates,
		m.VocabularyMutations,
		m.VocabularySize,
		m.IndexBuckets,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheBreakerState,
		m.CacheBreakerChanges,
		m.EventsConsumedTotal,
		m.EventsPublishedTotal,
	)

	return m
}
