// Package metrics provides Prometheus metrics for the searchd service
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for searchd
type Metrics struct {
	// Search metrics
	SearchRequests    prometheus.Counter
	SearchDuration    prometheus.Histogram
	SearchErrors      prometheus.Counter
	SearchResultCount prometheus.Histogram

	// Retrieval stage metrics
	EmbeddingDuration    prometheus.Histogram
	VectorSearchDuration prometheus.Histogram
	TextSearchDuration   prometheus.Histogram
	FusionCandidates     prometheus.Histogram

	// Rerank metrics
	RerankRequests       prometheus.Counter
	RerankDuration       prometheus.Histogram
	RerankErrors         prometheus.Counter
	RerankCandidateCount prometheus.Histogram
	RerankPassthroughs   prometheus.Counter
	RerankFallbacks      prometheus.Counter
	DroppedCandidates    prometheus.Counter
	PromptTruncations    prometheus.Counter

	// Provider metrics
	ProviderCalls      *prometheus.CounterVec
	ProviderDuration   *prometheus.HistogramVec
	ProviderSkips      *prometheus.CounterVec
	CircuitBreakerOpen *prometheus.GaugeVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheErrors *prometheus.CounterVec

	// Resource metrics
	DatabaseConnections *prometheus.GaugeVec
	RateLimitHits       prometheus.Counter
	SlowRequests        *prometheus.CounterVec
}

// New creates and registers all searchd metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all searchd metrics on the given registry. Tests
// pass a fresh registry so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Search metrics
		SearchRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "searchd_search_requests_total",
			Help: "Total number of search requests",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchd_search_duration_seconds",
			Help:    "Duration of search operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		}),
		SearchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "searchd_search_errors_total",
			Help: "Total number of search errors",
		}),
		SearchResultCount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchd_search_results_count",
			Help:    "Number of results returned per search",
			Buckets: prometheus.LinearBuckets(0, 5, 20), // 0 to 100 results
		}),

		// Retrieval stage metrics
		EmbeddingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchd_embedding_duration_seconds",
			Help:    "Duration of query embedding generation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}),
		VectorSearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchd_vector_search_duration_seconds",
			Help:    "Duration of pgvector similarity queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		TextSearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchd_text_search_duration_seconds",
			Help:    "Duration of full text queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		FusionCandidates: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchd_fusion_candidates_count",
			Help:    "Number of distinct candidates entering rank fusion",
			Buckets: prometheus.LinearBuckets(0, 25, 13), // 0 to 300 candidates
		}),

		// Rerank metrics
		RerankRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "searchd_rerank_requests_total",
			Help: "Total number of rerank requests",
		}),
		RerankDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchd_rerank_duration_seconds",
			Help:    "End to end rerank duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		}),
		RerankErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "searchd_rerank_errors_total",
			Help: "Total number of rerank errors",
		}),
		RerankCandidateCount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchd_rerank_candidates_count",
			Help:    "Number of candidates submitted per rerank request",
			Buckets: prometheus.LinearBuckets(0, 5, 11), // 0 to 50 candidates
		}),
		RerankPassthroughs: factory.NewCounter(prometheus.CounterOpts{
			Name: "searchd_rerank_passthrough_total",
			Help: "Total number of rerank requests degraded to passthrough ordering",
		}),
		RerankFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "searchd_rerank_fallback_total",
			Help: "Total number of rerank requests served by the fallback provider",
		}),
		DroppedCandidates: factory.NewCounter(prometheus.CounterOpts{
			Name: "searchd_rerank_dropped_candidates_total",
			Help: "Total number of provider result entries dropped for unknown candidate ids",
		}),
		PromptTruncations: factory.NewCounter(prometheus.CounterOpts{
			Name: "searchd_rerank_prompt_truncations_total",
			Help: "Total number of prompts that hit the character budget",
		}),

		// Provider metrics
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchd_provider_calls_total",
			Help: "Total number of LLM provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		ProviderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "searchd_provider_duration_seconds",
			Help:    "Duration of LLM provider calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}, []string{"provider"}),
		ProviderSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchd_provider_skips_total",
			Help: "Total number of provider calls skipped by reason",
		}, []string{"provider", "reason"}),
		CircuitBreakerOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "searchd_circuit_breaker_state",
			Help: "Circuit breaker state (0 = closed, 1 = open, 2 = half open)",
		}, []string{"service"}),

		// Cache metrics
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchd_cache_hits_total",
			Help: "Total number of cache hits by layer",
		}, []string{"layer"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchd_cache_misses_total",
			Help: "Total number of cache misses by layer",
		}, []string{"layer"}),
		CacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchd_cache_errors_total",
			Help: "Total number of cache errors by layer and operation",
		}, []string{"layer", "operation"}),

		// Resource metrics
		DatabaseConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "searchd_database_connections",
			Help: "Database pool connections by state",
		}, []string{"state"}),
		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "searchd_rate_limit_hits_total",
			Help: "Total number of rate limited requests",
		}),
		SlowRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "searchd_slow_requests_total",
			Help: "Total number of requests exceeding the slow log threshold",
		}, []string{"route"}),
	}
}

// RecordSearch records metrics for one search operation.
func (m *Metrics) RecordSearch(resultCount int, duration float64, err error) {
	m.SearchRequests.Inc()
	m.SearchDuration.Observe(duration)
	m.SearchResultCount.Observe(float64(resultCount))

	if err != nil {
		m.SearchErrors.Inc()
	}
}

// RecordRerank records metrics for one rerank request.
func (m *Metrics) RecordRerank(candidateCount int, duration float64, err error) {
	m.RerankRequests.Inc()
	m.RerankDuration.Observe(duration)
	m.RerankCandidateCount.Observe(float64(candidateCount))

	if err != nil {
		m.RerankErrors.Inc()
	}
}

// RecordProviderCall records one provider attempt with its outcome.
func (m *Metrics) RecordProviderCall(provider, outcome string, duration float64) {
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(duration)
}

// RecordProviderSkip records a provider call that was never attempted.
func (m *Metrics) RecordProviderSkip(provider, reason string) {
	m.ProviderSkips.WithLabelValues(provider, reason).Inc()
}

// RecordCacheHit records a cache hit for a layer.
func (m *Metrics) RecordCacheHit(layer string) {
	m.CacheHits.WithLabelValues(layer).Inc()
}

// RecordCacheMiss records a cache miss for a layer.
func (m *Metrics) RecordCacheMiss(layer string) {
	m.CacheMisses.WithLabelValues(layer).Inc()
}

// RecordCacheError records a swallowed cache error.
func (m *Metrics) RecordCacheError(layer, operation string) {
	m.CacheErrors.WithLabelValues(layer, operation).Inc()
}

// SetCircuitBreakerState sets the breaker gauge for a service.
func (m *Metrics) SetCircuitBreakerState(service string, state float64) {
	m.CircuitBreakerOpen.WithLabelValues(service).Set(state)
}

// SetDatabasePoolStats updates the pool gauges from sql.DBStats counts.
func (m *Metrics) SetDatabasePoolStats(inUse, idle, waiting int) {
	m.DatabaseConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DatabaseConnections.WithLabelValues("idle").Set(float64(idle))
	m.DatabaseConnections.WithLabelValues("waiting").Set(float64(waiting))
}

// RecordSlowRequest records a request that exceeded the slow log threshold.
func (m *Metrics) RecordSlowRequest(route string) {
	m.SlowRequests.WithLabelValues(route).Inc()
}
