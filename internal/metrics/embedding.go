package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding Prometheus metrics. The "space" label distinguishes the
// 1024-dim text space from the 512-dim joint visual space.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fonds",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"space", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fonds",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"space", "model"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fonds",
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors",
		},
		[]string{"space", "model", "error_type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fonds",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"space", "result"}, // result: "hit" / "miss"
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fonds",
			Name:      "search_requests_total",
			Help:      "Search requests by mode and outcome",
		},
		[]string{"mode", "status"}, // status: "ok" / "degraded" / "error"
	)

	DanglingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fonds",
			Name:      "dangling_hits_total",
			Help:      "Vector index hits with no matching metadata record",
		},
	)
)

var registered bool

// Register registers the search and embedding metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingErrorsTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(DanglingHitsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
	registered = true
}
