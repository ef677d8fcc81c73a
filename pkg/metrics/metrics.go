// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "fixit_rag"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 业务指标 - 入库
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of ingest calls",
		},
		[]string{"record_type", "status"},
	)

	IngestChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks",
			Help:      "Number of chunks produced per document",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	ChunkFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunk_failures_total",
			Help:      "Total number of chunks that failed to embed or store",
		},
	)

	// 业务指标 - 检索
	SearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of similarity searches",
		},
		[]string{"status"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Similarity search duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// 向量化指标
	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "duration_seconds",
			Help:      "Embedding call duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"provider"},
	)

	EmbeddingCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_total",
			Help:      "Embedding cache lookups",
		},
		[]string{"result"},
	)

	// 向量存储指标
	VectorStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vector_store",
			Name:      "operation_duration_seconds",
			Help:      "Vector store operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"backend", "operation", "status"},
	)

	VectorStoreAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vector_store",
			Name:      "available",
			Help:      "Whether the vector store backend is reachable (1) or not (0)",
		},
		[]string{"backend"},
	)

	// 限流指标
	RateLimitRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"key"},
	)
)

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordIngest 记录入库结果
func RecordIngest(recordType string, chunks, failed int) {
	status := "success"
	switch {
	case failed > 0 && failed == chunks:
		status = "failed"
	case failed > 0:
		status = "partial"
	}
	IngestTotal.WithLabelValues(recordType, status).Inc()
	IngestChunks.Observe(float64(chunks))
	if failed > 0 {
		ChunkFailuresTotal.Add(float64(failed))
	}
}

// RecordSearch 记录检索
func RecordSearch(status string, duration float64) {
	SearchTotal.WithLabelValues(status).Inc()
	SearchDuration.Observe(duration)
}

// RecordVectorStoreOp 记录向量存储操作
func RecordVectorStoreOp(backend, operation string, err error, duration float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	VectorStoreDuration.WithLabelValues(backend, operation, status).Observe(duration)
}

// SetVectorStoreAvailable 设置后端可用状态
func SetVectorStoreAvailable(backend string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	VectorStoreAvailable.WithLabelValues(backend).Set(v)
}
