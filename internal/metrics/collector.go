// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 检索指标
	retrievalsTotal     *prometheus.CounterVec
	retrievalDuration   *prometheus.HistogramVec
	retrievalCandidates *prometheus.HistogramVec
	backendFailures     *prometheus.CounterVec

	// 重排指标
	rerankRequestsTotal *prometheus.CounterVec
	rerankDuration      *prometheus.HistogramVec
	rerankFallbacks     prometheus.Counter

	// 摄取指标
	ingestChunksTotal *prometheus.CounterVec
	ingestDuration    *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 检索指标
	c.retrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retrieval requests",
		},
		[]string{"mode", "status"},
	)

	c.retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"mode"},
	)

	c.retrievalCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_candidates",
			Help:      "Candidate count per pipeline stage",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200},
		},
		[]string{"stage"}, // stage: vector, graph, expanded, merged, final
	)

	c.backendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failures_total",
			Help:      "Total number of retrieval backend failures",
		},
		[]string{"backend"},
	)

	// 重排指标
	c.rerankRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_requests_total",
			Help:      "Total number of rerank requests",
		},
		[]string{"provider", "status"},
	)

	c.rerankDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rerank_duration_seconds",
			Help:      "Rerank scoring duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider"},
	)

	c.rerankFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_fallbacks_total",
			Help:      "Total number of rerank failures degraded to pre-rerank order",
		},
	)

	// 摄取指标
	c.ingestChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Total number of chunks ingested",
		},
		[]string{"store", "status"},
	)

	c.ingestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Ingestion batch duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"store"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔍 检索指标记录
// =============================================================================

// RecordRetrieval 记录一次检索请求
func (c *Collector) RecordRetrieval(mode, status string, duration time.Duration) {
	c.retrievalsTotal.WithLabelValues(mode, status).Inc()
	c.retrievalDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordCandidates 记录某一阶段的候选数量
func (c *Collector) RecordCandidates(stage string, count int) {
	c.retrievalCandidates.WithLabelValues(stage).Observe(float64(count))
}

// RecordBackendFailure 记录后端失败
func (c *Collector) RecordBackendFailure(backend string) {
	c.backendFailures.WithLabelValues(backend).Inc()
}

// =============================================================================
// 🎯 重排指标记录
// =============================================================================

// RecordRerank 记录一次重排
func (c *Collector) RecordRerank(provider, status string, duration time.Duration) {
	c.rerankRequestsTotal.WithLabelValues(provider, status).Inc()
	c.rerankDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRerankFallback 记录重排降级
func (c *Collector) RecordRerankFallback() {
	c.rerankFallbacks.Inc()
}

// =============================================================================
// 📥 摄取指标记录
// =============================================================================

// RecordIngest 记录一次摄取批次
func (c *Collector) RecordIngest(store, status string, chunks int, duration time.Duration) {
	c.ingestChunksTotal.WithLabelValues(store, status).Add(float64(chunks))
	c.ingestDuration.WithLabelValues(store).Observe(duration.Seconds())
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}
