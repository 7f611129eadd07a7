// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/types"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 缓存指标
	cacheHits              *prometheus.CounterVec
	cacheMisses            *prometheus.CounterVec
	cacheOperationsTotal   *prometheus.CounterVec
	cacheOperationDuration *prometheus.HistogramVec
	cacheEvictions         *prometheus.CounterVec
	cachePropagationErrors *prometheus.CounterVec
	cacheEntries           *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。指标注册到默认 Registry，同一 namespace 只能创建一次。
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits per level",
		},
		[]string{"level"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses per level",
		},
		[]string{"level"},
	)

	c.cacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "level", "status"},
	)

	c.cacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_operation_duration_seconds",
			Help:      "Cache operation duration in seconds",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation", "level"},
	)

	c.cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of capacity evictions per level",
		},
		[]string{"level"},
	)

	c.cachePropagationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_propagation_errors_total",
			Help:      "Total number of failed write-back propagations per target level",
		},
		[]string{"level"},
	)

	c.cacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of entries last observed per level",
		},
		[]string{"level"},
	)

	c.logger.Debug("metrics collector registered", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordHit 记录缓存命中
func (c *Collector) RecordHit(level types.Level) {
	c.cacheHits.WithLabelValues(string(level)).Inc()
}

// RecordMiss 记录缓存未命中
func (c *Collector) RecordMiss(level types.Level) {
	c.cacheMisses.WithLabelValues(string(level)).Inc()
}

// RecordOperation 记录一次缓存操作
func (c *Collector) RecordOperation(op types.OperationType, level types.Level, success bool, duration time.Duration) {
	c.cacheOperationsTotal.WithLabelValues(string(op), string(level), status(success)).Inc()
	c.cacheOperationDuration.WithLabelValues(string(op), string(level)).Observe(duration.Seconds())
}

// RecordEviction 记录容量淘汰
func (c *Collector) RecordEviction(level types.Level) {
	c.cacheEvictions.WithLabelValues(string(level)).Inc()
}

// RecordPropagationError 记录后台传播失败
func (c *Collector) RecordPropagationError(level types.Level) {
	c.cachePropagationErrors.WithLabelValues(string(level)).Inc()
}

// RecordSize 记录层级条目数
func (c *Collector) RecordSize(level types.Level, entries int64) {
	c.cacheEntries.WithLabelValues(string(level)).Set(float64(entries))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
