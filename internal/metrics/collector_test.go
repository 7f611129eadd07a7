package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/types"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.cacheHits)
	assert.NotNil(t, collector.cacheMisses)
	assert.NotNil(t, collector.cacheOperationsTotal)
	assert.NotNil(t, collector.cacheEntries)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(nextTestNamespace(), nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/v1/cache", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/v1/cache", 404, 50*time.Millisecond, 512, 1024)

	// 2xx 与 4xx 各一个序列
	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/v1/cache", "4xx")))
}

func TestCollector_RecordHitsAndMisses(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHit(types.LevelL1)
	collector.RecordHit(types.LevelL1)
	collector.RecordMiss(types.LevelL1)
	collector.RecordHit(types.LevelL2)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.cacheHits.WithLabelValues("l1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheMisses.WithLabelValues("l1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheHits.WithLabelValues("l2")))
}

func TestCollector_RecordOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordOperation(types.OpSet, types.LevelAll, true, time.Millisecond)
	collector.RecordOperation(types.OpSet, types.LevelAll, false, time.Millisecond)
	collector.RecordOperation(types.OpGet, types.LevelL3, true, 2*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheOperationsTotal.WithLabelValues("set", "all", "failure")))
	assert.Equal(t, 3, testutil.CollectAndCount(collector.cacheOperationsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.cacheOperationDuration))
}

func TestCollector_RecordEvictionsAndPropagation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordEviction(types.LevelL1)
	collector.RecordPropagationError(types.LevelL2)
	collector.RecordSize(types.LevelL3, 42)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cacheEvictions.WithLabelValues("l1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cachePropagationErrors.WithLabelValues("l2")))
	assert.Equal(t, float64(42), testutil.ToFloat64(collector.cacheEntries.WithLabelValues("l3")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordHit(types.LevelL1)
			collector.RecordOperation(types.OpGet, types.LevelL1, true, time.Microsecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.cacheHits.WithLabelValues("l1")))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	// 创建自定义 registry
	registry := prometheus.NewRegistry()

	// 创建 collector（会自动注册到默认 registry）
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	// 手动注册到自定义 registry
	registry.MustRegister(collector.cacheHits)
	registry.MustRegister(collector.cacheMisses)

	collector.RecordHit(types.LevelL2)

	families, err := registry.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(301))
	assert.Equal(t, "4xx", statusCode(429))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(100))
}
