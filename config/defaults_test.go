package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, CacheConfig{}, cfg.Cache)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEmpty(t, cfg.Log.Level)
}

func TestDefaultCacheConfig(t *testing.T) {
	cfg := DefaultCacheConfig()

	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1000, cfg.OperationLogSize)
	assert.Equal(t, 24*time.Hour, cfg.OperationLogRetention)

	assert.True(t, cfg.L1.Enabled)
	assert.Equal(t, 1000, cfg.L1.MaxSize)
	assert.True(t, cfg.L1.UpdateAgeOnGet)

	assert.False(t, cfg.L2.Enabled)
	assert.Equal(t, "cache:", cfg.L2.KeyPrefix)

	assert.False(t, cfg.L3.Enabled)
	assert.Equal(t, int64(10*1024*1024), cfg.L3.MaxFileSize)
	assert.Equal(t, time.Hour, cfg.L3.CleanupInterval)

	// 写穿与回写互斥，默认回写
	assert.False(t, cfg.Strategy.WriteThrough)
	assert.True(t, cfg.Strategy.WriteBack)
	assert.Equal(t, "lru", cfg.Strategy.EvictionPolicy)

	assert.NoError(t, cfg.Validate())
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "tiercache", cfg.ServiceName)
}
