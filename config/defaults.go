// =============================================================================
// 📦 TierCache 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Redis:     DefaultRedisConfig(),
		Cache:     DefaultCacheConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    1000,
		RateLimitBurst:  2000,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,

		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultCacheConfig 返回默认缓存配置
// 默认只启用 L1，L2/L3 需要显式开启
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL:            time.Hour,
		BatchSize:             100,
		OperationLogSize:      1000,
		OperationLogRetention: 24 * time.Hour,
		PropagationWorkers:    8,
		PropagationQueue:      1024,
		L1: L1Config{
			Enabled:        true,
			MaxSize:        1000,
			MaxAge:         5 * time.Minute,
			UpdateAgeOnGet: true,
		},
		L2: L2Config{
			Enabled:            false,
			KeyPrefix:          "cache:",
			DefaultTTL:         time.Hour,
			CompressionEnabled: true,
		},
		L3: L3Config{
			Enabled:            false,
			BasePath:           "./data/cache",
			MaxFileSize:        10 * 1024 * 1024, // 10MB
			CleanupInterval:    time.Hour,
			CompressionEnabled: true,
		},
		Strategy: StrategyConfig{
			WriteThrough:   false,
			WriteBack:      true,
			ReadThrough:    true,
			EvictionPolicy: "lru",
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "tiercache",
		SampleRate:   0.1,
	}
}
