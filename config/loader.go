// =============================================================================
// 📦 TierCache 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("TIERCACHE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 TierCache 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Redis L2 连接配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Cache 多级缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求数限制（0 表示不限制）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 拨号超时
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// CacheConfig 多级缓存配置
type CacheConfig struct {
	// 未显式指定 TTL 时的条目存活时间
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// MGet 单批次键数量
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`
	// 操作日志容量
	OperationLogSize int `yaml:"operation_log_size" env:"OPERATION_LOG_SIZE"`
	// 操作日志保留时长，清理时删除更早的记录
	OperationLogRetention time.Duration `yaml:"operation_log_retention" env:"OPERATION_LOG_RETENTION"`
	// 回写传播 worker 数
	PropagationWorkers int `yaml:"propagation_workers" env:"PROPAGATION_WORKERS"`
	// 回写传播队列长度
	PropagationQueue int `yaml:"propagation_queue" env:"PROPAGATION_QUEUE"`

	L1       L1Config       `yaml:"l1" env:"L1"`
	L2       L2Config       `yaml:"l2" env:"L2"`
	L3       L3Config       `yaml:"l3" env:"L3"`
	Strategy StrategyConfig `yaml:"strategy" env:"STRATEGY"`
}

// L1Config 进程内缓存配置
type L1Config struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 最大条目数
	MaxSize int `yaml:"max_size" env:"MAX_SIZE"`
	// 条目在 L1 中的最长驻留时间（0 表示只受条目 TTL 约束）
	MaxAge time.Duration `yaml:"max_age" env:"MAX_AGE"`
	// 读取时刷新最近使用顺序与驻留时间
	UpdateAgeOnGet bool `yaml:"update_age_on_get" env:"UPDATE_AGE_ON_GET"`
}

// L2Config Redis 层配置
type L2Config struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 键前缀，用于与同一 Redis 的其他使用方隔离
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 默认 TTL
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// 是否启用 deflate 压缩
	CompressionEnabled bool `yaml:"compression_enabled" env:"COMPRESSION_ENABLED"`
}

// L3Config 磁盘层配置
type L3Config struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 根目录
	BasePath string `yaml:"base_path" env:"BASE_PATH"`
	// 单个文件最大字节数，超过则拒绝写入
	MaxFileSize int64 `yaml:"max_file_size" env:"MAX_FILE_SIZE"`
	// 过期清理间隔
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	// 是否启用 deflate 压缩
	CompressionEnabled bool `yaml:"compression_enabled" env:"COMPRESSION_ENABLED"`
}

// StrategyConfig 层间传播策略
type StrategyConfig struct {
	// 写穿：Set 同步写入所有层
	WriteThrough bool `yaml:"write_through" env:"WRITE_THROUGH"`
	// 回写：Set 同步写 L1，后台传播到 L2/L3；读命中下层时回填上层
	WriteBack bool `yaml:"write_back" env:"WRITE_BACK"`
	// 读穿：GetOrLoad 全部未命中时加载并写入缓存
	ReadThrough bool `yaml:"read_through" env:"READ_THROUGH"`
	// L1 淘汰策略: lru, lfu, fifo
	EvictionPolicy string `yaml:"eviction_policy" env:"EVICTION_POLICY"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "TIERCACHE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Validate 验证缓存配置
func (c *CacheConfig) Validate() error {
	var errs []string

	if c.DefaultTTL <= 0 {
		errs = append(errs, "cache.default_ttl must be positive")
	}
	if c.L1.Enabled && c.L1.MaxSize <= 0 {
		errs = append(errs, "cache.l1.max_size must be positive")
	}
	if c.L3.Enabled {
		if c.L3.BasePath == "" {
			errs = append(errs, "cache.l3.base_path is required")
		}
		if c.L3.MaxFileSize <= 0 {
			errs = append(errs, "cache.l3.max_file_size must be positive")
		}
	}
	if c.Strategy.WriteThrough && c.Strategy.WriteBack {
		errs = append(errs, "cache.strategy: write_through and write_back are mutually exclusive")
	}
	switch c.Strategy.EvictionPolicy {
	case "", "lru", "lfu", "fifo":
	default:
		errs = append(errs, fmt.Sprintf("cache.strategy.eviction_policy %q not supported", c.Strategy.EvictionPolicy))
	}
	if !c.L1.Enabled && !c.L2.Enabled && !c.L3.Enabled {
		errs = append(errs, "at least one cache level must be enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
