package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/config"
	"github.com/BaSui01/tiercache/types"
)

// =============================================================================
// 构造选项
// =============================================================================

// Option 配置 MultiLevelCache
type Option func(*options)

type options struct {
	logger      *zap.Logger
	clock       types.Clock
	recorder    Recorder
	redisClient redis.UniversalClient
	redisConfig *config.RedisConfig
	l2          Tier
	l3          Tier
}

// WithLogger 设置日志，默认不输出
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock 设置时间源，所有过期判断都经过它
func WithClock(clock types.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithRedisClient 使用已有的 Redis 客户端构建 L2，客户端由调用方关闭
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) { o.redisClient = client }
}

// WithRedisConfig 按配置拨号构建 L2，连接随 Close 一起关闭
func WithRedisConfig(cfg config.RedisConfig) Option {
	return func(o *options) { o.redisConfig = &cfg }
}

// WithL2Tier 直接替换 L2 实现
func WithL2Tier(t Tier) Option {
	return func(o *options) { o.l2 = t }
}

// WithL3Tier 直接替换 L3 实现
func WithL3Tier(t Tier) Option {
	return func(o *options) { o.l3 = t }
}

// =============================================================================
// 单次调用选项
// =============================================================================

// CallOption 调整单次 get/set 的行为
type CallOption func(*callOptions)

type callOptions struct {
	skip     map[types.Level]bool
	ttl      time.Duration
	metadata *types.ItemMetadata
}

func newCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o callOptions) skipped(level types.Level) bool {
	return o.skip[level]
}

func skipLevel(level types.Level) CallOption {
	return func(o *callOptions) {
		if o.skip == nil {
			o.skip = make(map[types.Level]bool, 3)
		}
		o.skip[level] = true
	}
}

// SkipL1 本次调用跳过 L1
func SkipL1() CallOption { return skipLevel(types.LevelL1) }

// SkipL2 本次调用跳过 L2
func SkipL2() CallOption { return skipLevel(types.LevelL2) }

// SkipL3 本次调用跳过 L3
func SkipL3() CallOption { return skipLevel(types.LevelL3) }

// Skip 按层级跳过，供 HTTP 等按名称解析层级的调用方使用
func Skip(levels ...types.Level) CallOption {
	return func(o *callOptions) {
		for _, l := range levels {
			skipLevel(l)(o)
		}
	}
}

// WithTTL 设置条目 TTL，<= 0 时使用配置的默认值
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) { o.ttl = ttl }
}

// WithMetadata 附加条目元数据
func WithMetadata(md types.ItemMetadata) CallOption {
	return func(o *callOptions) { o.metadata = &md }
}
