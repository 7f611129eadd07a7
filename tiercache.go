// Package tiercache is the top-level convenience entry point for building a
// multi-level cache with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/tiercache"
//
//	c, err := tiercache.New()                                        // L1 only
//	c, err := tiercache.New(tiercache.WithRedis("localhost:6379"))   // L1 + L2
//	c, err := tiercache.New(tiercache.WithDisk("./data/cache"), tiercache.WithWriteThrough())
//
// For full control build a config.CacheConfig and call [cache.New] directly.
package tiercache

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/cache"
	"github.com/BaSui01/tiercache/config"
)

// Cache is the coordinator returned by [New].
type Cache = cache.MultiLevelCache

// Option configures the cache created by [New].
type Option func(*options)

type options struct {
	cfg       config.CacheConfig
	redis     *config.RedisConfig
	logger    *zap.Logger
	extraOpts []cache.Option
}

// WithRedis enables L2 against the Redis server at addr.
// The connection is owned by the cache and closed by Close.
func WithRedis(addr string) Option {
	return func(o *options) {
		rc := config.DefaultRedisConfig()
		rc.Addr = addr
		o.redis = &rc
		o.cfg.L2.Enabled = true
	}
}

// WithDisk enables L3 rooted at dir.
func WithDisk(dir string) Option {
	return func(o *options) {
		o.cfg.L3.Enabled = true
		o.cfg.L3.BasePath = dir
	}
}

// WithMaxEntries bounds L1.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.cfg.L1.MaxSize = n }
}

// WithTTL sets the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.cfg.DefaultTTL = ttl }
}

// WithWriteThrough writes every level synchronously instead of propagating
// lower levels in the background.
func WithWriteThrough() Option {
	return func(o *options) {
		o.cfg.Strategy.WriteThrough = true
		o.cfg.Strategy.WriteBack = false
	}
}

// WithEvictionPolicy selects "lru", "lfu" or "fifo" for L1.
func WithEvictionPolicy(policy string) Option {
	return func(o *options) { o.cfg.Strategy.EvictionPolicy = policy }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCacheOptions passes options straight to [cache.New].
func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *options) { o.extraOpts = append(o.extraOpts, opts...) }
}

// New creates a cache starting from config.DefaultCacheConfig.
func New(opts ...Option) (*Cache, error) {
	o := options{cfg: config.DefaultCacheConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	var cacheOpts []cache.Option
	if o.logger != nil {
		cacheOpts = append(cacheOpts, cache.WithLogger(o.logger))
	}
	if o.redis != nil {
		cacheOpts = append(cacheOpts, cache.WithRedisConfig(*o.redis))
	}
	cacheOpts = append(cacheOpts, o.extraOpts...)

	return cache.New(o.cfg, cacheOpts...)
}
