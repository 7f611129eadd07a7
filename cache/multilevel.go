package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/tiercache/cache/disk"
	"github.com/BaSui01/tiercache/cache/memory"
	"github.com/BaSui01/tiercache/cache/redistier"
	"github.com/BaSui01/tiercache/config"
	"github.com/BaSui01/tiercache/internal/pool"
	"github.com/BaSui01/tiercache/types"
)

const instrumentationName = "github.com/BaSui01/tiercache/cache"

// Entry MSet 的一个条目，TTL 为 0 时使用调用选项或配置默认值
type Entry struct {
	Key   string        `json:"key"`
	Value any           `json:"value"`
	TTL   time.Duration `json:"ttl,omitempty"`
}

// MultiLevelCache 三级缓存协调器：读按 L1 → L2 → L3 顺序查询，写按
// write-through 或 write-back 策略分发。公开方法不向调用方返回层级错误，
// 未命中与失败分别以 (零值, false) 和 false 表示。
type MultiLevelCache struct {
	cfg config.CacheConfig

	l1    *memory.Store
	l2    Tier
	l3    Tier
	tiers []Tier // 已启用层级，按查询顺序

	logger   *zap.Logger
	now      types.Clock
	recorder Recorder
	tracer   trace.Tracer

	stats *statsTracker
	oplog *OperationLog

	propagation *pool.GoroutinePool
	order       *writeOrder
	errMu       sync.RWMutex
	errCh       chan PropagationError
	errClosed   bool

	loads singleflight.Group

	closed        atomic.Bool
	closeOnce     sync.Once
	closeErr      error
	stopCleanup   context.CancelFunc
	cleanupDone   chan struct{}
	ownedResource []closer
}

// New 按配置创建多级缓存。启用 L2 时必须通过 WithRedisClient、WithRedisConfig
// 或 WithL2Tier 之一提供后端。
func New(cfg config.CacheConfig, opts ...Option) (*MultiLevelCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}

	c := &MultiLevelCache{
		cfg:      cfg,
		logger:   o.logger.With(zap.String("component", "cache")),
		now:      o.clock,
		recorder: o.recorder,
		tracer:   otel.Tracer(instrumentationName),
		stats:    newStatsTracker(),
		oplog:    NewOperationLog(cfg.OperationLogSize),
		errCh:    make(chan PropagationError, 64),
		order:    newWriteOrder(),
	}

	if err := c.buildTiers(cfg, o); err != nil {
		c.releaseOwned()
		return nil, err
	}

	c.propagation = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers: cfg.PropagationWorkers,
		QueueSize:  cfg.PropagationQueue,
		OnError:    c.onPropagationError,
		PanicHandler: func(r any) {
			c.logger.Error("propagation task panicked", zap.Any("recover", r))
		},
	})

	if c.l3 != nil && cfg.L3.CleanupInterval > 0 {
		c.startCleanup(cfg.L3.CleanupInterval)
	}

	c.logger.Info("multi-level cache initialized",
		zap.Strings("levels", levelNames(c.tiers)),
		zap.Bool("write_through", cfg.Strategy.WriteThrough),
		zap.Bool("read_through", cfg.Strategy.ReadThrough),
		zap.String("eviction_policy", cfg.Strategy.EvictionPolicy),
	)
	return c, nil
}

func (c *MultiLevelCache) buildTiers(cfg config.CacheConfig, o options) error {
	if cfg.L1.Enabled {
		policy, err := memory.ParsePolicy(cfg.Strategy.EvictionPolicy)
		if err != nil {
			return err
		}
		c.l1 = memory.New(cfg.L1,
			memory.WithPolicy(policy),
			memory.WithClock(c.now),
			memory.WithOnEvict(c.onL1Evict),
		)
		c.tiers = append(c.tiers, c.l1)
	}

	if cfg.L2.Enabled {
		switch {
		case o.l2 != nil:
			c.l2 = o.l2
		case o.redisClient != nil:
			c.l2 = redistier.New(o.redisClient, cfg.L2,
				redistier.WithLogger(c.logger), redistier.WithClock(c.now))
		case o.redisConfig != nil:
			client, err := redistier.Dial(context.Background(), *o.redisConfig)
			if err != nil {
				return err
			}
			store := redistier.New(client, cfg.L2,
				redistier.WithLogger(c.logger), redistier.WithClock(c.now), redistier.OwnClient())
			c.l2 = store
			c.ownedResource = append(c.ownedResource, store)
		default:
			return errors.New("l2 enabled but no redis client, redis config or tier provided")
		}
		c.tiers = append(c.tiers, c.l2)
	}

	if cfg.L3.Enabled {
		if o.l3 != nil {
			c.l3 = o.l3
		} else {
			store, err := disk.New(cfg.L3, disk.WithLogger(c.logger), disk.WithClock(c.now))
			if err != nil {
				return err
			}
			c.l3 = store
		}
		c.tiers = append(c.tiers, c.l3)
	}
	return nil
}

// tier 返回层级实现，未启用时为 nil
func (c *MultiLevelCache) tier(level types.Level) Tier {
	switch level {
	case types.LevelL1:
		if c.l1 == nil {
			return nil
		}
		return c.l1
	case types.LevelL2:
		return c.l2
	case types.LevelL3:
		return c.l3
	}
	return nil
}

// Levels 返回已启用层级
func (c *MultiLevelCache) Levels() []types.Level {
	levels := make([]types.Level, 0, len(c.tiers))
	for _, t := range c.tiers {
		levels = append(levels, t.Level())
	}
	return levels
}

// =============================================================================
// 读取
// =============================================================================

// Get 读取原始 JSON 值
func (c *MultiLevelCache) Get(ctx context.Context, key string, opts ...CallOption) (json.RawMessage, bool) {
	item, _, ok := c.lookup(ctx, key, newCallOptions(opts))
	if !ok {
		return nil, false
	}
	return item.Value, true
}

// GetItem 读取完整条目及命中层级
func (c *MultiLevelCache) GetItem(ctx context.Context, key string, opts ...CallOption) (*types.CacheItem, types.Level, bool) {
	return c.lookup(ctx, key, newCallOptions(opts))
}

// lookup 依次查询 L1、L2、L3。层级故障记为该层未命中，不影响后续层级。
func (c *MultiLevelCache) lookup(ctx context.Context, key string, o callOptions) (*types.CacheItem, types.Level, bool) {
	if c.closed.Load() {
		return nil, "", false
	}

	start := time.Now()
	nk := NormalizeKey(key)

	ctx, span := c.tracer.Start(ctx, "cache.get", trace.WithAttributes(
		attribute.String("cache.operation", string(types.OpGet)),
		attribute.String("cache.key", nk),
	))
	defer span.End()

	for i, t := range c.tiers {
		level := t.Level()
		if o.skipped(level) {
			continue
		}

		item, err := t.Get(ctx, nk)
		if err != nil {
			if !types.IsCacheMiss(err) {
				c.logger.Warn("tier get failed, treating as miss",
					zap.String("level", string(level)), zap.String("key", nk), zap.Error(err))
			}
			c.stats.miss(level)
			c.recorder.RecordMiss(level)
			continue
		}

		c.stats.hit(level)
		c.recorder.RecordHit(level)
		if i > 0 && c.cfg.Strategy.WriteBack {
			c.promote(ctx, nk, item, c.tiers[:i], o)
		}

		span.SetAttributes(attribute.Bool("cache.hit", true), attribute.String("cache.level", string(level)))
		c.record(types.OpGet, nk, level, start, true, item.Size)
		c.logger.Debug("cache hit", zap.String("key", nk), zap.String("level", string(level)))
		return item, level, true
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))
	c.record(types.OpGet, nk, types.LevelAll, start, false, 0)
	c.logger.Debug("cache miss", zap.String("key", nk))
	return nil, "", false
}

// promote 把下层命中的条目回填到上层（由近及远），失败只记日志
func (c *MultiLevelCache) promote(ctx context.Context, nk string, item *types.CacheItem, upper []Tier, o callOptions) {
	for i := len(upper) - 1; i >= 0; i-- {
		t := upper[i]
		if o.skipped(t.Level()) {
			continue
		}
		if err := t.Set(ctx, nk, item); err != nil {
			c.logger.Warn("promote failed",
				zap.String("level", string(t.Level())), zap.String("key", nk), zap.Error(err))
		}
	}
}

// =============================================================================
// 写入
// =============================================================================

// Set 写入值。write-through 下同步写入所有目标层级，结果为各层结果的与；
// write-back 下只同步写第一个目标层级，其余层级交给后台传播。
func (c *MultiLevelCache) Set(ctx context.Context, key string, value any, opts ...CallOption) bool {
	if c.closed.Load() {
		return false
	}

	start := time.Now()
	o := newCallOptions(opts)
	nk := NormalizeKey(key)

	ctx, span := c.tracer.Start(ctx, "cache.set", trace.WithAttributes(
		attribute.String("cache.operation", string(types.OpSet)),
		attribute.String("cache.key", nk),
	))
	defer span.End()

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("value is not serializable", zap.String("key", nk), zap.Error(err))
		c.record(types.OpSet, nk, types.LevelAll, start, false, 0)
		return false
	}

	ttl := o.ttl
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	item := types.NewCacheItem(nk, raw, ttl, c.now())
	item.Metadata = o.metadata

	targets := c.targets(o)
	if len(targets) == 0 {
		c.record(types.OpSet, nk, types.LevelAll, start, false, item.Size)
		return false
	}

	ok := true
	if c.cfg.Strategy.WriteThrough {
		c.order.invalidate(nk)
		for _, t := range targets {
			if !c.writeTier(ctx, t, nk, item) {
				ok = false
			}
		}
	} else {
		// 先登记代次：更早的 Set 排队中的传播从此作废，不会覆盖本次的值
		rest := targets[1:]
		var gen uint64
		if len(rest) > 0 {
			gen = c.order.begin(nk, len(rest))
		} else {
			c.order.invalidate(nk)
		}

		ok = c.writeTier(ctx, targets[0], nk, item)
		if ok {
			c.propagate(ctx, nk, item, rest, gen)
		} else {
			for range rest {
				c.order.abandon(nk)
			}
		}
	}

	c.stats.sets.Add(1)
	span.SetAttributes(attribute.Bool("cache.success", ok))
	c.record(types.OpSet, nk, types.LevelAll, start, ok, item.Size)
	return ok
}

// targets 返回本次写入涉及的层级
func (c *MultiLevelCache) targets(o callOptions) []Tier {
	out := make([]Tier, 0, len(c.tiers))
	for _, t := range c.tiers {
		if !o.skipped(t.Level()) {
			out = append(out, t)
		}
	}
	return out
}

func (c *MultiLevelCache) writeTier(ctx context.Context, t Tier, nk string, item *types.CacheItem) bool {
	if err := t.Set(ctx, nk, item); err != nil {
		c.logger.Warn("tier set failed",
			zap.String("level", string(t.Level())), zap.String("key", nk), zap.Error(err))
		return false
	}
	return true
}

// MSet 并发写入多个条目，全部成功才返回 true
func (c *MultiLevelCache) MSet(ctx context.Context, entries []Entry, opts ...CallOption) bool {
	if len(entries) == 0 {
		return true
	}

	var failed atomic.Bool
	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			callOpts := opts
			if e.TTL > 0 {
				callOpts = append(append([]CallOption{}, opts...), WithTTL(e.TTL))
			}
			if !c.Set(ctx, e.Key, e.Value, callOpts...) {
				failed.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return !failed.Load()
}

// =============================================================================
// 删除与清理
// =============================================================================

// Delete 从所有已启用层级删除，各层都成功才返回 true。不存在的键视为成功。
func (c *MultiLevelCache) Delete(ctx context.Context, key string) bool {
	if c.closed.Load() {
		return false
	}

	start := time.Now()
	nk := NormalizeKey(key)

	ctx, span := c.tracer.Start(ctx, "cache.delete", trace.WithAttributes(
		attribute.String("cache.operation", string(types.OpDelete)),
		attribute.String("cache.key", nk),
	))
	defer span.End()

	// 作废排队中的传播并等待正在写入的传播结束，之后的删除不会被写回
	c.order.invalidate(nk)

	ok := true
	for _, t := range c.tiers {
		if err := t.Delete(ctx, nk); err != nil {
			c.logger.Warn("tier delete failed",
				zap.String("level", string(t.Level())), zap.String("key", nk), zap.Error(err))
			ok = false
		}
	}

	c.stats.deletes.Add(1)
	c.record(types.OpDelete, nk, types.LevelAll, start, ok, 0)
	return ok
}

// Clear 清空指定层级；不指定或包含 LevelAll 时清空所有已启用层级。
// 未启用的层级没有内容可清，视为成功。
func (c *MultiLevelCache) Clear(ctx context.Context, levels ...types.Level) bool {
	if c.closed.Load() {
		return false
	}

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "cache.clear", trace.WithAttributes(
		attribute.String("cache.operation", string(types.OpClear)),
	))
	defer span.End()

	targets := c.tiers
	recordLevel := types.LevelAll
	if len(levels) > 0 && !slices.Contains(levels, types.LevelAll) {
		targets = nil
		for _, l := range levels {
			if t := c.tier(l); t != nil {
				targets = append(targets, t)
			} else {
				c.logger.Debug("clear skipped disabled level", zap.String("level", string(l)))
			}
		}
		if len(levels) == 1 {
			recordLevel = levels[0]
		}
	}

	// 清空传播目标层级（L1 以外）时作废全部排队中的传播
	for _, t := range targets {
		if t.Level() != types.LevelL1 {
			c.order.invalidateMatching(func(string) bool { return true })
			break
		}
	}

	ok := true
	for _, t := range targets {
		if err := t.Clear(ctx); err != nil {
			c.logger.Warn("tier clear failed", zap.String("level", string(t.Level())), zap.Error(err))
			ok = false
		}
	}

	c.record(types.OpClear, "", recordLevel, start, ok, 0)
	return ok
}

// InvalidatePattern 删除规范化键匹配 pattern 的条目，返回被删除的逻辑键数量
// （同一个键同时存在于 L1 与 L2 只计一次）。
// L1 线性扫描，L2 按前缀 SCAN 后匹配；L3 没有索引，不支持按模式失效。
// 只有 pattern 不是合法正则时返回错误。
func (c *MultiLevelCache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if c.closed.Load() {
		return 0, nil
	}

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "cache.invalidate", trace.WithAttributes(
		attribute.String("cache.operation", string(types.OpInvalidate)),
		attribute.String("cache.pattern", pattern),
	))
	defer span.End()

	// 先作废排队中的传播，避免失效后被后台写回
	c.order.invalidateMatching(re.MatchString)

	removed := make(map[string]struct{})
	ok := true

	if c.l1 != nil {
		for _, k := range c.l1.Keys() {
			if re.MatchString(k) {
				_ = c.l1.Delete(ctx, k)
				removed[k] = struct{}{}
			}
		}
	}

	if pd, isPD := c.l2.(patternDeleter); isPD {
		keys, err := pd.DeleteMatchingKeys(ctx, re)
		for _, k := range keys {
			removed[k] = struct{}{}
		}
		if err != nil {
			ok = false
			c.logger.Warn("l2 pattern invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}

	if c.l3 != nil {
		c.logger.Debug("pattern invalidation is not supported on l3", zap.String("pattern", pattern))
	}

	count := len(removed)
	span.SetAttributes(attribute.Int("cache.invalidated", count))
	c.record(types.OpInvalidate, pattern, types.LevelAll, start, ok, 0)
	return count, nil
}

// =============================================================================
// 批量读取
// =============================================================================

// MGet 批量读取。按 batch_size 分批，批内并发。结果包含所有请求的键，未命中的值为 nil。
func (c *MultiLevelCache) MGet(ctx context.Context, keys []string, opts ...CallOption) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(keys))
	var mu sync.Mutex

	batch := c.cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}

	for lo := 0; lo < len(keys); lo += batch {
		hi := min(lo+batch, len(keys))

		var g errgroup.Group
		for _, k := range keys[lo:hi] {
			g.Go(func() error {
				v, _ := c.Get(ctx, k, opts...)
				mu.Lock()
				out[k] = v
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

// Warmup 逐个读取 keys，借助 write-back 回填把下层数据提升到上层
func (c *MultiLevelCache) Warmup(ctx context.Context, keys []string) {
	c.MGet(ctx, keys)
	c.logger.Debug("warmup finished", zap.Int("keys", len(keys)))
}

// =============================================================================
// Read-through
// =============================================================================

// Loader 在全部未命中时加载数据
type Loader func(ctx context.Context) (any, error)

// GetOrLoad 读取，未命中时调用 loader。同一个键的并发加载只执行一次。
// 启用 read_through 时加载结果会写回缓存，否则只返回不缓存。
func (c *MultiLevelCache) GetOrLoad(ctx context.Context, key string, loader Loader, opts ...CallOption) (json.RawMessage, error) {
	if v, ok := c.Get(ctx, key, opts...); ok {
		return v, nil
	}

	v, err, _ := c.loads.Do(NormalizeKey(key), func() (any, error) {
		// 上一轮加载可能刚刚写回
		if v, ok := c.Get(ctx, key, opts...); ok {
			return v, nil
		}
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal loaded value: %w", err)
		}
		if c.cfg.Strategy.ReadThrough {
			if !c.Set(ctx, key, json.RawMessage(raw), opts...) {
				c.logger.Warn("caching loaded value failed", zap.String("key", NormalizeKey(key)))
			}
		}
		return json.RawMessage(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// =============================================================================
// 统计
// =============================================================================

// Stats 返回统计快照。L1 大小为实时值，L2/L3 为最近一次 Size 的观测值。
func (c *MultiLevelCache) Stats() types.CacheStats {
	if c.l1 != nil {
		c.stats.observeSize(types.LevelL1, int64(c.l1.Count()))
	}
	st := c.stats.snapshot()
	st.Operations = c.oplog.Len()
	return st
}

// Operations 按时间顺序返回最近 limit 条操作记录，limit <= 0 返回全部
func (c *MultiLevelCache) Operations(limit int) []types.CacheOperation {
	return c.oplog.Recent(limit)
}

// Size 查询各层条目数，查询失败的层级计为 0
func (c *MultiLevelCache) Size(ctx context.Context) types.SizeInfo {
	var info types.SizeInfo
	for _, t := range c.tiers {
		n, err := t.Len(ctx)
		if err != nil {
			c.logger.Warn("tier size failed", zap.String("level", string(t.Level())), zap.Error(err))
			n = 0
		}
		c.stats.observeSize(t.Level(), n)
		c.recorder.RecordSize(t.Level(), n)

		switch t.Level() {
		case types.LevelL1:
			info.L1 = n
		case types.LevelL2:
			info.L2 = n
		case types.LevelL3:
			info.L3 = n
		}
	}
	info.Total = info.L1 + info.L2 + info.L3
	return info
}

// Ping 检查需要网络的层级是否可用
func (c *MultiLevelCache) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return types.ErrClosed
	}
	if p, ok := c.l2.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("l2 ping: %w", err)
		}
	}
	return nil
}

// =============================================================================
// 生命周期
// =============================================================================

// Close 停止清理协程，等待后台传播完成，清空 L1，执行最后一次清理，
// 并释放自己创建的连接。重复调用返回第一次的结果。
func (c *MultiLevelCache) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.stopCleanupLoop()

		var errs []error
		if err := c.propagation.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain propagation: %w", err))
		}

		c.errMu.Lock()
		c.errClosed = true
		close(c.errCh)
		c.errMu.Unlock()

		if c.l1 != nil {
			_ = c.l1.Clear(ctx)
		}
		if _, err := c.RunCleanup(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := c.releaseOwned(); err != nil {
			errs = append(errs, err)
		}

		c.closeErr = errors.Join(errs...)
		c.logger.Info("multi-level cache closed", zap.Error(c.closeErr))
	})
	return c.closeErr
}

func (c *MultiLevelCache) releaseOwned() error {
	var errs []error
	for _, r := range c.ownedResource {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.ownedResource = nil
	return errors.Join(errs...)
}

// =============================================================================
// 内部辅助
// =============================================================================

// onL1Evict 在 L1 锁内调用，只能触碰计数与操作日志
func (c *MultiLevelCache) onL1Evict(key string, item *types.CacheItem) {
	c.stats.evictions.Add(1)
	c.recorder.RecordEviction(types.LevelL1)
	size := 0
	if item != nil {
		size = item.Size
	}
	c.oplog.Add(types.CacheOperation{
		ID:        uuid.NewString(),
		Operation: types.OpEvict,
		Key:       key,
		Level:     types.LevelL1,
		Timestamp: c.now(),
		Success:   true,
		Size:      size,
	})
}

func (c *MultiLevelCache) record(op types.OperationType, key string, level types.Level, start time.Time, success bool, size int) {
	d := time.Since(start)
	c.oplog.Add(types.CacheOperation{
		ID:        uuid.NewString(),
		Operation: op,
		Key:       key,
		Level:     level,
		Timestamp: c.now(),
		Duration:  d,
		Success:   success,
		Size:      size,
	})
	c.recorder.RecordOperation(op, level, success, d)
}

func levelNames(tiers []Tier) []string {
	names := make([]string, 0, len(tiers))
	for _, t := range tiers {
		names = append(names, string(t.Level()))
	}
	return names
}
