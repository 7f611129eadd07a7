// Package redistier 实现 L2 共享缓存：条目经 codec 编码后存入 Redis，
// 键统一加前缀，过期交给 Redis 的 EX 处理。
package redistier

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/config"
	"github.com/BaSui01/tiercache/internal/codec"
	"github.com/BaSui01/tiercache/types"
)

// scanCount 每次 SCAN 建议返回的键数
const scanCount = 100

// =============================================================================
// 🔌 连接
// =============================================================================

// Dial 按配置创建 Redis 客户端并测试连接
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
	})

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// =============================================================================
// 💾 L2 存储
// =============================================================================

// Option 配置 Store
type Option func(*Store)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock 设置时间源
func WithClock(clock types.Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// OwnClient 由 Store 负责关闭客户端
func OwnClient() Option {
	return func(s *Store) { s.ownsClient = true }
}

// Store L2 缓存
type Store struct {
	client     redis.UniversalClient
	ownsClient bool
	prefix     string
	ttl        time.Duration
	codec      *codec.Codec
	logger     *zap.Logger
	now        types.Clock

	mu     sync.RWMutex
	closed bool
}

// New 基于已有客户端创建 L2 缓存。默认不关闭传入的客户端，见 OwnClient。
func New(client redis.UniversalClient, cfg config.L2Config, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.DefaultTTL,
		codec:  codec.New(cfg.CompressionEnabled),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "l2"))
	return s
}

// Level 返回层级标识
func (s *Store) Level() types.Level { return types.LevelL2 }

// Prefix 返回键前缀
func (s *Store) Prefix() string { return s.prefix }

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

// Get 读取条目
func (s *Store) Get(ctx context.Context, key string) (*types.CacheItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.ErrClosed
	}

	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrCacheMiss
	}
	if err != nil {
		s.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("l2 get %s: %w", key, err)
	}

	item, err := s.codec.Decode(data)
	if err != nil {
		s.logger.Warn("discarding corrupt entry", zap.String("key", key), zap.Error(err))
		return nil, types.ErrCacheMiss
	}

	// Redis 按整秒过期，这里按条目自身 TTL 再判断一次
	if item.Expired(s.now()) {
		if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
			s.logger.Debug("delete expired entry failed", zap.String("key", key), zap.Error(err))
		}
		return nil, types.ErrCacheMiss
	}

	item.Touch(s.now())
	return item, nil
}

// Set 写入条目
func (s *Store) Set(ctx context.Context, key string, item *types.CacheItem) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.ErrClosed
	}
	if item == nil {
		return fmt.Errorf("l2 set %s: nil item", key)
	}

	data, err := s.codec.Encode(item)
	if err != nil {
		return fmt.Errorf("l2 set %s: %w", key, err)
	}

	if err := s.client.Set(ctx, s.redisKey(key), data, s.expiration(item.TTL)).Err(); err != nil {
		s.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("l2 set %s: %w", key, err)
	}
	return nil
}

// expiration 把 TTL 向上取整到秒，最少 1 秒。TTL <= 0 时使用层默认 TTL，默认也为 0 则不过期。
func (s *Store) expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = s.ttl
	}
	if ttl <= 0 {
		return 0
	}
	secs := (ttl + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}

// Delete 删除条目，键不存在也视为成功
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.ErrClosed
	}

	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		s.logger.Error("cache delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("l2 delete %s: %w", key, err)
	}
	return nil
}

// Clear 删除所有带前缀的键
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.deleteWhere(ctx, func(string) bool { return true })
	return err
}

// DeleteMatching 删除去掉前缀后匹配 re 的键，返回删除数量
func (s *Store) DeleteMatching(ctx context.Context, re *regexp.Regexp) (int, error) {
	keys, err := s.DeleteMatchingKeys(ctx, re)
	return len(keys), err
}

// DeleteMatchingKeys 同 DeleteMatching，返回被删除的键（不含前缀）。
// 出错时返回已删除的部分。
func (s *Store) DeleteMatchingKeys(ctx context.Context, re *regexp.Regexp) ([]string, error) {
	return s.deleteWhere(ctx, re.MatchString)
}

func (s *Store) deleteWhere(ctx context.Context, match func(key string) bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, types.ErrClosed
	}

	var deleted []string
	err := s.scan(ctx, func(batch []string) error {
		victims := batch[:0]
		for _, k := range batch {
			if match(strings.TrimPrefix(k, s.prefix)) {
				victims = append(victims, k)
			}
		}
		if len(victims) == 0 {
			return nil
		}

		// 逐键取 DEL 结果，SCAN 与 DEL 之间过期的键不计入
		pipe := s.client.Pipeline()
		cmds := make([]*redis.IntCmd, len(victims))
		for i, k := range victims {
			cmds[i] = pipe.Del(ctx, k)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		for i, cmd := range cmds {
			if cmd.Val() > 0 {
				deleted = append(deleted, strings.TrimPrefix(victims[i], s.prefix))
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("cache bulk delete failed", zap.Int("deleted", len(deleted)), zap.Error(err))
		return deleted, fmt.Errorf("l2 bulk delete: %w", err)
	}
	return deleted, nil
}

// Len 返回带前缀的键数量
func (s *Store) Len(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, types.ErrClosed
	}

	var n int64
	err := s.scan(ctx, func(batch []string) error {
		n += int64(len(batch))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("l2 len: %w", err)
	}
	return n, nil
}

// scan 以游标方式遍历前缀下的键
func (s *Store) scan(ctx context.Context, fn func(batch []string) error) error {
	pattern := escapeGlob(s.prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// escapeGlob 转义 Redis glob 元字符
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping 检查 Redis 连接
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return types.ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close 停止服务请求，拥有客户端时一并关闭。重复调用安全。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing l2 store", zap.Bool("owns_client", s.ownsClient))
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// RunHealthCheck 周期性 Ping Redis，直到 ctx 取消或 Store 关闭
func (s *Store) RunHealthCheck(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if closed {
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.Ping(pingCtx); err != nil {
			s.logger.Error("cache health check failed", zap.Error(err))
		} else {
			s.logger.Debug("cache health check passed")
		}
		cancel()
	}
}
