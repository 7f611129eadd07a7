// Package memory 实现 L1 进程内缓存：容量有界、按策略淘汰、条目自带 TTL。
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/tiercache/config"
	"github.com/BaSui01/tiercache/types"
)

// Policy L1 淘汰策略
type Policy string

const (
	// PolicyLRU 淘汰最久未访问的条目
	PolicyLRU Policy = "lru"
	// PolicyLFU 淘汰访问次数最少的条目，次数相同时淘汰最早写入的
	PolicyLFU Policy = "lfu"
	// PolicyFIFO 淘汰最早写入的条目，忽略读取
	PolicyFIFO Policy = "fifo"
)

// ParsePolicy 解析淘汰策略，空字符串视为 LRU
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyLRU:
		return PolicyLRU, nil
	case PolicyLFU:
		return PolicyLFU, nil
	case PolicyFIFO:
		return PolicyFIFO, nil
	default:
		return "", fmt.Errorf("unknown eviction policy %q", s)
	}
}

// EvictFunc 容量淘汰时的回调，在持有锁的情况下调用，不得回调 Store
type EvictFunc func(key string, item *types.CacheItem)

// Option 配置 Store
type Option func(*Store)

// WithPolicy 设置淘汰策略
func WithPolicy(p Policy) Option {
	return func(s *Store) { s.policy = p }
}

// WithClock 设置时间源
func WithClock(clock types.Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithOnEvict 设置淘汰回调
func WithOnEvict(fn EvictFunc) Option {
	return func(s *Store) { s.onEvict = fn }
}

// ============================================================
// L1 本地缓存实现（双向链表 + map，LRU/FIFO 为 O(1) 操作）
// ============================================================

// Store L1 缓存
type Store struct {
	mu             sync.Mutex
	capacity       int
	maxAge         time.Duration
	updateAgeOnGet bool
	policy         Policy
	items          map[string]*node
	head           *node // 最近使用 / 最新写入
	tail           *node // 最久未使用 / 最早写入
	now            types.Clock
	onEvict        EvictFunc
	evictions      uint64
}

type node struct {
	key      string
	item     *types.CacheItem
	deadline time.Time // 零值表示不过期
	hits     int64
	prev     *node
	next     *node
}

// New 创建 L1 缓存
func New(cfg config.L1Config, opts ...Option) *Store {
	capacity := cfg.MaxSize
	if capacity <= 0 {
		capacity = 1
	}
	s := &Store{
		capacity:       capacity,
		maxAge:         cfg.MaxAge,
		updateAgeOnGet: cfg.UpdateAgeOnGet,
		policy:         PolicyLRU,
		items:          make(map[string]*node, capacity),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Level 返回层级标识
func (s *Store) Level() types.Level { return types.LevelL1 }

// Policy 返回当前淘汰策略
func (s *Store) Policy() Policy { return s.policy }

// Get 读取条目。过期条目视为未命中并被移除。
func (s *Store) Get(_ context.Context, key string) (*types.CacheItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[key]
	if !ok {
		return nil, types.ErrCacheMiss
	}

	now := s.now()
	if s.expired(n, now) {
		s.unlink(n)
		delete(s.items, key)
		return nil, types.ErrCacheMiss
	}

	n.hits++
	n.item.Touch(now)
	if s.updateAgeOnGet {
		n.deadline = s.deadlineFor(n.item, now)
		if s.policy == PolicyLRU {
			s.moveToHead(n)
		}
	}

	return n.item.Clone(), nil
}

// Set 写入条目，满容量时按策略淘汰一个条目
func (s *Store) Set(_ context.Context, key string, item *types.CacheItem) error {
	if item == nil {
		return fmt.Errorf("l1 set %s: nil item", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := item.Clone()

	// 已存在：更新并移动到头部
	if n, ok := s.items[key]; ok {
		n.item = stored
		n.deadline = s.deadlineFor(stored, now)
		if s.policy != PolicyFIFO {
			s.moveToHead(n)
		}
		return nil
	}

	if len(s.items) >= s.capacity {
		s.evict()
	}

	n := &node{
		key:      key,
		item:     stored,
		deadline: s.deadlineFor(stored, now),
	}
	s.items[key] = n
	s.addToHead(n)
	return nil
}

// Delete 删除条目，键不存在也视为成功
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.items[key]; ok {
		s.unlink(n)
		delete(s.items, key)
	}
	return nil
}

// Clear 清空所有条目
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*node, s.capacity)
	s.head = nil
	s.tail = nil
	return nil
}

// Len 返回当前条目数（包含尚未被惰性清除的过期条目）
func (s *Store) Len(_ context.Context) (int64, error) {
	return int64(s.Count()), nil
}

// Count 同步返回条目数
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Keys 返回当前所有键的快照，从最近使用到最久未使用
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.items))
	for n := s.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Contains 判断键是否存在且未过期，不影响淘汰顺序
func (s *Store) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[key]
	return ok && !s.expired(n, s.now())
}

// Stats 返回 (条目数, 容量, 累计淘汰数)
func (s *Store) Stats() (size int, capacity int, evictions uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), s.capacity, s.evictions
}

func (s *Store) expired(n *node, now time.Time) bool {
	return !n.deadline.IsZero() && now.After(n.deadline)
}

// deadlineFor 取条目自身过期时间与 maxAge 窗口中较早者
func (s *Store) deadlineFor(item *types.CacheItem, now time.Time) time.Time {
	deadline := item.ExpiresAt()
	if s.maxAge > 0 {
		ageLimit := now.Add(s.maxAge)
		if deadline.IsZero() || ageLimit.Before(deadline) {
			deadline = ageLimit
		}
	}
	return deadline
}

// evict 按策略淘汰一个条目
func (s *Store) evict() {
	victim := s.tail
	if s.policy == PolicyLFU {
		// 从尾部（最早写入）向头部扫描，取访问次数最少者
		for n := s.tail; n != nil; n = n.prev {
			if n.hits < victim.hits {
				victim = n
			}
		}
	}
	if victim == nil {
		return
	}

	s.unlink(victim)
	delete(s.items, victim.key)
	s.evictions++
	if s.onEvict != nil {
		s.onEvict(victim.key, victim.item)
	}
}

// addToHead 添加节点到头部 O(1)
func (s *Store) addToHead(n *node) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// unlink 从链表中移除节点 O(1)
func (s *Store) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

// moveToHead 移动节点到头部 O(1)
func (s *Store) moveToHead(n *node) {
	if n == s.head {
		return
	}
	s.unlink(n)
	s.addToHead(n)
}
