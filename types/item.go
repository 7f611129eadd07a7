package types

import (
	"encoding/json"
	"time"
)

// Level 缓存层级标识
type Level string

const (
	LevelL1 Level = "l1"
	LevelL2 Level = "l2"
	LevelL3 Level = "l3"
	// LevelAll 表示所有已启用层级（仅用于 Clear 与操作日志）
	LevelAll Level = "all"
)

// Levels 按查询优先级排列的全部层级
var Levels = []Level{LevelL1, LevelL2, LevelL3}

// ParseLevel 解析层级字符串，大小写不敏感
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "l1", "L1":
		return LevelL1, true
	case "l2", "L2":
		return LevelL2, true
	case "l3", "L3":
		return LevelL3, true
	case "all", "ALL", "":
		return LevelAll, true
	default:
		return "", false
	}
}

// Clock 可注入的时间源，默认 time.Now
type Clock func() time.Time

// ItemMetadata 条目的附加信息，缓存引擎本身不解释这些字段
type ItemMetadata struct {
	Source   string   `json:"source,omitempty"`
	Version  string   `json:"version,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Priority int      `json:"priority,omitempty"`
}

// CacheItem 缓存的存储单元，三个层级共享同一序列化形态
type CacheItem struct {
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	CreatedAt    time.Time       `json:"created_at"`
	TTL          time.Duration   `json:"ttl"`
	AccessCount  int64           `json:"access_count"`
	LastAccessed time.Time       `json:"last_accessed"`
	Size         int             `json:"size"`
	Metadata     *ItemMetadata   `json:"metadata,omitempty"`
}

// NewCacheItem 创建条目，Size 取序列化后值的字节长度
func NewCacheItem(key string, value json.RawMessage, ttl time.Duration, now time.Time) *CacheItem {
	return &CacheItem{
		Key:          key,
		Value:        value,
		CreatedAt:    now,
		TTL:          ttl,
		LastAccessed: now,
		Size:         len(value),
	}
}

// ExpiresAt 返回过期时刻；TTL <= 0 时返回零值表示永不过期
func (i *CacheItem) ExpiresAt() time.Time {
	if i.TTL <= 0 {
		return time.Time{}
	}
	return i.CreatedAt.Add(i.TTL)
}

// Expired 判断条目在 now 时刻是否已过期（now > CreatedAt + TTL）
func (i *CacheItem) Expired(now time.Time) bool {
	if i.TTL <= 0 {
		return false
	}
	return now.After(i.CreatedAt.Add(i.TTL))
}

// Remaining 返回剩余存活时间，永不过期的条目返回 0
func (i *CacheItem) Remaining(now time.Time) time.Duration {
	if i.TTL <= 0 {
		return 0
	}
	return i.CreatedAt.Add(i.TTL).Sub(now)
}

// Touch 记录一次成功读取
func (i *CacheItem) Touch(now time.Time) {
	i.AccessCount++
	i.LastAccessed = now
}

// Clone 返回浅拷贝（Value 与 Metadata 共享底层数据，调用方不得原地修改）
func (i *CacheItem) Clone() *CacheItem {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
