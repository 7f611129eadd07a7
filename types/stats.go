package types

import "time"

// OperationType 操作日志中的操作类型
type OperationType string

const (
	OpGet        OperationType = "get"
	OpSet        OperationType = "set"
	OpDelete     OperationType = "delete"
	OpClear      OperationType = "clear"
	OpEvict      OperationType = "evict"
	OpPropagate  OperationType = "propagate"
	OpInvalidate OperationType = "invalidate"
)

// CacheOperation 一条操作日志
type CacheOperation struct {
	ID        string        `json:"id"`
	Operation OperationType `json:"operation"`
	Key       string        `json:"key"`
	Level     Level         `json:"level"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Size      int           `json:"size,omitempty"`
}

// LevelStats 单层统计
type LevelStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int64   `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// CacheStats 统计快照
type CacheStats struct {
	L1                LevelStats `json:"l1"`
	L2                LevelStats `json:"l2"`
	L3                LevelStats `json:"l3"`
	Overall           LevelStats `json:"overall"`
	Sets              uint64     `json:"sets"`
	Deletes           uint64     `json:"deletes"`
	Evictions         uint64     `json:"evictions"`
	PropagationErrors uint64     `json:"propagation_errors"`
	Operations        int        `json:"operations"`
}

// SizeInfo 各层条目数
type SizeInfo struct {
	L1    int64 `json:"l1"`
	L2    int64 `json:"l2"`
	L3    int64 `json:"l3"`
	Total int64 `json:"total"`
}

// HitRate 计算命中率，无数据时返回 0 而不是 NaN
func HitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
