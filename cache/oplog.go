package cache

import (
	"sync"
	"time"

	"github.com/BaSui01/tiercache/types"
)

// OperationLog 定长环形操作日志，满时丢弃最旧的记录
type OperationLog struct {
	mu    sync.Mutex
	buf   []types.CacheOperation
	start int // 最旧记录的位置
	count int
}

// NewOperationLog 创建容量为 capacity 的操作日志
func NewOperationLog(capacity int) *OperationLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &OperationLog{buf: make([]types.CacheOperation, capacity)}
}

// Add 追加一条记录
func (l *OperationLog) Add(op types.CacheOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count < len(l.buf) {
		l.buf[(l.start+l.count)%len(l.buf)] = op
		l.count++
		return
	}
	l.buf[l.start] = op
	l.start = (l.start + 1) % len(l.buf)
}

// Recent 按时间顺序返回最近 limit 条记录，limit <= 0 返回全部
func (l *OperationLog) Recent(limit int) []types.CacheOperation {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.CacheOperation, 0, n)
	for i := l.count - n; i < l.count; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out
}

// Prune 删除早于 before 的记录，返回删除数量
func (l *OperationLog) Prune(before time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 记录按追加顺序存放，时间戳基本单调，从最旧一端删除即可
	removed := 0
	for l.count > 0 {
		oldest := l.buf[l.start]
		if !oldest.Timestamp.Before(before) {
			break
		}
		l.buf[l.start] = types.CacheOperation{}
		l.start = (l.start + 1) % len(l.buf)
		l.count--
		removed++
	}
	return removed
}

// Len 返回当前记录数
func (l *OperationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Cap 返回容量
func (l *OperationLog) Cap() int {
	return len(l.buf)
}
