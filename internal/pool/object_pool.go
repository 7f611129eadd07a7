package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// PoolConfig 描述对象的创建、复位与回收条件。
type PoolConfig[T any] struct {
	New   func() T
	Reset func(T) T
	// Keep 返回 false 时对象不再放回池中（例如容量过大的缓冲区）
	Keep func(T) bool
}

// Pool 是带计数的 sync.Pool 泛型封装。
type Pool[T any] struct {
	pool sync.Pool
	cfg  PoolConfig[T]

	gets     atomic.Int64
	puts     atomic.Int64
	allocs   atomic.Int64
	discards atomic.Int64
}

// NewPool 创建对象池，cfg.New 必须非空。
func NewPool[T any](cfg PoolConfig[T]) *Pool[T] {
	p := &Pool[T]{cfg: cfg}
	p.pool.New = func() any {
		p.allocs.Add(1)
		return cfg.New()
	}
	return p
}

// Get 从池中取出对象，池为空时新建。
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put 复位后归还对象。
func (p *Pool[T]) Put(obj T) {
	if p.cfg.Keep != nil && !p.cfg.Keep(obj) {
		p.discards.Add(1)
		return
	}
	p.puts.Add(1)
	if p.cfg.Reset != nil {
		obj = p.cfg.Reset(obj)
	}
	p.pool.Put(obj)
}

// Stats 返回池的计数快照。
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Gets:     p.gets.Load(),
		Puts:     p.puts.Load(),
		Allocs:   p.allocs.Load(),
		Discards: p.discards.Load(),
	}
}

// PoolStats 对象池统计。
type PoolStats struct {
	Gets     int64 `json:"gets"`
	Puts     int64 `json:"puts"`
	Allocs   int64 `json:"allocs"`
	Discards int64 `json:"discards"`
}

// ReuseRate 返回未触发分配的 Get 比例。
func (s PoolStats) ReuseRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.Allocs) / float64(s.Gets)
}

const (
	bufferInitialSize = 4 << 10
	// 超过该容量的缓冲区直接丢弃，避免单个大条目长期占用内存
	bufferMaxRetained = 1 << 20
)

// ByteBufferPool 供编解码缓存负载时复用字节缓冲区。
var ByteBufferPool = NewPool(PoolConfig[*bytes.Buffer]{
	New: func() *bytes.Buffer {
		return bytes.NewBuffer(make([]byte, 0, bufferInitialSize))
	},
	Reset: func(b *bytes.Buffer) *bytes.Buffer {
		b.Reset()
		return b
	},
	Keep: func(b *bytes.Buffer) bool {
		return b.Cap() <= bufferMaxRetained
	},
})
