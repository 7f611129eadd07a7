package testutil

import (
	"sync"
	"time"
)

// FakeClock 可手动推进的时间源，用于 TTL 相关测试
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock 创建从 start 开始的时钟；start 为零值时使用固定日期
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &FakeClock{now: start}
}

// Now 返回当前时间，签名与 types.Clock 兼容
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 推进时钟
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set 设置当前时间
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
