// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 缓存各包测试共享的上下文、Redis 与异步等待辅助
//
// 使用方法:
//
//	mr, client := testutil.NewRedis(t)
//	ctx := testutil.TestContext(t)
//	ev, ok := testutil.WaitForChannel(c.Errors(), time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// TestContext 返回 30 秒超时的测试上下文，测试结束时自动取消
func TestContext(t testing.TB) context.Context {
	t.Helper()
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回自定义超时的测试上下文
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// NewRedis 启动内存 Redis 并返回连接它的客户端，两者都在测试结束时关闭
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// MustJSON 将值序列化为 JSON，失败时 panic
func MustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
