package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Get 读取并解码为 T。存储的值无法解码为 T 时记日志并按未命中处理。
func Get[T any](ctx context.Context, c *MultiLevelCache, key string, opts ...CallOption) (T, bool) {
	var zero T
	raw, ok := c.Get(ctx, key, opts...)
	if !ok {
		return zero, false
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn("cached value does not decode into requested type",
			zap.String("key", NormalizeKey(key)), zap.String("type", fmt.Sprintf("%T", zero)), zap.Error(err))
		return zero, false
	}
	return v, true
}

// Set 写入 T 类型的值
func Set[T any](ctx context.Context, c *MultiLevelCache, key string, value T, opts ...CallOption) bool {
	return c.Set(ctx, key, value, opts...)
}

// MGet 批量读取并解码，未命中或解码失败的键对应 nil
func MGet[T any](ctx context.Context, c *MultiLevelCache, keys []string, opts ...CallOption) map[string]*T {
	raw := c.MGet(ctx, keys, opts...)
	out := make(map[string]*T, len(raw))
	for k, v := range raw {
		if v == nil {
			out[k] = nil
			continue
		}
		var t T
		if err := json.Unmarshal(v, &t); err != nil {
			c.logger.Warn("cached value does not decode into requested type",
				zap.String("key", NormalizeKey(k)), zap.Error(err))
			out[k] = nil
			continue
		}
		out[k] = &t
	}
	return out
}

// GetOrLoad 读取 T，未命中时调用 loader，见 MultiLevelCache.GetOrLoad
func GetOrLoad[T any](ctx context.Context, c *MultiLevelCache, key string, loader func(ctx context.Context) (T, error), opts ...CallOption) (T, error) {
	var zero T
	raw, err := c.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		return loader(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("decode %s: %w", NormalizeKey(key), err)
	}
	return v, nil
}
