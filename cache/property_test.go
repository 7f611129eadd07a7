package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/tiercache/config"
	"github.com/BaSui01/tiercache/testutil"
	"github.com/BaSui01/tiercache/types"
)

// newPropertyCache 所有层级同步写入，便于在每次迭代中立即断言
func newPropertyCache(t *testing.T, mutate func(*config.CacheConfig)) *MultiLevelCache {
	t.Helper()

	cfg := config.DefaultCacheConfig()
	cfg.Strategy.WriteBack = false
	cfg.Strategy.WriteThrough = true
	cfg.L2.Enabled = true
	cfg.L3.Enabled = true
	cfg.L3.BasePath = filepath.Join(t.TempDir(), "l3")
	cfg.L3.CleanupInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	_, client := testutil.NewRedis(t)

	c, err := New(cfg, WithRedisClient(client))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

type payload struct {
	Name  string         `json:"name"`
	Count int            `json:"count"`
	Tags  []string       `json:"tags"`
	Attrs map[string]int `json:"attrs"`
}

func payloadGen() *rapid.Generator[payload] {
	return rapid.Custom(func(rt *rapid.T) payload {
		return payload{
			Name:  rapid.String().Draw(rt, "name"),
			Count: rapid.Int().Draw(rt, "count"),
			Tags:  rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 5).Draw(rt, "tags"),
			Attrs: rapid.MapOfN(rapid.StringMatching(`[a-z]{1,4}`), rapid.IntRange(0, 100), 1, 4).Draw(rt, "attrs"),
		}
	})
}

// Property: set(k, v) 之后 get(k) 返回 v，且每一层单独读取都返回 v
func TestProperty_Cache_RoundTrip(t *testing.T) {
	c := newPropertyCache(t, nil)
	ctx := testutil.TestContext(t)

	rapid.Check(t, func(rt *rapid.T) {
		key := rapid.String().Draw(rt, "key")
		value := payloadGen().Draw(rt, "value")

		require.True(rt, c.Set(ctx, key, value))

		for _, opts := range [][]CallOption{
			nil,
			{SkipL1()},
			{SkipL1(), SkipL2()},
		} {
			got, ok := Get[payload](ctx, c, key, opts...)
			require.True(rt, ok)
			assert.Equal(rt, value, got)
		}
	})
}

// Property: delete(k) 之后 get(k) 未命中
func TestProperty_Cache_DeleteThenMiss(t *testing.T) {
	c := newPropertyCache(t, nil)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		key := rapid.String().Draw(rt, "key")
		value := rapid.Int().Draw(rt, "value")

		require.True(rt, c.Set(ctx, key, value))
		require.True(rt, c.Delete(ctx, key))

		_, ok := c.Get(ctx, key)
		assert.False(rt, ok)
	})
}

// Property: write-back 下 set 后立即 delete，后台传播结束后各层都未命中
func TestProperty_Cache_DeleteThenMissWriteBack(t *testing.T) {
	c := newPropertyCache(t, func(cfg *config.CacheConfig) {
		cfg.Strategy.WriteThrough = false
		cfg.Strategy.WriteBack = true
	})
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		key := rapid.String().Draw(rt, "key")
		values := rapid.SliceOfN(rapid.Int(), 1, 4).Draw(rt, "values")

		for _, v := range values {
			require.True(rt, c.Set(ctx, key, v))
		}
		require.True(rt, c.Delete(ctx, key))

		flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		require.NoError(rt, c.Flush(flushCtx))

		for _, opts := range [][]CallOption{nil, {SkipL1()}, {SkipL1(), SkipL2()}} {
			_, ok := c.Get(ctx, key, opts...)
			assert.False(rt, ok)
		}
	})
}

// Property: write-back 下连续 set，传播结束后下层保存最后一次的值
func TestProperty_Cache_LastWriteWinsWriteBack(t *testing.T) {
	c := newPropertyCache(t, func(cfg *config.CacheConfig) {
		cfg.Strategy.WriteThrough = false
		cfg.Strategy.WriteBack = true
	})
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		key := rapid.String().Draw(rt, "key")
		values := rapid.SliceOfN(rapid.Int(), 2, 6).Draw(rt, "values")

		for _, v := range values {
			require.True(rt, c.Set(ctx, key, v))
		}

		flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		require.NoError(rt, c.Flush(flushCtx))

		last := values[len(values)-1]
		for _, opts := range [][]CallOption{{SkipL1()}, {SkipL1(), SkipL2()}} {
			got, ok := Get[int](ctx, c, key, opts...)
			require.True(rt, ok)
			assert.Equal(rt, last, got)
		}
	})
}

// Property: 每层命中率 = hits / (hits + misses)，无数据时为 0
func TestProperty_Cache_HitRate(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := config.DefaultCacheConfig()
		c, err := New(cfg)
		require.NoError(rt, err)
		defer c.Close(context.Background())
		ctx := context.Background()

		stored := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 0, 10, rapid.ID[string]).Draw(rt, "stored")
		for _, k := range stored {
			require.True(rt, c.Set(ctx, k, k))
		}

		reads := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,6}`), 0, 50).Draw(rt, "reads")
		for _, k := range reads {
			_, _ = c.Get(ctx, k)
		}

		st := c.Stats()
		assert.Equal(rt, uint64(len(reads)), st.L1.Hits+st.L1.Misses)
		if len(reads) == 0 {
			assert.Equal(rt, 0.0, st.L1.HitRate)
			return
		}
		assert.InDelta(rt, float64(st.L1.Hits)/float64(len(reads)), st.L1.HitRate, 1e-9)
		assert.InDelta(rt, st.L1.HitRate, st.Overall.HitRate, 1e-9)
	})
}

// Property: maxSize = N 的 L1 插入 N+1 个不同键后恰好淘汰最早的一个
func TestProperty_Cache_L1EvictsExactlyOne(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(rt, "maxSize")

		cfg := config.DefaultCacheConfig()
		cfg.L1.MaxSize = n
		c, err := New(cfg)
		require.NoError(rt, err)
		defer c.Close(context.Background())
		ctx := context.Background()

		keys := make([]string, n+1)
		for i := range keys {
			keys[i] = fmt.Sprintf("key-%d", i)
			require.True(rt, c.Set(ctx, keys[i], i))
		}

		st := c.Stats()
		assert.Equal(rt, uint64(1), st.Evictions)
		assert.Equal(rt, int64(n), st.L1.Size)

		_, ok := c.Get(ctx, keys[0])
		assert.False(rt, ok)
		for _, k := range keys[1:] {
			_, ok := c.Get(ctx, k)
			assert.True(rt, ok, k)
		}
	})
}

// Property: 模式失效只删除规范化键匹配的条目
func TestProperty_Cache_InvalidatePatternOnlyMatching(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c, err := New(config.DefaultCacheConfig())
		require.NoError(rt, err)
		defer c.Close(context.Background())
		ctx := context.Background()

		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z0-9]{1,10}`), 1, 30, rapid.ID[string]).Draw(rt, "keys")
		for _, k := range keys {
			require.True(rt, c.Set(ctx, k, k))
		}

		prefix := rapid.StringMatching(`[0-9a-f]`).Draw(rt, "prefix")
		re := regexp.MustCompile("^" + prefix)

		n, err := c.InvalidatePattern(ctx, re.String())
		require.NoError(rt, err)

		removed := 0
		for _, k := range keys {
			_, ok := c.Get(ctx, k)
			if re.MatchString(NormalizeKey(k)) {
				removed++
				assert.False(rt, ok, k)
			} else {
				assert.True(rt, ok, k)
			}
		}
		assert.Equal(rt, removed, n)
	})
}

// Property: 规范化键确定、定长、十六进制
func TestProperty_NormalizeKey(t *testing.T) {
	hex32 := regexp.MustCompile(`^[0-9a-f]{32}$`)

	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.String().Draw(rt, "a")
		b := rapid.String().Draw(rt, "b")

		na := NormalizeKey(a)
		assert.Regexp(rt, hex32, na)
		assert.Equal(rt, na, NormalizeKey(a))
		assert.Equal(rt, na[:2], ShardOf(na))
		if a != b {
			assert.NotEqual(rt, na, NormalizeKey(b))
		}
	})
}

// Property: 操作日志保留最近的 capacity 条，且顺序不变
func TestProperty_OperationLog_KeepsMostRecent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(rt, "capacity")
		total := rapid.IntRange(0, 60).Draw(rt, "total")

		log := NewOperationLog(capacity)
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < total; i++ {
			log.Add(types.CacheOperation{Key: fmt.Sprint(i), Timestamp: base.Add(time.Duration(i) * time.Second)})
		}

		ops := log.Recent(0)
		want := min(total, capacity)
		require.Len(rt, ops, want)
		for i, op := range ops {
			assert.Equal(rt, fmt.Sprint(total-want+i), op.Key)
		}
	})
}
