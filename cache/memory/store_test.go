package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/tiercache/config"
	"github.com/BaSui01/tiercache/testutil"
	"github.com/BaSui01/tiercache/types"
)

func item(key string, ttl time.Duration, now time.Time) *types.CacheItem {
	return types.NewCacheItem(key, json.RawMessage(fmt.Sprintf("%q", key)), ttl, now)
}

func newStore(maxSize int, clock *testutil.FakeClock, opts ...Option) *Store {
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(config.L1Config{Enabled: true, MaxSize: maxSize, UpdateAgeOnGet: true}, opts...)
}

func TestStore_Basic(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := newStore(3, clock)

	require.NoError(t, s.Set(ctx, "key1", item("key1", time.Minute, clock.Now())))

	got, err := s.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, `"key1"`, string(got.Value))
	assert.Equal(t, int64(1), got.AccessCount)
	assert.Equal(t, types.LevelL1, s.Level())

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrCacheMiss)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := newStore(3, clock)

	in := item("k", time.Minute, clock.Now())
	require.NoError(t, s.Set(ctx, "k", in))
	in.TTL = time.Nanosecond

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	got.AccessCount = 100

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, again.TTL)
	assert.Equal(t, int64(2), again.AccessCount)
}

func TestStore_LRUEviction(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})

	var evicted []string
	s := newStore(2, clock, WithOnEvict(func(key string, _ *types.CacheItem) {
		evicted = append(evicted, key)
	}))

	for _, k := range []string{"key1", "key2", "key3"} {
		require.NoError(t, s.Set(ctx, k, item(k, time.Minute, clock.Now())))
	}

	// 无读取时 key1 最久未使用，应被淘汰
	assert.Equal(t, []string{"key1"}, evicted)
	_, err := s.Get(ctx, "key1")
	assert.ErrorIs(t, err, types.ErrCacheMiss)
	_, err = s.Get(ctx, "key2")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "key3")
	assert.NoError(t, err)

	_, _, evictions := s.Stats()
	assert.Equal(t, uint64(1), evictions)
}

func TestStore_LRUReadRefreshesRecency(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := newStore(2, clock)

	require.NoError(t, s.Set(ctx, "a", item("a", time.Minute, clock.Now())))
	require.NoError(t, s.Set(ctx, "b", item("b", time.Minute, clock.Now())))
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "c", item("c", time.Minute, clock.Now())))

	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
	assert.True(t, s.Contains("c"))
}

func TestStore_NoUpdateAgeOnGetKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := New(config.L1Config{MaxSize: 2, UpdateAgeOnGet: false}, WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "a", item("a", time.Minute, clock.Now())))
	require.NoError(t, s.Set(ctx, "b", item("b", time.Minute, clock.Now())))
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "c", item("c", time.Minute, clock.Now())))

	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
}

func TestStore_LFUEviction(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := newStore(3, clock, WithPolicy(PolicyLFU))

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, k, item(k, time.Minute, clock.Now())))
	}
	for i := 0; i < 3; i++ {
		_, _ = s.Get(ctx, "a")
	}
	_, _ = s.Get(ctx, "c")

	require.NoError(t, s.Set(ctx, "d", item("d", time.Minute, clock.Now())))

	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"), "b has the fewest reads")
	assert.True(t, s.Contains("c"))
	assert.True(t, s.Contains("d"))
}

func TestStore_FIFOEvictionIgnoresReads(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := newStore(2, clock, WithPolicy(PolicyFIFO))

	require.NoError(t, s.Set(ctx, "a", item("a", time.Minute, clock.Now())))
	require.NoError(t, s.Set(ctx, "b", item("b", time.Minute, clock.Now())))
	_, _ = s.Get(ctx, "a")
	require.NoError(t, s.Set(ctx, "c", item("c", time.Minute, clock.Now())))

	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
	assert.True(t, s.Contains("c"))
}

func TestStore_TTL(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := newStore(10, clock)

	require.NoError(t, s.Set(ctx, "k", item("k", 10*time.Second, clock.Now())))

	clock.Advance(10*time.Second - time.Millisecond)
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	clock.Advance(2 * time.Millisecond)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, types.ErrCacheMiss)
	// 过期读取会顺带移除条目
	assert.Equal(t, 0, s.Count())
}

func TestStore_MaxAgeCapsItemTTL(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := New(config.L1Config{MaxSize: 10, MaxAge: time.Second}, WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "k", item("k", time.Hour, clock.Now())))
	clock.Advance(2 * time.Second)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, types.ErrCacheMiss)
}

func TestStore_UpdateAgeOnGetExtendsMaxAgeWindow(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := New(config.L1Config{MaxSize: 10, MaxAge: time.Second, UpdateAgeOnGet: true}, WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "k", item("k", time.Hour, clock.Now())))
	for i := 0; i < 5; i++ {
		clock.Advance(800 * time.Millisecond)
		_, err := s.Get(ctx, "k")
		require.NoError(t, err, "read %d", i)
	}
}

func TestStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := newStore(10, clock)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, k, item(k, time.Minute, clock.Now())))
	}

	require.NoError(t, s.Delete(ctx, "b"))
	// 删除不存在的键也成功
	require.NoError(t, s.Delete(ctx, "b"))
	assert.ElementsMatch(t, []string{"a", "c"}, s.Keys())

	require.NoError(t, s.Clear(ctx))
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Empty(t, s.Keys())
}

func TestStore_OverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	s := newStore(2, clock)

	require.NoError(t, s.Set(ctx, "a", item("a", time.Minute, clock.Now())))
	require.NoError(t, s.Set(ctx, "b", item("b", time.Minute, clock.Now())))
	require.NoError(t, s.Set(ctx, "a", item("a", time.Minute, clock.Now())))

	assert.Equal(t, 2, s.Count())
	assert.Equal(t, []string{"a", "b"}, s.Keys())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyLRU, p)

	p, err = ParsePolicy("lfu")
	require.NoError(t, err)
	assert.Equal(t, PolicyLFU, p)

	_, err = ParsePolicy("random")
	assert.Error(t, err)
}
