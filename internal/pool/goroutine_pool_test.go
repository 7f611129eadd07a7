package pool

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutinePool_RunsTasks(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 4, QueueSize: 100})

	var n atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
			n.Add(1)
			return nil
		}))
	}

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, int32(50), n.Load())

	stats := p.Stats()
	assert.Equal(t, int64(50), stats.Submitted)
	assert.Equal(t, int64(50), stats.Completed)
	assert.Zero(t, stats.Rejected)
}

func TestGoroutinePool_ReportsErrorsAndPanics(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	var panics atomic.Int32

	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:   1,
		QueueSize:    10,
		PanicHandler: func(any) { panics.Add(1) },
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})

	boom := errors.New("boom")
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return boom }))
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { panic("oops") }))
	require.NoError(t, p.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], boom)
	assert.Contains(t, errs[1].Error(), "panicked")
	assert.Equal(t, int32(1), panics.Load())
	assert.Equal(t, int64(2), p.Stats().Failed)
}

func TestGoroutinePool_RejectsWhenFull(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	// 唯一的 worker 被占用，队列只能再放一个
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }))
	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolFull)

	close(release)
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, int64(1), p.Stats().Rejected)
}

func TestGoroutinePool_Close(t *testing.T) {
	p := NewGoroutinePool(DefaultGoroutinePoolConfig())

	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestGoroutinePool_CloseHonorsDeadline(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 1})

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
}

func TestGoroutinePool_IdleWorkersNeverStrandTasks(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{
		MaxWorkers:  4,
		QueueSize:   16,
		IdleTimeout: time.Millisecond,
	})
	defer p.Close(context.Background())

	var done atomic.Int64
	want := int64(0)
	for range 100 {
		for range 4 {
			require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
				done.Add(1)
				return nil
			}))
			want++
		}
		require.Eventually(t, func() bool { return done.Load() == want },
			time.Second, time.Millisecond)
		// 让空闲计时器到期，工作协程在下一轮提交前后退出
		time.Sleep(time.Duration(want%3) * time.Millisecond)
	}

	st := p.Stats()
	assert.GreaterOrEqual(t, st.Workers, 1)
	assert.LessOrEqual(t, st.Workers, 4)
}

func TestGoroutinePool_RetireKeepsOneWorker(t *testing.T) {
	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 2, QueueSize: 1})
	defer p.Close(context.Background())

	p.workerCount.Store(1)
	assert.False(t, p.retire())
	assert.Equal(t, int32(1), p.workerCount.Load())

	p.workerCount.Store(2)
	assert.True(t, p.retire())
	assert.Equal(t, int32(1), p.workerCount.Load())

	// 队列里还有任务时不退出
	p.workerCount.Store(2)
	p.taskQueue <- taskWrapper{task: func(context.Context) error { return nil }, ctx: context.Background()}
	assert.False(t, p.retire())
	assert.Equal(t, int32(2), p.workerCount.Load())
	<-p.taskQueue
	p.workerCount.Store(0)
}

func TestByteBufferPool(t *testing.T) {
	buf := ByteBufferPool.Get()
	buf.WriteString("payload")
	ByteBufferPool.Put(buf)

	again := ByteBufferPool.Get()
	assert.Zero(t, again.Len())
	ByteBufferPool.Put(again)

	stats := ByteBufferPool.Stats()
	assert.GreaterOrEqual(t, stats.Gets, int64(2))
	assert.GreaterOrEqual(t, stats.Puts, int64(2))
}

func TestPool_ResetsOnPut(t *testing.T) {
	p := NewPool(PoolConfig[[]int]{
		New:   func() []int { return make([]int, 0, 8) },
		Reset: func(s []int) []int { return s[:0] },
	})

	s := p.Get()
	s = append(s, 1, 2, 3)
	p.Put(s)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Gets)
	assert.Equal(t, int64(1), stats.Puts)
	assert.Equal(t, int64(1), stats.Allocs)
	assert.Zero(t, stats.Discards)
	assert.Zero(t, stats.ReuseRate())
}

func TestPool_DiscardsRejected(t *testing.T) {
	p := NewPool(PoolConfig[[]byte]{
		New:  func() []byte { return make([]byte, 0, 16) },
		Keep: func(b []byte) bool { return cap(b) <= 16 },
	})

	p.Put(make([]byte, 0, 64))
	p.Put(make([]byte, 0, 8))

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Discards)
	assert.Equal(t, int64(1), stats.Puts)
}

func TestByteBufferPool_DropsOversized(t *testing.T) {
	before := ByteBufferPool.Stats().Discards
	ByteBufferPool.Put(bytes.NewBuffer(make([]byte, 0, bufferMaxRetained+1)))
	assert.Equal(t, before+1, ByteBufferPool.Stats().Discards)
}

func TestPoolStats_ReuseRate(t *testing.T) {
	assert.Zero(t, PoolStats{}.ReuseRate())
	assert.InDelta(t, 0.75, PoolStats{Gets: 4, Allocs: 1}.ReuseRate(), 1e-9)
}
