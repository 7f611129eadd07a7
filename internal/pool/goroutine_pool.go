// Package pool provides the bounded worker pool used for background tier
// propagation, plus generic object pooling.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// GoroutinePool runs submitted tasks on a bounded set of workers. Submission
// never blocks: when the queue is full the task is rejected with ErrPoolFull.
type GoroutinePool struct {
	maxWorkers  int
	taskQueue   chan taskWrapper
	workerCount atomic.Int32
	activeCount atomic.Int32

	// mu guards closed against concurrent sends on taskQueue.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	// Config
	idleTimeout  time.Duration
	panicHandler func(any)
	onError      func(error)
}

type taskWrapper struct {
	task Task
	ctx  context.Context
}

// GoroutinePoolConfig configures the pool.
type GoroutinePoolConfig struct {
	MaxWorkers   int           `json:"max_workers"`
	QueueSize    int           `json:"queue_size"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	PanicHandler func(any)     `json:"-"`
	// OnError receives every non-nil task error, including recovered panics.
	OnError func(error) `json:"-"`
}

// DefaultGoroutinePoolConfig returns sensible defaults.
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers:  8,
		QueueSize:   1024,
		IdleTimeout: 60 * time.Second,
	}
}

// NewGoroutinePool creates a new goroutine pool.
func NewGoroutinePool(config GoroutinePoolConfig) *GoroutinePool {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 60 * time.Second
	}
	return &GoroutinePool{
		maxWorkers:   config.MaxWorkers,
		taskQueue:    make(chan taskWrapper, config.QueueSize),
		idleTimeout:  config.IdleTimeout,
		panicHandler: config.PanicHandler,
		onError:      config.OnError,
	}
}

// Submit submits a task to the pool.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	wrapper := taskWrapper{task: task, ctx: ctx}

	select {
	case p.taskQueue <- wrapper:
		p.ensureWorker()
		return nil
	default:
		// Queue full, try to spawn new worker
		if p.trySpawnWorker() {
			select {
			case p.taskQueue <- wrapper:
				return nil
			default:
			}
		}
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *GoroutinePool) ensureWorker() {
	if p.workerCount.Load() < int32(p.maxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *GoroutinePool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	retired := false
	defer func() {
		if !retired {
			p.workerCount.Add(-1)
		}
	}()

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case wrapper, ok := <-p.taskQueue:
			if !ok {
				return
			}

			p.activeCount.Add(1)
			err := p.executeTask(wrapper)
			p.activeCount.Add(-1)

			if err != nil {
				// onError 先于计数，观察到计数变化时错误已处理完
				if p.onError != nil {
					p.onError(err)
				}
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}

			timer.Reset(p.idleTimeout)

		case <-timer.C:
			// Idle timeout, exit if we have more than minimum workers
			if p.retire() {
				retired = true
				return
			}
			timer.Reset(p.idleTimeout)
		}
	}
}

// retire decrements workerCount for an idle worker that may exit. The count is
// released before the queue is re-checked: a Submit racing with the exit either
// sees the lower count and spawns a worker, or its task is seen here and the
// worker stays.
func (p *GoroutinePool) retire() bool {
	for {
		current := p.workerCount.Load()
		if current <= 1 {
			return false
		}
		if !p.workerCount.CompareAndSwap(current, current-1) {
			continue
		}
		if len(p.taskQueue) == 0 {
			return true
		}
		// Reclaim the slot unless a new worker already took it.
		for {
			n := p.workerCount.Load()
			if n >= int32(p.maxWorkers) {
				return true
			}
			if p.workerCount.CompareAndSwap(n, n+1) {
				return false
			}
		}
	}
}

func (p *GoroutinePool) executeTask(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return wrapper.task(wrapper.ctx)
}

// Close stops accepting tasks and waits for queued tasks to finish or ctx to
// expire. Safe to call more than once.
func (p *GoroutinePool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	// Queued tasks may outnumber live workers after idle exits.
	if len(p.taskQueue) > 0 && p.workerCount.Load() == 0 {
		p.trySpawnWorker()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns pool statistics.
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// GoroutinePoolStats contains pool statistics.
type GoroutinePoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
