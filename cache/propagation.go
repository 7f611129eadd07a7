package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/types"
)

// PropagationError write-back 后台传播失败事件
type PropagationError struct {
	Key   string      `json:"key"`
	Level types.Level `json:"level"`
	Err   error       `json:"-"`
	Time  time.Time   `json:"time"`
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagate %s to %s: %v", e.Key, e.Level, e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }

// Errors 返回传播失败事件流。发送不阻塞，没有消费者时事件被丢弃（日志与统计仍会记录）。
// Close 后通道关闭。
func (c *MultiLevelCache) Errors() <-chan PropagationError {
	return c.errCh
}

// propagate 把条目异步写入其余层级，每个层级一个任务。
// 任务不继承调用方的取消，set 返回后传播仍会完成；gen 由 writeOrder.begin 分配，
// 被后续写入或删除作废的任务跳过写入。
func (c *MultiLevelCache) propagate(ctx context.Context, nk string, item *types.CacheItem, rest []Tier, gen uint64) {
	if len(rest) == 0 {
		return
	}
	bg := context.WithoutCancel(ctx)

	for _, t := range rest {
		err := c.propagation.Submit(bg, func(ctx context.Context) error {
			written, err := c.order.run(nk, gen, func() error {
				return t.Set(ctx, nk, item)
			})
			if err != nil {
				return &PropagationError{Key: nk, Level: t.Level(), Err: err, Time: c.now()}
			}
			if !written {
				c.logger.Debug("stale propagation skipped",
					zap.String("key", nk), zap.String("level", string(t.Level())))
			}
			return nil
		})
		if err != nil {
			c.order.abandon(nk)
			c.onPropagationError(&PropagationError{Key: nk, Level: t.Level(), Err: err, Time: c.now()})
		}
	}
}

// onPropagationError 记录一次传播失败：日志、统计、指标、操作日志与事件流
func (c *MultiLevelCache) onPropagationError(err error) {
	var pe *PropagationError
	if !errors.As(err, &pe) {
		// 任务 panic 时拿不到层级信息
		pe = &PropagationError{Err: err, Time: c.now()}
	}

	c.logger.Error("write-back propagation failed",
		zap.String("key", pe.Key), zap.String("level", string(pe.Level)), zap.Error(pe.Err))
	c.stats.propagationErrors.Add(1)
	c.recorder.RecordPropagationError(pe.Level)
	c.oplog.Add(types.CacheOperation{
		ID:        uuid.NewString(),
		Operation: types.OpPropagate,
		Key:       pe.Key,
		Level:     pe.Level,
		Timestamp: pe.Time,
		Success:   false,
	})

	c.errMu.RLock()
	defer c.errMu.RUnlock()
	if c.errClosed {
		return
	}
	select {
	case c.errCh <- *pe:
	default:
	}
}

// Flush 等待当前已提交的传播任务执行完毕或 ctx 到期，用于测试与优雅关闭前的同步点
func (c *MultiLevelCache) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := c.propagation.Stats()
		if st.Completed+st.Failed+st.Rejected >= st.Submitted {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
