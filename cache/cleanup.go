package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tiercache/cache/disk"
)

// CleanupResult 一次清理的结果
type CleanupResult struct {
	Sweep            disk.SweepResult `json:"sweep"`
	PrunedOperations int              `json:"pruned_operations"`
}

// RunCleanup 同步执行一次清理：清扫 L3 中过期或无法解析的文件，
// 并删除早于保留期的操作日志。
func (c *MultiLevelCache) RunCleanup(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult

	if sw, ok := c.l3.(sweeper); ok {
		sweep, err := sw.Sweep(ctx)
		res.Sweep = sweep
		if err != nil {
			return res, fmt.Errorf("l3 sweep: %w", err)
		}
	}

	retention := c.cfg.OperationLogRetention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	res.PrunedOperations = c.oplog.Prune(c.now().Add(-retention))
	return res, nil
}

// startCleanup 启动定时清理协程，仅在启用 L3 时调用
func (c *MultiLevelCache) startCleanup(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.stopCleanup = cancel
	c.cleanupDone = make(chan struct{})

	go func() {
		defer close(c.cleanupDone)
		c.cleanupLoop(ctx, interval)
	}()
}

func (c *MultiLevelCache) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := c.RunCleanup(ctx)
			if err != nil {
				c.logger.Warn("cleanup failed", zap.Error(err))
				continue
			}
			c.logger.Debug("cleanup finished",
				zap.Int("removed_files", res.Sweep.Removed()),
				zap.Int("pruned_operations", res.PrunedOperations),
			)
		}
	}
}

func (c *MultiLevelCache) stopCleanupLoop() {
	if c.stopCleanup == nil {
		return
	}
	c.stopCleanup()
	<-c.cleanupDone
}
