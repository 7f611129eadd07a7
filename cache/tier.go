package cache

import (
	"context"
	"regexp"
	"time"

	"github.com/BaSui01/tiercache/cache/disk"
	"github.com/BaSui01/tiercache/types"
)

// Tier 单个缓存层级。未命中必须返回 types.ErrCacheMiss，其余错误视为层级故障。
type Tier interface {
	Level() types.Level
	Get(ctx context.Context, key string) (*types.CacheItem, error)
	Set(ctx context.Context, key string, item *types.CacheItem) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int64, error)
}

// patternDeleter 支持按正则删除的层级（L2），返回被删除的规范化键
type patternDeleter interface {
	DeleteMatchingKeys(ctx context.Context, re *regexp.Regexp) ([]string, error)
}

// sweeper 支持过期清扫的层级（L3）
type sweeper interface {
	Sweep(ctx context.Context) (disk.SweepResult, error)
}

// pinger 支持连通性检查的层级（L2）
type pinger interface {
	Ping(ctx context.Context) error
}

// closer 需要在 Close 时释放资源的层级
type closer interface {
	Close() error
}

// Recorder 接收缓存事件，用于导出指标。internal/metrics.Collector 实现了该接口。
type Recorder interface {
	RecordHit(level types.Level)
	RecordMiss(level types.Level)
	RecordOperation(op types.OperationType, level types.Level, success bool, duration time.Duration)
	RecordEviction(level types.Level)
	RecordPropagationError(level types.Level)
	RecordSize(level types.Level, entries int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordHit(types.Level) {}
func (nopRecorder) RecordMiss(types.Level) {}
func (nopRecorder) RecordOperation(types.OperationType, types.Level, bool, time.Duration) {}
func (nopRecorder) RecordEviction(types.Level) {}
func (nopRecorder) RecordPropagationError(types.Level) {}
func (nopRecorder) RecordSize(types.Level, int64) {}
