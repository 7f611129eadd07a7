package cache

import (
	"sync/atomic"

	"github.com/BaSui01/tiercache/types"
)

// levelCounters 单个层级的计数
type levelCounters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	size   atomic.Int64 // L2/L3 为最近一次 Size 观测值
}

func (lc *levelCounters) snapshot() types.LevelStats {
	hits, misses := lc.hits.Load(), lc.misses.Load()
	return types.LevelStats{
		Hits:    hits,
		Misses:  misses,
		Size:    lc.size.Load(),
		HitRate: types.HitRate(hits, misses),
	}
}

// statsTracker 命中统计，全部为原子计数，可无锁并发更新
type statsTracker struct {
	levels map[types.Level]*levelCounters

	sets              atomic.Uint64
	deletes           atomic.Uint64
	evictions         atomic.Uint64
	propagationErrors atomic.Uint64
}

func newStatsTracker() *statsTracker {
	return &statsTracker{
		levels: map[types.Level]*levelCounters{
			types.LevelL1: {},
			types.LevelL2: {},
			types.LevelL3: {},
		},
	}
}

func (s *statsTracker) hit(level types.Level) {
	if lc, ok := s.levels[level]; ok {
		lc.hits.Add(1)
	}
}

func (s *statsTracker) miss(level types.Level) {
	if lc, ok := s.levels[level]; ok {
		lc.misses.Add(1)
	}
}

func (s *statsTracker) observeSize(level types.Level, n int64) {
	if lc, ok := s.levels[level]; ok {
		lc.size.Store(n)
	}
}

// snapshot 汇总当前统计；总命中率 = 各层命中之和 / 各层命中与未命中之和
func (s *statsTracker) snapshot() types.CacheStats {
	st := types.CacheStats{
		L1:                s.levels[types.LevelL1].snapshot(),
		L2:                s.levels[types.LevelL2].snapshot(),
		L3:                s.levels[types.LevelL3].snapshot(),
		Sets:              s.sets.Load(),
		Deletes:           s.deletes.Load(),
		Evictions:         s.evictions.Load(),
		PropagationErrors: s.propagationErrors.Load(),
	}

	for _, ls := range []types.LevelStats{st.L1, st.L2, st.L3} {
		st.Overall.Hits += ls.Hits
		st.Overall.Misses += ls.Misses
		st.Overall.Size += ls.Size
	}
	st.Overall.HitRate = types.HitRate(st.Overall.Hits, st.Overall.Misses)
	return st
}
