package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/tiercache/types"
)

func TestOperationLog_Recent(t *testing.T) {
	log := NewOperationLog(3)
	assert.Empty(t, log.Recent(10))
	assert.Equal(t, 3, log.Cap())

	for _, k := range []string{"a", "b", "c", "d"} {
		log.Add(types.CacheOperation{Key: k})
	}

	assert.Equal(t, 3, log.Len())
	keys := func(ops []types.CacheOperation) []string {
		out := make([]string, 0, len(ops))
		for _, op := range ops {
			out = append(out, op.Key)
		}
		return out
	}
	assert.Equal(t, []string{"b", "c", "d"}, keys(log.Recent(0)))
	assert.Equal(t, []string{"c", "d"}, keys(log.Recent(2)))
}

func TestOperationLog_Prune(t *testing.T) {
	log := NewOperationLog(10)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		log.Add(types.CacheOperation{Key: string(rune('a' + i)), Timestamp: base.Add(time.Duration(i) * time.Hour)})
	}

	assert.Equal(t, 2, log.Prune(base.Add(2*time.Hour)))
	assert.Equal(t, 3, log.Len())
	assert.Equal(t, "c", log.Recent(0)[0].Key)

	assert.Equal(t, 0, log.Prune(base))
	assert.Equal(t, 3, log.Prune(base.Add(24*time.Hour)))
	assert.Zero(t, log.Len())

	// 清空后继续使用
	log.Add(types.CacheOperation{Key: "z"})
	assert.Equal(t, 1, log.Len())
}

func TestNormalizeKey(t *testing.T) {
	k := NormalizeKey("user:1")
	assert.Len(t, k, 32)
	assert.Equal(t, k, NormalizeKey("user:1"))
	assert.NotEqual(t, k, NormalizeKey("user:2"))
	assert.Equal(t, k[:2], ShardOf(k))
	assert.Equal(t, "a", ShardOf("a"))
}
