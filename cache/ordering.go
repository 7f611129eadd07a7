package cache

import (
	"hash/maphash"
	"sync"
)

const orderStripes = 64

// writeOrder 保证 write-back 传播与后续写入、删除之间的按键顺序。
//
// 每次 Set 为键分配新的代次，传播任务在写入前于同一条带锁内核对代次，
// 代次已变化（被更新的 Set、Delete、Clear 或模式失效作废）时跳过写入。
// Delete 在删除各层之前先拿条带锁推进代次，因此正在执行的传播写入
// 一定先于删除完成，排队中的传播则会被跳过。只跟踪仍有待执行传播的键。
type writeOrder struct {
	seed    maphash.Seed
	stripes [orderStripes]orderStripe
}

type orderStripe struct {
	mu   sync.Mutex
	keys map[string]*pendingKey
}

type pendingKey struct {
	gen     uint64
	pending int
}

func newWriteOrder() *writeOrder {
	o := &writeOrder{seed: maphash.MakeSeed()}
	for i := range o.stripes {
		o.stripes[i].keys = make(map[string]*pendingKey)
	}
	return o
}

func (o *writeOrder) stripe(key string) *orderStripe {
	return &o.stripes[maphash.String(o.seed, key)%orderStripes]
}

// begin 为 key 登记 n 个待执行传播并返回它们的代次
func (o *writeOrder) begin(key string, n int) uint64 {
	s := o.stripe(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	pk, ok := s.keys[key]
	if !ok {
		pk = &pendingKey{}
		s.keys[key] = pk
	}
	pk.gen++
	pk.pending += n
	return pk.gen
}

// run 在条带锁内执行一次传播写入；代次过期时不调用 write，返回 false
func (o *writeOrder) run(key string, gen uint64, write func() error) (bool, error) {
	s := o.stripe(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.release(key)

	pk, ok := s.keys[key]
	if !ok || pk.gen != gen {
		return false, nil
	}
	return true, write()
}

// abandon 释放一个未能提交的传播
func (o *writeOrder) abandon(key string) {
	s := o.stripe(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release(key)
}

// release 调用方持有 s.mu
func (s *orderStripe) release(key string) {
	pk, ok := s.keys[key]
	if !ok {
		return
	}
	if pk.pending--; pk.pending <= 0 {
		delete(s.keys, key)
	}
}

// invalidate 作废 key 所有待执行的传播，并等待正在执行的传播写入结束
func (o *writeOrder) invalidate(key string) {
	s := o.stripe(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if pk, ok := s.keys[key]; ok {
		pk.gen++
	}
}

// invalidateMatching 作废所有 match 返回 true 的键的待执行传播
func (o *writeOrder) invalidateMatching(match func(key string) bool) {
	for i := range o.stripes {
		s := &o.stripes[i]
		s.mu.Lock()
		for k, pk := range s.keys {
			if match(k) {
				pk.gen++
			}
		}
		s.mu.Unlock()
	}
}

// pending 返回仍有待执行传播的键数量
func (o *writeOrder) pending() int {
	n := 0
	for i := range o.stripes {
		s := &o.stripes[i]
		s.mu.Lock()
		n += len(s.keys)
		s.mu.Unlock()
	}
	return n
}
