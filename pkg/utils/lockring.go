package utils

import (
	"hash/fnv"
	"sync"
)

// LockRing is a fixed set of striped mutexes keyed by string. It
// serializes mutations per key (per message, per offer) without keeping a
// mutex per record alive forever.
type LockRing struct {
	shards []sync.Mutex
}

// NewLockRing returns a ring with n shards (rounded up to at least 1).
func NewLockRing(n int) *LockRing {
	if n < 1 {
		n = 1
	}
	return &LockRing{shards: make([]sync.Mutex, n)}
}

func (r *LockRing) idx(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	// reduce in uint32 space; converting first would go negative on
	// 32-bit platforms when the high bit is set
	return int(h.Sum32() % uint32(len(r.shards)))
}

// Lock acquires the shard covering key and returns its unlock func.
func (r *LockRing) Lock(key string) func() {
	m := &r.shards[r.idx(key)]
	m.Lock()
	return m.Unlock
}
