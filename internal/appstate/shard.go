package appstate

import (
	"hash/fnv"
	"sync"
)

// defaultShardCount is the width of every sharded map in this package. Keyed
// operations (node/edge upserts, index lookups, in-flight bucket access) only
// ever take the lock of the shard their key hashes into — never a
// process-wide lock.
const defaultShardCount = 64

// shardedMap is a fixed-width, hash-sharded map[string]V. It generalizes the
// per-generator nested-lock pattern of a single-writer tracker to a constant
// number of independently-locked buckets.
type shardedMap[V any] struct {
	shards []*mapShard[V]
	count  uint32
}

type mapShard[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

// entry pairs a key with its value for snapshot iteration.
type entry[V any] struct {
	Key   string
	Value V
}

func newShardedMap[V any](shardCount int) *shardedMap[V] {
	shards := make([]*mapShard[V], shardCount)
	for i := range shards {
		shards[i] = &mapShard[V]{m: make(map[string]V)}
	}
	return &shardedMap[V]{shards: shards, count: uint32(shardCount)}
}

func (sm *shardedMap[V]) shardFor(key string) *mapShard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return sm.shards[h.Sum32()%sm.count]
}

func (sm *shardedMap[V]) Get(key string) (V, bool) {
	sh := sm.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.m[key]
	return v, ok
}

func (sm *shardedMap[V]) Set(key string, v V) {
	sh := sm.shardFor(key)
	sh.mu.Lock()
	sh.m[key] = v
	sh.mu.Unlock()
}

func (sm *shardedMap[V]) Delete(key string) (V, bool) {
	sh := sm.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	return v, ok
}

// GetOrCreate returns the existing value for key, or atomically creates one
// via create and stores it. created reports which branch was taken so
// callers can distinguish a first-observation from a repeat.
func (sm *shardedMap[V]) GetOrCreate(key string, create func() V) (v V, created bool) {
	sh := sm.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if v, ok := sh.m[key]; ok {
		return v, false
	}
	v = create()
	sh.m[key] = v
	return v, true
}

// Entries returns a point-in-time snapshot of all key/value pairs. Each
// shard is locked only for the duration of copying its own contents.
func (sm *shardedMap[V]) Entries() []entry[V] {
	out := make([]entry[V], 0)
	for _, sh := range sm.shards {
		sh.mu.RLock()
		for k, v := range sh.m {
			out = append(out, entry[V]{Key: k, Value: v})
		}
		sh.mu.RUnlock()
	}
	return out
}

// Values is Entries without the keys, for building wire snapshots.
func (sm *shardedMap[V]) Values() []V {
	out := make([]V, 0)
	for _, sh := range sm.shards {
		sh.mu.RLock()
		for _, v := range sh.m {
			out = append(out, v)
		}
		sh.mu.RUnlock()
	}
	return out
}

func (sm *shardedMap[V]) Len() int {
	n := 0
	for _, sh := range sm.shards {
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}
