package service

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// lockTable serializes mutations per conversation. Operations on the
// same conversation queue behind one mutex; different conversations
// land on independent shards and proceed in parallel.
type lockTable struct {
	shards [lockShards]sync.Mutex
}

func (t *lockTable) shard(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &t.shards[h.Sum32()%lockShards]
}

// Lock acquires the shard for id and returns the unlock func.
func (t *lockTable) Lock(id string) func() {
	mu := t.shard(id)
	mu.Lock()
	return mu.Unlock
}

// convLocks is shared by every engine in the process so message and
// membership mutations on the same conversation serialize against each
// other, not just within one engine.
var convLocks lockTable
