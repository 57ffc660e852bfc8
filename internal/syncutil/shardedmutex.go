// Package syncutil provides a fixed-width sharded mutex keyed by
// agent_id, so that internal/ledger's TryDebit/Fund critical sections for
// distinct agents never contend with each other while operations on the
// same agent still serialize strictly, without growing one lock per agent
// ever seen.
package syncutil

import (
	"hash/fnv"
	"sync"
)

// shardCount is fixed rather than scaled to the ledger's account count:
// bounded memory matters more than minimizing false sharing between two
// agents whose ids happen to hash to the same shard.
const shardCount = 256

// ShardedMutex is a fixed-size pool of mutexes keyed by string. Unlike a
// sync.Map of per-key mutexes, this uses bounded memory regardless of how
// many distinct keys (agent ids) are seen, at the cost of occasional false
// sharing between agents whose ids hash to the same shard.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the mutex for the given agent id and returns an unlock
// function.
func (s *ShardedMutex) Lock(agentID string) func() {
	mu := s.shard(agentID)
	mu.Lock()
	return mu.Unlock
}

func (s *ShardedMutex) shard(agentID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	return &s.shards[h.Sum32()%shardCount]
}
