// Package cache implements the grid.ICache engine on a sharded entry map.
//
// Keys hash onto a fixed set of shards, each holding a concurrent map of
// entry state machines plus one sweeper goroutine. All operations resolve
// the key's entry and delegate to it; when a concurrent sweep retires the
// entry between lookup and operation, the operation fetches a fresh entry
// and retries. The cache itself takes no lock across entries.
//
// The sweeper owns the shard's two deadline heaps. Entries report deadline
// changes through a lock-free event queue: ttl deadlines for eager expiry,
// purge deadlines for tombstones in deferred-delete mode. Each cycle drains
// the queue, then retires every entry whose deadline elapsed. The heaps are
// advisory, the entry re-checks every verdict under its own mutex.
//
// Entries that end up without a live value (read misses, removals, failed
// conditional writes) are retired immediately so the map holds no empty
// slots; in deferred-delete mode removals instead leave version-carrying
// tombstones until the purger retires them.
//
// Construction:
//
//	c, err := cache.New(grid.DefaultConfig(), &cache.Options{
//	  Store: myStore, // optional read/write-through backing store
//	})
//	if err != nil {
//	  log.Fatalf("cache error: %v", err)
//	}
//	defer c.Close()
//
// The zero Options value (or nil) yields a standalone in-memory cache.
// Collaborator tiers built from the configuration (swap store, off-heap
// arena) are owned and closed by the cache.
package cache
