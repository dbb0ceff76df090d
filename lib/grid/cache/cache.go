package cache

import (
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/cache/internal"
	"github.com/ValentinKolb/dGrid/lib/grid/entry"
	"github.com/ValentinKolb/dGrid/lib/offheap"
	"github.com/ValentinKolb/dGrid/lib/swap"
	"github.com/ValentinKolb/dGrid/lib/util"
	"github.com/ValentinKolb/dGrid/lib/version"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("cache")

// --------------------------------------------------------------------------
// Core cache structure
// --------------------------------------------------------------------------

// gridCache implements grid.ICache on a sharded entry map with per-shard
// sweeper goroutines for eager ttl expiry and tombstone purging.
type gridCache struct {
	cfg      grid.Config
	features grid.Feature

	cctx *entry.CacheContext

	seed   uint64            // Seed for the key hash function
	shards []*internal.Shard // Array of shards

	// tombstones counts attached tombstone entries (deferred-delete mode).
	// The public size is the map size minus this counter.
	tombstones atomic.Int64

	// arena is the concrete off-heap arena when one is available, kept for
	// usage statistics. The entries only see the interface.
	arena *offheap.Arena

	sweepEvery int64 // Sweep interval in millis

	closed atomic.Bool
	wg     sync.WaitGroup
}

// Options injects the collaborators of a cache instance. All fields are
// optional; nil disables the concern or falls back to a default. Injected
// swap stores and arenas are closed together with the cache.
type Options struct {
	// Versions is the version manager shared with the rest of the node.
	// Nil creates a fresh single-node manager.
	Versions *version.Manager

	// Store is the persistent system of record consulted on read-through
	// misses and updated on write-through mutations.
	Store grid.IBackingStore

	// Index receives value updates for secondary indexing.
	Index grid.IIndexManager

	// Swap overrides the swap tier built from the configuration.
	Swap grid.ISwapStore

	// Arena overrides the off-heap arena built from the configuration.
	Arena grid.IOffHeapArena

	// Events receives entry lifecycle events. Publish must not block.
	Events grid.IEventBus

	// Interceptor observes and vetoes mutations.
	Interceptor grid.IInterceptor

	// Resolver arbitrates replicated updates.
	Resolver grid.IConflictResolver

	// Metrics receives operation counters.
	Metrics grid.IMetrics
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// New creates a grid cache instance for the given configuration. The
// configuration is validated first, zero values are filled with defaults.
//
// Thread-safety: the returned cache is safe for concurrent use.
func New(cfg grid.Config, opts *Options) (grid.ICache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}

	versions := opts.Versions
	if versions == nil {
		versions = version.NewManager(0)
	}

	// build the configured tiers unless the caller injected its own
	swapStore := opts.Swap
	if swapStore == nil && cfg.SwapEnabled() {
		st, err := swap.NewFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		swapStore = st
	}

	var concreteArena *offheap.Arena
	arena := opts.Arena
	if arena == nil && cfg.OffHeapSize > 0 {
		a, err := offheap.New(int(cfg.OffHeapSize))
		if err != nil {
			if swapStore != nil {
				_ = swapStore.Close()
			}
			return nil, err
		}
		concreteArena = a
		arena = a
	}
	if a, ok := arena.(*offheap.Arena); ok {
		concreteArena = a
	}

	features := cfg.Features()
	if opts.Store == nil {
		features &^= grid.FeatureReadThrough | grid.FeatureWriteThrough
	}
	if opts.Events == nil {
		features &^= grid.FeatureEvents
	}
	// injected tiers light up their feature flags like configured ones
	if swapStore != nil {
		features |= grid.FeatureSwap
	}
	if arena != nil {
		features |= grid.FeatureOffHeap
	}

	// Generate a seed for this cache instance
	seed := util.GenerateSeed()
	hasher := createIdentityHasher()

	// Create shards
	shards := make([]*internal.Shard, cfg.Shards)
	for i := 0; i < cfg.Shards; i++ {
		shards[i] = internal.NewShard(hasher)
	}

	c := &gridCache{
		cfg:        cfg,
		features:   features,
		seed:       seed,
		shards:     shards,
		arena:      concreteArena,
		sweepEvery: cfg.SweepInterval,
	}
	if c.sweepEvery <= 0 {
		c.sweepEvery = 100
	}

	c.cctx = &entry.CacheContext{
		Versions:       versions,
		Store:          coalesceLoads(opts.Store),
		Index:          opts.Index,
		Swap:           swapStore,
		Arena:          arena,
		Events:         opts.Events,
		Interceptor:    opts.Interceptor,
		Resolver:       opts.Resolver,
		Metrics:        opts.Metrics,
		DeferredDelete: cfg.DeferredDelete,
		ReadThrough:    cfg.ReadThrough,
		WriteThrough:   cfg.WriteThrough,

		OnMarkedObsolete: c.onMarkedObsolete,
	}
	if cfg.DeferredDelete {
		c.cctx.OnDeleted = c.onDeleted
	}
	if cfg.EagerTTL {
		c.cctx.OnExpiryChanged = c.onExpiryChanged
	}

	// start the per-shard sweepers
	c.wg.Add(len(c.shards))
	for _, s := range c.shards {
		go c.sweeper(s)
	}

	log.Infof("grid cache started (shards=%d, features=%d)", cfg.Shards, features)

	return c, nil
}

// createIdentityHasher creates a hash function that combines a key with a seed.
// The map keys are already hashed, so no further mixing is needed.
func createIdentityHasher() func(util.UintKey, uint64) uint64 {
	return func(key util.UintKey, mapSeed uint64) uint64 {
		return uint64(key) ^ mapSeed
	}
}

// --------------------------------------------------------------------------
// Hash Helper Functions
// --------------------------------------------------------------------------

// hashKey converts a string key to a util.UintKey with hashing and applies
// the cache seed to ensure uniqueness between cache instances.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) hashKey(key string) util.UintKey {
	return util.HashString(key, c.seed)
}

// shardFor returns the shard responsible for a key hash.
func (c *gridCache) shardFor(hash util.UintKey) *internal.Shard {
	return internal.GetShard(hash, c.shards)
}

// --------------------------------------------------------------------------
// Entry Management
// --------------------------------------------------------------------------

// entryFor returns the attached entry for key, creating one when the slot is
// empty or holds a retired entry. Callers retry their operation when the
// returned entry reports obsolete, a concurrent sweep may retire it at any
// time.
func (c *gridCache) entryFor(key string) *entry.Entry {
	hash := c.hashKey(key)
	s := c.shardFor(hash)

	for {
		if ent, ok := s.Data.Load(hash); ok {
			if !ent.Obsolete() {
				return ent
			}
			// the slot holds a retired entry whose detach has not landed
			// yet, free it and take a fresh one
			c.detach(ent)
		}

		ent, _ := s.Data.LoadOrCompute(hash, func() *entry.Entry {
			return entry.New(c.cctx, key, uint64(hash))
		})
		if !ent.Obsolete() {
			return ent
		}
		c.detach(ent)
	}
}

// peekEntry returns the attached entry for key without creating one.
func (c *gridCache) peekEntry(key string) (*entry.Entry, bool) {
	hash := c.hashKey(key)
	ent, ok := c.shardFor(hash).Data.Load(hash)
	if !ok || ent.Obsolete() {
		return nil, false
	}
	return ent, true
}

// detach removes the entry from its shard map, settling the tombstone
// accounting. Only the exact entry is removed, a successor under the same
// key keeps its slot. The accounting runs at most once per entry because
// the map slot can only be emptied of this pointer once.
func (c *gridCache) detach(e *entry.Entry) {
	hash := util.UintKey(e.KeyHash())
	s := c.shardFor(hash)

	removed := false
	s.Data.Compute(hash, func(old *entry.Entry, loaded bool) (*entry.Entry, bool) {
		if !loaded {
			// deleting an absent key is a no-op, never insert here
			return old, true
		}
		removed = old == e
		return old, removed
	})

	if removed && e.Deleted() {
		c.tombstones.Add(-1)
	}
}

// touch retires the entry when it holds no live value, so the map does not
// accumulate empty slots. Entries kept alive by lock candidates and existing
// tombstones are left alone; the entry handles both.
func (c *gridCache) touch(e *entry.Entry) {
	if _, err := e.MarkObsoleteIfEmpty(version.Version{}); err != nil {
		log.Warningf("failed to retire empty entry (key=%s): %v", e.Key(), err)
	}
}

// --------------------------------------------------------------------------
// Entry Callbacks
// --------------------------------------------------------------------------

// onMarkedObsolete detaches a retired entry from the map. Called outside the
// entry mutex, possibly more than once for the same entry.
func (c *gridCache) onMarkedObsolete(e *entry.Entry) {
	c.detach(e)
}

// onDeleted adjusts the tombstone accounting and schedules the purge. Called
// under the entry mutex whenever the tombstone flag flips, so it only pushes
// to the shard's event queue.
func (c *gridCache) onDeleted(e *entry.Entry, deleted bool) {
	ev := &internal.Event{Type: internal.EventTTombstone, Key: e.KeyHash()}
	if deleted {
		c.tombstones.Add(1)
		ev.When = grid.ToExpireTime(c.cfg.TombstonePurgeAfter)
	} else {
		c.tombstones.Add(-1)
	}
	c.shardFor(util.UintKey(e.KeyHash())).Events.Push(ev)
}

// onExpiryChanged keeps the eager sweeper's deadline tracking in step with
// the entry. Called under the entry mutex, so it only pushes to the shard's
// event queue. expireTime 0 cancels the tracking.
func (c *gridCache) onExpiryChanged(e *entry.Entry, expireTime int64) {
	c.shardFor(util.UintKey(e.KeyHash())).Events.Push(&internal.Event{
		Type: internal.EventTExpiry,
		Key:  e.KeyHash(),
		When: expireTime,
	})
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// checkOpen fails with a RetCClosed error once the cache has been closed.
func (c *gridCache) checkOpen() error {
	if c.closed.Load() {
		return grid.NewError(grid.RetCClosed, "cache is closed")
	}
	return nil
}

// Close stops the sweepers and releases the swap store and the off-heap
// arena. Closing twice is a no-op.
func (c *gridCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	// closing the queues stops the sweeper goroutines
	for _, s := range c.shards {
		s.Events.Close()
	}
	c.wg.Wait()

	var firstErr error
	if c.cctx.Swap != nil {
		if err := c.cctx.Swap.Close(); err != nil {
			firstErr = err
		}
	}
	if c.cctx.Arena != nil {
		if err := c.cctx.Arena.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	log.Infof("grid cache closed")
	return firstErr
}

// --------------------------------------------------------------------------
// Value Helpers
// --------------------------------------------------------------------------

// copyBytes returns a copy so callers and the cache never share a mutable
// slice.
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

// copyValue copies an incoming value, normalizing nil to an empty slice so
// it is storable (a nil value means "no value" inside the entry).
func copyValue(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
