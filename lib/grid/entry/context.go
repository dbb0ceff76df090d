package entry

import (
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Cache Context
// --------------------------------------------------------------------------

// CacheContext bundles the collaborators and settings shared by all entries
// of one cache instance. The cache builds a single context at startup and
// hands it to every entry it creates; entries never mutate it.
//
// Only Versions is required. Optional collaborators left nil disable the
// concern they serve (no swap tier, no backing store, ...).
type CacheContext struct {
	// Versions issues and absorbs version stamps.
	Versions *version.Manager

	// Store is the persistent system of record behind the cache.
	Store grid.IBackingStore

	// Index receives value updates for secondary indexing.
	Index grid.IIndexManager

	// Swap is the disk tier for demoted values.
	Swap grid.ISwapStore

	// Arena keeps values outside the Go heap.
	Arena grid.IOffHeapArena

	// Events receives entry lifecycle events.
	Events grid.IEventBus

	// Interceptor observes and vetoes mutations.
	Interceptor grid.IInterceptor

	// Resolver arbitrates replicated updates. Without a resolver incoming
	// conflict versions are discarded and plain version ordering applies.
	Resolver grid.IConflictResolver

	// Metrics receives operation counters.
	Metrics grid.IMetrics

	// DeferredDelete keeps removed entries as versioned tombstones instead
	// of retiring them immediately.
	DeferredDelete bool

	// ReadThrough allows read misses to consult Store.
	ReadThrough bool

	// WriteThrough persists mutations to Store.
	WriteThrough bool

	// OnMarkedObsolete is invoked after an entry transitioned to obsolete,
	// outside the entry mutex. The cache detaches the entry from its map.
	OnMarkedObsolete func(e *Entry)

	// OnDeleted is invoked under the entry mutex whenever the tombstone
	// flag flips. The cache adjusts its public size and schedules the
	// tombstone purge. Must be cheap and must not call back into the entry.
	OnDeleted func(e *Entry, deleted bool)

	// OnExpiryChanged is invoked under the entry mutex whenever the stored
	// expire time changes; expireTime 0 cancels tracking. Must be cheap and
	// must not call back into the entry.
	OnExpiryChanged func(e *Entry, expireTime int64)
}

// readThrough reports whether read misses may consult the backing store.
func (c *CacheContext) readThrough() bool { return c.ReadThrough && c.Store != nil }

// writeThrough reports whether mutations are persisted to the backing store.
func (c *CacheContext) writeThrough() bool { return c.WriteThrough && c.Store != nil }

func (c *CacheContext) swapEnabled() bool    { return c.Swap != nil }
func (c *CacheContext) offHeapEnabled() bool { return c.Arena != nil }

// events returns the configured bus, or a nop bus.
func (c *CacheContext) events() grid.IEventBus {
	if c.Events == nil {
		return grid.NopEventBus{}
	}
	return c.Events
}

// metrics returns the configured sink, or a nop sink.
func (c *CacheContext) metrics() grid.IMetrics {
	if c.Metrics == nil {
		return grid.NopMetrics{}
	}
	return c.Metrics
}

// interceptor returns the configured interceptor, or a pass-through.
func (c *CacheContext) interceptor() grid.IInterceptor {
	if c.Interceptor == nil {
		return grid.NopInterceptor{}
	}
	return c.Interceptor
}

func (c *CacheContext) notifyObsolete(e *Entry) {
	if c.OnMarkedObsolete != nil {
		c.OnMarkedObsolete(e)
	}
}

func (c *CacheContext) notifyDeleted(e *Entry, deleted bool) {
	if c.OnDeleted != nil {
		c.OnDeleted(e, deleted)
	}
}

func (c *CacheContext) trackExpiry(e *Entry, expireTime int64) {
	if c.OnExpiryChanged != nil {
		c.OnExpiryChanged(e, expireTime)
	}
}
