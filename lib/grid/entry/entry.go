package entry

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/offheap"
	"github.com/ValentinKolb/dGrid/lib/version"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("entry")

// --------------------------------------------------------------------------
// Lifecycle Flags
// --------------------------------------------------------------------------

const (
	// flagDeleted marks a tombstone: the entry is known removed but kept
	// versioned until the purge (deferred-delete mode only).
	flagDeleted uint8 = 1 << 0

	// flagUnswapped records that the swap tier was probed once; further
	// probes are skipped until the entry is repopulated.
	flagUnswapped uint8 = 1 << 1
)

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Entry is one key slot of the grid cache. See the package documentation
// for the lifecycle and locking rules.
type Entry struct {
	mu sync.Mutex

	cctx *CacheContext

	key  string
	hash uint64

	// value placement: at most one of val / off is set while a value is
	// present. off is an arena handle, offheap.Nil means no allocation.
	val []byte
	off offheap.Handle

	// ver stamps the current value. Entries carry the node's start version
	// until first populated.
	ver version.Version

	flags uint8

	// extras bundles the rarely used side-state, nil while all facets are
	// at their defaults.
	extras *extras
}

// New creates an unpopulated entry for key. hash is the cache's key hash,
// kept for the expiry and purge heaps.
func New(cctx *CacheContext, key string, hash uint64) *Entry {
	return &Entry{
		cctx: cctx,
		key:  key,
		hash: hash,
		ver:  cctx.Versions.StartVersion(),
	}
}

// Key returns the entry key.
func (e *Entry) Key() string { return e.key }

// KeyHash returns the precomputed hash of the key.
func (e *Entry) KeyHash() uint64 { return e.hash }

// Version returns the version of the current value.
//
// Thread-safe.
func (e *Entry) Version() version.Version {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ver
}

// IsNew reports whether the entry has never been populated locally.
//
// Thread-safe.
func (e *Entry) IsNew() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isStartVersionLocked()
}

// HasValue reports whether the entry currently holds a value.
//
// Thread-safe.
func (e *Entry) HasValue() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasValueLocked()
}

// Deleted reports whether the entry is a tombstone.
//
// Thread-safe.
func (e *Entry) Deleted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deletedLocked()
}

// TTL returns the ttl of the current value, TTLEternal when none is set.
//
// Thread-safe.
func (e *Entry) TTL() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ttlLocked()
}

// ExpireTime returns the absolute deadline of the current value,
// ExpireEternal when the value never expires.
//
// Thread-safe.
func (e *Entry) ExpireTime() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expireTimeLocked()
}

// Obsolete reports whether the entry has been retired.
//
// Thread-safe.
func (e *Entry) Obsolete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.obsoleteVersionLocked() != nil
}

// ObsoleteVersion returns the version the entry was retired under, the zero
// version while the entry is live.
//
// Thread-safe.
func (e *Entry) ObsoleteVersion() version.Version {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v := e.obsoleteVersionLocked(); v != nil {
		return *v
	}
	return version.Version{}
}

// ObsoleteOrDeleted reports whether the entry is retired, or holds no live
// value in deferred-delete mode. The cache skips such entries when sizing
// and iterating.
//
// Thread-safe.
func (e *Entry) ObsoleteOrDeleted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.obsoleteOrDeletedLocked()
}

func (e *Entry) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("Entry{key=%s, ver=%s, hasValue=%t, deleted=%t, obsolete=%t}",
		e.key, e.ver, e.hasValueLocked(), e.deletedLocked(), e.obsoleteVersionLocked() != nil)
}

// --------------------------------------------------------------------------
// Internal State Helpers (entry mutex held)
// --------------------------------------------------------------------------

func (e *Entry) isStartVersionLocked() bool {
	return e.cctx.Versions.IsStartVersion(e.ver)
}

// checkObsoleteLocked fails with a RetCRemoved error when the entry has
// been retired.
func (e *Entry) checkObsoleteLocked() error {
	if e.obsoleteVersionLocked() != nil {
		return grid.NewErrorf(grid.RetCRemoved, "entry is obsolete (key=%s)", e.key)
	}
	return nil
}

func (e *Entry) deletedLocked() bool { return e.flags&flagDeleted != 0 }

// setDeletedLocked flips the tombstone flag and notifies the cache so it
// can adjust its public size and purge queue.
func (e *Entry) setDeletedLocked(deleted bool) {
	if e.deletedLocked() == deleted {
		return
	}
	if deleted {
		e.flags |= flagDeleted
	} else {
		e.flags &^= flagDeleted
	}
	e.cctx.notifyDeleted(e, deleted)
}

func (e *Entry) unswappedLocked() bool { return e.flags&flagUnswapped != 0 }

func (e *Entry) setUnswappedLocked() { e.flags |= flagUnswapped }

func (e *Entry) hasValueLocked() bool { return e.val != nil || e.off != offheap.Nil }

// valueLocked materializes the current value regardless of placement.
func (e *Entry) valueLocked() []byte {
	if e.val != nil {
		return e.val
	}
	if e.off != offheap.Nil {
		return e.cctx.Arena.Get(e.off)
	}
	return nil
}

// setValueLocked installs the value, preferring the off-heap arena when one
// is configured and releasing any previous allocation. A full arena falls
// back to the heap.
func (e *Entry) setValueLocked(val []byte) {
	if e.off != offheap.Nil {
		e.cctx.Arena.Release(e.off)
		e.off = offheap.Nil
	}
	e.val = nil

	if val == nil {
		return
	}
	if e.cctx.offHeapEnabled() {
		h, err := e.cctx.Arena.Put(val)
		if err == nil {
			e.off = h
			return
		}
		log.Warningf("off-heap put failed, keeping value on heap (key=%s): %v", e.key, err)
	}
	e.val = val
}

// updateLocked commits a new value state: placement, ttl/expire pair and
// version, retracking the eager expiry when the deadline changed.
func (e *Entry) updateLocked(val []byte, ttl, expireTime int64, ver version.Version) {
	prevExpire := e.expireTimeLocked()

	e.setValueLocked(val)
	e.setTTLAndExpireLocked(ttl, expireTime)
	e.ver = ver

	if expireTime != prevExpire {
		e.cctx.trackExpiry(e, expireTime)
	}
}

// nextVersionLocked draws a successor stamp that stays in the entry's
// current topology epoch.
func (e *Entry) nextVersionLocked() version.Version {
	return e.cctx.Versions.NextFor(e.ver)
}

func (e *Entry) obsoleteOrDeletedLocked() bool {
	return e.obsoleteVersionLocked() != nil ||
		(e.cctx.DeferredDelete && (e.deletedLocked() || !e.hasValueLocked()))
}

// publishLocked emits a lifecycle event. The bus contract forbids blocking,
// so publishing under the mutex is safe.
func (e *Entry) publishLocked(t grid.EventType, oldVal, newVal []byte, ver version.Version) {
	e.cctx.events().Publish(grid.Event{
		Type:     t,
		Key:      e.key,
		OldValue: oldVal,
		NewValue: newVal,
		Ver:      ver,
	})
}

// updateIndexLocked keeps the secondary index in step with the entry while
// the mutex is held.
func (e *Entry) updateIndexLocked(val []byte, expireTime int64, ver version.Version, prevVal []byte) error {
	if e.cctx.Index == nil {
		return nil
	}
	if err := e.cctx.Index.Store(e.key, val, expireTime, ver, prevVal); err != nil {
		return grid.WrapError(grid.RetCStoreFailure, "index update failed", err)
	}
	return nil
}

// clearIndexLocked drops the index entry for this key.
func (e *Entry) clearIndexLocked() error {
	if e.cctx.Index == nil {
		return nil
	}
	if err := e.cctx.Index.Remove(e.key); err != nil {
		return grid.WrapError(grid.RetCStoreFailure, "index remove failed", err)
	}
	return nil
}
