package entry

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/grid"
)

// --------------------------------------------------------------------------
// Get Options
// --------------------------------------------------------------------------

// GetOptions controls one InnerGet invocation.
type GetOptions struct {
	// ReadSwap probes the swap tier for never-populated entries.
	ReadSwap bool

	// ReadThrough consults the backing store on a miss. Requires the cache
	// context to allow read-through.
	ReadThrough bool

	// Metrics updates the hit/miss counters.
	Metrics bool

	// Event publishes read/expired events.
	Event bool

	// ExpiryPolicy, when set, renews the ttl on a hit (sliding expiration).
	ExpiryPolicy grid.IExpiryPolicy
}

// --------------------------------------------------------------------------
// InnerGet
// --------------------------------------------------------------------------

// InnerGet is the entry read path: it consults the in-memory value, then the
// swap tier for never-populated entries, and finally the backing store.
// Returns nil when the key has no live value.
//
// The store load runs outside the mutex. The loaded value is installed only
// when the entry version is unchanged afterwards, so a concurrent writer
// always wins over a stale load; the loaded value is returned to the caller
// either way.
//
// Thread-safe.
func (e *Entry) InnerGet(ctx context.Context, opts GetOptions) ([]byte, error) {
	readThrough := opts.ReadThrough && e.cctx.readThrough()

	e.mu.Lock()

	if err := e.checkObsoleteLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	// version snapshot for the optimistic install after the store load
	startVer := e.ver

	expired := e.expiredLocked()
	val := e.valueLocked()

	// probe the swap tier for entries that were never populated locally
	if val == nil && opts.ReadSwap && e.isStartVersionLocked() {
		if expired {
			// born expired: the deadline elapsed while swapped out
			if err := e.releaseSwapLocked(); err != nil {
				e.mu.Unlock()
				return nil, err
			}
			if err := e.clearIndexLocked(); err != nil {
				e.mu.Unlock()
				return nil, err
			}
		} else {
			v, err := e.unswapLocked(true)
			if err != nil {
				e.mu.Unlock()
				return nil, err
			}
			val = v

			// the promoted value brought its own deadline
			expired = e.expiredLocked()
		}
	}

	var ret []byte

	if expired {
		expiredVal := val
		e.setValueLocked(nil)

		if opts.Event {
			e.publishLocked(grid.EventExpired, expiredVal, nil, e.ver)
		}
	} else {
		ret = val
	}

	if ret != nil {
		if opts.Metrics {
			e.cctx.metrics().OnRead(true)
		}
		if opts.Event {
			e.publishLocked(grid.EventRead, ret, ret, e.ver)
		}
		e.touchLocked(opts.ExpiryPolicy)
	} else if opts.Metrics {
		e.cctx.metrics().OnRead(false)
	}

	e.mu.Unlock()

	if ret != nil {
		return ret, nil
	}
	if !readThrough {
		return nil, nil
	}

	// miss: consult the backing store outside the mutex
	loaded, found, err := e.cctx.Store.Load(ctx, e.key)
	if err != nil {
		return nil, grid.WrapError(grid.RetCStoreFailure, "read-through load failed", err)
	}
	if !found {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// install only if nobody raced us while the store was consulted
	if e.ver.Equal(startVer) {
		nextVer := e.nextVersionLocked()

		ttl := e.ttlLocked()
		expTime := grid.ToExpireTime(ttl)
		prev := e.valueLocked()

		if err := e.updateIndexLocked(loaded, expTime, nextVer, prev); err != nil {
			return nil, err
		}
		e.updateLocked(loaded, ttl, expTime, nextVer)

		if e.cctx.DeferredDelete && e.deletedLocked() {
			e.setDeletedLocked(false)
		}
		if opts.Event {
			e.publishLocked(grid.EventRead, loaded, loaded, nextVer)
		}
	}

	return loaded, nil
}

// --------------------------------------------------------------------------
// InnerReload
// --------------------------------------------------------------------------

// InnerReload forces a fresh load from the backing store, replacing the
// in-memory value when the entry version is unchanged after the load. The
// swap copy is dropped; a store miss tombstones the entry in deferred-delete
// mode.
//
// Thread-safe.
func (e *Entry) InnerReload(ctx context.Context) ([]byte, error) {
	if e.cctx.Store == nil {
		return nil, grid.NewError(grid.RetCUnsupported, "no backing store configured")
	}

	e.mu.Lock()
	if err := e.checkObsoleteLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	startVer := e.ver
	wasNew := e.isStartVersionLocked()
	e.mu.Unlock()

	loaded, found, err := e.cctx.Store.Load(ctx, e.key)
	if err != nil {
		return nil, grid.WrapError(grid.RetCStoreFailure, "reload failed", err)
	}

	var ret []byte
	if found {
		ret = loaded
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// a concurrent load may have populated the entry while the store was
	// consulted; the map size already accounts for it
	if wasNew && !e.isStartVersionLocked() {
		return ret, nil
	}

	if !e.ver.Equal(startVer) {
		return ret, nil
	}

	// reloads must never sort below the version the store value replaced
	nextVer := e.cctx.Versions.NextForLoad(e.ver)

	if err := e.releaseSwapLocked(); err != nil {
		return nil, err
	}

	old := e.valueLocked()
	ttl := e.ttlLocked()
	expTime := grid.ToExpireTime(ttl)

	if ret != nil {
		if err := e.updateIndexLocked(ret, expTime, nextVer, old); err != nil {
			return nil, err
		}
		if e.cctx.DeferredDelete && e.deletedLocked() {
			e.setDeletedLocked(false)
		}
	} else {
		if err := e.clearIndexLocked(); err != nil {
			return nil, err
		}
		if e.cctx.DeferredDelete && !e.deletedLocked() && !e.isStartVersionLocked() {
			e.setDeletedLocked(true)
		}
	}

	e.updateLocked(ret, ttl, expTime, nextVer)
	return ret, nil
}
