package entry

import (
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Obsolete Marking
// --------------------------------------------------------------------------

// markObsoleteLocked retires the entry under ver. Refuses while a lock
// candidate other than ver references the entry, so a locked entry is never
// pulled out from under its lock holder. A zero ver reports the current
// obsolete state without marking. Returns whether the entry is obsolete
// afterwards.
func (e *Entry) markObsoleteLocked(ver version.Version, clear bool) bool {
	cur := e.obsoleteVersionLocked()

	if ver.IsZero() {
		return cur != nil
	}
	if cur != nil {
		return true
	}

	if locks := e.locksLocked(); locks == nil || locks.IsEmptyExcluding(ver) {
		e.setObsoleteVersionLocked(ver)
		if clear {
			e.setValueLocked(nil)
		}
		return true
	}
	return false
}

// MarkObsolete retires the entry under ver, dropping its value. Reports
// true when the entry is obsolete afterwards, including when it already
// was. The obsolete notification fires either way so a stuck detach is
// re-driven.
//
// Thread-safe.
func (e *Entry) MarkObsolete(ver version.Version) bool {
	e.mu.Lock()
	obsolete := e.markObsoleteLocked(ver, true)
	e.mu.Unlock()

	if obsolete {
		e.cctx.notifyObsolete(e)
	}
	return obsolete
}

// MarkObsoleteIfEmpty retires the entry if it holds no live value. An
// expired value counts as empty and its swap and index leftovers are
// released. In deferred-delete mode a populated entry becomes a tombstone
// instead of being retired. A zero ver lets the entry generate one.
//
// Returns whether the entry was marked obsolete by this call.
//
// Thread-safe.
func (e *Entry) MarkObsoleteIfEmpty(ver version.Version) (bool, error) {
	obsolete := false
	deferred := false

	e.mu.Lock()

	if e.obsoleteVersionLocked() != nil {
		e.mu.Unlock()
		return false, nil
	}

	expired, err := e.checkExpiredLocked()
	if err != nil {
		e.mu.Unlock()
		return false, err
	}

	if !e.hasValueLocked() || expired {
		if ver.IsZero() {
			ver = e.nextVersionLocked()
		}

		if e.cctx.DeferredDelete && !e.isStartVersionLocked() {
			if !e.deletedLocked() {
				e.updateLocked(nil, grid.TTLEternal, grid.ExpireEternal, ver)
				e.setDeletedLocked(true)
				deferred = true
			}
		} else {
			obsolete = e.markObsoleteLocked(ver, true)
		}
	}

	e.mu.Unlock()

	if obsolete {
		e.cctx.notifyObsolete(e)
	}
	if deferred {
		log.Debugf("tombstoned empty entry (key=%s, ver=%s)", e.key, ver)
	}
	return obsolete, nil
}

// MarkObsoleteVersion retires the entry only if its current version equals
// ver. Used by the tombstone purger, which must not retire an entry that
// was written to after the tombstone it queued.
//
// Thread-safe.
func (e *Entry) MarkObsoleteVersion(ver version.Version) bool {
	marked := false

	e.mu.Lock()
	switch {
	case e.obsoleteVersionLocked() != nil:
		e.mu.Unlock()
		return true
	case !e.ver.Equal(ver):
		e.mu.Unlock()
		return false
	default:
		marked = e.markObsoleteLocked(ver, true)
		e.mu.Unlock()
	}

	if marked {
		e.cctx.notifyObsolete(e)
	}
	return marked
}

// --------------------------------------------------------------------------
// Invalidate / Clear
// --------------------------------------------------------------------------

// Invalidate drops the value and moves the entry to newVer, releasing swap
// and index data. When curVer is non-zero the entry is only invalidated if
// it still carries that version. Reports whether the entry is obsolete
// afterwards.
//
// Thread-safe.
func (e *Entry) Invalidate(curVer, newVer version.Version) (bool, error) {
	if newVer.IsZero() {
		return false, grid.NewError(grid.RetCInvalidOperation, "invalidate without version")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkObsoleteLocked(); err != nil {
		return false, err
	}

	if curVer.IsZero() || e.ver.Equal(curVer) {
		e.setValueLocked(nil)
		e.ver = newVer

		if err := e.releaseSwapLocked(); err != nil {
			return false, err
		}
		if err := e.clearIndexLocked(); err != nil {
			return false, err
		}
	}

	return e.obsoleteVersionLocked() != nil, nil
}

// Clear retires the entry and releases its value, swap and index data. The
// filter is evaluated outside the mutex and rechecked against the version
// it was evaluated under. Returns false when a lock candidate keeps the
// entry alive or the filter rejects it.
//
// Thread-safe.
func (e *Entry) Clear(obsoleteVer version.Version, filter grid.Filter) (bool, error) {
	for {
		var startVer version.Version

		if filter != nil {
			e.mu.Lock()
			startVer = e.ver
			e.mu.Unlock()

			if !filter(e.RawGet()) {
				return false, nil
			}
		}

		e.mu.Lock()

		if filter != nil && !e.ver.Equal(startVer) {
			// the value moved under the filter, evaluate again
			e.mu.Unlock()
			continue
		}

		if !e.markObsoleteLocked(obsoleteVer, true) {
			e.mu.Unlock()
			return false, nil
		}

		if err := e.clearIndexLocked(); err != nil {
			e.mu.Unlock()
			return false, err
		}
		if err := e.releaseSwapLocked(); err != nil {
			e.mu.Unlock()
			return false, err
		}

		e.mu.Unlock()

		e.cctx.notifyObsolete(e)
		return true, nil
	}
}

// --------------------------------------------------------------------------
// Eviction
// --------------------------------------------------------------------------

// EvictInternal retires the entry to free memory, demoting its value to the
// swap tier when one is configured. Returns true when the entry no longer
// occupies memory after the call, also when another eviction got there
// first. A lock candidate on the entry refuses the eviction.
//
// Thread-safe.
func (e *Entry) EvictInternal(obsoleteVer version.Version, filter grid.Filter) (bool, error) {
	for {
		var startVer version.Version

		if filter != nil {
			e.mu.Lock()
			startVer = e.ver
			e.mu.Unlock()

			if !filter(e.RawGet()) {
				return false, nil
			}
		}

		e.mu.Lock()

		if filter != nil && !e.ver.Equal(startVer) {
			e.mu.Unlock()
			continue
		}

		evicted, marked, err := e.evictLocked(obsoleteVer)
		e.mu.Unlock()

		if marked {
			e.cctx.notifyObsolete(e)
		}
		return evicted, err
	}
}

// evictLocked marks the entry obsolete without clearing, demotes or clears
// the value, then drops it from memory. The value stays resident when the
// demotion write fails.
func (e *Entry) evictLocked(obsoleteVer version.Version) (evicted, marked bool, err error) {
	if e.obsoleteVersionLocked() != nil {
		// already retired by someone else, nothing left to free
		return true, false, nil
	}

	if !e.markObsoleteLocked(obsoleteVer, false) {
		return false, false, nil
	}

	if e.cctx.swapEnabled() && !e.isStartVersionLocked() {
		if err := e.demoteLocked(); err != nil {
			return false, true, err
		}
	} else if err := e.clearIndexLocked(); err != nil {
		return false, true, err
	}

	e.publishLocked(grid.EventEvicted, e.valueLocked(), nil, e.ver)
	e.setValueLocked(nil)
	e.cctx.metrics().OnEvicted()
	return true, true, nil
}

// BatchEvict retires a set of entries in one swap batch write. Entries a
// lock candidate keeps alive or that are already obsolete are skipped. The
// batch is persisted before any obsolete notification fires, so a promoted
// read never misses a record mid-eviction. Returns the entries evicted.
func BatchEvict(cctx *CacheContext, obsoleteVer version.Version, entries []*Entry) ([]*Entry, error) {
	evicted := make([]*Entry, 0, len(entries))
	recs := make(map[string]grid.SwapRecord, len(entries))

	for _, e := range entries {
		e.mu.Lock()

		if e.obsoleteVersionLocked() != nil || !e.markObsoleteLocked(obsoleteVer, false) {
			e.mu.Unlock()
			continue
		}

		if cctx.swapEnabled() && !e.isStartVersionLocked() && e.hasValueLocked() && !e.expiredLocked() {
			recs[e.key] = grid.SwapRecord{
				Value:      e.valueLocked(),
				Ver:        e.ver,
				TTL:        e.ttlLocked(),
				ExpireTime: e.expireTimeLocked(),
				Kind:       grid.ValueKindBytes,
			}
		}

		e.publishLocked(grid.EventEvicted, e.valueLocked(), nil, e.ver)
		e.setValueLocked(nil)
		cctx.metrics().OnEvicted()
		e.mu.Unlock()

		evicted = append(evicted, e)
	}

	if len(recs) > 0 {
		if err := cctx.Swap.WriteBatch(recs); err != nil {
			return evicted, grid.WrapError(grid.RetCStoreFailure, "batch demotion failed", err)
		}
		if m := cctx.Metrics; m != nil {
			for range recs {
				m.OnSwapWrite()
			}
		}
	}

	for _, e := range evicted {
		cctx.notifyObsolete(e)
	}
	return evicted, nil
}
