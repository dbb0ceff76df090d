package entry

import (
	"time"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Expiry Checks
// --------------------------------------------------------------------------

// expiredLocked reports whether the current value's deadline has elapsed.
func (e *Entry) expiredLocked() bool {
	return grid.IsExpired(e.expireTimeLocked())
}

// CheckExpired handles expiry lazily: when the deadline has elapsed the
// swap copy and the index entry are dropped. The version and the in-memory
// value are left to the caller. Read and peek paths call it before trusting
// the heap state.
//
// Thread-safe.
func (e *Entry) CheckExpired() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkExpiredLocked()
}

func (e *Entry) checkExpiredLocked() (bool, error) {
	if !e.expiredLocked() {
		return false, nil
	}
	if err := e.releaseSwapLocked(); err != nil {
		return true, err
	}
	if err := e.clearIndexLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// --------------------------------------------------------------------------
// Expiry Transition
// --------------------------------------------------------------------------

// OnTTLExpired transitions an expired entry out of the cache: it becomes a
// versioned tombstone in deferred-delete mode, obsolete under obsoleteVer
// otherwise. The eager sweeper calls it when an entry's deadline elapses.
// Reports whether the entry was retired.
//
// Thread-safe.
func (e *Entry) OnTTLExpired(obsoleteVer version.Version) bool {
	var (
		obsolete   bool
		expiredVal []byte
	)

	e.mu.Lock()

	expiredVal = e.valueLocked()

	expired, err := e.checkExpiredLocked()
	if err != nil {
		log.Errorf("failed to clean up expired entry (key=%s): %v", e.key, err)
	}

	if expired {
		if e.cctx.DeferredDelete {
			if !e.deletedLocked() {
				// keep the version, the tombstone must still win
				// arbitration against stale remote updates
				e.updateLocked(nil, grid.TTLEternal, grid.ExpireEternal, e.ver)
				e.setDeletedLocked(true)
			}
		} else {
			obsolete = e.markObsoleteLocked(obsoleteVer, true)
		}

		e.cctx.metrics().OnExpired()
		e.publishLocked(grid.EventExpired, expiredVal, nil, e.ver)
	}

	e.mu.Unlock()

	if obsolete {
		e.cctx.notifyObsolete(e)
	}
	return obsolete
}

// --------------------------------------------------------------------------
// TTL Updates
// --------------------------------------------------------------------------

// UpdateTTL applies a new ttl to the current value, leaving the version
// untouched. TTLZero expires the value immediately. Reports false when the
// entry holds no live value.
//
// Thread-safe.
func (e *Entry) UpdateTTL(ttl int64) (bool, error) {
	if ttl < 0 && ttl != grid.TTLZero {
		return false, grid.NewErrorf(grid.RetCInvalidOperation, "invalid ttl %d", ttl)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkObsoleteLocked(); err != nil {
		return false, err
	}
	if !e.hasValueLocked() || e.expiredLocked() {
		return false, nil
	}

	e.updateTTLLocked(ttl)
	return true, nil
}

// updateTTLLocked installs a new ttl/expire pair for the current value,
// retracking the eager expiry when the deadline moved.
func (e *Entry) updateTTLLocked(ttl int64) {
	var expireTime int64
	if ttl == grid.TTLZero {
		ttl = grid.TTLMinimum
		expireTime = time.Now().UnixMilli() - 1
	} else {
		expireTime = grid.ToExpireTime(ttl)
	}

	old := e.expireTimeLocked()
	e.setTTLAndExpireLocked(ttl, expireTime)
	if expireTime != old {
		e.cctx.trackExpiry(e, expireTime)
	}
}

// touchLocked applies the access ttl of the given policy (sliding
// expiration). A nil policy or TTLNotChanged leaves the entry alone.
func (e *Entry) touchLocked(plc grid.IExpiryPolicy) {
	if plc == nil {
		return
	}
	if ttl := plc.ForAccess(); ttl != grid.TTLNotChanged {
		e.updateTTLLocked(ttl)
	}
}

// --------------------------------------------------------------------------
// TTL Resolution
// --------------------------------------------------------------------------

// resolveTTLLocked resolves the ttl/expire pair an update should store,
// cascading from the explicit ttl over the expiry policy to the entry's
// current pair. rmv reports that the policy demanded immediate removal
// (TTLZero).
func (e *Entry) resolveTTLLocked(plc grid.IExpiryPolicy, explicitTTL, explicitExpire int64) (ttl, expireTime int64, rmv bool) {
	ttl = explicitTTL

	if ttl == grid.TTLNotChanged && plc != nil {
		if e.hasValueLocked() {
			ttl = plc.ForUpdate()
		} else {
			ttl = plc.ForCreate()
		}
	}

	switch ttl {
	case grid.TTLZero:
		return grid.TTLEternal, grid.ExpireEternal, true
	case grid.TTLNotChanged:
		if e.isStartVersionLocked() {
			return grid.TTLEternal, grid.ExpireEternal, false
		}
		return e.ttlLocked(), e.expireTimeLocked(), false
	}

	if explicitExpire != grid.ExpireCalculate {
		return ttl, explicitExpire, false
	}
	return ttl, grid.ToExpireTime(ttl), false
}
