package entry

import (
	"bytes"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Peek / Raw Access
// --------------------------------------------------------------------------

// Peek returns the current in-memory value without consulting the swap tier
// or the backing store. An elapsed deadline is honored: the value is dropped
// and nil returned, retirement is left to the expiry sweeper.
//
// Thread-safe.
func (e *Entry) Peek() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkObsoleteLocked(); err != nil {
		return nil, err
	}

	if e.expiredLocked() && e.hasValueLocked() {
		if _, err := e.checkExpiredLocked(); err != nil {
			return nil, err
		}
		e.setValueLocked(nil)
		return nil, nil
	}

	return e.valueLocked(), nil
}

// RawGet returns the in-memory value with no side effects: no swap probe,
// no read-through, no expiry handling.
//
// Thread-safe.
func (e *Entry) RawGet() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.valueLocked()
}

// RawPut replaces the value under a fresh version, bypassing index, store
// and events. Returns the previous value.
//
// Thread-safe.
func (e *Entry) RawPut(val []byte, ttl int64) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.valueLocked()
	e.updateLocked(val, ttl, grid.ToExpireTime(ttl), e.nextVersionLocked())
	return old
}

// Poke replaces the value in place, keeping the current ttl and deadline.
// The entry moves to a fresh version so optimistic readers notice the
// change. No store write, no events. Returns the previous value; a
// tombstone is left untouched and reports nil.
//
// Thread-safe.
func (e *Entry) Poke(val []byte) ([]byte, error) {
	if val == nil {
		return nil, grid.NewError(grid.RetCInvalidOperation, "nil value")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkObsoleteLocked(); err != nil {
		return nil, err
	}

	if e.isStartVersionLocked() {
		if _, err := e.unswapLocked(false); err != nil {
			return nil, err
		}
	}
	if e.deletedLocked() {
		return nil, nil
	}

	old := e.valueLocked()
	nextVer := e.nextVersionLocked()
	ttl := e.ttlLocked()
	expTime := e.expireTimeLocked()

	if err := e.updateIndexLocked(val, expTime, nextVer, old); err != nil {
		return nil, err
	}
	e.updateLocked(val, ttl, expTime, nextVer)

	return old, nil
}

// --------------------------------------------------------------------------
// Versioned Access
// --------------------------------------------------------------------------

// versionedSnapshotLocked builds the snapshot handed to the conflict
// resolver. The version is the origin data center's when the current value
// came in over replication.
func (e *Entry) versionedSnapshotLocked(val []byte) grid.EntrySnapshot {
	return grid.EntrySnapshot{
		Key:        e.key,
		Value:      val,
		TTL:        e.ttlLocked(),
		ExpireTime: e.expireTimeLocked(),
		Ver:        e.ver.ConflictVersion(),
		IsNew:      e.isStartVersionLocked(),
	}
}

// VersionedSnapshot captures the entry state for conflict arbitration,
// promoting a swapped value first so the resolver sees it. IsNew reports
// whether the entry held no value anywhere before the call.
//
// Thread-safe.
func (e *Entry) VersionedSnapshot() (grid.EntrySnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkObsoleteLocked(); err != nil {
		return grid.EntrySnapshot{}, err
	}

	isNew := e.isStartVersionLocked()

	var val []byte
	if isNew {
		v, err := e.unswapLocked(true)
		if err != nil {
			return grid.EntrySnapshot{}, err
		}
		val = v
	} else {
		val = e.valueLocked()
	}

	snap := e.versionedSnapshotLocked(val)
	snap.IsNew = isNew
	return snap, nil
}

// VersionedValue installs val if the entry still carries curVer, stamping
// it with newVer or a generated successor when newVer is zero. Installing
// the bytes the entry already holds is skipped so repeated loads do not
// churn versions. Returns the version the entry carries afterwards.
//
// Thread-safe.
func (e *Entry) VersionedValue(val []byte, curVer, newVer version.Version) (version.Version, error) {
	if val == nil {
		return version.Version{}, grid.NewError(grid.RetCInvalidOperation, "nil value")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkObsoleteLocked(); err != nil {
		return version.Version{}, err
	}

	if !curVer.IsZero() && !e.ver.Equal(curVer) {
		return e.ver, nil
	}
	if bytes.Equal(e.valueLocked(), val) {
		return e.ver, nil
	}

	nextVer := newVer
	if nextVer.IsZero() {
		nextVer = e.nextVersionLocked()
	}

	ttl := e.ttlLocked()
	expTime := grid.ToExpireTime(ttl)

	if err := e.updateIndexLocked(val, expTime, nextVer, e.valueLocked()); err != nil {
		return version.Version{}, err
	}
	if e.cctx.DeferredDelete && e.deletedLocked() {
		e.setDeletedLocked(false)
	}
	e.updateLocked(val, ttl, expTime, nextVer)

	return nextVer, nil
}

// InitialValue installs a preloaded or rebalanced value, keeping the
// version assigned by the loader. Applies only to entries that never held
// a value, or additionally to tombstones when preload is false. Reports
// whether the value was installed.
//
// Thread-safe.
func (e *Entry) InitialValue(val []byte, ver version.Version, ttl, expireTime int64, preload bool) (bool, error) {
	if ver.IsZero() {
		return false, grid.NewError(grid.RetCInvalidOperation, "initial value without version")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkObsoleteLocked(); err != nil {
		return false, err
	}

	if !e.isStartVersionLocked() && (preload || !e.deletedLocked()) {
		return false, nil
	}

	expTime := expireTime
	if expTime < 0 {
		expTime = grid.ToExpireTime(ttl)
	}

	if val != nil {
		if err := e.updateIndexLocked(val, expTime, ver, nil); err != nil {
			return false, err
		}
	}

	// loads keep the version assigned by the loader
	e.updateLocked(val, ttl, expTime, ver)

	if val == nil {
		if e.cctx.DeferredDelete && !e.deletedLocked() {
			e.setDeletedLocked(true)
		}
	} else if e.deletedLocked() {
		e.setDeletedLocked(false)
	}

	return true, nil
}
