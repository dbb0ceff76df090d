package entry

import (
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/mvcc"
	"github.com/ValentinKolb/dGrid/lib/version"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Entry Locks
// --------------------------------------------------------------------------

// TryLock enqueues a local lock candidate for owner under ver and reports
// whether the owner holds the lock afterwards. Acquisition by the same
// owner is idempotent. A refused lock leaves the candidate enqueued; it
// owns the lock once earlier candidates release.
//
// Thread-safe.
func (e *Entry) TryLock(owner []byte, ver version.Version) (bool, error) {
	if len(owner) == 0 {
		return false, grid.NewError(grid.RetCInvalidOperation, "empty lock owner")
	}
	if ver.IsZero() {
		return false, grid.NewError(grid.RetCInvalidOperation, "lock without version")
	}

	e.mu.Lock()

	if err := e.checkObsoleteLocked(); err != nil {
		e.mu.Unlock()
		return false, err
	}

	locks := e.ensureLocksLocked()
	cand := locks.AddLocal(e.cctx.Versions.LocalNodeID(), owner, ver)
	locks.ReadyLocal(cand.Ver)

	acquired := locks.IsLockedBy(owner)
	if acquired {
		e.publishLocked(grid.EventLocked, nil, nil, cand.Ver)
	}

	e.mu.Unlock()
	return acquired, nil
}

// AddRemoteLock enqueues a lock candidate on behalf of another node.
// Remote candidates are ready on arrival. Reports whether the remote owner
// holds the lock afterwards.
//
// Thread-safe.
func (e *Entry) AddRemoteLock(nodeID uuid.UUID, owner []byte, ver version.Version) (bool, error) {
	if len(owner) == 0 {
		return false, grid.NewError(grid.RetCInvalidOperation, "empty lock owner")
	}
	if ver.IsZero() {
		return false, grid.NewError(grid.RetCInvalidOperation, "lock without version")
	}

	e.mu.Lock()

	if err := e.checkObsoleteLocked(); err != nil {
		e.mu.Unlock()
		return false, err
	}

	locks := e.ensureLocksLocked()
	cand := locks.AddRemote(nodeID, owner, ver)

	acquired := locks.IsLockedBy(owner)
	if acquired {
		e.publishLocked(grid.EventLocked, nil, nil, cand.Ver)
	}

	e.mu.Unlock()
	return acquired, nil
}

// Unlock removes the owner's lock candidate. Reports whether a candidate
// was removed. The caller decides whether the now-unreferenced entry may be
// retired (see MarkObsoleteIfEmpty).
//
// Thread-safe.
func (e *Entry) Unlock(owner []byte) bool {
	e.mu.Lock()

	locks := e.locksLocked()
	if locks == nil {
		e.mu.Unlock()
		return false
	}

	cand := locks.CandidateByOwner(owner)
	if cand == nil {
		e.mu.Unlock()
		return false
	}

	locks.RemoveOwner(owner)
	e.dropLocksIfEmptyLocked()
	e.publishLocked(grid.EventUnlocked, nil, nil, cand.Ver)

	e.mu.Unlock()
	return true
}

// RemoveLock removes the candidate enqueued under ver, regardless of owner.
// Used when a transaction is rolled back on another node and its locks are
// recalled by version.
//
// Thread-safe.
func (e *Entry) RemoveLock(ver version.Version) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	locks := e.locksLocked()
	if locks == nil {
		return false
	}

	removed := locks.Remove(ver)
	if removed {
		e.dropLocksIfEmptyLocked()
	}
	return removed
}

// IsLockedBy reports whether owner currently owns the entry lock.
//
// Thread-safe.
func (e *Entry) IsLockedBy(owner []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	locks := e.locksLocked()
	return locks != nil && locks.IsLockedBy(owner)
}

// IsLockedByVersion reports whether the lock is owned by the candidate
// enqueued under ver.
//
// Thread-safe.
func (e *Entry) IsLockedByVersion(ver version.Version) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	locks := e.locksLocked()
	return locks != nil && locks.IsLockedByVersion(ver)
}

// IsLocked reports whether any candidate owns the entry lock.
//
// Thread-safe.
func (e *Entry) IsLocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	locks := e.locksLocked()
	return locks != nil && locks.IsLocked()
}

// LockCandidates returns a copy of the entry's lock candidates in version
// order.
//
// Thread-safe.
func (e *Entry) LockCandidates() []mvcc.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()

	locks := e.locksLocked()
	if locks == nil {
		return nil
	}
	return locks.Candidates()
}
