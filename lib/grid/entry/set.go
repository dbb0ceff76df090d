package entry

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Set Request / Result
// --------------------------------------------------------------------------

// SetRequest describes one transactional put.
type SetRequest struct {
	// Tx is the owning transaction, nil for plain primary-side puts. A
	// transaction must hold the key lock before writing.
	Tx grid.ITxContext

	// Value is the new value. Must not be nil, removals go through
	// InnerRemove.
	Value []byte

	// TTL in milliseconds. TTLNotChanged keeps the entry's current ttl.
	TTL int64

	// ConflictExpireTime pins the absolute deadline assigned by the
	// originating data center. ExpireCalculate derives it from TTL; note
	// the zero value pins the deadline to ExpireEternal instead.
	ConflictExpireTime int64

	// ExplicitVer commits the write under a version assigned elsewhere
	// (backup or replicated origin). Nil lets the entry generate one.
	ExplicitVer *version.Version

	// Filter guards the write, evaluated against the current value.
	Filter grid.Filter

	Event        bool
	Metrics      bool
	WriteThrough bool
	ReturnOld    bool
}

// TxResult is the outcome of a transactional put or remove.
type TxResult struct {
	// Applied reports whether the write counts for the requesting
	// topology. A write on an entry that moved epochs is still performed
	// but reported as not applied so the caller re-enlists.
	Applied bool

	// Value is the previous value when requested, or the interceptor's
	// substitute when the operation was cancelled.
	Value []byte

	// NewVer is the version the write committed under.
	NewVer version.Version
}

// --------------------------------------------------------------------------
// InnerSet
// --------------------------------------------------------------------------

// InnerSet stores a new value under the transaction's write version. The
// write-through store put and the after-interceptor run outside the mutex;
// the owning transaction's key lock keeps the entry stable meanwhile.
//
// Thread-safe.
func (e *Entry) InnerSet(ctx context.Context, req SetRequest) (TxResult, error) {
	if req.Value == nil {
		return TxResult{}, grid.NewError(grid.RetCInvalidOperation, "nil value, use InnerRemove")
	}

	// the filter runs outside the mutex: the caller's key lock pins the
	// value, and filters may be arbitrarily slow
	if req.Filter != nil && !req.Filter(e.RawGet()) {
		return TxResult{Applied: false}, nil
	}

	e.mu.Lock()

	if err := e.checkObsoleteLocked(); err != nil {
		e.mu.Unlock()
		return TxResult{}, err
	}
	if req.Tx != nil && !req.Tx.OwnsLock(e.key) {
		e.mu.Unlock()
		return TxResult{}, grid.NewErrorf(grid.RetCProtocolViolation,
			"transactional write without key lock (key=%s)", e.key)
	}

	if e.isStartVersionLocked() {
		if _, err := e.unswapLocked(false); err != nil {
			e.mu.Unlock()
			return TxResult{}, err
		}
	}

	old := e.valueLocked()

	var newVer version.Version
	switch {
	case req.ExplicitVer != nil:
		newVer = *req.ExplicitVer
	case req.Tx == nil:
		newVer = e.nextVersionLocked()
	default:
		if newVer = req.Tx.WriteVersion(); newVer.IsZero() {
			newVer = e.nextVersionLocked()
		}
	}

	val, proceed := e.cctx.interceptor().OnBeforePut(e.key, old, req.Value)
	if !proceed {
		e.mu.Unlock()
		return TxResult{Applied: false, Value: old}, nil
	}

	ttl := req.TTL
	var expireTime int64
	switch {
	case req.ConflictExpireTime >= 0:
		// the pinned deadline governs expiry, the stored ttl still honors
		// TTLNotChanged
		if ttl < 0 {
			ttl = e.ttlLocked()
		}
		expireTime = req.ConflictExpireTime
	case ttl == grid.TTLNotChanged:
		ttl = e.ttlLocked()
		expireTime = e.expireTimeLocked()
	default:
		expireTime = grid.ToExpireTime(ttl)
	}

	if err := e.updateIndexLocked(val, expireTime, newVer, old); err != nil {
		e.mu.Unlock()
		return TxResult{}, err
	}
	e.updateLocked(val, ttl, expireTime, newVer)

	if e.cctx.DeferredDelete && e.deletedLocked() {
		e.setDeletedLocked(false)
	}

	if req.Metrics {
		e.cctx.metrics().OnWrite()
	}
	if req.Event {
		e.publishLocked(grid.EventPut, old, val, newVer)
	}

	// a write mapped on a stale epoch is performed but not counted
	applied := req.Tx == nil || req.Tx.TopologyEpoch() == e.cctx.Versions.TopologyEpoch()

	e.mu.Unlock()

	if req.WriteThrough && e.cctx.writeThrough() {
		if err := e.cctx.Store.Put(ctx, e.key, val, newVer); err != nil {
			return TxResult{}, grid.WrapError(grid.RetCStoreFailure, "write-through put failed", err)
		}
	}

	e.cctx.interceptor().OnAfterPut(e.key, val)

	if !applied {
		return TxResult{Applied: false, NewVer: newVer}, nil
	}

	res := TxResult{Applied: true, NewVer: newVer}
	if req.ReturnOld {
		res.Value = old
	}
	return res, nil
}
