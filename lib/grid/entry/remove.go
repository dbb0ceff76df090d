package entry

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Remove Request
// --------------------------------------------------------------------------

// RemoveRequest describes one transactional remove.
type RemoveRequest struct {
	// Tx is the owning transaction, nil for plain primary-side removes.
	Tx grid.ITxContext

	// ExplicitVer commits the remove under a version assigned elsewhere.
	ExplicitVer *version.Version

	// Filter guards the remove, evaluated against the current value.
	Filter grid.Filter

	Event        bool
	Metrics      bool
	WriteThrough bool
	ReturnOld    bool
}

// --------------------------------------------------------------------------
// InnerRemove
// --------------------------------------------------------------------------

// InnerRemove deletes the value under the transaction's write version. In
// deferred-delete mode the entry stays resident as a tombstone and the
// deletion callback fires; otherwise the entry is marked obsolete once the
// remove committed, provided no foreign lock candidate still references it.
//
// Thread-safe.
func (e *Entry) InnerRemove(ctx context.Context, req RemoveRequest) (TxResult, error) {
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
			"transactional remove without key lock (key=%s)", e.key)
	}

	// a never-populated entry has nothing to return; drop the swap copy so
	// the remove wins over the demoted value
	if e.isStartVersionLocked() {
		if err := e.releaseSwapLocked(); err != nil {
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

	if cancel, substitute := e.cctx.interceptor().OnBeforeRemove(e.key, old); cancel {
		e.mu.Unlock()
		return TxResult{Applied: false, Value: substitute}, nil
	}

	if err := e.clearIndexLocked(); err != nil {
		e.mu.Unlock()
		return TxResult{}, err
	}
	e.updateLocked(nil, grid.TTLEternal, grid.ExpireEternal, newVer)

	if e.cctx.DeferredDelete && !e.deletedLocked() {
		e.setDeletedLocked(true)
	}

	// the entry may only be retired if the remover owns its lock slot;
	// a foreign candidate in the table keeps it alive
	var obsoleteVer version.Version
	if req.Tx == nil {
		obsoleteVer = newVer
	} else if txVer := req.Tx.WriteVersion(); !txVer.IsZero() {
		if locks := e.locksLocked(); locks != nil && locks.IsLockedByVersion(txVer) {
			obsoleteVer = txVer
		}
	}

	if req.Metrics {
		e.cctx.metrics().OnRemove()
	}
	if req.Event {
		e.publishLocked(grid.EventRemoved, old, nil, newVer)
	}

	applied := req.Tx == nil || req.Tx.TopologyEpoch() == e.cctx.Versions.TopologyEpoch()

	e.mu.Unlock()

	if req.WriteThrough && e.cctx.writeThrough() {
		if err := e.cctx.Store.Remove(ctx, e.key); err != nil {
			return TxResult{}, grid.WrapError(grid.RetCStoreFailure, "write-through remove failed", err)
		}
	}

	if !e.cctx.DeferredDelete {
		marked := false

		e.mu.Lock()
		// retire only if no newer write landed in the meantime
		if e.ver.Equal(newVer) && !obsoleteVer.IsZero() {
			marked = e.markObsoleteLocked(obsoleteVer, true)
		}
		e.mu.Unlock()

		if marked {
			e.cctx.notifyObsolete(e)
		}
	}

	e.cctx.interceptor().OnAfterRemove(e.key, old)

	if !applied {
		return TxResult{Applied: false, NewVer: newVer}, nil
	}

	res := TxResult{Applied: true, NewVer: newVer}
	if req.ReturnOld {
		res.Value = old
	}
	return res, nil
}
