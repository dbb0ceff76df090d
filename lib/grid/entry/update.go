package entry

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Update Request / Result
// --------------------------------------------------------------------------

// UpdateOp selects the mutation an atomic update performs.
type UpdateOp uint8

const (
	// OpUpdate stores the request value.
	OpUpdate UpdateOp = iota

	// OpDelete removes the value.
	OpDelete

	// OpTransform runs an entry processor against the current value.
	OpTransform
)

func (op UpdateOp) String() string {
	switch op {
	case OpUpdate:
		return "Update"
	case OpDelete:
		return "Delete"
	case OpTransform:
		return "Transform"
	default:
		return "Unknown"
	}
}

// UpdateRequest describes one update on the atomic protocol path. Construct
// it with NewUpdateRequest so the ttl fields start out neutral.
type UpdateRequest struct {
	// NewVer is the version assigned by the update coordinator. Required.
	NewVer version.Version

	// Op selects the mutation.
	Op UpdateOp

	// Value is the OpUpdate payload.
	Value []byte

	// Processor is the OpTransform payload.
	Processor grid.EntryProcessor

	// ExpiryPolicy supplies ttls when ExplicitTTL is TTLNotChanged.
	ExpiryPolicy grid.IExpiryPolicy

	// ExplicitTTL pins the ttl, bypassing the expiry policy. TTLNotChanged
	// defers to the policy or the entry's current ttl.
	ExplicitTTL int64

	// ExplicitExpireTime pins the absolute deadline, usually the one
	// assigned by the originating data center. ExpireCalculate derives it
	// from the ttl.
	ExplicitExpireTime int64

	// ConflictVer is the version of the originating data center for
	// replicated updates. The committed version is tagged with it.
	ConflictVer *version.Version

	// ConflictResolve runs the configured conflict resolver before the
	// update is admitted.
	ConflictResolve bool

	// Primary marks updates applied on the key's primary node.
	Primary bool

	// VerCheck enforces version ordering for updates that may arrive
	// reordered: an incoming version that does not advance the current one
	// is dropped.
	VerCheck bool

	// Filter guards the update, evaluated against the current value.
	Filter grid.Filter

	ReturnOld    bool
	Event        bool
	Metrics      bool
	WriteThrough bool

	// ReadThrough loads the previous value from the backing store when the
	// entry holds none and the operation needs it.
	ReadThrough bool
}

// NewUpdateRequest creates an UpdateRequest with neutral ttl fields.
func NewUpdateRequest(newVer version.Version, op UpdateOp) UpdateRequest {
	return UpdateRequest{
		NewVer:             newVer,
		Op:                 op,
		ExplicitTTL:        grid.TTLNotChanged,
		ExplicitExpireTime: grid.ExpireCalculate,
	}
}

// UpdateResult is the outcome of an atomic update.
type UpdateResult struct {
	// Applied reports whether the entry was mutated. Filter rejections,
	// interceptor vetoes, version-check drops and deletes of absent values
	// all report false.
	Applied bool

	// Old is the value before the update, when the operation captured it.
	Old []byte

	// New is the value after the update, nil after a delete.
	New []byte

	// Invoke carries the entry processor outcome for OpTransform.
	Invoke *grid.InvokeResult

	// NewSysTTL and NewSysExpireTime are the ttl and deadline to propagate
	// to backups and remote data centers. TTLNotChanged/ExpireCalculate
	// when the update carried no explicit pair.
	NewSysTTL        int64
	NewSysExpireTime int64

	// NewVer is the version the update committed under, tagged with the
	// conflict version for replicated updates. Zero when not applied.
	NewVer version.Version
}

// notApplied is the neutral result for updates that did not mutate the entry.
func notApplied(old []byte, invokeRes *grid.InvokeResult) UpdateResult {
	return UpdateResult{
		Applied:          false,
		Old:              old,
		Invoke:           invokeRes,
		NewSysTTL:        grid.TTLNotChanged,
		NewSysExpireTime: grid.ExpireCalculate,
	}
}

// --------------------------------------------------------------------------
// InnerUpdate
// --------------------------------------------------------------------------

// InnerUpdate applies one update on the atomic protocol path. Unlike the
// transactional paths it runs entirely under the entry mutex, including the
// write-through store call: with no transaction lock protecting the key, the
// mutex is the only thing keeping store and memory in the same order.
//
// Replicated updates are arbitrated first (conflict resolver, then the
// version check for reordered updates); dropped updates report applied=false
// so the caller can relay that verdict to the originating node.
//
// Thread-safe.
func (e *Entry) InnerUpdate(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	if req.NewVer.IsZero() {
		return UpdateResult{}, grid.NewError(grid.RetCInvalidOperation, "update without version")
	}
	if req.Op == OpUpdate && req.Value == nil {
		return UpdateResult{}, grid.NewError(grid.RetCInvalidOperation, "nil value, use OpDelete")
	}
	if req.Op == OpTransform && req.Processor == nil {
		return UpdateResult{}, grid.NewError(grid.RetCInvalidOperation, "OpTransform without processor")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkObsoleteLocked(); err != nil {
		return UpdateResult{}, err
	}

	needVal := req.ReturnOld || req.Op == OpTransform || req.Filter != nil || e.cctx.Interceptor != nil

	if e.isStartVersionLocked() {
		if _, err := e.unswapLocked(false); err != nil {
			return UpdateResult{}, err
		}
	}

	// an elapsed deadline makes the value invisible to the update even if
	// the sweeper has not retired the entry yet; the ttl pair goes with it
	if e.expiredLocked() && e.hasValueLocked() {
		expiredVal := e.valueLocked()
		if _, err := e.checkExpiredLocked(); err != nil {
			return UpdateResult{}, err
		}
		e.updateLocked(nil, grid.TTLEternal, grid.ExpireEternal, e.ver)
		if req.Event {
			e.publishLocked(grid.EventExpired, expiredVal, nil, e.ver)
		}
	}

	oldVal := e.valueLocked()

	writeObj := req.Value
	op := req.Op
	explicitTTL := req.ExplicitTTL
	explicitExpire := req.ExplicitExpireTime
	conflictVer := req.ConflictVer

	// -- conflict arbitration for replicated updates -----------------------

	if req.ConflictResolve && e.cctx.Resolver != nil {
		oldSnap := e.versionedSnapshotLocked(oldVal)
		newSnap := grid.EntrySnapshot{
			Key:        e.key,
			Value:      writeObj,
			TTL:        explicitTTL,
			ExpireTime: explicitExpire,
			Ver:        req.NewVer,
		}
		if conflictVer != nil {
			newSnap.Ver = *conflictVer
		}

		res, err := e.cctx.Resolver.Resolve(oldSnap, newSnap, req.VerCheck)
		if err != nil {
			return UpdateResult{}, grid.WrapError(grid.RetCInternalError, "conflict resolution failed", err)
		}

		switch res.Decision {
		case grid.ConflictUseOld:
			// a tie between data centers leaves the store holding the
			// loser's value; push the winner back
			if !e.isStartVersionLocked() && req.VerCheck && req.Primary &&
				version.CompareAtomic(e.ver, req.NewVer) == 0 {
				if err := e.resyncStoreLocked(ctx, req, oldVal); err != nil {
					return UpdateResult{}, err
				}
			}
			return notApplied(oldVal, nil), nil

		case grid.ConflictMerge:
			// the merged value is a fresh local update, not a replica
			writeObj = res.MergeValue
			explicitTTL = res.MergeTTL
			explicitExpire = res.MergeExpireTime
			conflictVer = nil
			if writeObj != nil {
				op = OpUpdate
			} else {
				op = OpDelete
			}

		case grid.ConflictUseNew:
			// fall through to the regular update
		}
	} else if req.VerCheck && !e.isStartVersionLocked() &&
		version.CompareAtomic(e.ver, req.NewVer) >= 0 {
		// reordered update: a newer (or the same) version already landed
		if version.CompareAtomic(e.ver, req.NewVer) == 0 && req.Primary {
			if err := e.resyncStoreLocked(ctx, req, oldVal); err != nil {
				return UpdateResult{}, err
			}
		}
		log.Debugf("dropped update with stale version (key=%s, cur=%s, new=%s)",
			e.key, e.ver, req.NewVer)
		return notApplied(oldVal, nil), nil
	}

	// -- previous value ----------------------------------------------------

	readFromStore := false
	if oldVal == nil && needVal && e.cctx.readThrough() &&
		(op == OpTransform || req.ReadThrough) {
		loaded, found, err := e.cctx.Store.Load(ctx, e.key)
		if err != nil {
			return UpdateResult{}, grid.WrapError(grid.RetCStoreFailure, "read-through load failed", err)
		}
		readFromStore = true

		if found {
			ttl, expTime := grid.TTLEternal, grid.ExpireEternal
			if req.ExpiryPolicy != nil {
				ttl, expTime = grid.InitialTTLAndExpireTime(req.ExpiryPolicy)
			}

			// install under the current version: the load is not an update
			if err := e.updateIndexLocked(loaded, expTime, e.ver, nil); err != nil {
				return UpdateResult{}, err
			}
			e.updateLocked(loaded, ttl, expTime, e.ver)

			if e.cctx.DeferredDelete && e.deletedLocked() {
				e.setDeletedLocked(false)
			}
			oldVal = loaded
		}
	}

	if req.Filter != nil && !req.Filter(oldVal) {
		// a failed filter still counts as an access for sliding expiry
		if !readFromStore && e.hasValueLocked() {
			e.touchLocked(req.ExpiryPolicy)
		}
		return notApplied(oldVal, nil), nil
	}

	// -- transform ---------------------------------------------------------

	updated := writeObj
	var invokeRes *grid.InvokeResult

	if op == OpTransform {
		view := grid.NewMutableEntryView(e.key, oldVal, oldVal != nil)

		procRes, procErr := e.runProcessor(req.Processor, view)
		if procErr != nil {
			// the processor failed, the entry stays untouched
			return notApplied(oldVal, &grid.InvokeResult{Err: procErr}), nil
		}

		invokeRes = &grid.InvokeResult{Result: procRes}

		if !view.Modified() {
			// read-only processor, counts as an access
			if !readFromStore && e.hasValueLocked() {
				e.touchLocked(req.ExpiryPolicy)
			}
			return notApplied(oldVal, invokeRes), nil
		}

		if updated = view.Value(); updated == nil {
			op = OpDelete
		} else {
			op = OpUpdate
		}
	}

	hadVal := e.hasValueLocked()

	// replicated updates commit under a version tagged with their origin
	newVer := req.NewVer
	if conflictVer != nil && !conflictVer.Equal(newVer) {
		newVer = newVer.WithConflict(*conflictVer)
	}

	// -- ttl resolution ----------------------------------------------------

	newSysTTL := grid.TTLNotChanged
	newSysExpireTime := grid.ExpireCalculate
	var newTTL, newExpireTime int64

	if op == OpUpdate {
		// only an explicit pair propagates to backups, policy-derived ttls
		// are recomputed on each node
		if explicitTTL != grid.TTLNotChanged {
			newSysTTL = explicitTTL
			newSysExpireTime = explicitExpire
		}

		var rmv bool
		newTTL, newExpireTime, rmv = e.resolveTTLLocked(req.ExpiryPolicy, explicitTTL, explicitExpire)
		if rmv {
			// the policy expired the entry on the spot
			op = OpDelete
			updated = nil
		}
	}

	// -- apply -------------------------------------------------------------

	if op == OpUpdate {
		val, proceed := e.cctx.interceptor().OnBeforePut(e.key, oldVal, updated)
		if !proceed {
			return notApplied(oldVal, invokeRes), nil
		}
		updated = val

		if req.WriteThrough && e.cctx.writeThrough() {
			if err := e.cctx.Store.Put(ctx, e.key, updated, newVer); err != nil {
				return UpdateResult{}, grid.WrapError(grid.RetCStoreFailure, "write-through put failed", err)
			}
		}

		if !hadVal && e.cctx.DeferredDelete && e.deletedLocked() {
			e.setDeletedLocked(false)
		}

		if err := e.updateIndexLocked(updated, newExpireTime, newVer, oldVal); err != nil {
			return UpdateResult{}, err
		}
		e.updateLocked(updated, newTTL, newExpireTime, newVer)

		if req.Event {
			if req.Op == OpTransform {
				e.publishLocked(grid.EventRead, oldVal, oldVal, e.ver)
			}
			e.publishLocked(grid.EventPut, oldVal, updated, newVer)
		}
		if req.Metrics {
			e.cctx.metrics().OnWrite()
		}

		e.cctx.interceptor().OnAfterPut(e.key, updated)

		return UpdateResult{
			Applied:          true,
			Old:              oldVal,
			New:              updated,
			Invoke:           invokeRes,
			NewSysTTL:        newSysTTL,
			NewSysExpireTime: newSysExpireTime,
			NewVer:           newVer,
		}, nil
	}

	// -- delete ------------------------------------------------------------

	if cancel, substitute := e.cctx.interceptor().OnBeforeRemove(e.key, oldVal); cancel {
		return notApplied(substitute, invokeRes), nil
	}

	if req.WriteThrough && e.cctx.writeThrough() {
		if err := e.cctx.Store.Remove(ctx, e.key); err != nil {
			return UpdateResult{}, grid.WrapError(grid.RetCStoreFailure, "write-through remove failed", err)
		}
	}

	if e.cctx.DeferredDelete && !e.deletedLocked() && (hadVal || e.isStartVersionLocked()) {
		e.setDeletedLocked(true)
	}

	if err := e.clearIndexLocked(); err != nil {
		return UpdateResult{}, err
	}
	e.updateLocked(nil, grid.TTLEternal, grid.ExpireEternal, newVer)

	if req.Event {
		if req.Op == OpTransform {
			e.publishLocked(grid.EventRead, oldVal, oldVal, e.ver)
		}
		if hadVal {
			e.publishLocked(grid.EventRemoved, oldVal, nil, newVer)
		}
	}

	// deleting an absent value is a no-op for the caller
	applied := hadVal

	if applied && req.Metrics {
		e.cctx.metrics().OnRemove()
	}

	e.cctx.interceptor().OnAfterRemove(e.key, oldVal)

	res := UpdateResult{
		Applied:          applied,
		Old:              oldVal,
		Invoke:           invokeRes,
		NewSysTTL:        grid.TTLNotChanged,
		NewSysExpireTime: grid.ExpireCalculate,
	}
	if applied {
		res.NewVer = newVer
	}
	return res, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// resyncStoreLocked pushes the entry's current state back to the backing
// store after a version tie was decided in favor of the current value. The
// losing update may already have reached the store on another node.
func (e *Entry) resyncStoreLocked(ctx context.Context, req UpdateRequest, oldVal []byte) error {
	if !req.WriteThrough || !e.cctx.writeThrough() {
		return nil
	}

	var err error
	if oldVal == nil {
		err = e.cctx.Store.Remove(ctx, e.key)
	} else {
		err = e.cctx.Store.Put(ctx, e.key, oldVal, e.ver)
	}
	if err != nil {
		return grid.WrapError(grid.RetCStoreFailure, "store resync failed", err)
	}

	log.Debugf("resynced store after version tie (key=%s, ver=%s)", e.key, e.ver)
	return nil
}

// runProcessor invokes an entry processor, converting panics into errors so
// a misbehaving processor cannot take the entry mutex down with it.
func (e *Entry) runProcessor(proc grid.EntryProcessor, view *grid.MutableEntryView) (res []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = grid.NewErrorf(grid.RetCTransformFailed, "entry processor panicked: %v", r)
		}
	}()

	res, err = proc(view)
	if err != nil {
		err = grid.WrapError(grid.RetCTransformFailed, "entry processor failed", err)
	}
	return res, err
}
