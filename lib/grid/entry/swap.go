package entry

import "github.com/ValentinKolb/dGrid/lib/grid"

// --------------------------------------------------------------------------
// Swap Tier Transitions
// --------------------------------------------------------------------------

// unswapLocked promotes the swapped value of a never-populated entry into
// memory, consuming the swap record. Returns the promoted value, nil when
// the swap tier holds nothing usable. The probe happens at most once per
// entry life; repopulation resets the guard.
func (e *Entry) unswapLocked(needVal bool) ([]byte, error) {
	if !e.cctx.swapEnabled() {
		return nil, nil
	}
	if !e.isStartVersionLocked() || e.unswappedLocked() {
		return nil, nil
	}

	rec, err := e.cctx.Swap.ReadAndRemove(e.key)
	e.setUnswappedLocked()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	e.cctx.metrics().OnSwapRead()

	if grid.IsExpired(rec.ExpireTime) {
		// the deadline elapsed while the value sat in the swap tier
		if err := e.clearIndexLocked(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// the promoted value keeps the version it was demoted under
	e.updateLocked(rec.Value, rec.TTL, rec.ExpireTime, rec.Ver)
	e.publishLocked(grid.EventUnswapped, nil, rec.Value, rec.Ver)

	if !needVal {
		return nil, nil
	}
	return rec.Value, nil
}

// demoteLocked writes the current value to the swap tier. Expired values
// and tombstones are skipped.
func (e *Entry) demoteLocked() error {
	if !e.cctx.swapEnabled() || e.deletedLocked() || !e.hasValueLocked() {
		return nil
	}
	if e.expiredLocked() {
		return nil
	}

	val := e.valueLocked()
	rec := grid.SwapRecord{
		Value:      val,
		Ver:        e.ver,
		TTL:        e.ttlLocked(),
		ExpireTime: e.expireTimeLocked(),
		Kind:       grid.ValueKindBytes,
	}
	if err := e.cctx.Swap.Write(e.key, rec); err != nil {
		return err
	}

	e.cctx.metrics().OnSwapWrite()
	e.publishLocked(grid.EventSwapped, val, nil, e.ver)
	return nil
}

// releaseSwapLocked drops the swap copy of the value.
func (e *Entry) releaseSwapLocked() error {
	if !e.cctx.swapEnabled() {
		return nil
	}
	return e.cctx.Swap.Remove(e.key)
}
