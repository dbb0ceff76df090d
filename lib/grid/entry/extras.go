package entry

import (
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/mvcc"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Extras
// --------------------------------------------------------------------------

// extras bundles the rarely used per-entry side-state. The zero state of
// every facet means "absent"; the bundle collapses back to nil whenever all
// facets return to their defaults, keeping the steady-state entry small.
// Setting or clearing one facet never disturbs the others.
//
// All access happens under the entry mutex.
type extras struct {
	// attrs carries ad-hoc metadata attached by collaborators.
	attrs map[string]any

	// locks is the candidate table while the entry is lock-contended.
	locks *mvcc.Table

	// obsoleteVer retires the entry once set; never unset.
	obsoleteVer *version.Version

	// ttl and expireTime of the current value. TTLEternal/ExpireEternal
	// while the value does not expire.
	ttl        int64
	expireTime int64
}

func (x *extras) empty() bool {
	return x == nil || (len(x.attrs) == 0 &&
		(x.locks == nil || x.locks.IsEmpty()) &&
		x.obsoleteVer == nil &&
		x.ttl == grid.TTLEternal && x.expireTime == grid.ExpireEternal)
}

// ensureExtrasLocked materializes the bundle before a facet is set.
func (e *Entry) ensureExtrasLocked() *extras {
	if e.extras == nil {
		e.extras = &extras{}
	}
	return e.extras
}

// compactExtrasLocked drops the bundle again once no facet is left.
func (e *Entry) compactExtrasLocked() {
	if e.extras.empty() {
		e.extras = nil
	}
}

// --------------------------------------------------------------------------
// TTL Facet
// --------------------------------------------------------------------------

func (e *Entry) ttlLocked() int64 {
	if e.extras == nil {
		return grid.TTLEternal
	}
	return e.extras.ttl
}

func (e *Entry) expireTimeLocked() int64 {
	if e.extras == nil {
		return grid.ExpireEternal
	}
	return e.extras.expireTime
}

func (e *Entry) setTTLAndExpireLocked(ttl, expireTime int64) {
	if ttl == grid.TTLEternal && expireTime == grid.ExpireEternal {
		if e.extras != nil {
			e.extras.ttl = grid.TTLEternal
			e.extras.expireTime = grid.ExpireEternal
			e.compactExtrasLocked()
		}
		return
	}
	x := e.ensureExtrasLocked()
	x.ttl = ttl
	x.expireTime = expireTime
}

// --------------------------------------------------------------------------
// Obsolete Facet
// --------------------------------------------------------------------------

func (e *Entry) obsoleteVersionLocked() *version.Version {
	if e.extras == nil {
		return nil
	}
	return e.extras.obsoleteVer
}

func (e *Entry) setObsoleteVersionLocked(ver version.Version) {
	x := e.ensureExtrasLocked()
	x.obsoleteVer = &ver
}

// --------------------------------------------------------------------------
// Lock Facet
// --------------------------------------------------------------------------

// locksLocked returns the candidate table, nil while the entry is
// uncontended.
func (e *Entry) locksLocked() *mvcc.Table {
	if e.extras == nil {
		return nil
	}
	return e.extras.locks
}

// ensureLocksLocked materializes the candidate table.
func (e *Entry) ensureLocksLocked() *mvcc.Table {
	x := e.ensureExtrasLocked()
	if x.locks == nil {
		x.locks = mvcc.NewTable()
	}
	return x.locks
}

// dropLocksIfEmptyLocked releases the table once the last candidate left.
func (e *Entry) dropLocksIfEmptyLocked() {
	if e.extras != nil && e.extras.locks != nil && e.extras.locks.IsEmpty() {
		e.extras.locks = nil
		e.compactExtrasLocked()
	}
}

// --------------------------------------------------------------------------
// Attribute Facet
// --------------------------------------------------------------------------

// Attribute returns the ad-hoc metadata stored under name.
//
// Thread-safe.
func (e *Entry) Attribute(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.extras == nil || e.extras.attrs == nil {
		return nil, false
	}
	v, ok := e.extras.attrs[name]
	return v, ok
}

// SetAttribute attaches ad-hoc metadata under name and returns the previous
// value. A nil value removes the attribute.
//
// Thread-safe.
func (e *Entry) SetAttribute(name string, val any) any {
	e.mu.Lock()
	defer e.mu.Unlock()

	var prev any
	if e.extras != nil && e.extras.attrs != nil {
		prev = e.extras.attrs[name]
	}

	if val == nil {
		if e.extras != nil && e.extras.attrs != nil {
			delete(e.extras.attrs, name)
			if len(e.extras.attrs) == 0 {
				e.extras.attrs = nil
				e.compactExtrasLocked()
			}
		}
		return prev
	}

	x := e.ensureExtrasLocked()
	if x.attrs == nil {
		x.attrs = make(map[string]any, 1)
	}
	x.attrs[name] = val
	return prev
}
