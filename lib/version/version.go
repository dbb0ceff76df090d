package version

import "fmt"

// --------------------------------------------------------------------------
// Version
// --------------------------------------------------------------------------

// Version is the ordered stamp attached to an entry value. Two versions are
// ordered by (TopVer, Order, NodeOrder); Time and DataCenter never
// participate in ordering. The zero value is "no version".
type Version struct {
	// TopVer is the topology epoch the version was issued under.
	TopVer uint32

	// Time is the issuing node's wall clock in unix milliseconds.
	// Diagnostics only, excluded from comparison.
	Time uint64

	// Order is the issue order, monotonic per cluster as observed locally.
	Order uint64

	// NodeOrder is the registration order of the issuing node.
	NodeOrder uint32

	// DataCenter identifies the issuing data center for replication
	// arbitration.
	DataCenter uint8

	// Conflict optionally carries the version a replicated update was born
	// with in its origin data center. Nil for local updates.
	Conflict *Version
}

// IsZero reports whether v is the "no version" value. The conflict
// sub-version is ignored.
func (v Version) IsZero() bool {
	return v.TopVer == 0 && v.Order == 0 && v.NodeOrder == 0
}

// Equal reports whether v and o denote the same version,
// i.e. Compare(v, o) == 0.
func (v Version) Equal(o Version) bool {
	return v.TopVer == o.TopVer && v.Order == o.Order && v.NodeOrder == o.NodeOrder
}

// Compare returns -1, 0 or 1 ordering v relative to o by
// (TopVer, Order, NodeOrder).
func (v Version) Compare(o Version) int {
	if v.TopVer != o.TopVer {
		if v.TopVer < o.TopVer {
			return -1
		}
		return 1
	}
	if v.Order != o.Order {
		if v.Order < o.Order {
			return -1
		}
		return 1
	}
	if v.NodeOrder != o.NodeOrder {
		if v.NodeOrder < o.NodeOrder {
			return -1
		}
		return 1
	}
	return 0
}

// WithConflict returns a copy of v carrying the given conflict version.
func (v Version) WithConflict(conflict Version) Version {
	c := conflict
	c.Conflict = nil
	v.Conflict = &c
	return v
}

// ConflictVersion returns the conflict sub-version if present, otherwise
// the version itself. Mirrors how replicated updates are arbitrated: a
// version born in another data center is judged by its origin stamp.
func (v Version) ConflictVersion() Version {
	if v.Conflict != nil {
		return *v.Conflict
	}
	return v
}

// HasConflict reports whether v carries a conflict sub-version.
func (v Version) HasConflict() bool {
	return v.Conflict != nil
}

func (v Version) String() string {
	if v.Conflict != nil {
		return fmt.Sprintf("Version{top=%d, order=%d, node=%d, dc=%d, conflict=%s}",
			v.TopVer, v.Order, v.NodeOrder, v.DataCenter, v.Conflict.String())
	}
	return fmt.Sprintf("Version{top=%d, order=%d, node=%d, dc=%d}",
		v.TopVer, v.Order, v.NodeOrder, v.DataCenter)
}

// --------------------------------------------------------------------------
// Comparators
// --------------------------------------------------------------------------

// CompareAtomic is the total order used for atomic update admission:
// topology epoch first, then issue order, then node order. Wall-clock time
// never participates in the order.
func CompareAtomic(a, b Version) int {
	return a.Compare(b)
}
