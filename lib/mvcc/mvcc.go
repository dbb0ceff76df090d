package mvcc

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/dGrid/lib/version"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Candidate
// --------------------------------------------------------------------------

// Candidate is one lock request referencing an entry. Local candidates are
// added in a pending state and must be marked ready before they can own the
// lock; remote candidates are ready on arrival.
type Candidate struct {
	// NodeID identifies the node the candidate originates from.
	NodeID uuid.UUID

	// Owner is the opaque owner token of the lock holder.
	Owner []byte

	// Ver is the lock version the candidate was enqueued with. Orders the
	// candidate within the table.
	Ver version.Version

	// Local marks candidates originating on this node.
	Local bool

	ready bool
}

// Ready reports whether the candidate may own the lock.
func (c *Candidate) Ready() bool {
	return c.ready
}

func (c *Candidate) String() string {
	return fmt.Sprintf("Candidate{node=%s, ver=%s, local=%v, ready=%v}",
		c.NodeID, c.Ver, c.Local, c.ready)
}

// --------------------------------------------------------------------------
// Table
// --------------------------------------------------------------------------

// Table is the ordered candidate list of one entry. Candidates are kept in
// version order; the first ready candidate owns the lock.
type Table struct {
	cands []*Candidate
}

// NewTable creates an empty candidate table.
func NewTable() *Table {
	return &Table{}
}

// IsEmpty reports whether the table holds no candidates.
func (t *Table) IsEmpty() bool {
	return len(t.cands) == 0
}

// IsEmptyExcluding reports whether the table holds no candidates besides
// those enqueued with ver. Used to decide whether an entry may be retired:
// the retiring operation's own candidate does not keep the entry alive.
func (t *Table) IsEmptyExcluding(ver version.Version) bool {
	for _, c := range t.cands {
		if !c.Ver.Equal(ver) {
			return false
		}
	}
	return true
}

// Len returns the number of candidates.
func (t *Table) Len() int {
	return len(t.cands)
}

// AddLocal enqueues a local candidate in pending state. If the owner already
// holds a candidate, that candidate is returned instead of adding a second
// one (lock acquisition by the same owner is idempotent).
func (t *Table) AddLocal(nodeID uuid.UUID, owner []byte, ver version.Version) *Candidate {
	if c := t.CandidateByOwner(owner); c != nil {
		return c
	}

	c := &Candidate{
		NodeID: nodeID,
		Owner:  owner,
		Ver:    ver,
		Local:  true,
	}
	t.insert(c)
	return c
}

// AddRemote enqueues a remote candidate. Remote candidates are ready on
// arrival.
func (t *Table) AddRemote(nodeID uuid.UUID, owner []byte, ver version.Version) *Candidate {
	if c := t.CandidateByOwner(owner); c != nil {
		return c
	}

	c := &Candidate{
		NodeID: nodeID,
		Owner:  owner,
		Ver:    ver,
		ready:  true,
	}
	t.insert(c)
	return c
}

// insert places c keeping the slice ordered by version.
func (t *Table) insert(c *Candidate) {
	i := 0
	for ; i < len(t.cands); i++ {
		if t.cands[i].Ver.Compare(c.Ver) > 0 {
			break
		}
	}
	t.cands = append(t.cands, nil)
	copy(t.cands[i+1:], t.cands[i:])
	t.cands[i] = c
}

// ReadyLocal marks the local candidate with the given version ready and
// returns the current owner afterwards. Returns nil if no such candidate
// exists.
func (t *Table) ReadyLocal(ver version.Version) *Candidate {
	c := t.Candidate(ver)
	if c == nil || !c.Local {
		return nil
	}
	c.ready = true
	return t.Owner()
}

// Remove drops the candidate with the given version. Returns true if a
// candidate was removed.
func (t *Table) Remove(ver version.Version) bool {
	for i, c := range t.cands {
		if c.Ver.Equal(ver) {
			t.cands = append(t.cands[:i], t.cands[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveOwner drops the candidate held by the given owner token. Returns
// true if a candidate was removed.
func (t *Table) RemoveOwner(owner []byte) bool {
	for i, c := range t.cands {
		if bytes.Equal(c.Owner, owner) {
			t.cands = append(t.cands[:i], t.cands[i+1:]...)
			return true
		}
	}
	return false
}

// Owner returns the current lock owner: the first ready candidate in
// version order, or nil if none is ready.
func (t *Table) Owner() *Candidate {
	for _, c := range t.cands {
		if c.ready {
			return c
		}
	}
	return nil
}

// LocalOwner returns the current owner if it is local, otherwise nil.
func (t *Table) LocalOwner() *Candidate {
	if c := t.Owner(); c != nil && c.Local {
		return c
	}
	return nil
}

// Candidate returns the candidate enqueued with the given version, or nil.
func (t *Table) Candidate(ver version.Version) *Candidate {
	for _, c := range t.cands {
		if c.Ver.Equal(ver) {
			return c
		}
	}
	return nil
}

// CandidateByOwner returns the candidate held by the given owner token,
// or nil.
func (t *Table) CandidateByOwner(owner []byte) *Candidate {
	for _, c := range t.cands {
		if bytes.Equal(c.Owner, owner) {
			return c
		}
	}
	return nil
}

// IsLockedBy reports whether the given owner token currently owns the lock.
func (t *Table) IsLockedBy(owner []byte) bool {
	o := t.Owner()
	return o != nil && bytes.Equal(o.Owner, owner)
}

// IsLockedByVersion reports whether the lock is owned by the candidate
// enqueued with the given version.
func (t *Table) IsLockedByVersion(ver version.Version) bool {
	o := t.Owner()
	return o != nil && o.Ver.Equal(ver)
}

// IsLocked reports whether any candidate currently owns the lock.
func (t *Table) IsLocked() bool {
	return t.Owner() != nil
}

// Candidates returns a copy of the candidate list in version order.
func (t *Table) Candidates() []Candidate {
	out := make([]Candidate, len(t.cands))
	for i, c := range t.cands {
		out[i] = *c
	}
	return out
}
