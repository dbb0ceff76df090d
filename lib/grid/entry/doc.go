// Package entry implements the per-key state machine of the grid cache.
//
// An Entry owns one key slot: the current value (on the Go heap or in the
// off-heap arena), the version stamp the value was written under, the
// optional side-state bundle (lock candidates, ttl/expire pair, obsolete
// marker, ad-hoc attributes) and the lifecycle flags. Entries start at the
// node's designated start version, which lets the read paths tell "never
// populated locally" from "removed".
//
// All mutations go through one of the inner operations:
//
//   - InnerGet: read with optional swap promotion and read-through
//   - InnerSet / InnerRemove: transactional writes under an owned lock
//   - InnerUpdate: the atomic (non-transactional) update protocol with
//     version admission and replication-conflict resolution
//
// Every operation serializes on the entry's own mutex; there is no
// cache-wide lock. Backing-store I/O and obsolete notifications happen
// outside the mutex, with one exception: the atomic update path persists
// write-through mutations while still holding the mutex, so that the store
// order matches the version order decided by that mutex.
//
// Once an entry is marked obsolete it never leaves that state. Callers
// receiving a RetCRemoved error hold a retired reference and must fetch a
// fresh entry from the cache map and retry.
package entry
