// Package offheap implements an arena allocator for entry values that
// should live outside the Go heap.
//
// The arena is one anonymous memory mapping carved into power-of-two size
// classes with per-class free lists. Allocations are addressed by opaque
// handles; handle 0 is reserved and never issued, so the zero value always
// means "no allocation". Values are copied in on Put and copied out on Get,
// the arena never hands out views into the mapping.
//
// Entries own their allocations exclusively: whoever replaces or drops a
// value must release the prior handle, the arena does not track liveness.
//
// Thread-safety: all Arena methods are safe for concurrent use.
package offheap
