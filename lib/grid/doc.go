// Package grid defines the public surface of the data grid engine: the
// ICache interface, the collaborator contracts the entry core depends on,
// the error taxonomy, event types, TTL semantics, configuration and
// logging setup.
//
// The engine is layered:
//
//   - grid (this package): contracts and shared types
//   - grid/entry: the per-key entry state machine (versioned values,
//     tiered placement, TTL, obsolete lifecycle)
//   - grid/cache: the owning engine (sharded entry map, TTL sweeper,
//     tombstone purger, lock table, read-through)
//
// External systems plug in through narrow interfaces: a backing store for
// read/write-through, an index manager, a swap store for the disk tier, an
// event bus, an interceptor, a conflict resolver for replicated updates and
// a transaction context. Every contract has a no-op default so a cache can
// run fully standalone.
//
// All values are opaque byte slices. Callers must not mutate slices after
// passing them in or after receiving them.
package grid
