// Package version implements the ordered version stamps attached to every
// grid entry value and the manager that issues them.
//
// A Version is an immutable tuple of topology epoch, issue order, node
// order and data center id (plus a wall-clock timestamp kept for
// diagnostics). Versions are totally ordered by (TopVer, Order, NodeOrder);
// the wall clock never participates in ordering decisions. A Version can
// carry an optional conflict version, the stamp a replicated update was
// born with in its origin data center.
//
// The Manager owns the local node identity, the cluster topology epoch as
// observed locally, and a monotonic order clock. The order clock is
// initialized from the wall clock and only ever moves forward; orders seen
// on received versions are absorbed so that locally issued versions always
// sort after anything the node has observed.
//
// Thread-safety: Version values are immutable. All Manager methods are safe
// for concurrent use.
package version
