// Package util provides utility components shared by the grid engine
// and its storage tiers.
//
// The package contains:
//   - functions: Hash functions and seed generation for shard distribution
//   - mapheap: A priority queue with key-based access, used by the TTL
//     sweeper and the tombstone purger
//   - lockfreempsc: A lock-free Multi-Producer Single-Consumer (MPSC) queue
//     built for high throughput and low latency
//   - statistics: Distribution statistics and a SizeHistogram for tracking
//     value size characteristics without full scans
//
// Each component is independent of the grid types so it can also be reused
// by alternative cache or store implementations.
package util
