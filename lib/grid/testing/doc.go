// Package testing provides a reusable conformance suite for grid.ICache
// implementations.
//
// RunGridTests exercises the full cache contract: basic reads and writes,
// atomic operations, entry processors, ttl handling, locks and transactional
// writes, eviction and clearing, and concurrent realistic usage. Tests for
// optional capabilities check SupportsFeature first and skip themselves when
// the implementation opts out.
//
// RunGridBenchmarks measures the same surface under parallel load.
//
// Both take a grid.CacheFactory so every subtest starts from a fresh
// instance:
//
//	func TestGridCache(t *testing.T) {
//		gridtesting.RunGridTests(t, "cache", func() (grid.ICache, error) {
//			return cache.New(grid.DefaultConfig(), nil)
//		})
//	}
package testing
