package cache

import (
	"sync"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/cache/internal"
	"github.com/ValentinKolb/dGrid/lib/grid/entry"
	"github.com/ValentinKolb/dGrid/lib/util"
)

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// SupportsFeature checks if the cache supports the specified feature.
// Multiple features can be checked at once using bitwise OR (|).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) SupportsFeature(feature grid.Feature) bool {
	return c.features&feature == feature
}

// Size returns the number of live entries. Tombstones are attached to the
// map but already removed from the caller's point of view, so they are
// subtracted.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Size() int {
	size := 0
	for _, s := range c.shards {
		size += s.Data.Size()
	}

	size -= int(c.tombstones.Load())
	if size < 0 {
		// the counter and the map are read at different instants
		size = 0
	}
	return size
}

// GetInfo returns statistics about the cache. Value sizes are sampled, not
// exact.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) GetInfo() grid.Info {

	// create a size histogram for the info
	histogram := util.NewSizeHistogram()
	samplesPerShard := 100
	wg := sync.WaitGroup{}
	wg.Add(len(c.shards))

	// more stats
	mu := sync.Mutex{}
	shardSizes := make([]float64, len(c.shards))

	// concurrently collect samples from all shards
	for shardIndex, shard := range c.shards {
		go func(i int, s *internal.Shard) {
			defer wg.Done()
			count := 0
			s.Data.Range(func(_ util.UintKey, ent *entry.Entry) bool {
				// track live value sizes, tombstones and husks carry none
				if val := ent.RawGet(); val != nil {
					histogram.AddSample(len(val))
				}

				// only sample a few entries per shard
				count++
				return count < samplesPerShard
			})

			mu.Lock()
			defer mu.Unlock()
			shardSizes[i] = float64(s.Data.Size())
		}(shardIndex, shard)
	}

	// wait for all shards to finish
	wg.Wait()

	info := grid.Info{
		Size:              c.Size(),
		Tombstones:        int(c.tombstones.Load()),
		Shards:            len(c.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		AvgValueSize:      histogram.AverageSize(),
		MedianValueSize:   histogram.MedianEstimate(),
		P90ValueSize:      histogram.PercentileEstimate(90),
		SupportedFeatures: c.featureList(),
	}

	if c.arena != nil {
		info.OffHeapUsed = c.arena.Used()
		info.OffHeapCount = c.arena.Count()
	}

	return info
}

// featureList expands the feature bitmask into a slice for reporting.
func (c *gridCache) featureList() []grid.Feature {
	all := []grid.Feature{
		grid.FeatureDeferredDelete,
		grid.FeatureSwap,
		grid.FeatureOffHeap,
		grid.FeatureReadThrough,
		grid.FeatureWriteThrough,
		grid.FeatureEagerTTL,
		grid.FeatureLocks,
		grid.FeatureEvents,
	}

	features := make([]grid.Feature, 0, len(all))
	for _, f := range all {
		if c.features&f == f {
			features = append(features, f)
		}
	}
	return features
}
