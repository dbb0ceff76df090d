// Package util provides statistics helpers for grid cache introspection.
// The size histogram tracks value size distributions in exponentially
// growing buckets, so Info snapshots can report size estimators without
// retaining individual samples.
package util

import (
	"math"
	"sync"
)

// --------------------------------------------------------------------------
// Summary statistics
// --------------------------------------------------------------------------

// Stats summarizes a series of samples.
type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes summary statistics over values. The standard deviation
// uses the population formula.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	min, max := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}

	ratio := 1.0
	if max > 0 {
		ratio = min / max
	}

	return Stats{
		StdDeviation: math.Sqrt(sqDiff / float64(len(values))),
		Min:          min,
		Max:          max,
		Mean:         mean,
		MinMaxRatio:  ratio,
	}
}

// DistributionStats extends Stats with a single score for how evenly
// entries spread over the shards.
type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats computes distribution metrics for per-shard entry
// counts. The quality score combines the coefficient of variation with the
// min/max ratio; 1.0 is a perfectly even spread.
func NewDistributionStats(shardSizes []float64) DistributionStats {
	stats := NewStats(shardSizes)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// --------------------------------------------------------------------------
// SizeHistogram
// --------------------------------------------------------------------------

// Bucket boundaries grow geometrically from histMinBoundary to
// histMaxBoundary; one overflow bucket collects everything above.
const (
	histMinBoundary = 16
	histMaxBoundary = 4 << 30
	histGrowth      = 4
)

// SizeHistogram tracks a distribution of byte sizes for estimation. Exact
// sizes are not retained, estimators answer from bucket midpoints.
type SizeHistogram struct {
	mu         sync.RWMutex
	boundaries []int
	buckets    []int64
	count      int64
	sum        int64
}

// NewSizeHistogram creates an empty histogram.
func NewSizeHistogram() *SizeHistogram {
	var boundaries []int
	for b := histMinBoundary; ; b *= histGrowth {
		boundaries = append(boundaries, b)
		if b >= histMaxBoundary {
			break
		}
	}
	return &SizeHistogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
	}
}

// AddSample records one size sample.
//
// Thread-safety: safe for concurrent use.
func (h *SizeHistogram) AddSample(size int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buckets[h.bucketFor(size)]++
	h.count++
	h.sum += int64(size)
}

// bucketFor returns the bucket index for a size. The last bucket collects
// all sizes above the largest boundary.
func (h *SizeHistogram) bucketFor(size int) int {
	for i, boundary := range h.boundaries {
		if size <= boundary {
			return i
		}
	}
	return len(h.boundaries)
}

// AverageSize returns the exact mean of all samples.
//
// Thread-safety: safe for concurrent use.
func (h *SizeHistogram) AverageSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate estimates the median sample size.
//
// Thread-safety: safe for concurrent use.
func (h *SizeHistogram) MedianEstimate() int {
	return h.PercentileEstimate(50)
}

// PercentileEstimate estimates the given percentile (0-100). Sizes within a
// bucket are estimated as the bucket midpoint, sizes in the overflow bucket
// as twice the largest boundary.
//
// Thread-safety: safe for concurrent use.
func (h *SizeHistogram) PercentileEstimate(percentile int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	if target < 1 {
		target = 1
	}

	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative < target {
			continue
		}
		switch {
		case i == 0:
			return h.boundaries[0] / 2
		case i < len(h.boundaries):
			return (h.boundaries[i-1] + h.boundaries[i]) / 2
		default:
			return h.boundaries[len(h.boundaries)-1] * 2
		}
	}

	return int(h.sum / h.count)
}
