// Package vm exports grid cache metrics through VictoriaMetrics counters.
package vm

import (
	"github.com/VictoriaMetrics/metrics"

	"github.com/ValentinKolb/dGrid/lib/grid"
)

// Adapter implements grid.IMetrics on VictoriaMetrics counters. All counter
// operations are atomic, the adapter is safe for concurrent use and cheap
// enough for the engine's hot paths.
type Adapter struct {
	hits       *metrics.Counter
	misses     *metrics.Counter
	writes     *metrics.Counter
	removes    *metrics.Counter
	expired    *metrics.Counter
	evicted    *metrics.Counter
	swapReads  *metrics.Counter
	swapWrites *metrics.Counter
}

// New constructs a VictoriaMetrics adapter.
//   - set:    metric set to register with (nil => package-global set, exposed
//     by metrics.WritePrometheus)
//   - prefix: metric name prefix (empty => "grid_cache")
func New(set *metrics.Set, prefix string) *Adapter {
	if prefix == "" {
		prefix = "grid_cache"
	}

	counter := func(name string) *metrics.Counter {
		if set != nil {
			return set.GetOrCreateCounter(name)
		}
		return metrics.GetOrCreateCounter(name)
	}

	return &Adapter{
		hits:       counter(prefix + `_reads_total{result="hit"}`),
		misses:     counter(prefix + `_reads_total{result="miss"}`),
		writes:     counter(prefix + `_writes_total`),
		removes:    counter(prefix + `_removes_total`),
		expired:    counter(prefix + `_expired_total`),
		evicted:    counter(prefix + `_evicted_total`),
		swapReads:  counter(prefix + `_swap_total{op="read"}`),
		swapWrites: counter(prefix + `_swap_total{op="write"}`),
	}
}

// OnRead counts a read by outcome.
func (a *Adapter) OnRead(hit bool) {
	if hit {
		a.hits.Inc()
	} else {
		a.misses.Inc()
	}
}

// OnWrite counts a committed value update.
func (a *Adapter) OnWrite() { a.writes.Inc() }

// OnRemove counts a committed removal.
func (a *Adapter) OnRemove() { a.removes.Inc() }

// OnExpired counts an entry retired by TTL.
func (a *Adapter) OnExpired() { a.expired.Inc() }

// OnEvicted counts an entry evicted from memory.
func (a *Adapter) OnEvicted() { a.evicted.Inc() }

// OnSwapRead counts a promotion read from the swap tier.
func (a *Adapter) OnSwapRead() { a.swapReads.Inc() }

// OnSwapWrite counts a demotion write to the swap tier.
func (a *Adapter) OnSwapWrite() { a.swapWrites.Inc() }

// Compile-time check: ensure Adapter implements grid.IMetrics.
var _ grid.IMetrics = (*Adapter)(nil)
