// Package prom exports grid cache metrics through Prometheus collectors.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ValentinKolb/dGrid/lib/grid"
)

// Adapter implements grid.IMetrics and exports Prometheus counters. Safe for
// concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	reads   *prometheus.CounterVec
	writes  prometheus.Counter
	removes prometheus.Counter
	expired prometheus.Counter
	evicted prometheus.Counter
	swapOps *prometheus.CounterVec
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		reads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "reads_total",
				Help:        "Cache reads by outcome",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "writes_total",
			Help:        "Committed value updates",
			ConstLabels: constLabels,
		}),
		removes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "removes_total",
			Help:        "Committed removals",
			ConstLabels: constLabels,
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "expired_total",
			Help:        "Entries retired by TTL",
			ConstLabels: constLabels,
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evicted_total",
			Help:        "Entries evicted from memory",
			ConstLabels: constLabels,
		}),
		swapOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "swap_total",
				Help:        "Swap tier operations by direction",
				ConstLabels: constLabels,
			},
			[]string{"op"},
		),
	}
	reg.MustRegister(a.reads, a.writes, a.removes, a.expired, a.evicted, a.swapOps)
	return a
}

// OnRead increments the read counter with the outcome label.
func (a *Adapter) OnRead(hit bool) {
	if hit {
		a.reads.WithLabelValues("hit").Inc()
	} else {
		a.reads.WithLabelValues("miss").Inc()
	}
}

// OnWrite increments the write counter.
func (a *Adapter) OnWrite() { a.writes.Inc() }

// OnRemove increments the removal counter.
func (a *Adapter) OnRemove() { a.removes.Inc() }

// OnExpired increments the expiry counter.
func (a *Adapter) OnExpired() { a.expired.Inc() }

// OnEvicted increments the eviction counter.
func (a *Adapter) OnEvicted() { a.evicted.Inc() }

// OnSwapRead increments the swap counter with the read label.
func (a *Adapter) OnSwapRead() { a.swapOps.WithLabelValues("read").Inc() }

// OnSwapWrite increments the swap counter with the write label.
func (a *Adapter) OnSwapWrite() { a.swapOps.WithLabelValues("write").Inc() }

// Compile-time check: ensure Adapter implements grid.IMetrics.
var _ grid.IMetrics = (*Adapter)(nil)
