package grid

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// IMetrics receives operation counters from the engine. Methods are called
// on hot paths, frequently under entry mutexes, and must be cheap and
// non-blocking. Adapters for concrete metric backends live under
// metrics/vm (VictoriaMetrics) and metrics/prom (Prometheus).
type IMetrics interface {
	// OnRead counts a read, hit reports whether a value was found.
	OnRead(hit bool)

	// OnWrite counts a committed value update.
	OnWrite()

	// OnRemove counts a committed removal.
	OnRemove()

	// OnExpired counts an entry retired by TTL.
	OnExpired()

	// OnEvicted counts an entry evicted from memory.
	OnEvicted()

	// OnSwapRead counts a promotion read from the swap tier.
	OnSwapRead()

	// OnSwapWrite counts a demotion write to the swap tier.
	OnSwapWrite()
}

// NopMetrics discards all counters.
type NopMetrics struct{}

func (NopMetrics) OnRead(bool)  {}
func (NopMetrics) OnWrite()     {}
func (NopMetrics) OnRemove()    {}
func (NopMetrics) OnExpired()   {}
func (NopMetrics) OnEvicted()   {}
func (NopMetrics) OnSwapRead()  {}
func (NopMetrics) OnSwapWrite() {}
