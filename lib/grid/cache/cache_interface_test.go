package cache

import (
	"testing"

	"github.com/ValentinKolb/dGrid/lib/grid"
	gridtesting "github.com/ValentinKolb/dGrid/lib/grid/testing"
)

func Test(t *testing.T) {
	gridtesting.RunGridTests(t, "Cache", func() (grid.ICache, error) {
		return New(grid.DefaultConfig(), nil)
	})
}

func TestDeferredDelete(t *testing.T) {
	gridtesting.RunGridTests(t, "Cache(deferred-delete)", func() (grid.ICache, error) {
		cfg := grid.DefaultConfig()
		cfg.DeferredDelete = true
		cfg.TombstonePurgeAfter = 1_000
		return New(cfg, nil)
	})
}

func TestSwap(t *testing.T) {
	gridtesting.RunGridTests(t, "Cache(swap)", func() (grid.ICache, error) {
		cfg := grid.DefaultConfig()
		cfg.SwapInMemory = true
		cfg.SwapCompression = true
		return New(cfg, nil)
	})
}

func TestOffHeap(t *testing.T) {
	gridtesting.RunGridTests(t, "Cache(off-heap)", func() (grid.ICache, error) {
		cfg := grid.DefaultConfig()
		cfg.OffHeapSize = 32 * 1024 * 1024
		return New(cfg, nil)
	})
}

func Benchmark(b *testing.B) {
	gridtesting.RunGridBenchmarks(b, "Cache", func() (grid.ICache, error) {
		return New(grid.DefaultConfig(), nil)
	})
}
