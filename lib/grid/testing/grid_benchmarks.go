package testing

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/grid"
)

// RunGridBenchmarks runs a comprehensive benchmark suite for a grid.ICache
// implementation.
func RunGridBenchmarks(b *testing.B, name string, factory grid.CacheFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			benchmarkPut(b, newCache(b, factory))
		})

		b.Run("PutExisting", func(b *testing.B) {
			benchmarkPutExisting(b, newCache(b, factory))
		})

		b.Run("PutLargeValue", func(b *testing.B) {
			benchmarkPutLargeValue(b, newCache(b, factory))
		})

		b.Run("PutWithTTL", func(b *testing.B) {
			benchmarkPutWithTTL(b, newCache(b, factory))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, newCache(b, factory))
		})

		b.Run("GetMissing", func(b *testing.B) {
			benchmarkGetMissing(b, newCache(b, factory))
		})

		b.Run("HasKey", func(b *testing.B) {
			benchmarkHasKey(b, newCache(b, factory))
		})

		b.Run("Remove", func(b *testing.B) {
			benchmarkRemove(b, newCache(b, factory))
		})

		b.Run("Invoke", func(b *testing.B) {
			benchmarkInvoke(b, newCache(b, factory))
		})

		b.Run("Lock&Unlock", func(b *testing.B) {
			benchmarkLockUnlock(b, newCache(b, factory))
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, newCache(b, factory))
		})

		b.Run("MixedUsageWithTTL", func(b *testing.B) {
			benchmarkMixedUsageWithTTL(b, newCache(b, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkPut(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	value := []byte("benchmark-value")
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("put-key-%d", counter.Add(1))
			if err := c.Put(ctx, key, value, grid.TTLEternal); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}
	})
}

func benchmarkPutExisting(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	numKeys := 1_000
	value := []byte("benchmark-value")
	for i := 0; i < numKeys; i++ {
		if err := c.Put(ctx, fmt.Sprintf("existing-key-%d", i), value, grid.TTLEternal); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("existing-key-%d", counter.Add(1)%int64(numKeys))
			if err := c.Put(ctx, key, value, grid.TTLEternal); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}
	})
}

func benchmarkPutLargeValue(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	value := make([]byte, 1024*1024)
	for i := range value {
		value[i] = byte(i % 256)
	}
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("large-key-%d", counter.Add(1)%100)
			if err := c.Put(ctx, key, value, grid.TTLEternal); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}
	})
}

func benchmarkPutWithTTL(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	value := []byte("benchmark-value")
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("ttl-key-%d", counter.Add(1))
			if err := c.Put(ctx, key, value, 60_000); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}
	})
}

func benchmarkGet(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	numKeys := 10_000
	value := []byte("benchmark-value")
	for i := 0; i < numKeys; i++ {
		if err := c.Put(ctx, fmt.Sprintf("get-key-%d", i), value, grid.TTLEternal); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("get-key-%d", counter.Add(1)%int64(numKeys))
			if _, _, err := c.Get(ctx, key); err != nil {
				b.Fatalf("Get failed: %v", err)
			}
		}
	})
}

func benchmarkGetMissing(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("missing-key-%d", counter.Add(1))
			if _, _, err := c.Get(ctx, key); err != nil {
				b.Fatalf("Get failed: %v", err)
			}
		}
	})
}

func benchmarkHasKey(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	numKeys := 10_000
	value := []byte("benchmark-value")
	for i := 0; i < numKeys; i++ {
		if err := c.Put(ctx, fmt.Sprintf("has-key-%d", i), value, grid.TTLEternal); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			// every second probe misses
			i := counter.Add(1)
			key := fmt.Sprintf("has-key-%d", i%int64(numKeys*2))
			c.HasKey(key)
		}
	})
}

func benchmarkRemove(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	numKeys := 100_000
	if b.N < numKeys {
		numKeys = b.N
	}

	value := []byte("benchmark-value")
	keys := make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("remove-key-%d", i)
		if err := c.Put(ctx, keys[i], value, grid.TTLEternal); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx := int(counter.Add(1)-1) % numKeys
			if _, err := c.Remove(ctx, keys[idx]); err != nil {
				b.Fatalf("Remove failed: %v", err)
			}
		}
	})
}

func benchmarkInvoke(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	numKeys := 1_000
	for i := 0; i < numKeys; i++ {
		if err := c.Put(ctx, fmt.Sprintf("invoke-key-%d", i), []byte{0}, grid.TTLEternal); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("invoke-key-%d", counter.Add(1)%int64(numKeys))
			_, err := c.Invoke(ctx, key, func(view *grid.MutableEntryView) ([]byte, error) {
				v := view.Value()
				if v == nil {
					view.SetValue([]byte{0})
				} else {
					view.SetValue([]byte{v[0] + 1})
				}
				return nil, nil
			})
			if err != nil {
				b.Fatalf("Invoke failed: %v", err)
			}
		}
	})
}

func benchmarkLockUnlock(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	if !c.SupportsFeature(grid.FeatureLocks) {
		b.Skip()
	}

	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		owner := []byte(fmt.Sprintf("owner-%d", counter.Add(1)))
		var i int64
		for pb.Next() {
			i++
			key := fmt.Sprintf("lock-key-%s-%d", owner, i)
			if acquired, err := c.Lock(ctx, key, owner); err != nil || !acquired {
				b.Fatalf("Lock failed: acquired=%v err=%v", acquired, err)
			}
			if err := c.Unlock(ctx, key, owner); err != nil {
				b.Fatalf("Unlock failed: %v", err)
			}
		}
	})
}

func benchmarkMixedUsage(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	value := []byte("benchmark-value")
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			key := fmt.Sprintf("mixed-key-%d", i%10_000)

			var err error
			switch i % 10 {
			case 0, 1, 2, 3, 4, 5, 6:
				err = c.Put(ctx, key, value, grid.TTLEternal)
			case 7, 8:
				_, _, err = c.Get(ctx, key)
			case 9:
				_, err = c.Remove(ctx, key)
			}
			if err != nil {
				b.Fatalf("Operation failed: %v", err)
			}
		}
	})
}

func benchmarkMixedUsageWithTTL(b *testing.B, c grid.ICache) {
	b.Cleanup(func() { c.Close() })
	ctx := context.Background()

	value := []byte("benchmark-value")
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			key := fmt.Sprintf("mixed-ttl-key-%d", i%10_000)

			var err error
			switch i % 10 {
			case 0, 1, 2, 3, 4, 5, 6:
				// short ttls keep the sweeper busy during the benchmark
				err = c.Put(ctx, key, value, 50)
			case 7, 8:
				_, _, err = c.Get(ctx, key)
			case 9:
				_, err = c.Remove(ctx, key)
			}
			if err != nil {
				b.Fatalf("Operation failed: %v", err)
			}
		}
	})
}
