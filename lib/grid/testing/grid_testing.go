package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// RunGridTests runs a comprehensive test suite for a grid.ICache
// implementation.
func RunGridTests(t *testing.T, name string, factory grid.CacheFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, newCache(t, factory))
		})

		t.Run("PutIfAbsent", func(t *testing.T) {
			testPutIfAbsent(t, newCache(t, factory))
		})

		t.Run("GetAndPut", func(t *testing.T) {
			testGetAndPut(t, newCache(t, factory))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, newCache(t, factory))
		})

		t.Run("Invoke", func(t *testing.T) {
			testInvoke(t, newCache(t, factory))
		})

		t.Run("Expire", func(t *testing.T) {
			testExpire(t, newCache(t, factory))
		})

		t.Run("EagerSweep", func(t *testing.T) {
			testEagerSweep(t, newCache(t, factory))
		})

		t.Run("UpdateTTL", func(t *testing.T) {
			testUpdateTTL(t, newCache(t, factory))
		})

		t.Run("Peek&HasKey", func(t *testing.T) {
			testPeekHasKey(t, newCache(t, factory))
		})

		t.Run("Locks", func(t *testing.T) {
			testLocks(t, newCache(t, factory))
		})

		t.Run("Transactions", func(t *testing.T) {
			testTransactions(t, newCache(t, factory))
		})

		t.Run("Evict", func(t *testing.T) {
			testEvict(t, newCache(t, factory))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, newCache(t, factory))
		})

		t.Run("LoadInitial", func(t *testing.T) {
			testLoadInitial(t, newCache(t, factory))
		})

		t.Run("Size&Info", func(t *testing.T) {
			testSizeInfo(t, newCache(t, factory))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, newCache(t, factory))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, newCache(t, factory))
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, newCache(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// newCache creates a cache instance from the factory, failing the test when
// the factory errors.
func newCache(t testing.TB, factory grid.CacheFactory) grid.ICache {
	c, err := factory()
	if err != nil {
		t.Fatalf("cache factory failed: %v", err)
	}
	return c
}

// Checks if the cache supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, c grid.ICache, feature grid.Feature) {
	if !c.SupportsFeature(feature) {
		t.Skip()
	}
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := c.Put(ctx, testKey, testValue1, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	result, found, err := c.Get(ctx, testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Get: %v", err)
	}
	if !found {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := c.Put(ctx, testKey, testValue2, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	result, found, _ = c.Get(ctx, testKey)
	if !found {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, found, err = c.Get(ctx, "nonexistent-key")
	if err != nil {
		t.Fatalf("Unexpected error during Get: %v", err)
	}
	if found {
		t.Errorf("Expected nonexistent key to return found=false")
	}

	// mutating the returned slice must not affect the stored value
	retrievedValue, _, _ := c.Get(ctx, testKey)
	retrievedValue[0] = 'X'

	originalValue, _, _ := c.Get(ctx, testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// mutating the slice passed to Put must not affect the stored value
	mutated := []byte("mutation-probe")
	if err := c.Put(ctx, testKey, mutated, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	mutated[0] = 'X'

	result, _, _ = c.Get(ctx, testKey)
	if !bytes.Equal(result, []byte("mutation-probe")) {
		t.Errorf("Put should store a copy, not a reference to the caller's slice")
	}
}

func testPutIfAbsent(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	testKey := "absent-key"
	testValue1 := []byte("first")
	testValue2 := []byte("second")

	applied, err := c.PutIfAbsent(ctx, testKey, testValue1, grid.TTLEternal)
	if err != nil {
		t.Fatalf("Unexpected error during PutIfAbsent: %v", err)
	}
	if !applied {
		t.Errorf("Expected PutIfAbsent to apply on an absent key")
	}

	applied, err = c.PutIfAbsent(ctx, testKey, testValue2, grid.TTLEternal)
	if err != nil {
		t.Fatalf("Unexpected error during PutIfAbsent: %v", err)
	}
	if applied {
		t.Errorf("Expected PutIfAbsent to be rejected on a present key")
	}

	result, _, _ := c.Get(ctx, testKey)
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if _, err := c.Remove(ctx, testKey); err != nil {
		t.Fatalf("Unexpected error during Remove: %v", err)
	}

	applied, _ = c.PutIfAbsent(ctx, testKey, testValue2, grid.TTLEternal)
	if !applied {
		t.Errorf("Expected PutIfAbsent to apply again after Remove")
	}
}

func testGetAndPut(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	testKey := "get-and-put-key"
	testValue1 := []byte("old")
	testValue2 := []byte("new")

	old, hadOld, err := c.GetAndPut(ctx, testKey, testValue1, grid.TTLEternal)
	if err != nil {
		t.Fatalf("Unexpected error during GetAndPut: %v", err)
	}
	if hadOld || old != nil {
		t.Errorf("Expected no previous value, got %s", old)
	}

	old, hadOld, err = c.GetAndPut(ctx, testKey, testValue2, grid.TTLEternal)
	if err != nil {
		t.Fatalf("Unexpected error during GetAndPut: %v", err)
	}
	if !hadOld {
		t.Errorf("Expected a previous value")
	}
	if !bytes.Equal(old, testValue1) {
		t.Errorf("Expected previous value %s, got %s", testValue1, old)
	}

	result, _, _ := c.Get(ctx, testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}
}

func testRemove(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	testKey := "remove-key"
	testValue := []byte("remove-value")

	removed, err := c.Remove(ctx, testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Remove: %v", err)
	}
	if removed {
		t.Errorf("Expected Remove of an absent key to report false")
	}

	if err := c.Put(ctx, testKey, testValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	removed, err = c.Remove(ctx, testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Remove: %v", err)
	}
	if !removed {
		t.Errorf("Expected Remove of a present key to report true")
	}

	if _, found, _ := c.Get(ctx, testKey); found {
		t.Errorf("Expected key %s to not exist after Remove", testKey)
	}
	if c.HasKey(testKey) {
		t.Errorf("Expected HasKey to report false after Remove")
	}

	// remove and return the previous value
	if err := c.Put(ctx, testKey, testValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	old, hadOld, err := c.GetAndRemove(ctx, testKey)
	if err != nil {
		t.Fatalf("Unexpected error during GetAndRemove: %v", err)
	}
	if !hadOld {
		t.Errorf("Expected GetAndRemove to return the previous value")
	}
	if !bytes.Equal(old, testValue) {
		t.Errorf("Expected previous value %s, got %s", testValue, old)
	}

	if _, found, _ := c.Get(ctx, testKey); found {
		t.Errorf("Expected key %s to not exist after GetAndRemove", testKey)
	}
}

func testInvoke(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	testKey := "invoke-key"

	// install a counter value through the processor
	res, err := c.Invoke(ctx, testKey, func(view *grid.MutableEntryView) ([]byte, error) {
		if view.Exists() {
			return nil, fmt.Errorf("unexpected value %s", view.Value())
		}
		view.SetValue([]byte{1})
		return []byte("created"), nil
	})
	if err != nil {
		t.Fatalf("Unexpected error during Invoke: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("Unexpected processor error: %v", res.Err)
	}
	if !bytes.Equal(res.Result, []byte("created")) {
		t.Errorf("Expected processor result created, got %s", res.Result)
	}

	result, found, _ := c.Get(ctx, testKey)
	if !found || !bytes.Equal(result, []byte{1}) {
		t.Errorf("Expected value [1] after Invoke, got %v (found=%v)", result, found)
	}

	// transform the existing value
	res, err = c.Invoke(ctx, testKey, func(view *grid.MutableEntryView) ([]byte, error) {
		v := view.Value()
		view.SetValue([]byte{v[0] + 1})
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Unexpected error during Invoke: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("Unexpected processor error: %v", res.Err)
	}

	result, _, _ = c.Get(ctx, testKey)
	if !bytes.Equal(result, []byte{2}) {
		t.Errorf("Expected value [2] after transform, got %v", result)
	}

	// a processor failure is captured in the result, not the error, and
	// leaves the entry untouched
	procErr := errors.New("processor exploded")
	res, err = c.Invoke(ctx, testKey, func(view *grid.MutableEntryView) ([]byte, error) {
		view.SetValue([]byte("never stored"))
		return nil, procErr
	})
	if err != nil {
		t.Fatalf("Unexpected error during Invoke: %v", err)
	}
	if !errors.Is(res.Err, procErr) {
		t.Errorf("Expected the processor error in the result, got %v", res.Err)
	}

	result, _, _ = c.Get(ctx, testKey)
	if !bytes.Equal(result, []byte{2}) {
		t.Errorf("Expected value [2] after failed transform, got %v", result)
	}

	// remove through the processor
	_, err = c.Invoke(ctx, testKey, func(view *grid.MutableEntryView) ([]byte, error) {
		view.Remove()
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Unexpected error during Invoke: %v", err)
	}

	if _, found, _ := c.Get(ctx, testKey); found {
		t.Errorf("Expected key %s to not exist after processor removal", testKey)
	}
}

func testExpire(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	testKey := "expiring-key"
	testValue := []byte("expiring-value")

	if err := c.Put(ctx, testKey, testValue, 50); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	result, found, _ := c.Get(ctx, testKey)
	if !found {
		t.Errorf("Key should exist before the ttl elapses")
	}
	if !bytes.Equal(result, testValue) {
		t.Errorf("Expected value %s, got %s", testValue, result)
	}

	time.Sleep(120 * time.Millisecond)

	// reads spot the elapsed deadline themselves, without the sweeper
	if _, found, _ := c.Get(ctx, testKey); found {
		t.Errorf("Key should have expired")
	}
	if c.HasKey(testKey) {
		t.Errorf("HasKey should report false after expiry")
	}

	// eternal values never expire
	eternalKey := "eternal-key"
	if err := c.Put(ctx, eternalKey, testValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	if _, found, _ := c.Get(ctx, eternalKey); !found {
		t.Errorf("Key with eternal ttl should never expire")
	}
}

func testEagerSweep(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	requireFeature(t, c, grid.FeatureEagerTTL)

	numKeys := 100
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("sweep-key-%d", i)
		value := []byte(fmt.Sprintf("sweep-value-%d", i))
		if err := c.Put(ctx, key, value, 30); err != nil {
			t.Fatalf("Unexpected error during Put: %v", err)
		}
	}

	if size := c.Size(); size != numKeys {
		t.Errorf("Expected size %d after puts, got %d", numKeys, size)
	}

	// the sweeper must retire the entries without any reads touching them
	if !waitFor(3*time.Second, func() bool { return c.Size() == 0 }) {
		t.Errorf("Expected the sweeper to retire all expired entries, %d left", c.Size())
	}
}

func testUpdateTTL(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	testKey := "ttl-key"
	testValue := []byte("ttl-value")

	ok, err := c.UpdateTTL(ctx, testKey, 100)
	if err != nil {
		t.Fatalf("Unexpected error during UpdateTTL: %v", err)
	}
	if ok {
		t.Errorf("Expected UpdateTTL on an absent key to report false")
	}

	// shorten an eternal entry
	if err := c.Put(ctx, testKey, testValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	ok, err = c.UpdateTTL(ctx, testKey, 50)
	if err != nil {
		t.Fatalf("Unexpected error during UpdateTTL: %v", err)
	}
	if !ok {
		t.Errorf("Expected UpdateTTL on a present key to report true")
	}

	time.Sleep(120 * time.Millisecond)

	if _, found, _ := c.Get(ctx, testKey); found {
		t.Errorf("Key should have expired after the ttl was shortened")
	}

	// extend a short-lived entry to eternal
	if err := c.Put(ctx, testKey, testValue, 50); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	if ok, _ = c.UpdateTTL(ctx, testKey, grid.TTLEternal); !ok {
		t.Errorf("Expected UpdateTTL to apply")
	}

	time.Sleep(150 * time.Millisecond)

	if _, found, _ := c.Get(ctx, testKey); !found {
		t.Errorf("Key should not expire after the ttl was lifted")
	}
}

func testPeekHasKey(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	testKey := "peek-key"
	testValue := []byte("peek-value")

	if c.HasKey(testKey) {
		t.Errorf("Expected HasKey to report false for an absent key")
	}
	if _, found, _ := c.Peek(testKey); found {
		t.Errorf("Expected Peek to miss on an absent key")
	}

	if err := c.Put(ctx, testKey, testValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	result, found, err := c.Peek(testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Peek: %v", err)
	}
	if !found {
		t.Errorf("Expected Peek to hit after Put")
	}
	if !bytes.Equal(result, testValue) {
		t.Errorf("Expected value %s, got %s", testValue, result)
	}
	if !c.HasKey(testKey) {
		t.Errorf("Expected HasKey to report true after Put")
	}

	// peeking never resurrects an expired value
	expKey := "peek-expired-key"
	if err := c.Put(ctx, expKey, testValue, 40); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, found, _ := c.Peek(expKey); found {
		t.Errorf("Expected Peek to miss on an expired value")
	}
}

func testLocks(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	requireFeature(t, c, grid.FeatureLocks)

	testKey := "locked-key"
	ownerA := []byte("owner-a")
	ownerB := []byte("owner-b")

	acquired, err := c.Lock(ctx, testKey, ownerA)
	if err != nil {
		t.Fatalf("Unexpected error during Lock: %v", err)
	}
	if !acquired {
		t.Errorf("Expected the first lock attempt to succeed")
	}

	acquired, err = c.Lock(ctx, testKey, ownerB)
	if err != nil {
		t.Fatalf("Unexpected error during Lock: %v", err)
	}
	if acquired {
		t.Errorf("Expected a contending lock attempt to fail without blocking")
	}

	// re-acquisition by the holder is idempotent
	if acquired, _ = c.Lock(ctx, testKey, ownerA); !acquired {
		t.Errorf("Expected re-acquisition by the holder to succeed")
	}

	// a lock candidate keeps the entry safe from eviction
	if err := c.Put(ctx, testKey, []byte("locked-value"), grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	evicted, err := c.Evict(ctx, testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Evict: %v", err)
	}
	if evicted {
		t.Errorf("Expected a locked entry to refuse eviction")
	}
	if _, found, _ := c.Get(ctx, testKey); !found {
		t.Errorf("Expected the locked value to survive the eviction attempt")
	}

	if err := c.Unlock(ctx, testKey, ownerA); err != nil {
		t.Fatalf("Unexpected error during Unlock: %v", err)
	}

	if acquired, _ = c.Lock(ctx, testKey, ownerB); !acquired {
		t.Errorf("Expected the lock to be acquirable after Unlock")
	}
	if err := c.Unlock(ctx, testKey, ownerB); err != nil {
		t.Fatalf("Unexpected error during Unlock: %v", err)
	}

	// unlocking an unheld lock is a no-op
	if err := c.Unlock(ctx, "never-locked-key", ownerA); err != nil {
		t.Fatalf("Unexpected error during Unlock of an unheld lock: %v", err)
	}
}

func testTransactions(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	requireFeature(t, c, grid.FeatureLocks)

	testKey := "tx-key"
	owner := []byte("tx-owner")
	testValue1 := []byte("tx-value1")
	testValue2 := []byte("tx-value2")

	tx := c.NewTx(owner)
	if !tx.IsLocal() {
		t.Errorf("Expected a locally created transaction to report IsLocal")
	}

	// writing without the key lock violates the protocol
	_, _, err := c.TxPut(ctx, tx, testKey, testValue1, grid.TTLEternal, nil)
	if err == nil {
		t.Fatalf("Expected TxPut without the key lock to fail")
	}
	if grid.CodeOf(err) != grid.RetCProtocolViolation {
		t.Errorf("Expected a protocol violation, got %v", err)
	}

	if acquired, _ := c.Lock(ctx, testKey, owner); !acquired {
		t.Fatalf("Expected the lock to be acquirable")
	}
	if !tx.OwnsLock(testKey) {
		t.Errorf("Expected the transaction to own the lock after Lock")
	}

	applied, old, err := c.TxPut(ctx, tx, testKey, testValue1, grid.TTLEternal, nil)
	if err != nil {
		t.Fatalf("Unexpected error during TxPut: %v", err)
	}
	if !applied {
		t.Errorf("Expected TxPut to apply under the held lock")
	}
	if old != nil {
		t.Errorf("Expected no previous value, got %s", old)
	}

	applied, old, err = c.TxPut(ctx, tx, testKey, testValue2, grid.TTLEternal, nil)
	if err != nil {
		t.Fatalf("Unexpected error during TxPut: %v", err)
	}
	if !applied {
		t.Errorf("Expected TxPut to apply under the held lock")
	}
	if !bytes.Equal(old, testValue1) {
		t.Errorf("Expected previous value %s, got %s", testValue1, old)
	}

	// filters guard transactional writes
	applied, _, err = c.TxPut(ctx, tx, testKey, testValue1, grid.TTLEternal, grid.FilterNoValue)
	if err != nil {
		t.Fatalf("Unexpected error during TxPut: %v", err)
	}
	if applied {
		t.Errorf("Expected the filter to reject the write on a present value")
	}

	applied, old, err = c.TxRemove(ctx, tx, testKey, nil)
	if err != nil {
		t.Fatalf("Unexpected error during TxRemove: %v", err)
	}
	if !applied {
		t.Errorf("Expected TxRemove to apply under the held lock")
	}
	if !bytes.Equal(old, testValue2) {
		t.Errorf("Expected previous value %s, got %s", testValue2, old)
	}

	if _, found, _ := c.Get(ctx, testKey); found {
		t.Errorf("Expected key %s to not exist after TxRemove", testKey)
	}

	if err := c.Unlock(ctx, testKey, owner); err != nil {
		t.Fatalf("Unexpected error during Unlock: %v", err)
	}
}

func testEvict(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	testKey := "evict-key"
	testValue := []byte("evict-value")

	evicted, err := c.Evict(ctx, testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Evict: %v", err)
	}
	if evicted {
		t.Errorf("Expected Evict of an absent key to report false")
	}

	if err := c.Put(ctx, testKey, testValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	evicted, err = c.Evict(ctx, testKey)
	if err != nil {
		t.Fatalf("Unexpected error during Evict: %v", err)
	}
	if !evicted {
		t.Errorf("Expected Evict of a present key to report true")
	}

	if _, found, _ := c.Peek(testKey); found {
		t.Errorf("Expected the value to leave memory after Evict")
	}

	if c.SupportsFeature(grid.FeatureSwap) {
		// the demoted value is visible in the swap tier and a read
		// promotes it back
		result, found, err := c.Peek(testKey, grid.PeekSwap)
		if err != nil {
			t.Fatalf("Unexpected error during swap Peek: %v", err)
		}
		if !found {
			t.Errorf("Expected the demoted value in the swap tier")
		}
		if !bytes.Equal(result, testValue) {
			t.Errorf("Expected demoted value %s, got %s", testValue, result)
		}

		result, found, err = c.Get(ctx, testKey)
		if err != nil {
			t.Fatalf("Unexpected error during Get: %v", err)
		}
		if !found || !bytes.Equal(result, testValue) {
			t.Errorf("Expected Get to promote the demoted value, got %s (found=%v)", result, found)
		}
	} else if !c.SupportsFeature(grid.FeatureReadThrough) {
		if _, found, _ := c.Get(ctx, testKey); found {
			t.Errorf("Expected the value to be gone after Evict without a swap tier")
		}
	}

	// batch eviction
	batchKeys := make([]string, 10)
	for i := range batchKeys {
		batchKeys[i] = fmt.Sprintf("evict-batch-%d", i)
		if err := c.Put(ctx, batchKeys[i], testValue, grid.TTLEternal); err != nil {
			t.Fatalf("Unexpected error during Put: %v", err)
		}
	}

	if err := c.EvictAll(ctx, batchKeys); err != nil {
		t.Fatalf("Unexpected error during EvictAll: %v", err)
	}

	for _, key := range batchKeys {
		if _, found, _ := c.Peek(key); found {
			t.Errorf("Expected key %s to leave memory after EvictAll", key)
		}
	}
}

func testClear(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	testKey1 := "clear-key1"
	testKey2 := "clear-key2"
	testValue := []byte("clear-value")

	cleared, err := c.Clear(ctx, testKey1)
	if err != nil {
		t.Fatalf("Unexpected error during Clear: %v", err)
	}
	if cleared {
		t.Errorf("Expected Clear of an absent key to report false")
	}

	if err := c.Put(ctx, testKey1, testValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	if err := c.Put(ctx, testKey2, testValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	cleared, err = c.Clear(ctx, testKey1)
	if err != nil {
		t.Fatalf("Unexpected error during Clear: %v", err)
	}
	if !cleared {
		t.Errorf("Expected Clear of a present key to report true")
	}
	if _, found, _ := c.Peek(testKey1); found {
		t.Errorf("Expected key %s to not exist after Clear", testKey1)
	}

	if err := c.ClearAll(ctx); err != nil {
		t.Fatalf("Unexpected error during ClearAll: %v", err)
	}
	if _, found, _ := c.Peek(testKey2); found {
		t.Errorf("Expected key %s to not exist after ClearAll", testKey2)
	}
	if size := c.Size(); size != 0 {
		t.Errorf("Expected size 0 after ClearAll, got %d", size)
	}
}

func testLoadInitial(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	vers := version.NewManager(0)

	testKey := "load-key"
	testValue := []byte("load-value")

	applied, err := c.LoadInitial(ctx, testKey, testValue, vers.Next(), grid.TTLEternal)
	if err != nil {
		t.Fatalf("Unexpected error during LoadInitial: %v", err)
	}
	if !applied {
		t.Errorf("Expected LoadInitial to apply on a never-populated key")
	}

	result, found, _ := c.Get(ctx, testKey)
	if !found || !bytes.Equal(result, testValue) {
		t.Errorf("Expected loaded value %s, got %s (found=%v)", testValue, result, found)
	}

	// a populated entry refuses the load
	applied, err = c.LoadInitial(ctx, testKey, []byte("newer"), vers.Next(), grid.TTLEternal)
	if err != nil {
		t.Fatalf("Unexpected error during LoadInitial: %v", err)
	}
	if applied {
		t.Errorf("Expected LoadInitial to be refused on a populated key")
	}

	result, _, _ = c.Get(ctx, testKey)
	if !bytes.Equal(result, testValue) {
		t.Errorf("Expected the loaded value to survive, got %s", result)
	}

	// a regular write wins over a later load
	putKey := "load-after-put-key"
	if err := c.Put(ctx, putKey, testValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	if applied, _ = c.LoadInitial(ctx, putKey, []byte("stale"), vers.Next(), grid.TTLEternal); applied {
		t.Errorf("Expected LoadInitial to be refused after a regular write")
	}
}

func testSizeInfo(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	if size := c.Size(); size != 0 {
		t.Errorf("Expected size 0 for a fresh cache, got %d", size)
	}

	numKeys := 100
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("size-key-%d", i)
		value := []byte(fmt.Sprintf("size-value-%d", i))
		if err := c.Put(ctx, key, value, grid.TTLEternal); err != nil {
			t.Fatalf("Unexpected error during Put: %v", err)
		}
	}

	if size := c.Size(); size != numKeys {
		t.Errorf("Expected size %d after puts, got %d", numKeys, size)
	}

	// removed keys leave the reported size immediately, tombstones are not
	// visible to callers
	for i := 0; i < numKeys/2; i++ {
		key := fmt.Sprintf("size-key-%d", i)
		if _, err := c.Remove(ctx, key); err != nil {
			t.Fatalf("Unexpected error during Remove: %v", err)
		}
	}

	if size := c.Size(); size != numKeys/2 {
		t.Errorf("Expected size %d after removes, got %d", numKeys/2, size)
	}

	info := c.GetInfo()
	if info.Size != numKeys/2 {
		t.Errorf("Expected info size %d, got %d", numKeys/2, info.Size)
	}
	if info.Shards <= 0 {
		t.Errorf("Expected a positive shard count, got %d", info.Shards)
	}
	if info.AvgValueSize <= 0 {
		t.Errorf("Expected a positive sampled value size, got %d", info.AvgValueSize)
	}
	if len(info.SupportedFeatures) == 0 {
		t.Errorf("Expected the feature list to be reported")
	}
}

func testEdgeCases(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	// the empty key is rejected
	if err := c.Put(ctx, "", []byte("value"), grid.TTLEternal); err == nil {
		t.Errorf("Expected Put with an empty key to fail")
	}
	if _, _, err := c.Get(ctx, ""); err == nil {
		t.Errorf("Expected Get with an empty key to fail")
	}
	if c.HasKey("") {
		t.Errorf("Expected HasKey to report false for the empty key")
	}

	// negative ttls below TTLNotChanged are rejected
	if err := c.Put(ctx, "ttl-key", []byte("value"), -2); err == nil {
		t.Errorf("Expected Put with an invalid ttl to fail")
	}

	// nil values are stored as empty ones
	nilValueKey := "nil-value-key"
	if err := c.Put(ctx, nilValueKey, nil, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	result, found, _ := c.Get(ctx, nilValueKey)
	if !found {
		t.Errorf("Key for nil value not found after Put")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	// binary keys
	binaryKey := string([]byte{0x00, 0x01, 0xff})
	binaryValue := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := c.Put(ctx, binaryKey, binaryValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	result, found, _ = c.Get(ctx, binaryKey)
	if !found || !bytes.Equal(result, binaryValue) {
		t.Errorf("Binary key roundtrip failed: got %v (found=%v)", result, found)
	}

	// large keys and values
	largeKey := string(make([]byte, 1000))
	largeKeyValue := []byte("value for large key")
	if err := c.Put(ctx, largeKey, largeKeyValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	result, found, _ = c.Get(ctx, largeKey)
	if !found {
		t.Errorf("Large key not found after Put")
	} else if !bytes.Equal(result, largeKeyValue) {
		t.Errorf("Value mismatch for large key")
	}

	largeValueKey := "large-value-key"
	largeValue := make([]byte, 4*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}

	if err := c.Put(ctx, largeValueKey, largeValue, grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	result, found, _ = c.Get(ctx, largeValueKey)
	if !found {
		t.Errorf("Key for large value not found after Put")
	} else if !bytes.Equal(result, largeValue) {
		headMismatch := !bytes.Equal(result[:10], largeValue[:10])
		tailMismatch := !bytes.Equal(result[len(result)-10:], largeValue[len(largeValue)-10:])
		t.Errorf("Large value mismatch: Head mismatch=%v, Tail mismatch=%v, Size mismatch=%v",
			headMismatch, tailMismatch, len(result) != len(largeValue))
	}
}

func testClosed(t *testing.T, c grid.ICache) {
	ctx := context.Background()

	testKey := "closed-key"
	if err := c.Put(ctx, testKey, []byte("value"), grid.TTLEternal); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Unexpected error during Close: %v", err)
	}

	if err := c.Put(ctx, testKey, []byte("value"), grid.TTLEternal); grid.CodeOf(err) != grid.RetCClosed {
		t.Errorf("Expected Put on a closed cache to fail with the closed code, got %v", err)
	}
	if _, _, err := c.Get(ctx, testKey); grid.CodeOf(err) != grid.RetCClosed {
		t.Errorf("Expected Get on a closed cache to fail with the closed code, got %v", err)
	}
	if _, err := c.Remove(ctx, testKey); grid.CodeOf(err) != grid.RetCClosed {
		t.Errorf("Expected Remove on a closed cache to fail with the closed code, got %v", err)
	}

	// closing twice is a no-op
	if err := c.Close(); err != nil {
		t.Errorf("Unexpected error during second Close: %v", err)
	}
}

func testRealisticUsage(t *testing.T, c grid.ICache) {
	defer c.Close()
	ctx := context.Background()

	type operation struct {
		op    string
		key   string
		value []byte
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "put"
		case 7, 8:
			op = "get"
		case 9:
			op = "remove"
		}

		var key string
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		} else {
			key = fmt.Sprintf("key-%d", i)
		}

		var value []byte
		if op == "put" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)
			for j := 0; j < valueSize; j++ {
				value[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, value}
	}

	allKeys := make(map[string]bool)
	for _, op := range operations {
		allKeys[op.key] = true
	}

	numWorkers := 8
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	var errorCount int32

	opsPerWorker := numOperations / numWorkers

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]

				var err error
				switch op.op {
				case "put":
					err = c.Put(ctx, op.key, op.value, grid.TTLEternal)
				case "get":
					_, _, err = c.Get(ctx, op.key)
				case "remove":
					_, err = c.Remove(ctx, op.key)
				}
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
				}
			}
		}(w)
	}

	wg.Wait()

	if count := atomic.LoadInt32(&errorCount); count > 0 {
		t.Fatalf("Test had %d errors during parallel operations", count)
	}

	// two verification passes over every key must agree
	var (
		mu        sync.Mutex
		keyStatus = make(map[string]bool)
		keyValues = make(map[string][]byte)
	)

	var verifyWg sync.WaitGroup
	verifyWg.Add(len(allKeys))

	for key := range allKeys {
		go func(k string) {
			defer verifyWg.Done()

			value, found, err := c.Get(ctx, k)
			if err != nil {
				atomic.AddInt32(&errorCount, 1)
				return
			}

			mu.Lock()
			defer mu.Unlock()

			keyStatus[k] = found
			if found {
				keyValues[k] = value
			}
		}(key)
	}

	verifyWg.Wait()

	if count := atomic.LoadInt32(&errorCount); count > 0 {
		t.Fatalf("Test had %d errors during verification", count)
	}

	for key := range allKeys {
		value, found, err := c.Get(ctx, key)
		if err != nil {
			t.Errorf("Unexpected error during verification of key %s: %v", key, err)
			continue
		}

		if found != keyStatus[key] {
			t.Errorf("Consistency error: Key %s existence changed during verification", key)
			continue
		}

		if found && !bytes.Equal(value, keyValues[key]) {
			t.Errorf("Value mismatch for key %s between verification passes", key)
		}
	}
}
