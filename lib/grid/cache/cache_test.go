package cache

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// newTestCache creates a cache and registers its shutdown with the test.
func newTestCache(t *testing.T, cfg grid.Config, opts *Options) *gridCache {
	t.Helper()
	c, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c.(*gridCache)
}

// totalMapSize counts attached entries across all shards, tombstones and
// husks included. The public Size() hides those.
func totalMapSize(c *gridCache) int {
	n := 0
	for _, s := range c.shards {
		n += s.Data.Size()
	}
	return n
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
// Construction
// --------------------------------------------------------------------------

func TestNewValidatesConfig(t *testing.T) {
	badConfigs := map[string]grid.Config{
		"zero sweep interval": func() grid.Config {
			cfg := grid.DefaultConfig()
			cfg.SweepInterval = 0
			return cfg
		}(),
		"zero tombstone purge time": func() grid.Config {
			cfg := grid.DefaultConfig()
			cfg.DeferredDelete = true
			cfg.TombstonePurgeAfter = 0
			return cfg
		}(),
		"unknown log level": func() grid.Config {
			cfg := grid.DefaultConfig()
			cfg.LogLevel = "verbose"
			return cfg
		}(),
		"conflicting swap tiers": func() grid.Config {
			cfg := grid.DefaultConfig()
			cfg.SwapPath = "/tmp/grid-swap"
			cfg.SwapInMemory = true
			return cfg
		}(),
	}

	for name, cfg := range badConfigs {
		if _, err := New(cfg, nil); grid.CodeOf(err) != grid.RetCInvalidConfig {
			t.Errorf("Expected an invalid config error for %s, got %v", name, err)
		}
	}
}

func TestNewZeroConfig(t *testing.T) {
	// a zero configuration is valid, defaults fill the gaps
	c, err := New(grid.Config{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Put(ctx, "key", []byte("value"), grid.TTLEternal); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, found, _ := c.Get(ctx, "key"); !found {
		t.Errorf("Expected the value to be readable")
	}
}

func TestFeatureNegotiation(t *testing.T) {
	// the default standalone cache has locks and eager ttl, nothing else
	c := newTestCache(t, grid.DefaultConfig(), nil)
	for _, f := range []grid.Feature{grid.FeatureLocks, grid.FeatureEagerTTL} {
		if !c.SupportsFeature(f) {
			t.Errorf("Expected feature %d to be supported by default", f)
		}
	}
	for _, f := range []grid.Feature{
		grid.FeatureReadThrough, grid.FeatureWriteThrough, grid.FeatureSwap,
		grid.FeatureOffHeap, grid.FeatureDeferredDelete, grid.FeatureEvents,
	} {
		if c.SupportsFeature(f) {
			t.Errorf("Expected feature %d to be off by default", f)
		}
	}

	// store features require a store, the config alone is not enough
	cfg := grid.DefaultConfig()
	cfg.ReadThrough = true
	cfg.WriteThrough = true
	noStore := newTestCache(t, cfg, nil)
	if noStore.SupportsFeature(grid.FeatureReadThrough) || noStore.SupportsFeature(grid.FeatureWriteThrough) {
		t.Errorf("Expected store features to be cleared without a store")
	}

	withStore := newTestCache(t, cfg, &Options{Store: newTestStore()})
	if !withStore.SupportsFeature(grid.FeatureReadThrough) || !withStore.SupportsFeature(grid.FeatureWriteThrough) {
		t.Errorf("Expected store features to be on with a store")
	}

	// injected tiers light up their features
	injected := newTestCache(t, grid.DefaultConfig(), &Options{Swap: newTestSwap()})
	if !injected.SupportsFeature(grid.FeatureSwap) {
		t.Errorf("Expected an injected swap store to enable the swap feature")
	}
}

// --------------------------------------------------------------------------
// Backing store integration
// --------------------------------------------------------------------------

func TestReadThrough(t *testing.T) {
	store := newTestStore()
	store.set("stored-key", []byte("from-store"))

	cfg := grid.DefaultConfig()
	cfg.ReadThrough = true
	c := newTestCache(t, cfg, &Options{Store: store})
	ctx := context.Background()

	value, found, err := c.Get(ctx, "stored-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || !bytes.Equal(value, []byte("from-store")) {
		t.Errorf("Expected the stored value, got %s (found=%v)", value, found)
	}
	if n := store.loadCount(); n != 1 {
		t.Errorf("Expected one store load, got %d", n)
	}

	// the loaded value is installed in memory, the second read stays local
	if _, _, err := c.Get(ctx, "stored-key"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n := store.loadCount(); n != 1 {
		t.Errorf("Expected the second read to be served from memory, got %d loads", n)
	}

	// a miss in the store leaves nothing behind
	if _, found, _ := c.Get(ctx, "absent-key"); found {
		t.Errorf("Expected a store miss to stay a miss")
	}
	if n := totalMapSize(c); n != 1 {
		t.Errorf("Expected no residue after a store miss, map holds %d entries", n)
	}
}

func TestReadThroughCoalescing(t *testing.T) {
	store := newTestStore()
	store.set("hot-key", []byte("hot-value"))

	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	store.beforeLoad = func() {
		select {
		case started <- struct{}{}:
		default:
		}
		<-gate
	}

	cfg := grid.DefaultConfig()
	cfg.ReadThrough = true
	c := newTestCache(t, cfg, &Options{Store: store})
	ctx := context.Background()

	const readers = 16
	var wg sync.WaitGroup
	wg.Add(readers)
	var hits atomic.Int32

	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			value, found, err := c.Get(ctx, "hot-key")
			if err == nil && found && bytes.Equal(value, []byte("hot-value")) {
				hits.Add(1)
			}
		}()
	}

	// hold the first load open until the remaining readers are queued
	// behind it, then let all of them share its result
	<-started
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := store.loadCount(); n != 1 {
		t.Errorf("Expected concurrent misses to share one store load, got %d", n)
	}
	if n := hits.Load(); n != readers {
		t.Errorf("Expected all %d readers to see the loaded value, got %d", readers, n)
	}
}

func TestWriteThrough(t *testing.T) {
	store := newTestStore()

	cfg := grid.DefaultConfig()
	cfg.WriteThrough = true
	c := newTestCache(t, cfg, &Options{Store: store})
	ctx := context.Background()

	if err := c.Put(ctx, "wt-key", []byte("wt-value"), grid.TTLEternal); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if v, ok := store.get("wt-key"); !ok || !bytes.Equal(v, []byte("wt-value")) {
		t.Errorf("Expected the write to reach the store, got %s (ok=%v)", v, ok)
	}

	if _, err := c.Remove(ctx, "wt-key"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := store.get("wt-key"); ok {
		t.Errorf("Expected the removal to reach the store")
	}
}

// --------------------------------------------------------------------------
// Tombstones
// --------------------------------------------------------------------------

func TestTombstoneLifecycle(t *testing.T) {
	cfg := grid.DefaultConfig()
	cfg.DeferredDelete = true
	cfg.TombstonePurgeAfter = 150
	cfg.SweepInterval = 20
	c := newTestCache(t, cfg, nil)
	ctx := context.Background()

	if err := c.Put(ctx, "ts-key", []byte("ts-value"), grid.TTLEternal); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if removed, _ := c.Remove(ctx, "ts-key"); !removed {
		t.Fatalf("Expected the removal to apply")
	}

	// the tombstone stays attached but is invisible to callers
	if n := totalMapSize(c); n != 1 {
		t.Errorf("Expected the tombstone to stay attached, map holds %d entries", n)
	}
	if size := c.Size(); size != 0 {
		t.Errorf("Expected size 0 with an attached tombstone, got %d", size)
	}
	if n := c.tombstones.Load(); n != 1 {
		t.Errorf("Expected the tombstone counter at 1, got %d", n)
	}
	if info := c.GetInfo(); info.Tombstones != 1 {
		t.Errorf("Expected one reported tombstone, got %d", info.Tombstones)
	}

	// the purger retires it once the purge time elapsed
	if !waitFor(3*time.Second, func() bool { return totalMapSize(c) == 0 }) {
		t.Errorf("Expected the tombstone to be purged, map holds %d entries", totalMapSize(c))
	}
	if n := c.tombstones.Load(); n != 0 {
		t.Errorf("Expected the tombstone counter at 0 after the purge, got %d", n)
	}
}

func TestTombstoneResurrection(t *testing.T) {
	cfg := grid.DefaultConfig()
	cfg.DeferredDelete = true
	cfg.TombstonePurgeAfter = 150
	cfg.SweepInterval = 20
	c := newTestCache(t, cfg, nil)
	ctx := context.Background()

	if err := c.Put(ctx, "res-key", []byte("first"), grid.TTLEternal); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := c.Remove(ctx, "res-key"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	// writing over the tombstone revives the entry and cancels the purge
	if err := c.Put(ctx, "res-key", []byte("second"), grid.TTLEternal); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if n := c.tombstones.Load(); n != 0 {
		t.Errorf("Expected the tombstone counter at 0 after the revival, got %d", n)
	}

	time.Sleep(400 * time.Millisecond)

	value, found, err := c.Get(ctx, "res-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found || !bytes.Equal(value, []byte("second")) {
		t.Errorf("Expected the revived value to survive the purge deadline, got %s (found=%v)", value, found)
	}
	if n := totalMapSize(c); n != 1 {
		t.Errorf("Expected the revived entry to stay attached, map holds %d entries", n)
	}
}

// --------------------------------------------------------------------------
// Expiry and husk retirement
// --------------------------------------------------------------------------

func TestLazyExpiry(t *testing.T) {
	cfg := grid.DefaultConfig()
	cfg.EagerTTL = false
	c := newTestCache(t, cfg, nil)
	ctx := context.Background()

	if err := c.Put(ctx, "lazy-key", []byte("lazy-value"), 30); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	// without eager sweeping the expired entry stays attached until a
	// reader trips over it
	if n := totalMapSize(c); n != 1 {
		t.Errorf("Expected the expired entry to stay attached, map holds %d entries", n)
	}

	if _, found, _ := c.Get(ctx, "lazy-key"); found {
		t.Errorf("Expected the value to be expired")
	}
	if n := totalMapSize(c); n != 0 {
		t.Errorf("Expected the read to retire the expired entry, map holds %d entries", n)
	}
}

func TestEagerSweepDetachesEntries(t *testing.T) {
	metrics := &countingMetrics{}

	cfg := grid.DefaultConfig()
	cfg.SweepInterval = 20
	c := newTestCache(t, cfg, &Options{Metrics: metrics})
	ctx := context.Background()

	numKeys := 50
	for i := 0; i < numKeys; i++ {
		if err := c.Put(ctx, fmt.Sprintf("sweep-%d", i), []byte("v"), 30); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// the sweeper retires the entries from the shard maps, not just from
	// the public size
	if !waitFor(3*time.Second, func() bool { return totalMapSize(c) == 0 }) {
		t.Errorf("Expected the sweeper to detach all entries, map holds %d", totalMapSize(c))
	}
	if n := metrics.expired.Load(); n != int64(numKeys) {
		t.Errorf("Expected %d expiries to be counted, got %d", numKeys, n)
	}
}

// --------------------------------------------------------------------------
// Locks
// --------------------------------------------------------------------------

func TestLockCandidateWithdrawn(t *testing.T) {
	c := newTestCache(t, grid.DefaultConfig(), nil)
	ctx := context.Background()

	key := "contended-key"
	ownerA := []byte("owner-a")
	ownerB := []byte("owner-b")
	ownerC := []byte("owner-c")

	if acquired, _ := c.Lock(ctx, key, ownerA); !acquired {
		t.Fatalf("Expected the first lock attempt to succeed")
	}
	if acquired, _ := c.Lock(ctx, key, ownerB); acquired {
		t.Fatalf("Expected the contending attempt to fail")
	}
	if err := c.Unlock(ctx, key, ownerA); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	// the failed attempt left no candidate behind, a third owner can
	// acquire immediately
	if acquired, _ := c.Lock(ctx, key, ownerC); !acquired {
		t.Errorf("Expected the lock to be free after the holder released it")
	}
	if err := c.Unlock(ctx, key, ownerC); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
}

func TestUnlockRetiresEmptyEntry(t *testing.T) {
	c := newTestCache(t, grid.DefaultConfig(), nil)
	ctx := context.Background()

	key := "lock-only-key"
	owner := []byte("owner")

	if acquired, _ := c.Lock(ctx, key, owner); !acquired {
		t.Fatalf("Expected the lock attempt to succeed")
	}
	if n := totalMapSize(c); n != 1 {
		t.Errorf("Expected the lock to pin an entry, map holds %d", n)
	}

	if err := c.Unlock(ctx, key, owner); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	// nothing keeps the valueless entry alive once the lock is gone
	if n := totalMapSize(c); n != 0 {
		t.Errorf("Expected the empty entry to be retired after Unlock, map holds %d", n)
	}
}

func TestStaleTopologyEpochWrite(t *testing.T) {
	mgr := version.NewManager(0)
	c := newTestCache(t, grid.DefaultConfig(), &Options{Versions: mgr})
	ctx := context.Background()

	key := "epoch-key"
	owner := []byte("epoch-owner")

	if acquired, _ := c.Lock(ctx, key, owner); !acquired {
		t.Fatalf("Expected the lock attempt to succeed")
	}
	tx := c.NewTx(owner)

	// the topology moves on under the transaction
	mgr.OnTopologyChange(mgr.TopologyEpoch() + 1)

	// the write lands but is reported as not applied
	applied, _, err := c.TxPut(ctx, tx, key, []byte("epoch-value"), grid.TTLEternal, nil)
	if err != nil {
		t.Fatalf("TxPut failed: %v", err)
	}
	if applied {
		t.Errorf("Expected a write on a stale epoch to report applied=false")
	}

	value, found, _ := c.Get(ctx, key)
	if !found || !bytes.Equal(value, []byte("epoch-value")) {
		t.Errorf("Expected the stale-epoch write to be performed, got %s (found=%v)", value, found)
	}

	if err := c.Unlock(ctx, key, owner); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Interceptor, events, metrics
// --------------------------------------------------------------------------

func TestInterceptor(t *testing.T) {
	interceptor := &testInterceptor{
		beforePut: func(key string, _, newVal []byte) ([]byte, bool) {
			switch key {
			case "blocked-key":
				return nil, false
			case "rewritten-key":
				return append(newVal, '!'), true
			}
			return newVal, true
		},
		beforeRemove: func(key string, _ []byte) (bool, []byte) {
			return key == "guarded-key", nil
		},
	}

	c := newTestCache(t, grid.DefaultConfig(), &Options{Interceptor: interceptor})
	ctx := context.Background()

	// a vetoed put leaves the entry unchanged
	if err := c.Put(ctx, "blocked-key", []byte("value"), grid.TTLEternal); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, found, _ := c.Get(ctx, "blocked-key"); found {
		t.Errorf("Expected the vetoed put to store nothing")
	}

	// the interceptor may rewrite the value on its way in
	if err := c.Put(ctx, "rewritten-key", []byte("value"), grid.TTLEternal); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if value, _, _ := c.Get(ctx, "rewritten-key"); !bytes.Equal(value, []byte("value!")) {
		t.Errorf("Expected the rewritten value, got %s", value)
	}

	// a vetoed removal keeps the value
	if err := c.Put(ctx, "guarded-key", []byte("guarded"), grid.TTLEternal); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	removed, err := c.Remove(ctx, "guarded-key")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed {
		t.Errorf("Expected the vetoed removal to report false")
	}
	if _, found, _ := c.Get(ctx, "guarded-key"); !found {
		t.Errorf("Expected the guarded value to survive")
	}
}

func TestEventBus(t *testing.T) {
	bus := &recordingBus{}

	cfg := grid.DefaultConfig()
	cfg.SweepInterval = 20
	c := newTestCache(t, cfg, &Options{Events: bus})
	ctx := context.Background()

	if !c.SupportsFeature(grid.FeatureEvents) {
		t.Fatalf("Expected the events feature to be on with a bus")
	}

	if err := c.Put(ctx, "event-key", []byte("event-value"), grid.TTLEternal); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, _, err := c.Get(ctx, "event-key"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := c.Remove(ctx, "event-key"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	puts := bus.ofType(grid.EventPut)
	if len(puts) != 1 {
		t.Fatalf("Expected one put event, got %d", len(puts))
	}
	if puts[0].Key != "event-key" || !bytes.Equal(puts[0].NewValue, []byte("event-value")) {
		t.Errorf("Unexpected put event: %+v", puts[0])
	}
	if len(bus.ofType(grid.EventRead)) == 0 {
		t.Errorf("Expected a read event")
	}
	if len(bus.ofType(grid.EventRemoved)) != 1 {
		t.Errorf("Expected one removed event")
	}

	// locks publish their own lifecycle
	owner := []byte("event-owner")
	if acquired, _ := c.Lock(ctx, "lock-event-key", owner); !acquired {
		t.Fatalf("Expected the lock attempt to succeed")
	}
	if err := c.Unlock(ctx, "lock-event-key", owner); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if len(bus.ofType(grid.EventLocked)) != 1 || len(bus.ofType(grid.EventUnlocked)) != 1 {
		t.Errorf("Expected one locked and one unlocked event")
	}

	// expiry through the sweeper is published too
	if err := c.Put(ctx, "expire-event-key", []byte("v"), 30); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !waitFor(3*time.Second, func() bool { return len(bus.ofType(grid.EventExpired)) == 1 }) {
		t.Errorf("Expected an expired event from the sweeper")
	}
}

func TestMetricsCounters(t *testing.T) {
	metrics := &countingMetrics{}
	c := newTestCache(t, grid.DefaultConfig(), &Options{Metrics: metrics})
	ctx := context.Background()

	if err := c.Put(ctx, "metrics-key", []byte("v"), grid.TTLEternal); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, _, err := c.Get(ctx, "metrics-key"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, _, err := c.Get(ctx, "missing-key"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := c.Remove(ctx, "metrics-key"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if n := metrics.writes.Load(); n != 1 {
		t.Errorf("Expected 1 write, got %d", n)
	}
	if n := metrics.hits.Load(); n != 1 {
		t.Errorf("Expected 1 hit, got %d", n)
	}
	if n := metrics.misses.Load(); n != 1 {
		t.Errorf("Expected 1 miss, got %d", n)
	}
	if n := metrics.removes.Load(); n != 1 {
		t.Errorf("Expected 1 remove, got %d", n)
	}
}

// --------------------------------------------------------------------------
// Off-heap tier
// --------------------------------------------------------------------------

func TestOffHeapPlacement(t *testing.T) {
	cfg := grid.DefaultConfig()
	cfg.OffHeapSize = 1 << 20
	c := newTestCache(t, cfg, nil)
	ctx := context.Background()

	if c.arena == nil {
		t.Fatalf("Expected an arena to be created")
	}

	value := make([]byte, 1024)
	for i := range value {
		value[i] = byte(i % 256)
	}

	numKeys := 8
	for i := 0; i < numKeys; i++ {
		if err := c.Put(ctx, fmt.Sprintf("off-heap-%d", i), value, grid.TTLEternal); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	if used := c.arena.Used(); used == 0 {
		t.Errorf("Expected the values to be placed off-heap")
	}
	if n := c.arena.Count(); n != int64(numKeys) {
		t.Errorf("Expected %d off-heap allocations, got %d", numKeys, n)
	}

	for i := 0; i < numKeys; i++ {
		got, found, err := c.Get(ctx, fmt.Sprintf("off-heap-%d", i))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !found || !bytes.Equal(got, value) {
			t.Errorf("Off-heap value roundtrip failed for key %d", i)
		}
	}

	// removals release their allocations
	for i := 0; i < numKeys; i++ {
		if _, err := c.Remove(ctx, fmt.Sprintf("off-heap-%d", i)); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
	}
	if used := c.arena.Used(); used != 0 {
		t.Errorf("Expected all allocations to be released, %d bytes still used", used)
	}
}

// --------------------------------------------------------------------------
// Tier ownership
// --------------------------------------------------------------------------

func TestCloseClosesTiers(t *testing.T) {
	swapStore := newTestSwap()
	c, err := New(grid.DefaultConfig(), &Options{Swap: swapStore})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !swapStore.closed.Load() {
		t.Errorf("Expected the injected swap store to be closed with the cache")
	}
}

// --------------------------------------------------------------------------
// Test fakes
// --------------------------------------------------------------------------

type testStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	loads   int
	puts    int
	removes int

	// beforeLoad runs at the start of every Load, outside the store mutex.
	beforeLoad func()
}

func newTestStore() *testStore { return &testStore{data: map[string][]byte{}} }

func (s *testStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	s.loads++
	hook := s.beforeLoad
	s.mu.Unlock()

	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *testStore) Put(_ context.Context, key string, value []byte, _ version.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.data[key] = value
	return nil
}

func (s *testStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes++
	delete(s.data, key)
	return nil
}

func (s *testStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *testStore) set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *testStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

type testSwap struct {
	mu     sync.Mutex
	data   map[string]grid.SwapRecord
	closed atomic.Bool
}

func newTestSwap() *testSwap { return &testSwap{data: map[string]grid.SwapRecord{}} }

func (s *testSwap) Read(key string) (*grid.SwapRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *testSwap) ReadAndRemove(key string) (*grid.SwapRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	delete(s.data, key)
	return &rec, nil
}

func (s *testSwap) Write(key string, rec grid.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = rec
	return nil
}

func (s *testSwap) WriteBatch(recs map[string]grid.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, rec := range recs {
		s.data[k] = rec
	}
	return nil
}

func (s *testSwap) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *testSwap) Close() error {
	s.closed.Store(true)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []grid.Event
}

func (b *recordingBus) Publish(evt grid.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
}

func (b *recordingBus) ofType(t grid.EventType) []grid.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []grid.Event
	for _, evt := range b.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

type countingMetrics struct {
	hits, misses atomic.Int64
	writes       atomic.Int64
	removes      atomic.Int64
	expired      atomic.Int64
	evicted      atomic.Int64
	swapReads    atomic.Int64
	swapWrites   atomic.Int64
}

func (m *countingMetrics) OnRead(hit bool) {
	if hit {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
}

func (m *countingMetrics) OnWrite()     { m.writes.Add(1) }
func (m *countingMetrics) OnRemove()    { m.removes.Add(1) }
func (m *countingMetrics) OnExpired()   { m.expired.Add(1) }
func (m *countingMetrics) OnEvicted()   { m.evicted.Add(1) }
func (m *countingMetrics) OnSwapRead()  { m.swapReads.Add(1) }
func (m *countingMetrics) OnSwapWrite() { m.swapWrites.Add(1) }

type testInterceptor struct {
	beforePut    func(key string, oldVal, newVal []byte) ([]byte, bool)
	beforeRemove func(key string, oldVal []byte) (bool, []byte)
}

func (i *testInterceptor) OnBeforePut(key string, oldVal, newVal []byte) ([]byte, bool) {
	if i.beforePut == nil {
		return newVal, true
	}
	return i.beforePut(key, oldVal, newVal)
}

func (i *testInterceptor) OnAfterPut(string, []byte) {}

func (i *testInterceptor) OnBeforeRemove(key string, oldVal []byte) (bool, []byte) {
	if i.beforeRemove == nil {
		return false, nil
	}
	return i.beforeRemove(key, oldVal)
}

func (i *testInterceptor) OnAfterRemove(string, []byte) {}
