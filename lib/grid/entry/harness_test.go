package entry

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Test Environment
// --------------------------------------------------------------------------

// testEnv bundles a cache context with recording fakes for all
// collaborators. Tests opt into a collaborator by assigning it to the
// context before creating entries.
type testEnv struct {
	cctx    *CacheContext
	mgr     *version.Manager
	store   *fakeStore
	swap    *fakeSwap
	bus     *recordingBus
	metrics *countingMetrics

	mu        sync.Mutex
	obsoleted []*Entry
	deletions []bool
	expiries  []int64
}

func newTestEnv() *testEnv {
	env := &testEnv{
		mgr:     version.NewManager(1),
		store:   newFakeStore(),
		swap:    newFakeSwap(),
		bus:     &recordingBus{},
		metrics: &countingMetrics{},
	}
	env.cctx = &CacheContext{
		Versions: env.mgr,
		Events:   env.bus,
		Metrics:  env.metrics,
		OnMarkedObsolete: func(e *Entry) {
			env.mu.Lock()
			env.obsoleted = append(env.obsoleted, e)
			env.mu.Unlock()
		},
		OnDeleted: func(_ *Entry, deleted bool) {
			env.mu.Lock()
			env.deletions = append(env.deletions, deleted)
			env.mu.Unlock()
		},
		OnExpiryChanged: func(_ *Entry, expireTime int64) {
			env.mu.Lock()
			env.expiries = append(env.expiries, expireTime)
			env.mu.Unlock()
		},
	}
	return env
}

func (env *testEnv) entry(key string) *Entry {
	h := fnv.New64a()
	h.Write([]byte(key))
	return New(env.cctx, key, h.Sum64())
}

func (env *testEnv) obsoleteCount() int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return len(env.obsoleted)
}

// --------------------------------------------------------------------------
// Backing Store Fake
// --------------------------------------------------------------------------

type fakeStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	loads    int
	puts     int
	removes  int
	failLoad error

	// onLoad runs at the start of every Load. Must not be used on paths
	// that load while holding the entry mutex.
	onLoad func()
}

func newFakeStore() *fakeStore { return &fakeStore{data: map[string][]byte{}} }

func (s *fakeStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	s.loads++
	hook := s.onLoad
	fail := s.failLoad
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail != nil {
		return nil, false, fail
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) Put(_ context.Context, key string, value []byte, _ version.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.data[key] = value
	return nil
}

func (s *fakeStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes++
	delete(s.data, key)
	return nil
}

func (s *fakeStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *fakeStore) set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *fakeStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func (s *fakeStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *fakeStore) removeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removes
}

// --------------------------------------------------------------------------
// Swap Store Fake
// --------------------------------------------------------------------------

type fakeSwap struct {
	mu      sync.Mutex
	data    map[string]grid.SwapRecord
	batches int
}

func newFakeSwap() *fakeSwap { return &fakeSwap{data: map[string]grid.SwapRecord{}} }

func (s *fakeSwap) Read(key string) (*grid.SwapRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeSwap) ReadAndRemove(key string) (*grid.SwapRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	delete(s.data, key)
	return &rec, nil
}

func (s *fakeSwap) Write(key string, rec grid.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = rec
	return nil
}

func (s *fakeSwap) WriteBatch(recs map[string]grid.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	for k, rec := range recs {
		s.data[k] = rec
	}
	return nil
}

func (s *fakeSwap) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *fakeSwap) Close() error { return nil }

func (s *fakeSwap) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *fakeSwap) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

// --------------------------------------------------------------------------
// Event Bus / Metrics Fakes
// --------------------------------------------------------------------------

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
	mu         sync.Mutex
	hits       int
	misses     int
	writes     int
	removes    int
	expired    int
	evicted    int
	swapReads  int
	swapWrites int
}

func (m *countingMetrics) OnRead(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *countingMetrics) OnWrite() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
}

func (m *countingMetrics) OnRemove() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes++
}

func (m *countingMetrics) OnExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired++
}

func (m *countingMetrics) OnEvicted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicted++
}

func (m *countingMetrics) OnSwapRead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swapReads++
}

func (m *countingMetrics) OnSwapWrite() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swapWrites++
}

func (m *countingMetrics) snapshot() countingMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countingMetrics{
		hits: m.hits, misses: m.misses,
		writes: m.writes, removes: m.removes,
		expired: m.expired, evicted: m.evicted,
		swapReads: m.swapReads, swapWrites: m.swapWrites,
	}
}

// --------------------------------------------------------------------------
// Transaction / Interceptor / Resolver Fakes
// --------------------------------------------------------------------------

type fakeTx struct {
	owns     bool
	local    bool
	epoch    uint32
	writeVer version.Version
}

func (tx *fakeTx) OwnsLock(string) bool          { return tx.owns }
func (tx *fakeTx) IsLocal() bool                 { return tx.local }
func (tx *fakeTx) TopologyEpoch() uint32         { return tx.epoch }
func (tx *fakeTx) WriteVersion() version.Version { return tx.writeVer }

// ownedTx returns a lock-owning local transaction on the current epoch.
func (env *testEnv) ownedTx() *fakeTx {
	return &fakeTx{
		owns:     true,
		local:    true,
		epoch:    env.mgr.TopologyEpoch(),
		writeVer: env.mgr.Next(),
	}
}

type hookInterceptor struct {
	beforePut    func(key string, oldVal, newVal []byte) ([]byte, bool)
	afterPut     func(key string, val []byte)
	beforeRemove func(key string, oldVal []byte) (bool, []byte)
	afterRemove  func(key string, oldVal []byte)
}

func (i *hookInterceptor) OnBeforePut(key string, oldVal, newVal []byte) ([]byte, bool) {
	if i.beforePut == nil {
		return newVal, true
	}
	return i.beforePut(key, oldVal, newVal)
}

func (i *hookInterceptor) OnAfterPut(key string, val []byte) {
	if i.afterPut != nil {
		i.afterPut(key, val)
	}
}

func (i *hookInterceptor) OnBeforeRemove(key string, oldVal []byte) (bool, []byte) {
	if i.beforeRemove == nil {
		return false, nil
	}
	return i.beforeRemove(key, oldVal)
}

func (i *hookInterceptor) OnAfterRemove(key string, oldVal []byte) {
	if i.afterRemove != nil {
		i.afterRemove(key, oldVal)
	}
}

type fakeResolver struct {
	res grid.ConflictResolution
	err error

	gotOld      grid.EntrySnapshot
	gotIncoming grid.EntrySnapshot
	gotStrict   bool
}

func (r *fakeResolver) Resolve(old, incoming grid.EntrySnapshot, strict bool) (grid.ConflictResolution, error) {
	r.gotOld = old
	r.gotIncoming = incoming
	r.gotStrict = strict
	return r.res, r.err
}
