package version

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TestNextMonotonic verifies that sequential stamps are strictly increasing
func TestNextMonotonic(t *testing.T) {
	m := NewManager(0)

	prev := m.Next()
	for i := 0; i < 1000; i++ {
		cur := m.Next()
		if cur.Compare(prev) <= 0 {
			t.Fatalf("Next() returned %v after %v, want strictly greater", cur, prev)
		}
		prev = cur
	}
}

// TestNextConcurrent verifies uniqueness and monotonicity under contention
func TestNextConcurrent(t *testing.T) {
	m := NewManager(0)

	const workers = 8
	const perWorker = 2000

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*perWorker)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			local := make([]uint64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, m.Next().Order)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ord := range local {
				if seen[ord] {
					t.Errorf("duplicate order %d issued", ord)
				}
				seen[ord] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d unique orders, got %d", workers*perWorker, len(seen))
	}
}

// TestOnReceivedAbsorbsOrder verifies remote orders raise the local clock
func TestOnReceivedAbsorbsOrder(t *testing.T) {
	m := NewManager(0)

	remote := Version{TopVer: 1, Order: m.Next().Order + 1_000_000, NodeOrder: 2}
	m.OnReceived(uuid.New(), remote)

	next := m.Next()
	if next.Order <= remote.Order {
		t.Errorf("Next() order %d does not sort above absorbed remote order %d",
			next.Order, remote.Order)
	}
}

// TestNextForLoadNeverRegresses verifies the load path ordering guarantee
func TestNextForLoadNeverRegresses(t *testing.T) {
	m := NewManager(0)

	// a previous version far ahead of the local clock, e.g. persisted by a
	// node with a faster wall clock
	prev := Version{TopVer: 1, Order: m.Next().Order + 500_000, NodeOrder: 9}

	got := m.NextForLoad(prev)
	if got.Compare(prev) <= 0 {
		t.Errorf("NextForLoad(%v) returned %v, want strictly greater", prev, got)
	}
}

// TestStartVersion verifies start-version identity
func TestStartVersion(t *testing.T) {
	m := NewManager(3)

	start := m.StartVersion()
	if !m.IsStartVersion(start) {
		t.Error("StartVersion() should be recognized by IsStartVersion")
	}
	if start.DataCenter != 3 {
		t.Errorf("start version data center = %d, want 3", start.DataCenter)
	}

	if m.IsStartVersion(m.Next()) {
		t.Error("issued versions must never be mistaken for the start version")
	}
}

// TestNextForKeepsTopology verifies entry-local successors stay in epoch
func TestNextForKeepsTopology(t *testing.T) {
	m := NewManager(0)
	m.OnTopologyChange(5)

	cur := Version{TopVer: 2, Order: 10, NodeOrder: 1}
	next := m.NextFor(cur)

	if next.TopVer != 2 {
		t.Errorf("NextFor kept topology %d, want 2", next.TopVer)
	}
	if next.Compare(cur) <= 0 {
		t.Errorf("NextFor returned %v, want strictly greater than %v", next, cur)
	}

	// a start-version predecessor takes the current epoch instead
	fresh := m.NextFor(Version{})
	if fresh.TopVer != 5 {
		t.Errorf("NextFor over zero version used topology %d, want 5", fresh.TopVer)
	}
}

// TestRegisterNode verifies registration orders are stable and consecutive
func TestRegisterNode(t *testing.T) {
	m := NewManager(0)

	a := uuid.New()
	b := uuid.New()

	ordA := m.RegisterNode(a)
	ordB := m.RegisterNode(b)

	if ordA != 2 || ordB != 3 {
		t.Errorf("expected orders 2 and 3 after the local node, got %d and %d", ordA, ordB)
	}

	if again := m.RegisterNode(a); again != ordA {
		t.Errorf("re-registration changed order from %d to %d", ordA, again)
	}

	if local := m.RegisterNode(m.LocalNodeID()); local != m.LocalNodeOrder() {
		t.Errorf("local node registration returned %d, want %d", local, m.LocalNodeOrder())
	}
}

// TestOnTopologyChange verifies the epoch never moves backwards
func TestOnTopologyChange(t *testing.T) {
	m := NewManager(0)

	m.OnTopologyChange(4)
	if got := m.TopologyEpoch(); got != 4 {
		t.Errorf("TopologyEpoch = %d, want 4", got)
	}

	m.OnTopologyChange(2)
	if got := m.TopologyEpoch(); got != 4 {
		t.Errorf("TopologyEpoch moved backwards to %d", got)
	}

	if got := m.Next().TopVer; got != 4 {
		t.Errorf("Next() stamped epoch %d, want 4", got)
	}
}
