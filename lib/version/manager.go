package version

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// Manager issues version stamps for one grid node. It tracks the local
// topology epoch, assigns registration orders to known nodes and maintains
// the monotonic order clock all local stamps are drawn from.
type Manager struct {
	topVer atomic.Uint32
	order  atomic.Uint64

	localID    uuid.UUID
	localOrder uint32
	dataCenter uint8

	mu    sync.Mutex
	nodes map[uuid.UUID]uint32

	startVer Version
}

// NewManager creates a manager for the given data center. A fresh node
// identity is generated and registered with order 1. The order clock starts
// at the current wall clock in milliseconds so that stamps issued after a
// restart sort above anything issued before it.
func NewManager(dataCenter uint8) *Manager {
	return NewManagerWithNode(uuid.New(), dataCenter)
}

// NewManagerWithNode creates a manager with an explicit local node identity.
func NewManagerWithNode(localID uuid.UUID, dataCenter uint8) *Manager {
	m := &Manager{
		localID:    localID,
		localOrder: 1,
		dataCenter: dataCenter,
		nodes:      map[uuid.UUID]uint32{localID: 1},
	}
	m.topVer.Store(1)
	m.order.Store(uint64(time.Now().UnixMilli()))
	m.startVer = Version{NodeOrder: m.localOrder, DataCenter: dataCenter}
	return m
}

// LocalNodeID returns the local node identity.
func (m *Manager) LocalNodeID() uuid.UUID {
	return m.localID
}

// LocalNodeOrder returns the registration order of the local node.
func (m *Manager) LocalNodeOrder() uint32 {
	return m.localOrder
}

// DataCenter returns the data center id stamped on issued versions.
func (m *Manager) DataCenter() uint8 {
	return m.dataCenter
}

// RegisterNode assigns a registration order to the given node, or returns
// the existing one. Orders are consecutive in registration sequence.
//
// Thread-safety: safe for concurrent use.
func (m *Manager) RegisterNode(id uuid.UUID) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ord, ok := m.nodes[id]; ok {
		return ord
	}
	ord := uint32(len(m.nodes) + 1)
	m.nodes[id] = ord
	return ord
}

// TopologyEpoch returns the topology epoch stamped on issued versions.
func (m *Manager) TopologyEpoch() uint32 {
	return m.topVer.Load()
}

// OnTopologyChange raises the local topology epoch. Lower epochs are
// ignored, the epoch never moves backwards.
//
// Thread-safety: safe for concurrent use.
func (m *Manager) OnTopologyChange(epoch uint32) {
	for {
		cur := m.topVer.Load()
		if epoch <= cur {
			return
		}
		if m.topVer.CompareAndSwap(cur, epoch) {
			return
		}
	}
}

// OnReceived absorbs a version observed on another node. The sender is
// registered and the order clock is raised to at least the received order,
// so every stamp issued afterwards sorts above it.
//
// Thread-safety: safe for concurrent use.
func (m *Manager) OnReceived(senderID uuid.UUID, ver Version) {
	m.RegisterNode(senderID)
	m.absorbOrder(ver.Order)
}

// absorbOrder raises the order clock to at least ord (CAS-increase loop).
func (m *Manager) absorbOrder(ord uint64) {
	for {
		cur := m.order.Load()
		if ord <= cur {
			return
		}
		if m.order.CompareAndSwap(cur, ord) {
			return
		}
	}
}

// Next issues a fresh version under the current topology epoch. Every call
// returns a strictly later version than any previous local stamp and any
// absorbed remote stamp.
//
// Thread-safety: safe for concurrent use.
func (m *Manager) Next() Version {
	return m.nextWith(m.topVer.Load())
}

// NextFor issues a fresh version that keeps the topology epoch of cur.
// Used for entry-local successors where the update must not be carried
// into a newer epoch than the value it replaces.
func (m *Manager) NextFor(cur Version) Version {
	top := cur.TopVer
	if top == 0 {
		top = m.topVer.Load()
	}
	return m.nextWith(top)
}

// NextForLoad issues a version for a store-load-induced update. The
// returned version never sorts below prev, even if prev originated on a
// node whose orders this manager has not observed yet.
func (m *Manager) NextForLoad(prev Version) Version {
	m.absorbOrder(prev.Order)
	return m.Next()
}

func (m *Manager) nextWith(top uint32) Version {
	return Version{
		TopVer:     top,
		Time:       uint64(time.Now().UnixMilli()),
		Order:      m.order.Add(1),
		NodeOrder:  m.localOrder,
		DataCenter: m.dataCenter,
	}
}

// StartVersion returns the designated version of entries that have never
// been populated locally. Loads and promotions install over it without
// drawing from the order clock.
func (m *Manager) StartVersion() Version {
	return m.startVer
}

// IsStartVersion reports whether ver is this node's start version.
func (m *Manager) IsStartVersion(ver Version) bool {
	return ver.Equal(m.startVer)
}
