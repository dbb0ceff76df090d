package grid

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/offheap"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Backing Store
// --------------------------------------------------------------------------

// IBackingStore is the persistent system of record behind the cache. It is
// consulted on read-through misses and updated on write-through mutations.
// All methods may block; they are never called while an entry mutex is
// held, except on the atomic update path where write-through happens under
// the mutex (see the concurrency notes in grid/entry).
type IBackingStore interface {
	// Load returns the value for key. The boolean reports whether the
	// store holds the key; absence is not an error.
	Load(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put stores the value with the version it was committed under.
	Put(ctx context.Context, key string, value []byte, ver version.Version) error

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// --------------------------------------------------------------------------
// Index Manager
// --------------------------------------------------------------------------

// IIndexManager maintains secondary indexes over entry values. Both
// methods are called while the entry mutex is held, so the index is never
// observed ahead of or behind the entry. Implementations must not call
// back into the cache.
type IIndexManager interface {
	// Store indexes the new value, replacing whatever was indexed for the
	// previous one.
	Store(key string, value []byte, expireTime int64, ver version.Version, prevValue []byte) error

	// Remove drops all index data for key.
	Remove(key string) error
}

// --------------------------------------------------------------------------
// Swap Store
// --------------------------------------------------------------------------

// ValueKind tags the payload format of a swapped value. Currently all
// values are opaque bytes, the tag is persisted for forward compatibility.
type ValueKind uint8

const (
	ValueKindBytes ValueKind = 0
)

// SwapRecord is the unit persisted to the swap tier when a value is
// demoted out of memory.
type SwapRecord struct {
	Value      []byte
	Ver        version.Version
	TTL        int64
	ExpireTime int64
	Kind       ValueKind
}

// ISwapStore is the disk tier for demoted values. Methods may block and
// are called outside entry mutexes.
type ISwapStore interface {
	// Read returns the record for key, or nil if none is stored.
	Read(key string) (*SwapRecord, error)

	// ReadAndRemove returns the record for key and deletes it atomically.
	ReadAndRemove(key string) (*SwapRecord, error)

	// Write persists the record for key, replacing any previous one.
	Write(key string, rec SwapRecord) error

	// WriteBatch persists several records in one write.
	WriteBatch(recs map[string]SwapRecord) error

	// Remove deletes the record for key. Removing an absent key is not an
	// error.
	Remove(key string) error

	// Close releases the underlying storage.
	Close() error
}

// --------------------------------------------------------------------------
// Off-Heap Arena
// --------------------------------------------------------------------------

// IOffHeapArena stores entry values outside the Go heap. Handle 0 means
// "no allocation". The grid entry owns its handle exclusively and releases
// it whenever the value placement changes.
type IOffHeapArena interface {
	Put(b []byte) (offheap.Handle, error)
	Get(h offheap.Handle) []byte
	Release(h offheap.Handle)
	Close() error
}

// --------------------------------------------------------------------------
// Interceptor
// --------------------------------------------------------------------------

// IInterceptor observes and optionally vetoes entry mutations. Before
// hooks run inside the operation (put: under the entry mutex), after hooks
// run once the mutation is committed.
type IInterceptor interface {
	// OnBeforePut may replace the new value or cancel the update. A false
	// return cancels, the update reports applied=false.
	OnBeforePut(key string, oldVal, newVal []byte) (val []byte, proceed bool)

	// OnAfterPut is called after a committed update.
	OnAfterPut(key string, val []byte)

	// OnBeforeRemove may cancel a removal. When cancelled, the operation
	// reports applied=false and returns the substitute value.
	OnBeforeRemove(key string, oldVal []byte) (cancel bool, substitute []byte)

	// OnAfterRemove is called after a committed removal.
	OnAfterRemove(key string, oldVal []byte)
}

// NopInterceptor passes every mutation through unchanged.
type NopInterceptor struct{}

func (NopInterceptor) OnBeforePut(_ string, _, newVal []byte) ([]byte, bool) { return newVal, true }
func (NopInterceptor) OnAfterPut(string, []byte)                             {}
func (NopInterceptor) OnBeforeRemove(string, []byte) (bool, []byte)          { return false, nil }
func (NopInterceptor) OnAfterRemove(string, []byte)                          {}

// --------------------------------------------------------------------------
// Conflict Resolution
// --------------------------------------------------------------------------

// ConflictDecision is the outcome of arbitrating a replicated update
// against the entry's current value.
type ConflictDecision uint8

const (
	// ConflictUseOld keeps the current value, the incoming update is
	// dropped.
	ConflictUseOld ConflictDecision = iota

	// ConflictUseNew applies the incoming update as-is.
	ConflictUseNew

	// ConflictMerge applies a merged value produced by the resolver.
	ConflictMerge
)

func (d ConflictDecision) String() string {
	switch d {
	case ConflictUseOld:
		return "UseOld"
	case ConflictUseNew:
		return "UseNew"
	case ConflictMerge:
		return "Merge"
	default:
		return "Unknown"
	}
}

// ConflictResolution carries the resolver's decision. Merge decisions
// supply the merged value and its ttl/expire pair.
type ConflictResolution struct {
	Decision        ConflictDecision
	MergeValue      []byte
	MergeTTL        int64
	MergeExpireTime int64
}

// EntrySnapshot is the read-only view handed to the conflict resolver:
// the entry (old) side and the incoming update (new) side.
type EntrySnapshot struct {
	Key        string
	Value      []byte
	TTL        int64
	ExpireTime int64

	// Ver is the conflict version of the value: the stamp it was born
	// with in its origin data center.
	Ver version.Version

	// IsNew marks entries that have never held a value locally.
	IsNew bool
}

// IConflictResolver arbitrates replicated updates. With strictVerCheck the
// resolver must reject incoming versions that do not strictly advance the
// current one.
type IConflictResolver interface {
	Resolve(old, new EntrySnapshot, strictVerCheck bool) (ConflictResolution, error)
}

// --------------------------------------------------------------------------
// Transaction Context
// --------------------------------------------------------------------------

// ITxContext is the narrow view of an owning transaction the entry needs
// for its transactional write paths.
type ITxContext interface {
	// OwnsLock reports whether the transaction holds the lock for key.
	// Transactional writes on unlocked keys are protocol violations.
	OwnsLock(key string) bool

	// IsLocal reports whether the transaction originates on this node.
	IsLocal() bool

	// TopologyEpoch is the epoch the transaction was mapped on.
	TopologyEpoch() uint32

	// WriteVersion is the version all writes of the transaction commit
	// under. A zero version lets the entry generate one.
	WriteVersion() version.Version
}

// --------------------------------------------------------------------------
// Entry Processor
// --------------------------------------------------------------------------

// MutableEntryView is the window an entry processor operates on. The
// processor reads the current value and may set or remove it; the entry
// applies the outcome atomically.
type MutableEntryView struct {
	key      string
	value    []byte
	exists   bool
	modified bool
	removed  bool
}

// NewMutableEntryView creates a view over the current state of an entry.
func NewMutableEntryView(key string, value []byte, exists bool) *MutableEntryView {
	return &MutableEntryView{key: key, value: value, exists: exists}
}

// Key returns the entry key.
func (v *MutableEntryView) Key() string { return v.key }

// Value returns the current value, nil when the entry holds none.
func (v *MutableEntryView) Value() []byte { return v.value }

// Exists reports whether the entry currently holds a value.
func (v *MutableEntryView) Exists() bool { return v.exists }

// SetValue replaces the value. The change is applied when the processor
// returns without error.
func (v *MutableEntryView) SetValue(b []byte) {
	v.value = b
	v.exists = true
	v.modified = true
	v.removed = false
}

// Remove deletes the value. The change is applied when the processor
// returns without error.
func (v *MutableEntryView) Remove() {
	v.value = nil
	v.exists = false
	v.modified = true
	v.removed = true
}

// Modified reports whether the processor called SetValue or Remove.
func (v *MutableEntryView) Modified() bool { return v.modified }

// Removed reports whether the last modification was a removal.
func (v *MutableEntryView) Removed() bool { return v.removed }

// EntryProcessor is a caller-supplied transform applied atomically to one
// entry. The returned bytes become the per-key invoke result. A processor
// that neither sets nor removes the value leaves the entry untouched.
type EntryProcessor func(view *MutableEntryView) ([]byte, error)

// InvokeResult is the per-key outcome of an entry processor invocation.
// Processor failures are captured here instead of failing the operation.
type InvokeResult struct {
	Result []byte
	Err    error
}

// --------------------------------------------------------------------------
// Filters
// --------------------------------------------------------------------------

// Filter guards conditional operations. It receives the entry's current
// value (nil when the entry holds none) and returns whether the operation
// may proceed. A nil Filter always passes.
type Filter func(value []byte) bool

// FilterHasValue passes only entries currently holding a value.
func FilterHasValue(value []byte) bool { return value != nil }

// FilterNoValue passes only entries currently holding no value.
func FilterNoValue(value []byte) bool { return value == nil }
