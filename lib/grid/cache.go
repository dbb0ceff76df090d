package grid

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/util"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Feature represents cache capabilities as bit flags
type Feature uint64

const (
	FeatureDeferredDelete Feature = 1 << iota // Removals leave tombstones until purged
	FeatureSwap                               // Disk tier for demoted values
	FeatureOffHeap                            // Off-heap value placement
	FeatureReadThrough                        // Misses load from the backing store
	FeatureWriteThrough                       // Mutations propagate to the backing store
	FeatureEagerTTL                           // Background sweeper retires expired entries
	FeatureLocks                              // Key locking API
	FeatureEvents                             // Lifecycle event publication
)

func (f Feature) String() string {
	switch f {
	case FeatureDeferredDelete:
		return "DeferredDelete"
	case FeatureSwap:
		return "Swap"
	case FeatureOffHeap:
		return "OffHeap"
	case FeatureReadThrough:
		return "ReadThrough"
	case FeatureWriteThrough:
		return "WriteThrough"
	case FeatureEagerTTL:
		return "EagerTTL"
	case FeatureLocks:
		return "Locks"
	case FeatureEvents:
		return "Events"
	default:
		return "Unknown"
	}
}

// PeekMode selects which value tiers Peek inspects.
type PeekMode uint8

const (
	PeekHeap PeekMode = 1 << iota // In-memory and off-heap placements
	PeekSwap                      // The swap tier, without promoting
)

// Info carries metadata about a cache instance. Size figures are sampled,
// not exact.
type Info struct {
	Size              int                    `json:"size"`
	Tombstones        int                    `json:"tombstones"`
	Shards            int                    `json:"shards"`
	ShardDistribution util.DistributionStats `json:"shard_distribution"`
	AvgValueSize      int                    `json:"avg_value_size"`
	MedianValueSize   int                    `json:"median_value_size"`
	P90ValueSize      int                    `json:"p90_value_size"`
	OffHeapUsed       int64                  `json:"offheap_used"`
	OffHeapCount      int64                  `json:"offheap_count"`
	SupportedFeatures []Feature              `json:"supported_features"`
}

// CacheFactory creates a cache instance. Used by the reusable test and
// benchmark suites to run against any implementation.
type CacheFactory func() (ICache, error)

// --------------------------------------------------------------------------
// Cache Interface
// --------------------------------------------------------------------------

// ICache is the public surface of the grid cache engine. Implementations
// vary in their feature support, which can be queried with SupportsFeature.
//
// Keys are non-empty strings, values opaque byte slices. TTLs follow the
// semantics documented in this package: TTLEternal keeps the value until
// removed, positive ttls expire it after that many milliseconds.
type ICache interface {

	// --------------------------------------------------------------------------
	// Read Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for a key. The boolean return value reports
	// whether a value was found. With read-through enabled, a miss
	// consults the backing store and installs the loaded value.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Peek inspects the selected tiers without loading from the backing
	// store and without touching access ttls. No modes means PeekHeap.
	Peek(key string, modes ...PeekMode) (value []byte, found bool, err error)

	// HasKey reports whether the cache holds a usable value for key
	// without reading it.
	HasKey(key string) bool

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts or replaces the value for a key.
	Put(ctx context.Context, key string, value []byte, ttl int64) error

	// GetAndPut inserts or replaces the value and returns the previous
	// one.
	GetAndPut(ctx context.Context, key string, value []byte, ttl int64) (old []byte, hadOld bool, err error)

	// PutIfAbsent inserts the value only if the key holds none. Returns
	// whether the value was installed.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl int64) (applied bool, err error)

	// Remove deletes the value for a key. Returns whether a value was
	// removed.
	Remove(ctx context.Context, key string) (removed bool, err error)

	// GetAndRemove deletes the value and returns it.
	GetAndRemove(ctx context.Context, key string) (old []byte, hadOld bool, err error)

	// Invoke applies an entry processor atomically to the entry. Processor
	// failures are captured in the result, not returned as the error.
	Invoke(ctx context.Context, key string, proc EntryProcessor) (InvokeResult, error)

	// UpdateTTL rebases the entry's ttl and expire time. Returns whether
	// the entry existed.
	UpdateTTL(ctx context.Context, key string, ttl int64) (ok bool, err error)

	// --------------------------------------------------------------------------
	// Loading Operations
	// --------------------------------------------------------------------------

	// Reload forces a fresh read-through load for key, replacing the
	// cached value.
	Reload(ctx context.Context, key string) (value []byte, err error)

	// LoadInitial installs a preloaded value without generating a new
	// version. Only entries that never held a value accept it.
	LoadInitial(ctx context.Context, key string, value []byte, ver version.Version, ttl int64) (applied bool, err error)

	// --------------------------------------------------------------------------
	// Eviction Operations
	// --------------------------------------------------------------------------

	// Evict pushes the entry out of memory. With swap enabled the value is
	// demoted to the swap tier, otherwise it is dropped. Locked entries
	// refuse eviction.
	Evict(ctx context.Context, key string) (evicted bool, err error)

	// EvictAll evicts the given keys, demoting values in one batch write
	// where the swap tier allows it.
	EvictAll(ctx context.Context, keys []string) error

	// Clear discards the entry without touching the backing store. Returns
	// whether an entry was cleared.
	Clear(ctx context.Context, key string) (cleared bool, err error)

	// ClearAll discards all entries without touching the backing store.
	ClearAll(ctx context.Context) error

	// --------------------------------------------------------------------------
	// Locking Operations
	// --------------------------------------------------------------------------

	// Lock acquires the key lock for an owner token. Returns false without
	// blocking when another owner holds the lock. Re-acquiring an owned
	// lock succeeds.
	Lock(ctx context.Context, key string, owner []byte) (acquired bool, err error)

	// Unlock releases the key lock held by the owner token.
	Unlock(ctx context.Context, key string, owner []byte) error

	// NewTx returns a transaction context bound to this cache's lock
	// table for the given owner token, for use with transactional writes.
	NewTx(owner []byte) ITxContext

	// TxPut transactionally replaces the value for a locked key. The
	// transaction must own the key lock.
	TxPut(ctx context.Context, tx ITxContext, key string, value []byte, ttl int64, filter Filter) (applied bool, old []byte, err error)

	// TxRemove transactionally deletes the value for a locked key. The
	// transaction must own the key lock.
	TxRemove(ctx context.Context, tx ITxContext, key string, filter Filter) (applied bool, old []byte, err error)

	// --------------------------------------------------------------------------
	// Introspection
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the cache supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|).
	SupportsFeature(feature Feature) (ok bool)

	// Size returns the number of live entries (tombstones excluded).
	Size() int

	// GetInfo returns information about the cache.
	GetInfo() (info Info)

	// Close stops the sweepers and releases the off-heap arena and swap
	// store.
	Close() (err error)
}
