package internal

import (
	"fmt"

	"github.com/ValentinKolb/dGrid/lib/grid/entry"
	"github.com/ValentinKolb/dGrid/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Sweeper Events
// --------------------------------------------------------------------------

// EventType tags a sweeper event. Entries push events whenever their
// deadline tracking changes; the per-shard sweeper goroutine consumes them
// and keeps its heaps in step.
type EventType int

const (
	// EventTExpiry tracks or cancels an entry's expiry deadline.
	EventTExpiry EventType = iota

	// EventTTombstone tracks or cancels a tombstone's purge deadline.
	EventTTombstone
)

func (e EventType) String() string {
	switch e {
	case EventTExpiry:
		return "Expiry"
	case EventTTombstone:
		return "Tombstone"
	default:
		return "Unknown"
	}
}

// Event is one deadline change for the sweeper. When is the absolute
// deadline in unix millis; 0 cancels the tracking for the key.
type Event struct {
	Type EventType
	Key  uint64
	When int64
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Key: %d, When: %d}", e.Type, e.Key, e.When)
}

// --------------------------------------------------------------------------
// Shard Type (partition of the cache)
// --------------------------------------------------------------------------

// Shard is one partition of the grid cache. The entry map is shared with
// all operation goroutines; the heaps belong exclusively to the shard's
// sweeper goroutine, fed through the lock-free event queue.
type Shard struct {
	Data       *xsync.MapOf[util.UintKey, *entry.Entry] // Map of attached entries
	ExpireHeap *util.MapHeap                            // Expiry deadlines (sweeper-owned)
	PurgeHeap  *util.MapHeap                            // Tombstone purge deadlines (sweeper-owned)
	Events     *util.LockFreeMPSC[Event]
}

// NewShard creates a new shard with the provided hash function.
func NewShard(hasher func(util.UintKey, uint64) uint64) *Shard {
	return &Shard{
		Data:       xsync.NewMapOfWithHasher[util.UintKey, *entry.Entry](hasher),
		ExpireHeap: util.NewMapHeap(),
		PurgeHeap:  util.NewMapHeap(),
		Events:     util.NewLockFreeMPSC[Event](), // closing this queue stops the shard's sweeper
	}
}

// GetShard returns the appropriate shard for a given key hash.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
