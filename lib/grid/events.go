package grid

import "github.com/ValentinKolb/dGrid/lib/version"

// --------------------------------------------------------------------------
// Event Types
// --------------------------------------------------------------------------

// EventType enumerates the entry lifecycle events published to the bus.
type EventType uint8

const (
	EventRead EventType = iota
	EventPut
	EventRemoved
	EventExpired
	EventEvicted
	EventSwapped
	EventUnswapped
	EventLocked
	EventUnlocked
)

func (t EventType) String() string {
	switch t {
	case EventRead:
		return "Read"
	case EventPut:
		return "Put"
	case EventRemoved:
		return "Removed"
	case EventExpired:
		return "Expired"
	case EventEvicted:
		return "Evicted"
	case EventSwapped:
		return "Swapped"
	case EventUnswapped:
		return "Unswapped"
	case EventLocked:
		return "Locked"
	case EventUnlocked:
		return "Unlocked"
	default:
		return "Unknown"
	}
}

// Event describes one entry lifecycle transition.
type Event struct {
	Type     EventType
	Key      string
	OldValue []byte
	NewValue []byte
	Ver      version.Version
}

// --------------------------------------------------------------------------
// Event Bus
// --------------------------------------------------------------------------

// IEventBus receives entry lifecycle events. Publish is called while entry
// mutexes are held and therefore MUST NOT block; implementations hand
// events off to their own queues.
type IEventBus interface {
	Publish(evt Event)
}

// NopEventBus discards all events.
type NopEventBus struct{}

func (NopEventBus) Publish(Event) {}
