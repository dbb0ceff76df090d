package cache

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dGrid/lib/grid/cache/internal"
	"github.com/ValentinKolb/dGrid/lib/util"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Shard Sweeper
// --------------------------------------------------------------------------

// sweeper is the maintenance goroutine of one shard. It consumes the shard's
// event queue to keep the deadline heaps current and periodically retires
// entries whose ttl elapsed and tombstones whose purge time arrived. It exits
// when the shard's event queue is closed.
//
// The heaps and the purge version map are owned by this goroutine, no other
// code touches them.
func (c *gridCache) sweeper(s *internal.Shard) {
	defer c.wg.Done()

	interval := time.Duration(c.sweepEvery) * time.Millisecond
	timer := time.NewTimer(interval)
	defer timer.Stop()

	// tombstone versions recorded when the purge was scheduled, keyed like
	// the purge heap
	purgeVers := make(map[uint64]version.Version)

	for {
		// reset timeout
		timer.Reset(interval)

		endLoop := false
		for !endLoop {
			select {
			case event, ok := <-s.Events.Recv():
				if !ok {
					return
				}
				c.consumeEvent(s, purgeVers, event)

			case <-timer.C:
				endLoop = true
			}
		}

		/*
			Note: the deadlines are compared against one timestamp taken at
			the beginning of the cycle so a steady stream of short ttls
			cannot keep a single sweep running forever.
		*/
		now := uint64(time.Now().UnixMilli())

		c.sweepExpired(s, now)
		c.sweepTombstones(s, purgeVers, now)
	}
}

// consumeEvent applies one tracking event to the shard's heaps. A When of 0
// cancels the tracking for the key.
func (c *gridCache) consumeEvent(s *internal.Shard, purgeVers map[uint64]version.Version, event *internal.Event) {
	switch event.Type {
	case internal.EventTExpiry:
		if event.When == 0 {
			s.ExpireHeap.RemoveByKey(event.Key)
			return
		}
		s.ExpireHeap.AddItem(event.Key, uint64(event.When))

	case internal.EventTTombstone:
		if event.When == 0 {
			s.PurgeHeap.RemoveByKey(event.Key)
			delete(purgeVers, event.Key)
			return
		}

		// record the version the purge applies to: the entry refuses the
		// purge when it was written to after the tombstone was queued
		if ent, ok := s.Data.Load(util.UintKey(event.Key)); ok && ent.Deleted() {
			s.PurgeHeap.AddItem(event.Key, uint64(event.When))
			purgeVers[event.Key] = ent.Version()
		}

	default:
		panic(fmt.Sprintf("unknown event %s", event))
	}
}

// sweepExpired retires every entry whose tracked deadline lies at or before
// now. The entry double-checks the deadline under its mutex, a value that was
// refreshed in the meantime stays put.
func (c *gridCache) sweepExpired(s *internal.Shard, now uint64) {
	for {
		item, ok := s.ExpireHeap.PopBelow(now)
		if !ok {
			return
		}

		ent, ok := s.Data.Load(util.UintKey(item.Key))
		if !ok {
			continue
		}

		/*
			Note: the popped item is gone even when the entry survives the
			double-check. That is fine: whichever update moved the deadline
			also queued a tracking event, so the next cycle re-adds the key
			with the fresh deadline.
		*/
		ent.OnTTLExpired(c.cctx.Versions.Next())
	}
}

// sweepTombstones retires every tombstone whose purge deadline lies at or
// before now, using the version recorded when the purge was scheduled. An
// entry that was resurrected in the meantime carries a newer version and is
// left alone.
func (c *gridCache) sweepTombstones(s *internal.Shard, purgeVers map[uint64]version.Version, now uint64) {
	for {
		item, ok := s.PurgeHeap.PopBelow(now)
		if !ok {
			return
		}

		ver, recorded := purgeVers[item.Key]
		delete(purgeVers, item.Key)
		if !recorded {
			continue
		}

		if ent, ok := s.Data.Load(util.UintKey(item.Key)); ok {
			ent.MarkObsoleteVersion(ver)
		}
	}
}
