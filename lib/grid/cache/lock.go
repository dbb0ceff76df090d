package cache

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/entry"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Locking Operations
// --------------------------------------------------------------------------

// Lock acquires the key lock for an owner token. Returns false without
// blocking when another owner holds the lock; the candidate enqueued by the
// attempt is withdrawn. Re-acquiring an owned lock succeeds.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Lock(ctx context.Context, key string, owner []byte) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if err := checkKey(key); err != nil {
		return false, err
	}

	for {
		ent := c.entryFor(key)

		acquired, err := ent.TryLock(owner, c.cctx.Versions.Next())
		if err != nil {
			if grid.IsRemoved(err) {
				continue
			}
			c.touch(ent)
			return false, err
		}

		if !acquired {
			// non-blocking: withdraw the candidate the attempt enqueued,
			// otherwise it would own the lock once the holder releases
			ent.Unlock(owner)
			c.touch(ent)
		}
		return acquired, nil
	}
}

// Unlock releases the key lock held by the owner token. Releasing a lock
// the owner does not hold is a no-op.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Unlock(ctx context.Context, key string, owner []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}

	ent, ok := c.peekEntry(key)
	if !ok {
		return nil
	}

	ent.Unlock(owner)

	// a remove under the lock leaves the entry empty until the lock
	// candidate is gone, retire it now
	c.touch(ent)
	return nil
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// cacheTx binds an owner token to the cache's lock table. All writes of the
// transaction commit under one write version assigned at creation.
type cacheTx struct {
	cache *gridCache
	owner []byte
	ver   version.Version
	epoch uint32
}

// NewTx returns a transaction context for the given owner token. The caller
// locks keys with Lock before writing them through TxPut/TxRemove.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) NewTx(owner []byte) grid.ITxContext {
	return &cacheTx{
		cache: c,
		owner: owner,
		ver:   c.cctx.Versions.Next(),
		epoch: c.cctx.Versions.TopologyEpoch(),
	}
}

func (tx *cacheTx) OwnsLock(key string) bool {
	ent, ok := tx.cache.peekEntry(key)
	return ok && ent.IsLockedBy(tx.owner)
}

func (tx *cacheTx) IsLocal() bool { return true }

func (tx *cacheTx) TopologyEpoch() uint32 { return tx.epoch }

func (tx *cacheTx) WriteVersion() version.Version { return tx.ver }

// --------------------------------------------------------------------------
// Transactional Writes
// --------------------------------------------------------------------------

// TxPut transactionally replaces the value for a locked key. The transaction
// must own the key lock, writing an unlocked key is a protocol violation.
// Returns the previous value when the write applied.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) TxPut(ctx context.Context, tx grid.ITxContext, key string, value []byte, ttl int64, filter grid.Filter) (bool, []byte, error) {
	if err := c.checkOpen(); err != nil {
		return false, nil, err
	}
	if err := checkKey(key); err != nil {
		return false, nil, err
	}
	if err := checkTTL(ttl); err != nil {
		return false, nil, err
	}
	if tx == nil {
		return false, nil, grid.NewError(grid.RetCInvalidOperation, "nil transaction")
	}

	valueCopy := copyValue(value)

	for {
		ent := c.entryFor(key)

		res, err := ent.InnerSet(ctx, entry.SetRequest{
			Tx:                 tx,
			Value:              valueCopy,
			TTL:                ttl,
			ConflictExpireTime: grid.ExpireCalculate,
			Filter:             filter,
			Event:              true,
			Metrics:            true,
			WriteThrough:       true,
			ReturnOld:          true,
		})
		if err != nil {
			if grid.IsRemoved(err) {
				continue
			}
			c.touch(ent)
			return false, nil, err
		}

		if !res.Applied {
			c.touch(ent)
		}
		return res.Applied, copyBytes(res.Value), nil
	}
}

// TxRemove transactionally deletes the value for a locked key. The
// transaction must own the key lock. Returns the previous value when the
// remove applied.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) TxRemove(ctx context.Context, tx grid.ITxContext, key string, filter grid.Filter) (bool, []byte, error) {
	if err := c.checkOpen(); err != nil {
		return false, nil, err
	}
	if err := checkKey(key); err != nil {
		return false, nil, err
	}
	if tx == nil {
		return false, nil, grid.NewError(grid.RetCInvalidOperation, "nil transaction")
	}

	for {
		ent := c.entryFor(key)

		res, err := ent.InnerRemove(ctx, entry.RemoveRequest{
			Tx:           tx,
			Filter:       filter,
			Event:        true,
			Metrics:      true,
			WriteThrough: true,
			ReturnOld:    true,
		})
		if err != nil {
			if grid.IsRemoved(err) {
				continue
			}
			c.touch(ent)
			return false, nil, err
		}

		// the owner's lock candidate keeps the emptied entry alive, the
		// touch is picked up again on unlock
		c.touch(ent)
		return res.Applied, copyBytes(res.Value), nil
	}
}
