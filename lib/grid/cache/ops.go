package cache

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/entry"
	"github.com/ValentinKolb/dGrid/lib/util"
	"github.com/ValentinKolb/dGrid/lib/version"
)

// --------------------------------------------------------------------------
// Argument Checks
// --------------------------------------------------------------------------

// checkKey rejects the empty key.
func checkKey(key string) error {
	if key == "" {
		return grid.NewError(grid.RetCInvalidOperation, "empty key")
	}
	return nil
}

// checkTTL rejects ttls outside the public contract: TTLEternal, a positive
// duration in milliseconds, or TTLNotChanged.
func checkTTL(ttl int64) error {
	if ttl < grid.TTLNotChanged {
		return grid.NewErrorf(grid.RetCInvalidOperation, "invalid ttl %d", ttl)
	}
	return nil
}

// --------------------------------------------------------------------------
// Update Helper
// --------------------------------------------------------------------------

// update is the shared implementation of the atomic write operations. It
// runs the request against the key's entry, retrying when a concurrent
// sweep retired the entry between lookup and operation. The request is
// rebuilt per attempt so every attempt commits under a fresh version.
//
// Entries left without a live value are retired so the map does not
// accumulate empty slots.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) update(ctx context.Context, key string, build func(ver version.Version) entry.UpdateRequest) (entry.UpdateResult, error) {
	for {
		ent := c.entryFor(key)

		res, err := ent.InnerUpdate(ctx, build(c.cctx.Versions.Next()))
		if err != nil {
			if grid.IsRemoved(err) {
				continue
			}
			c.touch(ent)
			return entry.UpdateResult{}, err
		}

		if res.New == nil {
			c.touch(ent)
		}
		return res, nil
	}
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get retrieves the value for a key, consulting the swap tier and, with
// read-through enabled, the backing store on a miss. The returned slice is a
// copy, the caller may modify it freely.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := c.checkOpen(); err != nil {
		return nil, false, err
	}
	if err := checkKey(key); err != nil {
		return nil, false, err
	}

	for {
		ent := c.entryFor(key)

		val, err := ent.InnerGet(ctx, entry.GetOptions{
			ReadSwap:    true,
			ReadThrough: true,
			Metrics:     true,
			Event:       true,
		})
		if err != nil {
			if grid.IsRemoved(err) {
				continue
			}
			c.touch(ent)
			return nil, false, err
		}

		if val == nil {
			c.touch(ent)
			return nil, false, nil
		}
		return copyBytes(val), true, nil
	}
}

// Peek inspects the selected tiers without loading from the backing store
// and without touching access ttls. No modes means PeekHeap. PeekSwap reads
// the swap record in place, the value is not promoted back into memory.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Peek(key string, modes ...grid.PeekMode) ([]byte, bool, error) {
	if err := c.checkOpen(); err != nil {
		return nil, false, err
	}
	if err := checkKey(key); err != nil {
		return nil, false, err
	}

	var mode grid.PeekMode
	for _, m := range modes {
		mode |= m
	}
	if mode == 0 {
		mode = grid.PeekHeap
	}

	if mode&grid.PeekHeap != 0 {
		if ent, ok := c.peekEntry(key); ok {
			val, err := ent.Peek()
			if err != nil && !grid.IsRemoved(err) {
				return nil, false, err
			}
			if val != nil {
				return copyBytes(val), true, nil
			}
		}
	}

	if mode&grid.PeekSwap != 0 && c.cctx.Swap != nil {
		rec, err := c.cctx.Swap.Read(key)
		if err != nil {
			return nil, false, grid.WrapError(grid.RetCStoreFailure, "swap peek failed", err)
		}
		if rec != nil && !grid.IsExpired(rec.ExpireTime) {
			return copyBytes(rec.Value), true, nil
		}
	}

	return nil, false, nil
}

// HasKey reports whether the cache holds a usable value for key in memory
// or in the swap tier, without reading it through the backing store.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) HasKey(key string) bool {
	_, found, err := c.Peek(key, grid.PeekHeap, grid.PeekSwap)
	return err == nil && found
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put inserts or replaces the value for a key. A nil value is stored as an
// empty one.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Put(ctx context.Context, key string, value []byte, ttl int64) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	if err := checkTTL(ttl); err != nil {
		return err
	}

	// Copy value to prevent memory corruption
	valueCopy := copyValue(value)

	_, err := c.update(ctx, key, func(ver version.Version) entry.UpdateRequest {
		req := entry.NewUpdateRequest(ver, entry.OpUpdate)
		req.Value = valueCopy
		req.ExplicitTTL = ttl
		req.Primary = true
		req.Event = true
		req.Metrics = true
		req.WriteThrough = true
		return req
	})
	return err
}

// GetAndPut inserts or replaces the value and returns the previous one. With
// read-through enabled the previous value is loaded from the backing store
// when the cache holds none.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) GetAndPut(ctx context.Context, key string, value []byte, ttl int64) ([]byte, bool, error) {
	if err := c.checkOpen(); err != nil {
		return nil, false, err
	}
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	if err := checkTTL(ttl); err != nil {
		return nil, false, err
	}

	valueCopy := copyValue(value)

	res, err := c.update(ctx, key, func(ver version.Version) entry.UpdateRequest {
		req := entry.NewUpdateRequest(ver, entry.OpUpdate)
		req.Value = valueCopy
		req.ExplicitTTL = ttl
		req.Primary = true
		req.Event = true
		req.Metrics = true
		req.WriteThrough = true
		req.ReadThrough = true
		req.ReturnOld = true
		return req
	})
	if err != nil {
		return nil, false, err
	}
	return copyBytes(res.Old), res.Old != nil, nil
}

// PutIfAbsent inserts the value only if the key holds none. With
// read-through enabled a value present in the backing store counts as
// present.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) PutIfAbsent(ctx context.Context, key string, value []byte, ttl int64) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if err := checkKey(key); err != nil {
		return false, err
	}
	if err := checkTTL(ttl); err != nil {
		return false, err
	}

	valueCopy := copyValue(value)

	res, err := c.update(ctx, key, func(ver version.Version) entry.UpdateRequest {
		req := entry.NewUpdateRequest(ver, entry.OpUpdate)
		req.Value = valueCopy
		req.ExplicitTTL = ttl
		req.Primary = true
		req.Event = true
		req.Metrics = true
		req.WriteThrough = true
		req.ReadThrough = true
		req.Filter = grid.FilterNoValue
		return req
	})
	if err != nil {
		return false, err
	}
	return res.Applied, nil
}

// Remove deletes the value for a key. Returns whether a value was removed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Remove(ctx context.Context, key string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if err := checkKey(key); err != nil {
		return false, err
	}

	res, err := c.update(ctx, key, func(ver version.Version) entry.UpdateRequest {
		req := entry.NewUpdateRequest(ver, entry.OpDelete)
		req.Primary = true
		req.Event = true
		req.Metrics = true
		req.WriteThrough = true
		return req
	})
	if err != nil {
		return false, err
	}
	return res.Applied, nil
}

// GetAndRemove deletes the value for a key and returns it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) GetAndRemove(ctx context.Context, key string) ([]byte, bool, error) {
	if err := c.checkOpen(); err != nil {
		return nil, false, err
	}
	if err := checkKey(key); err != nil {
		return nil, false, err
	}

	res, err := c.update(ctx, key, func(ver version.Version) entry.UpdateRequest {
		req := entry.NewUpdateRequest(ver, entry.OpDelete)
		req.Primary = true
		req.Event = true
		req.Metrics = true
		req.WriteThrough = true
		req.ReadThrough = true
		req.ReturnOld = true
		return req
	})
	if err != nil {
		return nil, false, err
	}
	return copyBytes(res.Old), res.Old != nil, nil
}

// Invoke applies an entry processor atomically to the entry. The processor
// sees the current value (loaded through the backing store when read-through
// is enabled) and may replace or remove it. Processor failures are captured
// in the result, not returned as the error.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Invoke(ctx context.Context, key string, proc grid.EntryProcessor) (grid.InvokeResult, error) {
	if err := c.checkOpen(); err != nil {
		return grid.InvokeResult{}, err
	}
	if err := checkKey(key); err != nil {
		return grid.InvokeResult{}, err
	}
	if proc == nil {
		return grid.InvokeResult{}, grid.NewError(grid.RetCInvalidOperation, "nil entry processor")
	}

	res, err := c.update(ctx, key, func(ver version.Version) entry.UpdateRequest {
		req := entry.NewUpdateRequest(ver, entry.OpTransform)
		req.Processor = proc
		req.Primary = true
		req.Event = true
		req.Metrics = true
		req.WriteThrough = true
		req.ReadThrough = true
		return req
	})
	if err != nil {
		return grid.InvokeResult{}, err
	}
	if res.Invoke == nil {
		return grid.InvokeResult{}, nil
	}
	return grid.InvokeResult{Result: copyBytes(res.Invoke.Result), Err: res.Invoke.Err}, nil
}

// UpdateTTL rebases the entry's ttl and expire time without touching the
// value or its version. Returns whether the cache held a live value for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) UpdateTTL(ctx context.Context, key string, ttl int64) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if err := checkKey(key); err != nil {
		return false, err
	}
	if ttl < 0 {
		return false, grid.NewErrorf(grid.RetCInvalidOperation, "invalid ttl %d", ttl)
	}

	for {
		ent, ok := c.peekEntry(key)
		if !ok {
			return false, nil
		}

		ok, err := ent.UpdateTTL(ttl)
		if err != nil {
			if grid.IsRemoved(err) {
				continue
			}
			return false, err
		}
		return ok, nil
	}
}

// --------------------------------------------------------------------------
// Loading Operations
// --------------------------------------------------------------------------

// Reload forces a fresh read-through load for key, replacing the cached
// value with whatever the backing store holds now.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Reload(ctx context.Context, key string) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}

	for {
		ent := c.entryFor(key)

		val, err := ent.InnerReload(ctx)
		if err != nil {
			if grid.IsRemoved(err) {
				continue
			}
			c.touch(ent)
			return nil, err
		}

		if val == nil {
			c.touch(ent)
			return nil, nil
		}
		return copyBytes(val), nil
	}
}

// LoadInitial installs a preloaded value under the version assigned by the
// loader. Only entries that never held a value accept it, so a load racing
// a regular write never clobbers the newer value.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) LoadInitial(ctx context.Context, key string, value []byte, ver version.Version, ttl int64) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if err := checkKey(key); err != nil {
		return false, err
	}
	if ttl < 0 {
		return false, grid.NewErrorf(grid.RetCInvalidOperation, "invalid ttl %d", ttl)
	}

	valueCopy := copyValue(value)

	for {
		ent := c.entryFor(key)

		applied, err := ent.InitialValue(valueCopy, ver, ttl, grid.ExpireCalculate, true)
		if err != nil {
			if grid.IsRemoved(err) {
				continue
			}
			c.touch(ent)
			return false, err
		}
		return applied, nil
	}
}

// --------------------------------------------------------------------------
// Eviction Operations
// --------------------------------------------------------------------------

// Evict pushes the entry out of memory. With swap enabled the value is
// demoted to the swap tier, otherwise it is dropped. Entries a lock
// candidate keeps alive refuse eviction.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Evict(ctx context.Context, key string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if err := checkKey(key); err != nil {
		return false, err
	}

	ent, ok := c.peekEntry(key)
	if !ok {
		return false, nil
	}
	return ent.EvictInternal(c.cctx.Versions.Next(), nil)
}

// EvictAll evicts the given keys, demoting values in one batch write where
// the swap tier allows it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) EvictAll(ctx context.Context, keys []string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	entries := make([]*entry.Entry, 0, len(keys))
	for _, key := range keys {
		if ent, ok := c.peekEntry(key); ok {
			entries = append(entries, ent)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	_, err := entry.BatchEvict(c.cctx, c.cctx.Versions.Next(), entries)
	return err
}

// Clear discards the entry without touching the backing store or demoting
// to swap. Returns whether an entry was cleared.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) Clear(ctx context.Context, key string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if err := checkKey(key); err != nil {
		return false, err
	}

	ent, ok := c.peekEntry(key)
	if !ok {
		return false, nil
	}
	return ent.Clear(c.cctx.Versions.Next(), nil)
}

// ClearAll discards all entries without touching the backing store. Entries
// a lock candidate keeps alive are skipped. All entries are cleared under
// one obsolete version.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *gridCache) ClearAll(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	obsoleteVer := c.cctx.Versions.Next()

	var firstErr error
	for _, s := range c.shards {
		s.Data.Range(func(_ util.UintKey, ent *entry.Entry) bool {
			if _, err := ent.Clear(obsoleteVer, nil); err != nil && firstErr == nil {
				firstErr = err
			}
			return true
		})
	}
	return firstErr
}
