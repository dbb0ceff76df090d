package cache

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"golang.org/x/sync/singleflight"
)

// --------------------------------------------------------------------------
// Load Coalescing
// --------------------------------------------------------------------------

// coalescedStore decorates a backing store so that concurrent loads for the
// same key share a single store round trip. The entry read path consults the
// store outside its mutex, so without coalescing a read stampede on one cold
// key would hit the store once per reader.
//
// Writes pass through untouched.
type coalescedStore struct {
	grid.IBackingStore
	flights singleflight.Group
}

// loadResult carries a store load through the flight group.
type loadResult struct {
	value []byte
	found bool
}

// coalesceLoads wraps store with load coalescing. A nil store stays nil so
// the read-through feature detection keeps working.
func coalesceLoads(store grid.IBackingStore) grid.IBackingStore {
	if store == nil {
		return nil
	}
	return &coalescedStore{IBackingStore: store}
}

// Load returns the value for key, sharing one underlying load between all
// callers that arrive while it is in flight. Joined callers inherit the
// outcome of the flight that is already running, including a cancellation
// of the context that started it.
func (s *coalescedStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	v, err, _ := s.flights.Do(key, func() (interface{}, error) {
		value, found, err := s.IBackingStore.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		return loadResult{value: value, found: found}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(loadResult)
	return res.value, res.found, nil
}
