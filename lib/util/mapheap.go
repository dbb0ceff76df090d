// Package util
//
// This file provides a specialized priority queue for sweeper purposes.
//
// The implementation combines a binary min-heap with a hash map to provide
// both efficient priority-based operations and key-based access. It is used
// by the TTL sweeper (keys ordered by expire time) and the tombstone purger
// (keys ordered by purge deadline), where entries must be processed in
// deadline order but can also be rescheduled or cancelled individually.
//
// Complexity:
//   - O(log n) for priority operations (Push, Pop, reschedule)
//   - O(1) for key-based lookups and existence checks
//   - O(log n) for key-based removal
//
// Concurrency: this implementation is not thread-safe. Callers apply
// external synchronization (the sweeper owns its heap exclusively).
//
// Example usage:
//
//	h := NewMapHeap()
//	h.AddItem(1001, deadline1)
//	h.AddItem(1002, deadline2)
//
//	for {
//	    it, ok := h.PopBelow(now)
//	    if !ok {
//	        break
//	    }
//	    // process it.Key
//	}
package util

import (
	"container/heap"
	"strconv"
)

// Item represents an element of the queue with a uint64 key for
// identification and a uint64 priority (typically a unix-milli deadline)
type Item struct {
	Key      uint64 // Unique identifier for the item
	Priority uint64 // Priority used for ordering in the heap
	index    int    // Index in the heap, maintained by heap package
}

func (i *Item) String() string {
	return "{Key: " + strconv.FormatUint(i.Key, 10) + ", Priority: " + strconv.FormatUint(i.Priority, 10) + "}"
}

// MapHeap implements a min-heap priority queue
// with both heap operations and key-based access
type MapHeap struct {
	items    []*Item          // The actual heap slice
	itemsMap map[uint64]*Item // Map for O(1) access by key
}

// NewMapHeap creates a new queue
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items:    make([]*Item, 0),
		itemsMap: make(map[uint64]*Item),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (mh *MapHeap) Len() int { return len(mh.items) }

// Less compares items by priority (part of heap.Interface)
// Lowest priority first, so the nearest deadline sits at the root
func (mh *MapHeap) Less(i, j int) bool {
	return mh.items[i].Priority < mh.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (mh *MapHeap) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (mh *MapHeap) Push(x any) {
	n := len(mh.items)
	item := x.(*Item)
	item.index = n
	mh.items = append(mh.items, item)
	mh.itemsMap[item.Key] = item
}

// Pop removes and returns the minimum item (part of heap.Interface)
func (mh *MapHeap) Pop() any {
	old := mh.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	mh.items = old[:n-1]
	delete(mh.itemsMap, item.Key)
	return item
}

// AddItem adds a new item to the queue or reschedules an existing one
func (mh *MapHeap) AddItem(key, priority uint64) {
	// Check if item already exists
	if item, exists := mh.itemsMap[key]; exists {
		// Update priority and fix heap
		item.Priority = priority
		heap.Fix(mh, item.index)
		return
	}

	// Create and add new item
	item := &Item{
		Key:      key,
		Priority: priority,
	}
	heap.Push(mh, item)
}

// RemoveByKey removes an item by its key, returning its priority
func (mh *MapHeap) RemoveByKey(key uint64) (uint64, bool) {
	item, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}

	// Remove from heap
	heap.Remove(mh, item.index)
	return item.Priority, true
}

// Peek returns the minimum priority item without removing it
func (mh *MapHeap) Peek() (*Item, bool) {
	if len(mh.items) == 0 {
		return nil, false
	}
	return mh.items[0], true
}

// PopBelow removes and returns the minimum item if its priority is less
// than or equal to the limit. Returns false when the heap is empty or the
// nearest deadline has not been reached yet.
func (mh *MapHeap) PopBelow(limit uint64) (*Item, bool) {
	if len(mh.items) == 0 || mh.items[0].Priority > limit {
		return nil, false
	}
	return heap.Pop(mh).(*Item), true
}

// Contains checks if a key exists in the queue
func (mh *MapHeap) Contains(key uint64) bool {
	_, exists := mh.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (mh *MapHeap) GetByKey(key uint64) (*Item, bool) {
	item, exists := mh.itemsMap[key]
	return item, exists
}
