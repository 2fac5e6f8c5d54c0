// Package util
//
// This file provides a min-heap of (key, priority) pairs that can also be addressed by key.
//
// The pending request table stores one entry per request id and has to answer two
// questions quickly: "remove the entry for id X" (a response arrived) and "which entries
// are older than the timeout" (eviction). The heap orders ids by their submission time,
// the map gives O(1) access to the heap position of a single id.
//
// Time Complexity:
//   - O(log n) for Push, Pop and RemoveByKey
//   - O(1) for Peek and Contains
//
// Note: This implementation is not thread-safe. The owner must serialize access.
//
// Example usage:
//
//	h := NewMapHeap()
//	h.AddItem(1, submittedAt1)
//	h.AddItem(2, submittedAt2)
//
//	// drop entries older than the cutoff
//	for {
//	    oldest, ok := h.Peek()
//	    if !ok || oldest.Priority > cutoff {
//	        break
//	    }
//	    h.PopMin()
//	}
package util

import (
	"container/heap"
	"strconv"
)

// Item is a single heap entry with a uint64 key for identification and an int64 priority
type Item struct {
	Key      uint64 // Unique identifier, e.g. a request id
	Priority int64  // Lower values are popped first, e.g. a submission timestamp
	index    int    // Index in the heap, maintained by the heap package
}

func (i *Item) String() string {
	return "{Key: " + strconv.FormatUint(i.Key, 10) + ", Priority: " + strconv.FormatInt(i.Priority, 10) + "}"
}

// MapHeap implements a min-heap with key-based access
type MapHeap struct {
	items    []*Item          // The actual heap slice
	itemsMap map[uint64]*Item // Map for O(1) access by key
}

// NewMapHeap creates a new, empty heap
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items:    make([]*Item, 0),
		itemsMap: make(map[uint64]*Item),
	}
}

// Len returns the number of items in the heap (part of heap.Interface)
func (h *MapHeap) Len() int { return len(h.items) }

// Less compares items by priority (part of heap.Interface)
func (h *MapHeap) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *MapHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface, use AddItem instead)
func (h *MapHeap) Push(x interface{}) {
	it := x.(*Item)
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.itemsMap[it.Key] = it
}

// Pop removes and returns the last item (part of heap.Interface, use PopMin instead)
func (h *MapHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // Avoid memory leak
	it.index = -1
	h.items = old[:n-1]
	delete(h.itemsMap, it.Key)
	return it
}

// AddItem adds a new item or updates the priority of an existing one
func (h *MapHeap) AddItem(key uint64, priority int64) {
	if it, exists := h.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(h, it.index)
		return
	}
	heap.Push(h, &Item{Key: key, Priority: priority})
}

// RemoveByKey removes an item by its key and returns its priority
func (h *MapHeap) RemoveByKey(key uint64) (int64, bool) {
	it, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(h, it.index)
	return it.Priority, true
}

// Peek returns the item with the lowest priority without removing it
func (h *MapHeap) Peek() (Item, bool) {
	if len(h.items) == 0 {
		return Item{}, false
	}
	return *h.items[0], true
}

// PopMin removes and returns the item with the lowest priority
func (h *MapHeap) PopMin() (Item, bool) {
	if len(h.items) == 0 {
		return Item{}, false
	}
	return *heap.Pop(h).(*Item), true
}

// Contains checks if a key exists in the heap
func (h *MapHeap) Contains(key uint64) bool {
	_, exists := h.itemsMap[key]
	return exists
}

// Clear removes all items
func (h *MapHeap) Clear() {
	for i := range h.items {
		h.items[i] = nil
	}
	h.items = h.items[:0]
	clear(h.itemsMap)
}
