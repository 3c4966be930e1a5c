// Package buffer provides a ring buffer for recent stream event caching.
package buffer

import (
	"sync"
)

// EventRing is a thread-safe circular buffer that stores the most recent
// items up to a specified capacity. When the ring is full, the oldest item
// is discarded to make room.
//
// This is used to cache a running job's stream events so that a client
// attaching to the job's channel mid-stream immediately receives the events
// emitted so far.
type EventRing[T any] struct {
	items    []T
	capacity int
	mu       sync.RWMutex
}

// NewEventRing creates a new EventRing with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewEventRing[T any](capacity int) *EventRing[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventRing[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Append adds an item to the ring, discarding the oldest item if the ring
// is at capacity.
func (r *EventRing[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == r.capacity {
		copy(r.items, r.items[1:])
		r.items[len(r.items)-1] = item
		return
	}
	r.items = append(r.items, item)
}

// Snapshot returns a copy of all items currently in the ring, oldest first.
// The returned slice is safe to use without holding the lock.
func (r *EventRing[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.items) == 0 {
		return nil
	}

	result := make([]T, len(r.items))
	copy(result, r.items)
	return result
}

// Len returns the current number of items in the ring.
func (r *EventRing[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}

// Cap returns the capacity of the ring.
func (r *EventRing[T]) Cap() int {
	return r.capacity
}
