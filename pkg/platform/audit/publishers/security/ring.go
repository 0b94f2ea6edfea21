package security

import (
	"sync"

	audit "bulwark/pkg/platform/audit"
)

// RingBuffer is a fixed-capacity FIFO buffer with drop-oldest overflow.
// All methods are safe for concurrent use.
type RingBuffer struct {
	mu      sync.Mutex
	events  []audit.Event
	head    int
	size    int
	dropped int64
}

// NewRingBuffer creates a buffer holding at most capacity events.
// A non-positive capacity falls back to 1 so Enqueue always has room.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{events: make([]audit.Event, capacity)}
}

// Enqueue adds an event, evicting the oldest entry when full.
// Never blocks. Returns true when an older event was evicted.
func (b *RingBuffer) Enqueue(event audit.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == len(b.events) {
		// Overwrite the oldest slot and advance the head.
		b.events[b.head] = event
		b.head = (b.head + 1) % len(b.events)
		b.dropped++
		return true
	}

	tail := (b.head + b.size) % len(b.events)
	b.events[tail] = event
	b.size++
	return false
}

// DequeueBatch removes and returns up to n events, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []audit.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || b.size == 0 {
		return nil
	}
	if n > b.size {
		n = b.size
	}

	batch := make([]audit.Event, n)
	for i := 0; i < n; i++ {
		idx := (b.head + i) % len(b.events)
		batch[i] = b.events[idx]
		b.events[idx] = audit.Event{}
	}
	b.head = (b.head + n) % len(b.events)
	b.size -= n
	return batch
}

// Len returns the number of buffered events.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Dropped returns the number of events evicted by overflow.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
