package security

import (
	"fmt"
	"sync"
	"testing"

	audit "bulwark/pkg/platform/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(id string) audit.Event {
	return audit.Event{ID: id, Event: audit.EventRateLimitExceeded}
}

func TestRingBuffer_FIFO(t *testing.T) {
	buf := NewRingBuffer(4)

	assert.False(t, buf.Enqueue(event("a")))
	assert.False(t, buf.Enqueue(event("b")))
	assert.False(t, buf.Enqueue(event("c")))
	assert.Equal(t, 3, buf.Len())

	batch := buf.DequeueBatch(2)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].ID)
	assert.Equal(t, "b", batch[1].ID)
	assert.Equal(t, 1, buf.Len())

	batch = buf.DequeueBatch(10)
	require.Len(t, batch, 1)
	assert.Equal(t, "c", batch[0].ID)
	assert.Equal(t, 0, buf.Len())
}

func TestRingBuffer_OverflowDropsOldest(t *testing.T) {
	buf := NewRingBuffer(2)

	assert.False(t, buf.Enqueue(event("a")))
	assert.False(t, buf.Enqueue(event("b")))
	assert.True(t, buf.Enqueue(event("c")), "enqueue into a full buffer should evict")

	assert.Equal(t, int64(1), buf.Dropped())
	assert.Equal(t, 2, buf.Len())

	batch := buf.DequeueBatch(2)
	require.Len(t, batch, 2)
	assert.Equal(t, "b", batch[0].ID, "oldest surviving event should come first")
	assert.Equal(t, "c", batch[1].ID)
}

func TestRingBuffer_WrapAround(t *testing.T) {
	buf := NewRingBuffer(3)

	buf.Enqueue(event("a"))
	buf.Enqueue(event("b"))
	require.Len(t, buf.DequeueBatch(2), 2)

	// Head has advanced; these writes wrap past the end of the backing slice.
	buf.Enqueue(event("c"))
	buf.Enqueue(event("d"))
	buf.Enqueue(event("e"))
	assert.Equal(t, 3, buf.Len())

	batch := buf.DequeueBatch(3)
	require.Len(t, batch, 3)
	assert.Equal(t, "c", batch[0].ID)
	assert.Equal(t, "d", batch[1].ID)
	assert.Equal(t, "e", batch[2].ID)
}

func TestRingBuffer_EmptyDequeue(t *testing.T) {
	buf := NewRingBuffer(2)
	assert.Nil(t, buf.DequeueBatch(5))
	assert.Nil(t, buf.DequeueBatch(0))
}

func TestRingBuffer_ConcurrentEnqueue(t *testing.T) {
	buf := NewRingBuffer(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				buf.Enqueue(event(fmt.Sprintf("%d-%d", worker, j)))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 500, buf.Len())
	assert.Equal(t, int64(0), buf.Dropped())
}
