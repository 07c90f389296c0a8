package client

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := &waitQueue{}
	now := time.Now().UTC()

	first := q.push(now)
	second := q.push(now.Add(time.Millisecond))
	third := q.push(now.Add(2 * time.Millisecond))

	require.Equal(t, 3, q.depth())
	require.Same(t, first, q.pop())
	require.Same(t, second, q.pop())
	require.Same(t, third, q.pop())
	require.Nil(t, q.pop())
}

func TestQueueSkipsCancelled(t *testing.T) {
	q := &waitQueue{}
	now := time.Now().UTC()

	first := q.push(now)
	second := q.push(now)

	q.remove(first)
	require.Equal(t, 1, q.depth())
	require.Same(t, second, q.pop())
	require.Nil(t, q.pop())
}

func TestQueueOldestWait(t *testing.T) {
	q := &waitQueue{}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, time.Duration(0), q.oldestWait(base))

	head := q.push(base)
	q.push(base.Add(100 * time.Millisecond))
	require.Equal(t, 250*time.Millisecond, q.oldestWait(base.Add(250*time.Millisecond)))

	// Cancelling the head shifts the measurement to the next live entry.
	q.remove(head)
	require.Equal(t, 150*time.Millisecond, q.oldestWait(base.Add(250*time.Millisecond)))
}

func TestQueueFail(t *testing.T) {
	q := &waitQueue{}
	now := time.Now().UTC()

	entry := q.push(now)
	cancelled := q.push(now)
	q.remove(cancelled)

	sentinel := errors.New("shutting down")
	q.fail(sentinel)

	select {
	case <-entry.ready:
		require.ErrorIs(t, entry.err, sentinel)
	default:
		t.Fatal("parked entry was not resolved")
	}
	require.Equal(t, 0, q.depth())
}
