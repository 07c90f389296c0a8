package client

import (
	"time"
)

// queueEntry is one parked dispatch. Its ready channel is closed exactly
// once, either by the release scheduler (budget granted) or by Close
// (client shutting down, err set first). A caller that gives up flips
// cancelled under the client lock; the scheduler skips such entries
// without consuming budget for them.
type queueEntry struct {
	ready      chan struct{}
	enqueuedAt time.Time
	cancelled  bool
	err        error
}

// waitQueue is a FIFO of parked dispatches. Not self-synchronized; the
// Client's mutex guards every method.
type waitQueue struct {
	entries []*queueEntry
}

func (q *waitQueue) push(now time.Time) *queueEntry {
	entry := &queueEntry{
		ready:      make(chan struct{}),
		enqueuedAt: now,
	}
	q.entries = append(q.entries, entry)
	return entry
}

// pop returns the oldest live entry, discarding cancelled ones.
func (q *waitQueue) pop() *queueEntry {
	for len(q.entries) > 0 {
		entry := q.entries[0]
		q.entries[0] = nil
		q.entries = q.entries[1:]
		if entry.cancelled {
			continue
		}
		return entry
	}
	return nil
}

// remove marks an entry cancelled. The entry stays in the slice until the
// scheduler walks past it; depth accounting skips it immediately.
func (q *waitQueue) remove(entry *queueEntry) {
	entry.cancelled = true
}

func (q *waitQueue) depth() int {
	n := 0
	for _, entry := range q.entries {
		if entry != nil && !entry.cancelled {
			n++
		}
	}
	return n
}

// oldestWait returns how long the head of the queue has been parked.
func (q *waitQueue) oldestWait(now time.Time) time.Duration {
	for _, entry := range q.entries {
		if entry == nil || entry.cancelled {
			continue
		}
		return now.Sub(entry.enqueuedAt)
	}
	return 0
}

// fail drains the queue, rejecting every parked entry with err.
func (q *waitQueue) fail(err error) {
	for _, entry := range q.entries {
		if entry == nil || entry.cancelled {
			continue
		}
		entry.err = err
		close(entry.ready)
	}
	q.entries = nil
}
