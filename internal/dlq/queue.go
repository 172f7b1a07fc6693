// Package dlq implements the bounded dead-letter queue and the retry
// manager that feeds it.
package dlq

import (
	"sync"
	"time"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

// Entry is an immutable snapshot of an event that exhausted its retry budget.
type Entry struct {
	Event    schema.Event `json:"event"`
	FailedAt time.Time    `json:"failedAt"`
	Error    string       `json:"error"`
}

// Queue is a bounded FIFO of dead-letter entries. When full, the oldest
// entry is dropped to admit the newest.
type Queue struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
}

// NewQueue creates a dead-letter queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	queue := new(Queue)
	queue.capacity = capacity
	queue.entries = make([]Entry, 0)
	return queue
}

// Offer records a failed event snapshot in the queue.
func (q *Queue) Offer(evt schema.Event, failedAt time.Time, cause error) {
	entry := Entry{Event: evt.Clone(), FailedAt: failedAt}
	if cause != nil {
		entry.Error = cause.Error()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.entries) >= q.capacity {
		// Drop oldest entry to make space for the new record.
		copy(q.entries[0:], q.entries[1:])
		q.entries[len(q.entries)-1] = entry
		return
	}
	q.entries = append(q.entries, entry)
}

// Pop removes and returns up to limit entries from the head of the queue.
func (q *Queue) Pop(limit int) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 || limit > len(q.entries) {
		limit = len(q.entries)
	}
	popped := make([]Entry, limit)
	copy(popped, q.entries[:limit])
	q.entries = append(q.entries[:0], q.entries[limit:]...)
	return popped
}

// Snapshot copies the queued entries for administrative inspection.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
