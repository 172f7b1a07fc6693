// Package history provides the bounded, replayable log of processed events.
package history

import (
	"sync"
	"time"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/match"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

// DefaultQueryLimit bounds replay results when the caller omits a limit.
const DefaultQueryLimit = 100

// Store is a count- and age-bounded append log of event snapshots.
type Store struct {
	mu        sync.Mutex
	capacity  int
	retention time.Duration
	matcher   *match.Matcher
	entries   []schema.Event
}

// NewStore creates a history store with the provided hard cap and retention window.
func NewStore(capacity int, retention time.Duration, matcher *match.Matcher) *Store {
	store := new(Store)
	store.capacity = capacity
	store.retention = retention
	store.matcher = matcher
	store.entries = make([]schema.Event, 0)
	return store
}

// Append records an immutable snapshot of the event at the tail, truncating
// to the newest capacity entries on overflow.
func (s *Store) Append(evt schema.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, evt.Clone())
	if s.capacity > 0 && len(s.entries) > s.capacity {
		overflow := len(s.entries) - s.capacity
		s.entries = append(s.entries[:0], s.entries[overflow:]...)
	}
}

// Query returns at most limit entries matching the optional topic pattern and
// strict since lower bound, newest window in original insertion order.
func (s *Store) Query(pattern string, since time.Time, limit int) []schema.Event {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]schema.Event, 0, limit)
	for _, entry := range s.entries {
		if pattern != "" && !s.matcher.Match(pattern, entry.Topic) {
			continue
		}
		if !since.IsZero() && !entry.Timestamp.After(since) {
			continue
		}
		matched = append(matched, entry.Clone())
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// SweepOlderThan removes entries older than the cutoff and reports how many
// were evicted. Driven by the periodic retention sweep.
func (s *Store) SweepOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, entry := range s.entries {
		if entry.Timestamp.After(cutoff) {
			kept = append(kept, entry)
		}
	}
	removed := len(s.entries) - len(kept)
	s.entries = kept
	return removed
}

// Retention exposes the configured retention window for the sweep scheduler.
func (s *Store) Retention() time.Duration {
	return s.retention
}

// Len returns the current number of retained entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
