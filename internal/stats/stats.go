// Package stats accumulates aggregate counters for the hub pipeline.
package stats

import (
	"sync"
	"time"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

const hourlyBucketLayout = "2006-01-02T15"

// Snapshot is the reporting view exposed by the admin API.
type Snapshot struct {
	TotalEvents     uint64            `json:"totalEvents"`
	ByTopic         map[string]uint64 `json:"byTopic"`
	BySource        map[string]uint64 `json:"bySource"`
	ByPriority      map[string]uint64 `json:"byPriority"`
	Hourly          map[string]uint64 `json:"hourly"`
	Failures        uint64            `json:"failures"`
	AvgProcessingMs float64           `json:"avgProcessingMs"`
	ErrorRate       float64           `json:"errorRate"`
	DLQSize         int               `json:"dlqSize"`
}

// Stats tracks per-topic/source/priority counts, an hourly histogram, and
// processing latency for published events.
type Stats struct {
	mu              sync.Mutex
	total           uint64
	byTopic         map[string]uint64
	bySource        map[string]uint64
	byPriority      map[string]uint64
	hourly          map[string]uint64
	failures        uint64
	processingTotal time.Duration
	processedCount  uint64
}

// New constructs an empty statistics accumulator.
func New() *Stats {
	stats := new(Stats)
	stats.byTopic = make(map[string]uint64)
	stats.bySource = make(map[string]uint64)
	stats.byPriority = make(map[string]uint64)
	stats.hourly = make(map[string]uint64)
	return stats
}

// RecordPublished counts a processed event and its pipeline latency. The
// running total is maintained by RecordAccepted at pipeline entry, so a
// retried event is counted once per publish, not once per attempt.
func (s *Stats) RecordPublished(evt schema.Event, processing time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTopic[evt.Topic]++
	s.bySource[evt.Source]++
	s.byPriority[string(evt.Priority)]++
	s.hourly[evt.Timestamp.Format(hourlyBucketLayout)]++
	s.processingTotal += processing
	s.processedCount++
}

// RecordAccepted counts an event admitted to the pipeline without having
// completed processing yet (breaker-open shunts included). Keeps the running
// total used for event ID derivation monotonic.
func (s *Stats) RecordAccepted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	return s.total
}

// RecordFailure counts a pipeline failure.
func (s *Stats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
}

// Total returns the running total-events counter.
func (s *Stats) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Snapshot copies the counters, deriving the average processing time and the
// error rate (DLQ size over total events).
func (s *Stats) Snapshot(dlqSize int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TotalEvents: s.total,
		ByTopic:     copyCounts(s.byTopic),
		BySource:    copyCounts(s.bySource),
		ByPriority:  copyCounts(s.byPriority),
		Hourly:      copyCounts(s.hourly),
		Failures:    s.failures,
		DLQSize:     dlqSize,
	}
	if s.processedCount > 0 {
		snap.AvgProcessingMs = float64(s.processingTotal.Microseconds()) / float64(s.processedCount) / 1000
	}
	if s.total > 0 {
		snap.ErrorRate = float64(dlqSize) / float64(s.total)
	}
	return snap
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
