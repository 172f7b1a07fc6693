package dlq

import (
	"sync"
	"time"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/breaker"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

// ResubmitFunc re-enters an event into the publish pipeline. Retried events
// pass the circuit breaker gate again.
type ResubmitFunc func(evt schema.Event)

// RetryManager handles publish pipeline failures: linear-backoff retries up
// to the event's attempt budget, then demotion to the dead-letter queue.
// Every failure is recorded on the circuit breaker.
type RetryManager struct {
	queue     *Queue
	brk       *breaker.Breaker
	baseDelay time.Duration
	resubmit  ResubmitFunc

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewRetryManager wires the retry manager to its queue, breaker, and pipeline re-entry point.
func NewRetryManager(queue *Queue, brk *breaker.Breaker, baseDelay time.Duration, resubmit ResubmitFunc) *RetryManager {
	manager := new(RetryManager)
	manager.queue = queue
	manager.brk = brk
	manager.baseDelay = baseDelay
	manager.resubmit = resubmit
	manager.timers = make(map[*time.Timer]struct{})
	return manager
}

// HandleFailure processes a pipeline error for the given event. The retry
// delay is linear in the attempt number (1x, 2x, 3x the base delay), not
// exponential.
func (m *RetryManager) HandleFailure(evt schema.Event, cause error) {
	now := time.Now()
	evt.Attempts++

	if evt.Attempts < evt.MaxAttempts {
		delay := time.Duration(evt.Attempts) * m.baseDelay
		observability.Log().Debug("scheduling retry",
			observability.F("event_id", evt.ID),
			observability.F("attempt", evt.Attempts),
			observability.F("delay", delay.String()))
		m.schedule(evt, delay)
	} else {
		observability.Log().Error("event moved to dead-letter queue",
			observability.F("event_id", evt.ID),
			observability.F("topic", evt.Topic),
			observability.F("attempts", evt.Attempts),
			observability.F("error", cause))
		m.queue.Offer(evt, now, cause)
	}

	m.brk.RecordFailure(now)
}

func (m *RetryManager) schedule(evt schema.Event, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.timers, timer)
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		m.resubmit(evt)
	})
	m.timers[timer] = struct{}{}
}

// Drain pops up to limit dead-letter entries, resets their attempt counters,
// and resubmits them through the pipeline. Used by both the breaker reset
// path and the administrative drain.
func (m *RetryManager) Drain(limit int) int {
	entries := m.queue.Pop(limit)
	for _, entry := range entries {
		evt := entry.Event
		evt.Attempts = 0
		m.resubmit(evt)
	}
	return len(entries)
}

// Close cancels all pending retry timers. In-flight retries are abandoned;
// process shutdown is the only lifecycle control.
func (m *RetryManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for timer := range m.timers {
		timer.Stop()
		delete(m.timers, timer)
	}
}
