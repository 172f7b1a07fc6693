// Package schema defines the event model and wire envelopes shared across the hub.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vigoferrel/qbtc-futures-system-sub008/errs"
)

// Priority classifies events for priority-based routing.
type Priority string

const (
	// PriorityCritical marks events requiring immediate downstream attention.
	PriorityCritical Priority = "CRITICAL"
	// PriorityHigh marks elevated-importance events.
	PriorityHigh Priority = "HIGH"
	// PriorityMedium is the default priority for published events.
	PriorityMedium Priority = "MEDIUM"
	// PriorityLow marks background events.
	PriorityLow Priority = "LOW"
)

// DefaultSource labels events published without an explicit source.
const DefaultSource = "unknown"

// ParsePriority normalizes a wire priority value. Empty input yields the default.
func ParsePriority(raw string) (Priority, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return PriorityMedium, nil
	}
	p := Priority(trimmed)
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	}
	return "", errs.New("schema/priority", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("unknown priority %q", raw)))
}

// Event is the unit of publication flowing through the hub pipeline.
type Event struct {
	ID          string         `json:"id"`
	Topic       string         `json:"topic"`
	Payload     map[string]any `json:"payload"`
	Priority    Priority       `json:"priority"`
	Source      string         `json:"source"`
	PublisherID string         `json:"publisherId,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Processed   bool           `json:"processed"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"maxAttempts"`
}

// Clone returns a snapshot copy of the event with its own payload map.
func (e Event) Clone() Event {
	out := e
	if e.Payload != nil {
		out.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

var idSequence atomic.Uint64

// NewEventID derives a collision-resistant identifier from wall-clock time,
// a monotonic sequence, and the running total-events counter. The ID is
// opaque and never used for ordering.
func NewEventID(totalEvents uint64) string {
	seq := idSequence.Add(1)
	sum := sha256.Sum256(fmt.Appendf(nil, "%d:%d:%d", time.Now().UnixNano(), seq, totalEvents))
	return hex.EncodeToString(sum[:])[:16]
}
