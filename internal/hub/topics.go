package hub

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vigoferrel/qbtc-futures-system-sub008/errs"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

// stateLock guards the topic and connection registries. A single mutex keeps
// the one-logical-writer property across the pipeline and the sweeps.
type stateLock struct {
	sync.Mutex
	topics map[string][]*subscription
	conns  map[string]*connection
}

// subscription ties a connection to a topic with an optional filter predicate.
type subscription struct {
	connectionID string
	filters      *schema.Filters
	subscribedAt time.Time
}

// SubscriptionInfo is the externally visible subscription descriptor.
type SubscriptionInfo struct {
	ConnectionID string          `json:"connectionId"`
	Filters      *schema.Filters `json:"filters,omitempty"`
	SubscribedAt time.Time       `json:"subscribedAt"`
}

// Subscribe registers the connection on the topic, creating the topic
// implicitly on first use. The returned descriptor confirms the registration.
func (h *Hub) Subscribe(topic, connectionID string, filters *schema.Filters) (SubscriptionInfo, error) {
	if strings.TrimSpace(topic) == "" {
		return SubscriptionInfo{}, errs.New("hub/subscribe", errs.CodeInvalid, errs.WithMessage("topic required"))
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	conn, ok := h.stateMu.conns[connectionID]
	if !ok {
		return SubscriptionInfo{}, errs.New("hub/subscribe", errs.CodeNotFound, errs.WithMessage("unknown connection"))
	}

	h.ensureTopicLocked(topic)
	sub := &subscription{
		connectionID: connectionID,
		filters:      filters.Clone(),
		subscribedAt: time.Now(),
	}
	h.stateMu.topics[topic] = append(h.stateMu.topics[topic], sub)
	conn.topics[topic] = struct{}{}

	if h.subscriberGauge != nil {
		h.subscriberGauge.Add(context.Background(), 1)
	}
	observability.Log().Debug("subscription added",
		observability.F("topic", topic),
		observability.F("connection_id", connectionID))

	return SubscriptionInfo{ConnectionID: connectionID, Filters: sub.filters, SubscribedAt: sub.subscribedAt}, nil
}

// Unsubscribe removes the connection's subscription from the topic. Unknown
// topics are an error; unsubscribing a connection that never subscribed is a
// silent no-op.
func (h *Hub) Unsubscribe(topic, connectionID string) error {
	if strings.TrimSpace(topic) == "" {
		return errs.New("hub/unsubscribe", errs.CodeInvalid, errs.WithMessage("topic required"))
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if _, known := h.stateMu.topics[topic]; !known {
		return errs.New("hub/unsubscribe", errs.CodeNotFound, errs.WithMessage("unknown topic "+topic))
	}

	h.removeSubscriptionLocked(topic, connectionID)
	if conn, ok := h.stateMu.conns[connectionID]; ok {
		delete(conn.topics, topic)
	}
	return nil
}

// ensureTopicLocked creates the topic with an empty (never nil) subscriber
// set. Topics are also created implicitly on first publish.
func (h *Hub) ensureTopicLocked(topic string) {
	if _, ok := h.stateMu.topics[topic]; !ok {
		h.stateMu.topics[topic] = make([]*subscription, 0)
	}
}

func (h *Hub) removeSubscriptionLocked(topic, connectionID string) {
	subs := h.stateMu.topics[topic]
	kept := subs[:0]
	removed := 0
	for _, sub := range subs {
		if sub.connectionID == connectionID {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	h.stateMu.topics[topic] = kept
	if removed > 0 && h.subscriberGauge != nil {
		h.subscriberGauge.Add(context.Background(), int64(-removed))
	}
}

// TopicsSnapshot reports every known topic with its subscriptions.
func (h *Hub) TopicsSnapshot() map[string][]SubscriptionInfo {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	out := make(map[string][]SubscriptionInfo, len(h.stateMu.topics))
	for topic, subs := range h.stateMu.topics {
		infos := make([]SubscriptionInfo, 0, len(subs))
		for _, sub := range subs {
			infos = append(infos, SubscriptionInfo{
				ConnectionID: sub.connectionID,
				Filters:      sub.filters.Clone(),
				SubscribedAt: sub.subscribedAt,
			})
		}
		out[topic] = infos
	}
	return out
}
