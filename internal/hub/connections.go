package hub

import (
	"time"

	"github.com/google/uuid"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
)

// Transport is the sendable surface of a subscriber connection. Send must
// not block on network I/O; implementations enqueue into a bounded buffer
// and report an error when the connection is no longer sendable.
type Transport interface {
	Send(payload []byte) error
	Open() bool
	Close(reason string)
}

// connection tracks one live subscriber with its liveness and topic set.
type connection struct {
	id            string
	establishedAt time.Time
	lastActivity  time.Time
	topics        map[string]struct{}
	transport     Transport
}

// ConnectionInfo is the externally visible connection descriptor.
type ConnectionInfo struct {
	ID               string    `json:"id"`
	EstablishedAt    time.Time `json:"establishedAt"`
	LastActivity     time.Time `json:"lastActivity"`
	SubscribedTopics []string  `json:"subscribedTopics"`
}

// Register adds a live connection around the given transport and returns its
// generated identifier.
func (h *Hub) Register(transport Transport) string {
	now := time.Now()
	conn := &connection{
		id:            uuid.NewString(),
		establishedAt: now,
		lastActivity:  now,
		topics:        make(map[string]struct{}),
		transport:     transport,
	}

	h.stateMu.Lock()
	h.stateMu.conns[conn.id] = conn
	h.stateMu.Unlock()

	observability.Log().Info("connection established", observability.F("connection_id", conn.id))
	return conn.id
}

// Touch refreshes the connection's liveness on an inbound operation.
func (h *Hub) Touch(connectionID string) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if conn, ok := h.stateMu.conns[connectionID]; ok {
		conn.lastActivity = time.Now()
	}
}

// Teardown destroys the connection, cascading removal of every subscription
// it owns across all topics, and closes its transport.
func (h *Hub) Teardown(connectionID, reason string) {
	h.stateMu.Lock()
	conn, ok := h.stateMu.conns[connectionID]
	if !ok {
		h.stateMu.Unlock()
		return
	}
	delete(h.stateMu.conns, connectionID)
	for topic := range conn.topics {
		h.removeSubscriptionLocked(topic, connectionID)
	}
	h.stateMu.Unlock()

	conn.transport.Close(reason)
	observability.Log().Info("connection torn down",
		observability.F("connection_id", connectionID),
		observability.F("reason", reason))
}

// sweepConnections evicts connections that have gone quiet past the liveness
// window or whose transport already closed.
func (h *Hub) sweepConnections(now time.Time) {
	cutoff := now.Add(-h.opts.LivenessWindow)

	h.stateMu.Lock()
	var stale []string
	for id, conn := range h.stateMu.conns {
		if conn.lastActivity.Before(cutoff) || !conn.transport.Open() {
			stale = append(stale, id)
		}
	}
	h.stateMu.Unlock()

	for _, id := range stale {
		h.Teardown(id, "liveness sweep")
	}
}

func (h *Hub) connectionIDs() []string {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	ids := make([]string, 0, len(h.stateMu.conns))
	for id := range h.stateMu.conns {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionsSnapshot reports every live connection.
func (h *Hub) ConnectionsSnapshot() []ConnectionInfo {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	out := make([]ConnectionInfo, 0, len(h.stateMu.conns))
	for _, conn := range h.stateMu.conns {
		topics := make([]string, 0, len(conn.topics))
		for topic := range conn.topics {
			topics = append(topics, topic)
		}
		out = append(out, ConnectionInfo{
			ID:               conn.id,
			EstablishedAt:    conn.establishedAt,
			LastActivity:     conn.lastActivity,
			SubscribedTopics: topics,
		})
	}
	return out
}
