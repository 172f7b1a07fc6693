// Package router matches events against the static routing tables and
// notifies downstream services.
package router

import (
	"context"
	"sync"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/match"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/notify"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

// Tables holds the three independent routing tables. Keys of Patterns are
// topic wildcard patterns; Priorities and Sources key on the event fields
// directly, independent of topic.
type Tables struct {
	Patterns   map[string][]string `json:"patterns" yaml:"patterns"`
	Priorities map[string][]string `json:"priorities" yaml:"priorities"`
	Sources    map[string][]string `json:"sources" yaml:"sources"`
}

// Reachability reports whether a named downstream service is currently up.
type Reachability interface {
	Reachable(service string) bool
}

// Snapshot is the administrative view of the routing state.
type Snapshot struct {
	Tables Tables            `json:"tables"`
	Sent   map[string]uint64 `json:"sent"`
}

// Router fans routed events out to downstream services. An event matching
// more than one table is delivered to the same service once per match;
// duplicates are expected, not deduplicated.
type Router struct {
	matcher  *match.Matcher
	notifier notify.Notifier
	health   Reachability

	mu     sync.Mutex
	tables Tables
	sent   map[string]uint64
}

// New constructs a router over the provided tables.
func New(tables Tables, matcher *match.Matcher, notifier notify.Notifier, health Reachability) *Router {
	router := new(Router)
	router.matcher = matcher
	router.notifier = notifier
	router.health = health
	router.tables = tables
	router.sent = make(map[string]uint64)
	return router
}

// Route notifies every service matched by the event's topic pattern,
// priority, and source tables, returning the number of notifications sent.
// Unreachable services are skipped without counting.
func (r *Router) Route(ctx context.Context, evt schema.Event) int {
	targets := r.collect(evt)
	sent := 0
	for _, service := range targets {
		if r.health != nil && !r.health.Reachable(service) {
			observability.Log().Debug("skipping unreachable service",
				observability.F("service", service),
				observability.F("event_id", evt.ID))
			continue
		}
		r.notifier.Notify(ctx, service, evt)
		r.mu.Lock()
		r.sent[service]++
		r.mu.Unlock()
		sent++
	}
	return sent
}

func (r *Router) collect(evt schema.Event) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var targets []string
	for pattern, services := range r.tables.Patterns {
		if r.matcher.Match(pattern, evt.Topic) {
			targets = append(targets, services...)
		}
	}
	targets = append(targets, r.tables.Priorities[string(evt.Priority)]...)
	targets = append(targets, r.tables.Sources[evt.Source]...)
	return targets
}

// Snapshot copies the routing tables and per-service sent counters.
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Tables: Tables{
			Patterns:   copyTable(r.tables.Patterns),
			Priorities: copyTable(r.tables.Priorities),
			Sources:    copyTable(r.tables.Sources),
		},
		Sent: make(map[string]uint64, len(r.sent)),
	}
	for service, count := range r.sent {
		snap.Sent[service] = count
	}
	return snap
}

func copyTable(src map[string][]string) map[string][]string {
	out := make(map[string][]string, len(src))
	for key, services := range src {
		out[key] = append([]string(nil), services...)
	}
	return out
}
