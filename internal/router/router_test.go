package router

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/match"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

type recordingNotifier struct {
	mu       sync.Mutex
	services []string
}

func (r *recordingNotifier) Notify(_ context.Context, service string, _ schema.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = append(r.services, service)
}

type staticHealth map[string]bool

func (h staticHealth) Reachable(service string) bool {
	up, known := h[service]
	return !known || up
}

func testTables() Tables {
	return Tables{
		Patterns:   map[string][]string{"order.*": {"execution-engine", "risk-monitor"}},
		Priorities: map[string][]string{"HIGH": {"alerts-service"}},
		Sources:    map[string][]string{"system": {"audit-log"}},
	}
}

func TestRouteMatchesAllThreeTables(t *testing.T) {
	notifier := new(recordingNotifier)
	r := New(testTables(), match.NewMatcher(), notifier, nil)

	evt := schema.Event{Topic: "order.filled", Priority: schema.PriorityHigh, Source: "system"}
	sent := r.Route(context.Background(), evt)

	require.Equal(t, 4, sent)
	require.ElementsMatch(t, []string{"execution-engine", "risk-monitor", "alerts-service", "audit-log"}, notifier.services)
}

func TestRouteAllowsDuplicateDeliveries(t *testing.T) {
	tables := Tables{
		Patterns:   map[string][]string{"order.*": {"alerts-service"}},
		Priorities: map[string][]string{"CRITICAL": {"alerts-service"}},
	}
	notifier := new(recordingNotifier)
	r := New(tables, match.NewMatcher(), notifier, nil)

	sent := r.Route(context.Background(), schema.Event{Topic: "order.failed", Priority: schema.PriorityCritical})

	require.Equal(t, 2, sent)
	require.Equal(t, []string{"alerts-service", "alerts-service"}, notifier.services)
	require.Equal(t, uint64(2), r.Snapshot().Sent["alerts-service"])
}

func TestRoutePatternMatchingIsUnanchored(t *testing.T) {
	notifier := new(recordingNotifier)
	r := New(testTables(), match.NewMatcher(), notifier, nil)

	sent := r.Route(context.Background(), schema.Event{Topic: "other.order.placed", Priority: schema.PriorityLow, Source: "user"})

	require.Equal(t, 2, sent)
	require.ElementsMatch(t, []string{"execution-engine", "risk-monitor"}, notifier.services)
}

func TestRouteSkipsUnreachableServices(t *testing.T) {
	notifier := new(recordingNotifier)
	health := staticHealth{"execution-engine": false}
	r := New(testTables(), match.NewMatcher(), notifier, health)

	sent := r.Route(context.Background(), schema.Event{Topic: "order.placed", Priority: schema.PriorityLow, Source: "market"})

	require.Equal(t, 1, sent)
	require.Equal(t, []string{"risk-monitor"}, notifier.services)
	require.Zero(t, r.Snapshot().Sent["execution-engine"])
}

func TestRouteNoMatches(t *testing.T) {
	notifier := new(recordingNotifier)
	r := New(testTables(), match.NewMatcher(), notifier, nil)

	sent := r.Route(context.Background(), schema.Event{Topic: "trade.executed", Priority: schema.PriorityLow, Source: "market"})
	require.Zero(t, sent)
	require.Empty(t, notifier.services)
}
