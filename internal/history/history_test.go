package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/match"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

func newTestStore(capacity int) *Store {
	return NewStore(capacity, 24*time.Hour, match.NewMatcher())
}

func TestAppendTruncatesToCapacity(t *testing.T) {
	store := newTestStore(100)
	base := time.Now()
	for i := 0; i < 105; i++ {
		store.Append(schema.Event{ID: fmt.Sprintf("evt-%d", i), Topic: "order.placed", Timestamp: base.Add(time.Duration(i) * time.Millisecond)})
	}

	require.Equal(t, 100, store.Len())

	// Only the newest entries survive, in strict chronological order.
	entries := store.Query("", time.Time{}, 100)
	require.Len(t, entries, 100)
	require.Equal(t, "evt-5", entries[0].ID)
	require.Equal(t, "evt-104", entries[99].ID)
	for i := 1; i < len(entries); i++ {
		require.True(t, entries[i].Timestamp.After(entries[i-1].Timestamp))
	}
}

func TestQueryPatternIsUnanchored(t *testing.T) {
	store := newTestStore(10)
	now := time.Now()
	store.Append(schema.Event{ID: "1", Topic: "order.placed", Timestamp: now})
	store.Append(schema.Event{ID: "2", Topic: "other.order.placed", Timestamp: now})
	store.Append(schema.Event{ID: "3", Topic: "trade.executed", Timestamp: now})

	entries := store.Query("order.*", time.Time{}, 10)
	require.Len(t, entries, 2)
	require.Equal(t, "1", entries[0].ID)
	require.Equal(t, "2", entries[1].ID)
}

func TestQuerySinceIsStrict(t *testing.T) {
	store := newTestStore(10)
	cut := time.Now()
	store.Append(schema.Event{ID: "before", Topic: "a", Timestamp: cut.Add(-time.Second)})
	store.Append(schema.Event{ID: "exact", Topic: "a", Timestamp: cut})
	store.Append(schema.Event{ID: "after", Topic: "a", Timestamp: cut.Add(time.Second)})

	entries := store.Query("", cut, 10)
	require.Len(t, entries, 1)
	require.Equal(t, "after", entries[0].ID)
}

func TestQueryDefaultLimit(t *testing.T) {
	store := newTestStore(500)
	base := time.Now()
	for i := 0; i < 150; i++ {
		store.Append(schema.Event{ID: fmt.Sprintf("evt-%d", i), Topic: "a", Timestamp: base.Add(time.Duration(i) * time.Millisecond)})
	}

	entries := store.Query("", time.Time{}, 0)
	require.Len(t, entries, DefaultQueryLimit)
	require.Equal(t, "evt-50", entries[0].ID)
}

func TestQueryReturnsSnapshots(t *testing.T) {
	store := newTestStore(10)
	store.Append(schema.Event{ID: "1", Topic: "a", Timestamp: time.Now(), Payload: map[string]any{"symbol": "BTC"}})

	entries := store.Query("", time.Time{}, 10)
	entries[0].Payload["symbol"] = "ETH"

	again := store.Query("", time.Time{}, 10)
	require.Equal(t, "BTC", again[0].Payload["symbol"])
}

func TestSweepOlderThan(t *testing.T) {
	store := newTestStore(10)
	now := time.Now()
	store.Append(schema.Event{ID: "stale", Topic: "a", Timestamp: now.Add(-25 * time.Hour)})
	store.Append(schema.Event{ID: "fresh", Topic: "a", Timestamp: now})

	removed := store.SweepOlderThan(now.Add(-24 * time.Hour))
	require.Equal(t, 1, removed)
	require.Equal(t, 1, store.Len())
}
