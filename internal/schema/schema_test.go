package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vigoferrel/qbtc-futures-system-sub008/errs"
)

func TestParsePriorityDefaultsToMedium(t *testing.T) {
	p, err := ParsePriority("")
	require.NoError(t, err)
	require.Equal(t, PriorityMedium, p)
}

func TestParsePriorityNormalizesCase(t *testing.T) {
	p, err := ParsePriority("high")
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, p)
}

func TestParsePriorityRejectsUnknown(t *testing.T) {
	_, err := ParsePriority("URGENT")
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
}

func TestNewEventIDShape(t *testing.T) {
	id := NewEventID(42)
	require.Len(t, id, 16)

	other := NewEventID(42)
	require.NotEqual(t, id, other)
}

func TestEventCloneIsolatesPayload(t *testing.T) {
	evt := Event{ID: "a", Topic: "order.placed", Payload: map[string]any{"symbol": "BTC"}}
	snap := evt.Clone()
	snap.Payload["symbol"] = "ETH"

	require.Equal(t, "BTC", evt.Payload["symbol"])
}

func TestFiltersMatchComposition(t *testing.T) {
	high := PriorityHigh
	filters := &Filters{Priority: &high, Custom: map[string]any{"symbol": "BTC"}}

	match := Event{Priority: PriorityHigh, Payload: map[string]any{"symbol": "BTC"}}
	miss := Event{Priority: PriorityHigh, Payload: map[string]any{"symbol": "ETH"}}

	require.True(t, filters.Match(match))
	require.False(t, filters.Match(miss))
}

func TestFiltersMatchSource(t *testing.T) {
	src := "market"
	filters := &Filters{Source: &src}

	require.True(t, filters.Match(Event{Source: "market"}))
	require.False(t, filters.Match(Event{Source: "user"}))
}

func TestNilFiltersPassEverything(t *testing.T) {
	var filters *Filters
	require.True(t, filters.Match(Event{Priority: PriorityLow, Source: "risk"}))
	require.True(t, filters.Empty())
}

func TestFiltersCustomKeyMissingFails(t *testing.T) {
	filters := &Filters{Custom: map[string]any{"symbol": "BTC"}}
	require.False(t, filters.Match(Event{Payload: map[string]any{}}))
}

func TestDecodeRequestClosedUnion(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"type":"subscribe","topic":"order.*"}`))
	require.NoError(t, err)
	require.Equal(t, KindSubscribe, req.Type)
	require.Equal(t, "order.*", req.Topic)

	_, err = DecodeRequest([]byte(`{"type":"snapshot"}`))
	require.True(t, errs.IsCode(err, errs.CodeInvalid))

	_, err = DecodeRequest([]byte(`{"topic":"order.*"}`))
	require.True(t, errs.IsCode(err, errs.CodeInvalid))

	_, err = DecodeRequest([]byte(`{"type":`))
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
}

func TestValidatePublish(t *testing.T) {
	ok := Request{Type: KindPublish, Topic: "order.filled", Payload: map[string]any{"symbol": "BTC"}}
	require.NoError(t, ok.ValidatePublish())

	missingTopic := Request{Type: KindPublish, Payload: map[string]any{}}
	require.True(t, errs.IsCode(missingTopic.ValidatePublish(), errs.CodeInvalid))

	missingPayload := Request{Type: KindPublish, Topic: "order.filled"}
	require.True(t, errs.IsCode(missingPayload.ValidatePublish(), errs.CodeInvalid))
}

func TestReplayEnvelopeNeverNil(t *testing.T) {
	env := ReplayEnvelope(nil, "req-1")
	require.NotNil(t, env.Events)
	require.Empty(t, env.Events)
	require.Equal(t, "req-1", env.RequestID)
}

func TestEventEnvelopeShape(t *testing.T) {
	evt := Event{ID: "abc", Topic: "order.filled", Timestamp: time.Now()}
	env := EventEnvelope(evt)
	require.Equal(t, "event", env.Type)
	require.Equal(t, "abc", env.Event.ID)
}
