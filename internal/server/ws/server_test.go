package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/hub"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

type wsClient struct {
	conn *websocket.Conn
}

func newTestServer(t *testing.T, opts Options) (*hub.Hub, *httptest.Server) {
	t.Helper()
	h := hub.New(hub.Options{RetryBaseDelay: time.Millisecond})
	srv := httptest.NewServer(NewServer(h, opts))
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return h, srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "test done")
	})
	return &wsClient{conn: conn}
}

func (c *wsClient) send(t *testing.T, ctx context.Context, req any) {
	t.Helper()
	frame, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, c.conn.Write(ctx, websocket.MessageText, frame))
}

func (c *wsClient) read(t *testing.T, ctx context.Context) schema.Envelope {
	t.Helper()
	_, frame, err := c.conn.Read(ctx)
	require.NoError(t, err)
	var env schema.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env
}

func TestWelcomeOnConnect(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := dial(t, ctx, srv)
	welcome := client.read(t, ctx)
	require.Equal(t, "welcome", welcome.Type)
	require.NotEmpty(t, welcome.ConnectionID)
}

func TestSubscribePublishDeliveryFlow(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	subscriber := dial(t, ctx, srv)
	publisher := dial(t, ctx, srv)
	subscriber.read(t, ctx)
	publisher.read(t, ctx)

	subscriber.send(t, ctx, map[string]any{"type": "subscribe", "topic": "order.*", "requestId": "sub-1"})
	ack := subscriber.read(t, ctx)
	require.Equal(t, "subscribed", ack.Type)
	require.Equal(t, "order.*", ack.Topic)
	require.Equal(t, "sub-1", ack.RequestID)

	publisher.send(t, ctx, map[string]any{
		"type":      "publish",
		"topic":     "order.filled",
		"payload":   map[string]any{"symbol": "BTC"},
		"priority":  "HIGH",
		"requestId": "pub-1",
	})
	receipt := publisher.read(t, ctx)
	require.Equal(t, "published", receipt.Type)
	require.Equal(t, "pub-1", receipt.RequestID)
	require.NotNil(t, receipt.Receipt)
	require.Len(t, receipt.Receipt.EventID, 16)

	delivered := subscriber.read(t, ctx)
	require.Equal(t, "event", delivered.Type)
	require.NotNil(t, delivered.Event)
	require.Equal(t, "order.filled", delivered.Event.Topic)
	require.Equal(t, "BTC", delivered.Event.Payload["symbol"])
	require.Equal(t, schema.PriorityHigh, delivered.Event.Priority)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := dial(t, ctx, srv)
	client.read(t, ctx)

	client.send(t, ctx, map[string]any{"type": "subscribe", "topic": "trade.*"})
	require.Equal(t, "subscribed", client.read(t, ctx).Type)

	client.send(t, ctx, map[string]any{"type": "unsubscribe", "topic": "trade.*"})
	require.Equal(t, "unsubscribed", client.read(t, ctx).Type)

	client.send(t, ctx, map[string]any{"type": "publish", "topic": "trade.executed", "payload": map[string]any{}})
	// The publish receipt is the only frame left; no event envelope precedes it.
	require.Equal(t, "published", client.read(t, ctx).Type)
}

func TestMalformedFrameGetsErrorEnvelope(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := dial(t, ctx, srv)
	client.read(t, ctx)

	require.NoError(t, client.conn.Write(ctx, websocket.MessageText, []byte("not json")))
	errEnv := client.read(t, ctx)
	require.Equal(t, "error", errEnv.Type)
	require.Equal(t, "invalid_request", errEnv.Code)

	client.send(t, ctx, map[string]any{"type": "explode"})
	errEnv = client.read(t, ctx)
	require.Equal(t, "error", errEnv.Type)
	require.Equal(t, "invalid_request", errEnv.Code)
}

func TestReplayReturnsHistory(t *testing.T) {
	h, srv := newTestServer(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, topic := range []string{"order.placed", "order.filled", "trade.executed"} {
		_, err := h.Publish(schema.Request{Type: schema.KindPublish, Topic: topic, Payload: map[string]any{}}, "")
		require.NoError(t, err)
	}

	client := dial(t, ctx, srv)
	client.read(t, ctx)

	client.send(t, ctx, map[string]any{"type": "replay", "topic": "order.*", "limit": 10, "requestId": "rep-1"})
	replay := client.read(t, ctx)
	require.Equal(t, "replay", replay.Type)
	require.Equal(t, "rep-1", replay.RequestID)
	require.Len(t, replay.Events, 2)
	require.Equal(t, "order.placed", replay.Events[0].Topic)
	require.Equal(t, "order.filled", replay.Events[1].Topic)
}

func TestInboundRateLimit(t *testing.T) {
	_, srv := newTestServer(t, Options{RateLimit: 1, RateBurst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := dial(t, ctx, srv)
	client.read(t, ctx)

	client.send(t, ctx, map[string]any{"type": "subscribe", "topic": "order.*"})
	require.Equal(t, "subscribed", client.read(t, ctx).Type)

	client.send(t, ctx, map[string]any{"type": "subscribe", "topic": "trade.*"})
	limited := client.read(t, ctx)
	require.Equal(t, "error", limited.Type)
	require.Equal(t, "unavailable", limited.Code)
}
