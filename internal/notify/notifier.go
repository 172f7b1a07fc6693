// Package notify delivers routed events to named downstream services.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vigoferrel/qbtc-futures-system-sub008/errs"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
	"github.com/vigoferrel/qbtc-futures-system-sub008/lib/async"
)

const defaultNotifyTimeout = 5 * time.Second

// Notifier pushes an event to a named downstream service. Delivery is
// fire-and-forget; no acknowledgement is awaited.
type Notifier interface {
	Notify(ctx context.Context, service string, evt schema.Event)
}

// HTTPNotifier posts event envelopes to per-service HTTP endpoints through a
// bounded worker pool so the publish pipeline never blocks on network I/O.
type HTTPNotifier struct {
	client    *http.Client
	endpoints map[string]string
	pool      *async.Pool
}

// NewHTTPNotifier constructs a notifier for the service→endpoint table.
func NewHTTPNotifier(endpoints map[string]string, pool *async.Pool, client *http.Client) *HTTPNotifier {
	if client == nil {
		client = &http.Client{Timeout: defaultNotifyTimeout}
	}
	notifier := new(HTTPNotifier)
	notifier.client = client
	notifier.endpoints = make(map[string]string, len(endpoints))
	for service, endpoint := range endpoints {
		notifier.endpoints[service] = endpoint
	}
	notifier.pool = pool
	return notifier
}

// Notify dispatches the event to the named service in the background.
func (n *HTTPNotifier) Notify(ctx context.Context, service string, evt schema.Event) {
	endpoint, ok := n.endpoints[service]
	if !ok {
		observability.Log().Debug("no endpoint for routed service", observability.F("service", service))
		return
	}

	snapshot := evt.Clone()
	err := n.pool.Submit(ctx, func(taskCtx context.Context) error {
		return n.post(taskCtx, service, endpoint, snapshot)
	})
	if err != nil {
		observability.Log().Debug("notify dispatch rejected",
			observability.F("service", service),
			observability.F("error", err))
	}
}

func (n *HTTPNotifier) post(ctx context.Context, service, endpoint string, evt schema.Event) error {
	body, err := json.Marshal(schema.EventEnvelope(evt))
	if err != nil {
		return errs.New("notify/encode", errs.CodeInvalid, errs.WithCause(err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errs.New("notify/send", errs.CodeTransport, errs.WithMessage(service), errs.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return errs.New("notify/send", errs.CodeTransport, errs.WithMessage(fmt.Sprintf("%s returned %d", service, resp.StatusCode)))
	}
	return nil
}
