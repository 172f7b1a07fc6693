package hub

import (
	"context"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vigoferrel/qbtc-futures-system-sub008/errs"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

// Publish validates the request, acknowledges it synchronously, and runs the
// event through the pipeline. Only validation errors reach the caller;
// pipeline failures are handled by the retry manager and observable through
// stats and the DLQ.
func (h *Hub) Publish(req schema.Request, publisherID string) (schema.PublishReceipt, error) {
	if err := req.ValidatePublish(); err != nil {
		return schema.PublishReceipt{}, err
	}
	priority, err := schema.ParsePriority(req.Priority)
	if err != nil {
		return schema.PublishReceipt{}, err
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = schema.DefaultSource
	}

	total := h.stats.RecordAccepted()
	evt := schema.Event{
		ID:          schema.NewEventID(total),
		Topic:       req.Topic,
		Payload:     req.Payload,
		Priority:    priority,
		Source:      source,
		PublisherID: publisherID,
		Timestamp:   time.Now(),
		MaxAttempts: h.opts.MaxAttempts,
	}
	receipt := schema.PublishReceipt{EventID: evt.ID, Topic: evt.Topic, Timestamp: evt.Timestamp}

	h.submit(evt)
	return receipt, nil
}

// resubmit re-enters retried and drained events. They pass the breaker gate
// again like any fresh publish.
func (h *Hub) resubmit(evt schema.Event) {
	h.submit(evt)
}

func (h *Hub) submit(evt schema.Event) {
	if !h.brk.Allow() {
		// Breaker open: shunt straight to the DLQ, bypassing the pipeline.
		h.queue.Offer(evt, time.Now(), errs.New("hub/breaker", errs.CodeUnavailable, errs.WithMessage("circuit breaker open")))
		return
	}
	if err := h.process(evt); err != nil {
		h.stats.RecordFailure()
		if h.failureCounter != nil {
			h.failureCounter.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("topic", evt.Topic)))
		}
		observability.Log().Error("publish pipeline failed",
			observability.F("event_id", evt.ID),
			observability.F("topic", evt.Topic),
			observability.F("error", err))
		h.retry.HandleFailure(evt, err)
	}
}

// process runs the pipeline stages in order: history, routing, broadcast,
// mark processed, stats. Any stage error is a pipeline failure.
func (h *Hub) process(evt schema.Event) error {
	ctx := context.Background()
	start := time.Now()

	h.stateMu.Lock()
	h.ensureTopicLocked(evt.Topic)
	h.stateMu.Unlock()

	h.hist.Append(evt)

	if h.rtr != nil {
		h.rtr.Route(ctx, evt)
	}

	deliveries, err := h.broadcast(evt)
	if err != nil {
		return err
	}

	evt.Processed = true
	elapsed := time.Since(start)
	h.stats.RecordPublished(evt, elapsed)

	if h.publishedCounter != nil {
		h.publishedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("topic", evt.Topic),
			attribute.String("priority", string(evt.Priority)),
			attribute.String("source", evt.Source)))
	}
	if h.publishDuration != nil {
		h.publishDuration.Record(ctx, float64(elapsed.Microseconds())/1000)
	}
	h.recordFanout(ctx, evt, deliveries)
	return nil
}

// broadcast fans the event out to every subscription whose topic pattern
// matches and whose filters pass. Connections that are no longer sendable
// are torn down, never silently skipped.
func (h *Hub) broadcast(evt schema.Event) (int, error) {
	payload, err := json.Marshal(schema.EventEnvelope(evt))
	if err != nil {
		return 0, errs.New("hub/broadcast", errs.CodePipeline, errs.WithMessage("encode event envelope"), errs.WithCause(err))
	}

	h.stateMu.Lock()
	var targets []*connection
	for pattern, subs := range h.stateMu.topics {
		if !h.matcher.Match(pattern, evt.Topic) {
			continue
		}
		for _, sub := range subs {
			if !sub.filters.Match(evt) {
				continue
			}
			if conn, ok := h.stateMu.conns[sub.connectionID]; ok {
				targets = append(targets, conn)
			}
		}
	}
	h.stateMu.Unlock()

	deliveries := 0
	var dead []string
	for _, conn := range targets {
		if err := conn.transport.Send(payload); err != nil {
			dead = append(dead, conn.id)
			continue
		}
		deliveries++
	}
	for _, id := range dead {
		h.Teardown(id, "transport not sendable")
	}
	return deliveries, nil
}
