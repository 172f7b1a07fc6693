// Package hub implements the event routing and delivery engine: topic
// subscriptions, the circuit-breaker-gated publish pipeline, broadcast
// fan-out, and the periodic housekeeping sweeps.
package hub

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/breaker"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/dlq"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/history"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/match"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/router"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/stats"
)

// Options configures the hub engine.
type Options struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	EvalInterval     time.Duration
	DrainLimit       int

	MaxAttempts    int
	RetryBaseDelay time.Duration
	DLQCapacity    int

	HistoryCapacity  int
	HistoryRetention time.Duration
	HistorySweep     time.Duration

	LivenessWindow  time.Duration
	ConnectionSweep time.Duration

	Router  *router.Router
	Matcher *match.Matcher
}

func (o Options) normalize() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 50
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = 60 * time.Second
	}
	if o.EvalInterval <= 0 {
		o.EvalInterval = 30 * time.Second
	}
	if o.DrainLimit <= 0 {
		o.DrainLimit = 10
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.DLQCapacity <= 0 {
		o.DLQCapacity = 1000
	}
	if o.HistoryCapacity <= 0 {
		o.HistoryCapacity = 10000
	}
	if o.HistoryRetention <= 0 {
		o.HistoryRetention = 24 * time.Hour
	}
	if o.HistorySweep <= 0 {
		o.HistorySweep = 5 * time.Minute
	}
	if o.LivenessWindow <= 0 {
		o.LivenessWindow = 5 * time.Minute
	}
	if o.ConnectionSweep <= 0 {
		o.ConnectionSweep = 5 * time.Minute
	}
	if o.Matcher == nil {
		o.Matcher = match.NewMatcher()
	}
	return o
}

// Hub owns all mutable engine state. Every mutation of the topic and
// connection registries and every pipeline run happens under one lock,
// preserving the single-logical-writer property the engine relies on.
type Hub struct {
	opts    Options
	matcher *match.Matcher
	rtr     *router.Router
	brk     *breaker.Breaker
	queue   *dlq.Queue
	retry   *dlq.RetryManager
	hist    *history.Store
	stats   *stats.Stats

	stateMu stateLock

	publishedCounter metric.Int64Counter
	fanoutHistogram  metric.Int64Histogram
	failureCounter   metric.Int64Counter
	publishDuration  metric.Float64Histogram
	subscriberGauge  metric.Int64UpDownCounter
	dlqDepthGauge    metric.Int64ObservableGauge
}

// New constructs a hub engine from the provided options.
func New(opts Options) *Hub {
	opts = opts.normalize()

	h := new(Hub)
	h.opts = opts
	h.matcher = opts.Matcher
	h.rtr = opts.Router
	h.brk = breaker.New(opts.FailureThreshold, opts.ResetTimeout)
	h.queue = dlq.NewQueue(opts.DLQCapacity)
	h.retry = dlq.NewRetryManager(h.queue, h.brk, opts.RetryBaseDelay, h.resubmit)
	h.hist = history.NewStore(opts.HistoryCapacity, opts.HistoryRetention, h.matcher)
	h.stats = stats.New()
	h.stateMu.topics = make(map[string][]*subscription)
	h.stateMu.conns = make(map[string]*connection)

	meter := otel.Meter("hub")
	h.publishedCounter, _ = meter.Int64Counter("hub.events.published",
		metric.WithDescription("Number of events processed by the publish pipeline"),
		metric.WithUnit("{event}"))
	h.fanoutHistogram, _ = meter.Int64Histogram("hub.broadcast.fanout",
		metric.WithDescription("Number of subscriber deliveries per broadcast"),
		metric.WithUnit("{delivery}"))
	h.failureCounter, _ = meter.Int64Counter("hub.pipeline.failures",
		metric.WithDescription("Number of publish pipeline failures"),
		metric.WithUnit("{failure}"))
	h.publishDuration, _ = meter.Float64Histogram("hub.publish.duration",
		metric.WithDescription("Latency of publish pipeline runs"),
		metric.WithUnit("ms"))
	h.subscriberGauge, _ = meter.Int64UpDownCounter("hub.subscriptions",
		metric.WithDescription("Number of active subscriptions"),
		metric.WithUnit("{subscription}"))
	h.dlqDepthGauge, _ = meter.Int64ObservableGauge("hub.dlq.depth",
		metric.WithDescription("Number of entries in the dead-letter queue"),
		metric.WithUnit("{entry}"))
	if h.dlqDepthGauge != nil {
		_, _ = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(h.dlqDepthGauge, int64(h.queue.Len()))
			return nil
		}, h.dlqDepthGauge)
	}

	return h
}

// Breaker exposes the circuit breaker for administrative operations.
func (h *Hub) Breaker() *breaker.Breaker { return h.brk }

// DLQ exposes the dead-letter queue for administrative inspection.
func (h *Hub) DLQ() *dlq.Queue { return h.queue }

// History exposes the replayable event log.
func (h *Hub) History() *history.Store { return h.hist }

// Stats exposes the aggregate counters.
func (h *Hub) Stats() *stats.Stats { return h.stats }

// Router exposes the routing tables, or nil when routing is disabled.
func (h *Hub) Router() *router.Router { return h.rtr }

// DrainDLQ resubmits up to limit dead-letter entries through the pipeline
// with their attempt counters reset. Administrative operation; the breaker
// reset path uses the same mechanism.
func (h *Hub) DrainDLQ(limit int) int {
	if limit <= 0 {
		limit = h.opts.DrainLimit
	}
	return h.retry.Drain(limit)
}

// Run drives the periodic housekeeping tasks until ctx is cancelled:
// breaker-reset evaluation, history retention sweep, and stale-connection
// eviction. All timers stop deterministically on shutdown.
func (h *Hub) Run(ctx context.Context) {
	var wg conc.WaitGroup
	wg.Go(func() { h.tick(ctx, h.opts.EvalInterval, h.evaluateBreaker) })
	wg.Go(func() { h.tick(ctx, h.opts.HistorySweep, h.sweepHistory) })
	wg.Go(func() { h.tick(ctx, h.opts.ConnectionSweep, h.sweepConnections) })
	wg.Wait()
}

func (h *Hub) tick(ctx context.Context, interval time.Duration, fn func(now time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}

func (h *Hub) evaluateBreaker(now time.Time) {
	if !h.brk.Evaluate(now) {
		return
	}
	drained := h.retry.Drain(h.opts.DrainLimit)
	observability.Log().Info("circuit breaker reset",
		observability.F("drained", drained))
}

func (h *Hub) sweepHistory(now time.Time) {
	removed := h.hist.SweepOlderThan(now.Add(-h.opts.HistoryRetention))
	if removed > 0 {
		observability.Log().Debug("history retention sweep",
			observability.F("removed", removed))
	}
}

// Close cancels pending retries and tears down every live connection.
func (h *Hub) Close() {
	h.retry.Close()
	for _, id := range h.connectionIDs() {
		h.Teardown(id, "hub shutdown")
	}
}

func (h *Hub) recordFanout(ctx context.Context, evt schema.Event, deliveries int) {
	if h.fanoutHistogram == nil {
		return
	}
	h.fanoutHistogram.Record(ctx, int64(deliveries), metric.WithAttributes(
		attribute.String("topic", evt.Topic),
		attribute.String("priority", string(evt.Priority)),
		attribute.String("source", evt.Source)))
}
