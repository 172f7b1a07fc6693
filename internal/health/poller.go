// Package health polls downstream service health endpoints and exposes a
// reachability view consulted before routing notifications.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	concpool "github.com/sourcegraph/conc/pool"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
)

const (
	defaultProbeTimeout = 3 * time.Second
	probeAttempts       = 3
	maxProbeBackoff     = 2 * time.Second
)

// Poller periodically probes the configured health endpoints. Services
// without a configured endpoint are treated as reachable.
type Poller struct {
	client    *http.Client
	interval  time.Duration
	endpoints map[string]string

	mu        sync.RWMutex
	reachable map[string]bool
}

// NewPoller constructs a poller for the provided service→endpoint table.
func NewPoller(endpoints map[string]string, interval time.Duration, client *http.Client) *Poller {
	if client == nil {
		client = &http.Client{Timeout: defaultProbeTimeout}
	}
	poller := new(Poller)
	poller.client = client
	poller.interval = interval
	poller.endpoints = make(map[string]string, len(endpoints))
	poller.reachable = make(map[string]bool, len(endpoints))
	for service, endpoint := range endpoints {
		poller.endpoints[service] = endpoint
		// Optimistic until the first poll completes.
		poller.reachable[service] = true
	}
	return poller
}

// Reachable reports whether the named service accepted its last health probe.
func (p *Poller) Reachable(service string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	reachable, known := p.reachable[service]
	if !known {
		return true
	}
	return reachable
}

// Snapshot copies the current reachability table.
func (p *Poller) Snapshot() map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]bool, len(p.reachable))
	for service, reachable := range p.reachable {
		out[service] = reachable
	}
	return out
}

// Run polls every interval until the context is cancelled. Probes run
// concurrently; a slow downstream never blocks event delivery.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	workers := concpool.New().WithContext(ctx)
	for service, endpoint := range p.endpoints {
		workers.Go(func(ctx context.Context) error {
			up := p.probe(ctx, endpoint)
			p.mu.Lock()
			previous := p.reachable[service]
			p.reachable[service] = up
			p.mu.Unlock()
			if previous != up {
				observability.Log().Info("downstream reachability changed",
					observability.F("service", service),
					observability.F("reachable", up))
			}
			return nil
		})
	}
	_ = workers.Wait()
}

// probe retries a failed check with exponential backoff before declaring the
// service unreachable for this cycle.
func (p *Poller) probe(ctx context.Context, endpoint string) bool {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxProbeBackoff

	for attempt := 0; attempt < probeAttempts; attempt++ {
		if p.check(ctx, endpoint) {
			return true
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxProbeBackoff
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(sleep):
		}
	}
	return false
}

func (p *Poller) check(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
