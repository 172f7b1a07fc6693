// Command hub launches the QBTC event hub: the subscriber WebSocket endpoint,
// the administrative API, and the background housekeeping loops.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/config"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/health"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/hub"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/match"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/notify"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/router"
	httpserver "github.com/vigoferrel/qbtc-futures-system-sub008/internal/server/http"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/server/ws"
	"github.com/vigoferrel/qbtc-futures-system-sub008/lib/async"
	"github.com/vigoferrel/qbtc-futures-system-sub008/lib/telemetry"
)

const (
	defaultConfigPath        = "config/hub.yaml"
	shutdownTimeout          = 30 * time.Second
	serverShutdownTimeout    = 5 * time.Second
	poolShutdownTimeout      = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	readHeaderTimeout        = 5 * time.Second
	downstreamTimeout        = 10 * time.Second
)

func main() {
	cfgPath := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	observability.SetLogger(observability.NewSlogLogger(logger))

	cfg, loadedFromFile, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fatal(logger, "load config", err)
	}
	if !loadedFromFile {
		logger.Info("configuration file not found, using defaults", "path", cfgPath)
	}
	if err := cfg.Validate(); err != nil {
		fatal(logger, "validate config", err)
	}
	logger.Info("configuration initialised",
		"env", cfg.Environment,
		"services", len(cfg.Services))

	_, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		fatal(logger, "initialize telemetry", err)
	}

	dispatchPool, err := async.NewPool(cfg.Notify.Workers, cfg.Notify.Queue)
	if err != nil {
		fatal(logger, "initialise dispatch pool", err)
	}

	client := &http.Client{Timeout: downstreamTimeout}
	notifier := notify.NewHTTPNotifier(cfg.NotifyEndpoints(), dispatchPool, client)
	poller := health.NewPoller(cfg.HealthEndpoints(), cfg.Health.PollInterval.Value(), client)

	matcher := match.NewMatcher()
	engine := hub.New(hub.Options{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout.Value(),
		EvalInterval:     cfg.Breaker.EvalInterval.Value(),
		DrainLimit:       cfg.Breaker.DrainLimit,
		MaxAttempts:      cfg.Retry.MaxAttempts,
		RetryBaseDelay:   cfg.Retry.BaseDelay.Value(),
		DLQCapacity:      cfg.DLQ.Capacity,
		HistoryCapacity:  cfg.History.Capacity,
		HistoryRetention: cfg.History.Retention.Value(),
		HistorySweep:     cfg.History.SweepInterval.Value(),
		LivenessWindow:   cfg.Connections.LivenessWindow.Value(),
		ConnectionSweep:  cfg.Connections.SweepInterval.Value(),
		Router:           router.New(cfg.Routing, matcher, notifier, poller),
		Matcher:          matcher,
	})

	wsServer := ws.NewServer(engine, ws.Options{
		SendBuffer: cfg.Connections.SendBuffer,
		RateLimit:  cfg.Connections.RateLimit,
		RateBurst:  cfg.Connections.RateBurst,
	})

	subscriberMux := http.NewServeMux()
	subscriberMux.Handle("/ws", wsServer)

	subscriberServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           subscriberMux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	adminServer := &http.Server{
		Addr:              cfg.Server.AdminListen,
		Handler:           httpserver.NewHandler(engine, poller),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() { engine.Run(ctx) })
	lifecycle.Go(func() { poller.Run(ctx) })
	startServer(&lifecycle, logger, "subscriber", subscriberServer)
	startServer(&lifecycle, logger, "admin", adminServer)

	logger.Info("event hub started",
		"listen", cfg.Server.Listen,
		"admin", cfg.Server.AdminListen)
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	shutdownStart := time.Now()

	stopServer(shutdownCtx, logger, "subscriber", subscriberServer)
	stopServer(shutdownCtx, logger, "admin", adminServer)

	cancel()
	lifecycle.Wait()
	engine.Close()

	poolCtx, poolCancel := context.WithTimeout(shutdownCtx, poolShutdownTimeout)
	if err := dispatchPool.Shutdown(poolCtx); err != nil {
		logger.Warn("dispatch pool shutdown", "error", err)
	}
	poolCancel()

	telemetryCtx, telemetryCancel := context.WithTimeout(shutdownCtx, telemetryShutdownTimeout)
	if err := telemetryShutdown(telemetryCtx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}
	telemetryCancel()

	logger.Info("shutdown completed", "elapsed", time.Since(shutdownStart).String())
}

func parseFlags() string {
	cfgPath := flag.String("config", defaultConfigPath, fmt.Sprintf("Path to hub configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func startServer(lifecycle *conc.WaitGroup, logger *slog.Logger, name string, server *http.Server) {
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "name", name, "error", err)
		}
	})
}

func stopServer(ctx context.Context, logger *slog.Logger, name string, server *http.Server) {
	stopCtx, cancel := context.WithTimeout(ctx, serverShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(stopCtx); err != nil {
		logger.Warn("server shutdown", "name", name, "error", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
