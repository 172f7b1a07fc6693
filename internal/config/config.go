// Package config manages hub configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vigoferrel/qbtc-futures-system-sub008/errs"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/router"
)

// Duration wraps time.Duration with yaml support for values like "30s".
type Duration struct {
	value time.Duration
}

// D constructs a Duration from a time.Duration.
func D(d time.Duration) Duration {
	return Duration{value: d}
}

// Value returns the wrapped duration.
func (d Duration) Value() time.Duration {
	return d.value
}

// UnmarshalYAML parses Go duration syntax from the yaml node.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil || strings.TrimSpace(node.Value) == "" {
		d.value = 0
		return nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("duration: invalid value %q", node.Value)
	}
	d.value = parsed
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return d.value.String(), nil
}

// ServerConfig holds the transport listen addresses.
type ServerConfig struct {
	Listen      string `yaml:"listen"`
	AdminListen string `yaml:"adminListen"`
}

// BreakerConfig tunes the publish circuit breaker.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failureThreshold"`
	ResetTimeout     Duration `yaml:"resetTimeout"`
	EvalInterval     Duration `yaml:"evalInterval"`
	DrainLimit       int      `yaml:"drainLimit"`
}

// RetryConfig tunes the linear-backoff retry path.
type RetryConfig struct {
	MaxAttempts int      `yaml:"maxAttempts"`
	BaseDelay   Duration `yaml:"baseDelay"`
}

// DLQConfig bounds the dead-letter queue.
type DLQConfig struct {
	Capacity int `yaml:"capacity"`
}

// HistoryConfig bounds the replayable event history.
type HistoryConfig struct {
	Capacity      int      `yaml:"capacity"`
	Retention     Duration `yaml:"retention"`
	SweepInterval Duration `yaml:"sweepInterval"`
}

// ConnectionsConfig tunes subscriber connection handling.
type ConnectionsConfig struct {
	LivenessWindow Duration `yaml:"livenessWindow"`
	SweepInterval  Duration `yaml:"sweepInterval"`
	SendBuffer     int      `yaml:"sendBuffer"`
	RateLimit      float64  `yaml:"rateLimit"`
	RateBurst      int      `yaml:"rateBurst"`
}

// ServiceConfig describes a downstream service collaborator.
type ServiceConfig struct {
	Notify string `yaml:"notify"`
	Health string `yaml:"health"`
}

// HealthConfig tunes downstream health polling.
type HealthConfig struct {
	PollInterval Duration `yaml:"pollInterval"`
}

// NotifyConfig sizes the fire-and-forget dispatch pool.
type NotifyConfig struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

// TelemetryConfig configures the OTLP metric exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Config is the full hub configuration tree.
type Config struct {
	Environment string                   `yaml:"environment"`
	Server      ServerConfig             `yaml:"server"`
	Breaker     BreakerConfig            `yaml:"breaker"`
	Retry       RetryConfig              `yaml:"retry"`
	DLQ         DLQConfig                `yaml:"dlq"`
	History     HistoryConfig            `yaml:"history"`
	Connections ConnectionsConfig        `yaml:"connections"`
	Routing     router.Tables            `yaml:"routing"`
	Services    map[string]ServiceConfig `yaml:"services"`
	Health      HealthConfig             `yaml:"health"`
	Notify      NotifyConfig             `yaml:"notify"`
	Telemetry   TelemetryConfig          `yaml:"telemetry"`
}

// Default returns the hub defaults used when no file overrides them.
func Default() Config {
	return Config{
		Environment: "prod",
		Server: ServerConfig{
			Listen:      ":8080",
			AdminListen: ":8081",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 50,
			ResetTimeout:     D(60 * time.Second),
			EvalInterval:     D(30 * time.Second),
			DrainLimit:       10,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   D(time.Second),
		},
		DLQ: DLQConfig{Capacity: 1000},
		History: HistoryConfig{
			Capacity:      10000,
			Retention:     D(24 * time.Hour),
			SweepInterval: D(5 * time.Minute),
		},
		Connections: ConnectionsConfig{
			LivenessWindow: D(5 * time.Minute),
			SweepInterval:  D(5 * time.Minute),
			SendBuffer:     64,
			RateLimit:      50,
			RateBurst:      100,
		},
		Services: make(map[string]ServiceConfig),
		Health:   HealthConfig{PollInterval: D(30 * time.Second)},
		Notify:   NotifyConfig{Workers: 4, Queue: 256},
		Telemetry: TelemetryConfig{
			ServiceName: "qbtc-event-hub",
		},
	}
}

// LoadOrDefault reads the configuration file when present, overlaying the
// defaults, then applies environment overrides. The second return reports
// whether a file was loaded.
func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()

	loaded := false
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, false, fmt.Errorf("parse config %s: %w", path, err)
			}
			loaded = true
		case os.IsNotExist(err):
		default:
			return Config{}, false, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, loaded, nil
}

func applyEnv(cfg *Config) {
	if env := strings.TrimSpace(os.Getenv("QBTC_HUB_ENV")); env != "" {
		cfg.Environment = strings.ToLower(env)
	}
	if listen := strings.TrimSpace(os.Getenv("QBTC_HUB_LISTEN")); listen != "" {
		cfg.Server.Listen = listen
	}
	if listen := strings.TrimSpace(os.Getenv("QBTC_HUB_ADMIN_LISTEN")); listen != "" {
		cfg.Server.AdminListen = listen
	}
	if endpoint := strings.TrimSpace(os.Getenv("QBTC_HUB_OTLP_ENDPOINT")); endpoint != "" {
		cfg.Telemetry.OTLPEndpoint = endpoint
	}
}

// Validate rejects configurations the hub cannot run with.
func (c Config) Validate() error {
	if c.Breaker.FailureThreshold <= 0 {
		return errs.New("config/breaker", errs.CodeInvalid, errs.WithMessage("failureThreshold must be >0"))
	}
	if c.Breaker.ResetTimeout.Value() <= 0 {
		return errs.New("config/breaker", errs.CodeInvalid, errs.WithMessage("resetTimeout must be >0"))
	}
	if c.Retry.MaxAttempts <= 0 {
		return errs.New("config/retry", errs.CodeInvalid, errs.WithMessage("maxAttempts must be >0"))
	}
	if c.Retry.BaseDelay.Value() <= 0 {
		return errs.New("config/retry", errs.CodeInvalid, errs.WithMessage("baseDelay must be >0"))
	}
	if c.DLQ.Capacity <= 0 {
		return errs.New("config/dlq", errs.CodeInvalid, errs.WithMessage("capacity must be >0"))
	}
	if c.History.Capacity <= 0 {
		return errs.New("config/history", errs.CodeInvalid, errs.WithMessage("capacity must be >0"))
	}
	if c.Connections.SendBuffer <= 0 {
		return errs.New("config/connections", errs.CodeInvalid, errs.WithMessage("sendBuffer must be >0"))
	}
	if c.Notify.Workers <= 0 {
		return errs.New("config/notify", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	return nil
}

// NotifyEndpoints extracts the service→notify-endpoint table.
func (c Config) NotifyEndpoints() map[string]string {
	out := make(map[string]string, len(c.Services))
	for service, svc := range c.Services {
		if strings.TrimSpace(svc.Notify) != "" {
			out[service] = svc.Notify
		}
	}
	return out
}

// HealthEndpoints extracts the service→health-endpoint table.
func (c Config) HealthEndpoints() map[string]string {
	out := make(map[string]string, len(c.Services))
	for service, svc := range c.Services {
		if strings.TrimSpace(svc.Health) != "" {
			out[service] = svc.Health
		}
	}
	return out
}
