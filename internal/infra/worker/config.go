package worker

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gramflow/pkg/config"
)

// Config holds the configuration for the worker component: the schedule of
// its maintenance jobs, the outbox drain loop, and the diagnostic servers.
type Config struct {
	// PruneSchedule is the cron expression for dead-letter pruning.
	// Default: "15 4 * * *" (every day at 04:15)
	PruneSchedule string `yaml:"prune_schedule"`

	// Timezone is the IANA timezone name for cron scheduling.
	Timezone string `yaml:"timezone"`

	// DeadLetterTTL is how long dead-letter entries are retained before pruning.
	DeadLetterTTL time.Duration `yaml:"dead_letter_ttl"`

	// DrainInterval is how often the outbox drain loop claims pending jobs.
	DrainInterval time.Duration `yaml:"drain_interval"`

	// DrainBatch is the maximum number of jobs claimed per drain pass.
	DrainBatch int `yaml:"drain_batch"`

	// DispatchAttempts is the retry budget per dispatched job.
	DispatchAttempts int `yaml:"dispatch_attempts"`

	// HealthPort is the port for the health check HTTP server.
	HealthPort int `yaml:"health_port"`

	// MetricsPort is the port for the Prometheus metrics server.
	MetricsPort int `yaml:"metrics_port"`

	// GRPCHealthPort is the port for the gRPC health service. Zero disables it.
	GRPCHealthPort int `yaml:"grpc_health_port"`

	// MonitorInterval is how often the pool health monitor runs.
	MonitorInterval time.Duration `yaml:"monitor_interval"`
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig() Config {
	return Config{
		PruneSchedule:    "15 4 * * *",
		Timezone:         "UTC",
		DeadLetterTTL:    14 * 24 * time.Hour,
		DrainInterval:    5 * time.Second,
		DrainBatch:       50,
		DispatchAttempts: 3,
		HealthPort:       9091,
		MetricsPort:      9090,
		GRPCHealthPort:   9092,
		MonitorInterval:  time.Minute,
	}
}

// LoadConfig builds the worker configuration from environment variables,
// optionally overlaid with a YAML file named by WORKER_CONFIG_FILE.
// Invalid values fall back to defaults with a logged warning (fail-open).
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("WORKER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-provided path
		if err != nil {
			return cfg, fmt.Errorf("read worker config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse worker config file: %w", err)
		}
	}

	cfg.PruneSchedule = config.GetEnvString("WORKER_PRUNE_SCHEDULE", cfg.PruneSchedule)
	cfg.Timezone = config.GetEnvString("WORKER_TIMEZONE", cfg.Timezone)
	cfg.DeadLetterTTL = config.GetEnvDuration("WORKER_DEAD_LETTER_TTL", cfg.DeadLetterTTL)
	cfg.DrainInterval = config.GetEnvDuration("WORKER_DRAIN_INTERVAL", cfg.DrainInterval)
	cfg.DrainBatch = config.GetEnvInt("WORKER_DRAIN_BATCH", cfg.DrainBatch)
	cfg.DispatchAttempts = config.GetEnvInt("WORKER_DISPATCH_ATTEMPTS", cfg.DispatchAttempts)
	cfg.HealthPort = config.GetEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort)
	cfg.MetricsPort = config.GetEnvInt("WORKER_METRICS_PORT", cfg.MetricsPort)
	cfg.GRPCHealthPort = config.GetEnvInt("WORKER_GRPC_HEALTH_PORT", cfg.GRPCHealthPort)
	cfg.MonitorInterval = config.GetEnvDuration("WORKER_MONITOR_INTERVAL", cfg.MonitorInterval)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration bounds.
func (c Config) Validate() error {
	if c.DrainBatch <= 0 {
		return fmt.Errorf("worker config: drain batch must be positive, got %d", c.DrainBatch)
	}
	if c.DrainInterval <= 0 {
		return fmt.Errorf("worker config: drain interval must be positive, got %s", c.DrainInterval)
	}
	if c.DispatchAttempts <= 0 {
		return fmt.Errorf("worker config: dispatch attempts must be positive, got %d", c.DispatchAttempts)
	}
	if c.HealthPort < 1024 || c.HealthPort > 65535 {
		return fmt.Errorf("worker config: health port out of range: %d", c.HealthPort)
	}
	if c.MetricsPort < 1024 || c.MetricsPort > 65535 {
		return fmt.Errorf("worker config: metrics port out of range: %d", c.MetricsPort)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("worker config: invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}
