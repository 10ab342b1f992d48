package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "15 4 * * *", cfg.PruneSchedule)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 14*24*time.Hour, cfg.DeadLetterTTL)
	assert.Equal(t, 5*time.Second, cfg.DrainInterval)
	assert.Equal(t, 50, cfg.DrainBatch)
	assert.Equal(t, 3, cfg.DispatchAttempts)
	assert.Equal(t, 9091, cfg.HealthPort)
	assert.Equal(t, 9090, cfg.MetricsPort)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("WORKER_PRUNE_SCHEDULE", "0 2 * * *")
	t.Setenv("WORKER_DEAD_LETTER_TTL", "168h")
	t.Setenv("WORKER_DRAIN_BATCH", "25")
	t.Setenv("WORKER_HEALTH_PORT", "8081")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "0 2 * * *", cfg.PruneSchedule)
	assert.Equal(t, 7*24*time.Hour, cfg.DeadLetterTTL)
	assert.Equal(t, 25, cfg.DrainBatch)
	assert.Equal(t, 8081, cfg.HealthPort)
	assert.Equal(t, 9090, cfg.MetricsPort, "untouched values keep defaults")
}

func TestLoadConfig_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	data := []byte("prune_schedule: \"30 3 * * *\"\ndrain_batch: 10\nmetrics_port: 9100\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("WORKER_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "30 3 * * *", cfg.PruneSchedule)
	assert.Equal(t, 10, cfg.DrainBatch)
	assert.Equal(t, 9100, cfg.MetricsPort)
}

func TestLoadConfig_EnvWinsOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("drain_batch: 10\n"), 0o600))
	t.Setenv("WORKER_CONFIG_FILE", path)
	t.Setenv("WORKER_DRAIN_BATCH", "77")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 77, cfg.DrainBatch)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("WORKER_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read worker config file")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero drain batch",
			mutate:  func(c *Config) { c.DrainBatch = 0 },
			wantErr: "drain batch must be positive",
		},
		{
			name:    "zero drain interval",
			mutate:  func(c *Config) { c.DrainInterval = 0 },
			wantErr: "drain interval must be positive",
		},
		{
			name:    "zero dispatch attempts",
			mutate:  func(c *Config) { c.DispatchAttempts = 0 },
			wantErr: "dispatch attempts must be positive",
		},
		{
			name:    "privileged health port",
			mutate:  func(c *Config) { c.HealthPort = 80 },
			wantErr: "health port out of range",
		},
		{
			name:    "metrics port too high",
			mutate:  func(c *Config) { c.MetricsPort = 70000 },
			wantErr: "metrics port out of range",
		},
		{
			name:    "bogus timezone",
			mutate:  func(c *Config) { c.Timezone = "Mars/Olympus" },
			wantErr: "invalid timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
