package db

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 25, cfg.MaxConns)
	assert.Equal(t, 5, cfg.MinConns)
	assert.Equal(t, 30*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.StatementTimeout)
	assert.True(t, cfg.SSLRejectUnauthorized)
	require.NoError(t, cfg.Validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app:secret@db:5432/gramflow")
	t.Setenv("DB_MAX_CONNECTIONS", "40")
	t.Setenv("DB_MIN_CONNECTIONS", "8")
	t.Setenv("DB_IDLE_TIMEOUT_MS", "60000")
	t.Setenv("DB_CONNECT_TIMEOUT_MS", "2500")
	t.Setenv("DB_STATEMENT_TIMEOUT_MS", "15000")
	t.Setenv("DB_SSL_REJECT_UNAUTHORIZED", "false")

	cfg := ConfigFromEnv()
	assert.Equal(t, "postgres://app:secret@db:5432/gramflow", cfg.ConnectionString)
	assert.Equal(t, 40, cfg.MaxConns)
	assert.Equal(t, 8, cfg.MinConns)
	assert.Equal(t, time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(t, 15*time.Second, cfg.StatementTimeout)
	assert.False(t, cfg.SSLRejectUnauthorized)
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
			name:    "zero min",
			mutate:  func(c *Config) { c.MinConns = 0 },
			wantErr: "min connections must be positive",
		},
		{
			name:    "negative min",
			mutate:  func(c *Config) { c.MinConns = -1 },
			wantErr: "min connections must be positive",
		},
		{
			name:    "min above max",
			mutate:  func(c *Config) { c.MinConns = 30 },
			wantErr: "exceeds max connections",
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

func TestConfigDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionString = "postgres://app:secret@db:5432/gramflow"

	dsn, err := cfg.DSN()
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "30000", q.Get("statement_timeout"))
	assert.Equal(t, "require", q.Get("sslmode"))
}

func TestConfigDSN_PreservesExplicitParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionString = "postgres://db/gramflow?sslmode=disable&statement_timeout=100"

	dsn, err := cfg.DSN()
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "100", q.Get("statement_timeout"))
	assert.Equal(t, "disable", q.Get("sslmode"))
}

func TestConfigDSN_SSLPreferWhenNotRejecting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionString = "postgres://db/gramflow"
	cfg.SSLRejectUnauthorized = false

	dsn, err := cfg.DSN()
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "prefer", u.Query().Get("sslmode"))
}

func TestConfigDSN_FailsFastWhenEmpty(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.DSN()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection string not configured")
}
