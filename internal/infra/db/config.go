package db

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"gramflow/pkg/config"
)

// Config holds connection pool configuration for the Postgres access layer.
type Config struct {
	// ConnectionString is the Postgres DSN. Construction fails fast when empty.
	ConnectionString string

	// MaxConns and MinConns bound the pool. Invariant: 0 < MinConns <= MaxConns.
	MaxConns int
	MinConns int

	// IdleTimeout is how long an idle connection may live before being closed.
	IdleTimeout time.Duration

	// ConnectTimeout bounds how long a caller waits for a pool slot.
	ConnectTimeout time.Duration

	// StatementTimeout is applied server-side as a session runtime parameter.
	StatementTimeout time.Duration

	// SSLRejectUnauthorized maps to sslmode: require when true, prefer when false.
	SSLRejectUnauthorized bool
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxConns:              25,
		MinConns:              5,
		IdleTimeout:           30 * time.Minute,
		ConnectTimeout:        10 * time.Second,
		StatementTimeout:      30 * time.Second,
		SSLRejectUnauthorized: true,
	}
}

// ConfigFromEnv reads pool configuration from environment variables,
// falling back to defaults for anything unset or invalid.
func ConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		ConnectionString:      config.GetEnvString("DATABASE_URL", ""),
		MaxConns:              config.GetEnvInt("DB_MAX_CONNECTIONS", def.MaxConns),
		MinConns:              config.GetEnvInt("DB_MIN_CONNECTIONS", def.MinConns),
		IdleTimeout:           config.GetEnvMillis("DB_IDLE_TIMEOUT_MS", def.IdleTimeout),
		ConnectTimeout:        config.GetEnvMillis("DB_CONNECT_TIMEOUT_MS", def.ConnectTimeout),
		StatementTimeout:      config.GetEnvMillis("DB_STATEMENT_TIMEOUT_MS", def.StatementTimeout),
		SSLRejectUnauthorized: config.GetEnvBool("DB_SSL_REJECT_UNAUTHORIZED", def.SSLRejectUnauthorized),
	}
}

// Validate checks pool sizing invariants.
func (c Config) Validate() error {
	if c.MinConns <= 0 {
		return fmt.Errorf("db config: min connections must be positive, got %d", c.MinConns)
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("db config: min connections (%d) exceeds max connections (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// DSN returns the connection string with statement timeout and sslmode applied
// as URL parameters. pgx forwards unrecognized parameters to the server as
// session runtime settings, so statement_timeout takes effect per connection.
func (c Config) DSN() (string, error) {
	if c.ConnectionString == "" {
		return "", fmt.Errorf("db config: connection string not configured")
	}

	u, err := url.Parse(c.ConnectionString)
	if err != nil {
		return "", fmt.Errorf("db config: parse connection string: %w", err)
	}

	q := u.Query()
	if c.StatementTimeout > 0 && q.Get("statement_timeout") == "" {
		q.Set("statement_timeout", strconv.FormatInt(c.StatementTimeout.Milliseconds(), 10))
	}
	if q.Get("sslmode") == "" {
		if c.SSLRejectUnauthorized {
			q.Set("sslmode", "require")
		} else {
			q.Set("sslmode", "prefer")
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
