package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for connector-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3900"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Connector behaviour tuning
	Connector ConnectorConfig `yaml:"connector"`

	// Encryption key for connection secrets.
	// A 32-byte key, base64 encoded (openssl rand -base64 32), or a passphrase.
	// Server will fail to start if this is not set.
	CredentialsKey string `yaml:"-" env:"CONNECTOR_CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"hatchpad"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"connector_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	// ConnMaxLifetimeMinutes recycles pooled connections after this age.
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" env:"PGCONN_MAX_LIFETIME_MINUTES" env-default:"60"`
	// ConnMaxIdleMinutes closes pooled connections idle this long.
	ConnMaxIdleMinutes int    `yaml:"conn_max_idle_minutes" env:"PGCONN_MAX_IDLE_MINUTES" env-default:"30"`
	SSLMode            string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath     string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ConnMaxLifetime returns the pooled connection lifetime as a duration.
func (c *DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// ConnMaxIdleTime returns the pooled connection idle cutoff as a duration.
func (c *DatabaseConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(c.ConnMaxIdleMinutes) * time.Minute
}

// ConnectorConfig holds sync engine tuning.
type ConnectorConfig struct {
	// ValidateTimeoutSeconds bounds a single ValidateConnection probe.
	ValidateTimeoutSeconds int `yaml:"validate_timeout_seconds" env:"CONNECTOR_VALIDATE_TIMEOUT_SECONDS" env-default:"15"`
	// SyncTimeoutSeconds bounds a single adapter Sync call.
	SyncTimeoutSeconds int `yaml:"sync_timeout_seconds" env:"CONNECTOR_SYNC_TIMEOUT_SECONDS" env-default:"90"`
	// AssetInsertBatchSize is the chunk size for bulk asset inserts.
	AssetInsertBatchSize int `yaml:"asset_insert_batch_size" env:"CONNECTOR_ASSET_INSERT_BATCH_SIZE" env-default:"200"`
	// StaleRunTimeoutMinutes is how long a RUNNING run may go without
	// finishing before the janitor demotes it to error.
	StaleRunTimeoutMinutes int `yaml:"stale_run_timeout_minutes" env:"CONNECTOR_STALE_RUN_TIMEOUT_MINUTES" env-default:"30"`
	// SweepIntervalMinutes is how often the stale-run janitor wakes up.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" env:"CONNECTOR_SWEEP_INTERVAL_MINUTES" env-default:"5"`
	// RecentRunsPerConnection is how many runs the listing endpoint embeds.
	RecentRunsPerConnection int `yaml:"recent_runs_per_connection" env:"CONNECTOR_RECENT_RUNS_PER_CONNECTION" env-default:"5"`
}

// ValidateTimeout returns the probe timeout as a duration.
func (c *ConnectorConfig) ValidateTimeout() time.Duration {
	return time.Duration(c.ValidateTimeoutSeconds) * time.Second
}

// SyncTimeout returns the adapter sync timeout as a duration.
func (c *ConnectorConfig) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutSeconds) * time.Second
}

// StaleRunTimeout returns the stale-run cutoff as a duration.
func (c *ConnectorConfig) StaleRunTimeout() time.Duration {
	return time.Duration(c.StaleRunTimeoutMinutes) * time.Minute
}

// SweepInterval returns the janitor wake-up period as a duration.
func (c *ConnectorConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if cfg.CredentialsKey == "" {
		return nil, fmt.Errorf("CONNECTOR_CREDENTIALS_KEY must be set")
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
