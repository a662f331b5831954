package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the table engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Catalog database
	Database DatabaseConfig `yaml:"database"`

	// Live schema reads during sync
	Introspection IntrospectionConfig `yaml:"introspection"`

	Audit AuditConfig `yaml:"audit"`

	Catalog CatalogConfig `yaml:"catalog"`
}

// DatabaseConfig selects the dialect and holds its connection settings.
type DatabaseConfig struct {
	// Dialect is "sqlite" (embedded file) or "sqlserver" (client/server).
	Dialect      string          `yaml:"dialect" env:"DB_DIALECT" env-default:"sqlite"`
	MaxOpenConns int             `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	SQLite       SQLiteConfig    `yaml:"sqlite"`
	SQLServer    SQLServerConfig `yaml:"sqlserver"`
}

// SQLiteConfig holds the embedded-file dialect settings.
type SQLiteConfig struct {
	Path          string `yaml:"path" env:"SQLITE_PATH" env-default:"catalog.db"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms" env:"SQLITE_BUSY_TIMEOUT_MS" env-default:"5000"`
}

// SQLServerConfig holds SQL authentication settings for the client/server dialect.
type SQLServerConfig struct {
	Host                   string `yaml:"host" env:"MSSQL_HOST" env-default:""`
	Port                   int    `yaml:"port" env:"MSSQL_PORT" env-default:"1433"`
	User                   string `yaml:"user" env:"MSSQL_USER" env-default:"sa"`
	Password               string `yaml:"-" env:"MSSQL_PASSWORD"` // Secret - not in YAML
	Database               string `yaml:"database" env:"MSSQL_DATABASE" env-default:""`
	Encrypt                bool   `yaml:"encrypt" env:"MSSQL_ENCRYPT" env-default:"false"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"MSSQL_TRUST_SERVER_CERTIFICATE" env-default:"false"`
	ConnectionTimeout      int    `yaml:"connection_timeout" env:"MSSQL_CONNECTION_TIMEOUT" env-default:"30"` // seconds
}

// IntrospectionConfig bounds the retry of lock/busy errors while reading live schema.
type IntrospectionConfig struct {
	MaxRetries   int `yaml:"max_retries" env:"INTROSPECTION_MAX_RETRIES" env-default:"3"`
	RetryDelayMs int `yaml:"retry_delay_ms" env:"INTROSPECTION_RETRY_DELAY_MS" env-default:"100"`
}

// RetryDelay is the linear backoff step.
func (c IntrospectionConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// AuditConfig holds permission audit settings.
type AuditConfig struct {
	// DefaultLimit caps GetAuditHistory when the caller passes no limit.
	DefaultLimit int `yaml:"default_limit" env:"AUDIT_DEFAULT_LIMIT" env-default:"100"`
}

// CatalogConfig controls catalog schema management.
type CatalogConfig struct {
	MigrateOnStart bool `yaml:"migrate_on_start" env:"CATALOG_MIGRATE_ON_START" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// MSSQL_PASSWORD must come from the environment (yaml:"-" field).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings the engine cannot start with.
func (c *Config) Validate() error {
	c.Database.Dialect = strings.ToLower(strings.TrimSpace(c.Database.Dialect))
	switch c.Database.Dialect {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "sqlserver":
		if c.Database.SQLServer.Host == "" {
			return fmt.Errorf("database.sqlserver.host is required")
		}
		if c.Database.SQLServer.Database == "" {
			return fmt.Errorf("database.sqlserver.database is required")
		}
	default:
		return fmt.Errorf("unsupported database.dialect %q (want sqlite or sqlserver)", c.Database.Dialect)
	}

	if c.Introspection.MaxRetries < 0 {
		return fmt.Errorf("introspection.max_retries must not be negative")
	}
	if c.Introspection.RetryDelayMs < 0 {
		return fmt.Errorf("introspection.retry_delay_ms must not be negative")
	}
	return nil
}

// DSN returns the driver connection string for the selected dialect.
func (c *DatabaseConfig) DSN() string {
	if c.Dialect == "sqlserver" {
		return c.SQLServer.connectionString()
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", c.SQLite.Path, c.SQLite.BusyTimeoutMs)
}

func (c *SQLServerConfig) connectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)

	if c.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}

	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", c.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		resolveHostForDocker(c.Host),
		c.Port,
		query.Encode(),
	)
}

var (
	inDockerOnce sync.Once
	inDocker     bool
)

// runningInDocker reports whether /.dockerenv exists. The result is cached.
func runningInDocker() bool {
	inDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		inDocker = err == nil
	})
	return inDocker
}

// resolveHostForDocker maps a loopback SQL Server host to host.docker.internal
// when the engine itself runs in a container.
func resolveHostForDocker(host string) string {
	if runningInDocker() && (host == "localhost" || host == "127.0.0.1") {
		return "host.docker.internal"
	}
	return host
}
