// Package config provides centralized configuration management for the batch runner.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Remote   RemoteConfig
	Batch    BatchConfig
	FTP      FTPConfig
	History  HistoryConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// RemoteConfig holds the REST roots of the content-management deployment.
type RemoteConfig struct {
	// ContentServerURL is the Content Server REST root, e.g. https://host/otcs/cs.exe
	ContentServerURL string `env:"CS_BASE_URL" required:"true"`

	// DirectoryURL is the Directory Services REST root, e.g. https://host:8443/otdsws
	DirectoryURL string `env:"OTDS_BASE_URL" required:"true"`
}

// BatchConfig holds settings for CSV batch runs.
type BatchConfig struct {
	// LogDir is where per-file info and error logs are written (default: ./logs)
	LogDir string `env:"BATCH_LOG_DIR" default:"./logs"`

	// RequestTimeout bounds each remote call (default: 30s)
	RequestTimeout time.Duration `env:"BATCH_REQUEST_TIMEOUT" default:"30s"`

	// DefaultStartRow is the 1-based data row a run starts from when the
	// caller does not supply one (default: 1)
	DefaultStartRow int `env:"BATCH_DEFAULT_START_ROW" default:"1"`

	// InsecureTLS disables certificate verification for self-signed test servers (default: false)
	InsecureTLS bool `env:"BATCH_INSECURE_TLS" default:"false"`
}

// FTPConfig holds settings for CSV inputs fetched over FTP.
type FTPConfig struct {
	// Timeout is the dial timeout for FTP connections (default: 10s)
	Timeout time.Duration `env:"FTP_TIMEOUT" default:"10s"`
}

// HistoryConfig holds run history storage settings.
type HistoryConfig struct {
	// DBPath is the SQLite file used when no DATABASE_URL is set (default: ./csvbatch.db)
	DBPath string `env:"HISTORY_DB_PATH" default:"./csvbatch.db"`

	// DatabaseURL switches history to PostgreSQL when set.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of pooled PostgreSQL connections (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// RetentionDays is how long finished runs are kept; 0 keeps them forever (default: 90)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"90"`

	// PruneInterval is how often expired runs are purged (default: 24h)
	PruneInterval time.Duration `env:"HISTORY_PRUNE_INTERVAL" default:"24h"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key validation on /api routes (default: false)
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// UsePostgres reports whether run history should be kept in PostgreSQL.
func (c *HistoryConfig) UsePostgres() bool {
	return c.DatabaseURL != ""
}
