// Package config loads and validates the medgate configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the MGT_ prefix (e.g., MGT_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments without rebuilding.
//
// The PEPPER variable has no MGT_ prefix because it may be injected by
// infrastructure tooling (e.g., Kubernetes secrets, Vault agent) that does not
// know the application-specific prefix and treats it as a generic secret name.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration shared by the gateway and the
// collector binaries. Each binary validates only the sections it uses.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Emitter    EmitterConfig    `mapstructure:"emitter"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig holds the gateway HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CollectorConfig holds the aggregation service configuration.
// Host/Port configure the collector's own listener; URL is what the gateway's
// telemetry emitter dials, which differs in containerized deployments.
type CollectorConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	URL  string `mapstructure:"url"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the key cache / rate limiter connection configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds API key authentication configuration
type AuthConfig struct {
	// Pepper is the process-wide secret mixed into every credential digest.
	// An empty pepper is a fatal startup error; without it, stored digests
	// would be plain unsalted hashes of the raw keys.
	Pepper string `mapstructure:"pepper"`
	// KeyPrefix is prepended to newly issued API keys (e.g. "mg_")
	KeyPrefix string `mapstructure:"key_prefix"`
	// CacheTTL is how long a digest→principal mapping stays in the key cache
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// AdminTokenHash is the bcrypt hash of the static token required by the
	// internal privileged endpoints, in addition to the trusted-CIDR check
	AdminTokenHash string `mapstructure:"admin_token_hash"`
	// TrustedCIDRs restricts the internal privileged endpoints to callers
	// whose remote address falls inside one of these networks
	TrustedCIDRs []string `mapstructure:"trusted_cidrs"`
}

// EmitterConfig holds the telemetry emitter worker pool configuration
type EmitterConfig struct {
	QueueSize int           `mapstructure:"queue_size"`
	Workers   int           `mapstructure:"workers"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ReconcilerConfig holds the appointment reconciler configuration
type ReconcilerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// RateLimitingConfig holds per-principal rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Collector
		"collector.host",
		"collector.port",
		"collector.url",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",

		// Auth
		"auth.pepper",
		"auth.key_prefix",
		"auth.cache_ttl",
		"auth.admin_token_hash",
		"auth.trusted_cidrs",

		// Emitter
		"emitter.queue_size",
		"emitter.workers",
		"emitter.timeout",

		// Reconciler
		"reconciler.enabled",
		"reconciler.interval",

		// Security
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/medgate")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("MGT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in sensitive fields
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Redis.Password = os.ExpandEnv(cfg.Redis.Password)
	cfg.Auth.Pepper = os.ExpandEnv(cfg.Auth.Pepper)

	// PEPPER is the conventional un-prefixed secret name used by deployment
	// tooling; it wins over anything in the file when set.
	if pepper := os.Getenv("PEPPER"); pepper != "" {
		cfg.Auth.Pepper = pepper
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Collector defaults. The collector's write timeout is handled separately
	// in cmd/collector because SSE responses must never be cut off by it.
	v.SetDefault("collector.host", "0.0.0.0")
	v.SetDefault("collector.port", 8090)
	v.SetDefault("collector.url", "http://localhost:8090")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "medgate")
	v.SetDefault("database.user", "medgate")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.key_prefix", "mg_")
	v.SetDefault("auth.cache_ttl", "1h")
	v.SetDefault("auth.trusted_cidrs", []string{"127.0.0.0/8", "10.0.0.0/8"})

	// Emitter defaults
	v.SetDefault("emitter.queue_size", 1024)
	v.SetDefault("emitter.workers", 4)
	v.SetDefault("emitter.timeout", "5s")

	// Reconciler defaults
	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.interval", "1h")

	// Security defaults
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 200)
	v.SetDefault("security.rate_limiting.burst", 50)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Collector.Port < 1 || c.Collector.Port > 65535 {
		return fmt.Errorf("invalid collector port: %d", c.Collector.Port)
	}
	if c.Collector.URL == "" {
		return fmt.Errorf("collector.url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if c.Auth.CacheTTL <= 0 {
		return fmt.Errorf("auth.cache_ttl must be positive")
	}

	if c.Emitter.QueueSize < 1 {
		return fmt.Errorf("emitter.queue_size must be at least 1")
	}
	if c.Emitter.Workers < 1 {
		return fmt.Errorf("emitter.workers must be at least 1")
	}

	if c.Reconciler.Enabled && c.Reconciler.Interval <= 0 {
		return fmt.Errorf("reconciler.interval must be positive when the reconciler is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// ValidatePepper enforces the fatal-at-startup pepper requirement. It is a
// separate check from Validate so that the collector binary, which never
// touches credentials, can load the same config file without a pepper.
func (c *Config) ValidatePepper() error {
	if c.Auth.Pepper == "" {
		return fmt.Errorf("auth.pepper (or the PEPPER environment variable) must be set; refusing to hash credentials without a pepper")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the gateway server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddress returns the collector listen address in host:port format
func (c *CollectorConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
