package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/tattva/tattva/internal/application/health"
)

// Config holds all configuration for the Tattva API service
type Config struct {
	// Server configuration
	Host     string `env:"HOST" envDefault:"0.0.0.0"`
	Port     int    `env:"PORT" envDefault:"8080"`
	GRPCPort int    `env:"GRPC_PORT" envDefault:"0"`
	Workers  int    `env:"WORKERS" envDefault:"2"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Build metadata reported by /health and /
	Version     string `env:"VERSION" envDefault:"0.6.0"`
	BuildID     string `env:"BUILD_ID"`
	Environment string `env:"ENVIRONMENT"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	Ephemeris   EphemerisConfig
	HealthCheck HealthCheckConfig
	Redis       RedisConfig
	Heartbeat   HeartbeatConfig
	Timeouts    TimeoutConfig
}

// EphemerisConfig locates the staged Swiss Ephemeris data
type EphemerisConfig struct {
	Path          string   `env:"SE_EPHE_PATH" envDefault:"/app/ephe"`
	RequiredFiles []string `env:"EPHE_REQUIRED_FILES" envSeparator:","`
}

// HealthCheckConfig mirrors the container HEALTHCHECK parameters
type HealthCheckConfig struct {
	Interval    time.Duration `env:"HEALTHCHECK_INTERVAL" envDefault:"30s"`
	Timeout     time.Duration `env:"HEALTHCHECK_TIMEOUT" envDefault:"10s"`
	StartPeriod time.Duration `env:"HEALTHCHECK_START_PERIOD" envDefault:"40s"`
	Retries     int           `env:"HEALTHCHECK_RETRIES" envDefault:"3"`
	URL         string        `env:"HEALTHCHECK_URL"`
}

// RedisConfig holds Redis connection configuration for the instance registry.
// An empty address selects the in-memory registry.
type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR"`
	Password    string        `env:"REDIS_PASS"`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
}

// HeartbeatConfig controls worker pool status reporting
type HeartbeatConfig struct {
	Interval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"15s"`
	TTL      time.Duration `env:"HEARTBEAT_TTL" envDefault:"45s"`
}

// TimeoutConfig holds HTTP server timeouts
type TimeoutConfig struct {
	ReadHeader time.Duration `env:"TIMEOUT_READ_HEADER" envDefault:"10s"`
	Idle       time.Duration `env:"TIMEOUT_IDLE" envDefault:"60s"`
	Shutdown   time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Port)
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}
	if c.GRPCPort == c.Port {
		return fmt.Errorf("gRPC port %d collides with HTTP port", c.GRPCPort)
	}

	if c.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if c.Ephemeris.Path == "" {
		return fmt.Errorf("ephemeris path is required")
	}

	if err := c.HealthPolicy().Validate(); err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}

	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.Heartbeat.TTL < c.Heartbeat.Interval {
		return fmt.Errorf("heartbeat TTL %s is shorter than interval %s", c.Heartbeat.TTL, c.Heartbeat.Interval)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// HTTPAddr returns the HTTP listen address
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GRPCAddr returns the gRPC listen address, or "" when gRPC is disabled
func (c *Config) GRPCAddr() string {
	if c.GRPCPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.GRPCPort))
}

// ProbeURL returns the URL the health probe targets
func (c *Config) ProbeURL() string {
	if c.HealthCheck.URL != "" {
		return c.HealthCheck.URL
	}
	return fmt.Sprintf("http://127.0.0.1:%d/health", c.Port)
}

// HealthPolicy converts the healthcheck settings to a probe policy
func (c *Config) HealthPolicy() health.Policy {
	return health.Policy{
		Interval:    c.HealthCheck.Interval,
		Timeout:     c.HealthCheck.Timeout,
		StartPeriod: c.HealthCheck.StartPeriod,
		Retries:     c.HealthCheck.Retries,
	}
}
