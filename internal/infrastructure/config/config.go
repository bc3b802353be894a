package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Resolver modes
const (
	ModeSandbox  = "sandbox"
	ModeRemote   = "remote"
	ModeSnapshot = "snapshot"
	ModeCDP      = "cdp"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Inspector   InspectorConfig
	Resolver    ResolverConfig
	Sandbox     SandboxConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
	MaxSessions int `envconfig:"MAX_SESSIONS" default:"64"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// InspectorConfig holds node tree settings.
type InspectorConfig struct {
	MaxDepth   int `envconfig:"INSPECTOR_MAX_DEPTH" default:"5"`
	BucketSize int `envconfig:"INSPECTOR_BUCKET_SIZE" default:"100"`
}

// ResolverConfig selects and configures the backend sessions inspect.
type ResolverConfig struct {
	Mode         string        `envconfig:"RESOLVER_MODE" default:"sandbox"`
	RemoteURL    string        `envconfig:"RESOLVER_REMOTE_URL"`
	Timeout      time.Duration `envconfig:"RESOLVER_TIMEOUT" default:"10s"`
	SnapshotPath string        `envconfig:"RESOLVER_SNAPSHOT_PATH"`
	CDPURL       string        `envconfig:"RESOLVER_CDP_URL"`
	CacheSize    int           `envconfig:"RESOLVER_CACHE_SIZE" default:"1024"`
}

// SandboxConfig holds settings of the embedded JavaScript runtime.
type SandboxConfig struct {
	Timeout  time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s"`
	PoolSize int           `envconfig:"SANDBOX_POOL_SIZE" default:"4"`
	DOMHTML  string        `envconfig:"SANDBOX_DOM_HTML"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads and validates configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the environment without validating, for callers that
// apply further overrides first.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks that the selected resolver mode has what it needs.
func (c *Config) Validate() error {
	switch c.Resolver.Mode {
	case ModeSandbox, ModeCDP:
	case ModeRemote:
		if c.Resolver.RemoteURL == "" {
			return fmt.Errorf("invalid config: resolver mode %q requires RESOLVER_REMOTE_URL", c.Resolver.Mode)
		}
	case ModeSnapshot:
		if c.Resolver.SnapshotPath == "" {
			return fmt.Errorf("invalid config: resolver mode %q requires RESOLVER_SNAPSHOT_PATH", c.Resolver.Mode)
		}
	default:
		return fmt.Errorf("invalid config: unknown resolver mode %q", c.Resolver.Mode)
	}
	if c.Inspector.BucketSize < 2 {
		return fmt.Errorf("invalid config: bucket size must be at least 2, got %d", c.Inspector.BucketSize)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Inspector: InspectorConfig{
			MaxDepth:   5,
			BucketSize: 100,
		},
		Resolver: ResolverConfig{
			Mode:      ModeSandbox,
			Timeout:   10 * time.Second,
			CacheSize: 1024,
		},
		Sandbox: SandboxConfig{
			Timeout:  5 * time.Second,
			PoolSize: 4,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		MaxSessions: 64,
	}
}
