package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sandbox   SandboxConfig
	Gateway   GatewayConfig
	Bundle    BundleConfig
	Storage   StorageConfig
	Security  SecurityConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// SandboxConfig holds fragment sandbox configuration.
type SandboxConfig struct {
	ExecTimeoutMS int64 `envconfig:"SANDBOX_EXEC_TIMEOUT_MS" default:"5000"`
	OpTimeoutMS   int64 `envconfig:"SANDBOX_OP_TIMEOUT_MS" default:"5000"`
	EnableConsole bool  `envconfig:"SANDBOX_CONSOLE" default:"true"`
	StreamBuffer  int   `envconfig:"SANDBOX_STREAM_BUFFER" default:"256"`
}

// GatewayConfig holds tool gateway configuration.
type GatewayConfig struct {
	ToolTimeoutMS int64 `envconfig:"GATEWAY_TOOL_TIMEOUT_MS" default:"30000"`
}

// BundleConfig holds remote bundle pipeline configuration.
type BundleConfig struct {
	Enabled       bool   `envconfig:"BUNDLE_ENABLED" default:"true"`
	CacheDir      string `envconfig:"BUNDLE_CACHE_DIR" default:"data/bundles"`
	MaxFetchBytes int64  `envconfig:"BUNDLE_MAX_FETCH_BYTES" default:"4194304"`
	TimeoutMS     int64  `envconfig:"BUNDLE_TIMEOUT_MS" default:"15000"`
	RetryMax      int    `envconfig:"BUNDLE_RETRY_MAX" default:"3"`
}

// StorageConfig holds fragment storage configuration.
type StorageConfig struct {
	Dir string `envconfig:"STORAGE_DIR" default:"data/storage"`
}

// SecurityConfig holds validator policy configuration.
type SecurityConfig struct {
	// PolicyPath points at a YAML policy file; empty uses the compiled-in
	// blocklist
	PolicyPath string `envconfig:"SECURITY_POLICY_PATH" default:""`
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

// ExecTimeout returns the sandbox execute timeout as a duration.
func (c SandboxConfig) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutMS) * time.Millisecond
}

// OpTimeout returns the sandbox operation timeout as a duration.
func (c SandboxConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutMS) * time.Millisecond
}

// ToolTimeout returns the gateway tool-call timeout as a duration.
func (c GatewayConfig) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutMS) * time.Millisecond
}

// Timeout returns the bundle fetch timeout as a duration.
func (c BundleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
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

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Sandbox: SandboxConfig{
			ExecTimeoutMS: 5000,
			OpTimeoutMS:   5000,
			EnableConsole: true,
			StreamBuffer:  256,
		},
		Gateway: GatewayConfig{
			ToolTimeoutMS: 30000,
		},
		Bundle: BundleConfig{
			Enabled:       true,
			CacheDir:      "data/bundles",
			MaxFetchBytes: 4 * 1024 * 1024,
			TimeoutMS:     15000,
			RetryMax:      3,
		},
		Storage: StorageConfig{
			Dir: "data/storage",
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
	}
}
