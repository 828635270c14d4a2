// Package config provides configuration management with hot-reload support.
// Files are YAML with ${VAR} expansion; ASKMANY_-prefixed environment
// variables overlay the file, and fsnotify drives zero-downtime reloads.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/askmany/askmany/internal/cache"
)

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Database DatabaseConfig `yaml:"database"`
	Cache    cache.Config   `yaml:"cache"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Enhancer EnhancerConfig `yaml:"enhancer"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
}

// DispatchConfig tunes fan-out behavior.
type DispatchConfig struct {
	MaxConcurrent         int           `yaml:"max_concurrent" env:"DISPATCH_MAX_CONCURRENT"`
	Timeout               time.Duration `yaml:"timeout" env:"DISPATCH_TIMEOUT"`
	Temperature           float64       `yaml:"temperature" env:"DISPATCH_TEMPERATURE"`
	MaxTokens             int           `yaml:"max_tokens" env:"DISPATCH_MAX_TOKENS"`
	RetryCount            int           `yaml:"retry_count" env:"DISPATCH_RETRY_COUNT"`
	RetryBackoff          time.Duration `yaml:"retry_backoff" env:"DISPATCH_RETRY_BACKOFF"`
	RatePerSecond         float64       `yaml:"rate_per_second" env:"DISPATCH_RATE_PER_SECOND"`
	RateBurst             int           `yaml:"rate_burst" env:"DISPATCH_RATE_BURST"`
	Referer               string        `yaml:"referer" env:"DISPATCH_REFERER"`
	Title                 string        `yaml:"title" env:"DISPATCH_TITLE"`
	AllowPrivateEndpoints bool          `yaml:"allow_private_endpoints" env:"DISPATCH_ALLOW_PRIVATE_ENDPOINTS"`
}

// DatabaseConfig selects and tunes the persistence backend.
type DatabaseConfig struct {
	Driver       string        `yaml:"driver" env:"DB_DRIVER"` // memory, postgres
	Host         string        `yaml:"host" env:"DB_HOST"`
	Port         int           `yaml:"port" env:"DB_PORT"`
	User         string        `yaml:"user" env:"DB_USER"`
	Password     string        `yaml:"password" env:"DB_PASSWORD"`
	Database     string        `yaml:"database" env:"DB_NAME"`
	SSLMode      string        `yaml:"ssl_mode" env:"DB_SSL_MODE"`
	MaxOpenConns int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	Seed         bool          `yaml:"seed" env:"DB_SEED"`
	CacheSize    int           `yaml:"cache_size" env:"DB_CACHE_SIZE"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"DB_CACHE_TTL"`
}

// SecretsConfig controls API key resolution.
type SecretsConfig struct {
	// Keys maps provider short names to secret references, e.g.
	// "openai: env://OPENAI_API_KEY" or "anthropic: vault://secret/llm#anthropic".
	Keys     map[string]string `yaml:"keys"`
	CacheTTL time.Duration     `yaml:"cache_ttl" env:"SECRETS_CACHE_TTL"`
	Vault    VaultConfig       `yaml:"vault"`
}

// VaultConfig holds HashiCorp Vault connection settings.
type VaultConfig struct {
	Enabled    bool   `yaml:"enabled" env:"VAULT_ENABLED"`
	Address    string `yaml:"address" env:"VAULT_ADDR"`
	Token      string `yaml:"token" env:"VAULT_TOKEN"`
	AuthMethod string `yaml:"auth_method" env:"VAULT_AUTH_METHOD"`
	RoleID     string `yaml:"role_id" env:"VAULT_ROLE_ID"`
	SecretID   string `yaml:"secret_id" env:"VAULT_SECRET_ID"`
	CACert     string `yaml:"ca_cert" env:"VAULT_CACERT"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// EnhancerConfig configures the prompt enhancement service.
type EnhancerConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENHANCER_ENABLED"`
	Endpoint string        `yaml:"endpoint" env:"ENHANCER_ENDPOINT"`
	Model    string        `yaml:"model" env:"ENHANCER_MODEL"`
	Timeout  time.Duration `yaml:"timeout" env:"ENHANCER_TIMEOUT"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"LOG_FORMAT"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `yaml:"path" env:"METRICS_PATH"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" env:"TRACING_ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"TRACING_ENDPOINT"` // OTLP gRPC endpoint
	ServiceName string  `yaml:"service_name" env:"TRACING_SERVICE_NAME"`
	SampleRate  float64 `yaml:"sample_rate" env:"TRACING_SAMPLE_RATE"`
	Insecure    bool    `yaml:"insecure" env:"TRACING_INSECURE"`
}

// ArchiveConfig configures S3 outcome archival.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ARCHIVE_ENABLED"`
	Bucket   string `yaml:"bucket" env:"ARCHIVE_BUCKET"`
	Prefix   string `yaml:"prefix" env:"ARCHIVE_PREFIX"`
	Region   string `yaml:"region" env:"ARCHIVE_REGION"`
	Endpoint string `yaml:"endpoint" env:"ARCHIVE_ENDPOINT"` // custom endpoint for S3-compatible stores
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Dispatch: DispatchConfig{
			MaxConcurrent: 5,
			Timeout:       30 * time.Second,
			Temperature:   0.7,
			MaxTokens:     2000,
			RetryCount:    3,
			RetryBackoff:  time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "memory",
			Host:         "localhost",
			Port:         5432,
			Database:     "askmany",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			Seed:         true,
		},
		Cache: cache.DefaultConfig(),
		Secrets: SecretsConfig{
			CacheTTL: 5 * time.Minute,
		},
		Enhancer: EnhancerConfig{
			Enabled:  true,
			Endpoint: "https://openrouter.ai/api/v1/chat/completions",
			Model:    "openai/gpt-4o-mini",
			Timeout:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "askmany",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// Load returns the defaults overlaid with environment variables. Used
// when no config file is present.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile reads and parses a YAML configuration file. ${VAR}
// references are expanded before parsing and ASKMANY_ environment
// variables overlay the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "ASKMANY_"}); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Dispatch.MaxConcurrent < 1 {
		return fmt.Errorf("dispatch.max_concurrent must be at least 1")
	}
	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("dispatch.timeout must be positive")
	}
	if c.Dispatch.Temperature < 0 || c.Dispatch.Temperature > 2 {
		return fmt.Errorf("dispatch.temperature must be between 0 and 2")
	}
	if c.Dispatch.MaxTokens < 1 {
		return fmt.Errorf("dispatch.max_tokens must be at least 1")
	}
	if c.Dispatch.RetryCount < 0 {
		return fmt.Errorf("dispatch.retry_count cannot be negative")
	}
	if c.Dispatch.RatePerSecond < 0 {
		return fmt.Errorf("dispatch.rate_per_second cannot be negative")
	}

	switch c.Database.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	if c.Cache.Enabled {
		switch c.Cache.Type {
		case cache.TypeLocal, cache.TypeDual, cache.TypeRedis:
		default:
			return fmt.Errorf("unknown cache type: %q", c.Cache.Type)
		}
		if c.Cache.Type != cache.TypeLocal && c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for cache type %q", c.Cache.Type)
		}
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archival is enabled")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}

	return nil
}
