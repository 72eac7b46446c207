// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level beacon configuration.
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Server    ServerConfig    `yaml:"server"`
	Journal   JournalConfig   `yaml:"journal"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ClientConfig controls event delivery.
type ClientConfig struct {
	WriteKey string        `yaml:"write_key"`
	Endpoint string        `yaml:"endpoint"` // base URL; /alias, /identify, /track are appended
	Timeout  time.Duration `yaml:"timeout"`  // per-delivery HTTP timeout
	DNSCache bool          `yaml:"dns_cache"`
	Auth     AuthConfig    `yaml:"auth"`
	Breaker  BreakerConfig `yaml:"breaker"`
	Dedupe   DedupeConfig  `yaml:"dedupe"`
}

// AuthConfig selects how deliveries authenticate.
type AuthConfig struct {
	Type         string   `yaml:"type"` // "basic" (write key) or "oauth"
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// BreakerConfig controls the per-endpoint circuit breaker.
type BreakerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ErrorThreshold float64       `yaml:"error_threshold"`
	MinSamples     int           `yaml:"min_samples"`
	WindowSeconds  int           `yaml:"window_seconds"`
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// DedupeConfig controls dropping of repeated explicit message IDs.
type DedupeConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// ServerConfig holds relay HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int64         `yaml:"rate_limit"` // events per minute per client IP; 0 = unlimited
}

// JournalConfig holds failure journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DSN           string        `yaml:"dsn"`       // file path or ":memory:"
	Retention     time.Duration `yaml:"retention"` // failures older than this are pruned
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// ResolvedAuthType returns the auth type, defaulting to "basic".
func (c ClientConfig) ResolvedAuthType() string {
	if c.Auth.Type != "" {
		return c.Auth.Type
	}
	return "basic"
}

// Disabled reports whether deliveries should be skipped: basic auth with
// no write key has nothing to authenticate with.
func (c ClientConfig) Disabled() bool {
	return c.ResolvedAuthType() == "basic" && c.WriteKey == ""
}

// Defaults returns the configuration used when a field is absent.
func Defaults() *Config {
	return &Config{
		Client: ClientConfig{
			Endpoint: "https://api.segment.io/v1",
			Timeout:  5 * time.Second,
			DNSCache: true,
			Breaker: BreakerConfig{
				Enabled:        true,
				ErrorThreshold: 0.50,
				MinSamples:     5,
				WindowSeconds:  60,
				OpenTimeout:    30 * time.Second,
			},
			Dedupe: DedupeConfig{
				MaxSize: 10_000,
				TTL:     10 * time.Minute,
			},
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Journal: JournalConfig{
			DSN:           "beacon.db",
			Retention:     7 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config data on top of Defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Client.ResolvedAuthType() {
	case "basic":
	case "oauth":
		if c.Client.Auth.TokenURL == "" || c.Client.Auth.ClientID == "" {
			return fmt.Errorf("config: oauth auth requires token_url and client_id")
		}
	default:
		return fmt.Errorf("config: unknown auth type %q", c.Client.Auth.Type)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("config: client timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("config: server rate_limit must not be negative")
	}
	if c.Client.Dedupe.Enabled && (c.Client.Dedupe.MaxSize <= 0 || c.Client.Dedupe.TTL <= 0) {
		return fmt.Errorf("config: dedupe requires positive max_size and ttl")
	}
	return nil
}
