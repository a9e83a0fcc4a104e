package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Tracing     TracingConfig
	Correlation CorrelationConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" toml:"port" default:"8000"`
	Host string `envconfig:"HOST" toml:"host" default:"0.0.0.0"`
}

// TracingConfig holds request tracer configuration.
type TracingConfig struct {
	SampleRate         float64       `envconfig:"TRACE_SAMPLE_RATE" toml:"sample_rate" default:"1.0"`
	MaxCompletedTraces int           `envconfig:"TRACE_MAX_COMPLETED" toml:"max_completed_traces" default:"1000"`
	MaxTraceDuration   time.Duration `envconfig:"TRACE_MAX_DURATION" toml:"max_trace_duration" default:"5m"`
	CleanupInterval    time.Duration `envconfig:"TRACE_CLEANUP_INTERVAL" toml:"cleanup_interval" default:"1m"`
}

// CorrelationConfig holds error correlator configuration.
type CorrelationConfig struct {
	Threshold        float64       `envconfig:"CORRELATION_THRESHOLD" toml:"threshold" default:"0.7"`
	RecentWindowSize int           `envconfig:"CORRELATION_RECENT_WINDOW" toml:"recent_window_size" default:"100"`
	RetentionHours   int           `envconfig:"CORRELATION_RETENTION_HOURS" toml:"retention_hours" default:"24"`
	SweepInterval    time.Duration `envconfig:"CORRELATION_SWEEP_INTERVAL" toml:"sweep_interval" default:"10m"`
	SpikeWindow      time.Duration `envconfig:"CORRELATION_SPIKE_WINDOW" toml:"spike_window" default:"5m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level" default:"info"`
	Development bool   `envconfig:"LOG_DEV" toml:"development" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"requests_per_second" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled" default:"true"`
}

// Load loads configuration from environment variables. If TRACELINE_CONFIG
// names a TOML file, the file is loaded instead and environment variables are
// ignored (the file is the single source of truth for deployments that use it).
func Load() (*Config, error) {
	if path := os.Getenv("TRACELINE_CONFIG"); path != "" {
		return LoadFile(path)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile parses a TOML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
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
		Tracing: TracingConfig{
			SampleRate:         1.0,
			MaxCompletedTraces: 1000,
			MaxTraceDuration:   5 * time.Minute,
			CleanupInterval:    time.Minute,
		},
		Correlation: CorrelationConfig{
			Threshold:        0.7,
			RecentWindowSize: 100,
			RetentionHours:   24,
			SweepInterval:    10 * time.Minute,
			SpikeWindow:      5 * time.Minute,
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
