package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig `koanf:"server"`
	Box    BoxConfig    `koanf:"box"`
	Jobs   JobsConfig   `koanf:"jobs"`
	Cache  CacheConfig  `koanf:"cache"`
	Log    LogConfig    `koanf:"log"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// BoxConfig identifies this box and its output location
type BoxConfig struct {
	ID       string `koanf:"id"`
	APIKey   string `koanf:"api_key"`
	RunsRoot string `koanf:"runs_root"`
	// Channels is the channel count exposed by the built-in simulated
	// controller when no hardware driver is wired in
	Channels int `koanf:"channels"`
}

// JobsConfig represents job execution configuration
type JobsConfig struct {
	// PollInterval is how often a slot worker wakes to check the
	// cancellation flag while the hardware call is in flight
	PollInterval time.Duration `koanf:"poll_interval"`
	// DefaultPlannedDuration is the fallback runtime estimate when a
	// mode's parameters carry no usable timing information
	DefaultPlannedDuration time.Duration `koanf:"default_planned_duration"`
}

// CacheConfig represents the job metadata cache configuration
type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `koanf:"level"`
}

// envKeys maps documented environment variables onto config keys.
// Variables outside this map are ignored.
var envKeys = map[string]string{
	"BOX_ID":      "box.id",
	"BOX_API_KEY": "box.api_key",
	"BOX_ADDR":    "server.addr",
	"RUNS_ROOT":   "box.runs_root",
}

// Load loads configuration from the specified file (if it exists) and
// overlays the documented environment variables on top, so the daemon
// can run from environment alone.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", func(key string) string {
		return envKeys[key]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration defaults applied before any file
// or environment overrides
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8481",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Box: BoxConfig{
			ID:       "box01",
			RunsRoot: "runs",
			Channels: 4,
		},
		Jobs: JobsConfig{
			PollInterval:           200 * time.Millisecond,
			DefaultPlannedDuration: 60 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Box.ID == "" {
		return fmt.Errorf("box.id is required")
	}

	if c.Box.RunsRoot == "" {
		return fmt.Errorf("box.runs_root is required")
	}

	if c.Box.Channels <= 0 {
		return fmt.Errorf("box.channels must be positive")
	}

	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs.poll_interval must be positive")
	}

	if c.Jobs.DefaultPlannedDuration <= 0 {
		return fmt.Errorf("jobs.default_planned_duration must be positive")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	return nil
}
