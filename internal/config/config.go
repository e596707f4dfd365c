// Package config loads the twinview profile file.
//
// A profile is a small YAML document naming the backend and the
// (bucket, filter) pair a dashboard mirrors. Environment variables
// override file values so deployments can re-point a profile without
// editing it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/twinview/twinview/internal/match"
)

// LocalScheme prefixes backend URLs routed to the embedded store.
// Everything else is treated as a broker URL.
const LocalScheme = "local:"

// Environment variable overrides, highest precedence.
const (
	EnvURL     = "TWINVIEW_URL"
	EnvBucket  = "TWINVIEW_BUCKET"
	EnvFilter  = "TWINVIEW_FILTER"
	EnvTimeout = "TWINVIEW_TIMEOUT"
)

// Config is one twinview profile.
type Config struct {
	// URL selects the backend: "local:<path>" for the embedded store,
	// anything else (e.g. "nats://host:4222") for the broker.
	URL string `yaml:"url"`

	// Bucket is the bucket to operate on.
	Bucket string `yaml:"bucket"`

	// Filter scopes the mirror; empty mirrors the whole bucket.
	Filter string `yaml:"filter"`

	// Timeout bounds request/reply style operations. Zero means
	// DefaultTimeout. Expired operations fail; there is no retry.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultTimeout bounds store operations when the profile does not set one.
const DefaultTimeout = 5 * time.Second

// Default returns the configuration used when no profile file exists.
func Default() Config {
	return Config{
		URL:     LocalScheme + "twinview.db",
		Timeout: DefaultTimeout,
	}
}

// Load reads a profile file, applies environment overrides and
// validates the result. A missing path loads Default plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read profile: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse profile: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the profile for internally consistent values.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("empty backend url")
	}
	if c.URL == LocalScheme {
		return fmt.Errorf("local url missing a path")
	}
	if !match.Valid(c.Filter) {
		return fmt.Errorf("invalid filter %q", c.Filter)
	}
	return nil
}

// IsLocal reports whether the profile routes to the embedded store.
func (c Config) IsLocal() bool {
	return strings.HasPrefix(c.URL, LocalScheme)
}

// LocalPath returns the embedded store path for local profiles.
func (c Config) LocalPath() string {
	return strings.TrimPrefix(c.URL, LocalScheme)
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvURL); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv(EnvBucket); v != "" {
		cfg.Bucket = v
	}
	if v := os.Getenv(EnvFilter); v != "" {
		cfg.Filter = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}
	return nil
}
