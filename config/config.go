// Package config loads and validates the livemirror service configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then LIVEMIRROR_* environment overrides. Validation runs last so every
// layer is checked together.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/c360/livemirror/errors"
)

// envPrefix namespaces all environment overrides.
const envPrefix = "LIVEMIRROR"

// Config is the complete service configuration.
type Config struct {
	NATS      NATSConfig  `yaml:"nats"`
	Store     StoreConfig `yaml:"store"`
	HTTP      HTTPConfig  `yaml:"http"`
	Log       LogConfig   `yaml:"log"`
	Resources []string    `yaml:"resources"` // Collections to mirror at startup
}

// NATSConfig defines NATS connection settings.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Timeout       time.Duration `yaml:"timeout"`
	Name          string        `yaml:"name"` // Client name advertised to the server
}

// StoreConfig defines where collections live in JetStream.
type StoreConfig struct {
	Bucket string `yaml:"bucket"`
}

// HTTPConfig defines the HTTP listener for the API and metrics.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig defines logging behavior.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
			Name:          "livemirror",
		},
		Store: StoreConfig{
			Bucket: "livemirror",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the optional file at path,
// and environment overrides. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "read "+path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse "+path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies LIVEMIRROR_* environment variables on top of
// the loaded configuration.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(envPrefix + "_NATS_MAX_RECONNECTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.NATS.MaxReconnects = n
		}
	}
	if val := os.Getenv(envPrefix + "_STORE_BUCKET"); val != "" {
		cfg.Store.Bucket = val
	}
	if val := os.Getenv(envPrefix + "_HTTP_ADDR"); val != "" {
		cfg.HTTP.Addr = val
	}
	if val := os.Getenv(envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv(envPrefix + "_RESOURCES"); val != "" {
		cfg.Resources = splitList(val)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.url is required")
	}
	if c.Store.Bucket == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "store.bucket is required")
	}
	if !isValidBucketName(c.Store.Bucket) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("store.bucket %q must be alphanumeric with dashes or underscores", c.Store.Bucket))
	}
	if c.HTTP.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "http.addr is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("log.level %q (must be debug, info, warn or error)", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("log.format %q (must be text or json)", c.Log.Format))
	}

	for _, r := range c.Resources {
		if !isValidKVKey(r) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("resource %q is not a valid collection name", r))
		}
	}
	return nil
}

// isValidBucketName checks JetStream bucket naming rules.
func isValidBucketName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// isValidKVKey checks that a collection name is usable as a KV key.
func isValidKVKey(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}
