// Package rsqlconfig loads the worker runtime's environment-derived
// configuration, adapted from the service's config package for a
// connection-pool process instead of an HTTP/gRPC one.
package rsqlconfig

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the tunables a Connection Manager and its Settings tree read
// at startup. Environment variables are parsed with the RSQLWORKER_ prefix.
type Config struct {
	// MaxConnections caps concurrently active Workers per Manager; 0 is
	// promoted to 1 by ResolveDefaults (connmanager.New does the same).
	MaxConnections uint32 `envconfig:"MAX_CONNECTIONS" default:"4"`

	// DefaultExpirySeconds is parsed but not passed to the Manager:
	// connmanager.Release always re-stamps with connmanager.DefaultExpirySeconds.
	DefaultExpirySeconds int64 `envconfig:"DEFAULT_EXPIRY_SECONDS" default:"10"`

	// SettingsPath points at the persisted Connection Settings tree.
	SettingsPath   string `envconfig:"SETTINGS_PATH" default:"./rsqlworker.settings"`
	SettingsFormat string `envconfig:"SETTINGS_FORMAT" default:"binary"`

	DBDriver string `envconfig:"DB_DRIVER" default:"memory"`

	// TableCacheRedisAddr, when set, fronts the memory driver's ListTables
	// with a Redis-backed cache (driver/memdriver.RemoteTableCache). Empty
	// disables the cache entirely.
	TableCacheRedisAddr string `envconfig:"TABLE_CACHE_REDIS_ADDR" default:""`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// ResolveDefaults validates SettingsFormat/DBDriver, the way the service
// config validates BuildTarget/DBDriver.
func (c *Config) ResolveDefaults() error {
	switch c.SettingsFormat {
	case "binary", "json":
	default:
		return fmt.Errorf("unsupported SETTINGS_FORMAT: %s", c.SettingsFormat)
	}

	switch c.DBDriver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	if c.MaxConnections == 0 {
		c.MaxConnections = 1
	}
	return nil
}

// New parses environment variables prefixed RSQLWORKER_ into a Config.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("RSQLWORKER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns a Config with small, deterministic values for tests
// and the demo CLI, bypassing environment parsing entirely.
func NewForTesting() *Config {
	return &Config{
		MaxConnections:       2,
		DefaultExpirySeconds: 10,
		SettingsPath:         "",
		SettingsFormat:       "binary",
		DBDriver:             "memory",
		LogLevel:             "debug",
	}
}
