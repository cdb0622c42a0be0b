package cacheinfra

import (
	"log/slog"
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the page stores.
type Config struct {
	// KeyPrefix namespaces every key written to Redis.
	// Default: "pager:"
	KeyPrefix string

	// IndexGrace is added to the page TTL when refreshing the expiry of a
	// fingerprint's secondary index, so the index outlives its members.
	IndexGrace time.Duration

	// Local enables the in-process L1 tier. Nil disables it.
	Local *LocalConfig

	// BroadcastChannel is the Redis pub/sub channel used to evict peer L1
	// tiers. Empty disables broadcasting.
	BroadcastChannel string

	// Clock is used for the lazy staleness check. Defaults to time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// LocalConfig configures the sturdyc backed L1 tier.
type LocalConfig struct {
	// Capacity defines the maximum number of pages held in process.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 64
	NumShards int

	// TTL bounds how long a page stays in L1 regardless of its own TTL.
	// Keep it short: peers that miss a broadcast serve stale pages for at
	// most this long.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the tier reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
// The L1 tier and broadcasting are disabled.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "pager:",
		IndexGrace: time.Minute,
	}
}

// DefaultLocalConfig returns the L1 settings used when the tier is enabled
// without explicit values.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Capacity:           10000,
		NumShards:          64,
		TTL:                10 * time.Second,
		EvictionPercentage: 10,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.IndexGrace < 0 {
		return &ConfigError{Field: "IndexGrace", Message: "must be non-negative"}
	}
	if c.Local != nil {
		if err := c.Local.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the L1 tier settings.
func (c LocalConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Local.Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "Local.NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "Local.TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "Local.EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "Local.EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

// ToSturdycOptions converts the settings that are not constructor arguments
// of sturdyc.New into options.
func (c LocalConfig) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

func (c Config) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) prefix() string {
	if c.KeyPrefix == "" {
		return DefaultConfig().KeyPrefix
	}
	return c.KeyPrefix
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
