package cache

import (
	"log/slog"
	"time"

	"github.com/goliatone/go-repository-pager/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	KeyPrefix        string
	IndexGrace       time.Duration
	Local            *LocalConfig
	BroadcastChannel string
}

// LocalConfig mirrors the in-process tier options.
type LocalConfig struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// DefaultLocalConfig returns the in-process tier defaults.
func DefaultLocalConfig() LocalConfig {
	return convertLocalFromInternal(cacheinfra.DefaultLocalConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// Option customizes the stores built by NewStore.
type Option func(*cacheinfra.Config)

// WithClock overrides the clock used for the staleness check.
func WithClock(now func() time.Time) Option {
	return func(c *cacheinfra.Config) {
		c.Clock = now
	}
}

// WithLogger sets the logger used by the stores.
func WithLogger(logger *slog.Logger) Option {
	return func(c *cacheinfra.Config) {
		c.Logger = logger
	}
}

// NewStore constructs the default store on client: Redis only, or Redis
// behind an in-process tier when cfg.Local is set. The returned Runner is
// non nil only when the tiered store broadcasts evictions to its peers and
// must be run for the lifetime of the store.
func NewStore(client redis.UniversalClient, cfg Config, opts ...Option) (Store, Runner, error) {
	internal := cfg.toInternal()
	for _, opt := range opts {
		opt(&internal)
	}

	l2, err := cacheinfra.NewRedisStore(client, internal)
	if err != nil {
		return nil, nil, err
	}
	if internal.Local == nil {
		return l2, nil, nil
	}

	l1, err := cacheinfra.NewLocalStore(internal)
	if err != nil {
		return nil, nil, err
	}
	if internal.BroadcastChannel == "" {
		return cacheinfra.NewTieredStore(l1, l2, nil), nil, nil
	}

	bc := cacheinfra.NewBroadcaster(client, internal.BroadcastChannel, l1, internal.Logger)
	return cacheinfra.NewTieredStore(l1, l2, bc), bc, nil
}

func (c Config) toInternal() cacheinfra.Config {
	var local *cacheinfra.LocalConfig
	if c.Local != nil {
		local = &cacheinfra.LocalConfig{
			Capacity:           c.Local.Capacity,
			NumShards:          c.Local.NumShards,
			TTL:                c.Local.TTL,
			EvictionPercentage: c.Local.EvictionPercentage,
			EvictionInterval:   c.Local.EvictionInterval,
		}
	}

	return cacheinfra.Config{
		KeyPrefix:        c.KeyPrefix,
		IndexGrace:       c.IndexGrace,
		Local:            local,
		BroadcastChannel: c.BroadcastChannel,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	var local *LocalConfig
	if cfg.Local != nil {
		l := convertLocalFromInternal(*cfg.Local)
		local = &l
	}

	return Config{
		KeyPrefix:        cfg.KeyPrefix,
		IndexGrace:       cfg.IndexGrace,
		Local:            local,
		BroadcastChannel: cfg.BroadcastChannel,
	}
}

func convertLocalFromInternal(cfg cacheinfra.LocalConfig) LocalConfig {
	return LocalConfig{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
