package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FEEDPAGER_REDIS_ADDRS.
const EnvPrefix = "FEEDPAGER"

// Config is the service configuration.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Pager        PagerConfig        `mapstructure:"pager"`
	Cursor       CursorConfig       `mapstructure:"cursor"`
	Relational   RelationalConfig   `mapstructure:"relational"`
	Document     DocumentConfig     `mapstructure:"document"`
	Invalidation InvalidationConfig `mapstructure:"invalidation"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// RedisConfig feeds redis.NewUniversalClient: one address is a single node,
// several are a cluster.
type RedisConfig struct {
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
}

type CacheConfig struct {
	KeyPrefix        string        `mapstructure:"key_prefix"`
	IndexGrace       time.Duration `mapstructure:"index_grace"`
	BroadcastChannel string        `mapstructure:"broadcast_channel"`
	Local            LocalConfig   `mapstructure:"local"`
}

// LocalConfig enables the in-process L1 tier.
type LocalConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Capacity           int           `mapstructure:"capacity"`
	NumShards          int           `mapstructure:"num_shards"`
	TTL                time.Duration `mapstructure:"ttl"`
	EvictionPercentage int           `mapstructure:"eviction_percentage"`
}

type PagerConfig struct {
	DefaultPageSize      int           `mapstructure:"default_page_size"`
	MaxPageSize          int           `mapstructure:"max_page_size"`
	TTL                  time.Duration `mapstructure:"ttl"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	MaxAttempts          uint          `mapstructure:"max_attempts"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
}

type CursorConfig struct {
	// Secret seeds the cursor checksum. Rotating it invalidates every
	// outstanding cursor.
	Secret       string `mapstructure:"secret"`
	MaxTokenSize int    `mapstructure:"max_token_size"`
}

// RelationalConfig selects the SQL driver: postgres or sqlite3. An empty
// driver disables the relational backend.
type RelationalConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// DocumentConfig connects the MongoDB backend. An empty URI disables it.
type DocumentConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type InvalidationConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Brokers          []string      `mapstructure:"brokers"`
	GroupID          string        `mapstructure:"group_id"`
	Topics           []string      `mapstructure:"topics"`
	FeedIndexPrefix  string        `mapstructure:"feed_index_prefix"`
	FeedIndexTTL     time.Duration `mapstructure:"feed_index_ttl"`
	DeadLetterKey    string        `mapstructure:"dead_letter_key"`
	DeadLetterMaxLen int64         `mapstructure:"dead_letter_max_len"`
	EvictAttempts    uint          `mapstructure:"evict_attempts"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads path (YAML) when given, then config.yaml from ./config or the
// working directory, and applies FEEDPAGER_* environment overrides. A missing
// default config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no
// environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.key_prefix", "pager:")
	v.SetDefault("cache.index_grace", "1m")
	v.SetDefault("cache.broadcast_channel", "pager:cache:evict")
	v.SetDefault("cache.local.enabled", false)
	v.SetDefault("cache.local.capacity", 10000)
	v.SetDefault("cache.local.num_shards", 64)
	v.SetDefault("cache.local.ttl", "10s")
	v.SetDefault("cache.local.eviction_percentage", 10)

	v.SetDefault("pager.default_page_size", 20)
	v.SetDefault("pager.max_page_size", 100)
	v.SetDefault("pager.ttl", "30s")
	v.SetDefault("pager.fetch_timeout", "2s")
	v.SetDefault("pager.max_attempts", 2)
	v.SetDefault("pager.retry_initial_interval", "50ms")
	v.SetDefault("pager.retry_max_interval", "500ms")

	v.SetDefault("cursor.max_token_size", 4096)

	v.SetDefault("document.connect_timeout", "10s")

	v.SetDefault("invalidation.enabled", false)
	v.SetDefault("invalidation.group_id", "feedpager")
	v.SetDefault("invalidation.topics", []string{"feed-mutations"})
	v.SetDefault("invalidation.feed_index_prefix", "pager:feed:")
	v.SetDefault("invalidation.feed_index_ttl", "1h")
	v.SetDefault("invalidation.dead_letter_key", "pager:invalidation:dead-letter")
	v.SetDefault("invalidation.dead_letter_max_len", 10000)
	v.SetDefault("invalidation.evict_attempts", 3)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9091")
	v.SetDefault("metrics.namespace", "pager")
}

// Validate implements validation.Validatable.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Log),
		validation.Field(&c.Redis),
		validation.Field(&c.Pager),
		validation.Field(&c.Relational),
		validation.Field(&c.Document),
		validation.Field(&c.Invalidation),
	)
}

func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&c.Format, validation.In("json", "text")),
	)
}

func (c RedisConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addrs, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.DB, validation.Min(0)),
	)
}

func (c PagerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DefaultPageSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxPageSize, validation.Required, validation.Min(c.DefaultPageSize)),
		validation.Field(&c.FetchTimeout, validation.Required),
		validation.Field(&c.MaxAttempts, validation.Required),
	)
}

func (c RelationalConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.In("postgres", "sqlite3")),
		validation.Field(&c.DSN, validation.When(c.Driver != "", validation.Required)),
	)
}

func (c DocumentConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Database, validation.When(c.URI != "", validation.Required)),
	)
}

func (c InvalidationConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.GroupID, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Topics, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.EvictAttempts, validation.Required),
	)
}
