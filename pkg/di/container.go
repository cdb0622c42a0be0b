package di

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goliatone/go-repository-pager/cache"
	"github.com/goliatone/go-repository-pager/cursor"
	"github.com/goliatone/go-repository-pager/internal/observability"
	"github.com/goliatone/go-repository-pager/invalidation"
	"github.com/goliatone/go-repository-pager/pager"
	"github.com/goliatone/go-repository-pager/pkg/config"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Container owns the shared infrastructure of a pager deployment: the Redis
// client, the page cache, the cursor codec, metrics and the optional
// relational and document connections. Engines and listeners are built from
// it with the package level constructors.
type Container struct {
	cfg        config.Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	redis      redis.UniversalClient
	ownsRedis  bool
	store      cache.Store
	runner     cache.Runner
	codec      *cursor.Codec
	feeds      *invalidation.RedisFeedIndex
	deadLetter *invalidation.RedisDeadLetter
	cacheOpts  []cache.Option

	mu    sync.Mutex
	db    *bun.DB
	mongo *mongo.Client
}

// Option customizes a Container.
type Option func(*Container)

// WithRedisClient uses client instead of dialing cfg.Redis. The caller keeps
// ownership of client.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(c *Container) {
		c.redis = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics shares an existing metrics registry.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Container) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithCacheOptions forwards options to cache.NewStore.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(c *Container) {
		c.cacheOpts = append(c.cacheOpts, opts...)
	}
}

// WithDB uses an already open bun database for the relational backend. The
// container closes it on Close.
func WithDB(db *bun.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// NewContainer validates cfg and builds the shared components. Database
// connections are opened lazily on first use.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("di: invalid config: %w", err)
	}

	c := &Container{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	}
	if c.metrics == nil {
		c.metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}
	if c.redis == nil {
		c.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.ownsRedis = true
	}

	storeOpts := append([]cache.Option{cache.WithLogger(c.logger)}, c.cacheOpts...)
	store, runner, err := cache.NewStore(c.redis, CacheConfig(cfg.Cache), storeOpts...)
	if err != nil {
		c.closeRedis()
		return nil, fmt.Errorf("di: cache store: %w", err)
	}
	c.store = store
	c.runner = runner

	var codecOpts []cursor.Option
	if cfg.Cursor.Secret != "" {
		codecOpts = append(codecOpts, cursor.WithSecret([]byte(cfg.Cursor.Secret)))
	}
	if cfg.Cursor.MaxTokenSize > 0 {
		codecOpts = append(codecOpts, cursor.WithMaxTokenSize(cfg.Cursor.MaxTokenSize))
	}
	c.codec = cursor.NewCodec(codecOpts...)

	c.feeds = invalidation.NewRedisFeedIndex(c.redis, cfg.Invalidation.FeedIndexPrefix, cfg.Invalidation.FeedIndexTTL)
	c.deadLetter = invalidation.NewRedisDeadLetter(c.redis, cfg.Invalidation.DeadLetterKey, cfg.Invalidation.DeadLetterMaxLen)

	return c, nil
}

// CacheConfig maps the file configuration onto cache.Config.
func CacheConfig(cfg config.CacheConfig) cache.Config {
	out := cache.Config{
		KeyPrefix:  cfg.KeyPrefix,
		IndexGrace: cfg.IndexGrace,
	}
	if cfg.Local.Enabled {
		local := cache.DefaultLocalConfig()
		if cfg.Local.Capacity > 0 {
			local.Capacity = cfg.Local.Capacity
		}
		if cfg.Local.NumShards > 0 {
			local.NumShards = cfg.Local.NumShards
		}
		if cfg.Local.TTL > 0 {
			local.TTL = cfg.Local.TTL
		}
		if cfg.Local.EvictionPercentage > 0 {
			local.EvictionPercentage = cfg.Local.EvictionPercentage
		}
		out.Local = &local
		out.BroadcastChannel = cfg.BroadcastChannel
	}
	return out
}

// PagerConfig maps the file configuration onto pager.Config.
func PagerConfig(cfg config.PagerConfig) pager.Config {
	return pager.Config{
		DefaultPageSize:      cfg.DefaultPageSize,
		MaxPageSize:          cfg.MaxPageSize,
		TTL:                  cfg.TTL,
		FetchTimeout:         cfg.FetchTimeout,
		MaxAttempts:          cfg.MaxAttempts,
		RetryInitialInterval: cfg.RetryInitialInterval,
		RetryMaxInterval:     cfg.RetryMaxInterval,
	}
}

func (c *Container) Config() config.Config { return c.cfg }

func (c *Container) Logger() *slog.Logger { return c.logger }

func (c *Container) Metrics() *observability.Metrics { return c.metrics }

// Redis returns the client shared by the cache, the feed index and the dead
// letter list.
func (c *Container) Redis() redis.UniversalClient { return c.redis }

func (c *Container) Store() cache.Store { return c.store }

func (c *Container) Codec() *cursor.Codec { return c.codec }

func (c *Container) FeedIndex() *invalidation.RedisFeedIndex { return c.feeds }

func (c *Container) DeadLetter() *invalidation.RedisDeadLetter { return c.deadLetter }

// Runner returns the L1 eviction broadcaster, or nil when the store is not
// tiered with broadcasting.
func (c *Container) Runner() cache.Runner {
	return c.runner
}

// OpenRelational opens a bun database for driver postgres or sqlite3.
func OpenRelational(driver, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("di: open %s: %w", driver, err)
	}

	switch driver {
	case "postgres":
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case "sqlite3":
		// one connection keeps in-memory databases alive and shared
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	}
	_ = sqldb.Close()
	return nil, fmt.Errorf("di: unsupported relational driver %q", driver)
}

// DB returns the relational database, opening it on first use.
func (c *Container) DB() (*bun.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}
	if c.cfg.Relational.Driver == "" {
		return nil, errors.New("di: relational backend is not configured")
	}
	db, err := OpenRelational(c.cfg.Relational.Driver, c.cfg.Relational.DSN)
	if err != nil {
		return nil, err
	}
	c.db = db
	return db, nil
}

// MongoDatabase returns the document database, connecting on first use.
func (c *Container) MongoDatabase(ctx context.Context) (*mongo.Database, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.Document.URI == "" {
		return nil, errors.New("di: document backend is not configured")
	}
	if c.mongo == nil {
		timeout := c.cfg.Document.ConnectTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		opts := options.Client().ApplyURI(c.cfg.Document.URI).SetConnectTimeout(timeout)
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("di: connect mongo: %w", err)
		}
		c.mongo = client
	}
	return c.mongo.Database(c.cfg.Document.Database), nil
}

// Ping checks the cache and every opened backend.
func (c *Container) Ping(ctx context.Context) error {
	var errs []error
	if err := c.store.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	c.mu.Lock()
	db, mc := c.db, c.mongo
	c.mu.Unlock()

	if db != nil {
		if err := db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("relational: %w", err))
		}
	}
	if mc != nil {
		if err := mc.Ping(ctx, nil); err != nil {
			errs = append(errs, fmt.Errorf("document: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases everything the container opened.
func (c *Container) Close() error {
	// the store stops its broadcaster
	errs := []error{c.store.Close()}

	c.mu.Lock()
	if c.db != nil {
		errs = append(errs, c.db.Close())
		c.db = nil
	}
	if c.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, c.mongo.Disconnect(ctx))
		cancel()
		c.mongo = nil
	}
	c.mu.Unlock()

	errs = append(errs, c.closeRedis())
	return errors.Join(errs...)
}

func (c *Container) closeRedis() error {
	if !c.ownsRedis || c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
