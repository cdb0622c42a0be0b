package di

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-repository-pager/cache"
	"github.com/goliatone/go-repository-pager/invalidation"
	"github.com/goliatone/go-repository-pager/pager"
	"github.com/goliatone/go-repository-pager/pkg/config"
	"github.com/goliatone/go-repository-pager/pkg/testsupport"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/redis/go-redis/v9"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Relational = config.RelationalConfig{Driver: "sqlite3", DSN: ":memory:"}
	return cfg
}

func newTestContainer(t *testing.T, cfg config.Config) (*Container, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c, err := NewContainer(cfg, WithRedisClient(client), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func seedFeed(t *testing.T, c *Container, feedID string, n int) {
	t.Helper()
	db, err := c.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	ctx := context.Background()
	if _, err := db.NewCreateTable().Model((*testsupport.FeedItem)(nil)).IfNotExists().Exec(ctx); err != nil {
		t.Fatalf("create table: %v", err)
	}
	items := testsupport.FeedItems(feedID, n)
	if _, err := db.NewInsert().Model(&items).Exec(ctx); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func itemIDs(items []testsupport.FeedItem) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

type idleSource struct{}

func (idleSource) Fetch(ctx context.Context) (invalidation.Message, error) {
	<-ctx.Done()
	return invalidation.Message{}, ctx.Err()
}

func (idleSource) Commit(context.Context, invalidation.Message) error { return nil }
func (idleSource) Close() error                                       { return nil }

type recordingPublisher struct {
	events []invalidation.FeedMutationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...invalidation.FeedMutationEvent) error {
	p.events = append(p.events, events...)
	return nil
}

func TestNewContainer(t *testing.T) {
	c, _ := newTestContainer(t, testConfig())

	if c.Store() == nil {
		t.Fatal("expected a store")
	}
	if c.Codec() == nil {
		t.Fatal("expected a codec")
	}
	if c.Metrics() == nil || c.Logger() == nil {
		t.Fatal("expected metrics and logger")
	}
	if c.FeedIndex() == nil || c.DeadLetter() == nil {
		t.Fatal("expected feed index and dead letter")
	}
	if c.Runner() != nil {
		t.Fatal("expected no runner without a local tier")
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestNewContainerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Pager.MaxPageSize = 1
	cfg.Pager.DefaultPageSize = 10

	if _, err := NewContainer(cfg, WithRedisClient(redis.NewClient(&redis.Options{}))); err == nil {
		t.Fatal("expected an error")
	}
}

func TestNewContainerWithLocalTier(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Local.Enabled = true

	c, _ := newTestContainer(t, cfg)
	if c.Runner() == nil {
		t.Fatal("expected the broadcast runner")
	}
}

func TestCacheConfig(t *testing.T) {
	in := config.CacheConfig{
		KeyPrefix:        "p:",
		IndexGrace:       time.Minute,
		BroadcastChannel: "evict",
	}

	out := CacheConfig(in)
	if out.Local != nil || out.BroadcastChannel != "" {
		t.Fatalf("expected no local tier, got %+v", out)
	}
	if out.KeyPrefix != "p:" || out.IndexGrace != time.Minute {
		t.Fatalf("unexpected mapping %+v", out)
	}

	in.Local = config.LocalConfig{Enabled: true, Capacity: 50, TTL: time.Second}
	out = CacheConfig(in)
	if out.Local == nil {
		t.Fatal("expected a local tier")
	}
	if out.Local.Capacity != 50 || out.Local.TTL != time.Second {
		t.Fatalf("unexpected local tier %+v", out.Local)
	}
	if out.Local.NumShards != cache.DefaultLocalConfig().NumShards {
		t.Fatalf("expected default shards, got %d", out.Local.NumShards)
	}
	if out.BroadcastChannel != "evict" {
		t.Fatalf("expected broadcast channel, got %q", out.BroadcastChannel)
	}
}

func TestPagerConfig(t *testing.T) {
	cfg := PagerConfig(config.Default().Pager)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default pager config invalid: %v", err)
	}
	if cfg.DefaultPageSize != 20 || cfg.TTL != 30*time.Second {
		t.Fatalf("unexpected pager config %+v", cfg)
	}
}

func TestOpenRelationalUnsupportedDriver(t *testing.T) {
	if _, err := OpenRelational("oracle", "dsn"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestBackendsNotConfigured(t *testing.T) {
	c, _ := newTestContainer(t, config.Default())

	if _, err := c.DB(); err == nil {
		t.Fatal("expected relational error")
	}
	if _, err := c.MongoDatabase(context.Background()); err == nil {
		t.Fatal("expected document error")
	}
	if _, err := NewRelationalAdapter[testsupport.FeedItem](c); err == nil {
		t.Fatal("expected adapter error")
	}
	if _, err := c.NewListener(); err == nil {
		t.Fatal("expected disabled listener error")
	}
}

func TestRelationalPagination(t *testing.T) {
	c, _ := newTestContainer(t, testConfig())
	feedID := testsupport.RandomFeedID()
	seedFeed(t, c, feedID, 25)

	engine, err := NewEngine[testsupport.FeedItem](c)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	adapter, err := NewRelationalAdapter[testsupport.FeedItem](c)
	if err != nil {
		t.Fatalf("NewRelationalAdapter: %v", err)
	}
	Register[testsupport.FeedItem](engine, adapter)

	ctx := context.Background()
	req := pager.PageRequest{Query: testsupport.ByIDSpec(query.BackendRelational, feedID), PageSize: 10}

	var got []int64
	for i := 0; i < 5; i++ {
		page, err := engine.Paginate(ctx, req)
		if err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
		got = append(got, itemIDs(page.Items)...)
		if !page.HasMore {
			break
		}
		req.Cursor = page.NextCursor
	}

	if len(got) != 25 || got[0] != 1 || got[24] != 25 {
		t.Fatalf("unexpected traversal %v", got)
	}
}

func TestFeedMutationEvictsCachedPages(t *testing.T) {
	c, _ := newTestContainer(t, testConfig())
	feedID := testsupport.RandomFeedID()
	seedFeed(t, c, feedID, 5)

	engine, err := NewEngine[testsupport.FeedItem](c)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	adapter, err := NewRelationalAdapter[testsupport.FeedItem](c)
	if err != nil {
		t.Fatalf("NewRelationalAdapter: %v", err)
	}
	engine.Register(adapter)

	ctx := pager.WithFeedTags(context.Background(), feedID)
	page, err := engine.Paginate(ctx, pager.PageRequest{
		Query: testsupport.ByIDSpec(query.BackendRelational, feedID),
	})
	if err != nil {
		t.Fatalf("Paginate: %v", err)
	}

	fps, err := c.FeedIndex().Lookup(ctx, feedID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !slices.Contains(fps, page.Fingerprint) {
		t.Fatalf("expected %s registered under %s, got %v", page.Fingerprint, feedID, fps)
	}

	listener, err := c.NewListenerFrom(idleSource{})
	if err != nil {
		t.Fatalf("NewListenerFrom: %v", err)
	}
	value, err := invalidation.EncodeEvent(invalidation.NewEvent(feedID, invalidation.Updated))
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}

	if outcome := listener.Handle(ctx, invalidation.Message{Value: value}); outcome != "evicted" {
		t.Fatalf("expected evicted, got %s", outcome)
	}
	_, err = c.Store().Get(ctx, page.Fingerprint, cache.FirstPageToken+"@20")
	if !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected cache miss after eviction, got %v", err)
	}
}

func TestPingReportsCacheFailure(t *testing.T) {
	c, mr := newTestContainer(t, testConfig())
	mr.Close()

	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestNewNotifier(t *testing.T) {
	c, _ := newTestContainer(t, testConfig())
	pub := &recordingPublisher{}

	n := NewNotifier[testsupport.FeedItem](c, nil, pub)
	if n.Collection() != "feed_item" {
		t.Fatalf("unexpected collection %q", n.Collection())
	}
	if feed := n.RecordFeed(testsupport.FeedItem{ID: 7}); feed != "feed_item:7" {
		t.Fatalf("unexpected record feed %q", feed)
	}
}
