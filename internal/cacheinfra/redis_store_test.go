package cacheinfra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestRedisStore(t *testing.T, clock *fakeClock) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, client := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.Clock = clock.Now
	store, err := NewRedisStore(client, cfg)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	return mr, store
}

func TestRedisStore_PutGet(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRedisStore(t, newFakeClock())

	if _, err := store.Get(ctx, "fp", FirstPageToken); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss on empty store, got %v", err)
	}

	if err := store.Put(ctx, "fp", FirstPageToken, []byte("page-1"), time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := store.Get(ctx, "fp", FirstPageToken)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "page-1" {
		t.Errorf("Get() = %q, want %q", got, "page-1")
	}

	// whole value overwrite
	if err := store.Put(ctx, "fp", FirstPageToken, []byte("page-1b"), time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, _ = store.Get(ctx, "fp", FirstPageToken)
	if string(got) != "page-1b" {
		t.Errorf("expected last write to win, got %q", got)
	}
}

func TestRedisStore_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	_, store := newTestRedisStore(t, clock)

	if err := store.Put(ctx, "fp", "tok", []byte("x"), 5*time.Second); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	clock.Advance(4 * time.Second)
	if _, err := store.Get(ctx, "fp", "tok"); err != nil {
		t.Fatalf("expected hit before ttl, got %v", err)
	}

	// backend still holds the key; the envelope check must hide it
	clock.Advance(2 * time.Second)
	if _, err := store.Get(ctx, "fp", "tok"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss after ttl, got %v", err)
	}
}

func TestRedisStore_BackendExpiry(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedisStore(t, newFakeClock())

	if err := store.Put(ctx, "fp", "tok", []byte("x"), 5*time.Second); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	mr.FastForward(6 * time.Second)
	if _, err := store.Get(ctx, "fp", "tok"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss after backend expiry, got %v", err)
	}
}

func TestRedisStore_Evict(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedisStore(t, newFakeClock())

	for _, tok := range []string{FirstPageToken, "c1@10", "c2@10"} {
		if err := store.Put(ctx, "fpA", tok, []byte(tok), time.Minute); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	if err := store.Put(ctx, "fpB", FirstPageToken, []byte("b"), time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.Evict(ctx, "fpA"); err != nil {
		t.Fatalf("Evict() error = %v", err)
	}
	for _, tok := range []string{FirstPageToken, "c1@10", "c2@10"} {
		if _, err := store.Get(ctx, "fpA", tok); !errors.Is(err, ErrMiss) {
			t.Errorf("expected %s to be evicted, got %v", tok, err)
		}
	}
	if _, err := store.Get(ctx, "fpB", FirstPageToken); err != nil {
		t.Errorf("other fingerprints must survive, got %v", err)
	}
	if mr.Exists("pager:idx:fpA") {
		t.Error("expected index set to be removed")
	}

	// idempotent
	if err := store.Evict(ctx, "fpA"); err != nil {
		t.Errorf("second Evict() error = %v", err)
	}
	if err := store.Evict(ctx, "never-stored"); err != nil {
		t.Errorf("Evict() of unknown fingerprint error = %v", err)
	}
}

func TestRedisStore_IndexTTL(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedisStore(t, newFakeClock())

	if err := store.Put(ctx, "fp", "tok", []byte("x"), 10*time.Second); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	ttl := mr.TTL("pager:idx:fp")
	if want := 10*time.Second + time.Minute; ttl != want {
		t.Errorf("index ttl = %v, want %v", ttl, want)
	}
	if ok, _ := mr.SIsMember("pager:fps", "fp"); !ok {
		t.Error("expected fingerprint in registry")
	}
}

func TestRedisStore_EvictAll(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRedisStore(t, newFakeClock())

	for _, fp := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, fp, FirstPageToken, []byte(fp), time.Minute); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	if err := store.EvictAll(ctx); err != nil {
		t.Fatalf("EvictAll() error = %v", err)
	}
	for _, fp := range []string{"a", "b", "c"} {
		if _, err := store.Get(ctx, fp, FirstPageToken); !errors.Is(err, ErrMiss) {
			t.Errorf("expected %s evicted, got %v", fp, err)
		}
	}
	fps, err := store.Fingerprints(ctx)
	if err != nil || len(fps) != 0 {
		t.Errorf("expected empty registry, got %v, %v", fps, err)
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedisStore(t, newFakeClock())
	mr.Close()

	if _, err := store.Get(ctx, "fp", "tok"); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Get() error = %v, want ErrCacheUnavailable", err)
	}
	if err := store.Put(ctx, "fp", "tok", []byte("x"), time.Minute); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Put() error = %v, want ErrCacheUnavailable", err)
	}
	if err := store.Evict(ctx, "fp"); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Evict() error = %v, want ErrCacheUnavailable", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Ping() error = %v, want ErrCacheUnavailable", err)
	}
}

func TestRedisStore_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedisStore(t, newFakeClock())

	if err := mr.Set("pager:fp:tok", "not msgpack \xc1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(ctx, "fp", "tok"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected corrupt entry to read as miss, got %v", err)
	}
}

func TestNewRedisStore_Validation(t *testing.T) {
	if _, err := NewRedisStore(nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil client")
	}

	_, client := newTestRedis(t)
	cfg := DefaultConfig()
	cfg.IndexGrace = -time.Second
	_, err := NewRedisStore(client, cfg)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "IndexGrace" {
		t.Errorf("expected IndexGrace ConfigError, got %v", err)
	}
}
