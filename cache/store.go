package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-pager/internal/cacheinfra"
)

var (
	// ErrMiss is returned by Get for absent or stale pages.
	ErrMiss = cacheinfra.ErrMiss
	// ErrCacheUnavailable wraps every backend failure. Callers bypass the
	// cache when they see it.
	ErrCacheUnavailable = cacheinfra.ErrCacheUnavailable
)

const (
	FirstPageToken = cacheinfra.FirstPageToken
	LastPageToken  = cacheinfra.LastPageToken
)

// Entry is the stored envelope of a cached page.
type Entry = cacheinfra.Entry

// Key returns the cache key of a page: fingerprint + ":" + token.
func Key(fingerprint, token string) string {
	return cacheinfra.Key(fingerprint, token)
}

// Store is the Page Cache contract.
type Store interface {
	// Get returns the payload stored for fingerprint and token, or ErrMiss.
	Get(ctx context.Context, fingerprint, token string) ([]byte, error)

	// Put overwrites the page. A non positive ttl stores nothing.
	Put(ctx context.Context, fingerprint, token string, payload []byte, ttl time.Duration) error

	// Evict removes every page of fingerprint. Evicting an unknown
	// fingerprint is not an error.
	Evict(ctx context.Context, fingerprint string) error

	// EvictAll removes every page.
	EvictAll(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

// Runner is a background loop started next to a store, such as the L1
// eviction broadcast subscriber.
type Runner interface {
	Run(ctx context.Context) error
}

var (
	_ Store = (*cacheinfra.RedisStore)(nil)
	_ Store = (*cacheinfra.LocalStore)(nil)
	_ Store = (*cacheinfra.TieredStore)(nil)
	_ Runner = (*cacheinfra.Broadcaster)(nil)
)
