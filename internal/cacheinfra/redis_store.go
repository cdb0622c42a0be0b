package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared L2 tier. Every page key of a fingerprint is also
// recorded in a per fingerprint index set so eviction does not need SCAN.
//
//	<prefix><fp>:<token>   msgpack Entry, PX ttl
//	<prefix>idx:<fp>       set of page keys, PX ttl+grace
//	<prefix>fps            set of fingerprints with live pages
type RedisStore struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
}

// NewRedisStore creates a store on an existing client. The client is owned by
// the caller and is not closed by Close.
func NewRedisStore(client redis.UniversalClient, cfg Config) (*RedisStore, error) {
	if client == nil {
		return nil, &ConfigError{Field: "client", Message: "cannot be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client, cfg: cfg, prefix: cfg.prefix()}, nil
}

func (s *RedisStore) pageKey(fingerprint, token string) string {
	return s.prefix + Key(fingerprint, token)
}

func (s *RedisStore) indexKey(fingerprint string) string {
	return s.prefix + "idx" + KeySeparator + fingerprint
}

func (s *RedisStore) registryKey() string {
	return s.prefix + "fps"
}

func (s *RedisStore) Get(ctx context.Context, fingerprint, token string) ([]byte, error) {
	e, err := s.GetEntry(ctx, fingerprint, token)
	if err != nil {
		return nil, err
	}
	return e.Payload, nil
}

// GetEntry returns the full envelope for key fingerprint:token. Entries that
// fail to decode are reported as misses.
func (s *RedisStore) GetEntry(ctx context.Context, fingerprint, token string) (Entry, error) {
	raw, err := s.client.Get(ctx, s.pageKey(fingerprint, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, unavailable("get", err)
	}

	e, err := DecodeEntry(raw)
	if err != nil {
		s.cfg.logger().Warn("dropping undecodable cache entry",
			"fingerprint", fingerprint, "token", token, "error", err)
		return Entry{}, ErrMiss
	}
	if e.Expired(s.cfg.now()) {
		return Entry{}, ErrMiss
	}
	return e, nil
}

// Put overwrites the page and refreshes the fingerprint index in one
// MULTI/EXEC.
func (s *RedisStore) Put(ctx context.Context, fingerprint, token string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := EncodeEntry(Entry{StoredAt: s.cfg.now(), TTL: ttl, Payload: payload})
	if err != nil {
		return err
	}

	key := s.pageKey(fingerprint, token)
	idx := s.indexKey(fingerprint)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, raw, ttl)
	pipe.SAdd(ctx, idx, key)
	pipe.PExpire(ctx, idx, ttl+s.cfg.IndexGrace)
	pipe.SAdd(ctx, s.registryKey(), fingerprint)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("put", err)
	}
	return nil
}

// Evict deletes every page recorded in the fingerprint index. It is
// idempotent.
func (s *RedisStore) Evict(ctx context.Context, fingerprint string) error {
	idx := s.indexKey(fingerprint)
	members, err := s.client.SMembers(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return unavailable("evict", err)
	}

	// one key per command so cluster clients can route each to its slot
	pipe := s.client.Pipeline()
	for _, key := range members {
		pipe.Del(ctx, key)
	}
	pipe.Del(ctx, idx)
	pipe.SRem(ctx, s.registryKey(), fingerprint)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("evict", err)
	}
	return nil
}

// EvictAll evicts every fingerprint known to the registry.
func (s *RedisStore) EvictAll(ctx context.Context) error {
	fps, err := s.Fingerprints(ctx)
	if err != nil {
		return err
	}
	for _, fp := range fps {
		if err := s.Evict(ctx, fp); err != nil {
			return err
		}
	}
	return nil
}

// Fingerprints lists the fingerprints that had pages stored since their last
// eviction. Some of them may have expired already.
func (s *RedisStore) Fingerprints(ctx context.Context) ([]string, error) {
	fps, err := s.client.SMembers(ctx, s.registryKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("fingerprints", err)
	}
	return fps, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return nil }
