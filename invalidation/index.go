package invalidation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFeedIndexPrefix namespaces the feed index sets.
const DefaultFeedIndexPrefix = "pager:feed:"

// FeedIndex maps a feed id to the fingerprints of cached queries serving it.
type FeedIndex interface {
	Lookup(ctx context.Context, feedID string) ([]string, error)
}

// RedisFeedIndex keeps one set per feed. The engine writes it on every cached
// page tagged with feed ids; the listener reads it for events that carry no
// fingerprints.
type RedisFeedIndex struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisFeedIndex creates an index whose sets expire ttl after their last
// registration. A zero ttl keeps them forever.
func NewRedisFeedIndex(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisFeedIndex {
	if prefix == "" {
		prefix = DefaultFeedIndexPrefix
	}
	return &RedisFeedIndex{client: client, prefix: prefix, ttl: ttl}
}

func (x *RedisFeedIndex) key(feedID string) string {
	return x.prefix + feedID
}

// Register adds fingerprint to the set of every feed in feedIDs.
func (x *RedisFeedIndex) Register(ctx context.Context, fingerprint string, feedIDs []string) error {
	if fingerprint == "" || len(feedIDs) == 0 {
		return nil
	}

	pipe := x.client.Pipeline()
	for _, id := range feedIDs {
		pipe.SAdd(ctx, x.key(id), fingerprint)
		if x.ttl > 0 {
			pipe.Expire(ctx, x.key(id), x.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("feed index register: %w", err)
	}
	return nil
}

func (x *RedisFeedIndex) Lookup(ctx context.Context, feedID string) ([]string, error) {
	fps, err := x.client.SMembers(ctx, x.key(feedID)).Result()
	if err != nil {
		return nil, fmt.Errorf("feed index lookup %q: %w", feedID, err)
	}
	return fps, nil
}

// Forget drops the set of feedID.
func (x *RedisFeedIndex) Forget(ctx context.Context, feedID string) error {
	if err := x.client.Del(ctx, x.key(feedID)).Err(); err != nil {
		return fmt.Errorf("feed index forget %q: %w", feedID, err)
	}
	return nil
}
