package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDeadLetterKey is the Redis list holding rejected messages.
const DefaultDeadLetterKey = "pager:invalidation:dead-letter"

// DeadLetter parks messages the listener could not handle.
type DeadLetter interface {
	Push(ctx context.Context, msg Message, reason error) error
}

// DeadLetterRecord is one parked message.
type DeadLetterRecord struct {
	Topic     string    `json:"topic"`
	Partition int       `json:"partition"`
	Offset    int64     `json:"offset"`
	Key       []byte    `json:"key,omitempty"`
	Value     []byte    `json:"value"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failedAt"`
}

// RedisDeadLetter appends records to a Redis list capped at maxLen entries.
type RedisDeadLetter struct {
	client redis.UniversalClient
	key    string
	maxLen int64
	now    func() time.Time
}

func NewRedisDeadLetter(client redis.UniversalClient, key string, maxLen int64) *RedisDeadLetter {
	if key == "" {
		key = DefaultDeadLetterKey
	}
	return &RedisDeadLetter{client: client, key: key, maxLen: maxLen, now: time.Now}
}

func (d *RedisDeadLetter) Push(ctx context.Context, msg Message, reason error) error {
	rec := DeadLetterRecord{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		FailedAt:  d.now().UTC(),
	}
	if reason != nil {
		rec.Reason = reason.Error()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("dead letter encode: %w", err)
	}

	pipe := d.client.TxPipeline()
	pipe.RPush(ctx, d.key, raw)
	if d.maxLen > 0 {
		pipe.LTrim(ctx, d.key, -d.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead letter push: %w", err)
	}
	return nil
}

// Drain pops up to n of the oldest records.
func (d *RedisDeadLetter) Drain(ctx context.Context, n int) ([]DeadLetterRecord, error) {
	raws, err := d.client.LPopCount(ctx, d.key, n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dead letter drain: %w", err)
	}

	out := make([]DeadLetterRecord, 0, len(raws))
	for _, raw := range raws {
		var rec DeadLetterRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return out, fmt.Errorf("dead letter decode: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of parked records.
func (d *RedisDeadLetter) Len(ctx context.Context) (int64, error) {
	n, err := d.client.LLen(ctx, d.key).Result()
	if err != nil {
		return 0, fmt.Errorf("dead letter len: %w", err)
	}
	return n, nil
}
