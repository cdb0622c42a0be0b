package cacheinfra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultBroadcastChannel is used when Config.BroadcastChannel is empty but
// broadcasting is requested explicitly.
const DefaultBroadcastChannel = "pager:cache:evict"

type localEvicter interface {
	Evict(ctx context.Context, fingerprint string) error
	EvictAll(ctx context.Context) error
}

type broadcastMessage struct {
	Origin      string `msgpack:"o"`
	Fingerprint string `msgpack:"f,omitempty"`
	All         bool   `msgpack:"a,omitempty"`
}

// Broadcaster propagates evictions to the L1 tier of every other instance
// over Redis pub/sub. Messages published by this instance are ignored on
// receipt.
type Broadcaster struct {
	client  redis.UniversalClient
	channel string
	origin  string
	local   localEvicter
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func NewBroadcaster(client redis.UniversalClient, channel string, local localEvicter, logger *slog.Logger) *Broadcaster {
	if channel == "" {
		channel = DefaultBroadcastChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		logger:  logger,
	}
}

// Publish announces that fingerprint was evicted.
func (b *Broadcaster) Publish(ctx context.Context, fingerprint string) error {
	return b.publish(ctx, broadcastMessage{Origin: b.origin, Fingerprint: fingerprint})
}

// PublishAll announces a full eviction.
func (b *Broadcaster) PublishAll(ctx context.Context) error {
	return b.publish(ctx, broadcastMessage{Origin: b.origin, All: true})
}

func (b *Broadcaster) publish(ctx context.Context, msg broadcastMessage) error {
	raw, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return unavailable("publish", err)
	}
	return nil
}

// Run subscribes to the channel and evicts the local tier for every message
// sent by a peer. It blocks until ctx is cancelled or Close is called.
func (b *Broadcaster) Run(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return nil
	}
	b.cancel = cancel
	b.mu.Unlock()
	defer cancel()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	// wait for the subscription so publishes after Run starts are not lost
	if _, err := pubsub.Receive(subCtx); err != nil {
		if subCtx.Err() != nil {
			return nil
		}
		return unavailable("subscribe", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(subCtx, msg.Payload)
		}
	}
}

func (b *Broadcaster) handle(ctx context.Context, payload string) {
	var msg broadcastMessage
	if err := msgpack.Unmarshal([]byte(payload), &msg); err != nil {
		b.logger.Warn("ignoring malformed cache broadcast", "error", err)
		return
	}
	if msg.Origin == b.origin {
		return
	}

	var err error
	if msg.All {
		err = b.local.EvictAll(ctx)
	} else {
		err = b.local.Evict(ctx, msg.Fingerprint)
	}
	if err != nil {
		b.logger.Warn("local eviction from broadcast failed",
			"fingerprint", msg.Fingerprint, "all", msg.All, "error", err)
	}
}

// Close stops Run.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}
