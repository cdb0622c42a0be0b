package invalidation

import (
	"context"
	"time"
)

// Message is one record pulled from a Source.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time

	// ack is the source specific handle Commit needs.
	ack any
}

// Source delivers messages in order and commits them once handled.
type Source interface {
	// Fetch blocks until a message is available or ctx is done.
	Fetch(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msg Message) error
	Close() error
}

// Publisher sends mutation events to the listeners.
type Publisher interface {
	Publish(ctx context.Context, events ...FeedMutationEvent) error
}
