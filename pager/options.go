package pager

import (
	"context"
	"log/slog"
	"time"

	"github.com/goliatone/go-repository-pager/cursor"
)

// Recorder receives engine metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// RequestCompleted is called once per Paginate with one of hit, miss,
	// invalid or error.
	RequestCompleted(result string)
	// CacheEvent is called with hit, miss, unavailable, decode_error or
	// put_error.
	CacheEvent(event string)
	// BackendFetch is called after every adapter attempt.
	BackendFetch(backend string, elapsed time.Duration, err error)
}

// FeedIndexer records which fingerprints serve a feed.
type FeedIndexer interface {
	Register(ctx context.Context, fingerprint string, feedIDs []string) error
}

type nopRecorder struct{}

func (nopRecorder) RequestCompleted(string)                    {}
func (nopRecorder) CacheEvent(string)                          {}
func (nopRecorder) BackendFetch(string, time.Duration, error) {}

type options struct {
	logger   *slog.Logger
	recorder Recorder
	feeds    FeedIndexer
	codec    *cursor.Codec
}

// Option configures an Engine.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithFeedIndex enables registration of feed tags attached with WithFeedTags.
func WithFeedIndex(idx FeedIndexer) Option {
	return func(o *options) {
		o.feeds = idx
	}
}

func WithCodec(c *cursor.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		recorder: nopRecorder{},
		codec:    cursor.NewCodec(),
	}
}
