package invalidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Evicter removes every cached page of a fingerprint. cache.Store and
// pager.Engine both satisfy it.
type Evicter interface {
	Evict(ctx context.Context, fingerprint string) error
}

// Recorder receives listener metrics.
type Recorder interface {
	// Invalidation is called once per handled message with one of evicted,
	// partial, no_targets, malformed or index_error.
	Invalidation(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Invalidation(string) {}

// ListenerConfig tunes retries of the listener.
type ListenerConfig struct {
	// EvictAttempts counts the first try.
	EvictAttempts        uint
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// FetchErrorDelay is the pause after a failed Fetch.
	FetchErrorDelay time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		EvictAttempts:        3,
		RetryInitialInterval: 50 * time.Millisecond,
		RetryMaxInterval:     time.Second,
		FetchErrorDelay:      time.Second,
	}
}

// Validate implements validation.Validatable.
func (c ListenerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.EvictAttempts, validation.Required),
		validation.Field(&c.RetryInitialInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.RetryMaxInterval, validation.Min(c.RetryInitialInterval)),
		validation.Field(&c.FetchErrorDelay, validation.Min(time.Duration(0))),
	)
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithRecorder(r Recorder) ListenerOption {
	return func(l *Listener) {
		if r != nil {
			l.recorder = r
		}
	}
}

// WithFeedIndex resolves fingerprints of events that carry none.
func WithFeedIndex(idx FeedIndex) ListenerOption {
	return func(l *Listener) {
		l.index = idx
	}
}

func WithDeadLetter(dl DeadLetter) ListenerOption {
	return func(l *Listener) {
		l.deadLetter = dl
	}
}

func WithListenerConfig(cfg ListenerConfig) ListenerOption {
	return func(l *Listener) {
		l.cfg = cfg
	}
}

// Listener applies mutation events to the page cache.
type Listener struct {
	source     Source
	evicter    Evicter
	index      FeedIndex
	deadLetter DeadLetter
	cfg        ListenerConfig
	logger     *slog.Logger
	recorder   Recorder
}

func NewListener(source Source, evicter Evicter, opts ...ListenerOption) (*Listener, error) {
	if source == nil {
		return nil, errors.New("invalidation: source is required")
	}
	if evicter == nil {
		return nil, errors.New("invalidation: evicter is required")
	}

	l := &Listener{
		source:   source,
		evicter:  evicter,
		cfg:      DefaultListenerConfig(),
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalidation: invalid listener config: %w", err)
	}
	return l, nil
}

// Run handles messages one at a time until ctx is cancelled. Every message is
// committed after it is handled, whatever the outcome.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("invalidation listener started")
	defer l.logger.Info("invalidation listener stopped")

	for {
		msg, err := l.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("fetching mutation event failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.cfg.FetchErrorDelay):
			}
			continue
		}

		l.Handle(ctx, msg)

		if err := l.source.Commit(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("committing mutation event failed",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// Handle applies a single message and returns its outcome.
func (l *Listener) Handle(ctx context.Context, msg Message) string {
	outcome := l.handle(ctx, msg)
	l.recorder.Invalidation(outcome)
	return outcome
}

func (l *Listener) handle(ctx context.Context, msg Message) string {
	event, err := DecodeEvent(msg.Value)
	if err != nil {
		l.logger.Warn("dropping malformed mutation event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		if l.deadLetter != nil {
			if dlErr := l.deadLetter.Push(ctx, msg, err); dlErr != nil {
				l.logger.Error("dead letter push failed", "offset", msg.Offset, "error", dlErr)
			}
		}
		return "malformed"
	}

	fps, err := l.resolve(ctx, event)
	if err != nil {
		l.logger.Error("resolving feed fingerprints failed",
			"feed_id", event.FeedID, "event_id", event.EventID, "error", err)
		return "index_error"
	}
	if len(fps) == 0 {
		l.logger.Debug("mutation event matches no cached query",
			"feed_id", event.FeedID, "event_id", event.EventID)
		return "no_targets"
	}

	failed := 0
	for _, fp := range fps {
		if err := l.evict(ctx, fp); err != nil {
			failed++
			l.logger.Error("evicting fingerprint failed, relying on ttl",
				"fingerprint", fp, "feed_id", event.FeedID, "event_id", event.EventID, "error", err)
		}
	}
	if failed > 0 {
		return "partial"
	}
	l.logger.Debug("mutation event applied",
		"feed_id", event.FeedID, "kind", event.MutationKind, "fingerprints", len(fps))
	return "evicted"
}

func (l *Listener) resolve(ctx context.Context, event FeedMutationEvent) ([]string, error) {
	if len(event.AffectedQueryFingerprints) > 0 {
		return dedupe(event.AffectedQueryFingerprints), nil
	}
	if l.index == nil {
		return nil, nil
	}
	fps, err := l.index.Lookup(ctx, event.FeedID)
	if err != nil {
		return nil, err
	}
	return dedupe(fps), nil
}

func (l *Listener) evict(ctx context.Context, fp string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.RetryInitialInterval
	b.MaxInterval = l.cfg.RetryMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, l.evicter.Evict(ctx, fp)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(l.cfg.EvictAttempts),
	)
	return err
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Close closes the underlying source. Call it after Run returns.
func (l *Listener) Close() error {
	return l.source.Close()
}
