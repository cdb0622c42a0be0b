package di

import (
	"context"
	"fmt"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-pager/adapter/document"
	"github.com/goliatone/go-repository-pager/adapter/relational"
	"github.com/goliatone/go-repository-pager/invalidation"
	"github.com/goliatone/go-repository-pager/pager"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/goliatone/go-repository-pager/repositorycache"
)

// NewEngine builds an engine on the container cache with metrics, logging,
// the feed index and the configured cursor codec wired in. Adapters are
// attached with Register.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
func NewEngine[T any](c *Container, opts ...pager.Option) (*pager.Engine[T], error) {
	base := []pager.Option{
		pager.WithLogger(c.logger),
		pager.WithRecorder(c.metrics),
		pager.WithFeedIndex(c.feeds),
		pager.WithCodec(c.codec),
	}
	return pager.New[T](c.store, PagerConfig(c.cfg.Pager), append(base, opts...)...)
}

// Register attaches adapters to engine, each under its own backend.
func Register[T any](engine *pager.Engine[T], adapters ...query.Adapter[T]) {
	for _, a := range adapters {
		engine.Register(a)
	}
}

// NewRelationalAdapter builds a relational adapter over the container
// database.
func NewRelationalAdapter[T any](c *Container, opts ...relational.Option[T]) (*relational.Adapter[T], error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	return relational.New[T](relational.NewBunLister[T](db), opts...), nil
}

// NewDocumentAdapter builds a document adapter over the container mongo
// database.
func NewDocumentAdapter[T any](ctx context.Context, c *Container, opts ...document.Option[T]) (*document.Adapter[T], error) {
	db, err := c.MongoDatabase(ctx)
	if err != nil {
		return nil, err
	}
	return document.New[T](document.DatabaseResolver(db), opts...), nil
}

// NewListener builds the Kafka backed invalidation listener evicting from
// the container cache.
func (c *Container) NewListener() (*invalidation.Listener, error) {
	inv := c.cfg.Invalidation
	if !inv.Enabled {
		return nil, fmt.Errorf("di: invalidation is disabled")
	}
	source, err := invalidation.NewKafkaSource(c.kafkaConfig())
	if err != nil {
		return nil, err
	}
	return c.NewListenerFrom(source)
}

// NewListenerFrom builds a listener on any source.
func (c *Container) NewListenerFrom(source invalidation.Source) (*invalidation.Listener, error) {
	lcfg := invalidation.DefaultListenerConfig()
	if c.cfg.Invalidation.EvictAttempts > 0 {
		lcfg.EvictAttempts = c.cfg.Invalidation.EvictAttempts
	}
	return invalidation.NewListener(source, c.store,
		invalidation.WithLogger(c.logger),
		invalidation.WithRecorder(c.metrics),
		invalidation.WithFeedIndex(c.feeds),
		invalidation.WithDeadLetter(c.deadLetter),
		invalidation.WithListenerConfig(lcfg),
	)
}

// NewPublisher builds the Kafka publisher for mutation events.
func (c *Container) NewPublisher() (*invalidation.KafkaPublisher, error) {
	return invalidation.NewKafkaPublisher(c.kafkaConfig())
}

func (c *Container) kafkaConfig() invalidation.KafkaConfig {
	inv := c.cfg.Invalidation
	return invalidation.KafkaConfig{
		Brokers: inv.Brokers,
		GroupID: inv.GroupID,
		Topics:  inv.Topics,
	}
}

// NewNotifier wraps base so its writes publish mutation events.
func NewNotifier[T any](c *Container, base repository.Repository[T], publisher invalidation.Publisher, opts ...repositorycache.Option[T]) *repositorycache.Notifier[T] {
	return repositorycache.New(base, publisher, append([]repositorycache.Option[T]{repositorycache.WithLogger[T](c.logger)}, opts...)...)
}
