package repositorycache

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-pager/invalidation"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/uptrace/bun"
)

var _ repository.Repository[any] = (*Notifier[any])(nil)

// FeedResolver returns extra feed ids touched by a mutation of record, such
// as the author timeline of a post.
type FeedResolver[T any] func(record T) []string

// Option configures a Notifier.
type Option[T any] func(*Notifier[T])

func WithFeedResolver[T any](fn FeedResolver[T]) Option[T] {
	return func(n *Notifier[T]) {
		n.resolve = fn
	}
}

func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(n *Notifier[T]) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithCollection overrides the collection feed id, which defaults to the
// snake_case name of T.
func WithCollection[T any](name string) Option[T] {
	return func(n *Notifier[T]) {
		if name != "" {
			n.collection = name
		}
	}
}

// Notifier decorates a repository and publishes a FeedMutationEvent after
// every successful write. Reads pass straight through to the base.
//
// Each event targets the collection feed (for example "post") and the record
// feed "<collection>:<id>". Publishing failures are logged and never fail the
// write; cached pages still expire with their TTL.
type Notifier[T any] struct {
	repository.Repository[T]

	publisher  invalidation.Publisher
	resolve    FeedResolver[T]
	collection string
	logger     *slog.Logger
}

// New wraps base so that its writes are announced on publisher.
func New[T any](base repository.Repository[T], publisher invalidation.Publisher, opts ...Option[T]) *Notifier[T] {
	n := &Notifier[T]{
		Repository: base,
		publisher:  publisher,
		collection: collectionName[T](),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Collection returns the collection feed id.
func (n *Notifier[T]) Collection() string {
	return n.collection
}

// RecordFeed returns the feed id of a single record, or "" when it has no
// readable id.
func (n *Notifier[T]) RecordFeed(record T) string {
	id, err := extractID(record)
	if err != nil {
		return ""
	}
	return n.collection + ":" + id
}

func (n *Notifier[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := n.Repository.Create(ctx, record, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Created, result)
	}
	return result, err
}

func (n *Notifier[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := n.Repository.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Created, result)
	}
	return result, err
}

func (n *Notifier[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := n.Repository.CreateMany(ctx, records, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Created, result...)
	}
	return result, err
}

func (n *Notifier[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := n.Repository.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Created, result...)
	}
	return result, err
}

// GetOrCreate may have created the record, so it is announced as created.
func (n *Notifier[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := n.Repository.GetOrCreate(ctx, record)
	if err == nil {
		n.notify(ctx, invalidation.Created, result)
	}
	return result, err
}

func (n *Notifier[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := n.Repository.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		n.notify(ctx, invalidation.Created, result)
	}
	return result, err
}

func (n *Notifier[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := n.Repository.Update(ctx, record, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Updated, result)
	}
	return result, err
}

func (n *Notifier[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := n.Repository.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Updated, result)
	}
	return result, err
}

func (n *Notifier[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := n.Repository.UpdateMany(ctx, records, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Updated, result...)
	}
	return result, err
}

func (n *Notifier[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := n.Repository.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Updated, result...)
	}
	return result, err
}

func (n *Notifier[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := n.Repository.Upsert(ctx, record, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Updated, result)
	}
	return result, err
}

func (n *Notifier[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := n.Repository.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Updated, result)
	}
	return result, err
}

func (n *Notifier[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := n.Repository.UpsertMany(ctx, records, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Updated, result...)
	}
	return result, err
}

func (n *Notifier[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := n.Repository.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Updated, result...)
	}
	return result, err
}

func (n *Notifier[T]) Delete(ctx context.Context, record T) error {
	err := n.Repository.Delete(ctx, record)
	if err == nil {
		n.notify(ctx, invalidation.Deleted, record)
	}
	return err
}

func (n *Notifier[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := n.Repository.DeleteTx(ctx, tx, record)
	if err == nil {
		n.notify(ctx, invalidation.Deleted, record)
	}
	return err
}

func (n *Notifier[T]) ForceDelete(ctx context.Context, record T) error {
	err := n.Repository.ForceDelete(ctx, record)
	if err == nil {
		n.notify(ctx, invalidation.Deleted, record)
	}
	return err
}

func (n *Notifier[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := n.Repository.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		n.notify(ctx, invalidation.Deleted, record)
	}
	return err
}

// DeleteMany does not know which records went away, so only the collection
// feed is announced.
func (n *Notifier[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := n.Repository.DeleteMany(ctx, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Deleted)
	}
	return err
}

func (n *Notifier[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := n.Repository.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Deleted)
	}
	return err
}

func (n *Notifier[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := n.Repository.DeleteWhere(ctx, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Deleted)
	}
	return err
}

func (n *Notifier[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := n.Repository.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		n.notify(ctx, invalidation.Deleted)
	}
	return err
}

func (n *Notifier[T]) notify(ctx context.Context, kind invalidation.MutationKind, records ...T) {
	if n.publisher == nil {
		return
	}

	feeds := []string{n.collection}
	for _, record := range records {
		if feed := n.RecordFeed(record); feed != "" {
			feeds = append(feeds, feed)
		}
		if n.resolve != nil {
			feeds = append(feeds, n.resolve(record)...)
		}
	}

	events := make([]invalidation.FeedMutationEvent, 0, len(feeds))
	seen := make(map[string]struct{}, len(feeds))
	for _, feed := range feeds {
		if _, ok := seen[feed]; ok || feed == "" {
			continue
		}
		seen[feed] = struct{}{}
		events = append(events, invalidation.NewEvent(feed, kind))
	}

	if err := n.publisher.Publish(ctx, events...); err != nil {
		n.logger.Warn("publishing feed mutation failed",
			"collection", n.collection, "kind", kind, "feeds", len(events), "error", err)
	}
}

func collectionName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "record"
	}
	return query.SnakeCase(t.Name())
}

// extractID reads the id field of record through the same field mapping the
// key extractors use.
func extractID(record any) (string, error) {
	for _, name := range []string{"id", "ID", "Id"} {
		if v, ok := query.FieldValue(record, name); ok {
			return fmt.Sprintf("%v", v), nil
		}
	}
	return "", fmt.Errorf("no ID field found in %T", record)
}
