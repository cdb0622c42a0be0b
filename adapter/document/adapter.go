package document

import (
	"context"
	"fmt"

	"github.com/goliatone/go-repository-pager/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Finder is the subset of *mongo.Collection the adapter needs.
type Finder interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// CollectionResolver returns the collection named by a spec.
type CollectionResolver func(name string) Finder

// DatabaseResolver resolves collections from a mongo database.
func DatabaseResolver(db *mongo.Database) CollectionResolver {
	return func(name string) Finder {
		return db.Collection(name)
	}
}

// Adapter executes keyset queries with Find.
type Adapter[T any] struct {
	resolve CollectionResolver
	extract query.KeyExtractor[T]
}

// Option configures an Adapter.
type Option[T any] func(*Adapter[T])

// WithExtractor overrides the reflection based sort key extractor.
func WithExtractor[T any](extract query.KeyExtractor[T]) Option[T] {
	return func(a *Adapter[T]) {
		if extract != nil {
			a.extract = extract
		}
	}
}

func New[T any](resolve CollectionResolver, opts ...Option[T]) *Adapter[T] {
	a := &Adapter[T]{
		resolve: resolve,
		extract: query.FieldExtractor[T](),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter[T]) Backend() query.Backend {
	return query.BackendDocument
}

// FetchPage implements query.Adapter.
func (a *Adapter[T]) FetchPage(ctx context.Context, req query.FetchRequest) (query.Result[T], error) {
	filter, opts, err := Build(req)
	if err != nil {
		return query.Result[T]{}, err
	}

	cur, err := a.resolve(req.Spec.Collection).Find(ctx, filter, opts)
	if err != nil {
		return query.Result[T]{}, fmt.Errorf("document: find %s: %w", req.Spec.Collection, err)
	}
	defer cur.Close(ctx)

	var rows []T
	if err := cur.All(ctx, &rows); err != nil {
		return query.Result[T]{}, fmt.Errorf("document: decode %s: %w", req.Spec.Collection, err)
	}
	return query.BuildResult(rows, req, a.extract)
}

// Build returns the filter document and find options for req.
func Build(req query.FetchRequest) (bson.D, *options.FindOptions, error) {
	if err := req.Spec.Validate(); err != nil {
		return nil, nil, err
	}
	if req.Limit < 1 {
		return nil, nil, fmt.Errorf("%w: limit must be positive, got %d", query.ErrUnsupported, req.Limit)
	}
	dir := req.Direction
	if !dir.Valid() {
		dir = query.Forward
	}
	sort := req.Spec.Normalized()

	var and bson.A
	for _, f := range req.Spec.Filters {
		doc, err := predicate(f.Field, f.Op, f.Value, query.KindOf(f.Value))
		if err != nil {
			return nil, nil, err
		}
		and = append(and, doc)
	}

	if req.After != nil {
		clauses, err := query.Keyset(sort, req.After, dir)
		if err != nil {
			return nil, nil, err
		}
		or := make(bson.A, 0, len(clauses))
		for _, clause := range clauses {
			parts := make(bson.A, 0, len(clause))
			for _, c := range clause {
				doc, err := predicate(c.Field, c.Op, c.Value, c.Kind)
				if err != nil {
					return nil, nil, err
				}
				parts = append(parts, doc)
			}
			if len(parts) == 1 {
				or = append(or, parts[0])
			} else {
				or = append(or, bson.D{{Key: "$and", Value: parts}})
			}
		}
		and = append(and, bson.D{{Key: "$or", Value: or}})
	}

	filter := bson.D{}
	if len(and) > 0 {
		filter = bson.D{{Key: "$and", Value: and}}
	}

	order := make(bson.D, 0, len(sort))
	for _, f := range sort {
		v := 1
		if query.EffectiveOrder(f, dir) == query.Desc {
			v = -1
		}
		order = append(order, bson.E{Key: f.Field, Value: v})
	}

	opts := options.Find().SetSort(order).SetLimit(int64(req.Limit + 1))
	return filter, opts, nil
}

func predicate(field string, op query.Operator, value any, kind query.Kind) (bson.D, error) {
	value, err := toBSON(value, kind)
	if err != nil {
		return nil, err
	}

	var mop string
	switch op {
	case query.OpEq:
		mop = "$eq"
	case query.OpNe:
		mop = "$ne"
	case query.OpGt:
		mop = "$gt"
	case query.OpGte:
		mop = "$gte"
	case query.OpLt:
		mop = "$lt"
	case query.OpLte:
		mop = "$lte"
	case query.OpIn:
		mop = "$in"
	default:
		return nil, fmt.Errorf("%w: operator %q", query.ErrUnsupported, op)
	}
	return bson.D{{Key: field, Value: bson.D{{Key: mop, Value: value}}}}, nil
}

// toBSON converts normalized object id hex strings back to ObjectIDs.
func toBSON(value any, kind query.Kind) (any, error) {
	if kind != query.KindObjectID {
		return value, nil
	}
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return nil, fmt.Errorf("%w: object id %q: %v", query.ErrUnsupported, s, err)
	}
	return oid, nil
}

var _ query.Adapter[bson.M] = (*Adapter[bson.M])(nil)
