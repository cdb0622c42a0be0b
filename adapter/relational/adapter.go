package relational

import (
	"context"
	"fmt"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/uptrace/bun"
)

// Lister runs a select built from criteria. Every go-repository-bun
// Repository satisfies it, and NewBunLister adapts a plain *bun.DB.
type Lister[T any] interface {
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
}

// Adapter executes keyset queries through bun.
type Adapter[T any] struct {
	lister  Lister[T]
	extract query.KeyExtractor[T]
	columns map[string]string
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

// WithColumn maps a spec field name to a column name.
func WithColumn[T any](field, column string) Option[T] {
	return func(a *Adapter[T]) {
		a.columns[field] = column
	}
}

func New[T any](lister Lister[T], opts ...Option[T]) *Adapter[T] {
	a := &Adapter[T]{
		lister:  lister,
		extract: query.FieldExtractor[T](),
		columns: map[string]string{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter[T]) Backend() query.Backend {
	return query.BackendRelational
}

// FetchPage implements query.Adapter.
func (a *Adapter[T]) FetchPage(ctx context.Context, req query.FetchRequest) (query.Result[T], error) {
	criteria, err := a.Criteria(req)
	if err != nil {
		return query.Result[T]{}, err
	}

	rows, _, err := a.lister.List(ctx, criteria...)
	if err != nil {
		return query.Result[T]{}, fmt.Errorf("relational: list %s: %w", req.Spec.Collection, err)
	}
	return query.BuildResult(rows, req, a.extract)
}

// Criteria translates req into go-repository-bun select criteria: filters,
// the keyset predicate, the effective ORDER BY and LIMIT n+1.
func (a *Adapter[T]) Criteria(req query.FetchRequest) ([]repository.SelectCriteria, error) {
	if err := req.Spec.Validate(); err != nil {
		return nil, err
	}
	if req.Limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", query.ErrUnsupported, req.Limit)
	}
	dir := req.Direction
	if !dir.Valid() {
		dir = query.Forward
	}

	sort := req.Spec.Normalized()
	criteria := make([]repository.SelectCriteria, 0, len(req.Spec.Filters)+len(sort)+2)

	for _, f := range req.Spec.Filters {
		c, err := a.filter(f)
		if err != nil {
			return nil, err
		}
		criteria = append(criteria, c)
	}

	if req.After != nil {
		clauses, err := query.Keyset(sort, req.After, dir)
		if err != nil {
			return nil, err
		}
		criteria = append(criteria, a.keyset(clauses))
	}

	for _, f := range sort {
		col := a.column(f.Field)
		order := "ASC"
		if query.EffectiveOrder(f, dir) == query.Desc {
			order = "DESC"
		}
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("? "+order, bun.Ident(col))
		})
	}

	limit := req.Limit + 1
	criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Limit(limit)
	})
	return criteria, nil
}

func (a *Adapter[T]) column(field string) string {
	if col, ok := a.columns[field]; ok {
		return col
	}
	return field
}

func (a *Adapter[T]) filter(f query.Filter) (repository.SelectCriteria, error) {
	col := a.column(f.Field)
	if f.Op == query.OpIn {
		value := f.Value
		return func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("? IN (?)", bun.Ident(col), bun.In(value))
		}, nil
	}

	expr, err := comparison(f.Op)
	if err != nil {
		return nil, err
	}
	value := f.Value
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where(expr, bun.Ident(col), value)
	}, nil
}

// keyset renders (c1) OR (c2) OR ... where each ci is an AND of conditions.
func (a *Adapter[T]) keyset(clauses [][]query.Condition) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, clause := range clauses {
				clause := clause
				q = q.WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					for _, cond := range clause {
						expr, _ := comparison(cond.Op)
						q = q.Where(expr, bun.Ident(a.column(cond.Field)), cond.Value)
					}
					return q
				})
			}
			return q
		})
	}
}

func comparison(op query.Operator) (string, error) {
	switch op {
	case query.OpEq:
		return "? = ?", nil
	case query.OpNe:
		return "? <> ?", nil
	case query.OpGt:
		return "? > ?", nil
	case query.OpGte:
		return "? >= ?", nil
	case query.OpLt:
		return "? < ?", nil
	case query.OpLte:
		return "? <= ?", nil
	}
	return "", fmt.Errorf("%w: operator %q", query.ErrUnsupported, op)
}

var _ query.Adapter[struct{}] = (*Adapter[struct{}])(nil)
