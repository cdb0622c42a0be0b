package relational

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// BunLister lists rows of T straight from a bun.IDB, without a count query.
type BunLister[T any] struct {
	db bun.IDB
}

func NewBunLister[T any](db bun.IDB) *BunLister[T] {
	return &BunLister[T]{db: db}
}

// List implements Lister. The returned count is the number of rows scanned.
func (l *BunLister[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	var rows []T
	q := l.db.NewSelect().Model(&rows)
	for _, c := range criteria {
		q = c(q)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, 0, err
	}
	return rows, len(rows), nil
}
