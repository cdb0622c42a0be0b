package query

import (
	"context"
	"fmt"
)

// FetchRequest is what the engine hands to an adapter for one page.
type FetchRequest struct {
	Spec Spec
	// After holds the normalized sort key of the cursor position. Nil starts
	// from the head (forward) or the tail (backward) of the result set.
	After     []any
	Limit     int
	Direction Direction
}

// Result is one page fetched by an adapter. Items are in requested sort order
// regardless of direction.
type Result[T any] struct {
	Items    []T
	FirstKey []any
	LastKey  []any
	HasMore  bool
}

// Adapter executes a paginated query against one backend. Implementations
// must apply the normalized sort (tie breaker included), fetch Limit+1 rows
// and use the extra row only to compute HasMore.
type Adapter[T any] interface {
	Backend() Backend
	FetchPage(ctx context.Context, req FetchRequest) (Result[T], error)
}

// BuildResult windows rows fetched with limit+1 and extracts the boundary
// sort keys with extract.
func BuildResult[T any](rows []T, req FetchRequest, extract KeyExtractor[T]) (Result[T], error) {
	items, hasMore := Window(rows, req.Limit, req.Direction)
	res := Result[T]{Items: items, HasMore: hasMore}
	if len(items) == 0 {
		return res, nil
	}

	sort := req.Spec.Normalized()
	first, err := extract(items[0], sort)
	if err != nil {
		return Result[T]{}, fmt.Errorf("extract first sort key: %w", err)
	}
	last, err := extract(items[len(items)-1], sort)
	if err != nil {
		return Result[T]{}, fmt.Errorf("extract last sort key: %w", err)
	}
	res.FirstKey = first
	res.LastKey = last
	return res, nil
}
