package pager

import (
	"fmt"

	"github.com/goliatone/go-repository-pager/query"
	"github.com/vmihailenco/msgpack/v5"
)

// PageRequest asks for one page of a query.
type PageRequest struct {
	Query query.Spec
	// Cursor is empty for the first page. A cursor carries its own
	// direction, which takes precedence over Direction.
	Cursor string
	// PageSize of 0 uses the configured default.
	PageSize int
	// Direction of a request without a cursor. Backward starts at the tail.
	Direction query.Direction
}

// QueryFingerprint identifies the logical query of the request.
func (r PageRequest) QueryFingerprint() string {
	return r.Query.Fingerprint()
}

// Page is one page of results. Items are always in the order the query
// sorts them, whatever the traversal direction.
type Page[T any] struct {
	Items []T
	// NextCursor continues in the traversal direction. Empty when there
	// are no further pages.
	NextCursor string
	// PrevCursor resumes in the opposite direction. Empty on a first page.
	PrevCursor  string
	HasMore     bool
	Fingerprint string
}

type pagePayload[T any] struct {
	Items      []T    `msgpack:"i"`
	NextCursor string `msgpack:"n,omitempty"`
	PrevCursor string `msgpack:"p,omitempty"`
	HasMore    bool   `msgpack:"h"`
}

func encodePage[T any](p Page[T]) ([]byte, error) {
	b, err := msgpack.Marshal(pagePayload[T]{
		Items:      p.Items,
		NextCursor: p.NextCursor,
		PrevCursor: p.PrevCursor,
		HasMore:    p.HasMore,
	})
	if err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	return b, nil
}

func decodePage[T any](b []byte, fingerprint string) (Page[T], error) {
	var p pagePayload[T]
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return Page[T]{}, fmt.Errorf("decode page: %w", err)
	}
	return Page[T]{
		Items:       p.Items,
		NextCursor:  p.NextCursor,
		PrevCursor:  p.PrevCursor,
		HasMore:     p.HasMore,
		Fingerprint: fingerprint,
	}, nil
}
