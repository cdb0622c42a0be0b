package query

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrUnsupported marks a query the adapters cannot execute. It is permanent:
// retrying the same request will fail the same way.
var ErrUnsupported = errors.New("query: unsupported")

// Backend names a registered Query Adapter.
type Backend string

const (
	BackendRelational Backend = "relational"
	BackendDocument   Backend = "document"
)

// Order is the sort order of a single field.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Kind declares the comparable type of a sort key. Cursor values are coerced
// to it on decode.
type Kind string

const (
	KindString   Kind = "string"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindTime     Kind = "time"
	KindObjectID Kind = "objectid"
)

// Direction is the traversal direction of a page request.
type Direction int8

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Backward {
		return Forward
	}
	return Backward
}

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Valid reports whether d is one of the declared directions.
func (d Direction) Valid() bool {
	return d == Forward || d == Backward
}

// Operator is a filter comparison.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// SortField is one entry of a sort specification.
type SortField struct {
	Field string
	Order Order
	Kind  Kind
}

// Validate implements validation.Validatable.
func (f SortField) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Field, validation.Required),
		validation.Field(&f.Order, validation.In(Asc, Desc)),
		validation.Field(&f.Kind, validation.Required, validation.In(KindString, KindInt, KindFloat, KindTime, KindObjectID)),
	)
}

func (f SortField) descending() bool {
	return f.Order == Desc
}

// Filter is a single predicate. Filters in a Spec are AND-ed.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Validate implements validation.Validatable.
func (f Filter) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Field, validation.Required),
		validation.Field(&f.Op, validation.Required, validation.In(OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn)),
	)
}

// DefaultTieBreaker is appended to every sort that does not already end on a
// unique field.
var DefaultTieBreaker = SortField{Field: "id", Order: Asc, Kind: KindInt}

// Spec is the logical, backend agnostic description of a paginated query.
type Spec struct {
	Backend    Backend
	Collection string
	Filters    []Filter
	Sort       []SortField
	// TieBreaker must name a unique field. Zero value means DefaultTieBreaker.
	TieBreaker SortField
}

// Validate checks the spec before it reaches an adapter.
func (s Spec) Validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.Required),
		validation.Field(&s.Collection, validation.Required),
		validation.Field(&s.Filters),
		validation.Field(&s.Sort),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if tb := s.tieBreaker(); tb.Validate() != nil {
		return fmt.Errorf("%w: invalid tie breaker %q", ErrUnsupported, tb.Field)
	}
	return nil
}

func (s Spec) tieBreaker() SortField {
	if s.TieBreaker.Field == "" {
		return DefaultTieBreaker
	}
	tb := s.TieBreaker
	if tb.Order == "" {
		tb.Order = Asc
	}
	return tb
}

// Normalized returns the effective sort: the declared fields, with empty
// orders defaulted to Asc, followed by the tie breaker unless it is already
// part of the sort.
func (s Spec) Normalized() []SortField {
	tb := s.tieBreaker()
	out := make([]SortField, 0, len(s.Sort)+1)
	seen := false
	for _, f := range s.Sort {
		if f.Order == "" {
			f.Order = Asc
		}
		if f.Field == tb.Field {
			seen = true
		}
		out = append(out, f)
	}
	if !seen {
		out = append(out, tb)
	}
	return out
}

// sortedFilters returns a copy of the filters in a stable order so that the
// fingerprint does not depend on declaration order.
func (s Spec) sortedFilters() []Filter {
	out := append([]Filter(nil), s.Filters...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		if out[i].Op != out[j].Op {
			return out[i].Op < out[j].Op
		}
		return canonical(out[i].Value) < canonical(out[j].Value)
	})
	return out
}
