package query

import "fmt"

// Condition is a single field comparison produced by Keyset.
type Condition struct {
	Field string
	Op    Operator
	Value any
	Kind  Kind
}

// Keyset expands a cursor position into a disjunction of conjunctions:
//
//	(k1 > v1) OR (k1 = v1 AND k2 > v2) OR ... OR (k1 = v1 AND ... AND kn > vn)
//
// The comparison of every field follows its order and is flipped for
// backward traversal. Values must already be normalized against sort.
func Keyset(sort []SortField, values []any, dir Direction) ([][]Condition, error) {
	if len(values) != len(sort) {
		return nil, fmt.Errorf("%w: keyset arity %d does not match sort arity %d", ErrUnsupported, len(values), len(sort))
	}

	clauses := make([][]Condition, 0, len(sort))
	for i, f := range sort {
		clause := make([]Condition, 0, i+1)
		for j := 0; j < i; j++ {
			clause = append(clause, Condition{Field: sort[j].Field, Op: OpEq, Value: values[j], Kind: sort[j].Kind})
		}
		clause = append(clause, Condition{Field: f.Field, Op: seekOperator(f, dir), Value: values[i], Kind: f.Kind})
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func seekOperator(f SortField, dir Direction) Operator {
	ascending := !f.descending()
	if dir == Backward {
		ascending = !ascending
	}
	if ascending {
		return OpGt
	}
	return OpLt
}

// EffectiveOrder is the order a backend must scan a field in for dir. Backward
// traversal scans every field in reverse; Window restores the requested order.
func EffectiveOrder(f SortField, dir Direction) Order {
	if dir != Backward {
		return f.Order
	}
	if f.descending() {
		return Asc
	}
	return Desc
}

// Window trims a limit+1 fetch down to limit, reports whether the extra row
// was present, and re-reverses backward scans so the items are always in the
// order the sort requests.
func Window[T any](rows []T, limit int, dir Direction) ([]T, bool) {
	hasMore := false
	if limit >= 0 && len(rows) > limit {
		hasMore = true
		rows = rows[:limit]
	}
	if dir != Backward {
		return rows, hasMore
	}
	out := make([]T, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row
	}
	return out, hasMore
}
