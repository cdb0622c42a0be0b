package query

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
)

type hexer interface {
	Hex() string
}

// Normalize coerces v into the canonical Go type for kind: string, int64,
// float64, time.Time (UTC) or a lower-case hex string for object ids.
func Normalize(kind Kind, v any) (any, error) {
	switch kind {
	case KindString:
		switch tv := v.(type) {
		case string:
			return tv, nil
		case []byte:
			return string(tv), nil
		}
	case KindInt:
		return toInt64(v)
	case KindFloat:
		switch tv := v.(type) {
		case float64:
			return tv, nil
		case float32:
			return float64(tv), nil
		}
		if i, err := toInt64(v); err == nil {
			return float64(i.(int64)), nil
		}
	case KindTime:
		switch tv := v.(type) {
		case time.Time:
			return tv.UTC(), nil
		case *time.Time:
			if tv != nil {
				return tv.UTC(), nil
			}
		}
	case KindObjectID:
		switch tv := v.(type) {
		case hexer:
			return tv.Hex(), nil
		case string:
			if b, err := hex.DecodeString(tv); err == nil && len(b) == 12 {
				return strings.ToLower(tv), nil
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrUnsupported, kind)
	}
	return nil, fmt.Errorf("value of type %T is not a valid %s", v, kind)
}

func toInt64(v any) (any, error) {
	switch tv := v.(type) {
	case int:
		return int64(tv), nil
	case int8:
		return int64(tv), nil
	case int16:
		return int64(tv), nil
	case int32:
		return int64(tv), nil
	case int64:
		return tv, nil
	case uint:
		if uint64(tv) > math.MaxInt64 {
			break
		}
		return int64(tv), nil
	case uint8:
		return int64(tv), nil
	case uint16:
		return int64(tv), nil
	case uint32:
		return int64(tv), nil
	case uint64:
		if tv > math.MaxInt64 {
			break
		}
		return int64(tv), nil
	}
	return nil, fmt.Errorf("value of type %T is not a valid %s", v, KindInt)
}

// NormalizeAll applies Normalize to every value against the matching sort
// field. It fails when the arity differs.
func NormalizeAll(sort []SortField, values []any) ([]any, error) {
	if len(values) != len(sort) {
		return nil, fmt.Errorf("expected %d sort key values, got %d", len(sort), len(values))
	}
	out := make([]any, len(values))
	for i, f := range sort {
		nv, err := Normalize(f.Kind, values[i])
		if err != nil {
			return nil, fmt.Errorf("sort key %q: %w", f.Field, err)
		}
		out[i] = nv
	}
	return out, nil
}

// KindOf guesses the kind of a filter value.
func KindOf(v any) Kind {
	switch v.(type) {
	case time.Time, *time.Time:
		return KindTime
	case float32, float64:
		return KindFloat
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt
	case hexer:
		return KindObjectID
	}
	return KindString
}

// Compare orders two values of the same kind. Both are normalized first;
// values that cannot be normalized sort before valid ones.
func Compare(kind Kind, a, b any) int {
	na, errA := Normalize(kind, a)
	nb, errB := Normalize(kind, b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}

	switch kind {
	case KindInt:
		return cmp3(na.(int64) < nb.(int64), na.(int64) > nb.(int64))
	case KindFloat:
		return cmp3(na.(float64) < nb.(float64), na.(float64) > nb.(float64))
	case KindTime:
		return na.(time.Time).Compare(nb.(time.Time))
	default:
		return strings.Compare(na.(string), nb.(string))
	}
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// CompareKeys orders two sort key tuples under the given sort, honouring the
// order of every field.
func CompareKeys(sort []SortField, a, b []any) int {
	for i, f := range sort {
		if i >= len(a) || i >= len(b) {
			break
		}
		c := Compare(f.Kind, a[i], b[i])
		if f.descending() {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}
