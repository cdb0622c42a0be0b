package query

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// partSeparator delimits the segments of a canonical form.
const partSeparator = "::"

// Fingerprint returns a deterministic identifier for the logical query. It
// covers backend, collection, filters and the normalized sort; two specs that
// only differ in filter declaration order share a fingerprint.
func (s Spec) Fingerprint() string {
	parts := []string{
		"spec",
		string(s.Backend),
		s.Collection,
		canonical(s.sortedFilters()),
		canonical(s.Normalized()),
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(parts, partSeparator)))
}

// canonical renders v into a stable string. Maps are emitted with sorted keys,
// structs with exported fields only, and times in UTC.
func canonical(v any) string {
	if v == nil {
		return "nil"
	}

	switch tv := v.(type) {
	case time.Time:
		return "time:" + tv.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		if _, ok := v.(encoding.TextMarshaler); !ok {
			break
		}
		return "text:" + tv.String()
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return canonical(rv.Elem().Interface())
	case reflect.Interface:
		if rv.IsNil() {
			return "interface:nil"
		}
		return canonical(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return "slice" + canonicalSeq(rv)
	case reflect.Array:
		return "array" + canonicalSeq(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return canonicalMap(rv)
	case reflect.Struct:
		return canonicalStruct(rv, rt)
	case reflect.Func, reflect.Chan:
		// not stable across processes; only the type contributes
		return "unstable:" + rt.String()
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return fmt.Sprintf("%s:%v", rt.Kind(), v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + rt.String()
	}
	return "json:" + string(data)
}

func canonicalSeq(rv reflect.Value) string {
	n := rv.Len()
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = canonical(rv.Index(i).Interface())
	}
	return fmt.Sprintf("[%d]:{%s}", n, strings.Join(parts, ","))
}

func canonicalMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, canonical(iter.Key().Interface())+"="+canonical(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func canonicalStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+canonical(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}
