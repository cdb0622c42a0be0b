package query

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// KeyExtractor returns the sort key tuple of item, normalized per field kind.
type KeyExtractor[T any] func(item T, sort []SortField) ([]any, error)

// tagOrder is the list of struct tags consulted when mapping a sort field name
// to a Go struct field.
var tagOrder = []string{"page", "bun", "bson", "json"}

// fieldIndex caches name -> struct field index per type.
var fieldIndex sync.Map // map[reflect.Type]map[string][]int

// FieldExtractor returns a KeyExtractor that resolves sort fields through
// struct tags (page, bun, bson, json), the Go field name, or its snake_case
// form.
func FieldExtractor[T any]() KeyExtractor[T] {
	return func(item T, sort []SortField) ([]any, error) {
		out := make([]any, len(sort))
		for i, f := range sort {
			raw, ok := FieldValue(item, f.Field)
			if !ok {
				return nil, fmt.Errorf("%w: field %q not found on %T", ErrUnsupported, f.Field, item)
			}
			v, err := Normalize(f.Kind, raw)
			if err != nil {
				return nil, fmt.Errorf("sort key %q: %w", f.Field, err)
			}
			out[i] = v
		}
		return out, nil
	}
}

// FieldValue reads the value of the struct field mapped to name. Maps with
// string keys are read directly.
func FieldValue(item any, name string) (any, bool) {
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Struct:
		idx, ok := indexFor(v.Type())[name]
		if !ok {
			return nil, false
		}
		fv, err := v.FieldByIndexErr(idx)
		if err != nil || !fv.CanInterface() {
			return nil, false
		}
		return fv.Interface(), true
	}
	return nil, false
}

func indexFor(t reflect.Type) map[string][]int {
	if cached, ok := fieldIndex.Load(t); ok {
		return cached.(map[string][]int)
	}

	names := map[string][]int{}
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		// weakest first so stronger mappings overwrite
		names[strings.ToLower(sf.Name)] = sf.Index
		names[SnakeCase(sf.Name)] = sf.Index
		names[sf.Name] = sf.Index
		for i := len(tagOrder) - 1; i >= 0; i-- {
			tag := sf.Tag.Get(tagOrder[i])
			name, _, _ := strings.Cut(tag, ",")
			if name != "" && name != "-" {
				names[name] = sf.Index
			}
		}
	}

	actual, _ := fieldIndex.LoadOrStore(t, names)
	return actual.(map[string][]int)
}
