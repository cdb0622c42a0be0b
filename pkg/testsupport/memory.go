package testsupport

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-repository-pager/query"
)

// ErrInjected is returned by MemoryAdapter while failures are queued.
var ErrInjected = errors.New("testsupport: injected backend failure")

// MemoryAdapter is a query.Adapter over an in-memory slice. It evaluates
// filters and keyset conditions the way the real adapters do, counts calls
// and can inject failures or latency.
type MemoryAdapter[T any] struct {
	backend query.Backend
	extract query.KeyExtractor[T]

	mu       sync.Mutex
	items    []T
	calls    int
	failures int
	failErr  error
	delay    time.Duration
	gate     chan struct{}
}

// NewMemoryAdapter serves items for backend.
func NewMemoryAdapter[T any](backend query.Backend, items []T) *MemoryAdapter[T] {
	return &MemoryAdapter[T]{
		backend: backend,
		extract: query.FieldExtractor[T](),
		items:   append([]T(nil), items...),
	}
}

func (m *MemoryAdapter[T]) Backend() query.Backend {
	return m.backend
}

// Insert appends items to the data set.
func (m *MemoryAdapter[T]) Insert(items ...T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
}

// FailNext makes the next n fetches return err. A nil err uses ErrInjected.
func (m *MemoryAdapter[T]) FailNext(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
}

// SetDelay makes every fetch wait d or until its context is done.
func (m *MemoryAdapter[T]) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Hold blocks fetches until the returned release function is called.
func (m *MemoryAdapter[T]) Hold() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns the number of FetchPage invocations.
func (m *MemoryAdapter[T]) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MemoryAdapter[T]) FetchPage(ctx context.Context, req query.FetchRequest) (query.Result[T], error) {
	m.mu.Lock()
	m.calls++
	delay, gate := m.delay, m.gate
	var failErr error
	if m.failures > 0 {
		m.failures--
		failErr = m.failErr
	}
	items := append([]T(nil), m.items...)
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return query.Result[T]{}, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return query.Result[T]{}, ctx.Err()
		}
	}
	if failErr != nil {
		return query.Result[T]{}, failErr
	}

	keys := req.Spec.Normalized()
	type row struct {
		item T
		key  []any
	}
	rows := make([]row, 0, len(items))
	for _, item := range items {
		ok, err := matches(item, req.Spec.Filters)
		if err != nil {
			return query.Result[T]{}, err
		}
		if !ok {
			continue
		}
		key, err := m.extract(item, keys)
		if err != nil {
			return query.Result[T]{}, err
		}
		if req.After != nil {
			c := query.CompareKeys(keys, key, req.After)
			if req.Direction == query.Backward {
				c = -c
			}
			if c <= 0 {
				continue
			}
		}
		rows = append(rows, row{item: item, key: key})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		c := query.CompareKeys(keys, rows[i].key, rows[j].key)
		if req.Direction == query.Backward {
			return c > 0
		}
		return c < 0
	})
	if len(rows) > req.Limit+1 {
		rows = rows[:req.Limit+1]
	}

	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}
	return query.BuildResult(out, req, m.extract)
}

func matches(item any, filters []query.Filter) (bool, error) {
	for _, f := range filters {
		v, ok := query.FieldValue(item, f.Field)
		if !ok {
			return false, query.ErrUnsupported
		}
		if !matchOne(v, f) {
			return false, nil
		}
	}
	return true, nil
}

func matchOne(v any, f query.Filter) bool {
	if f.Op == query.OpIn {
		rv := reflect.ValueOf(f.Value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			candidate := rv.Index(i).Interface()
			if query.Compare(query.KindOf(candidate), v, candidate) == 0 {
				return true
			}
		}
		return false
	}

	c := query.Compare(query.KindOf(f.Value), v, f.Value)
	switch f.Op {
	case query.OpEq:
		return c == 0
	case query.OpNe:
		return c != 0
	case query.OpGt:
		return c > 0
	case query.OpGte:
		return c >= 0
	case query.OpLt:
		return c < 0
	case query.OpLte:
		return c <= 0
	}
	return false
}
