package pager

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goliatone/go-repository-pager/cache"
	"github.com/goliatone/go-repository-pager/cursor"
	"github.com/goliatone/go-repository-pager/query"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInvalidCursor is permanent: restart pagination without a cursor.
	ErrInvalidCursor = cursor.ErrInvalidCursor
	// ErrBackendUnavailable is returned after the retry budget is spent.
	// The whole request may be retried.
	ErrBackendUnavailable = errors.New("pager: backend unavailable")
	ErrInvalidRequest     = errors.New("pager: invalid request")
	ErrNoAdapter          = errors.New("pager: no adapter registered for backend")
)

// Engine serves pages of T from the cache, falling back to the adapter
// registered for the query backend.
type Engine[T any] struct {
	cfg      Config
	store    cache.Store
	adapters *xsync.MapOf[query.Backend, query.Adapter[T]]
	group    singleflight.Group
	opts     options
}

// New creates an engine on store. Register at least one adapter before
// calling Paginate.
func New[T any](store cache.Store, cfg Config, opts ...Option) (*Engine[T], error) {
	if store == nil {
		return nil, errors.New("pager: store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pager: invalid config: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine[T]{
		cfg:      cfg,
		store:    store,
		adapters: xsync.NewMapOf[query.Backend, query.Adapter[T]](),
		opts:     o,
	}, nil
}

// Register makes adapter serve specs whose Backend matches adapter.Backend().
func (e *Engine[T]) Register(adapter query.Adapter[T]) {
	e.RegisterAs(adapter.Backend(), adapter)
}

// RegisterAs makes adapter serve specs declaring backend.
func (e *Engine[T]) RegisterAs(backend query.Backend, adapter query.Adapter[T]) {
	e.adapters.Store(backend, adapter)
}

type plan struct {
	fingerprint string
	token       string
	size        int
	dir         query.Direction
	after       []any
	hasCursor   bool
	bypass      bool
}

// Paginate returns one page for req.
func (e *Engine[T]) Paginate(ctx context.Context, req PageRequest) (Page[T], error) {
	p, err := e.prepare(req)
	if err != nil {
		e.opts.recorder.RequestCompleted("invalid")
		return Page[T]{}, err
	}

	if page, ok := e.cached(ctx, &p); ok {
		e.opts.recorder.RequestCompleted("hit")
		return page, nil
	}

	ch := e.group.DoChan(cache.Key(p.fingerprint, p.token), func() (any, error) {
		// shared by every caller waiting on this key
		return e.load(context.WithoutCancel(ctx), req.Query, p)
	})

	select {
	case <-ctx.Done():
		e.opts.recorder.RequestCompleted("error")
		return Page[T]{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			e.opts.recorder.RequestCompleted("error")
			return Page[T]{}, res.Err
		}
		e.opts.recorder.RequestCompleted("miss")
		return res.Val.(Page[T]), nil
	}
}

func (e *Engine[T]) prepare(req PageRequest) (plan, error) {
	size := req.PageSize
	if size == 0 {
		size = e.cfg.DefaultPageSize
	}
	if size < 1 || size > e.cfg.MaxPageSize {
		return plan{}, fmt.Errorf("%w: page size %d outside [1, %d]", ErrInvalidRequest, req.PageSize, e.cfg.MaxPageSize)
	}
	if err := req.Query.Validate(); err != nil {
		return plan{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	p := plan{
		fingerprint: req.Query.Fingerprint(),
		size:        size,
		dir:         req.Direction,
	}
	if !p.dir.Valid() {
		p.dir = query.Forward
	}

	token := cache.FirstPageToken
	if req.Cursor != "" {
		c, err := e.opts.codec.Decode(req.Cursor, p.fingerprint, req.Query.Normalized())
		if err != nil {
			return plan{}, err
		}
		p.after = c.Values
		p.dir = c.Direction
		p.hasCursor = true
		token = req.Cursor
	} else if p.dir == query.Backward {
		token = cache.LastPageToken
	}
	// page size is part of the key so different sizes never share an entry
	p.token = token + "@" + strconv.Itoa(size)
	return p, nil
}

func (e *Engine[T]) cached(ctx context.Context, p *plan) (Page[T], bool) {
	raw, err := e.store.Get(ctx, p.fingerprint, p.token)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrMiss):
		e.opts.recorder.CacheEvent("miss")
		return Page[T]{}, false
	default:
		e.opts.recorder.CacheEvent("unavailable")
		e.opts.logger.Warn("page cache unavailable, bypassing",
			"fingerprint", p.fingerprint, "error", err)
		p.bypass = true
		return Page[T]{}, false
	}

	page, err := decodePage[T](raw, p.fingerprint)
	if err != nil {
		e.opts.recorder.CacheEvent("decode_error")
		e.opts.logger.Warn("discarding undecodable cached page",
			"fingerprint", p.fingerprint, "error", err)
		return Page[T]{}, false
	}
	e.opts.recorder.CacheEvent("hit")
	return page, true
}

func (e *Engine[T]) load(ctx context.Context, spec query.Spec, p plan) (Page[T], error) {
	adapter, ok := e.adapters.Load(spec.Backend)
	if !ok {
		return Page[T]{}, fmt.Errorf("%w: %s", ErrNoAdapter, spec.Backend)
	}

	res, err := e.fetch(ctx, adapter, query.FetchRequest{
		Spec:      spec,
		After:     p.after,
		Limit:     p.size,
		Direction: p.dir,
	})
	if err != nil {
		return Page[T]{}, err
	}

	page, err := e.buildPage(p, res)
	if err != nil {
		return Page[T]{}, err
	}

	if !p.bypass {
		e.save(ctx, p, page)
	}
	return page, nil
}

func (e *Engine[T]) fetch(ctx context.Context, adapter query.Adapter[T], req query.FetchRequest) (query.Result[T], error) {
	backend := string(adapter.Backend())
	attempt := 0

	op := func() (query.Result[T], error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()

		start := time.Now()
		res, err := adapter.FetchPage(actx, req)
		e.opts.recorder.BackendFetch(backend, time.Since(start), err)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, query.ErrUnsupported) {
			return res, backoff.Permanent(err)
		}
		e.opts.logger.Warn("backend fetch failed",
			"backend", backend, "attempt", attempt, "error", err)
		return res, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryInitialInterval
	b.MaxInterval = e.cfg.RetryMaxInterval

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(e.cfg.MaxAttempts),
	)
	if err != nil {
		if errors.Is(err, query.ErrUnsupported) {
			return query.Result[T]{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return query.Result[T]{}, fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, backend, err)
	}
	return res, nil
}

func (e *Engine[T]) buildPage(p plan, res query.Result[T]) (Page[T], error) {
	page := Page[T]{
		Items:       res.Items,
		HasMore:     res.HasMore,
		Fingerprint: p.fingerprint,
	}

	// head and tail are the boundary keys in traversal order
	head, tail := res.FirstKey, res.LastKey
	if p.dir == query.Backward {
		head, tail = tail, head
	}

	var err error
	if res.HasMore {
		if page.NextCursor, err = e.opts.codec.Encode(p.fingerprint, tail, p.dir); err != nil {
			return Page[T]{}, fmt.Errorf("encode next cursor: %w", err)
		}
	}
	if p.hasCursor {
		back := head
		if len(res.Items) == 0 {
			back = p.after
		}
		if page.PrevCursor, err = e.opts.codec.Encode(p.fingerprint, back, p.dir.Reverse()); err != nil {
			return Page[T]{}, fmt.Errorf("encode prev cursor: %w", err)
		}
	}
	return page, nil
}

func (e *Engine[T]) save(ctx context.Context, p plan, page Page[T]) {
	payload, err := encodePage(page)
	if err != nil {
		e.opts.logger.Error("page not cached", "fingerprint", p.fingerprint, "error", err)
		return
	}

	if err := e.store.Put(ctx, p.fingerprint, p.token, payload, e.cfg.TTL); err != nil {
		e.opts.recorder.CacheEvent("put_error")
		e.opts.logger.Warn("page cache write failed",
			"fingerprint", p.fingerprint, "error", err)
		return
	}

	if e.opts.feeds == nil {
		return
	}
	if tags := feedTagsFromContext(ctx); len(tags) > 0 {
		if err := e.opts.feeds.Register(ctx, p.fingerprint, tags); err != nil {
			e.opts.logger.Warn("feed index registration failed",
				"fingerprint", p.fingerprint, "feeds", tags, "error", err)
		}
	}
}

// Invalidate evicts every cached page of fingerprint.
func (e *Engine[T]) Invalidate(ctx context.Context, fingerprint string) error {
	return e.store.Evict(ctx, fingerprint)
}

// EvictAll evicts every cached page.
func (e *Engine[T]) EvictAll(ctx context.Context) error {
	return e.store.EvictAll(ctx)
}
