// Package paginate provides incremental, offset-based list loading.
//
// Information Hiding:
// - Key derivation and the "no further page" rule
// - Ordered accumulation of pages in a shared cache.Store
// - Cancellation of in-flight fetches when a view is closed
//
// A Pager is one view of a list. Views with the same scope share pages
// through the store; changing the scope starts over from page 0.

package paginate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/richinex/clonr/cache"
	"github.com/richinex/clonr/metrics"
)

// State describes how far a list has been loaded.
type State int

const (
	// Empty means nothing has been loaded for the current scope.
	Empty State = iota
	// Loading means a page request is in flight.
	Loading
	// Partial means some pages are loaded and more are available.
	Partial
	// Complete means the last page has been loaded.
	Complete
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Loading:
		return "loading"
	case Partial:
		return "partial"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Key identifies one page request.
type Key struct {
	Scope  string
	Index  int
	Offset int
	Limit  int
}

func (k Key) String() string {
	return fmt.Sprintf("%s#%d[%d:%d]", k.Scope, k.Index, k.Offset, k.Offset+k.Limit)
}

// KeyFunc derives the request for page index given the previous page.
// Returning false means no further page should be fetched.
type KeyFunc[T any] func(index int, previous []T) (Key, bool)

// FetchFunc performs one page request.
type FetchFunc[T any] func(ctx context.Context, key Key) ([]T, error)

// Source describes one query: its identity, page size and how to fetch.
type Source[T any] struct {
	Scope string
	Limit int
	// Key defaults to OffsetKeys(Scope, Limit).
	Key   KeyFunc[T]
	Fetch FetchFunc[T]
}

// OffsetKeys returns the standard key derivation: page i starts at
// i*limit, and nothing follows an empty page.
func OffsetKeys[T any](scope string, limit int) KeyFunc[T] {
	return func(index int, previous []T) (Key, bool) {
		if index > 0 && len(previous) == 0 {
			return Key{}, false
		}
		return Key{Scope: scope, Index: index, Offset: index * limit, Limit: limit}, true
	}
}

// Suppressed is a KeyFunc that never fetches. Feeds use it when a required
// id is missing.
func Suppressed[T any](int, []T) (Key, bool) {
	return Key{}, false
}

func (s Source[T]) keys() KeyFunc[T] {
	if s.Key != nil {
		return s.Key
	}
	return OffsetKeys[T](s.Scope, s.Limit)
}

// Option configures a Pager.
type Option func(*options)

type options struct {
	name    string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// WithName labels the pager in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records page loads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Pager is one view of a paginated list. Safe for concurrent use.
type Pager[T any] struct {
	store *cache.Store[T]
	opts  options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	src       Source[T]
	unsub     func()
	listeners map[int]func(cache.Snapshot[T])
	nextID    int
	closed    bool
}

// New creates a pager over src backed by store.
func New[T any](store *cache.Store[T], src Source[T], opts ...Option) *Pager[T] {
	o := options{name: "list", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pager[T]{
		store:     store,
		opts:      o,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]func(cache.Snapshot[T])),
	}
	p.attach(src)
	return p
}

// attach makes src current. Caller holds p.mu or is the constructor.
func (p *Pager[T]) attach(src Source[T]) {
	p.src = src
	p.store.Acquire(src.Scope)
	p.unsub = p.store.Subscribe(src.Scope, p.dispatch)
}

func (p *Pager[T]) detach() {
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	p.store.Release(p.src.Scope)
}

func (p *Pager[T]) dispatch(snap cache.Snapshot[T]) {
	p.mu.Lock()
	fns := make([]func(cache.Snapshot[T]), 0, len(p.listeners))
	for i := 0; i < p.nextID; i++ {
		if fn, ok := p.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// SetSource switches the query. A different scope discards this view's
// pages and restarts at page 0; the same scope only refreshes the fetch
// function. Reports whether the scope changed.
func (p *Pager[T]) SetSource(src Source[T]) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if src.Scope == p.src.Scope {
		p.src = src
		p.mu.Unlock()
		return false
	}
	p.detach()
	p.attach(src)
	scope := src.Scope
	p.mu.Unlock()

	p.opts.logger.Debug("query changed", zap.String("feed", p.opts.name), zap.String("scope", scope))
	snap, _ := p.store.Get(scope)
	p.dispatch(snap)
	return true
}

func (p *Pager[T]) source() Source[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

// Snapshot returns the current state of this view's scope.
func (p *Pager[T]) Snapshot() cache.Snapshot[T] {
	snap, _ := p.store.Get(p.source().Scope)
	return snap
}

// Items returns all loaded items in page order.
func (p *Pager[T]) Items() []T {
	return p.Snapshot().Items()
}

// IsLastPage reports whether no further page will be requested.
func (p *Pager[T]) IsLastPage() bool {
	return p.Snapshot().Complete
}

// Err returns the error of the last failed fetch, if any.
func (p *Pager[T]) Err() error {
	return p.Snapshot().Err
}

// State returns the load state of the current scope.
func (p *Pager[T]) State() State {
	snap := p.Snapshot()
	switch {
	case snap.Loading:
		return Loading
	case snap.Complete:
		return Complete
	case snap.Fetched == 0:
		return Empty
	default:
		return Partial
	}
}

// Load fetches pages until the requested page count is reached, starting
// with page 0 on an empty view.
func (p *Pager[T]) Load(ctx context.Context) error {
	src := p.source()
	p.store.Update(src.Scope, func(s *cache.Snapshot[T]) {
		if s.Size == 0 {
			s.Size = 1
		}
	})
	return p.run(ctx, src)
}

// Advance requests the page after the last loaded one and loads it.
// It is a no-op once the list is complete. Repeated calls while a page is
// in flight ask for that page only once.
func (p *Pager[T]) Advance(ctx context.Context) error {
	src := p.source()
	snap, ok := p.store.Update(src.Scope, func(s *cache.Snapshot[T]) {
		if !s.Complete && s.Size <= s.Fetched {
			s.Size = s.Fetched + 1
		}
	})
	if !ok || snap.Complete {
		return nil
	}
	return p.run(ctx, src)
}

// Mutate replaces the accumulated items with fn(items) without fetching.
// The page count and termination flag are kept so later pages still follow.
func (p *Pager[T]) Mutate(fn func(items []T) []T) {
	p.store.Update(p.source().Scope, func(s *cache.Snapshot[T]) {
		next := fn(s.Items())
		if len(next) == 0 {
			s.Pages = nil
			return
		}
		s.Pages = [][]T{next}
	})
}

// Shift records delta items inserted at the top of the list on the server,
// so later page offsets skip over them.
func (p *Pager[T]) Shift(delta int) {
	p.store.Update(p.source().Scope, func(s *cache.Snapshot[T]) {
		s.Shift += delta
	})
}

// Reset discards every loaded page of the current scope. Loads already in
// flight are dropped when they finish.
func (p *Pager[T]) Reset() {
	p.store.Invalidate(p.source().Scope)
}

// Subscribe calls fn after every change to the current scope, including a
// switch to a new scope. The returned function cancels the subscription.
func (p *Pager[T]) Subscribe(fn func(cache.Snapshot[T])) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Close cancels in-flight fetches and releases the scope. Results of
// cancelled fetches are discarded.
func (p *Pager[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.cancel()
	p.detach()
	p.listeners = map[int]func(cache.Snapshot[T]){}
}

// maxRetries bounds how often a load is restarted because a sibling view
// that owned the shared run went away.
const maxRetries = 3

func (p *Pager[T]) run(ctx context.Context, src Source[T]) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = p.store.Load(ctx, src.Scope, func(runCtx context.Context) error {
			return p.fill(runCtx, src)
		})
		if !isCancel(err) || ctx.Err() != nil {
			break
		}
	}
	if ctx.Err() != nil && p.ctx.Err() != nil {
		return nil
	}
	return err
}

// fill fetches pages in index order until Size pages are loaded or the
// list is complete.
func (p *Pager[T]) fill(ctx context.Context, src Source[T]) error {
	keys := src.keys()
	for {
		snap, ok := p.store.Get(src.Scope)
		if !ok || snap.Complete || snap.Fetched >= snap.Size {
			return nil
		}

		var previous []T
		if snap.Fetched > 0 && len(snap.Pages) > 0 {
			previous = snap.Pages[len(snap.Pages)-1]
		}
		key, more := keys(snap.Fetched, previous)
		if !more {
			p.store.Update(src.Scope, func(s *cache.Snapshot[T]) {
				if s.Generation == snap.Generation {
					s.Complete = true
				}
			})
			return nil
		}
		key.Offset += snap.Shift

		p.store.Update(src.Scope, func(s *cache.Snapshot[T]) {
			if s.Generation == snap.Generation {
				s.Loading = true
			}
		})

		items, err := src.Fetch(ctx, key)
		if err != nil && isCancel(err) && ctx.Err() != nil {
			p.opts.metrics.PageLoaded(p.opts.name, "discarded")
			p.store.Update(src.Scope, func(s *cache.Snapshot[T]) {
				if s.Generation == snap.Generation {
					s.Loading = false
				}
			})
			return err
		}

		applied := false
		p.store.Update(src.Scope, func(s *cache.Snapshot[T]) {
			if s.Generation != snap.Generation || s.Fetched != key.Index {
				return
			}
			applied = true
			s.Loading = false
			if err != nil {
				s.Err = err
				return
			}
			s.Err = nil
			s.Pages = append(s.Pages, items)
			s.Fetched++
			s.LastLen = len(items)
			s.Complete = len(items) < src.Limit
		})

		switch {
		case !applied:
			p.opts.metrics.PageLoaded(p.opts.name, "discarded")
			p.opts.logger.Debug("discarded stale page", zap.String("feed", p.opts.name), zap.Stringer("key", key))
			return nil
		case err != nil:
			p.opts.metrics.PageLoaded(p.opts.name, "error")
			p.opts.logger.Warn("page load failed",
				zap.String("feed", p.opts.name),
				zap.Int("page", key.Index),
				zap.Error(err))
			return fmt.Errorf("load %s page %d: %w", p.opts.name, key.Index, err)
		}
		p.opts.metrics.PageLoaded(p.opts.name, "ok")
		p.opts.logger.Debug("page loaded",
			zap.String("feed", p.opts.name),
			zap.Int("page", key.Index),
			zap.Int("items", len(items)))
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
