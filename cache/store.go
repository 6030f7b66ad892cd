// Package cache provides a page cache shared by every view of the same
// resource.
//
// Information Hiding:
// - Entries are keyed by scope (resource identity plus filters)
// - Reference counting drops an entry when its last view goes away
// - Subscribers are notified after every change, outside the lock
//
// Views of the same conversation (sidebar, chat, history) acquire the same
// scope and therefore observe each other's mutations.

package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"net/url"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// ScopeKey derives a compact, stable scope from a list kind and its filters.
// url.Values.Encode sorts keys, so equal filter sets give equal keys.
func ScopeKey(kind string, filters url.Values) string {
	h := xxhash.Sum64String(filters.Encode())
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h)
	return kind + ":" + hex.EncodeToString(buf[:])
}

// Snapshot is the state of one scope. Pages are treated as immutable:
// writers replace slices instead of editing them in place.
type Snapshot[T any] struct {
	// Pages holds the accumulated result in page order.
	Pages [][]T
	// Size is the number of pages views have asked for.
	Size int
	// Fetched is the number of pages loaded from the server. It can differ
	// from len(Pages) after a mutation collapsed the pages.
	Fetched int
	// LastLen is the length of the most recently fetched page.
	LastLen int
	// Shift counts items inserted server-side at the top of the list since
	// page 0 was loaded.
	Shift int
	// Complete is set once no further page exists.
	Complete bool
	// Loading is set while a page request is in flight.
	Loading bool
	// Err is the error of the last failed fetch, cleared on success.
	Err error
	// Generation changes on every invalidation so in-flight loads can tell
	// their result is stale.
	Generation uint64
	// Version changes on every update.
	Version uint64
}

// Items returns the flattened pages.
func (s Snapshot[T]) Items() []T {
	n := 0
	for _, p := range s.Pages {
		n += len(p)
	}
	out := make([]T, 0, n)
	for _, p := range s.Pages {
		out = append(out, p...)
	}
	return out
}

type entry[T any] struct {
	state   Snapshot[T]
	refs    int
	subs    map[int]func(Snapshot[T])
	nextSub int
}

// Store holds snapshots for many scopes of one item type.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	nextGen uint64
	flight  singleflight.Group
}

// NewStore creates an empty store.
func NewStore[T any]() *Store[T] {
	return &Store[T]{entries: make(map[string]*entry[T])}
}

func (s *Store[T]) entryLocked(scope string) *entry[T] {
	e, ok := s.entries[scope]
	if !ok {
		s.nextGen++
		e = &entry[T]{subs: make(map[int]func(Snapshot[T]))}
		e.state.Generation = s.nextGen
		s.entries[scope] = e
	}
	return e
}

// Acquire registers a view of scope, creating an empty entry if needed.
func (s *Store[T]) Acquire(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(scope).refs++
}

// Release drops a view of scope. The entry is deleted with its last view.
func (s *Store[T]) Release(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[scope]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(s.entries, scope)
	}
}

// Get returns the current snapshot of scope.
func (s *Store[T]) Get(scope string) (Snapshot[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[scope]
	if !ok {
		return Snapshot[T]{}, false
	}
	return clone(e.state), true
}

// Update applies fn to the snapshot of scope and notifies subscribers.
// It reports false, without calling fn, when no view holds scope.
// fn must not call back into the store.
func (s *Store[T]) Update(scope string, fn func(*Snapshot[T])) (Snapshot[T], bool) {
	s.mu.Lock()
	e, ok := s.entries[scope]
	if !ok {
		s.mu.Unlock()
		return Snapshot[T]{}, false
	}
	fn(&e.state)
	e.state.Version++
	snap := clone(e.state)
	subs := e.subscribers()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return snap, true
}

// Invalidate resets scope to empty. Views and subscribers are kept and
// loads started before the call are discarded when they complete.
func (s *Store[T]) Invalidate(scope string) {
	s.mu.Lock()
	e, ok := s.entries[scope]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.nextGen++
	e.state = Snapshot[T]{Generation: s.nextGen, Version: e.state.Version + 1}
	snap := clone(e.state)
	subs := e.subscribers()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

// Subscribe calls fn after every change to scope until the returned cancel
// function is called.
func (s *Store[T]) Subscribe(scope string, fn func(Snapshot[T])) (cancel func()) {
	s.mu.Lock()
	e := s.entryLocked(scope)
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if cur, ok := s.entries[scope]; ok && cur == e {
				delete(e.subs, id)
			}
		})
	}
}

// Load runs fn for scope, collapsing concurrent callers into one run so
// that pages of a scope are fetched one at a time and in order. A caller
// whose ctx ends stops waiting; the shared run continues for the others.
func (s *Store[T]) Load(ctx context.Context, scope string, fn func(context.Context) error) error {
	ch := s.flight.DoChan(scope, func() (any, error) {
		return nil, fn(ctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of live scopes.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (e *entry[T]) subscribers() []func(Snapshot[T]) {
	ids := make([]int, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(Snapshot[T]), len(ids))
	for i, id := range ids {
		out[i] = e.subs[id]
	}
	return out
}

func clone[T any](s Snapshot[T]) Snapshot[T] {
	s.Pages = slices.Clone(s.Pages)
	return s
}
