package paginate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/richinex/clonr/cache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFeed serves a fixed number of items in offset order and records
// every request it receives.
type fakeFeed struct {
	mu    sync.Mutex
	total int
	keys  []Key
	fail  error
	gate  chan struct{}
}

func (f *fakeFeed) fetch(ctx context.Context, key Key) ([]string, error) {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	fail := f.fail
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}

	out := []string{}
	for i := key.Offset; i < key.Offset+key.Limit && i < f.total; i++ {
		out = append(out, fmt.Sprintf("item-%d", i))
	}
	return out, nil
}

func (f *fakeFeed) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func (f *fakeFeed) source(scope string, limit int) Source[string] {
	return Source[string]{Scope: scope, Limit: limit, Fetch: f.fetch}
}

func TestPagesAccumulateInOrder(t *testing.T) {
	feed := &fakeFeed{total: 25}
	p := New(cache.NewStore[string](), feed.source("q", 10))
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	first := p.Items()
	require.Len(t, first, 10)
	assert.Equal(t, Partial, p.State())

	require.NoError(t, p.Advance(ctx))
	second := p.Items()
	require.Len(t, second, 20)
	assert.Equal(t, first, second[:10], "earlier pages must be a prefix")

	require.NoError(t, p.Advance(ctx))
	third := p.Items()
	require.Len(t, third, 25)
	assert.Equal(t, second, third[:20])
	assert.Equal(t, "item-24", third[24])

	seen := map[string]bool{}
	for _, it := range third {
		assert.False(t, seen[it], "duplicate %s", it)
		seen[it] = true
	}
}

func TestShortPageEndsPagination(t *testing.T) {
	feed := &fakeFeed{total: 15}
	p := New(cache.NewStore[string](), feed.source("q", 10))
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	require.NoError(t, p.Advance(ctx))
	assert.True(t, p.IsLastPage())
	assert.Equal(t, Complete, p.State())
	assert.Equal(t, 2, feed.calls())

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Advance(ctx))
	}
	assert.Equal(t, 2, feed.calls(), "complete list must not fetch again")
	assert.Len(t, p.Items(), 15)
}

func TestEmptyResultSet(t *testing.T) {
	feed := &fakeFeed{total: 0}
	p := New(cache.NewStore[string](), feed.source("q", 10))
	defer p.Close()

	require.NoError(t, p.Load(context.Background()))
	assert.True(t, p.IsLastPage())
	assert.Empty(t, p.Items())

	require.NoError(t, p.Advance(context.Background()))
	assert.Equal(t, 1, feed.calls())
}

func TestExactLimitPageIsNotLast(t *testing.T) {
	feed := &fakeFeed{total: 10}
	p := New(cache.NewStore[string](), feed.source("q", 10))
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	assert.False(t, p.IsLastPage())

	require.NoError(t, p.Advance(ctx))
	assert.True(t, p.IsLastPage())
	assert.Len(t, p.Items(), 10)
	assert.Equal(t, 2, feed.calls())
	assert.Equal(t, 10, feed.keys[1].Offset)
}

func TestChangingScopeRestartsAtPageZero(t *testing.T) {
	feed := &fakeFeed{total: 30}
	p := New(cache.NewStore[string](), feed.source("name=a", 10))
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	require.NoError(t, p.Advance(ctx))
	require.Len(t, p.Items(), 20)

	var notified []cache.Snapshot[string]
	cancel := p.Subscribe(func(s cache.Snapshot[string]) { notified = append(notified, s) })
	defer cancel()

	changed := p.SetSource(feed.source("name=b", 10))
	require.True(t, changed)
	assert.Empty(t, p.Items(), "old pages must be discarded")
	assert.Equal(t, Empty, p.State())
	require.NotEmpty(t, notified)
	assert.Empty(t, notified[0].Items())

	require.NoError(t, p.Load(ctx))
	assert.Len(t, p.Items(), 10)
	last := feed.keys[len(feed.keys)-1]
	assert.Equal(t, "name=b", last.Scope)
	assert.Equal(t, 0, last.Index)
	assert.Equal(t, 0, last.Offset)
}

func TestSameScopeKeepsPages(t *testing.T) {
	feed := &fakeFeed{total: 30}
	p := New(cache.NewStore[string](), feed.source("q", 10))
	defer p.Close()

	require.NoError(t, p.Load(context.Background()))
	assert.False(t, p.SetSource(feed.source("q", 10)))
	assert.Len(t, p.Items(), 10)
}

func TestFetchErrorKeepsLoadedPages(t *testing.T) {
	feed := &fakeFeed{total: 30}
	p := New(cache.NewStore[string](), feed.source("q", 10))
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))

	boom := errors.New("network down")
	feed.mu.Lock()
	feed.fail = boom
	feed.mu.Unlock()

	err := p.Advance(ctx)
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, p.Err(), boom)
	assert.Len(t, p.Items(), 10, "failure must not truncate the list")
	assert.Equal(t, Partial, p.State())

	feed.mu.Lock()
	feed.fail = nil
	feed.mu.Unlock()

	require.NoError(t, p.Advance(ctx))
	assert.NoError(t, p.Err())
	assert.Len(t, p.Items(), 20)
}

func TestSuppressedKeyNeverFetches(t *testing.T) {
	feed := &fakeFeed{total: 30}
	src := feed.source("q", 10)
	src.Key = Suppressed[string]
	p := New(cache.NewStore[string](), src)
	defer p.Close()

	require.NoError(t, p.Load(context.Background()))
	assert.Zero(t, feed.calls())
	assert.True(t, p.IsLastPage())
}

func TestMutateKeepsPaginationGoing(t *testing.T) {
	feed := &fakeFeed{total: 30}
	p := New(cache.NewStore[string](), feed.source("q", 10))
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	p.Mutate(func(items []string) []string {
		return append([]string{"local"}, items...)
	})
	items := p.Items()
	require.Len(t, items, 11)
	assert.Equal(t, "local", items[0])
	assert.Equal(t, 1, feed.calls(), "mutate must not fetch")

	require.NoError(t, p.Advance(ctx))
	assert.Len(t, p.Items(), 21)
	assert.Equal(t, 10, feed.keys[1].Offset)
}

func TestShiftMovesLaterOffsets(t *testing.T) {
	feed := &fakeFeed{total: 30}
	p := New(cache.NewStore[string](), feed.source("q", 10))
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	p.Shift(2)
	require.NoError(t, p.Advance(ctx))
	assert.Equal(t, 12, feed.keys[1].Offset)
}

func TestViewsOfSameScopeShareOneFetch(t *testing.T) {
	feed := &fakeFeed{total: 30}
	store := cache.NewStore[string]()
	a := New(store, feed.source("conv", 10))
	defer a.Close()
	b := New(store, feed.source("conv", 10))
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, a.Load(ctx))
	require.NoError(t, b.Load(ctx))
	assert.Equal(t, 1, feed.calls())
	assert.Equal(t, a.Items(), b.Items())

	var seen []string
	cancel := b.Subscribe(func(s cache.Snapshot[string]) { seen = s.Items() })
	defer cancel()

	a.Mutate(func(items []string) []string { return append([]string{"hello"}, items...) })
	require.NotEmpty(t, seen)
	assert.Equal(t, "hello", seen[0])
}

func TestConcurrentLoadsCollapse(t *testing.T) {
	feed := &fakeFeed{total: 30, gate: make(chan struct{})}
	p := New(cache.NewStore[string](), feed.source("q", 10))
	defer p.Close()

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Load(context.Background()); err != nil {
				failures.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return p.State() == Loading }, time.Second, time.Millisecond)
	close(feed.gate)
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, feed.calls())
	assert.Len(t, p.Items(), 10)
}

func TestCloseDiscardsInFlightFetch(t *testing.T) {
	feed := &fakeFeed{total: 30, gate: make(chan struct{})}
	store := cache.NewStore[string]()
	p := New(store, feed.source("q", 10))

	done := make(chan error, 1)
	go func() { done <- p.Load(context.Background()) }()

	require.Eventually(t, func() bool { return feed.calls() == 1 }, time.Second, time.Millisecond)
	p.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("load did not return after close")
	}
	assert.Zero(t, store.Len(), "closed view must release its scope")
}

func TestResetDropsPages(t *testing.T) {
	feed := &fakeFeed{total: 30}
	p := New(cache.NewStore[string](), feed.source("q", 10))
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, p.Load(ctx))
	p.Reset()
	assert.Empty(t, p.Items())
	assert.Equal(t, Empty, p.State())

	require.NoError(t, p.Load(ctx))
	assert.Len(t, p.Items(), 10)
	assert.Equal(t, 2, feed.calls())
}

func TestOffsetKeys(t *testing.T) {
	keys := OffsetKeys[int]("s", 5)

	k, ok := keys(0, nil)
	require.True(t, ok)
	assert.Equal(t, Key{Scope: "s", Index: 0, Offset: 0, Limit: 5}, k)

	k, ok = keys(3, []int{1})
	require.True(t, ok)
	assert.Equal(t, 15, k.Offset)

	_, ok = keys(1, []int{})
	assert.False(t, ok)
}
