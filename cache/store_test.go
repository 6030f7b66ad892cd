package cache

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeKeyIsStableAcrossKeyOrder(t *testing.T) {
	a := url.Values{}
	a.Set("name", "ali")
	a.Set("sort", "top")
	b := url.Values{}
	b.Set("sort", "top")
	b.Set("name", "ali")

	assert.Equal(t, ScopeKey("clones", a), ScopeKey("clones", b))
	assert.NotEqual(t, ScopeKey("clones", a), ScopeKey("sidebar", a))

	b.Set("name", "bob")
	assert.NotEqual(t, ScopeKey("clones", a), ScopeKey("clones", b))
}

func TestUpdateRequiresAView(t *testing.T) {
	s := NewStore[int]()

	_, ok := s.Update("x", func(snap *Snapshot[int]) { snap.Size = 1 })
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	s.Acquire("x")
	snap, ok := s.Update("x", func(snap *Snapshot[int]) {
		snap.Pages = append(snap.Pages, []int{1, 2})
	})
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, snap.Items())
}

func TestSharedScopeNotifiesEverySubscriber(t *testing.T) {
	s := NewStore[string]()
	s.Acquire("conv")
	s.Acquire("conv")

	var first, second []string
	cancel1 := s.Subscribe("conv", func(snap Snapshot[string]) { first = snap.Items() })
	cancel2 := s.Subscribe("conv", func(snap Snapshot[string]) { second = snap.Items() })
	defer cancel2()

	s.Update("conv", func(snap *Snapshot[string]) { snap.Pages = [][]string{{"hello"}} })
	assert.Equal(t, []string{"hello"}, first)
	assert.Equal(t, []string{"hello"}, second)

	cancel1()
	s.Update("conv", func(snap *Snapshot[string]) { snap.Pages = [][]string{{"hi", "hello"}} })
	assert.Equal(t, []string{"hello"}, first)
	assert.Equal(t, []string{"hi", "hello"}, second)
}

func TestReleaseDropsEntryWithLastView(t *testing.T) {
	s := NewStore[int]()
	s.Acquire("a")
	s.Acquire("a")
	s.Update("a", func(snap *Snapshot[int]) { snap.Pages = [][]int{{1}} })

	s.Release("a")
	_, ok := s.Get("a")
	assert.True(t, ok)

	s.Release("a")
	_, ok = s.Get("a")
	assert.False(t, ok)

	s.Acquire("a")
	snap, ok := s.Get("a")
	require.True(t, ok)
	assert.Empty(t, snap.Items())
}

func TestInvalidateBumpsGeneration(t *testing.T) {
	s := NewStore[int]()
	s.Acquire("a")
	before, _ := s.Get("a")
	s.Update("a", func(snap *Snapshot[int]) {
		snap.Pages = [][]int{{1}}
		snap.Fetched = 1
	})

	var notified Snapshot[int]
	cancel := s.Subscribe("a", func(snap Snapshot[int]) { notified = snap })
	defer cancel()

	s.Invalidate("a")
	after, _ := s.Get("a")
	assert.NotEqual(t, before.Generation, after.Generation)
	assert.Empty(t, after.Items())
	assert.Zero(t, after.Fetched)
	assert.Equal(t, after.Generation, notified.Generation)
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore[int]()
	s.Acquire("a")
	s.Update("a", func(snap *Snapshot[int]) { snap.Pages = [][]int{{1}} })

	snap, _ := s.Get("a")
	snap.Pages = append(snap.Pages, []int{2})

	again, _ := s.Get("a")
	assert.Len(t, again.Pages, 1)
}
