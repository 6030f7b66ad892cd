package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/clonr/api"
	"github.com/richinex/clonr/config"
	"github.com/richinex/clonr/debounce"
	"github.com/richinex/clonr/model"
)

func testSettings(url string) config.Settings {
	return config.Settings{
		API: config.APIConfig{BaseURL: url, SessionToken: "user-1"},
		Feeds: config.FeedConfig{
			ClonesLimit:       5,
			SidebarConvoLimit: 3,
		},
	}
}

func TestFeedsShareCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cookie, err := r.Cookie(api.DefaultCookieName)
		if assert.NoError(t, err) {
			assert.Equal(t, "user-1", cookie.Value)
		}
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]model.Clone{{ID: "c1", Name: "Ada"}, {ID: "c2", Name: "Nemo"}})
	}))
	t.Cleanup(srv.Close)

	s, err := New(testSettings(srv.URL), WithUser("user-1", "You"))
	require.NoError(t, err)

	grid := s.Clones(api.CloneQuery{})
	defer grid.Close()
	require.NoError(t, grid.Load(context.Background()))
	require.Len(t, grid.Items(), 2)
	assert.True(t, grid.IsLastPage())

	// A second view of the same query reads the pages already loaded.
	other := s.Clones(api.CloneQuery{})
	defer other.Close()
	require.NoError(t, other.Load(context.Background()))
	assert.Equal(t, grid.Items(), other.Items())
	assert.Equal(t, int32(1), calls.Load())

	// A different query has its own scope.
	named := s.Clones(api.CloneQuery{Name: "ada"})
	defer named.Close()
	require.NoError(t, named.Load(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSidebarUsesConfiguredConvoLimit(t *testing.T) {
	s, err := New(testSettings("http://localhost:8000"))
	require.NoError(t, err)

	sidebar := s.Sidebar(api.SidebarQuery{})
	defer sidebar.Close()
	assert.Equal(t, 3, sidebar.Query().ConvoLimit)

	explicit := s.Sidebar(api.SidebarQuery{ConvoLimit: 1})
	defer explicit.Close()
	assert.Equal(t, 1, explicit.Query().ConvoLimit)
}

func TestSearchDelay(t *testing.T) {
	s, err := New(testSettings("http://localhost:8000"))
	require.NoError(t, err)
	assert.Equal(t, debounce.DefaultDelay, s.searchDelay())

	s.Feeds.SearchDebounce = 50 * time.Millisecond
	assert.Equal(t, 50*time.Millisecond, s.searchDelay())
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(testSettings("localhost:8000"))
	require.Error(t, err)
}
