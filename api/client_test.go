package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/clonr/metrics"
	"github.com/richinex/clonr/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, Credentials{Token: "tok-123"}, opts...)
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New("localhost:8000", Credentials{})
	require.Error(t, err)

	_, err = New("://nope", Credentials{})
	require.Error(t, err)
}

func TestListClonesSendsFiltersAndCookie(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/clones", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, []string{"anime", "games"}, q["tags"])
		assert.Equal(t, "ali", q.Get("name"))
		assert.Equal(t, "newest", q.Get("sort"))
		assert.Equal(t, "24", q.Get("offset"))
		assert.Equal(t, "12", q.Get("limit"))

		cookie, err := r.Cookie(DefaultCookieName)
		if assert.NoError(t, err) {
			assert.Equal(t, "tok-123", cookie.Value)
		}
		_ = json.NewEncoder(w).Encode([]model.Clone{{ID: "c1", Name: "Alice"}})
	})

	clones, err := c.ListClones(context.Background(),
		CloneQuery{Tags: []string{"games", "anime", "games"}, Name: "ali", Sort: SortNewest},
		Page{Offset: 24, Limit: 12})
	require.NoError(t, err)
	require.Len(t, clones, 1)
	assert.Equal(t, "Alice", clones[0].Name)
}

func TestListReturnsEmptySliceForNull(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("null"))
	})

	convs, err := c.ListConversations(context.Background(), ConversationQuery{CloneID: "c1"}, Page{Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, convs)
	assert.Empty(t, convs)
}

func TestListMessagesPathAndFlags(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/conv-1/messages", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("is_active"))
		assert.Equal(t, "true", r.URL.Query().Get("is_main"))
		assert.Empty(t, r.URL.Query().Get("conversation_id"))
		_ = json.NewEncoder(w).Encode([]model.Message{{ID: "m1"}, {ID: "m2"}})
	})

	msgs, err := c.ListMessages(context.Background(), MainThread("conv-1"), Page{Limit: 20})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestMissingConversationID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.ListMessages(context.Background(), MessageQuery{}, Page{Limit: 20})
	assert.ErrorIs(t, err, ErrMissingID)
	_, err = c.CreateMessage(context.Background(), "", "hi")
	assert.ErrorIs(t, err, ErrMissingID)
	_, err = c.GenerateReply(context.Background(), "", false)
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestCreateMessageBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body struct {
			Content string `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(model.Message{ID: "srv-1", Content: body.Content})
	})

	msg, err := c.CreateMessage(context.Background(), "conv-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", msg.ID)
	assert.Equal(t, "hello", msg.Content)
}

func TestStatusErrorsMapToSentinels(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		target error
	}{
		{"quota", http.StatusPaymentRequired, ErrQuotaExceeded},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"not found", http.StatusNotFound, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			})

			_, err := c.GenerateReply(context.Background(), "conv-1", false)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)

			var serr *StatusError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tt.code, serr.Code)
			assert.Equal(t, "nope", serr.Detail)
		})
	}
}

func TestServerErrorIsNotASentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.ListTags(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "boom")
}

func TestRateLimitHonorsContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}, WithRateLimit(0.001, 1))

	_, err := c.ListTags(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ListTags(ctx)
	require.Error(t, err)
}

func TestMetricsAreOptional(t *testing.T) {
	m := metrics.New(nil)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}, WithMetrics(m))

	_, err := c.ListTags(context.Background())
	require.NoError(t, err)
}
