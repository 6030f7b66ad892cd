// Package feeds provides the four paginated lists of the Clonr client:
// clone search, sidebar conversations, per-clone conversations and
// conversation messages.
//
// Information Hiding:
// - The request parameters and scope of each list kind
// - Suppression of lists whose related id is not known yet
//
// Each feed is a paginate.Pager with a typed query. Replacing the query
// restarts the list at page 0.
package feeds

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"github.com/richinex/clonr/api"
	"github.com/richinex/clonr/cache"
	"github.com/richinex/clonr/model"
	"github.com/richinex/clonr/paginate"
)

// Default page sizes.
const (
	DefaultCloneLimit        = 12
	DefaultSidebarLimit      = 10
	DefaultConversationLimit = 10
	DefaultMessageLimit      = 20
)

// Query is a typed filter set for one list kind.
type Query interface {
	Values() url.Values
}

// Feed is a paginated list of T filtered by a query of type Q.
type Feed[T any, Q Query] struct {
	*paginate.Pager[T]

	build func(Q) paginate.Source[T]

	mu    sync.Mutex
	query Q
}

func newFeed[T any, Q Query](store *cache.Store[T], q Q, build func(Q) paginate.Source[T], opts []paginate.Option) *Feed[T, Q] {
	return &Feed[T, Q]{
		Pager: paginate.New(store, build(q), opts...),
		build: build,
		query: q,
	}
}

// Query returns the current query.
func (f *Feed[T, Q]) Query() Q {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// SetQuery replaces the query. Reports whether the list was reset.
func (f *Feed[T, Q]) SetQuery(q Q) bool {
	f.mu.Lock()
	f.query = q
	f.mu.Unlock()
	return f.Pager.SetSource(f.build(q))
}

func scope(kind string, v url.Values, limit int) string {
	v.Set("limit", strconv.Itoa(limit))
	return cache.ScopeKey(kind, v)
}

func page(key paginate.Key) api.Page {
	return api.Page{Offset: key.Offset, Limit: key.Limit}
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func options(name string, opts []paginate.Option) []paginate.Option {
	return append([]paginate.Option{paginate.WithName(name)}, opts...)
}

// CloneLister searches clones.
type CloneLister interface {
	ListClones(ctx context.Context, q api.CloneQuery, p api.Page) ([]model.Clone, error)
}

// SidebarLister lists sidebar conversation summaries.
type SidebarLister interface {
	SidebarConversations(ctx context.Context, q api.SidebarQuery, p api.Page) ([]model.SidebarConversation, error)
}

// ConversationLister lists conversations with a clone.
type ConversationLister interface {
	ListConversations(ctx context.Context, q api.ConversationQuery, p api.Page) ([]model.Conversation, error)
}

// MessageLister lists messages of a conversation.
type MessageLister interface {
	ListMessages(ctx context.Context, q api.MessageQuery, p api.Page) ([]model.Message, error)
}

// Clones is the clone browse and search grid.
type Clones = Feed[model.Clone, api.CloneQuery]

// Sidebar is the navigation list of recent conversations.
type Sidebar = Feed[model.SidebarConversation, api.SidebarQuery]

// Conversations is the conversation history with one clone.
type Conversations = Feed[model.Conversation, api.ConversationQuery]

// Messages is the message list of one conversation, newest first.
type Messages = Feed[model.Message, api.MessageQuery]

// NewClones creates the clone feed. A non-positive limit uses
// DefaultCloneLimit.
func NewClones(c CloneLister, store *cache.Store[model.Clone], limit int, q api.CloneQuery, opts ...paginate.Option) *Clones {
	limit = limitOr(limit, DefaultCloneLimit)
	build := func(q api.CloneQuery) paginate.Source[model.Clone] {
		return paginate.Source[model.Clone]{
			Scope: scope("clones", q.Values(), limit),
			Limit: limit,
			Fetch: func(ctx context.Context, key paginate.Key) ([]model.Clone, error) {
				return c.ListClones(ctx, q, page(key))
			},
		}
	}
	return newFeed(store, q, build, options("clones", opts))
}

// NewSidebar creates the sidebar feed. A non-positive limit uses
// DefaultSidebarLimit.
func NewSidebar(c SidebarLister, store *cache.Store[model.SidebarConversation], limit int, q api.SidebarQuery, opts ...paginate.Option) *Sidebar {
	limit = limitOr(limit, DefaultSidebarLimit)
	build := func(q api.SidebarQuery) paginate.Source[model.SidebarConversation] {
		return paginate.Source[model.SidebarConversation]{
			Scope: scope("sidebar", q.Values(), limit),
			Limit: limit,
			Fetch: func(ctx context.Context, key paginate.Key) ([]model.SidebarConversation, error) {
				return c.SidebarConversations(ctx, q, page(key))
			},
		}
	}
	return newFeed(store, q, build, options("sidebar", opts))
}

// NewConversations creates the conversation feed. Nothing is fetched
// while q.CloneID is empty.
func NewConversations(c ConversationLister, store *cache.Store[model.Conversation], limit int, q api.ConversationQuery, opts ...paginate.Option) *Conversations {
	limit = limitOr(limit, DefaultConversationLimit)
	build := func(q api.ConversationQuery) paginate.Source[model.Conversation] {
		src := paginate.Source[model.Conversation]{
			Scope: scope("conversations", q.Values(), limit),
			Limit: limit,
			Fetch: func(ctx context.Context, key paginate.Key) ([]model.Conversation, error) {
				return c.ListConversations(ctx, q, page(key))
			},
		}
		if q.CloneID == "" {
			src.Key = paginate.Suppressed[model.Conversation]
		}
		return src
	}
	return newFeed(store, q, build, options("conversations", opts))
}

// NewMessages creates the message feed. Nothing is fetched while
// q.ConversationID is empty.
func NewMessages(c MessageLister, store *cache.Store[model.Message], limit int, q api.MessageQuery, opts ...paginate.Option) *Messages {
	limit = limitOr(limit, DefaultMessageLimit)
	build := func(q api.MessageQuery) paginate.Source[model.Message] {
		src := paginate.Source[model.Message]{
			Scope: scope("messages", q.Values(), limit),
			Limit: limit,
			Fetch: func(ctx context.Context, key paginate.Key) ([]model.Message, error) {
				return c.ListMessages(ctx, q, page(key))
			},
		}
		if q.ConversationID == "" {
			src.Key = paginate.Suppressed[model.Message]
		}
		return src
	}
	return newFeed(store, q, build, options("messages", opts))
}
