// Package session provides the explicit context object every Clonr view is
// built from.
//
// Information Hiding:
// - Construction of the API client from settings and credentials
// - One shared cache per list kind, so every view of the same resource
//   observes the same pages
// - Default page sizes and search delay
//
// Nothing here is ambient: tests build a Session around an httptest server
// and hand it to the code under test.
package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/clonr/api"
	"github.com/richinex/clonr/cache"
	"github.com/richinex/clonr/chat"
	"github.com/richinex/clonr/config"
	"github.com/richinex/clonr/debounce"
	"github.com/richinex/clonr/feeds"
	"github.com/richinex/clonr/metrics"
	"github.com/richinex/clonr/model"
	"github.com/richinex/clonr/paginate"
)

// Session holds the signed-in user's client and caches.
type Session struct {
	Client  *api.Client
	UserID  string
	Name    string
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Feeds   config.FeedConfig

	clones        *cache.Store[model.Clone]
	sidebar       *cache.Store[model.SidebarConversation]
	conversations *cache.Store[model.Conversation]
	messages      *cache.Store[model.Message]
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.Logger = l
		}
	}
}

// WithMetrics records API traffic, page loads and sends.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.Metrics = m }
}

// WithUser sets who local messages are attributed to.
func WithUser(id, name string) Option {
	return func(s *Session) {
		s.UserID = id
		s.Name = name
	}
}

// New creates a session from settings.
func New(settings config.Settings, opts ...Option) (*Session, error) {
	s := &Session{
		Logger:        zap.NewNop(),
		Feeds:         settings.Feeds,
		clones:        cache.NewStore[model.Clone](),
		sidebar:       cache.NewStore[model.SidebarConversation](),
		conversations: cache.NewStore[model.Conversation](),
		messages:      cache.NewStore[model.Message](),
	}
	for _, opt := range opts {
		opt(s)
	}

	client, err := api.New(settings.API.BaseURL,
		api.Credentials{Token: settings.API.SessionToken, CookieName: settings.API.CookieName},
		api.WithTimeout(settings.API.Timeout),
		api.WithRateLimit(settings.API.RPS, settings.API.Burst),
		api.WithLogger(s.Logger),
		api.WithMetrics(s.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.Client = client
	return s, nil
}

func (s *Session) pagerOptions() []paginate.Option {
	return []paginate.Option{paginate.WithLogger(s.Logger), paginate.WithMetrics(s.Metrics)}
}

// Clones opens a clone feed.
func (s *Session) Clones(q api.CloneQuery) *feeds.Clones {
	return feeds.NewClones(s.Client, s.clones, s.Feeds.ClonesLimit, q, s.pagerOptions()...)
}

// Sidebar opens the sidebar feed. A zero ConvoLimit uses the configured one.
func (s *Session) Sidebar(q api.SidebarQuery) *feeds.Sidebar {
	if q.ConvoLimit == 0 {
		q.ConvoLimit = s.Feeds.SidebarConvoLimit
	}
	return feeds.NewSidebar(s.Client, s.sidebar, s.Feeds.SidebarLimit, q, s.pagerOptions()...)
}

// Conversations opens the conversation feed for a clone.
func (s *Session) Conversations(q api.ConversationQuery) *feeds.Conversations {
	return feeds.NewConversations(s.Client, s.conversations, s.Feeds.ConversationsLimit, q, s.pagerOptions()...)
}

// Messages opens a message feed.
func (s *Session) Messages(q api.MessageQuery) *feeds.Messages {
	return feeds.NewMessages(s.Client, s.messages, s.Feeds.MessagesLimit, q, s.pagerOptions()...)
}

// CloneSearch attaches a debounced search box to feed.
func (s *Session) CloneSearch(feed *feeds.Clones, onCommit func(name string)) *feeds.CloneSearch {
	return feeds.NewCloneSearch(feed, s.searchDelay(), onCommit)
}

// Sender creates a sender for the conversation shown by feed.
func (s *Session) Sender(feed *feeds.Messages, cloneID string) *chat.Sender {
	who := chat.Identity{UserID: s.UserID, CloneID: cloneID, SenderName: s.Name}
	return chat.NewSender(s.Client, feed, who, chat.WithLogger(s.Logger), chat.WithMetrics(s.Metrics))
}

func (s *Session) searchDelay() time.Duration {
	if s.Feeds.SearchDebounce > 0 {
		return s.Feeds.SearchDebounce
	}
	return debounce.DefaultDelay
}
