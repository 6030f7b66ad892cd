// Package chat implements sending messages with optimistic display.
//
// Information Hiding:
// - Synthesis of the local message shown before the server answers
// - Replacement of local records by server records
// - The failure policy: refused messages stay visible, marked failed,
//   until they are retried or discarded
package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/clonr/api"
	"github.com/richinex/clonr/feeds"
	"github.com/richinex/clonr/metrics"
	"github.com/richinex/clonr/model"
)

var (
	// ErrEmptyContent is returned for blank messages.
	ErrEmptyContent = errors.New("message is empty")
	// ErrSendInProgress is returned when a send is already running.
	ErrSendInProgress = errors.New("a message is already being sent")
	// ErrReplyFailed wraps failures of the clone reply after the user
	// message was stored.
	ErrReplyFailed = errors.New("clone reply failed")
	// ErrNotRetryable is returned by Retry for messages that did not fail.
	ErrNotRetryable = errors.New("message cannot be retried")
	// ErrNoReply is returned by Regenerate when the newest stored message
	// is not a clone reply.
	ErrNoReply = errors.New("no reply to regenerate")
)

// API is the part of the Clonr API the sender needs.
type API interface {
	CreateMessage(ctx context.Context, conversationID, content string) (model.Message, error)
	GenerateReply(ctx context.Context, conversationID string, isRevision bool) (model.Message, error)
}

// Identity fills the sender fields of local messages.
type Identity struct {
	UserID     string
	CloneID    string
	SenderName string
}

// Option configures a Sender.
type Option func(*Sender)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records send outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sender) { s.metrics = m }
}

// WithClock replaces the clock used for local ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sender) { s.now = now }
}

// Sender posts messages to the conversation shown by a message feed.
// Sends are serialized: one message at a time.
type Sender struct {
	api     API
	feed    *feeds.Messages
	who     Identity
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	busy       atomic.Bool
	generating atomic.Bool

	mu     sync.Mutex
	lastID int64
}

// NewSender creates a sender for the conversation of feed.
func NewSender(c API, feed *feeds.Messages, who Identity, opts ...Option) *Sender {
	s := &Sender{
		api:    c,
		feed:   feed,
		who:    who,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generating reports whether a clone reply is being generated.
func (s *Sender) Generating() bool {
	return s.generating.Load()
}

// Busy reports whether a send is in progress.
func (s *Sender) Busy() bool {
	return s.busy.Load()
}

// Send shows content at the head of the feed at once, stores it on the
// server and asks the clone to reply. The reply is returned and placed at
// the head of the feed.
//
// If the server refuses the message it stays in the feed marked
// model.Failed. If the reply fails the stored message stays and the error
// wraps ErrReplyFailed. Quota refusals match api.ErrQuotaExceeded.
func (s *Sender) Send(ctx context.Context, content string) (model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Message{}, ErrEmptyContent
	}
	if !s.busy.CompareAndSwap(false, true) {
		return model.Message{}, ErrSendInProgress
	}
	defer s.busy.Store(false)

	convID := s.feed.Query().ConversationID
	if convID == "" {
		return model.Message{}, fmt.Errorf("send message: %w", api.ErrMissingID)
	}

	local := s.synthesize(convID, content)
	s.feed.Mutate(func(items []model.Message) []model.Message {
		return append([]model.Message{local}, items...)
	})
	s.logger.Debug("message queued", zap.String("conversation", convID), zap.String("local_id", local.ID))

	return s.deliver(ctx, convID, local)
}

// Retry sends a failed message again.
func (s *Sender) Retry(ctx context.Context, id string) (model.Message, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return model.Message{}, ErrSendInProgress
	}
	defer s.busy.Store(false)

	var local model.Message
	found := false
	s.feed.Mutate(func(items []model.Message) []model.Message {
		for i, m := range items {
			if m.ID == id && m.LocalState == model.Failed {
				m.LocalState = model.Pending
				local, found = m, true
				out := append([]model.Message(nil), items...)
				out[i] = m
				return out
			}
		}
		return items
	})
	if !found {
		return model.Message{}, fmt.Errorf("retry %s: %w", id, ErrNotRetryable)
	}
	return s.deliver(ctx, local.ConversationID, local)
}

// Discard removes a failed message from the feed. Reports whether it was
// found.
func (s *Sender) Discard(id string) bool {
	removed := false
	s.feed.Mutate(func(items []model.Message) []model.Message {
		out := make([]model.Message, 0, len(items))
		for _, m := range items {
			if m.ID == id && m.LocalState == model.Failed {
				removed = true
				continue
			}
			out = append(out, m)
		}
		return out
	})
	return removed
}

// Reply asks the clone to answer the latest message without replacing
// anything. It recovers a conversation after ErrReplyFailed.
func (s *Sender) Reply(ctx context.Context) (model.Message, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return model.Message{}, ErrSendInProgress
	}
	defer s.busy.Store(false)

	convID := s.feed.Query().ConversationID
	if convID == "" {
		return model.Message{}, fmt.Errorf("request reply: %w", api.ErrMissingID)
	}

	reply, err := s.generate(ctx, convID, false)
	if err != nil {
		return model.Message{}, err
	}
	s.feed.Mutate(func(items []model.Message) []model.Message {
		return append([]model.Message{reply}, items...)
	})
	s.feed.Shift(1)
	s.metrics.MessageSent("ok")
	return reply, nil
}

// Regenerate replaces the clone's latest reply with a new one. The newest
// stored message must be that reply; otherwise ErrNoReply is returned and
// nothing is sent.
func (s *Sender) Regenerate(ctx context.Context) (model.Message, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return model.Message{}, ErrSendInProgress
	}
	defer s.busy.Store(false)

	convID := s.feed.Query().ConversationID
	if convID == "" {
		return model.Message{}, fmt.Errorf("regenerate reply: %w", api.ErrMissingID)
	}
	target, ok := latestStored(s.feed.Items())
	if !ok || !target.IsClone {
		return model.Message{}, fmt.Errorf("regenerate reply: %w", ErrNoReply)
	}

	reply, err := s.generate(ctx, convID, true)
	if err != nil {
		return model.Message{}, err
	}
	s.feed.Mutate(func(items []model.Message) []model.Message {
		out := make([]model.Message, 0, len(items)+1)
		out = append(out, reply)
		for _, m := range items {
			if m.ID != target.ID {
				out = append(out, m)
			}
		}
		return out
	})
	return reply, nil
}

// latestStored returns the newest message the server has, skipping local
// messages it never accepted.
func latestStored(items []model.Message) (model.Message, bool) {
	for _, m := range items {
		if !m.IsLocal() {
			return m, true
		}
	}
	return model.Message{}, false
}

func (s *Sender) deliver(ctx context.Context, convID string, local model.Message) (model.Message, error) {
	created, err := s.api.CreateMessage(ctx, convID, local.Content)
	if err != nil {
		s.replace(local.ID, func(m model.Message) model.Message {
			m.LocalState = model.Failed
			return m
		})
		s.metrics.MessageSent(outcome("create", err))
		s.logger.Warn("message not stored",
			zap.String("conversation", convID),
			zap.String("local_id", local.ID),
			zap.Error(err))
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}

	created.LocalState = model.Confirmed
	if created.ID == "" {
		created.ID = local.ID
	}
	s.replace(local.ID, func(model.Message) model.Message { return created })
	s.feed.Shift(1)

	reply, err := s.generate(ctx, convID, false)
	if err != nil {
		return model.Message{}, err
	}
	s.feed.Mutate(func(items []model.Message) []model.Message {
		return append([]model.Message{reply}, items...)
	})
	s.feed.Shift(1)
	s.metrics.MessageSent("ok")
	return reply, nil
}

func (s *Sender) generate(ctx context.Context, convID string, revision bool) (model.Message, error) {
	s.generating.Store(true)
	defer s.generating.Store(false)

	reply, err := s.api.GenerateReply(ctx, convID, revision)
	if err != nil {
		s.metrics.MessageSent(outcome("reply", err))
		s.logger.Error("clone reply failed",
			zap.String("conversation", convID),
			zap.Bool("revision", revision),
			zap.Error(err))
		return model.Message{}, fmt.Errorf("%w: %w", ErrReplyFailed, err)
	}
	reply.LocalState = model.Confirmed
	return reply, nil
}

// replace rewrites the message with id in place.
func (s *Sender) replace(id string, fn func(model.Message) model.Message) {
	s.feed.Mutate(func(items []model.Message) []model.Message {
		out := append([]model.Message(nil), items...)
		for i, m := range out {
			if m.ID == id && m.IsLocal() {
				out[i] = fn(m)
				break
			}
		}
		return out
	})
}

// synthesize builds the local record for content. Its id is the client
// clock in milliseconds, bumped when two sends share a millisecond.
func (s *Sender) synthesize(convID, content string) model.Message {
	now := s.now()
	s.mu.Lock()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	s.mu.Unlock()

	return model.Message{
		ID:             strconv.FormatInt(id, 10),
		Content:        content,
		SenderName:     s.who.SenderName,
		IsClone:        false,
		IsActive:       true,
		IsMain:         true,
		ConversationID: convID,
		UserID:         s.who.UserID,
		CloneID:        s.who.CloneID,
		Timestamp:      now,
		LocalState:     model.Pending,
	}
}

func outcome(step string, err error) string {
	switch {
	case errors.Is(err, api.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return step + "_failed"
	}
}
