// Package storage provides persistence for the local development backend.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Filtering, ordering and offset windows are the backend's concern
// - Counters (messages per clone, free messages per user) kept consistent
//   with the rows they count

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/richinex/clonr/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// CloneFilter selects clones for search. Tags holds tag ids; a clone must
// carry all of them.
type CloneFilter struct {
	Tags    []string
	Name    string
	Sort    string
	Similar string
}

// SidebarFilter selects sidebar summaries. ConvoLimit caps conversations
// per clone; 0 means no cap.
type SidebarFilter struct {
	Name       string
	ConvoLimit int
}

// MessageFilter selects messages. A false flag does not filter.
type MessageFilter struct {
	OnlyActive bool
	OnlyMain   bool
}

// NewClone describes a clone to create. Tags are tag names, created on
// demand.
type NewClone struct {
	CreatorID        string
	Name             string
	ShortDescription string
	LongDescription  string
	Greeting         string
	AvatarURI        string
	Tags             []string
	Private          bool
}

// NewMessage describes a message to append.
type NewMessage struct {
	ConversationID string
	UserID         string
	SenderName     string
	Content        string
	IsClone        bool
	ParentID       string
}

// Store is what the development backend needs from persistence.
// Lists never return nil slices.
type Store interface {
	EnsureUser(ctx context.Context, id, name string) error

	CreateTag(ctx context.Context, name, color string) (model.Tag, error)
	ListTags(ctx context.Context) ([]model.Tag, error)

	CreateClone(ctx context.Context, c NewClone) (model.Clone, error)
	GetClone(ctx context.Context, id string) (model.Clone, error)
	ListClones(ctx context.Context, f CloneFilter, offset, limit int) ([]model.Clone, error)

	CreateConversation(ctx context.Context, userID, cloneID, name string) (model.Conversation, error)
	GetConversation(ctx context.Context, id string) (model.Conversation, error)
	ListConversations(ctx context.Context, userID, cloneID string, offset, limit int) ([]model.Conversation, error)
	Sidebar(ctx context.Context, userID string, f SidebarFilter, offset, limit int) ([]model.SidebarConversation, error)

	AddMessage(ctx context.Context, m NewMessage) (model.Message, error)
	ListMessages(ctx context.Context, conversationID string, f MessageFilter, offset, limit int) ([]model.Message, error)
	RetireLatestReply(ctx context.Context, conversationID string) error

	IncrementUsage(ctx context.Context, userID string) (int, error)
	Usage(ctx context.Context, userID string) (int, error)

	Close() error
}

func unixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
