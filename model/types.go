// Package model provides domain types shared across packages.
//
// These mirror the JSON records returned by the Clonr API. Fields that
// exist only on the client (LocalState) are never serialized.
package model

import "time"

// Tag labels clones for browsing.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ColorCode string    `json:"color_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone is a chat persona as returned by clone search.
type Clone struct {
	ID               string    `json:"id"`
	CreatorID        string    `json:"creator_id"`
	Name             string    `json:"name"`
	ShortDescription string    `json:"short_description"`
	LongDescription  string    `json:"long_description,omitempty"`
	Greeting         string    `json:"greeting_message,omitempty"`
	AvatarURI        string    `json:"avatar_uri,omitempty"`
	IsPublic         bool      `json:"is_public"`
	NumMessages      int       `json:"num_messages"`
	NumConversations int       `json:"num_conversations"`
	Tags             []Tag     `json:"tags"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SidebarConversation is a conversation summary for the navigation list,
// including a preview of the most recent message.
type SidebarConversation struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name,omitempty"`
	CloneID              string    `json:"clone_id"`
	CloneName            string    `json:"clone_name"`
	AvatarURI            string    `json:"avatar_uri,omitempty"`
	LastMessage          string    `json:"last_message"`
	LastUpdatedAt        time.Time `json:"last_updated_at"`
	GroupUpdatedAt       time.Time `json:"group_updated_at"`
	NumConversationsWith int       `json:"num_conversations_with_clone"`
}

// Conversation is one chat thread between a user and a clone.
type Conversation struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name,omitempty"`
	UserID              string    `json:"user_id"`
	CloneID             string    `json:"clone_id"`
	CloneName           string    `json:"clone_name"`
	MemoryStrategy      string    `json:"memory_strategy"`
	InformationStrategy string    `json:"information_strategy"`
	IsActive            bool      `json:"is_active"`
	NumMessages         int       `json:"num_messages_ever"`
	LastMessage         string    `json:"last_message,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// LocalState tracks client-side delivery of a message.
type LocalState int

const (
	// Confirmed messages came from the server.
	Confirmed LocalState = iota
	// Pending messages were synthesized locally and are awaiting the server.
	Pending
	// Failed messages were synthesized locally and the server refused them.
	Failed
)

// String returns the state name.
func (s LocalState) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is one chat message in a conversation. Lists are returned newest
// first.
type Message struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	SenderName     string    `json:"sender_name"`
	IsClone        bool      `json:"is_clone"`
	IsActive       bool      `json:"is_active"`
	IsMain         bool      `json:"is_main"`
	ParentID       string    `json:"parent_id,omitempty"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	CloneID        string    `json:"clone_id"`
	Timestamp      time.Time `json:"timestamp"`

	LocalState LocalState `json:"-"`
}

// IsLocal reports whether the message was synthesized on the client and not
// yet replaced by a server record.
func (m Message) IsLocal() bool {
	return m.LocalState != Confirmed
}
