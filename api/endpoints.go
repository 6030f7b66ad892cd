package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/richinex/clonr/model"
)

// ListClones searches clones.
func (c *Client) ListClones(ctx context.Context, q CloneQuery, p Page) ([]model.Clone, error) {
	v := q.Values()
	p.apply(v)
	var out []model.Clone
	if err := c.do(ctx, "list_clones", http.MethodGet, "clones", v, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// SidebarConversations lists conversation summaries for the navigation list.
func (c *Client) SidebarConversations(ctx context.Context, q SidebarQuery, p Page) ([]model.SidebarConversation, error) {
	v := q.Values()
	p.apply(v)
	var out []model.SidebarConversation
	if err := c.do(ctx, "sidebar_conversations", http.MethodGet, "conversations/sidebar", v, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// ListConversations lists the user's conversations, optionally with one clone.
func (c *Client) ListConversations(ctx context.Context, q ConversationQuery, p Page) ([]model.Conversation, error) {
	v := q.Values()
	p.apply(v)
	var out []model.Conversation
	if err := c.do(ctx, "list_conversations", http.MethodGet, "conversations", v, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// ListMessages lists messages of one conversation, newest first.
func (c *Client) ListMessages(ctx context.Context, q MessageQuery, p Page) ([]model.Message, error) {
	if q.ConversationID == "" {
		return nil, fmt.Errorf("list_messages: %w", ErrMissingID)
	}
	v := url.Values{}
	v.Set("is_active", strconv.FormatBool(q.IsActive))
	v.Set("is_main", strconv.FormatBool(q.IsMain))
	p.apply(v)
	var out []model.Message
	if err := c.do(ctx, "list_messages", http.MethodGet, "conversations/"+q.ConversationID+"/messages", v, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

type createConversationRequest struct {
	CloneID string `json:"clone_id"`
	Name    string `json:"name,omitempty"`
}

// CreateConversation starts a conversation with a clone. An empty name
// lets the server pick one.
func (c *Client) CreateConversation(ctx context.Context, cloneID, name string) (model.Conversation, error) {
	if cloneID == "" {
		return model.Conversation{}, fmt.Errorf("create_conversation: clone id is required")
	}
	var out model.Conversation
	err := c.do(ctx, "create_conversation", http.MethodPost, "conversations", nil,
		createConversationRequest{CloneID: cloneID, Name: name}, &out)
	return out, err
}

type createMessageRequest struct {
	Content string `json:"content"`
}

// CreateMessage persists a user message.
func (c *Client) CreateMessage(ctx context.Context, conversationID, content string) (model.Message, error) {
	if conversationID == "" {
		return model.Message{}, fmt.Errorf("create_message: %w", ErrMissingID)
	}
	var out model.Message
	err := c.do(ctx, "create_message", http.MethodPost, "conversations/"+conversationID+"/messages", nil,
		createMessageRequest{Content: content}, &out)
	return out, err
}

// GenerateReply asks the clone to answer the latest message.
// isRevision requests an alternative to the previous reply.
func (c *Client) GenerateReply(ctx context.Context, conversationID string, isRevision bool) (model.Message, error) {
	if conversationID == "" {
		return model.Message{}, fmt.Errorf("generate_reply: %w", ErrMissingID)
	}
	v := url.Values{}
	v.Set("is_revision", strconv.FormatBool(isRevision))
	var out model.Message
	err := c.do(ctx, "generate_reply", http.MethodPost, "conversations/"+conversationID+"/generate", v, nil, &out)
	return out, err
}

// ListTags lists all clone tags.
func (c *Client) ListTags(ctx context.Context) ([]model.Tag, error) {
	var out []model.Tag
	if err := c.do(ctx, "list_tags", http.MethodGet, "tags", nil, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// nonNil turns a JSON null into an empty page so that length checks hold.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
