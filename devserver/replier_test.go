package devserver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/clonr/llm"
	"github.com/richinex/clonr/model"
)

func TestPromptOrdersHistoryOldestFirst(t *testing.T) {
	clone := model.Clone{Name: "Socrates", ShortDescription: "Philosopher.", LongDescription: "Asks questions."}
	history := []model.Message{
		{Content: "newest", IsClone: true},
		{Content: "later"},
		{Content: "reply", IsClone: true},
		{Content: "first"},
		{Content: "greeting", IsClone: true},
	}

	msgs := Prompt(clone, history)
	require.Len(t, msgs, 5)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.True(t, strings.HasPrefix(msgs[0].Content, "You are Socrates. Philosopher."))
	assert.Contains(t, msgs[0].Content, "Asks questions.")
	assert.Contains(t, msgs[0].Content, "You opened the conversation with: greeting")

	assert.Equal(t, llm.UserMessage("first"), msgs[1])
	assert.Equal(t, llm.AssistantMessage("reply"), msgs[2])
	assert.Equal(t, llm.UserMessage("later"), msgs[3])
	assert.Equal(t, llm.AssistantMessage("newest"), msgs[4])
}

type stubProvider struct {
	content string
	err     error
}

func (stubProvider) Name() string  { return "stub" }
func (stubProvider) Model() string { return "stub-1" }
func (p stubProvider) Chat(context.Context, []llm.ChatMessage) (llm.LLMResponse, error) {
	return llm.LLMResponse{Content: p.content}, p.err
}

func TestLLMReplier(t *testing.T) {
	ctx := context.Background()
	clone := model.Clone{Name: "Ada"}

	text, err := NewLLMReplier(stubProvider{content: "  Good day.\n"}).Reply(ctx, clone, nil)
	require.NoError(t, err)
	assert.Equal(t, "Good day.", text)

	_, err = NewLLMReplier(stubProvider{content: "   "}).Reply(ctx, clone, nil)
	assert.ErrorContains(t, err, "empty reply")

	boom := errors.New("boom")
	_, err = NewLLMReplier(stubProvider{err: boom}).Reply(ctx, clone, nil)
	assert.ErrorIs(t, err, boom)
}
