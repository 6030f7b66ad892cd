package devserver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/richinex/clonr/llm"
	"github.com/richinex/clonr/model"
)

// Replier writes the clone's next message. history is newest first.
type Replier interface {
	Reply(ctx context.Context, clone model.Clone, history []model.Message) (string, error)
}

// LLMReplier prompts a provider to speak as the clone.
type LLMReplier struct {
	provider llm.Provider
}

// NewLLMReplier creates a replier backed by p.
func NewLLMReplier(p llm.Provider) *LLMReplier {
	return &LLMReplier{provider: p}
}

// Reply implements Replier.
func (l *LLMReplier) Reply(ctx context.Context, clone model.Clone, history []model.Message) (string, error) {
	resp, err := l.provider.Chat(ctx, Prompt(clone, history))
	if err != nil {
		return "", fmt.Errorf("%s: %w", l.provider.Name(), err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("%s: empty reply", l.provider.Name())
	}
	return text, nil
}

// Prompt builds the chat transcript for clone: a persona system message
// followed by history oldest first.
func Prompt(clone model.Clone, history []model.Message) []llm.ChatMessage {
	turns := make([]llm.ChatMessage, 0, len(history))
	for _, m := range slices.Backward(history) {
		if m.IsClone {
			turns = append(turns, llm.AssistantMessage(m.Content))
		} else {
			turns = append(turns, llm.UserMessage(m.Content))
		}
	}
	persona := llm.Persona{
		Name:       clone.Name,
		Summary:    clone.ShortDescription,
		Background: clone.LongDescription,
	}
	return persona.Transcript(turns)
}
