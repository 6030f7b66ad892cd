package llm

import (
	"context"
	"fmt"
	"strings"
)

// Echo answers every conversation by quoting the latest user message. The
// dev backend uses it when no provider is configured.
type Echo struct{}

// Name returns the provider name.
func (Echo) Name() string { return "echo" }

// Model returns the current model.
func (Echo) Model() string { return "echo" }

// Chat returns a reply derived only from the input.
func (Echo) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return LLMResponse{}, err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			text := strings.TrimSpace(messages[i].Content)
			return LLMResponse{Content: fmt.Sprintf("You said: %s", text)}, nil
		}
	}
	return LLMResponse{Content: "Hello! What would you like to talk about?"}, nil
}

var _ Provider = Echo{}
