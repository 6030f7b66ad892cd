package llm

import (
	"fmt"
	"strings"
)

// Persona describes the character a provider speaks as.
type Persona struct {
	Name       string
	Summary    string
	Background string
}

// System returns the system prompt for the persona.
func (p Persona) System() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", p.Name)
	if p.Summary != "" {
		fmt.Fprintf(&b, " %s.", strings.TrimSuffix(p.Summary, "."))
	}
	if p.Background != "" {
		fmt.Fprintf(&b, "\n\n%s", p.Background)
	}
	b.WriteString("\n\nStay in character and answer conversationally.")
	return b.String()
}

// Transcript prepares turns, oldest first, for a provider request.
//
// Anthropic and Gemini reject transcripts that open with the model or
// repeat a role, so assistant turns before the first user turn (the clone's
// greeting) move into the system prompt and consecutive turns of one role
// are joined.
func (p Persona) Transcript(turns []ChatMessage) []ChatMessage {
	var opening []string
	i := 0
	for ; i < len(turns) && turns[i].Role == RoleAssistant; i++ {
		opening = append(opening, turns[i].Content)
	}

	system := p.System()
	if len(opening) > 0 {
		system += "\n\nYou opened the conversation with: " + strings.Join(opening, "\n\n")
	}

	out := []ChatMessage{SystemMessage(system)}
	for _, t := range turns[i:] {
		if last := &out[len(out)-1]; len(out) > 1 && last.Role == t.Role {
			last.Content += "\n\n" + t.Content
			continue
		}
		out = append(out, t)
	}
	return out
}
