package agent

import "github.com/hesamsheikh/AnimAI-Trainer/internal/llm"

// Turn is one side of an exchange. User turns may carry images.
type Turn struct {
	Role    llm.Role
	Content string
	Images  []llm.Image
}

// Conversation is an immutable, even-length sequence of user/assistant pairs.
// The zero value is the empty conversation.
type Conversation struct {
	turns []Turn
}

// Len returns the number of turns.
func (c Conversation) Len() int {
	return len(c.turns)
}

// Turns returns a copy of the turns in order.
func (c Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Append returns a new conversation extended by exactly one user and one assistant turn.
func (c Conversation) Append(user, assistant Turn) Conversation {
	user.Role = llm.RoleUser
	assistant.Role = llm.RoleAssistant
	assistant.Images = nil

	turns := make([]Turn, len(c.turns), len(c.turns)+2)
	copy(turns, c.turns)
	return Conversation{turns: append(turns, user, assistant)}
}

// LastReply returns the content of the most recent assistant turn.
func (c Conversation) LastReply() string {
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == llm.RoleAssistant {
			return c.turns[i].Content
		}
	}
	return ""
}

// Messages renders the turns as chat messages.
func (c Conversation) Messages() []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(c.turns))
	for _, t := range c.turns {
		out = append(out, t.message())
	}
	return out
}

func (t Turn) message() llm.ChatMessage {
	return llm.ChatMessage{Role: t.Role, Content: t.Content, Images: t.Images}
}
