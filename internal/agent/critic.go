package agent

import (
	"context"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
)

// Critic inspects a rendered frame against the concept, script and code.
type Critic struct {
	agent    *Agent
	template string
}

// NewCritic wraps a vision-capable agent.
func NewCritic(a *Agent, t Templates) *Critic {
	return &Critic{agent: a, template: t.Critic}
}

// Critique sends one frame with full textual context and parses the verdict.
func (c *Critic) Critique(ctx context.Context, conv Conversation, frame llm.Image, concept, script, code string) (Critique, Conversation, error) {
	resp, err := c.agent.Respond(ctx, conv, Request{
		Prompt: Render(c.template, map[string]string{
			VarUserPrompt:  concept,
			VarSceneScript: script,
			VarManimCode:   code,
		}),
		Images:   []llm.Image{frame},
		Continue: true,
	})
	if err != nil {
		return Critique{}, resp.Conversation, err
	}
	return ParseCritique(resp.Text), resp.Conversation, nil
}
