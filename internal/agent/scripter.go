package agent

import (
	"context"
	"strings"
)

// ScriptGenerator turns a concept into a natural-language scene script.
type ScriptGenerator struct {
	agent    *Agent
	template string
}

// NewScriptGenerator wraps a for script generation.
func NewScriptGenerator(a *Agent, t Templates) *ScriptGenerator {
	return &ScriptGenerator{agent: a, template: t.SceneScript}
}

// Generate asks for a fresh script for concept.
func (g *ScriptGenerator) Generate(ctx context.Context, conv Conversation, concept string) (string, Conversation, error) {
	resp, err := g.agent.Respond(ctx, conv, Request{
		Prompt: Render(g.template, map[string]string{VarUserPrompt: concept}),
		Save:   boolPtr(true),
	})
	if err != nil {
		return "", resp.Conversation, err
	}
	return strings.TrimSpace(resp.Text), resp.Conversation, nil
}

// Revise continues the script conversation with instruction and returns the new script.
func (g *ScriptGenerator) Revise(ctx context.Context, conv Conversation, instruction string) (string, Conversation, error) {
	resp, err := g.agent.Respond(ctx, conv, Request{
		Prompt:   instruction,
		Continue: true,
	})
	if err != nil {
		return "", resp.Conversation, err
	}
	return strings.TrimSpace(resp.Text), resp.Conversation, nil
}

func boolPtr(b bool) *bool {
	return &b
}
