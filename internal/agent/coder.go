package agent

import (
	"context"
)

// maxRepairErrorBytes bounds the error text quoted back to the model. Tracebacks
// end with the actual exception, so the tail is kept.
const maxRepairErrorBytes = 6000

// CodeGenerator turns a script into a single renderable scene and repairs it
// from validator failures, continuing its own conversation.
type CodeGenerator struct {
	agent    *Agent
	template string
	repair   string
}

// NewCodeGenerator wraps a for code generation. voiceover selects the narrated variant.
func NewCodeGenerator(a *Agent, t Templates, voiceover bool) *CodeGenerator {
	tmpl := t.Code
	if voiceover {
		tmpl = t.VoiceoverCode
	}
	return &CodeGenerator{agent: a, template: tmpl, repair: t.Repair}
}

// Generate produces code for script.
func (g *CodeGenerator) Generate(ctx context.Context, conv Conversation, script, concept string) (string, Conversation, error) {
	resp, err := g.agent.Respond(ctx, conv, Request{
		Prompt: Render(g.template, map[string]string{
			VarUserPrompt:  concept,
			VarSceneScript: script,
		}),
		Continue: true,
	})
	if err != nil {
		return "", resp.Conversation, err
	}
	return ExtractCode(resp.Text), resp.Conversation, nil
}

// Repair sends the failure message back on the existing conversation.
func (g *CodeGenerator) Repair(ctx context.Context, conv Conversation, failure string) (string, Conversation, error) {
	resp, err := g.agent.Respond(ctx, conv, Request{
		Prompt:   Render(g.repair, map[string]string{VarError: tail(failure, maxRepairErrorBytes)}),
		Continue: true,
	})
	if err != nil {
		return "", resp.Conversation, err
	}
	return ExtractCode(resp.Text), resp.Conversation, nil
}

func tail(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return "[truncated] ..." + text[len(text)-limit:]
}
