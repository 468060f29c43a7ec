package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
	llmmock "github.com/hesamsheikh/AnimAI-Trainer/internal/llm/mock"
)

func echoProvider(reply string) *llmmock.Provider {
	return &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: reply}}, nil
		},
	}
}

func newTestAgent(t *testing.T, p llm.Provider, cfg Config) *Agent {
	t.Helper()
	if cfg.Role == "" {
		cfg.Role = RoleCoder
	}
	a, err := New(p, llm.ModelRoute{Name: "default", Provider: "mock", Model: "m"}, cfg)
	require.NoError(t, err)
	return a
}

func TestNewRejectsUnsupportedEndpoint(t *testing.T) {
	_, err := New(&llmmock.Provider{}, llm.ModelRoute{}, Config{Endpoint: "smoke-signals"})
	require.ErrorIs(t, err, ErrUnsupportedEndpoint)
}

func TestNewRejectsEndpointMismatch(t *testing.T) {
	_, err := New(&llmmock.Provider{KindValue: llm.EndpointOllama}, llm.ModelRoute{}, Config{Endpoint: llm.EndpointOpenAI})
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match")
}

func TestNewRejectsFutureConfigVersion(t *testing.T) {
	_, err := New(&llmmock.Provider{}, llm.ModelRoute{}, Config{Version: ConfigVersion + 1})
	require.Error(t, err)
}

func TestNewDefaultsEndpointToProviderKind(t *testing.T) {
	a := newTestAgent(t, &llmmock.Provider{KindValue: llm.EndpointOllama}, Config{})
	require.Equal(t, llm.EndpointOllama, a.Config().Endpoint)
	require.Equal(t, HistoryAlways, a.Config().History)
}

func TestRespondAppendsExactlyOnePairOnSuccess(t *testing.T) {
	a := newTestAgent(t, echoProvider("reply"), Config{History: HistoryAlways})

	var conv Conversation
	resp, err := a.Respond(context.Background(), conv, Request{Prompt: "one"})
	require.NoError(t, err)
	require.Equal(t, "reply", resp.Text)
	require.Equal(t, 2, resp.Conversation.Len())
	require.Equal(t, 0, conv.Len(), "input conversation must not change")

	turns := resp.Conversation.Turns()
	require.Equal(t, llm.RoleUser, turns[0].Role)
	require.Equal(t, "one", turns[0].Content)
	require.Equal(t, llm.RoleAssistant, turns[1].Role)
	require.Equal(t, "reply", turns[1].Content)
}

func TestRespondLeavesConversationOnFailure(t *testing.T) {
	boom := errors.New("connection reset")
	p := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{}, boom
		},
	}
	a := newTestAgent(t, p, Config{History: HistoryAlways})

	conv := Conversation{}.Append(Turn{Content: "q"}, Turn{Content: "a"})
	resp, err := a.Respond(context.Background(), conv, Request{Prompt: "again", Continue: true})
	require.Error(t, err)
	require.ErrorIs(t, err, boom)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, RoleCoder, reqErr.Role)
	require.Equal(t, 2, resp.Conversation.Len())
	require.Len(t, p.Requests(), 1, "agent must not retry")
}

func TestRespondHistoryPolicies(t *testing.T) {
	ctx := context.Background()

	stateless := newTestAgent(t, echoProvider("x"), Config{History: HistoryStateless})
	resp, err := stateless.Respond(ctx, Conversation{}, Request{Prompt: "p", Continue: true, Save: boolPtr(true)})
	require.NoError(t, err)
	require.Equal(t, 0, resp.Conversation.Len())

	perCall := newTestAgent(t, echoProvider("x"), Config{History: HistoryPerCall})
	resp, err = perCall.Respond(ctx, Conversation{}, Request{Prompt: "p"})
	require.NoError(t, err)
	require.Equal(t, 0, resp.Conversation.Len(), "defaults to the continuation flag")

	resp, err = perCall.Respond(ctx, Conversation{}, Request{Prompt: "p", Save: boolPtr(true)})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Conversation.Len())

	resp, err = perCall.Respond(ctx, Conversation{}, Request{Prompt: "p", Continue: true, Save: boolPtr(false)})
	require.NoError(t, err)
	require.Equal(t, 0, resp.Conversation.Len())
}

func TestRespondContinuationPrependsHistory(t *testing.T) {
	p := echoProvider("ok")
	a := newTestAgent(t, p, Config{System: "be brief"})

	conv := Conversation{}.Append(Turn{Content: "first"}, Turn{Content: "answer"})
	_, err := a.Respond(context.Background(), conv, Request{Prompt: "second", Continue: true})
	require.NoError(t, err)
	_, err = a.Respond(context.Background(), conv, Request{Prompt: "fresh"})
	require.NoError(t, err)

	reqs := p.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Messages, 4)
	require.Equal(t, llm.RoleSystem, reqs[0].Messages[0].Role)
	require.Equal(t, "first", reqs[0].Messages[1].Content)
	require.Equal(t, "second", reqs[0].Messages[3].Content)
	require.Len(t, reqs[1].Messages, 2, "stateless request carries only system and user")
}

func TestRespondSamplingFallsBackToRoute(t *testing.T) {
	p := echoProvider("ok")
	a, err := New(p, llm.ModelRoute{Name: "r", Model: "m", Temperature: 0.3, MaxTokens: 900}, Config{
		Role:     RoleScripter,
		Sampling: Sampling{TopP: 0.9, TopK: 20},
	})
	require.NoError(t, err)

	_, err = a.Respond(context.Background(), Conversation{}, Request{Prompt: "p"})
	require.NoError(t, err)

	req := p.Requests()[0]
	require.Equal(t, 0.3, req.Temperature)
	require.Equal(t, 900, req.MaxTokens)
	require.Equal(t, 0.9, req.TopP)
	require.Equal(t, 20, req.TopK)
}

func TestRespondStreamingConcatenatesInOrder(t *testing.T) {
	p := &llmmock.Provider{StreamChunks: []llm.StreamChunk{
		{Content: "from "}, {Content: "manim "}, {Content: "import *", FinishReason: "stop"},
	}}
	a := newTestAgent(t, p, Config{Streaming: true})

	resp, err := a.Respond(context.Background(), Conversation{}, Request{Prompt: "code"})
	require.NoError(t, err)
	require.Equal(t, "from manim import *", resp.Text)
	require.Equal(t, "stop", resp.FinishReason)
	require.True(t, p.Requests()[0].Stream)
}

func TestRespondStreamingErrorDoesNotAppend(t *testing.T) {
	p := &llmmock.Provider{
		StreamChunks: []llm.StreamChunk{{Content: "partial"}},
		StreamErr:    errors.New("stream cut"),
	}
	a := newTestAgent(t, p, Config{Streaming: true})

	resp, err := a.Respond(context.Background(), Conversation{}, Request{Prompt: "code"})
	require.Error(t, err)
	require.Equal(t, 0, resp.Conversation.Len())
	require.Empty(t, resp.Text)
}

func TestRespondRequiresPrompt(t *testing.T) {
	a := newTestAgent(t, echoProvider("x"), Config{})
	_, err := a.Respond(context.Background(), Conversation{}, Request{Prompt: "  "})
	require.Error(t, err)
}

func TestConversationAppendDoesNotAlias(t *testing.T) {
	base := Conversation{}.Append(Turn{Content: "u1"}, Turn{Content: "a1"})
	left := base.Append(Turn{Content: "u2"}, Turn{Content: "left"})
	right := base.Append(Turn{Content: "u2"}, Turn{Content: "right"})

	require.Equal(t, 2, base.Len())
	require.Equal(t, "left", left.LastReply())
	require.Equal(t, "right", right.LastReply())
	require.Equal(t, 0, Conversation{}.Len())
	require.Empty(t, Conversation{}.LastReply())
}
