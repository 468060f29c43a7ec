package mock

import (
	"context"
	"sync"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
)

// Provider is a test double implementing llm.Provider.
type Provider struct {
	NameValue    string
	KindValue    llm.EndpointKind
	ChatFn       func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	StreamChunks []llm.StreamChunk
	StreamErr    error

	mu       sync.Mutex
	requests []llm.ChatRequest
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Kind() llm.EndpointKind {
	if p.KindValue != "" {
		return p.KindValue
	}
	return llm.EndpointOpenAICompat
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *Provider) record(req llm.ChatRequest) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.record(req)
	if p.ChatFn != nil {
		return p.ChatFn(ctx, req)
	}
	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: "mock",
		},
		FinishReason: "stop",
		ProviderName: p.Name(),
		Model:        req.Model,
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, <-chan error) {
	p.record(req)
	ch := make(chan llm.StreamChunk, len(p.StreamChunks))
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for _, c := range p.StreamChunks {
			ch <- c
		}
		close(ch)
		if p.StreamErr != nil {
			errCh <- p.StreamErr
		}
	}()
	return ch, errCh
}
