package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
)

// DefaultCompatBaseURL is used for the compat dialect when no base URL is configured.
const DefaultCompatBaseURL = "https://openrouter.ai/api/v1"

// Provider speaks both OpenAI chat dialects through the official SDK. The two
// dialects differ only in the field carrying the output-size limit.
type Provider struct {
	name    string
	kind    llm.EndpointKind
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProvider constructs a Provider for kind (openai or openai_compat).
func NewProvider(name string, kind llm.EndpointKind, baseURL, apiKey string, timeout time.Duration) (*Provider, error) {
	if kind != llm.EndpointOpenAI && kind != llm.EndpointOpenAICompat {
		return nil, fmt.Errorf("openai provider %s: unsupported endpoint kind %q", name, kind)
	}
	if baseURL == "" && kind == llm.EndpointOpenAICompat {
		baseURL = DefaultCompatBaseURL
	}
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Provider{
		name:    name,
		kind:    kind,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Kind returns the dialect this provider sends.
func (p *Provider) Kind() llm.EndpointKind {
	return p.kind
}

func (p *Provider) requestOptions(req llm.ChatRequest) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithHTTPClient(p.client),
		option.WithMaxRetries(0),
	}
	if p.apiKey != "" {
		opts = append(opts, option.WithAPIKey(p.apiKey))
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	if req.TopK > 0 {
		opts = append(opts, option.WithJSONSet("top_k", req.TopK))
	}
	return opts
}

func (p *Provider) params(req llm.ChatRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		if p.kind == llm.EndpointOpenAI {
			params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
		} else {
			params.MaxTokens = openai.Int(int64(req.MaxTokens))
		}
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	return params
}

// Chat executes a non-streaming chat completion.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if req.Model == "" {
		return llm.ChatResponse{}, fmt.Errorf("model is required")
	}

	client := openai.NewClient(p.requestOptions(req)...)
	resp, err := client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("%s: chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, errors.New(p.name + ": empty choices")
	}

	choice := resp.Choices[0]
	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: choice.Message.Content,
		},
		FinishReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

// Stream performs a server-sent-events completion and forwards each delta in order.
func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, <-chan error) {
	ch := make(chan llm.StreamChunk, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(ch)

		if req.Model == "" {
			errCh <- fmt.Errorf("model is required")
			return
		}

		client := openai.NewClient(p.requestOptions(req)...)
		stream := client.Chat.Completions.NewStreaming(ctx, p.params(req))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := llm.StreamChunk{
				Content:      chunk.Choices[0].Delta.Content,
				FinishReason: string(chunk.Choices[0].FinishReason),
			}
			if delta.Content == "" && delta.FinishReason == "" {
				continue
			}
			select {
			case ch <- delta:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("%s: stream: %w", p.name, err)
		}
	}()

	return ch, errCh
}

func toOpenAIMessages(msgs []llm.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(m.Content)}
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: img.DataURL(),
				}))
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}
