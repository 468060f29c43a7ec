package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
)

// Provider implements a minimal Ollama chat client.
type Provider struct {
	name    string
	client  *http.Client
	baseURL string
}

// NewProvider constructs an Ollama provider.
func NewProvider(name, baseURL string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Provider{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Kind returns the ollama dialect.
func (p *Provider) Kind() llm.EndpointKind {
	return llm.EndpointOllama
}

func (p *Provider) send(ctx context.Context, req llm.ChatRequest, stream bool) (*http.Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	options := map[string]interface{}{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if req.TopK > 0 {
		options["top_k"] = req.TopK
	}

	payload, err := json.Marshal(ollamaChatRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   stream,
		Options:  options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if res.StatusCode >= 300 {
		defer res.Body.Close()
		b, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", res.StatusCode, string(b))
	}
	return res, nil
}

// Chat executes a non-streaming chat completion.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	res, err := p.send(ctx, req, false)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	defer res.Body.Close()

	var resp ollamaChatResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return llm.ChatResponse{}, fmt.Errorf("decode response: %w", err)
	}

	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: resp.Message.Content,
		},
		FinishReason: finishReason(resp),
		Usage: llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

// Stream reads the newline-delimited JSON stream and forwards each fragment in order.
func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, <-chan error) {
	ch := make(chan llm.StreamChunk, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(ch)

		res, err := p.send(ctx, req, true)
		if err != nil {
			errCh <- err
			return
		}
		defer res.Body.Close()

		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var frag ollamaChatResponse
			if err := json.Unmarshal(line, &frag); err != nil {
				errCh <- fmt.Errorf("decode stream fragment: %w", err)
				return
			}
			if frag.Error != "" {
				errCh <- fmt.Errorf("ollama: %s", frag.Error)
				return
			}
			chunk := llm.StreamChunk{Content: frag.Message.Content}
			if frag.Done {
				chunk.FinishReason = finishReason(frag)
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
			if frag.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("read stream: %w", err)
		}
	}()

	return ch, errCh
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func finishReason(r ollamaChatResponse) string {
	if r.DoneReason != "" {
		return r.DoneReason
	}
	return "stop"
}

func toOllamaMessages(msgs []llm.ChatMessage) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(msgs))
	for _, m := range msgs {
		msg := ollamaMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		for _, img := range m.Images {
			msg.Images = append(msg.Images, img.Base64())
		}
		out = append(out, msg)
	}
	return out
}
