package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Role is the message role used in chat exchanges.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// EndpointKind selects the request dialect spoken by a backend.
type EndpointKind string

const (
	// EndpointOpenAI is the first-party OpenAI dialect (max_completion_tokens).
	EndpointOpenAI EndpointKind = "openai"
	// EndpointOpenAICompat is the OpenAI-compatible router dialect (max_tokens).
	EndpointOpenAICompat EndpointKind = "openai_compat"
	// EndpointOllama is the Ollama /api/chat dialect (options.num_predict).
	EndpointOllama EndpointKind = "ollama"
)

// Valid reports whether the kind is one the module can talk to.
func (k EndpointKind) Valid() bool {
	switch k {
	case EndpointOpenAI, EndpointOpenAICompat, EndpointOllama:
		return true
	}
	return false
}

// ParseEndpointKind maps a configured provider type onto an endpoint kind.
// Router aliases collapse onto the compat dialect.
func ParseEndpointKind(s string) (EndpointKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return EndpointOpenAI, nil
	case "openai_compat", "openrouter", "vllm", "lmstudio", "custom":
		return EndpointOpenAICompat, nil
	case "ollama":
		return EndpointOllama, nil
	default:
		return "", fmt.Errorf("unsupported endpoint kind %q", s)
	}
}

// Image is an inline image attached to a user turn.
type Image struct {
	MIMEType string
	Data     []byte
}

// Base64 returns the raw base64 encoding of the image bytes.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL suitable for vision prompts.
func (i Image) DataURL() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + i.Base64()
}

// ChatMessage represents a single message exchanged with the model.
type ChatMessage struct {
	Role    Role    `json:"role"`
	Content string  `json:"content,omitempty"`
	Images  []Image `json:"-"`
}

// ChatRequest is the input for chat providers.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	TopP        float64
	TopK        int
	Stream      bool
}

// Usage captures token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the result of a chat completion.
type ChatResponse struct {
	Message      ChatMessage
	FinishReason string
	Usage        Usage
	ProviderName string
	Model        string
}

// StreamChunk is emitted during streaming responses.
type StreamChunk struct {
	Content      string
	FinishReason string
}

// Provider defines the contract for LLM providers.
//
// Stream delivers chunks in arrival order and closes the chunk channel when the
// response ends. A terminal error, if any, is sent on the error channel.
type Provider interface {
	Name() string
	Kind() EndpointKind
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error)
}
