package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
)

// Metrics receives per-request accounting. Implementations must tolerate concurrent use.
type Metrics interface {
	RecordAgentRequest(role, model string, duration time.Duration, err error)
}

// Option customises an Agent.
type Option func(*Agent)

// WithLogger sets the logger (default no-op).
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// Agent wraps a single LLM endpoint. It holds no conversation state: Respond takes
// the old conversation and returns the new one.
type Agent struct {
	provider llm.Provider
	route    llm.ModelRoute
	cfg      Config
	logger   *zap.Logger
	metrics  Metrics
}

// New validates cfg against the provider serving route and builds an Agent.
func New(provider llm.Provider, route llm.ModelRoute, cfg Config, opts ...Option) (*Agent, error) {
	if provider == nil {
		return nil, fmt.Errorf("agent %s: provider is required", cfg.Role)
	}
	if cfg.Version != 0 && cfg.Version != ConfigVersion {
		return nil, fmt.Errorf("agent %s: unsupported config version %d", cfg.Role, cfg.Version)
	}
	cfg.Version = ConfigVersion

	if cfg.Endpoint == "" {
		cfg.Endpoint = provider.Kind()
	}
	if !cfg.Endpoint.Valid() {
		return nil, fmt.Errorf("agent %s: %w %q", cfg.Role, ErrUnsupportedEndpoint, cfg.Endpoint)
	}
	if cfg.Endpoint != provider.Kind() {
		return nil, fmt.Errorf("agent %s: endpoint %q does not match provider %s (%s)", cfg.Role, cfg.Endpoint, provider.Name(), provider.Kind())
	}

	if cfg.History == "" {
		cfg.History = HistoryAlways
	}
	if _, err := ParseHistoryPolicy(string(cfg.History)); err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Role, err)
	}

	a := &Agent{
		provider: provider,
		route:    route,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the effective configuration.
func (a *Agent) Config() Config {
	return a.cfg
}

// Route returns the model route the agent talks to.
func (a *Agent) Route() llm.ModelRoute {
	return a.route
}

// Respond sends one prompt. On success and when history saving applies, the returned
// conversation is conv plus exactly one user and one assistant turn. On failure the
// returned conversation is conv unchanged.
func (a *Agent) Respond(ctx context.Context, conv Conversation, req Request) (Response, error) {
	out := Response{Route: a.route, Conversation: conv}
	if strings.TrimSpace(req.Prompt) == "" {
		return out, fmt.Errorf("prompt is required")
	}

	user := Turn{Role: llm.RoleUser, Content: req.Prompt, Images: req.Images}

	messages := make([]llm.ChatMessage, 0, conv.Len()+2)
	if a.cfg.System != "" {
		messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: a.cfg.System})
	}
	if req.Continue {
		messages = append(messages, conv.Messages()...)
	}
	messages = append(messages, user.message())

	chatReq := llm.ChatRequest{
		Model:       a.route.Model,
		Messages:    messages,
		MaxTokens:   pickMaxTokens(a.cfg.Sampling.MaxTokens, a.route.MaxTokens),
		Temperature: pickTemperature(a.cfg.Sampling.Temperature, a.route.Temperature),
		TopP:        a.cfg.Sampling.TopP,
		TopK:        a.cfg.Sampling.TopK,
		Stream:      a.cfg.Streaming,
	}

	start := time.Now()
	text, finish, err := a.complete(ctx, chatReq)
	if a.metrics != nil {
		a.metrics.RecordAgentRequest(a.cfg.Role, a.route.Name, time.Since(start), err)
	}
	if err != nil {
		a.logger.Warn("agent request failed",
			zap.String("role", a.cfg.Role),
			zap.String("model", a.route.Name),
			zap.Error(err),
		)
		return out, &RequestError{Role: a.cfg.Role, Model: a.route.Name, Err: err}
	}

	a.logger.Debug("agent reply",
		zap.String("role", a.cfg.Role),
		zap.String("model", a.route.Name),
		zap.Int("history", conv.Len()),
		zap.Int("reply_bytes", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)

	out.Text = text
	out.FinishReason = finish
	if a.saves(req) {
		out.Conversation = conv.Append(user, Turn{Content: text})
	}
	return out, nil
}

func (a *Agent) saves(req Request) bool {
	switch a.cfg.History {
	case HistoryStateless:
		return false
	case HistoryPerCall:
		if req.Save != nil {
			return *req.Save
		}
		return req.Continue
	default:
		return true
	}
}

// complete drains a stream synchronously when streaming is enabled.
func (a *Agent) complete(ctx context.Context, req llm.ChatRequest) (string, string, error) {
	if !a.cfg.Streaming {
		resp, err := a.provider.Chat(ctx, req)
		if err != nil {
			return "", "", err
		}
		return resp.Message.Content, resp.FinishReason, nil
	}

	ch, errCh := a.provider.Stream(ctx, req)
	var b strings.Builder
	var finish string
	for chunk := range ch {
		b.WriteString(chunk.Content)
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	if err := <-errCh; err != nil {
		return "", "", err
	}
	return b.String(), finish, nil
}

func pickTemperature(agentTemp float64, routeTemp float64) float64 {
	if agentTemp > 0 {
		return agentTemp
	}
	if routeTemp > 0 {
		return routeTemp
	}
	return 0.7
}

func pickMaxTokens(agentMax int, routeMax int) int {
	if agentMax > 0 {
		return agentMax
	}
	if routeMax > 0 {
		return routeMax
	}
	return 0
}
