package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
)

// ConfigVersion is the current layout of Config.
const ConfigVersion = 1

// Pipeline roles.
const (
	RoleScripter = "scripter"
	RoleCoder    = "coder"
	RoleCritic   = "critic"
)

// ErrUnsupportedEndpoint is returned by New when the endpoint kind is unknown.
var ErrUnsupportedEndpoint = errors.New("unsupported endpoint kind")

// HistoryPolicy decides whether a successful exchange is appended to the conversation.
type HistoryPolicy string

const (
	HistoryStateless HistoryPolicy = "stateless"
	HistoryAlways    HistoryPolicy = "always"
	// HistoryPerCall lets each Request decide through Request.Save.
	HistoryPerCall HistoryPolicy = "per_call"
)

// ParseHistoryPolicy maps configuration text onto a policy. Empty means always.
func ParseHistoryPolicy(s string) (HistoryPolicy, error) {
	switch HistoryPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", HistoryAlways:
		return HistoryAlways, nil
	case HistoryStateless:
		return HistoryStateless, nil
	case HistoryPerCall:
		return HistoryPerCall, nil
	default:
		return "", fmt.Errorf("unknown history policy %q", s)
	}
}

// Sampling holds generation parameters. Zero values defer to the model route.
type Sampling struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
	TopK        int
}

// Config is the versioned configuration of a single agent.
type Config struct {
	Version   int
	Role      string
	Model     string
	Endpoint  llm.EndpointKind
	Streaming bool
	History   HistoryPolicy
	Sampling  Sampling
	System    string
}

// ConfigFromSettings converts the file/env representation of an agent into a Config.
func ConfigFromSettings(role string, s config.AgentConfig) (Config, error) {
	policy, err := ParseHistoryPolicy(s.History)
	if err != nil {
		return Config{}, fmt.Errorf("agent %s: %w", role, err)
	}
	cfg := Config{
		Version:   ConfigVersion,
		Role:      role,
		Model:     s.Model,
		Streaming: s.Streaming,
		History:   policy,
		Sampling: Sampling{
			Temperature: s.Temperature,
			MaxTokens:   s.MaxTokens,
			TopP:        s.TopP,
			TopK:        s.TopK,
		},
		System: s.System,
	}
	if strings.TrimSpace(s.Endpoint) != "" {
		kind, err := llm.ParseEndpointKind(s.Endpoint)
		if err != nil {
			return Config{}, fmt.Errorf("agent %s: %w: %v", role, ErrUnsupportedEndpoint, err)
		}
		cfg.Endpoint = kind
	}
	return cfg, nil
}

// Request is a single agent invocation.
type Request struct {
	Prompt string
	Images []llm.Image
	// Continue prepends the prior turns of the conversation.
	Continue bool
	// Save overrides history saving under HistoryPerCall.
	Save *bool
}

// Response carries the reply and the conversation after the exchange.
type Response struct {
	Text         string
	FinishReason string
	Route        llm.ModelRoute
	Conversation Conversation
}

// RequestError is a backend failure surfaced by Respond. The agent never retries.
type RequestError struct {
	Role  string
	Model string
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s request to %s failed: %v", e.Role, e.Model, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
