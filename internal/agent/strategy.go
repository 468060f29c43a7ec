package agent

import (
	"fmt"
	"strings"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
)

// StrategyEngine chooses models for the pipeline roles.
type StrategyEngine struct {
	registry *llm.Registry
	cfg      config.StrategyConfig
}

// NewStrategyEngine builds a strategy selector.
func NewStrategyEngine(reg *llm.Registry, cfg config.StrategyConfig) *StrategyEngine {
	return &StrategyEngine{registry: reg, cfg: cfg}
}

// ResolveModel picks a model for role. Candidates are tried in order: override,
// strategy default, fallbacks, registry default. The critic prefers the first
// candidate whose route is vision-capable.
func (s *StrategyEngine) ResolveModel(role string, override string) (llm.Provider, llm.ModelRoute, error) {
	if s == nil || s.registry == nil {
		return nil, llm.ModelRoute{}, fmt.Errorf("no model registry configured")
	}
	role = strings.ToLower(strings.TrimSpace(role))

	candidates := make([]string, 0, len(s.cfg.Fallbacks)+3)
	for _, id := range append([]string{override, s.cfg.DefaultModel}, s.cfg.Fallbacks...) {
		if strings.TrimSpace(id) != "" {
			candidates = append(candidates, id)
		}
	}
	candidates = append(candidates, "")

	var (
		firstProvider llm.Provider
		firstRoute    llm.ModelRoute
		lastErr       error
	)
	for _, id := range candidates {
		p, route, err := s.registry.Resolve(id)
		if err != nil {
			lastErr = err
			continue
		}
		if role != RoleCritic || route.Vision {
			return p, route, nil
		}
		if firstProvider == nil {
			firstProvider, firstRoute = p, route
		}
	}
	if firstProvider != nil {
		return firstProvider, firstRoute, nil
	}
	return nil, llm.ModelRoute{}, lastErr
}

// NewAgent resolves a model for cfg.Role and constructs the agent.
func (s *StrategyEngine) NewAgent(cfg Config, opts ...Option) (*Agent, error) {
	p, route, err := s.ResolveModel(cfg.Role, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("resolve %s model: %w", cfg.Role, err)
	}
	return New(p, route, cfg, opts...)
}
