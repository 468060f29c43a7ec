// Package configbuilder turns the providers and models config sections into a
// populated llm.Registry.
package configbuilder

import (
	"fmt"
	"sort"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
	llmollama "github.com/hesamsheikh/AnimAI-Trainer/internal/llm/providers/ollama"
	llmopenai "github.com/hesamsheikh/AnimAI-Trainer/internal/llm/providers/openai"
)

// BuildRegistryFromConfig constructs every provider, wrapping it in a rate
// limiter when requests_per_second is set, and registers the model routes.
func BuildRegistryFromConfig(cfg *config.Config) (*llm.Registry, error) {
	reg := llm.NewRegistry()

	for _, name := range sortedKeys(cfg.Providers) {
		pCfg := cfg.Providers[name]
		p, err := buildProvider(name, pCfg)
		if err != nil {
			return nil, err
		}
		reg.RegisterProvider(name, llm.NewRateLimited(p, pCfg.RequestsPerSecond, pCfg.Burst))
	}

	for _, name := range sortedKeys(cfg.Models) {
		mCfg := cfg.Models[name]
		if _, ok := cfg.Providers[mCfg.Provider]; !ok {
			return nil, fmt.Errorf("model %s: %w: %q", name, llm.ErrProviderNotFound, mCfg.Provider)
		}
		reg.RegisterModel(name, llm.ModelRoute{
			Provider:    mCfg.Provider,
			Model:       mCfg.Model,
			Temperature: mCfg.Temperature,
			MaxTokens:   mCfg.MaxTokens,
			Vision:      mCfg.Vision,
		}, mCfg.Default)
	}

	if _, _, err := reg.Resolve(""); err != nil {
		return nil, fmt.Errorf("default model: %w", err)
	}
	return reg, nil
}

func buildProvider(name string, cfg config.ProviderConfig) (llm.Provider, error) {
	kind, err := llm.ParseEndpointKind(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	switch kind {
	case llm.EndpointOllama:
		return llmollama.NewProvider(name, cfg.BaseURL, cfg.Timeout), nil
	default:
		p, err := llmopenai.NewProvider(name, kind, cfg.BaseURL, cfg.APIKey, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		return p, nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
