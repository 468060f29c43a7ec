package config

// StrategyConfig defines the fallback model chain used when a role names no model
// or names one that is missing from the registry.
type StrategyConfig struct {
	DefaultModel string   `mapstructure:"default_model"`
	Fallbacks    []string `mapstructure:"fallbacks"` // ordered fallback model ids
}
