package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version   string                    `mapstructure:"version"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models"`
	Strategy  StrategyConfig            `mapstructure:"strategy"`
	Agents    AgentsConfig              `mapstructure:"agents"`
	Pipeline  PipelineConfig            `mapstructure:"pipeline"`
	Validator ValidatorConfig           `mapstructure:"validator"`
	Prompts   PromptsConfig             `mapstructure:"prompts"`
	Store     StoreConfig               `mapstructure:"store"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Server    ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents an LLM backend such as OpenAI, OpenRouter or Ollama.
type ProviderConfig struct {
	Type              string        `mapstructure:"type"`     // openai, openai_compat, openrouter, vllm, lmstudio, custom, ollama
	BaseURL           string        `mapstructure:"base_url"` // API base URL
	APIKey            string        `mapstructure:"api_key"`  // bearer credential
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // 0 disables throttling
	Burst             int           `mapstructure:"burst"`
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
	Vision      bool    `mapstructure:"vision"`
}

// AgentsConfig holds one agent configuration per pipeline role.
type AgentsConfig struct {
	Scripter AgentConfig `mapstructure:"scripter"`
	Coder    AgentConfig `mapstructure:"coder"`
	Critic   AgentConfig `mapstructure:"critic"`
}

// AgentConfig describes a single conversational agent.
type AgentConfig struct {
	Model       string  `mapstructure:"model"`
	Endpoint    string  `mapstructure:"endpoint"` // optional; must match the provider serving Model
	Streaming   bool    `mapstructure:"streaming"`
	History     string  `mapstructure:"history"` // stateless, always, per_call
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
	TopK        int     `mapstructure:"top_k"`
	System      string  `mapstructure:"system"`
	Voiceover   bool    `mapstructure:"voiceover"` // coder only
}

// PipelineConfig bounds the nested retry loops.
type PipelineConfig struct {
	MaxScriptIterations int `mapstructure:"max_script_iterations"`
	MaxCodeIterations   int `mapstructure:"max_code_iterations"`
	Concurrency         int `mapstructure:"concurrency"` // batch runs in flight
}

// ValidatorConfig controls the syntax checker, renderer invocation and scratch layout.
type ValidatorConfig struct {
	Python          string   `mapstructure:"python"`
	Renderer        []string `mapstructure:"renderer"` // argv template: {file} {scene} {media_dir}
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	ScratchDir      string   `mapstructure:"scratch_dir"`
	MediaDir        string   `mapstructure:"media_dir"`
	FramePattern    string   `mapstructure:"frame_pattern"`
	CacheSize       int      `mapstructure:"cache_size"`
	AllowedCommands []string `mapstructure:"allowed_commands"`
}

// PromptsConfig optionally replaces built-in templates with files.
type PromptsConfig struct {
	SceneScriptFile   string `mapstructure:"scene_script_file"`
	CodeFile          string `mapstructure:"code_file"`
	VoiceoverCodeFile string `mapstructure:"voiceover_code_file"`
	RepairFile        string `mapstructure:"repair_file"`
	CriticFile        string `mapstructure:"critic_file"`
}

// StoreConfig controls run history persistence.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: ANIMAI_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ANIMAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultRenderer is the manim invocation used when validator.renderer is unset.
var DefaultRenderer = []string{
	"manim", "render",
	"-q", "l",
	"--format", "png",
	"--frame_rate", "1",
	"--disable_caching",
	"--progress_bar", "none",
	"--media_dir", "{media_dir}",
	"{file}", "{scene}",
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	for _, role := range []string{"scripter", "coder", "critic"} {
		v.SetDefault("agents."+role+".streaming", true)
		v.SetDefault("agents."+role+".history", "always")
	}
	v.SetDefault("agents.coder.voiceover", false)

	v.SetDefault("pipeline.max_script_iterations", 5)
	v.SetDefault("pipeline.max_code_iterations", 3)
	v.SetDefault("pipeline.concurrency", 2)

	v.SetDefault("validator.python", "python3")
	v.SetDefault("validator.renderer", DefaultRenderer)
	v.SetDefault("validator.timeout_seconds", 30)
	v.SetDefault("validator.scratch_dir", "temp")
	v.SetDefault("validator.media_dir", "media")
	v.SetDefault("validator.frame_pattern", "images/*/*.png")
	v.SetDefault("validator.cache_size", 256)
	v.SetDefault("validator.allowed_commands", []string{})

	v.SetDefault("strategy.default_model", "")
	v.SetDefault("strategy.fallbacks", []string{})

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "animai.db")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	var defaultFound bool
	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
		if p.RequestsPerSecond < 0 {
			return fmt.Errorf("provider %q requests_per_second cannot be negative", name)
		}
	}

	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	for role, a := range map[string]AgentConfig{
		"scripter": c.Agents.Scripter, "coder": c.Agents.Coder, "critic": c.Agents.Critic,
	} {
		if err := a.validate(role, c.Models); err != nil {
			return err
		}
	}

	if c.Pipeline.MaxScriptIterations <= 0 {
		return errors.New("pipeline.max_script_iterations must be > 0")
	}
	if c.Pipeline.MaxCodeIterations <= 0 {
		return errors.New("pipeline.max_code_iterations must be > 0")
	}
	if c.Pipeline.Concurrency < 0 {
		return errors.New("pipeline.concurrency must be >= 0")
	}

	if strings.TrimSpace(c.Validator.Python) == "" {
		return errors.New("validator.python must be set")
	}
	if len(c.Validator.Renderer) == 0 {
		return errors.New("validator.renderer must name a command")
	}
	if c.Validator.TimeoutSeconds <= 0 {
		return errors.New("validator.timeout_seconds must be > 0")
	}
	if c.Validator.CacheSize < 0 {
		return errors.New("validator.cache_size must be >= 0")
	}
	if strings.TrimSpace(c.Validator.FramePattern) == "" {
		return errors.New("validator.frame_pattern must be set")
	}

	if c.Store.Enabled && strings.TrimSpace(c.Store.Path) == "" {
		return errors.New("store.path must be set when store.enabled is true")
	}

	if modelID := strings.TrimSpace(c.Strategy.DefaultModel); modelID != "" {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy references unknown model %q", modelID)
		}
	}
	for _, modelID := range c.Strategy.Fallbacks {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy fallback references unknown model %q", modelID)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}

func (a AgentConfig) validate(role string, models map[string]ModelConfig) error {
	if a.Model != "" {
		if _, ok := models[a.Model]; !ok {
			return fmt.Errorf("agents.%s references unknown model %q", role, a.Model)
		}
	}
	switch strings.ToLower(strings.TrimSpace(a.History)) {
	case "", "stateless", "always", "per_call":
	default:
		return fmt.Errorf("agents.%s.history must be one of stateless, always, per_call", role)
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return fmt.Errorf("agents.%s.temperature must be within [0,2]", role)
	}
	if a.MaxTokens < 0 || a.TopK < 0 || a.TopP < 0 || a.TopP > 1 {
		return fmt.Errorf("agents.%s sampling parameters out of range", role)
	}
	return nil
}
