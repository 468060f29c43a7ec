// Package app wires the pipeline and its collaborators from configuration using
// go.uber.org/dig.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/agent"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm/configbuilder"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/media"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/observability"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/pipeline"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/store"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/tools"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/validate"
)

// App holds the resolved services. Callers never import dig directly.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	registry  *llm.Registry
	pipeline  *pipeline.Pipeline
	validator *validate.Validator
	store     *store.Store
}

func (a *App) Config() *config.Config          { return a.cfg }
func (a *App) Logger() *zap.Logger             { return a.logger }
func (a *App) Metrics() *observability.Metrics { return a.metrics }
func (a *App) Registry() *llm.Registry         { return a.registry }
func (a *App) Pipeline() *pipeline.Pipeline    { return a.pipeline }
func (a *App) Validator() *validate.Validator  { return a.validator }
func (a *App) Store() *store.Store             { return a.store }

// Option adjusts how the container is built.
type Option func(*options)

type options struct {
	registry *llm.Registry
	syntax   validate.SyntaxChecker
}

// WithRegistry uses reg instead of building providers from configuration.
func WithRegistry(reg *llm.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithSyntaxChecker replaces the python syntax checker.
func WithSyntaxChecker(s validate.SyntaxChecker) Option {
	return func(o *options) { o.syntax = s }
}

// New builds and wires all services from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := dig.New()
	providers := []any{
		func() context.Context { return ctx },
		func() *config.Config { return cfg },
		func() *zap.Logger { return logger },
		func() options { return o },
		observability.NewMetrics,
		newRegistry,
		newStrategy,
		newTemplates,
		newScriptGenerator,
		newCodeGenerator,
		newCritic,
		newSandbox,
		newValidator,
		newFrameStore,
		newPipeline,
		newStore,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *App
	err := d.Invoke(func(
		metrics *observability.Metrics,
		registry *llm.Registry,
		p *pipeline.Pipeline,
		v *validate.Validator,
		s *store.Store,
	) {
		result = &App{
			cfg:       cfg,
			logger:    logger,
			metrics:   metrics,
			registry:  registry,
			pipeline:  p,
			validator: v,
			store:     s,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("wire services: %w", dig.RootCause(err))
	}
	return result, nil
}

// Close releases the run history.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// RunOptions adjusts a single run.
type RunOptions struct {
	RunID string
	// Script seeds the run instead of generating a script.
	Script string
	// Isolate gives the run its own scratch and media directories.
	Isolate  bool
	Observer pipeline.Observer
}

// Run executes one concept and records the outcome in the run history.
func (a *App) Run(ctx context.Context, concept string, opts RunOptions) (pipeline.Result, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	p := a.pipeline
	if opts.Isolate {
		v, err := a.validator.Isolated(opts.RunID)
		if err != nil {
			return pipeline.Result{RunID: opts.RunID, Concept: concept}, fmt.Errorf("isolate run: %w", err)
		}
		defer func() {
			if err := v.Release(); err != nil {
				a.logger.Warn("remove run scratch failed", zap.String("run_id", opts.RunID), zap.Error(err))
			}
		}()
		p = p.WithValidator(v)
	}

	runOpts := []pipeline.RunOption{pipeline.WithRunID(opts.RunID)}
	if opts.Script != "" {
		runOpts = append(runOpts, pipeline.WithInitialScript(opts.Script))
	}
	if opts.Observer != nil {
		runOpts = append(runOpts, pipeline.WithObserver(opts.Observer))
	}

	res, runErr := p.Run(ctx, concept, runOpts...)

	if a.store != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.store.Save(saveCtx, store.FromResult(res, runErr, time.Now())); err != nil {
			a.logger.Warn("record run failed", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}
	return res, runErr
}

func newRegistry(cfg *config.Config, o options) (*llm.Registry, error) {
	if o.registry != nil {
		return o.registry, nil
	}
	reg, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	return reg, nil
}

func newStrategy(cfg *config.Config, reg *llm.Registry) *agent.StrategyEngine {
	return agent.NewStrategyEngine(reg, cfg.Strategy)
}

func newTemplates(cfg *config.Config) (agent.Templates, error) {
	return agent.LoadTemplates(cfg.Prompts)
}

func buildAgent(s *agent.StrategyEngine, role string, settings config.AgentConfig, logger *zap.Logger, metrics *observability.Metrics) (*agent.Agent, error) {
	cfg, err := agent.ConfigFromSettings(role, settings)
	if err != nil {
		return nil, err
	}
	return s.NewAgent(cfg, agent.WithLogger(logger), agent.WithMetrics(metrics))
}

func newScriptGenerator(cfg *config.Config, s *agent.StrategyEngine, t agent.Templates, logger *zap.Logger, m *observability.Metrics) (*agent.ScriptGenerator, error) {
	a, err := buildAgent(s, agent.RoleScripter, cfg.Agents.Scripter, logger, m)
	if err != nil {
		return nil, err
	}
	return agent.NewScriptGenerator(a, t), nil
}

func newCodeGenerator(cfg *config.Config, s *agent.StrategyEngine, t agent.Templates, logger *zap.Logger, m *observability.Metrics) (*agent.CodeGenerator, error) {
	a, err := buildAgent(s, agent.RoleCoder, cfg.Agents.Coder, logger, m)
	if err != nil {
		return nil, err
	}
	return agent.NewCodeGenerator(a, t, cfg.Agents.Coder.Voiceover), nil
}

func newCritic(cfg *config.Config, s *agent.StrategyEngine, t agent.Templates, logger *zap.Logger, m *observability.Metrics) (*agent.Critic, error) {
	a, err := buildAgent(s, agent.RoleCritic, cfg.Agents.Critic, logger, m)
	if err != nil {
		return nil, err
	}
	if !a.Route().Vision {
		logger.Warn("critic model is not marked vision-capable", zap.String("model", a.Route().Name))
	}
	return agent.NewCritic(a, t), nil
}

func newSandbox(cfg *config.Config) (*tools.Sandbox, error) {
	return tools.NewSandbox(cfg.Validator)
}

func newValidator(cfg *config.Config, sb *tools.Sandbox, o options, logger *zap.Logger, m *observability.Metrics) (*validate.Validator, error) {
	opts := validate.OptionsFromConfig(cfg.Validator)
	opts.Syntax = o.syntax
	opts.Logger = logger.Named("validate")
	opts.Metrics = m
	return validate.New(sb, opts)
}

func newFrameStore(cfg *config.Config) *media.FrameStore {
	return media.NewFrameStore(cfg.Validator.FramePattern)
}

func newPipeline(
	cfg *config.Config,
	scripts *agent.ScriptGenerator,
	coder *agent.CodeGenerator,
	critic *agent.Critic,
	v *validate.Validator,
	frames *media.FrameStore,
	logger *zap.Logger,
	m *observability.Metrics,
) (*pipeline.Pipeline, error) {
	return pipeline.New(pipeline.Deps{
		Scripts:   scripts,
		Coder:     coder,
		Validator: v,
		Frames:    frames,
		Critic:    critic,
	}, pipeline.Options{
		MaxScriptIterations: cfg.Pipeline.MaxScriptIterations,
		MaxCodeIterations:   cfg.Pipeline.MaxCodeIterations,
		Logger:              logger.Named("pipeline"),
		Metrics:             m,
	})
}

func newStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}
	return store.Open(ctx, cfg.Store.Path)
}
