package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
	llmmock "github.com/hesamsheikh/AnimAI-Trainer/internal/llm/mock"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/pipeline"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/store"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/validate"
)

type noSyntaxErrors struct{}

func (noSyntaxErrors) Check(context.Context, string) (*validate.Failure, error) { return nil, nil }

const sceneReply = "```python\nfrom manim import *\n\nclass Intro(Scene):\n    def construct(self):\n        pass\n```"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Providers: map[string]config.ProviderConfig{"local": {Type: "ollama"}},
		Models: map[string]config.ModelConfig{
			"writer": {Provider: "local", Model: "script-m", Default: true},
			"coder":  {Provider: "local", Model: "code-m"},
			"vision": {Provider: "local", Model: "vision-m", Vision: true},
		},
		Agents: config.AgentsConfig{
			Scripter: config.AgentConfig{Model: "writer", History: "always"},
			Coder:    config.AgentConfig{Model: "coder", History: "always"},
			Critic:   config.AgentConfig{Model: "vision", History: "always"},
		},
		Pipeline: config.PipelineConfig{MaxScriptIterations: 2, MaxCodeIterations: 2, Concurrency: 1},
		Validator: config.ValidatorConfig{
			Python: "python3",
			Renderer: []string{"sh", "-c",
				`mkdir -p "{media_dir}/images/scene" && printf x > "{media_dir}/images/scene/{scene}0000.png"`},
			TimeoutSeconds: 10,
			ScratchDir:     filepath.Join(dir, "temp"),
			MediaDir:       filepath.Join(dir, "media"),
			FramePattern:   "images/*/*.png",
			CacheSize:      16,
		},
		Store:   config.StoreConfig{Enabled: true, Path: filepath.Join(dir, "animai.db")},
		Logging: config.LoggingConfig{Level: "info", Format: "console"},
	}
}

func mockRegistry(p llm.Provider) *llm.Registry {
	reg := llm.NewRegistry()
	reg.RegisterProvider("local", p)
	reg.RegisterModel("writer", llm.ModelRoute{Provider: "local", Model: "script-m"}, true)
	reg.RegisterModel("coder", llm.ModelRoute{Provider: "local", Model: "code-m"}, false)
	reg.RegisterModel("vision", llm.ModelRoute{Provider: "local", Model: "vision-m", Vision: true}, false)
	return reg
}

func roleProvider() *llmmock.Provider {
	return &llmmock.Provider{
		KindValue: llm.EndpointOllama,
		ChatFn: func(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			reply := "Scene 1: show a tangent line."
			switch req.Model {
			case "code-m":
				reply = sceneReply
			case "vision-m":
				reply = "Approved. Clear."
			}
			return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: reply}}, nil
		},
	}
}

func TestNewWiresServices(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NotNil(t, a.Pipeline())
	require.NotNil(t, a.Validator())
	require.NotNil(t, a.Store())
	require.NotNil(t, a.Metrics())
	require.Equal(t, []string{"coder", "vision", "writer"}, a.Registry().Models())
}

func TestNewWithoutStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Enabled = false
	a, err := New(context.Background(), cfg, nil, WithRegistry(mockRegistry(roleProvider())))
	require.NoError(t, err)
	require.Nil(t, a.Store())
	require.NoError(t, a.Close())
}

func TestNewRejectsBadPromptFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Prompts.CodeFile = filepath.Join(t.TempDir(), "missing.txt")
	_, err := New(context.Background(), cfg, nil, WithRegistry(mockRegistry(roleProvider())))
	require.Error(t, err)
}

func TestRunRecordsHistory(t *testing.T) {
	cfg := testConfig(t)
	provider := roleProvider()
	a, err := New(context.Background(), cfg, nil,
		WithRegistry(mockRegistry(provider)),
		WithSyntaxChecker(noSyntaxErrors{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	var events []pipeline.Event
	res, err := a.Run(context.Background(), "derivatives", RunOptions{
		RunID:    "run-42",
		Isolate:  true,
		Observer: func(ev pipeline.Event) { events = append(events, ev) },
	})
	require.NoError(t, err)
	require.True(t, res.Done)
	require.Equal(t, "run-42", res.RunID)
	require.Contains(t, res.Code, "class Intro(Scene)")
	require.NotEmpty(t, events)

	rec, err := a.Store().Get(context.Background(), "run-42")
	require.NoError(t, err)
	require.Equal(t, "approved", rec.Outcome)
	require.Equal(t, "derivatives", rec.Concept)

	runs, err := a.Store().List(context.Background(), store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	require.DirExists(t, filepath.Join(cfg.Validator.MediaDir, "run-42"))
	require.NoDirExists(t, filepath.Join(cfg.Validator.ScratchDir, "run-42"))
	require.DirExists(t, cfg.Validator.ScratchDir)
}
