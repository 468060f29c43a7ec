package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/app"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
	llmmock "github.com/hesamsheikh/AnimAI-Trainer/internal/llm/mock"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/validate"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/version"
)

type noSyntaxErrors struct{}

func (noSyntaxErrors) Check(context.Context, string) (*validate.Failure, error) { return nil, nil }

const validScene = "from manim import *\n\nclass Tangent(Scene):\n    def construct(self):\n        pass\n"

// writeConfig writes a config whose renderer is a shell script producing one frame.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
providers:
  local:
    type: ollama
models:
  writer:
    provider: local
    model: script-m
    default: true
  coder:
    provider: local
    model: code-m
  vision:
    provider: local
    model: vision-m
    vision: true
agents:
  scripter: {model: writer}
  coder: {model: coder}
  critic: {model: vision}
pipeline:
  max_script_iterations: 2
  max_code_iterations: 2
  concurrency: 2
validator:
  python: python3
  renderer: ["sh", "-c", "mkdir -p \"{media_dir}/images/s\" && printf x > \"{media_dir}/images/s/{scene}0000.png\""]
  timeout_seconds: 10
  scratch_dir: %[1]s/temp
  media_dir: %[1]s/media
store:
  enabled: true
  path: %[1]s/animai.db
logging:
  level: error
`, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func mockRegistry() *llm.Registry {
	provider := &llmmock.Provider{
		KindValue: llm.EndpointOllama,
		ChatFn: func(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			reply := "Scene 1: draw a tangent line."
			switch req.Model {
			case "code-m":
				reply = "```python\n" + validScene + "```"
			case "vision-m":
				reply = "Approved."
			}
			return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: reply}}, nil
		},
	}
	reg := llm.NewRegistry()
	reg.RegisterProvider("local", provider)
	reg.RegisterModel("writer", llm.ModelRoute{Provider: "local", Model: "script-m"}, true)
	reg.RegisterModel("coder", llm.ModelRoute{Provider: "local", Model: "code-m"}, false)
	reg.RegisterModel("vision", llm.ModelRoute{Provider: "local", Model: "vision-m", Vision: true}, false)
	return reg
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd(&Options{appOptions: []app.Option{
		app.WithRegistry(mockRegistry()),
		app.WithSyntaxChecker(noSyntaxErrors{}),
	}})
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, buf.String(), "animai ")

	stdout, _, err := execute(t, "version", "--short")
	require.NoError(t, err)
	require.Equal(t, version.Version+"\n", stdout)
}

func TestDoctorWithExampleConfig(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	configPath, err := filepath.Abs(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)
	require.FileExists(t, configPath)

	cmd.SetArgs([]string{"doctor", "--config", configPath})

	err = cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, buf.String(), "Config OK")
	require.Contains(t, buf.String(), "Agent critic -> openrouter/openai/gpt-4o")
}

func TestRunLocalPrintsApprovedCode(t *testing.T) {
	cfg := writeConfig(t)
	outFile := filepath.Join(t.TempDir(), "scene.py")

	stdout, stderr, err := execute(t, "run", "tangent lines", "--config", cfg, "--run-id", "cli-1", "-o", outFile)
	require.NoError(t, err)
	require.Contains(t, stdout, "class Tangent(Scene)")
	require.Contains(t, stderr, "[done approved=true]")

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	require.Equal(t, validScene, string(data))

	stdout, _, err = execute(t, "history", "--config", cfg)
	require.NoError(t, err)
	require.Contains(t, stdout, "cli-1")
	require.Contains(t, stdout, "approved")

	stdout, _, err = execute(t, "history", "cli-1", "--config", cfg)
	require.NoError(t, err)
	require.Contains(t, stdout, "Concept:  tangent lines")
}

func TestRunWithScriptFileSkipsGeneration(t *testing.T) {
	cfg := writeConfig(t)
	script := filepath.Join(t.TempDir(), "script.txt")
	require.NoError(t, os.WriteFile(script, []byte("Scene 1: my own script"), 0o644))

	_, stderr, err := execute(t, "run", "tangent lines", "--config", cfg, "--script-file", script)
	require.NoError(t, err)
	require.Contains(t, stderr, "my own script")
}

func TestBatchRunsEveryConcept(t *testing.T) {
	cfg := writeConfig(t)
	list := filepath.Join(t.TempDir(), "concepts.txt")
	require.NoError(t, os.WriteFile(list, []byte("# warmup\nlimits\n\nseries\n"), 0o644))
	outDir := filepath.Join(t.TempDir(), "out")

	stdout, _, err := execute(t, "batch", "vectors", "--file", list, "--out-dir", outDir, "--config", cfg)
	require.NoError(t, err)
	for _, c := range []string{"vectors", "limits", "series"} {
		require.Contains(t, stdout, c)
	}
	require.Equal(t, 3, strings.Count(stdout, "approved"))

	files, err := filepath.Glob(filepath.Join(outDir, "*.py"))
	require.NoError(t, err)
	require.Len(t, files, 3)
}

func TestBatchRequiresConcepts(t *testing.T) {
	_, _, err := execute(t, "batch", "--config", writeConfig(t))
	require.ErrorContains(t, err, "no concepts")
}

func TestValidateCommand(t *testing.T) {
	cfg := writeConfig(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.py")
	require.NoError(t, os.WriteFile(good, []byte(validScene), 0o644))
	stdout, _, err := execute(t, "validate", good, "--config", cfg)
	require.NoError(t, err)
	require.Contains(t, stdout, "success")

	bad := filepath.Join(dir, "bad.py")
	require.NoError(t, os.WriteFile(bad, []byte("print('no scene here')\n"), 0o644))
	stdout, _, err = execute(t, "validate", bad, "--config", cfg, "--json")
	require.ErrorContains(t, err, "structural")
	require.Contains(t, stdout, `"kind": "structural"`)
}

func TestLayoutCommand(t *testing.T) {
	dir := t.TempDir()
	clean := filepath.Join(dir, "clean.json")
	require.NoError(t, os.WriteFile(clean, []byte(`{"boxes":[
		{"label":"title","x":0,"y":3,"width":4,"height":1},
		{"label":"graph","x":0,"y":-1,"width":6,"height":4}]}`), 0o644))
	stdout, _, err := execute(t, "layout", clean)
	require.NoError(t, err)
	require.Contains(t, stdout, "layout OK")

	crowded := filepath.Join(dir, "crowded.json")
	require.NoError(t, os.WriteFile(crowded, []byte(`{"boxes":[
		{"label":"title","x":0,"y":3.5,"width":4,"height":1},
		{"label":"formula","x":1,"y":3.5,"width":4,"height":1}]}`), 0o644))
	stdout, _, err = execute(t, "layout", crowded)
	require.Error(t, err)
	require.Contains(t, stdout, "overlap: title / formula")
	require.Contains(t, stdout, "out of frame: title (top)")
}
