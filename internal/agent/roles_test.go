package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
	llmmock "github.com/hesamsheikh/AnimAI-Trainer/internal/llm/mock"
)

func scriptedProvider(replies ...string) *llmmock.Provider {
	i := 0
	return &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			reply := replies[len(replies)-1]
			if i < len(replies) {
				reply = replies[i]
			}
			i++
			return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: reply}}, nil
		},
	}
}

func TestScriptGeneratorRendersConceptAndRevises(t *testing.T) {
	p := scriptedProvider("Objective: v1", "Objective: v2")
	g := NewScriptGenerator(newTestAgent(t, p, Config{Role: RoleScripter}), DefaultTemplates())

	script, conv, err := g.Generate(context.Background(), Conversation{}, "explain eigenvectors")
	require.NoError(t, err)
	require.Equal(t, "Objective: v1", script)
	require.Equal(t, 2, conv.Len())

	script, conv, err = g.Revise(context.Background(), conv, "make it simpler")
	require.NoError(t, err)
	require.Equal(t, "Objective: v2", script)
	require.Equal(t, 4, conv.Len())

	reqs := p.Requests()
	require.Contains(t, reqs[0].Messages[0].Content, `"explain eigenvectors"`)
	require.Len(t, reqs[1].Messages, 3, "revision continues the script conversation")
}

func TestCodeGeneratorExtractsAndRepairsOnSameConversation(t *testing.T) {
	p := scriptedProvider(
		"Here you go:\n```python\nfrom manim import *\nclass A(Scene):\n    pass\n```\nEnjoy.",
		"```python\nfrom manim import *\nclass A(Scene):\n    def construct(self):\n        self.wait(0.5)\n```",
	)
	g := NewCodeGenerator(newTestAgent(t, p, Config{}), DefaultTemplates(), false)

	code, conv, err := g.Generate(context.Background(), Conversation{}, "Objective: x", "concept")
	require.NoError(t, err)
	require.Equal(t, "from manim import *\nclass A(Scene):\n    pass", code)

	code, conv, err = g.Repair(context.Background(), conv, "NameError: name 'Foo' is not defined")
	require.NoError(t, err)
	require.Contains(t, code, "self.wait(0.5)")
	require.Equal(t, 4, conv.Len())

	repairReq := p.Requests()[1]
	last := repairReq.Messages[len(repairReq.Messages)-1].Content
	require.Contains(t, last, "NameError: name 'Foo' is not defined")
	require.Len(t, repairReq.Messages, 3)
}

func TestCodeGeneratorVoiceoverTemplate(t *testing.T) {
	p := scriptedProvider("x")
	g := NewCodeGenerator(newTestAgent(t, p, Config{}), DefaultTemplates(), true)

	_, _, err := g.Generate(context.Background(), Conversation{}, "script", "concept")
	require.NoError(t, err)
	require.Contains(t, p.Requests()[0].Messages[0].Content, "VoiceoverScene")
}

func TestCodeGeneratorTruncatesLongErrorsKeepingTail(t *testing.T) {
	p := scriptedProvider("x")
	g := NewCodeGenerator(newTestAgent(t, p, Config{}), DefaultTemplates(), false)

	msg := strings.Repeat("frame\n", 5000) + "ValueError: final line"
	_, _, err := g.Repair(context.Background(), Conversation{}, msg)
	require.NoError(t, err)

	prompt := p.Requests()[0].Messages[0].Content
	require.Contains(t, prompt, "ValueError: final line")
	require.Less(t, len(prompt), len(msg))
}

func TestCriticAttachesFrameAndParsesVerdict(t *testing.T) {
	p := scriptedProvider("1. Script Compliance: step 3 missing", "  Approved. Looks right.")
	c := NewCritic(newTestAgent(t, p, Config{Role: RoleCritic}), DefaultTemplates())
	frame := llm.Image{MIMEType: "image/png", Data: []byte{1}}

	crit, conv, err := c.Critique(context.Background(), Conversation{}, frame, "concept", "the script", "the code")
	require.NoError(t, err)
	require.False(t, crit.Approved())
	require.Contains(t, crit.Text, "step 3 missing")

	crit, _, err = c.Critique(context.Background(), conv, frame, "concept", "the script", "the code")
	require.NoError(t, err)
	require.True(t, crit.Approved())

	first := p.Requests()[0].Messages[0]
	require.Len(t, first.Images, 1)
	require.Contains(t, first.Content, "the script")
	require.Contains(t, first.Content, "the code")
}

func TestParseCritique(t *testing.T) {
	require.True(t, ParseCritique("Approved").Approved())
	require.True(t, ParseCritique("\n  Approved - the animation matches.").Approved())
	require.False(t, ParseCritique("Not Approved").Approved())
	require.False(t, ParseCritique("approved").Approved(), "sentinel is case sensitive")
	require.False(t, ParseCritique("").Approved())

	rejected := ParseCritique("  1. Script Compliance: fine\n2. Visual/Frame Critique: text overlaps ")
	require.Equal(t, VerdictRejected, rejected.Verdict)
	require.Equal(t, "1. Script Compliance: fine\n2. Visual/Frame Critique: text overlaps", rejected.Text)
}

func TestExtractCode(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "first python block",
			reply: "intro\n```python\nprint(1)\n```\n```python\nprint(2)\n```",
			want:  "print(1)",
		},
		{
			name:  "skips untagged blocks",
			reply: "```\nnot code\n```\n\n```py\nx = 1\n```",
			want:  "x = 1",
		},
		{
			name:  "raw fallback",
			reply: "  from manim import *\nclass A(Scene): pass\n",
			want:  "from manim import *\nclass A(Scene): pass",
		},
		{
			name:  "keeps indentation",
			reply: "```python\nclass A(Scene):\n    def construct(self):\n        pass\n```",
			want:  "class A(Scene):\n    def construct(self):\n        pass",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ExtractCode(tc.reply))
		})
	}
}

func TestRenderSubstitutesNamedPlaceholders(t *testing.T) {
	out := Render("a {user_prompt} b {scene_script} c {unknown}", map[string]string{
		VarUserPrompt:  "P",
		VarSceneScript: "{user_prompt}",
	})
	require.Equal(t, "a P b {user_prompt} c {unknown}", out)
}

func TestLoadTemplatesOverridesAndValidates(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "script.txt")
	bad := filepath.Join(dir, "critic.txt")
	require.NoError(t, os.WriteFile(good, []byte("Script for {user_prompt}"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("no placeholders"), 0o644))

	tmpls, err := LoadTemplates(config.PromptsConfig{SceneScriptFile: good})
	require.NoError(t, err)
	require.Equal(t, "Script for {user_prompt}", tmpls.SceneScript)
	require.Equal(t, DefaultTemplates().Critic, tmpls.Critic)

	_, err = LoadTemplates(config.PromptsConfig{CriticFile: bad})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing placeholder")
}

func TestDefaultTemplatesCarryPlaceholders(t *testing.T) {
	tmpls := DefaultTemplates()
	require.Contains(t, tmpls.SceneScript, "{user_prompt}")
	require.Contains(t, tmpls.Code, "{scene_script}")
	require.Contains(t, tmpls.Repair, "{error}")
	require.Contains(t, tmpls.Critic, "{manim_code}")
	require.Contains(t, tmpls.Critic, ApprovalSentinel)
}
