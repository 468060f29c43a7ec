package agent

import (
	"fmt"
	"os"
	"strings"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
)

// Placeholder names substituted into templates.
const (
	VarUserPrompt  = "user_prompt"
	VarSceneScript = "scene_script"
	VarManimCode   = "manim_code"
	VarError       = "error"
)

// Templates are the parameterised prompts sent to each role.
type Templates struct {
	SceneScript   string
	Code          string
	VoiceoverCode string
	Repair        string
	Critic        string
}

// DefaultTemplates returns the built-in prompt set.
func DefaultTemplates() Templates {
	return Templates{
		SceneScript:   sceneScriptTemplate,
		Code:          codeTemplate,
		VoiceoverCode: voiceoverCodeTemplate,
		Repair:        repairTemplate,
		Critic:        criticTemplate,
	}
}

// LoadTemplates starts from the built-ins and replaces every template whose file is
// configured. Each template must still contain the placeholders its role fills.
func LoadTemplates(cfg config.PromptsConfig) (Templates, error) {
	t := DefaultTemplates()
	for _, entry := range []struct {
		path   string
		target *string
		vars   []string
	}{
		{cfg.SceneScriptFile, &t.SceneScript, []string{VarUserPrompt}},
		{cfg.CodeFile, &t.Code, []string{VarSceneScript}},
		{cfg.VoiceoverCodeFile, &t.VoiceoverCode, []string{VarSceneScript}},
		{cfg.RepairFile, &t.Repair, []string{VarError}},
		{cfg.CriticFile, &t.Critic, []string{VarSceneScript, VarManimCode}},
	} {
		if strings.TrimSpace(entry.path) == "" {
			continue
		}
		b, err := os.ReadFile(entry.path)
		if err != nil {
			return Templates{}, fmt.Errorf("read prompt template: %w", err)
		}
		for _, v := range entry.vars {
			if !strings.Contains(string(b), "{"+v+"}") {
				return Templates{}, fmt.Errorf("prompt template %s is missing placeholder {%s}", entry.path, v)
			}
		}
		*entry.target = string(b)
	}
	return t, nil
}

// Render substitutes {name} placeholders. Unknown placeholders are left as-is.
func Render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

const fence = "```"

var sceneScriptTemplate = strings.TrimSpace(`
You are SceneScriptor. You break math and physics concepts into short, visually explainable scenes for a Manim animation.

Output structure:
1. Objective: one sentence stating the goal of the video.
2. Step-by-Step Scenes. For each logical step give:
   - Visuals: the objects, shapes and text on screen.
   - Animations: how the elements appear and transition.
   - Narration: a short line synchronised with the visuals.
3. Style: colour scheme and diagram conventions.

Rules:
- Never write code. Describe what is shown, not how to program it.
- Keep every step atomic: simple enough for an animation of about ten seconds.
- Keep each step to a few short lines.

Generate a scene script for the following user prompt: "{user_prompt}"
`)

var codeTemplate = strings.TrimSpace(`
You are ManimCoder. Turn the scene script below into one complete Manim Scene.

Requirements:
- Exactly one class deriving from Scene. Mark each script step with a comment such as "# Scene 1".
- Position every element explicitly with shift, next_to or arrange, using buff of at least 0.5. No two objects may share a position.
- Timing: run_time=1.5 for creation, self.wait(0.5) between major animations, longer explicit run_time for complex transforms.
- Keep critical elements within 90% of config.frame_width and config.frame_height. Give axes explicit x_range and y_range.
- Start with "from manim import *".

User prompt: "{user_prompt}"
Scene script:
{scene_script}

Return only the code in a single ` + fence + `python fenced block.
`)

var voiceoverCodeTemplate = strings.TrimSpace(`
You are ManimCoder. Turn the scene script below into one complete Manim VoiceoverScene with narration.

Requirements:
- Import "from manim import *" and "from manim_voiceover import VoiceoverScene" and use a speech service configured with self.set_speech_service.
- Exactly one class deriving from VoiceoverScene. Wrap each script step in "with self.voiceover(text=...) as tracker:" using the step narration, and size run_time from tracker.duration.
- Position every element explicitly with shift, next_to or arrange, using buff of at least 0.5.
- Keep critical elements within 90% of the frame.

User prompt: "{user_prompt}"
Scene script:
{scene_script}

Return only the code in a single ` + fence + `python fenced block.
`)

var repairTemplate = strings.TrimSpace(`
The code you produced failed validation with the following error:

{error}

Fix the problem and return the complete corrected code in a single ` + fence + `python fenced block. Keep the scene structure and everything that already worked.
`)

var criticTemplate = strings.TrimSpace(`
You are ManimCritic, a multimodal evaluator. You receive a scene script, the Manim code implementing it, and a 1 fps frame rendered from that code.

Check:
1. Script compliance: does the code follow each step of the script? Note missing, extra or reordered steps.
2. Frame review: overlapping elements, anything cut off or outside the frame, text too small, colours or layout that differ from the script. Critical elements should stay within 90% of the frame.
3. Code suggestions: point at the code responsible for each problem and say what to change (buff, shift, scale, run_time). Do not rewrite the code.

If everything looks good, reply with a message that starts with the single word "Approved".
Otherwise reply with three sections: "Script Compliance", "Visual/Frame Critique" and "Code Improvement Suggestions".

User prompt:
{user_prompt}

Scene script:
{scene_script}

Manim code:
{manim_code}

The frame is attached.
`)
