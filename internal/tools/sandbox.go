package tools

import (
	"fmt"
	"time"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
)

// Sandbox bundles the scratch workspace and the terminal used to run generated code.
type Sandbox struct {
	Scratch  *Workspace
	Media    *Workspace
	Terminal *Terminal
}

var defaultNetworkDenied = []string{
	"curl", "wget", "ping", "nc", "netcat", "telnet", "ssh", "scp", "sftp",
}

// NewSandbox builds the workspaces and a terminal allowed to run only the python
// interpreter, the renderer and any extra configured commands.
func NewSandbox(cfg config.ValidatorConfig) (*Sandbox, error) {
	scratch, err := NewWorkspace(cfg.ScratchDir, true)
	if err != nil {
		return nil, fmt.Errorf("build scratch workspace: %w", err)
	}
	media, err := NewWorkspace(cfg.MediaDir, true)
	if err != nil {
		return nil, fmt.Errorf("build media workspace: %w", err)
	}

	allowed := append([]string{}, cfg.AllowedCommands...)
	allowed = append(allowed, cfg.Python)
	if len(cfg.Renderer) > 0 {
		allowed = append(allowed, cfg.Renderer[0])
	}

	term := &Terminal{
		WorkingDir:     scratch.Root(),
		Allowed:        dedupeStrings(allowed),
		Denied:         defaultNetworkDenied,
		Timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
		AllowExecution: true,
	}

	return &Sandbox{
		Scratch:  scratch,
		Media:    media,
		Terminal: term,
	}, nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
