package cli

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/agent"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm/configbuilder"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Pipeline: %d script iterations, %d code attempts, concurrency %d\n",
				cfg.Pipeline.MaxScriptIterations, cfg.Pipeline.MaxCodeIterations, cfg.Pipeline.Concurrency)
			fmt.Fprintf(out, "Store enabled: %v, metrics: %v, transport: %s\n", cfg.Store.Enabled, cfg.Server.MetricsEnabled, cfg.Server.Transport)

			reg, err := configbuilder.BuildRegistryFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build registry: %w", err)
			}
			if _, err := agent.LoadTemplates(cfg.Prompts); err != nil {
				return err
			}
			fmt.Fprintf(out, "Default model: %s, vision models: %s\n", reg.Default(), strings.Join(reg.VisionModels(), ", "))
			strategy := agent.NewStrategyEngine(reg, cfg.Strategy)
			for _, role := range []struct {
				name     string
				settings config.AgentConfig
			}{
				{"scripter", cfg.Agents.Scripter},
				{"coder", cfg.Agents.Coder},
				{"critic", cfg.Agents.Critic},
			} {
				_, route, err := strategy.ResolveModel(role.name, role.settings.Model)
				if err != nil {
					return fmt.Errorf("agents.%s: %w", role.name, err)
				}
				note := ""
				if role.name == "critic" && !route.Vision {
					note = " (warning: model is not marked vision)"
				}
				fmt.Fprintf(out, "Agent %s -> %s/%s%s\n", role.name, route.Provider, route.Model, note)
			}

			checkBinary(out, "python", cfg.Validator.Python)
			renderer := config.DefaultRenderer
			if len(cfg.Validator.Renderer) > 0 {
				renderer = cfg.Validator.Renderer
			}
			checkBinary(out, "renderer", renderer[0])
			return nil
		},
	}
}

func checkBinary(out io.Writer, label, name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Fprintf(out, "%s: %s not found on PATH\n", label, name)
		return
	}
	fmt.Fprintf(out, "%s: %s\n", label, path)
}
