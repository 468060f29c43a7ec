package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/app"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/logging"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/version"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string

	// appOptions are passed to app.New; tests use them to swap backends.
	appOptions []app.Option
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&Options{})
}

func newRootCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "animai",
		Short:         "AnimAI CLI – generate, validate and critique math animations",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: configs/config.yaml)")

	cmd.AddCommand(NewRunCmd(opts))
	cmd.AddCommand(NewBatchCmd(opts))
	cmd.AddCommand(NewValidateCmd(opts))
	cmd.AddCommand(NewHistoryCmd(opts))
	cmd.AddCommand(NewLayoutCmd())
	cmd.AddCommand(NewDoctorCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig wraps config loading with shared options.
func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openApp loads config, builds the logger and wires the application.
func openApp(cmd *cobra.Command, opts *Options) (*app.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cmd.Context(), cfg, logger, opts.appOptions...)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger().Warn("close app", zap.Error(err))
	}
	_ = a.Logger().Sync()
}
