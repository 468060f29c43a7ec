package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/validate"
)

// NewValidateCmd renders a scene file and prints how the validator classifies it.
func NewValidateCmd(opts *Options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <scene.py>",
		Short: "Check, render and classify a scene file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read scene: %w", err)
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a)

			res := a.Validator().Validate(cmd.Context(), string(code))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(validateReport(res)); err != nil {
					return err
				}
			} else if res.OK() {
				fmt.Fprintf(out, "success: frames in %s\n", res.OutputDir)
			} else {
				fmt.Fprintln(out, res.Failure.Error())
			}
			if !res.OK() {
				return fmt.Errorf("validation failed: %s", res.Kind())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

type validateOutput struct {
	Kind      string            `json:"kind"`
	OutputDir string            `json:"output_dir,omitempty"`
	Failure   *validate.Failure `json:"failure,omitempty"`
}

func validateReport(res validate.Result) validateOutput {
	return validateOutput{Kind: res.Kind(), OutputDir: res.OutputDir, Failure: res.Failure}
}
