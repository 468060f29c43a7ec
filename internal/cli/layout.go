package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/layout"
)

// NewLayoutCmd checks a box description for overlaps and frame overflow.
func NewLayoutCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "layout <boxes.json|->",
		Short: "Report overlapping or out-of-frame elements of a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open layout: %w", err)
				}
				defer f.Close()
				in = f
			}

			scene, err := layout.Decode(in)
			if err != nil {
				return err
			}
			report, err := layout.Check(scene)
			if err != nil {
				return err
			}

			if asJSON {
				if err := writeIndented(cmd, report); err != nil {
					return err
				}
			} else {
				printLayoutReport(cmd.OutOrStdout(), report)
			}
			if !report.Clean() {
				return fmt.Errorf("layout has %d overlaps and %d out-of-frame elements", len(report.Overlaps), len(report.OutOfFrame))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printLayoutReport(w io.Writer, r layout.Report) {
	if r.Clean() {
		fmt.Fprintln(w, "layout OK")
		return
	}
	for _, o := range r.Overlaps {
		fmt.Fprintf(w, "overlap: %s / %s\n", o.A, o.B)
	}
	for _, v := range r.OutOfFrame {
		fmt.Fprintf(w, "out of frame: %s (%s)\n", v.Label, strings.Join(v.Edges, ", "))
	}
}
