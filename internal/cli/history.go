package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/store"
)

// NewHistoryCmd lists past runs or prints one of them.
func NewHistoryCmd(opts *Options) *cobra.Command {
	var (
		limit    int
		concept  string
		onlyDone bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded pipeline runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a)

			st := a.Store()
			if st == nil {
				return errors.New("run history is disabled (store.enabled=false)")
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				rec, err := st.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeIndented(cmd, rec)
				}
				fmt.Fprintf(out, "Run:      %s\nConcept:  %s\nOutcome:  %s\nScripts:  %d\nCode:     %d calls\nCritique: %d calls\nDuration: %s\n",
					rec.RunID, rec.Concept, rec.Outcome, rec.ScriptIterations, rec.CodeCalls, rec.CritiqueCalls, rec.Duration)
				if rec.Error != "" {
					fmt.Fprintf(out, "Error:    %s\n", rec.Error)
				}
				if rec.Feedback != "" {
					fmt.Fprintf(out, "\n[critique]\n%s\n", rec.Feedback)
				}
				fmt.Fprintf(out, "\n[script]\n%s\n\n[code]\n%s\n", rec.Script, rec.Code)
				return nil
			}

			runs, err := st.List(cmd.Context(), store.ListOptions{Limit: limit, Concept: concept, OnlyDone: onlyDone})
			if err != nil {
				return err
			}
			if asJSON {
				return writeIndented(cmd, runs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tWHEN\tOUTCOME\tCONCEPT")
			for _, rec := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.RunID, rec.CreatedAt.Local().Format(time.DateTime), rec.Outcome, rec.Concept)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	cmd.Flags().StringVar(&concept, "concept", "", "Only runs for this exact concept")
	cmd.Flags().BoolVar(&onlyDone, "approved", false, "Only approved runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func writeIndented(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
