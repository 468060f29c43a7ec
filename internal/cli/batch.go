package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/app"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/pipeline"
)

type batchOutcome struct {
	concept string
	result  pipeline.Result
	err     error
}

// NewBatchCmd runs several concepts concurrently, each with its own scratch space.
func NewBatchCmd(opts *Options) *cobra.Command {
	var (
		listFile    string
		outDir      string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "batch [concept...]",
		Short: "Run the pipeline for many concepts in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			concepts, err := collectConcepts(args, listFile)
			if err != nil {
				return err
			}
			if len(concepts) == 0 {
				return fmt.Errorf("no concepts given")
			}
			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("create out dir: %w", err)
				}
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a)

			limit := concurrency
			if limit <= 0 {
				limit = a.Config().Pipeline.Concurrency
			}
			if limit <= 0 {
				limit = 1
			}

			outcomes := make([]batchOutcome, len(concepts))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(limit)
			for i, concept := range concepts {
				g.Go(func() error {
					res, err := a.Run(ctx, concept, app.RunOptions{RunID: uuid.NewString(), Isolate: true})
					outcomes[i] = batchOutcome{concept: concept, result: res, err: err}
					if err != nil {
						a.Logger().Warn("batch run failed", zap.String("concept", concept), zap.Error(err))
						return nil
					}
					if outDir != "" && res.Code != "" {
						path := filepath.Join(outDir, res.RunID+".py")
						if err := os.WriteFile(path, []byte(res.Code), 0o644); err != nil {
							return fmt.Errorf("write %s: %w", path, err)
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			printBatchSummary(cmd, outcomes)
			for _, o := range outcomes {
				if o.err != nil {
					return fmt.Errorf("%d of %d runs failed", countFailed(outcomes), len(outcomes))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&listFile, "file", "f", "", "File with one concept per line (# starts a comment)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Write each run's final code to <out-dir>/<run-id>.py")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Runs in flight (default: pipeline.concurrency)")
	return cmd
}

func collectConcepts(args []string, listFile string) ([]string, error) {
	var concepts []string
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			concepts = append(concepts, a)
		}
	}
	if listFile == "" {
		return concepts, nil
	}
	f, err := os.Open(listFile)
	if err != nil {
		return nil, fmt.Errorf("open concept list: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		concepts = append(concepts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read concept list: %w", err)
	}
	return concepts, nil
}

func printBatchSummary(cmd *cobra.Command, outcomes []batchOutcome) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCONCEPT\tOUTCOME\tSCRIPTS\tCODE CALLS")
	for _, o := range outcomes {
		outcome := "not_approved"
		switch {
		case o.err != nil:
			outcome = "error: " + o.err.Error()
		case o.result.Done:
			outcome = "approved"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", o.result.RunID, o.concept, outcome, o.result.ScriptIterations, o.result.CodeCalls)
	}
	_ = tw.Flush()
}

func countFailed(outcomes []batchOutcome) int {
	var n int
	for _, o := range outcomes {
		if o.err != nil {
			n++
		}
	}
	return n
}
