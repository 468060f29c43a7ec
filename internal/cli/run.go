package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/app"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/pipeline"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/rpc"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/rpc/connectjson"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/rpc/runner"
)

type runFlags struct {
	scriptFile string
	runID      string
	outFile    string
	remote     bool
	quiet      bool
}

// NewRunCmd runs the pipeline for one concept, locally or through the daemon.
func NewRunCmd(opts *Options) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run \"<concept>\"",
		Short: "Generate an approved animation for a concept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			concept := strings.TrimSpace(args[0])
			if concept == "" {
				return fmt.Errorf("concept cannot be empty")
			}
			var script string
			if f.scriptFile != "" {
				data, err := os.ReadFile(f.scriptFile)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				script = string(data)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var (
				res pipeline.Result
				err error
			)
			if f.remote {
				res, err = runRemote(ctx, cmd, opts, rpc.RunPipelineRequest{RunID: f.runID, Concept: concept, Script: script}, f.quiet)
			} else {
				res, err = runLocal(ctx, cmd, opts, concept, script, f)
			}
			if err != nil {
				return err
			}
			return finishRun(cmd, res, f.outFile)
		},
	}

	cmd.Flags().StringVar(&f.scriptFile, "script-file", "", "Start from an existing scene script instead of generating one")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "Run identifier (default: random UUID)")
	cmd.Flags().StringVarP(&f.outFile, "out", "o", "", "Write the final code to this file")
	cmd.Flags().BoolVar(&f.remote, "remote", false, "Run through the daemon configured under server.addr")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Only print the final code")
	return cmd
}

func runLocal(ctx context.Context, cmd *cobra.Command, opts *Options, concept, script string, f runFlags) (pipeline.Result, error) {
	a, err := openApp(cmd, opts)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer closeApp(a)

	var observer pipeline.Observer
	if !f.quiet {
		observer = func(ev pipeline.Event) { renderEvent(cmd.ErrOrStderr(), ev) }
	}
	return a.Run(ctx, concept, app.RunOptions{RunID: f.runID, Script: script, Observer: observer})
}

func runRemote(ctx context.Context, cmd *cobra.Command, opts *Options, req rpc.RunPipelineRequest, quiet bool) (pipeline.Result, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return pipeline.Result{}, err
	}
	handle := func(ev rpc.PipelineEvent) {
		if !quiet {
			renderEvent(cmd.ErrOrStderr(), ev.Event)
		}
	}
	baseURL := daemonURL(cfg.Server.Addr)
	var final *rpc.PipelineEvent
	switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
	case "ndjson":
		final, err = runNDJSON(ctx, baseURL+"/pipeline/run", req, handle)
	default:
		final, err = runConnect(ctx, baseURL+runner.ConnectRunPipelineProcedure, req, handle)
	}
	if err != nil {
		return pipeline.Result{}, err
	}
	if final == nil || final.Result == nil {
		return pipeline.Result{}, errors.New("daemon closed the stream without a result")
	}
	if final.Error != "" {
		return *final.Result, fmt.Errorf("daemon error: %s", final.Error)
	}
	return *final.Result, nil
}

func finishRun(cmd *cobra.Command, res pipeline.Result, outFile string) error {
	if outFile != "" && res.Code != "" {
		if err := os.WriteFile(outFile, []byte(res.Code), 0o644); err != nil {
			return fmt.Errorf("write code: %w", err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Code)
	if !res.Done {
		fmt.Fprintf(cmd.ErrOrStderr(), "[not approved after %d script iterations]\n", res.ScriptIterations)
		if res.Feedback != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Last critique: %s\n", res.Feedback)
		}
	}
	return nil
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func runNDJSON(ctx context.Context, url string, reqBody rpc.RunPipelineRequest, handle func(rpc.PipelineEvent)) (*rpc.PipelineEvent, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var final *rpc.PipelineEvent
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		var evt rpc.PipelineEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		if evt.Type == rpc.EventResult || evt.Type == rpc.EventError {
			final = &evt
			continue
		}
		handle(evt)
	}
	return final, scanner.Err()
}

func runConnect(ctx context.Context, url string, reqBody rpc.RunPipelineRequest, handle func(rpc.PipelineEvent)) (*rpc.PipelineEvent, error) {
	client := connect.NewClient[rpc.RunPipelineStreamRequest, rpc.PipelineEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.RunPipelineStreamRequest{Run: &reqBody}); err != nil {
		return nil, err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.RunPipelineStreamRequest{Cancel: true})
		_ = stream.CloseRequest()
	}()

	var final *rpc.PipelineEvent
	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if evt.Type == rpc.EventResult || evt.Type == rpc.EventError {
			final = evt
			continue
		}
		handle(*evt)
	}
	_ = stream.CloseRequest()
	return final, stream.CloseResponse()
}

// renderEvent prints one progress line per pipeline event.
func renderEvent(w io.Writer, ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventScript:
		fmt.Fprintf(w, "[script %d]\n%s\n", ev.ScriptIteration, ev.Script)
	case pipeline.EventCode:
		fmt.Fprintf(w, "[code %d.%d] %d bytes\n", ev.ScriptIteration, ev.CodeAttempt, len(ev.Code))
	case pipeline.EventValidation:
		if ev.Message == "" {
			fmt.Fprintf(w, "[validation %d.%d] %s\n", ev.ScriptIteration, ev.CodeAttempt, ev.FailureKind)
			return
		}
		fmt.Fprintf(w, "[validation %d.%d] %s: %s\n", ev.ScriptIteration, ev.CodeAttempt, ev.FailureKind, ev.Message)
	case pipeline.EventFrames:
		fmt.Fprintf(w, "[frames %d] %d captured\n", ev.ScriptIteration, ev.Frames)
	case pipeline.EventCritique:
		fmt.Fprintf(w, "[critique %s] %s\n", ev.Verdict, ev.Message)
	case pipeline.EventDone:
		fmt.Fprintf(w, "[done approved=%v]\n", ev.Done)
	}
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
