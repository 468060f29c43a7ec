package tools

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestTerminalExecAllowsWhitelisted(t *testing.T) {
	term := &Terminal{
		WorkingDir:     "",
		Allowed:        []string{"echo"},
		Denied:         []string{"rm"},
		Timeout:        time.Second * 2,
		AllowExecution: true,
	}

	res, err := term.Exec(context.Background(), "echo", "hi")
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hi" {
		t.Fatalf("expected stdout hi, got %q", res.Stdout)
	}
}

func TestTerminalExecDenied(t *testing.T) {
	term := &Terminal{
		Denied:         []string{"rm"},
		AllowExecution: true,
	}
	_, err := term.Exec(context.Background(), "/bin/rm", "-rf", "/")
	if !errors.Is(err, ErrCommandDenied) {
		t.Fatalf("expected deny error, got %v", err)
	}
}

func TestTerminalExecOutsideAllowList(t *testing.T) {
	term := &Terminal{
		Allowed:        []string{"python3"},
		AllowExecution: true,
	}
	if _, err := term.Exec(context.Background(), "sh", "-c", "true"); !errors.Is(err, ErrCommandDenied) {
		t.Fatalf("expected allow list error, got %v", err)
	}
}

func TestTerminalExecDisabled(t *testing.T) {
	term := &Terminal{AllowExecution: false}
	if _, err := term.Exec(context.Background(), "echo", "hi"); !errors.Is(err, ErrExecutionDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestTerminalRunCapturesStderrAndExitCode(t *testing.T) {
	term := &Terminal{AllowExecution: true}

	res, err := term.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo oops >&2; exit 3"},
	})
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error, got %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Fatalf("expected stderr oops, got %q", res.Stderr)
	}
}

func TestTerminalRunFeedsStdin(t *testing.T) {
	term := &Terminal{AllowExecution: true}

	res, err := term.Run(context.Background(), Command{Name: "cat", Stdin: "from stdin"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Stdout != "from stdin" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
}

func TestTerminalRunTimesOut(t *testing.T) {
	term := &Terminal{AllowExecution: true, Timeout: 5 * time.Second}

	start := time.Now()
	res, err := term.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "echo partial; sleep 10"},
		Timeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected TimedOut")
	}
	if res.Stdout != "" {
		t.Fatalf("partial output should be discarded, got %q", res.Stdout)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestTerminalRunHonoursCancellation(t *testing.T) {
	term := &Terminal{AllowExecution: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := term.Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if res.TimedOut {
		t.Fatalf("cancellation is not a timeout")
	}
}
