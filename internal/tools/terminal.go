package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds a command when neither the command nor the terminal sets one.
const DefaultTimeout = 30 * time.Second

// killGrace is how long Wait keeps draining pipes after the process is killed.
const killGrace = 2 * time.Second

var (
	// ErrExecutionDisabled is returned when the terminal is not allowed to run anything.
	ErrExecutionDisabled = errors.New("execution disabled by configuration")
	// ErrCommandDenied is returned for commands outside the allow list or inside the deny list.
	ErrCommandDenied = errors.New("command denied")
)

// Terminal executes commands with allow/deny checks and a hard wall-clock limit.
type Terminal struct {
	WorkingDir     string
	Allowed        []string
	Denied         []string
	Timeout        time.Duration
	AllowExecution bool
	Env            []string
}

// Command is a single process invocation.
type Command struct {
	Name    string
	Args    []string
	Stdin   string
	Dir     string
	Timeout time.Duration
}

// ExecResult carries output and status code. Output of a timed-out process is discarded.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Exec runs a command if allowed by configuration.
func (t *Terminal) Exec(ctx context.Context, command string, args ...string) (ExecResult, error) {
	return t.Run(ctx, Command{Name: command, Args: args})
}

// Run executes c. A non-zero exit returns the result together with the *exec.ExitError.
// When the limit elapses the process group is killed, TimedOut is set and the error
// wraps context.DeadlineExceeded. Cancellation of ctx itself returns ctx.Err().
func (t *Terminal) Run(ctx context.Context, c Command) (ExecResult, error) {
	if !t.AllowExecution {
		return ExecResult{}, ErrExecutionDisabled
	}
	if c.Name == "" {
		return ExecResult{}, fmt.Errorf("command is required")
	}
	if err := t.validateCommand(c.Name); err != nil {
		return ExecResult{}, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = t.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = t.WorkingDir
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	if len(t.Env) > 0 {
		cmd.Env = append(cmd.Environ(), t.Env...)
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	cmd.WaitDelay = killGrace
	configureProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := ExecResult{Duration: time.Since(start)}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		return res, fmt.Errorf("%s timed out after %s: %w", c.Name, timeout, context.DeadlineExceeded)
	}

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -1
	}
	return res, err
}

func (t *Terminal) validateCommand(cmd string) error {
	lower := strings.ToLower(filepath.Base(cmd))
	for _, deny := range t.Denied {
		if lower == strings.ToLower(deny) {
			return fmt.Errorf("%w: %q is in the deny list", ErrCommandDenied, cmd)
		}
	}
	if len(t.Allowed) > 0 {
		for _, allow := range t.Allowed {
			if lower == strings.ToLower(filepath.Base(allow)) {
				return nil
			}
		}
		return fmt.Errorf("%w: %q is not in the allow list", ErrCommandDenied, cmd)
	}
	return nil
}
