package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/tools"
)

// SyntaxChecker parses code without executing it. It returns a syntax Failure for
// unparsable code and an error when the check itself could not run.
type SyntaxChecker interface {
	Check(ctx context.Context, code string) (*Failure, error)
}

// syntaxExit is the exit status the checker script uses for a syntax error.
const syntaxExit = 2

// checkerScript reports every parser rejection, including nesting that exhausts
// the parser stack and null bytes on interpreters that raise ValueError for them.
const checkerScript = `
import ast, json, sys
src = sys.stdin.read()
try:
    ast.parse(src)
except (SyntaxError, ValueError, MemoryError, RecursionError) as e:
    json.dump({
        "error": type(e).__name__,
        "line": getattr(e, "lineno", None) or 0,
        "column": getattr(e, "offset", None) or 0,
        "message": getattr(e, "msg", None) or str(e) or "code could not be parsed",
        "text": (getattr(e, "text", None) or "").rstrip("\n"),
    }, sys.stdout)
    sys.exit(2)
`

// PythonSyntax runs ast.parse in a python subprocess.
type PythonSyntax struct {
	Terminal    *tools.Terminal
	Interpreter string
}

type syntaxReport struct {
	Error   string `json:"error"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
	Text    string `json:"text"`
}

// Check implements SyntaxChecker.
func (p PythonSyntax) Check(ctx context.Context, code string) (*Failure, error) {
	res, err := p.Terminal.Run(ctx, tools.Command{
		Name:  p.Interpreter,
		Args:  []string{"-c", checkerScript},
		Stdin: code,
	})
	if err == nil {
		return nil, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || res.ExitCode != syntaxExit {
		return nil, fmt.Errorf("syntax check: %w: %s", err, strings.TrimSpace(res.Stderr))
	}

	var report syntaxReport
	if err := json.Unmarshal([]byte(res.Stdout), &report); err != nil {
		return nil, fmt.Errorf("syntax check: decode report: %w", err)
	}
	if report.Error == "" {
		report.Error = "SyntaxError"
	}
	return &Failure{
		Kind:    KindSyntax,
		Message: report.Error + ": " + report.Message,
		Line:    report.Line,
		Column:  report.Column,
		Context: strings.TrimSpace(report.Text),
	}, nil
}
