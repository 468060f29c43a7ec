package validate

import "fmt"

// FailureKind classifies why generated code was rejected.
type FailureKind string

const (
	KindSyntax     FailureKind = "syntax"
	KindStructural FailureKind = "structural"
	KindRuntime    FailureKind = "runtime"
	KindTimeout    FailureKind = "timeout"
	// KindEvaluation marks a fault in the validator itself, not in the code.
	KindEvaluation FailureKind = "evaluation"
)

// Failure describes a rejected validation attempt.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	// Line and Column are 1-based when known, zero otherwise.
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
	// Context is the offending source line when known.
	Context string `json:"context,omitempty"`
}

// Error renders the failure as the text fed back to the code generator.
func (f *Failure) Error() string {
	if f.Line > 0 && f.Context != "" {
		return fmt.Sprintf("%s error at line %d: %s\n    %s", f.Kind, f.Line, f.Message, f.Context)
	}
	return fmt.Sprintf("%s error: %s", f.Kind, f.Message)
}

// Result is either a success (Failure nil) carrying renderer stdout and the
// directory its frames were written to, or a Failure.
type Result struct {
	Stdout    string
	OutputDir string
	Failure   *Failure
}

// OK reports whether validation succeeded.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Kind returns the failure kind, or "success".
func (r Result) Kind() string {
	if r.Failure == nil {
		return "success"
	}
	return string(r.Failure.Kind)
}

func failed(kind FailureKind, msg string) Result {
	return Result{Failure: &Failure{Kind: kind, Message: msg}}
}
