// Package pipeline drives concept to approved animation through nested bounded
// retries: an outer loop over scripts and an inner loop over code repairs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/agent"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/llm"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/validate"
)

// Default budgets.
const (
	DefaultMaxScriptIterations = 5
	DefaultMaxCodeIterations   = 3
)

// ErrValidatorFault aborts a run whose validator failed internally; retrying
// the same code cannot help.
var ErrValidatorFault = errors.New("validator fault")

// ScriptWriter produces and revises scene scripts.
type ScriptWriter interface {
	Generate(ctx context.Context, conv agent.Conversation, concept string) (string, agent.Conversation, error)
	Revise(ctx context.Context, conv agent.Conversation, instruction string) (string, agent.Conversation, error)
}

// CodeWriter produces scene code and repairs it from failure text.
type CodeWriter interface {
	Generate(ctx context.Context, conv agent.Conversation, script, concept string) (string, agent.Conversation, error)
	Repair(ctx context.Context, conv agent.Conversation, failure string) (string, agent.Conversation, error)
}

// CodeValidator classifies generated code.
type CodeValidator interface {
	Validate(ctx context.Context, code string) validate.Result
}

// FrameSource lists and reads rendered frames.
type FrameSource interface {
	List(dir string) ([]string, error)
	Load(path string) (llm.Image, error)
}

// FrameCritic judges one frame.
type FrameCritic interface {
	Critique(ctx context.Context, conv agent.Conversation, frame llm.Image, concept, script, code string) (agent.Critique, agent.Conversation, error)
}

// Metrics receives one observation per finished run.
type Metrics interface {
	RecordPipelineRun(outcome string, d time.Duration, scriptIterations, codeCalls int)
	RecordCritique(verdict string)
}

// Deps are the collaborators of a run.
type Deps struct {
	Scripts   ScriptWriter
	Coder     CodeWriter
	Validator CodeValidator
	Frames    FrameSource
	Critic    FrameCritic
}

// Options tunes a Pipeline.
type Options struct {
	MaxScriptIterations int
	MaxCodeIterations   int
	Logger              *zap.Logger
	Metrics             Metrics
}

// Pipeline runs concepts through the script, code, validate and critique cycle.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// New validates deps and fills defaults.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Scripts == nil:
		return nil, errors.New("pipeline requires a script writer")
	case deps.Coder == nil:
		return nil, errors.New("pipeline requires a code writer")
	case deps.Validator == nil:
		return nil, errors.New("pipeline requires a validator")
	case deps.Frames == nil:
		return nil, errors.New("pipeline requires a frame source")
	case deps.Critic == nil:
		return nil, errors.New("pipeline requires a critic")
	}
	if opts.MaxScriptIterations <= 0 {
		opts.MaxScriptIterations = DefaultMaxScriptIterations
	}
	if opts.MaxCodeIterations <= 0 {
		opts.MaxCodeIterations = DefaultMaxCodeIterations
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, opts: opts, logger: opts.Logger}, nil
}

// WithValidator returns a copy of p using v, for runs with isolated scratch.
func (p *Pipeline) WithValidator(v CodeValidator) *Pipeline {
	cp := *p
	cp.deps.Validator = v
	return &cp
}

// Result is the terminal outcome of a run. Done=false is a normal outcome and
// still carries the last script, code and failure.
type Result struct {
	RunID            string            `json:"run_id"`
	Concept          string            `json:"concept"`
	Done             bool              `json:"done"`
	Script           string            `json:"script"`
	Code             string            `json:"code"`
	Failure          *validate.Failure `json:"failure,omitempty"`
	Feedback         string            `json:"feedback,omitempty"`
	ScriptIterations int               `json:"script_iterations"`
	CodeCalls        int               `json:"code_calls"`
	CritiqueCalls    int               `json:"critique_calls"`
	Duration         time.Duration     `json:"duration"`
}

// RunOption adjusts a single run.
type RunOption func(*runConfig)

type runConfig struct {
	runID    string
	script   string
	observer Observer
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.runID = id }
}

// WithInitialScript starts from script instead of generating one.
func WithInitialScript(script string) RunOption {
	return func(c *runConfig) { c.script = script }
}

// WithObserver receives the run's events.
func WithObserver(o Observer) RunOption {
	return func(c *runConfig) { c.observer = o }
}

// run holds the live conversations of one run. Each is reset at the
// boundaries where its context stops being relevant.
type run struct {
	*Pipeline
	cfg        runConfig
	concept    string
	logger     *zap.Logger
	scriptConv agent.Conversation
	codeConv   agent.Conversation
	criticConv agent.Conversation
	res        Result
}

// Run drives concept until the critic approves a frame or the script budget is
// spent. Errors are returned only for backend failures, validator faults and
// cancellation; the Result is populated in every case.
func (p *Pipeline) Run(ctx context.Context, concept string, opts ...RunOption) (Result, error) {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	r := &run{
		Pipeline: p,
		cfg:      cfg,
		concept:  concept,
		logger:   p.logger.With(zap.String("run_id", cfg.runID)),
		res:      Result{RunID: cfg.runID, Concept: concept},
	}

	start := time.Now()
	err := r.loop(ctx)
	r.res.Duration = time.Since(start)

	outcome := "not_approved"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	case err != nil:
		outcome = "error"
	case r.res.Done:
		outcome = "approved"
	}
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordPipelineRun(outcome, r.res.Duration, r.res.ScriptIterations, r.res.CodeCalls)
	}
	r.emit(Event{Type: EventDone, Done: r.res.Done, Message: outcome, Script: r.res.Script, Code: r.res.Code})
	r.logger.Info("pipeline finished",
		zap.String("outcome", outcome),
		zap.Int("script_iterations", r.res.ScriptIterations),
		zap.Int("code_calls", r.res.CodeCalls),
		zap.Int("critique_calls", r.res.CritiqueCalls),
		zap.Duration("duration", r.res.Duration),
	)
	return r.res, err
}

func (r *run) loop(ctx context.Context) error {
	if r.cfg.script != "" {
		r.res.Script = r.cfg.script
		// Revisions continue this conversation, so it must hold the script.
		r.scriptConv = r.scriptConv.Append(
			agent.Turn{Content: suppliedScriptRequest(r.concept)},
			agent.Turn{Content: r.cfg.script},
		)
	} else {
		script, conv, err := r.deps.Scripts.Generate(ctx, r.scriptConv, r.concept)
		r.scriptConv = conv
		if err != nil {
			return r.abort(ctx, fmt.Errorf("generate script: %w", err))
		}
		r.res.Script = script
	}
	r.emit(Event{Type: EventScript, Script: r.res.Script})

	maxScript := r.opts.MaxScriptIterations
	for iter := 1; iter <= maxScript; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.res.ScriptIterations = iter
		last := iter == maxScript
		r.logger.Info("script iteration", zap.Int("iteration", iter), zap.Int("max", maxScript))

		result, err := r.codeLoop(ctx, iter)
		if err != nil {
			return err
		}

		if !result.OK() {
			// The code context belongs to the abandoned script.
			r.codeConv = agent.Conversation{}
			r.logger.Warn("script abandoned after code budget",
				zap.Int("iteration", iter),
				zap.String("failure_kind", string(result.Failure.Kind)),
			)
			if last {
				break
			}
			if err := r.revise(ctx, iter, simplerAfterCodeFailure(r.concept, r.opts.MaxCodeIterations, result.Failure)); err != nil {
				return err
			}
			continue
		}

		frames, err := r.deps.Frames.List(result.OutputDir)
		if err != nil {
			return r.abort(ctx, fmt.Errorf("%w: list frames: %v", ErrValidatorFault, err))
		}
		r.emit(Event{Type: EventFrames, ScriptIteration: iter, Frames: len(frames)})
		if len(frames) == 0 {
			r.logger.Warn("validated code rendered no frames", zap.Int("iteration", iter))
			if last {
				break
			}
			if err := r.revise(ctx, iter, simplerAfterNoFrames(r.concept)); err != nil {
				return err
			}
			continue
		}

		approved, err := r.critique(ctx, iter, frames, last)
		if err != nil {
			return err
		}
		if approved {
			r.res.Done = true
			return nil
		}
	}
	return nil
}

// codeLoop generates, then repairs, until validation succeeds or the code
// budget is spent. It returns the last validation result.
func (r *run) codeLoop(ctx context.Context, iter int) (validate.Result, error) {
	r.codeConv = agent.Conversation{}

	var result validate.Result
	for attempt := 1; attempt <= r.opts.MaxCodeIterations; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var (
			code string
			conv agent.Conversation
			err  error
		)
		if attempt == 1 {
			code, conv, err = r.deps.Coder.Generate(ctx, r.codeConv, r.res.Script, r.concept)
		} else {
			code, conv, err = r.deps.Coder.Repair(ctx, r.codeConv, result.Failure.Error())
		}
		r.codeConv = conv
		r.res.CodeCalls++
		if err != nil {
			return result, r.abort(ctx, fmt.Errorf("generate code: %w", err))
		}
		r.res.Code = code
		r.emit(Event{Type: EventCode, ScriptIteration: iter, CodeAttempt: attempt, Code: code})

		result = r.deps.Validator.Validate(ctx, code)
		if err := ctx.Err(); err != nil {
			return result, err
		}
		r.res.Failure = result.Failure
		ev := Event{Type: EventValidation, ScriptIteration: iter, CodeAttempt: attempt, FailureKind: result.Kind()}
		if result.Failure != nil {
			ev.Message = result.Failure.Message
		}
		r.emit(ev)

		if result.OK() {
			r.logger.Info("code validated", zap.Int("iteration", iter), zap.Int("attempt", attempt))
			return result, nil
		}
		if result.Failure.Kind == validate.KindEvaluation {
			r.logger.Error("validator fault", zap.String("message", result.Failure.Message))
			return result, fmt.Errorf("%w: %s", ErrValidatorFault, result.Failure.Message)
		}
		r.logger.Warn("code rejected",
			zap.Int("iteration", iter),
			zap.Int("attempt", attempt),
			zap.String("kind", string(result.Failure.Kind)),
		)
	}
	return result, nil
}

// critique asks the critic about frames in order, on a fresh conversation. The
// first approval wins; the first rejection revises the script and ends the batch.
func (r *run) critique(ctx context.Context, iter int, frames []string, last bool) (bool, error) {
	r.criticConv = agent.Conversation{}
	for _, path := range frames {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		img, err := r.deps.Frames.Load(path)
		if err != nil {
			return false, fmt.Errorf("%w: load frame: %v", ErrValidatorFault, err)
		}

		crit, conv, err := r.deps.Critic.Critique(ctx, r.criticConv, img, r.concept, r.res.Script, r.res.Code)
		r.criticConv = conv
		r.res.CritiqueCalls++
		if err != nil {
			return false, r.abort(ctx, fmt.Errorf("critique frame: %w", err))
		}
		if r.opts.Metrics != nil {
			r.opts.Metrics.RecordCritique(string(crit.Verdict))
		}
		r.res.Feedback = crit.Text
		r.emit(Event{Type: EventCritique, ScriptIteration: iter, Verdict: string(crit.Verdict), Message: crit.Text})

		if crit.Approved() {
			r.logger.Info("critic approved", zap.Int("iteration", iter), zap.String("frame", path))
			return true, nil
		}
		r.logger.Info("critic rejected", zap.Int("iteration", iter), zap.String("frame", path))
		if last {
			return false, nil
		}
		return false, r.revise(ctx, iter, foldCritique(crit.Text, r.res.Script))
	}
	return false, nil
}

func (r *run) revise(ctx context.Context, iter int, instruction string) error {
	script, conv, err := r.deps.Scripts.Revise(ctx, r.scriptConv, instruction)
	r.scriptConv = conv
	if err != nil {
		return r.abort(ctx, fmt.Errorf("revise script: %w", err))
	}
	r.res.Script = script
	r.emit(Event{Type: EventScript, ScriptIteration: iter, Script: script})
	return nil
}

// abort prefers the cancellation cause over the backend error it produced.
func (r *run) abort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	r.logger.Error("pipeline aborted", zap.Error(err))
	return err
}

func (r *run) emit(ev Event) {
	if r.cfg.observer == nil {
		return
	}
	ev.RunID = r.cfg.runID
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	r.cfg.observer(ev)
}
