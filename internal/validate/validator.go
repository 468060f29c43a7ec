package validate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/config"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/tools"
)

// sceneFile is the fixed scratch file each attempt overwrites.
const sceneFile = "scene.py"

// Metrics receives one observation per validation.
type Metrics interface {
	RecordValidation(kind string, d time.Duration)
}

// Options tunes a Validator.
type Options struct {
	Python    string
	Renderer  []string
	Timeout   time.Duration
	CacheSize int
	// Syntax overrides the python-based syntax checker.
	Syntax  SyntaxChecker
	Logger  *zap.Logger
	Metrics Metrics
}

// OptionsFromConfig maps validator settings onto Options.
func OptionsFromConfig(cfg config.ValidatorConfig) Options {
	return Options{
		Python:    cfg.Python,
		Renderer:  append([]string(nil), cfg.Renderer...),
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		CacheSize: cfg.CacheSize,
	}
}

// Validator checks generated scene code in stages: syntax, structure, then a
// sandboxed render with a wall-clock limit.
type Validator struct {
	sandbox *tools.Sandbox
	opts    Options
	syntax  SyntaxChecker
	cache   *resultCache
	logger  *zap.Logger

	// parent and runID are set on isolated validators.
	parent *tools.Workspace
	runID  string
}

// New builds a validator over sb.
func New(sb *tools.Sandbox, opts Options) (*Validator, error) {
	if sb == nil || sb.Scratch == nil || sb.Media == nil || sb.Terminal == nil {
		return nil, errors.New("validator requires a sandbox with scratch, media and terminal")
	}
	if len(opts.Renderer) == 0 {
		opts.Renderer = append([]string(nil), config.DefaultRenderer...)
	}
	if opts.Python == "" {
		opts.Python = "python3"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = tools.DefaultTimeout
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	syntax := opts.Syntax
	if syntax == nil {
		syntax = PythonSyntax{Terminal: sb.Terminal, Interpreter: opts.Python}
	}

	return &Validator{
		sandbox: sb,
		opts:    opts,
		syntax:  syntax,
		cache:   newResultCache(opts.CacheSize),
		logger:  opts.Logger,
	}, nil
}

// Isolated returns a validator whose scratch and media live under runID, for
// concurrent runs. The cache is not shared.
func (v *Validator) Isolated(runID string) (*Validator, error) {
	if err := tools.Segment(runID); err != nil {
		return nil, fmt.Errorf("isolate run: %w", err)
	}
	scratch, err := v.sandbox.Scratch.Sub(runID)
	if err != nil {
		return nil, fmt.Errorf("isolate scratch: %w", err)
	}
	media, err := v.sandbox.Media.Sub(runID)
	if err != nil {
		return nil, fmt.Errorf("isolate media: %w", err)
	}
	term := *v.sandbox.Terminal
	term.WorkingDir = scratch.Root()

	opts := v.opts
	opts.Logger = v.logger.With(zap.String("run_id", runID))
	if _, ok := v.syntax.(PythonSyntax); ok {
		opts.Syntax = PythonSyntax{Terminal: &term, Interpreter: opts.Python}
	}
	iso, err := New(&tools.Sandbox{Scratch: scratch, Media: media, Terminal: &term}, opts)
	if err != nil {
		return nil, err
	}
	iso.parent, iso.runID = v.sandbox.Scratch, runID
	return iso, nil
}

// Release removes the scratch directory of an isolated validator. Rendered media
// is kept. It is a no-op for validators not created by Isolated.
func (v *Validator) Release() error {
	if v.parent == nil {
		return nil
	}
	return v.parent.RemoveAll(v.runID)
}

// Validate classifies code. Identical code yields the same verdict; evaluation
// faults are never remembered.
func (v *Validator) Validate(ctx context.Context, code string) (res Result) {
	start := time.Now()
	key := codeKey(code)

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validator panic", zap.Any("panic", r))
			res = failed(KindEvaluation, fmt.Sprintf("validator panic: %v", r))
		}
		if v.opts.Metrics != nil {
			v.opts.Metrics.RecordValidation(res.Kind(), time.Since(start))
		}
		v.logger.Debug("validation finished",
			zap.String("kind", res.Kind()),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	if cached, ok := v.cache.get(key); ok {
		return cached
	}
	res = v.validate(ctx, code, key)
	v.cache.put(key, res)
	return res
}

func (v *Validator) validate(ctx context.Context, code, key string) Result {
	if strings.TrimSpace(code) == "" {
		return failed(KindStructural, "the code is empty")
	}

	synFail, err := v.syntax.Check(ctx, code)
	if err != nil {
		return failed(KindEvaluation, err.Error())
	}
	if synFail != nil {
		return Result{Failure: synFail}
	}

	scene, structFail := CheckStructure(code)
	if structFail != nil {
		return Result{Failure: structFail}
	}

	return v.execute(ctx, code, scene, key)
}

func (v *Validator) execute(ctx context.Context, code, scene, key string) Result {
	file, err := v.sandbox.Scratch.WriteFile(sceneFile, code)
	if err != nil {
		return failed(KindEvaluation, fmt.Sprintf("write scene file: %v", err))
	}
	if err := v.sandbox.Media.RemoveAll(key); err != nil {
		return failed(KindEvaluation, fmt.Sprintf("clear media dir: %v", err))
	}
	mediaDir, err := v.sandbox.Media.Path(key)
	if err != nil {
		return failed(KindEvaluation, fmt.Sprintf("resolve media dir: %v", err))
	}

	expand := strings.NewReplacer("{file}", file, "{scene}", scene, "{media_dir}", mediaDir)
	argv := make([]string, len(v.opts.Renderer))
	for i, arg := range v.opts.Renderer {
		argv[i] = expand.Replace(arg)
	}

	out, runErr := v.sandbox.Terminal.Run(ctx, tools.Command{
		Name:    argv[0],
		Args:    argv[1:],
		Timeout: v.opts.Timeout,
	})

	var exitErr *exec.ExitError
	switch {
	case out.TimedOut:
		return failed(KindTimeout, fmt.Sprintf("rendering did not finish within %s", v.opts.Timeout))
	case ctx.Err() != nil:
		return failed(KindEvaluation, ctx.Err().Error())
	case errors.As(runErr, &exitErr):
		msg := strings.TrimSpace(out.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(out.Stdout)
		}
		if msg == "" {
			msg = fmt.Sprintf("renderer exited with status %d", out.ExitCode)
		}
		return Result{Failure: runtimeFailure(msg, code)}
	case runErr != nil:
		return failed(KindEvaluation, fmt.Sprintf("start renderer: %v", runErr))
	case tracebackLine.MatchString(out.Stderr):
		return Result{Failure: runtimeFailure(strings.TrimSpace(out.Stderr), code)}
	}

	return Result{Stdout: out.Stdout, OutputDir: mediaDir}
}

var (
	tracebackLine = regexp.MustCompile(`(?m)^Traceback \(most recent call last\):|^\w+(Error|Exception):`)
	sceneFrame    = regexp.MustCompile(`File "[^"]*` + regexp.QuoteMeta(sceneFile) + `", line (\d+)`)
)

// runtimeFailure points the failure at the deepest frame inside the scene file.
func runtimeFailure(msg, code string) *Failure {
	f := &Failure{Kind: KindRuntime, Message: msg}
	matches := sceneFrame.FindAllStringSubmatch(msg, -1)
	if len(matches) == 0 {
		return f
	}
	line, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil {
		return f
	}
	f.Line = line
	lines := strings.Split(code, "\n")
	if line >= 1 && line <= len(lines) {
		f.Context = strings.TrimSpace(lines[line-1])
	}
	return f
}
