// Package runner bridges pipeline runs to streaming transports.
package runner

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/app"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/pipeline"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/rpc"
)

// ErrInvalidRequest is returned for requests the runner cannot start.
var ErrInvalidRequest = errors.New("invalid request")

// Executor runs one concept to completion.
type Executor interface {
	Run(ctx context.Context, concept string, opts app.RunOptions) (pipeline.Result, error)
}

// Runner starts a run and yields its events. The channel closes after the
// final result event.
type Runner interface {
	Run(ctx context.Context, req rpc.RunPipelineRequest) (<-chan rpc.PipelineEvent, error)
}

// PipelineRunner executes runs with isolated scratch space, at most
// concurrency at a time.
type PipelineRunner struct {
	exec    Executor
	sem     *semaphore.Weighted
	publish func(rpc.PipelineEvent)
	logger  *zap.Logger
}

// Option configures a PipelineRunner.
type Option func(*PipelineRunner)

// WithPublisher mirrors every event to publish, e.g. a broadcast hub.
func WithPublisher(publish func(rpc.PipelineEvent)) Option {
	return func(r *PipelineRunner) { r.publish = publish }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *PipelineRunner) { r.logger = l }
}

// New builds a runner. concurrency <= 0 means one run at a time.
func New(exec Executor, concurrency int, opts ...Option) *PipelineRunner {
	if concurrency <= 0 {
		concurrency = 1
	}
	r := &PipelineRunner{
		exec:   exec,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run implements Runner.
func (r *PipelineRunner) Run(ctx context.Context, req rpc.RunPipelineRequest) (<-chan rpc.PipelineEvent, error) {
	if r.exec == nil {
		return nil, errors.New("runner has no executor")
	}
	req.Concept = strings.TrimSpace(req.Concept)
	if req.Concept == "" {
		return nil, errors.Join(ErrInvalidRequest, errors.New("concept is required"))
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	out := make(chan rpc.PipelineEvent, 32)
	go func() {
		defer close(out)

		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.send(ctx, out, rpc.PipelineEvent{
				Event: pipeline.Event{Type: rpc.EventError, RunID: req.RunID},
				Error: err.Error(),
			})
			return
		}
		defer r.sem.Release(1)

		r.logger.Info("pipeline run started", zap.String("run_id", req.RunID), zap.String("concept", req.Concept))
		res, err := r.exec.Run(ctx, req.Concept, app.RunOptions{
			RunID:   req.RunID,
			Script:  req.Script,
			Isolate: true,
			Observer: func(ev pipeline.Event) {
				r.send(ctx, out, rpc.PipelineEvent{Event: ev})
			},
		})

		final := rpc.PipelineEvent{
			Event:  pipeline.Event{Type: rpc.EventResult, RunID: req.RunID, Done: res.Done},
			Result: &res,
		}
		if err != nil {
			final.Error = err.Error()
			r.logger.Warn("pipeline run failed", zap.String("run_id", req.RunID), zap.Error(err))
		}
		r.send(ctx, out, final)
	}()
	return out, nil
}

// send delivers ev unless ctx ends first; the client is gone in that case.
func (r *PipelineRunner) send(ctx context.Context, out chan<- rpc.PipelineEvent, ev rpc.PipelineEvent) {
	if r.publish != nil {
		r.publish(ev)
	}
	select {
	case out <- ev:
	case <-ctx.Done():
		select {
		case out <- ev:
		default:
		}
	}
}
