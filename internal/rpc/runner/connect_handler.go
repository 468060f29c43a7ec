package runner

import (
	"context"
	"errors"
	"net/http"

	"github.com/bufbuild/connect-go"

	"github.com/hesamsheikh/AnimAI-Trainer/internal/observability"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/rpc"
	"github.com/hesamsheikh/AnimAI-Trainer/internal/rpc/connectjson"
)

const ConnectRunPipelineProcedure = "/animai.pipeline.v1.PipelineService/RunPipeline"

// NewConnectHandler builds a Connect bidi stream handler for RunPipeline.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	h := &connectRunHandler{runner: runner, metrics: metrics}
	return ConnectRunPipelineProcedure, connect.NewBidiStreamHandler(ConnectRunPipelineProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectRunHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectRunHandler) handle(ctx context.Context, stream *connect.BidiStream[rpc.RunPipelineStreamRequest, rpc.PipelineEvent]) error {
	h.metrics.IncActiveSessions("connect")
	defer h.metrics.DecActiveSessions("connect")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := stream.Receive()
	if err != nil {
		h.metrics.RecordTransportError("connect", "receive_first")
		return err
	}
	if first == nil || first.Run == nil {
		h.metrics.RecordTransportError("connect", "missing_run")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("first message must include run payload"))
	}

	// A cancel message or a broken request stream stops the run.
	go func() {
		for {
			msg, recvErr := stream.Receive()
			if recvErr != nil {
				return
			}
			if msg != nil && msg.Cancel {
				cancel()
				return
			}
		}
	}()

	events, runErr := h.runner.Run(ctx, *first.Run)
	if runErr != nil {
		h.metrics.RecordTransportError("connect", "runner_error")
		if errors.Is(runErr, ErrInvalidRequest) {
			return connect.NewError(connect.CodeInvalidArgument, runErr)
		}
		return connect.NewError(connect.CodeInternal, runErr)
	}

	for ev := range events {
		if err := stream.Send(&ev); err != nil {
			h.metrics.RecordTransportError("connect", "send")
			cancel()
			for range events {
			}
			return err
		}
	}
	return nil
}
