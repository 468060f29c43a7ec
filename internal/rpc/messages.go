package rpc

import "github.com/hesamsheikh/AnimAI-Trainer/internal/pipeline"

// RunPipelineRequest starts a pipeline run for a concept.
type RunPipelineRequest struct {
	RunID   string `json:"run_id,omitempty"`
	Concept string `json:"concept"`
	// Script seeds the run with an existing scene script.
	Script string `json:"script,omitempty"`
}

// Event types added by the transport on top of pipeline events.
const (
	EventResult pipeline.EventType = "result"
	EventError  pipeline.EventType = "error"
)

// PipelineEvent streams progress of a run. The last event of a stream has type
// "result" and carries the final Result, plus Error when the run aborted.
type PipelineEvent struct {
	pipeline.Event
	Error  string           `json:"error,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
}

// RunPipelineStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must carry Run; later messages may only cancel.
type RunPipelineStreamRequest struct {
	Run    *RunPipelineRequest `json:"run,omitempty"`
	Cancel bool                `json:"cancel,omitempty"`
}
