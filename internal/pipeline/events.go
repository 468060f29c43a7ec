package pipeline

import "time"

// EventType names a step of a pipeline run.
type EventType string

const (
	EventScript     EventType = "script"
	EventCode       EventType = "code"
	EventValidation EventType = "validation"
	EventFrames     EventType = "frames"
	EventCritique   EventType = "critique"
	EventDone       EventType = "done"
)

// Event is emitted to observers as a run progresses.
type Event struct {
	Type            EventType `json:"type"`
	RunID           string    `json:"run_id"`
	Time            time.Time `json:"time"`
	ScriptIteration int       `json:"script_iteration,omitempty"`
	CodeAttempt     int       `json:"code_attempt,omitempty"`
	FailureKind     string    `json:"failure_kind,omitempty"`
	Message         string    `json:"message,omitempty"`
	Script          string    `json:"script,omitempty"`
	Code            string    `json:"code,omitempty"`
	Frames          int       `json:"frames,omitempty"`
	Verdict         string    `json:"verdict,omitempty"`
	Done            bool      `json:"done,omitempty"`
}

// Observer receives events synchronously on the run's goroutine.
type Observer func(Event)
