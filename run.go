package weave

import (
	"time"

	"go.jetify.com/typeid"
)

// NewRunID returns a new prefixed unique ID for run identification
func NewRunID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RunStatus represents the execution status of a run.
//
// Transitions: Draft -> Running -> {Completed | Failed | Cancelled}, with
// Running <-> Paused as a re-entrant cycle. Completed, Failed and Cancelled
// are terminal: no transition leaves them.
type RunStatus string

const (
	RunStatusDraft     RunStatus = "draft"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is terminal.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Log event names appended by the engine.
const (
	EventExecutionStarted   = "execution_started"
	EventExecutionPaused    = "execution_paused"
	EventExecutionResumed   = "execution_resumed"
	EventExecutionCompleted = "execution_completed"
	EventExecutionFailed    = "execution_failed"
	EventExecutionCancelled = "execution_cancelled"
	EventNodeEntered        = "node_entered"
	EventNodeCompleted      = "node_completed"
	EventNodeFailed         = "node_failed"
	EventApprovalRequested  = "approval_requested"
	EventApprovalResolved   = "approval_resolved"
)

// LogEntry is a single timestamped event in a run's execution log. Entries
// for one run are strictly ordered by append order; no ordering holds across
// runs.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Node      string    `json:"node,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Run is one execution instance of a workflow graph. The engine owns a run
// for its lifetime; durability is delegated to a RunStore, but liveness and
// cancellation state exist only in engine memory.
type Run struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      RunStatus      `json:"status"`
	Input       map[string]any `json:"input"`
	Output      map[string]any `json:"output,omitempty"`
	Log         []LogEntry     `json:"log"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`
}

// NewRun creates a draft run for the given workflow with the given input
// payload.
func NewRun(workflowID string, input map[string]any) *Run {
	return &Run{
		ID:         NewRunID(),
		WorkflowID: workflowID,
		Status:     RunStatusDraft,
		Input:      copyMap(input),
		Log:        []LogEntry{},
		CreatedAt:  time.Now(),
	}
}

// AppendLog appends a timestamped entry to the run's execution log.
func (r *Run) AppendLog(event, node, message string) {
	r.Log = append(r.Log, LogEntry{
		Timestamp: time.Now(),
		Event:     event,
		Node:      node,
		Message:   message,
	})
}

// Copy returns a deep-enough copy of the run for handing to callers without
// sharing the engine's mutable state.
func (r *Run) Copy() *Run {
	dup := *r
	dup.Input = copyMap(r.Input)
	dup.Output = copyMap(r.Output)
	dup.Log = make([]LogEntry, len(r.Log))
	copy(dup.Log, r.Log)
	return &dup
}

// copyMap creates a shallow copy of a map
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	dup := make(map[string]any, len(m))
	for k, v := range m {
		dup[k] = v
	}
	return dup
}
