package weave

import (
	"encoding/json"
	"time"

	"go.jetify.com/typeid"
)

// NewCheckpointID returns a new prefixed unique ID for auto-generated
// checkpoints.
func NewCheckpointID() string {
	id, err := typeid.WithPrefix("ckpt")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// Checkpoint is an immutable persisted snapshot of a run's progress,
// sufficient to resume without replaying from the start. Checkpoints are
// keyed by (workflow id, checkpoint id); multiple checkpoints may exist per
// workflow.
type Checkpoint struct {
	WorkflowID   string          `json:"workflow_id"`
	CheckpointID string          `json:"checkpoint_id"`
	State        json.RawMessage `json:"state"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CheckpointInfo describes a stored checkpoint without its state blob.
type CheckpointInfo struct {
	CheckpointID string         `json:"checkpoint_id"`
	CreatedAt    time.Time      `json:"created_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RunState is the engine's serialized execution state. It captures enough to
// resume a run: the node cursor, per-node outputs, the flowing payload and
// any pending approval ids.
type RunState struct {
	RunID            string                    `json:"run_id"`
	Cursor           string                    `json:"cursor"`
	Visited          []string                  `json:"visited"`
	NodeOutputs      map[string]map[string]any `json:"node_outputs"`
	Payload          map[string]any            `json:"payload"`
	PendingApprovals []string                  `json:"pending_approvals,omitempty"`
}

// MarshalState serializes a RunState into a checkpoint state blob.
func MarshalState(state *RunState) (json.RawMessage, error) {
	return json.Marshal(state)
}

// UnmarshalState deserializes a checkpoint state blob.
func UnmarshalState(data json.RawMessage) (*RunState, error) {
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
