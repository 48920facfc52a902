package weave

import (
	"context"
	"encoding/json"
)

// CheckpointStore persists run state snapshots keyed by (workflow id,
// checkpoint id). Checkpoints are scoped strictly per workflow: no store
// operation may observe another workflow's checkpoints, even under
// concurrent writers.
//
// Saving with an existing checkpoint id overwrites the stored checkpoint.
// That is an explicit caller choice, not an implicit side effect: callers
// wanting immutable history must choose fresh ids.
type CheckpointStore interface {
	// Save stores a checkpoint.
	Save(ctx context.Context, workflowID, checkpointID string, state json.RawMessage, metadata map[string]any) error

	// Load returns the checkpoint with the given id, or the most recently
	// created checkpoint for the workflow when checkpointID is empty.
	// Returns ErrCheckpointNotFound if nothing matches.
	Load(ctx context.Context, workflowID, checkpointID string) (*Checkpoint, error)

	// List returns checkpoint descriptors for a workflow, newest-first.
	List(ctx context.Context, workflowID string) ([]*CheckpointInfo, error)

	// Delete removes a checkpoint. Returns false if it did not exist.
	Delete(ctx context.Context, workflowID, checkpointID string) (bool, error)
}
