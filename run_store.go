package weave

import (
	"context"
)

// RunFilter narrows a List call. Zero values match everything.
type RunFilter struct {
	WorkflowID string
	Status     RunStatus
	Limit      int
	Offset     int
}

// RunStore is the durable persistence collaborator for Run records. The
// engine reads and writes run status, logs and timestamps through this
// interface rather than owning durable storage itself.
type RunStore interface {
	// CreateRun persists a new run record.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun returns the run with the given id, or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// UpdateRun replaces the stored record for the run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns runs matching the filter, newest-first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// DeleteRun removes a run record. Returns false if the run did not exist.
	DeleteRun(ctx context.Context, runID string) (bool, error)
}
