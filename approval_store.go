package weave

import "context"

// ApprovalStore persists approval requests and their resolutions.
type ApprovalStore interface {
	// CreateRequest stores a new approval request.
	CreateRequest(ctx context.Context, request *ApprovalRequest) error

	// GetRequest returns the request with the given id, or ErrRequestNotFound.
	GetRequest(ctx context.Context, requestID string) (*ApprovalRequest, error)

	// UpdateRequest replaces a stored request. Returns ErrRequestNotFound if
	// the request does not exist.
	UpdateRequest(ctx context.Context, request *ApprovalRequest) error

	// ListPending returns pending requests, newest-first. An empty workflowID
	// matches all workflows.
	ListPending(ctx context.Context, workflowID string) ([]*ApprovalRequest, error)
}
