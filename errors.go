package weave

import (
	"errors"
	"fmt"
)

// Error type constants for classification and matching
const (
	// ErrorTypeValidation indicates a structural graph defect reported by the
	// validator. Validation errors always surface before execution starts.
	ErrorTypeValidation = "validation_error"

	// ErrorTypeInvalidTransition indicates a Start/Pause/Resume/Cancel call
	// from an incompatible run status. No state is mutated.
	ErrorTypeInvalidTransition = "invalid_transition"

	// ErrorTypeConfig indicates a node executor received configuration it
	// cannot work with, as opposed to failing at runtime.
	ErrorTypeConfig = "config_error"

	// ErrorTypeExecutor indicates a node executor failed at runtime. The run
	// terminates as failed; retry is a caller decision.
	ErrorTypeExecutor = "executor_error"

	// ErrorTypeApprovalRejected indicates a human rejected an approval
	// request. Treated as a non-retryable stop for the run.
	ErrorTypeApprovalRejected = "approval_rejected"

	// ErrorTypeApprovalTimeout indicates an approval request expired without
	// a response.
	ErrorTypeApprovalTimeout = "approval_timeout"

	// ErrorTypeStore indicates a checkpoint or run store operation failed.
	// The engine does not retry these automatically.
	ErrorTypeStore = "store_error"
)

// Sentinel errors for errors.Is branching.
var (
	ErrRunNotFound        = errors.New("run not found")
	ErrRequestNotFound    = errors.New("approval request not found")
	ErrAlreadyProcessed   = errors.New("approval request already processed")
	ErrNotApproved        = errors.New("not approved")
	ErrApprovalTimeout    = errors.New("approval request timed out")
	ErrApprovalCancelled  = errors.New("approval request cancelled")
	ErrCheckpointNotFound = errors.New("no checkpoint found")
)

// EngineError is a classified error carrying enough context (run id, node id)
// to be actionable without inspecting logs. It supports Go's error wrapping
// patterns via Unwrap.
type EngineError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	RunID   string `json:"run_id,omitempty"`
	NodeID  string `json:"node_id,omitempty"`
	Wrapped error  `json:"-"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Type, e.NodeID, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for errors.Is and errors.As
func (e *EngineError) Unwrap() error {
	return e.Wrapped
}

// NewEngineError creates a new EngineError with the given type and cause.
func NewEngineError(errorType, cause string) *EngineError {
	return &EngineError{Type: errorType, Cause: cause}
}

// NewConfigError reports a node configuration defect.
func NewConfigError(nodeID, cause string) *EngineError {
	return &EngineError{Type: ErrorTypeConfig, NodeID: nodeID, Cause: cause}
}

// NewInvalidTransitionError reports an operation attempted from an
// incompatible run status.
func NewInvalidTransitionError(runID string, from RunStatus, op string) *EngineError {
	return &EngineError{
		Type:  ErrorTypeInvalidTransition,
		RunID: runID,
		Cause: fmt.Sprintf("cannot %s run in status %q", op, from),
	}
}

// IsConfigError reports whether err classifies as a node configuration
// defect, distinguishing it from a runtime executor failure.
func IsConfigError(err error) bool {
	var engineErr *EngineError
	return errors.As(err, &engineErr) && engineErr.Type == ErrorTypeConfig
}

// ClassifyError classifies an error into an EngineError. Errors that are
// already classified pass through; everything else defaults to an executor
// failure.
func ClassifyError(err error) *EngineError {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr
	}
	switch {
	case errors.Is(err, ErrNotApproved):
		return &EngineError{Type: ErrorTypeApprovalRejected, Cause: err.Error(), Wrapped: err}
	case errors.Is(err, ErrApprovalTimeout):
		return &EngineError{Type: ErrorTypeApprovalTimeout, Cause: err.Error(), Wrapped: err}
	default:
		return &EngineError{Type: ErrorTypeExecutor, Cause: err.Error(), Wrapped: err}
	}
}
