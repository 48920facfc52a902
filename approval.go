package weave

import (
	"time"

	"go.jetify.com/typeid"
)

// NewApprovalID returns a new prefixed unique ID for approval requests.
func NewApprovalID() string {
	id, err := typeid.WithPrefix("apr")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// ApprovalRequestType categorizes why a human is being asked to intervene.
type ApprovalRequestType string

const (
	RequestTypeFunctionApproval ApprovalRequestType = "function_approval"
	RequestTypeDataReview       ApprovalRequestType = "data_review"
	RequestTypeDecisionPoint    ApprovalRequestType = "decision_point"
	RequestTypeCustom           ApprovalRequestType = "custom"
)

// ApprovalStatus is the lifecycle state of an approval request. A request
// leaves pending exactly once.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusTimeout   ApprovalStatus = "timeout"
	ApprovalStatusCancelled ApprovalStatus = "cancelled"
)

// Terminal reports whether the status is a final resolution.
func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalStatusPending
}

// ApprovalRequest is a pending or resolved request for human input at a
// workflow node.
type ApprovalRequest struct {
	ID          string              `json:"id"`
	WorkflowID  string              `json:"workflow_id"`
	RunID       string              `json:"run_id"`
	NodeID      string              `json:"node_id"`
	RequestType ApprovalRequestType `json:"request_type"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Payload     map[string]any      `json:"payload,omitempty"`
	Status      ApprovalStatus      `json:"status"`
	Response    *ApprovalResponse   `json:"response,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
	ResolvedAt  time.Time           `json:"resolved_at,omitzero"`
}

// ApprovalResponse is a human's resolution of an approval request.
// ModifiedData, when set on an approval, replaces or augments the payload the
// workflow continues with.
type ApprovalResponse struct {
	Approved     bool           `json:"approved"`
	Feedback     string         `json:"feedback,omitempty"`
	ModifiedData map[string]any `json:"modified_data,omitempty"`
	RespondedBy  string         `json:"responded_by,omitempty"`
	RespondedAt  time.Time      `json:"responded_at"`
}

// Copy returns a copy of the request safe to hand to callers.
func (r *ApprovalRequest) Copy() *ApprovalRequest {
	dup := *r
	dup.Payload = copyMap(r.Payload)
	if r.Response != nil {
		response := *r.Response
		response.ModifiedData = copyMap(r.Response.ModifiedData)
		dup.Response = &response
	}
	return &dup
}
