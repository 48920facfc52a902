package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tessellate-ai/weave"
)

// ApprovalStore is a postgres-backed weave.ApprovalStore.
type ApprovalStore struct {
	db *sql.DB
}

// NewApprovalStore creates an approval store over an open database.
func NewApprovalStore(db *sql.DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

func (s *ApprovalStore) CreateRequest(ctx context.Context, request *weave.ApprovalRequest) error {
	payloadJSON, err := marshalNullable(request.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	responseJSON, err := marshalResponse(request.Response)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO approval_requests
			(id, workflow_id, run_id, node_id, request_type, title, description,
			 payload, status, response, created_at, expires_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		request.ID, request.WorkflowID, request.RunID, request.NodeID,
		string(request.RequestType), request.Title, request.Description,
		payloadJSON, string(request.Status), responseJSON,
		request.CreatedAt, request.ExpiresAt, nullableTime(request.ResolvedAt))
	if err != nil {
		return fmt.Errorf("failed to create approval request: %w", err)
	}
	return nil
}

func (s *ApprovalStore) GetRequest(ctx context.Context, requestID string) (*weave.ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, run_id, node_id, request_type, title, description,
		       payload, status, response, created_at, expires_at, resolved_at
		FROM approval_requests
		WHERE id = $1`,
		requestID)
	request, err := scanRequest(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, weave.ErrRequestNotFound
	}
	return request, err
}

func (s *ApprovalStore) UpdateRequest(ctx context.Context, request *weave.ApprovalRequest) error {
	payloadJSON, err := marshalNullable(request.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	responseJSON, err := marshalResponse(request.Response)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE approval_requests
		SET status = $2, response = $3, payload = $4, resolved_at = $5
		WHERE id = $1`,
		request.ID, string(request.Status), responseJSON, payloadJSON,
		nullableTime(request.ResolvedAt))
	if err != nil {
		return fmt.Errorf("failed to update approval request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return weave.ErrRequestNotFound
	}
	return nil
}

func (s *ApprovalStore) ListPending(ctx context.Context, workflowID string) ([]*weave.ApprovalRequest, error) {
	query := `
		SELECT id, workflow_id, run_id, node_id, request_type, title, description,
		       payload, status, response, created_at, expires_at, resolved_at
		FROM approval_requests
		WHERE status = 'pending'`
	args := []any{}
	if workflowID != "" {
		query += ` AND workflow_id = $1`
		args = append(args, workflowID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approval requests: %w", err)
	}
	defer rows.Close()

	var requests []*weave.ApprovalRequest
	for rows.Next() {
		request, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

func scanRequest(scan func(...any) error) (*weave.ApprovalRequest, error) {
	var request weave.ApprovalRequest
	var requestType, status string
	var payloadJSON, responseJSON []byte
	var resolvedAt sql.NullTime
	err := scan(&request.ID, &request.WorkflowID, &request.RunID, &request.NodeID,
		&requestType, &request.Title, &request.Description,
		&payloadJSON, &status, &responseJSON,
		&request.CreatedAt, &request.ExpiresAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	request.RequestType = weave.ApprovalRequestType(requestType)
	request.Status = weave.ApprovalStatus(status)
	if resolvedAt.Valid {
		request.ResolvedAt = resolvedAt.Time
	}
	if err := unmarshalNullable(payloadJSON, &request.Payload); err != nil {
		return nil, err
	}
	if len(responseJSON) > 0 {
		var response weave.ApprovalResponse
		if err := json.Unmarshal(responseJSON, &response); err != nil {
			return nil, fmt.Errorf("failed to unmarshal approval response: %w", err)
		}
		request.Response = &response
	}
	return &request, nil
}

func marshalResponse(response *weave.ApprovalResponse) ([]byte, error) {
	if response == nil {
		return nil, nil
	}
	data, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal approval response: %w", err)
	}
	return data, nil
}
