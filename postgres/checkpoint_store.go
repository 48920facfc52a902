package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tessellate-ai/weave"
)

// CheckpointStore is a postgres-backed weave.CheckpointStore. Per-workflow
// isolation comes from the (workflow_id, checkpoint_id) primary key; saving
// with an existing id is an upsert.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore creates a checkpoint store over an open database.
func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

func (s *CheckpointStore) Save(ctx context.Context, workflowID, checkpointID string, state json.RawMessage, metadata map[string]any) error {
	metadataJSON, err := marshalNullable(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints (workflow_id, checkpoint_id, state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workflow_id, checkpoint_id)
		DO UPDATE SET state = EXCLUDED.state, metadata = EXCLUDED.metadata, created_at = EXCLUDED.created_at`,
		workflowID, checkpointID, []byte(state), metadataJSON, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Load(ctx context.Context, workflowID, checkpointID string) (*weave.Checkpoint, error) {
	var row *sql.Row
	if checkpointID != "" {
		row = s.db.QueryRowContext(ctx, `
			SELECT workflow_id, checkpoint_id, state, metadata, created_at
			FROM workflow_checkpoints
			WHERE workflow_id = $1 AND checkpoint_id = $2`,
			workflowID, checkpointID)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT workflow_id, checkpoint_id, state, metadata, created_at
			FROM workflow_checkpoints
			WHERE workflow_id = $1
			ORDER BY created_at DESC, checkpoint_id DESC
			LIMIT 1`,
			workflowID)
	}
	checkpoint, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, weave.ErrCheckpointNotFound
	}
	return checkpoint, err
}

func (s *CheckpointStore) List(ctx context.Context, workflowID string) ([]*weave.CheckpointInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_id, metadata, created_at
		FROM workflow_checkpoints
		WHERE workflow_id = $1
		ORDER BY created_at DESC, checkpoint_id DESC`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var infos []*weave.CheckpointInfo
	for rows.Next() {
		var info weave.CheckpointInfo
		var metadataJSON []byte
		if err := rows.Scan(&info.CheckpointID, &metadataJSON, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		if err := unmarshalNullable(metadataJSON, &info.Metadata); err != nil {
			return nil, err
		}
		infos = append(infos, &info)
	}
	return infos, rows.Err()
}

func (s *CheckpointStore) Delete(ctx context.Context, workflowID, checkpointID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_checkpoints
		WHERE workflow_id = $1 AND checkpoint_id = $2`,
		workflowID, checkpointID)
	if err != nil {
		return false, fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanCheckpoint(row *sql.Row) (*weave.Checkpoint, error) {
	var checkpoint weave.Checkpoint
	var state, metadataJSON []byte
	if err := row.Scan(&checkpoint.WorkflowID, &checkpoint.CheckpointID, &state, &metadataJSON, &checkpoint.CreatedAt); err != nil {
		return nil, err
	}
	checkpoint.State = json.RawMessage(state)
	if err := unmarshalNullable(metadataJSON, &checkpoint.Metadata); err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalNullable(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}
	return nil
}
