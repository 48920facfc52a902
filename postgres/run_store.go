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

// RunStore is a postgres-backed weave.RunStore.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a run store over an open database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run *weave.Run) error {
	inputJSON, outputJSON, logJSON, err := marshalRunColumns(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs
			(id, workflow_id, status, input, output, log, error, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.WorkflowID, string(run.Status),
		inputJSON, outputJSON, logJSON, run.Error,
		run.CreatedAt, nullableTime(run.StartedAt), nullableTime(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, runID string) (*weave.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, status, input, output, log, error, created_at, started_at, completed_at
		FROM workflow_runs
		WHERE id = $1`,
		runID)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, weave.ErrRunNotFound
	}
	return run, err
}

func (s *RunStore) UpdateRun(ctx context.Context, run *weave.Run) error {
	inputJSON, outputJSON, logJSON, err := marshalRunColumns(run)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET status = $2, input = $3, output = $4, log = $5, error = $6,
		    started_at = $7, completed_at = $8
		WHERE id = $1`,
		run.ID, string(run.Status), inputJSON, outputJSON, logJSON, run.Error,
		nullableTime(run.StartedAt), nullableTime(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return weave.ErrRunNotFound
	}
	return nil
}

func (s *RunStore) ListRuns(ctx context.Context, filter weave.RunFilter) ([]*weave.Run, error) {
	query := `
		SELECT id, workflow_id, status, input, output, log, error, created_at, started_at, completed_at
		FROM workflow_runs
		WHERE 1=1`
	var args []any
	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		query += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*weave.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *RunStore) DeleteRun(ctx context.Context, runID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workflow_runs WHERE id = $1`, runID)
	if err != nil {
		return false, fmt.Errorf("failed to delete run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func marshalRunColumns(run *weave.Run) (input, output, log []byte, err error) {
	input, err = marshalNullable(run.Input)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal run input: %w", err)
	}
	output, err = marshalNullable(run.Output)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal run output: %w", err)
	}
	log, err = json.Marshal(run.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal run log: %w", err)
	}
	return input, output, log, nil
}

func scanRun(scan func(...any) error) (*weave.Run, error) {
	var run weave.Run
	var status string
	var inputJSON, outputJSON, logJSON []byte
	var startedAt, completedAt sql.NullTime
	err := scan(&run.ID, &run.WorkflowID, &status,
		&inputJSON, &outputJSON, &logJSON, &run.Error,
		&run.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	run.Status = weave.RunStatus(status)
	if startedAt.Valid {
		run.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	if err := unmarshalNullable(inputJSON, &run.Input); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(outputJSON, &run.Output); err != nil {
		return nil, err
	}
	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &run.Log); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run log: %w", err)
		}
	}
	return &run, nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
