package weave

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileCheckpointStore persists checkpoints to disk, one JSON file per
// checkpoint under a per-workflow directory.
type FileCheckpointStore struct {
	dataDir string
}

// NewFileCheckpointStore creates a file-based checkpoint store rooted at
// dataDir. An empty dataDir defaults to ~/.weave/checkpoints.
func NewFileCheckpointStore(dataDir string) (*FileCheckpointStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".weave", "checkpoints")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &FileCheckpointStore{dataDir: dataDir}, nil
}

func (s *FileCheckpointStore) workflowDir(workflowID string) string {
	return filepath.Join(s.dataDir, workflowID)
}

func (s *FileCheckpointStore) checkpointPath(workflowID, checkpointID string) string {
	return filepath.Join(s.workflowDir(workflowID), checkpointID+".json")
}

func (s *FileCheckpointStore) Save(ctx context.Context, workflowID, checkpointID string, state json.RawMessage, metadata map[string]any) error {
	dir := s.workflowDir(workflowID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workflow directory: %w", err)
	}
	checkpoint := &Checkpoint{
		WorkflowID:   workflowID,
		CheckpointID: checkpointID,
		State:        state,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	}
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(s.checkpointPath(workflowID, checkpointID), data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

func (s *FileCheckpointStore) Load(ctx context.Context, workflowID, checkpointID string) (*Checkpoint, error) {
	if checkpointID != "" {
		return s.readCheckpoint(s.checkpointPath(workflowID, checkpointID))
	}

	checkpoints, err := s.readAll(workflowID)
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		return nil, ErrCheckpointNotFound
	}
	return checkpoints[0], nil
}

func (s *FileCheckpointStore) List(ctx context.Context, workflowID string) ([]*CheckpointInfo, error) {
	checkpoints, err := s.readAll(workflowID)
	if err != nil {
		return nil, err
	}
	infos := make([]*CheckpointInfo, len(checkpoints))
	for i, checkpoint := range checkpoints {
		infos[i] = &CheckpointInfo{
			CheckpointID: checkpoint.CheckpointID,
			CreatedAt:    checkpoint.CreatedAt,
			Metadata:     checkpoint.Metadata,
		}
	}
	return infos, nil
}

func (s *FileCheckpointStore) Delete(ctx context.Context, workflowID, checkpointID string) (bool, error) {
	path := s.checkpointPath(workflowID, checkpointID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete checkpoint file: %w", err)
	}
	return true, nil
}

// readAll returns all checkpoints for a workflow, newest-first. Creation
// timestamp ties are broken by checkpoint id for a deterministic order.
func (s *FileCheckpointStore) readAll(workflowID string) ([]*Checkpoint, error) {
	entries, err := os.ReadDir(s.workflowDir(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read workflow directory: %w", err)
	}

	var checkpoints []*Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		checkpoint, err := s.readCheckpoint(filepath.Join(s.workflowDir(workflowID), entry.Name()))
		if err != nil {
			// Skip files we cannot read
			continue
		}
		checkpoints = append(checkpoints, checkpoint)
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		if checkpoints[i].CreatedAt.Equal(checkpoints[j].CreatedAt) {
			return checkpoints[i].CheckpointID > checkpoints[j].CheckpointID
		}
		return checkpoints[i].CreatedAt.After(checkpoints[j].CreatedAt)
	})
	return checkpoints, nil
}

func (s *FileCheckpointStore) readCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}
