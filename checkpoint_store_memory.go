package weave

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type memoryCheckpoint struct {
	checkpoint *Checkpoint
	seq        uint64
}

// MemoryCheckpointStore is an in-memory CheckpointStore. Latest-checkpoint
// ties on creation timestamp are broken by save order, which is stable for
// the lifetime of the store instance.
type MemoryCheckpointStore struct {
	mutex       sync.RWMutex
	checkpoints map[string]map[string]*memoryCheckpoint
	seq         uint64
}

// NewMemoryCheckpointStore creates an empty in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: map[string]map[string]*memoryCheckpoint{},
	}
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, workflowID, checkpointID string, state json.RawMessage, metadata map[string]any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	byID, ok := s.checkpoints[workflowID]
	if !ok {
		byID = map[string]*memoryCheckpoint{}
		s.checkpoints[workflowID] = byID
	}
	s.seq++
	stateCopy := make(json.RawMessage, len(state))
	copy(stateCopy, state)
	byID[checkpointID] = &memoryCheckpoint{
		checkpoint: &Checkpoint{
			WorkflowID:   workflowID,
			CheckpointID: checkpointID,
			State:        stateCopy,
			Metadata:     copyMap(metadata),
			CreatedAt:    time.Now(),
		},
		seq: s.seq,
	}
	return nil
}

func (s *MemoryCheckpointStore) Load(ctx context.Context, workflowID, checkpointID string) (*Checkpoint, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	byID := s.checkpoints[workflowID]
	if len(byID) == 0 {
		return nil, ErrCheckpointNotFound
	}
	if checkpointID != "" {
		entry, ok := byID[checkpointID]
		if !ok {
			return nil, ErrCheckpointNotFound
		}
		return entry.checkpoint, nil
	}
	var latest *memoryCheckpoint
	for _, entry := range byID {
		if latest == nil || entry.newer(latest) {
			latest = entry
		}
	}
	return latest.checkpoint, nil
}

func (e *memoryCheckpoint) newer(other *memoryCheckpoint) bool {
	if e.checkpoint.CreatedAt.Equal(other.checkpoint.CreatedAt) {
		return e.seq > other.seq
	}
	return e.checkpoint.CreatedAt.After(other.checkpoint.CreatedAt)
}

func (s *MemoryCheckpointStore) List(ctx context.Context, workflowID string) ([]*CheckpointInfo, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var entries []*memoryCheckpoint
	for _, entry := range s.checkpoints[workflowID] {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].newer(entries[j])
	})
	infos := make([]*CheckpointInfo, len(entries))
	for i, entry := range entries {
		infos[i] = &CheckpointInfo{
			CheckpointID: entry.checkpoint.CheckpointID,
			CreatedAt:    entry.checkpoint.CreatedAt,
			Metadata:     copyMap(entry.checkpoint.Metadata),
		}
	}
	return infos, nil
}

func (s *MemoryCheckpointStore) Delete(ctx context.Context, workflowID, checkpointID string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	byID := s.checkpoints[workflowID]
	if _, ok := byID[checkpointID]; !ok {
		return false, nil
	}
	delete(byID, checkpointID)
	return true, nil
}
