package weave

import (
	"context"
	"sort"
	"sync"
)

// MemoryRunStore is an in-memory RunStore suitable for tests and single
// process deployments.
type MemoryRunStore struct {
	mutex sync.RWMutex
	runs  map[string]*Run
}

// NewMemoryRunStore creates an empty in-memory run store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: map[string]*Run{}}
}

func (s *MemoryRunStore) CreateRun(ctx context.Context, run *Run) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.runs[run.ID] = run.Copy()
	return nil
}

func (s *MemoryRunStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Copy(), nil
}

func (s *MemoryRunStore) UpdateRun(ctx context.Context, run *Run) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	s.runs[run.ID] = run.Copy()
	return nil
}

func (s *MemoryRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var runs []*Run
	for _, run := range s.runs {
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, run.Copy())
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(runs) {
			return nil, nil
		}
		runs = runs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(runs) {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

func (s *MemoryRunStore) DeleteRun(ctx context.Context, runID string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return false, nil
	}
	delete(s.runs, runID)
	return true, nil
}
