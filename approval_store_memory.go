package weave

import (
	"context"
	"sort"
	"sync"
)

// MemoryApprovalStore is an in-memory ApprovalStore.
type MemoryApprovalStore struct {
	mutex    sync.RWMutex
	requests map[string]*ApprovalRequest
}

// NewMemoryApprovalStore creates an empty in-memory approval store.
func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{requests: map[string]*ApprovalRequest{}}
}

func (s *MemoryApprovalStore) CreateRequest(ctx context.Context, request *ApprovalRequest) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.requests[request.ID] = request.Copy()
	return nil
}

func (s *MemoryApprovalStore) GetRequest(ctx context.Context, requestID string) (*ApprovalRequest, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	request, ok := s.requests[requestID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return request.Copy(), nil
}

func (s *MemoryApprovalStore) UpdateRequest(ctx context.Context, request *ApprovalRequest) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.requests[request.ID]; !ok {
		return ErrRequestNotFound
	}
	s.requests[request.ID] = request.Copy()
	return nil
}

func (s *MemoryApprovalStore) ListPending(ctx context.Context, workflowID string) ([]*ApprovalRequest, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var pending []*ApprovalRequest
	for _, request := range s.requests {
		if request.Status != ApprovalStatusPending {
			continue
		}
		if workflowID != "" && request.WorkflowID != workflowID {
			continue
		}
		pending = append(pending, request.Copy())
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID > pending[j].ID
		}
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	return pending, nil
}
