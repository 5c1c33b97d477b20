package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nicolaor/chatflow"
)

// MemoryStore implements chatflow.ExecutionStore with in-process storage.
// Executions are retained for the process lifetime; there is no eviction.
type MemoryStore struct {
	mu         sync.RWMutex
	executions map[string]*chatflow.WorkflowExecution
	order      []string
}

// NewMemoryStore creates a new in-memory execution registry
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*chatflow.WorkflowExecution),
	}
}

func (s *MemoryStore) CreateExecution(ctx context.Context, exec *chatflow.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[exec.ID]; exists {
		return fmt.Errorf("execution %s already exists", exec.ID)
	}

	s.executions[exec.ID] = exec.Clone()
	s.order = append(s.order, exec.ID)
	return nil
}

func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*chatflow.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, exists := s.executions[id]
	if !exists {
		return nil, fmt.Errorf("execution %s not found", id)
	}
	return exec.Clone(), nil
}

func (s *MemoryStore) UpdateExecution(ctx context.Context, exec *chatflow.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.executions[exec.ID]
	if !exists {
		return fmt.Errorf("execution %s not found", exec.ID)
	}

	incoming := exec.Clone()
	// Cancellation is sticky: a concurrent cancel must not be overwritten
	// by the running engine's progress updates.
	if stored.Status == chatflow.ExecutionStatusCancelled &&
		incoming.Status == chatflow.ExecutionStatusRunning {
		incoming.Status = chatflow.ExecutionStatusCancelled
		incoming.CompletedAt = stored.CompletedAt
	}
	s.executions[exec.ID] = incoming
	return nil
}

func (s *MemoryStore) GetStatus(ctx context.Context, id string) (chatflow.ExecutionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, exists := s.executions[id]
	if !exists {
		return "", fmt.Errorf("execution %s not found", id)
	}
	return exec.Status, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, exists := s.executions[id]
	if !exists || exec.Status.IsTerminal() {
		return false, nil
	}

	now := time.Now()
	exec.Status = chatflow.ExecutionStatusCancelled
	exec.CompletedAt = &now
	return true, nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, filter chatflow.ExecutionFilter) ([]*chatflow.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*chatflow.WorkflowExecution
	for _, id := range s.order {
		exec := s.executions[id]
		if filter.WorkflowID != "" && exec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != nil && exec.Status != *filter.Status {
			continue
		}
		if filter.UserID != "" && exec.UserID != filter.UserID {
			continue
		}

		out = append(out, exec.Clone())

		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}

	return out, nil
}
