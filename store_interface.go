package chatflow

import "context"

// ExecutionStore is the registry of in-flight and completed workflow
// executions. Implementations must support concurrent insert, read and
// update without corruption; many runs share one store.
type ExecutionStore interface {
	// CreateExecution inserts a new execution record. The engine calls
	// this before the first step runs so the execution is retrievable
	// while in flight.
	CreateExecution(ctx context.Context, exec *WorkflowExecution) error

	// GetExecution retrieves an execution by id
	GetExecution(ctx context.Context, id string) (*WorkflowExecution, error)

	// UpdateExecution replaces the stored record
	UpdateExecution(ctx context.Context, exec *WorkflowExecution) error

	// GetStatus returns just the current status. The engine polls this
	// between steps to observe cancellation.
	GetStatus(ctx context.Context, id string) (ExecutionStatus, error)

	// Cancel flips the execution status to Cancelled and records the
	// completion timestamp. Returns false when the id is unknown. It does
	// not interrupt an in-flight step.
	Cancel(ctx context.Context, id string) (bool, error)

	// ListExecutions lists executions matching the filter
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*WorkflowExecution, error)
}

// ExecutionFilter defines filtering criteria for executions
type ExecutionFilter struct {
	WorkflowID string
	Status     *ExecutionStatus
	UserID     string
	Limit      int
}
