package chatflow

import (
	"fmt"
	"time"
)

// Error codes
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeCircularDependency = "CIRCULAR_DEPENDENCY"
	ErrCodeCapabilityNotFound = "CAPABILITY_NOT_FOUND"
	ErrCodeExecutionFailed    = "EXECUTION_FAILED"
	ErrCodeCancelled          = "CANCELLED"
	ErrCodePanic              = "PANIC"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// WorkflowError represents an error during workflow execution
type WorkflowError struct {
	Message   string         `json:"message"`
	Code      string         `json:"code"`
	Step      string         `json:"step,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s (step: %s)", e.Code, e.Message, e.Step)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewWorkflowError creates a new workflow error
func NewWorkflowError(code, message string) *WorkflowError {
	return &WorkflowError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// NewWorkflowErrorWithStep creates a new workflow error with step context
func NewWorkflowErrorWithStep(code, message, step string) *WorkflowError {
	return &WorkflowError{
		Message:   message,
		Code:      code,
		Step:      step,
		Timestamp: time.Now(),
	}
}

// CircularDependencyError is returned by the dependency resolver when a
// step's DependsOn edges form a cycle. It is fatal to starting a run and
// surfaces to the caller before any step executes.
type CircularDependencyError struct {
	StepID string
}

// Error implements the error interface
func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected at step %s", e.StepID)
}

// CapabilityNotFoundError indicates a step references an unregistered
// capability function. It fails the step per the retry policy.
type CapabilityNotFoundError struct {
	Plugin   string
	Function string
}

// Error implements the error interface
func (e *CapabilityNotFoundError) Error() string {
	return fmt.Sprintf("capability %s.%s not registered", e.Plugin, e.Function)
}

// StepExecutionError wraps a failure raised by the external capability
// during a step attempt
type StepExecutionError struct {
	StepID  string
	Attempt int
	Err     error
}

// Error implements the error interface
func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s failed (attempt %d): %v", e.StepID, e.Attempt, e.Err)
}

// Unwrap returns the underlying error
func (e *StepExecutionError) Unwrap() error {
	return e.Err
}
