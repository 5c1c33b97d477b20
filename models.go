package chatflow

import (
	"time"
)

// ExecutionStatus represents the current state of a workflow execution
type ExecutionStatus string

const (
	ExecutionStatusNotStarted         ExecutionStatus = "NOT_STARTED"
	ExecutionStatusRunning            ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted          ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed             ExecutionStatus = "FAILED"
	ExecutionStatusPartiallyCompleted ExecutionStatus = "PARTIALLY_COMPLETED"
	ExecutionStatusCancelled          ExecutionStatus = "CANCELLED"
)

// IsTerminal returns true if the status is a final state
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed,
		ExecutionStatusPartiallyCompleted, ExecutionStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation
func (s ExecutionStatus) String() string {
	return string(s)
}

// StepStatus represents the current state of a step execution
type StepStatus string

const (
	StepStatusNotStarted StepStatus = "NOT_STARTED"
	StepStatusRunning    StepStatus = "RUNNING"
	StepStatusCompleted  StepStatus = "COMPLETED"
	StepStatusFailed     StepStatus = "FAILED"
	StepStatusSkipped    StepStatus = "SKIPPED"
	StepStatusRetrying   StepStatus = "RETRYING"
)

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// String returns the string representation
func (s StepStatus) String() string {
	return string(s)
}

// TriggerType classifies how a trigger fires
type TriggerType string

const (
	TriggerTypeKeyword  TriggerType = "KEYWORD"
	TriggerTypePattern  TriggerType = "PATTERN"
	TriggerTypeIntent   TriggerType = "INTENT"
	TriggerTypeSchedule TriggerType = "SCHEDULE"
	TriggerTypeEvent    TriggerType = "EVENT"
)

// String returns the string representation
func (t TriggerType) String() string {
	return string(t)
}

// ConditionType classifies a step condition
type ConditionType string

const (
	ConditionTypeSuccess  ConditionType = "SUCCESS"
	ConditionTypeContains ConditionType = "CONTAINS"
	ConditionTypeEquals   ConditionType = "EQUALS"
	ConditionTypeCustom   ConditionType = "CUSTOM"
)

// ConditionOperator is the closed set of comparison operators for step
// conditions. An unknown operator evaluates as "always true".
type ConditionOperator string

const (
	OperatorEquals   ConditionOperator = "EQUALS"
	OperatorContains ConditionOperator = "CONTAINS"
	OperatorGreater  ConditionOperator = "GREATER"
	OperatorLess     ConditionOperator = "LESS"
)

// WorkflowStepCondition gates execution of a step on an execution context value
type WorkflowStepCondition struct {
	Type     ConditionType     `json:"type"`
	Field    string            `json:"field"`
	Value    string            `json:"value"`
	Operator ConditionOperator `json:"operator"`
}

// WorkflowStep is a single unit of work within a workflow, bound to one
// external capability invocation. Immutable once its workflow is registered.
type WorkflowStep struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
	Name  string `json:"name"`

	// Capability identity
	Plugin   string `json:"plugin"`
	Function string `json:"function"`

	// Parameter values may contain {{key}} placeholders resolved from
	// the execution context at run time.
	Parameters map[string]string `json:"parameters,omitempty"`

	DependsOn []string `json:"dependsOn,omitempty"`

	// OutputMappings copies parsed step outputs into the execution
	// context: outputKey -> contextKey. An output key starting with "$"
	// is evaluated as a JSONPath expression against the parsed outputs.
	OutputMappings map[string]string `json:"outputMappings,omitempty"`

	Condition  *WorkflowStepCondition `json:"condition,omitempty"`
	IsOptional bool                   `json:"isOptional"`

	MaxRetries     int `json:"maxRetries"`
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// WorkflowDefinition is a named DAG of steps. Definitions are created at
// process start from a fixed catalog and never mutated at runtime.
type WorkflowDefinition struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Steps       []WorkflowStep    `json:"steps"`
	Defaults    map[string]string `json:"defaults,omitempty"`
	Active      bool              `json:"active"`
}

// Step retrieves a step by ID
func (d WorkflowDefinition) Step(stepID string) (WorkflowStep, bool) {
	for _, s := range d.Steps {
		if s.ID == stepID {
			return s, true
		}
	}
	return WorkflowStep{}, false
}

// WorkflowTrigger maps a user message (or schedule/event) to a workflow
type WorkflowTrigger struct {
	ID         string            `json:"id"`
	WorkflowID string            `json:"workflowId"`
	Type       TriggerType       `json:"type"`
	Keywords   []string          `json:"keywords,omitempty"`
	Pattern    string            `json:"pattern,omitempty"`
	Conditions map[string]string `json:"conditions,omitempty"`

	// Schedule holds a cron expression for SCHEDULE triggers
	Schedule string `json:"schedule,omitempty"`

	Active   bool `json:"active"`
	Priority int  `json:"priority"`
}

// WorkflowExecution is one concrete run of a workflow, with its own status,
// step records and shared context. Created when a trigger fires; mutated by
// the engine throughout execution.
type WorkflowExecution struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflowId"`
	UserID     string `json:"userId,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`

	Status ExecutionStatus `json:"status"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	StepExecutions []*WorkflowStepExecution `json:"stepExecutions"`

	// Context is the execution-scoped map used to pass values between
	// steps and to resolve placeholders. Keys written by one step's
	// output mapping are visible to all subsequently executed steps.
	Context Context `json:"context"`

	Error string `json:"error,omitempty"`

	// FinalOutputs holds the parsed outputs of the last completed step
	FinalOutputs map[string]any `json:"finalOutputs,omitempty"`

	// Message is the originating user message text
	Message string `json:"message,omitempty"`
}

// StepExecution returns the recorded execution for a step, if any
func (e *WorkflowExecution) StepExecution(stepID string) (*WorkflowStepExecution, bool) {
	for _, se := range e.StepExecutions {
		if se.StepID == stepID {
			return se, true
		}
	}
	return nil, false
}

// Clone creates a deep copy of the execution
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	cp := *e
	cp.StepExecutions = make([]*WorkflowStepExecution, len(e.StepExecutions))
	for i, se := range e.StepExecutions {
		seCopy := *se
		seCopy.Inputs = copyStringMap(se.Inputs)
		seCopy.Outputs = copyAnyMap(se.Outputs)
		cp.StepExecutions[i] = &seCopy
	}
	cp.Context = e.Context.Clone()
	cp.FinalOutputs = copyAnyMap(e.FinalOutputs)
	return &cp
}

// WorkflowStepExecution tracks a single step within an execution. One record
// per step regardless of retry count; retries are tracked in RetryCount.
type WorkflowStepExecution struct {
	ID       string `json:"id"`
	StepID   string `json:"stepId"`
	StepName string `json:"stepName"`

	Status StepStatus `json:"status"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Inputs  map[string]string `json:"inputs,omitempty"`
	Outputs map[string]any    `json:"outputs,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retryCount"`
	DurationMs int64  `json:"durationMs"`
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
