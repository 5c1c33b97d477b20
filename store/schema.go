package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nicolaor/chatflow"
)

// DynamoDB schema constants for single-table design
const (
	// Table attributes
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrGSI1PK     = "GSI1PK"
	AttrGSI1SK     = "GSI1SK"
	AttrEntityType = "entity_type"
	AttrStatus     = "status"
	AttrTTL        = "ttl"

	// Entity types
	EntityTypeExecution = "WorkflowExecution"

	// Index names
	IndexWorkflowStatus = "GSI1"
)

// Execution keys: PK=EXEC#{id}, SK=META
func executionPK(id string) string {
	return fmt.Sprintf("EXEC#%s", id)
}

func executionSK() string {
	return "META"
}

func executionGSI1PK(workflowID, status string) string {
	return fmt.Sprintf("WF#%s#STATUS#%s", workflowID, status)
}

func executionGSI1SK(startedAt time.Time) string {
	return startedAt.Format(time.RFC3339)
}

// executionRecord is the DynamoDB item shape for a workflow execution.
// Step records, context and outputs are stored as JSON blobs so the
// tagged context values round-trip through their plain JSON form.
type executionRecord struct {
	ExecutionID string          `dynamodbav:"execution_id"`
	WorkflowID  string          `dynamodbav:"workflow_id"`
	UserID      string          `dynamodbav:"user_id,omitempty"`
	SessionID   string          `dynamodbav:"session_id,omitempty"`
	Status      string          `dynamodbav:"status"`
	StartedAt   time.Time       `dynamodbav:"started_at"`
	CompletedAt *time.Time      `dynamodbav:"completed_at,omitempty"`
	Steps       json.RawMessage `dynamodbav:"steps,omitempty"`
	Context     json.RawMessage `dynamodbav:"context,omitempty"`
	Error       string          `dynamodbav:"error,omitempty"`
	Outputs     json.RawMessage `dynamodbav:"outputs,omitempty"`
	Message     string          `dynamodbav:"message,omitempty"`
	TTL         int64           `dynamodbav:"ttl,omitempty"`
}

func toRecord(exec *chatflow.WorkflowExecution) (*executionRecord, error) {
	steps, err := json.Marshal(exec.StepExecutions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step executions: %w", err)
	}
	execCtx, err := json.Marshal(exec.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution context: %w", err)
	}
	var outputs json.RawMessage
	if exec.FinalOutputs != nil {
		outputs, err = json.Marshal(exec.FinalOutputs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal final outputs: %w", err)
		}
	}

	return &executionRecord{
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		UserID:      exec.UserID,
		SessionID:   exec.SessionID,
		Status:      string(exec.Status),
		StartedAt:   exec.StartedAt,
		CompletedAt: exec.CompletedAt,
		Steps:       steps,
		Context:     execCtx,
		Error:       exec.Error,
		Outputs:     outputs,
		Message:     exec.Message,
	}, nil
}

func fromRecord(rec *executionRecord) (*chatflow.WorkflowExecution, error) {
	exec := &chatflow.WorkflowExecution{
		ID:          rec.ExecutionID,
		WorkflowID:  rec.WorkflowID,
		UserID:      rec.UserID,
		SessionID:   rec.SessionID,
		Status:      chatflow.ExecutionStatus(rec.Status),
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		Error:       rec.Error,
		Message:     rec.Message,
	}

	if len(rec.Steps) > 0 {
		if err := json.Unmarshal(rec.Steps, &exec.StepExecutions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step executions: %w", err)
		}
	}
	if len(rec.Context) > 0 {
		if err := json.Unmarshal(rec.Context, &exec.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
		}
	}
	if len(rec.Outputs) > 0 {
		if err := json.Unmarshal(rec.Outputs, &exec.FinalOutputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal final outputs: %w", err)
		}
	}

	return exec, nil
}
