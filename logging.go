package chatflow

import (
	"time"

	"github.com/rs/zerolog"
)

// Log event names
const (
	// Execution-level events
	EventExecutionStarted   = "execution_started"
	EventExecutionCompleted = "execution_completed"
	EventExecutionFailed    = "execution_failed"
	EventExecutionCancelled = "execution_cancelled"

	// Step-level events
	EventStepStarted   = "step_started"
	EventStepRetrying  = "step_retrying"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
	EventStepSkipped   = "step_skipped"

	// Trigger events
	EventTriggerMatched = "trigger_matched"

	// Registry events
	EventRegistryError = "registry_error"
)

// LogExecutionStarted logs when an execution starts
func LogExecutionStarted(logger zerolog.Logger, executionID, workflowID, userID string) {
	logger.Info().
		Str("event", EventExecutionStarted).
		Str("execution_id", executionID).
		Str("workflow_id", workflowID).
		Str("user_id", userID).
		Msg("Workflow execution started")
}

// LogExecutionCompleted logs a finished execution with its final status
func LogExecutionCompleted(logger zerolog.Logger, executionID string, status ExecutionStatus, duration time.Duration) {
	logger.Info().
		Str("event", EventExecutionCompleted).
		Str("execution_id", executionID).
		Str("status", status.String()).
		Dur("duration", duration).
		Msg("Workflow execution finished")
}

// LogExecutionFailed logs execution failure
func LogExecutionFailed(logger zerolog.Logger, executionID string, err error) {
	logger.Error().
		Str("event", EventExecutionFailed).
		Str("execution_id", executionID).
		Err(err).
		Msg("Workflow execution failed")
}

// LogExecutionCancelled logs execution cancellation
func LogExecutionCancelled(logger zerolog.Logger, executionID string) {
	logger.Warn().
		Str("event", EventExecutionCancelled).
		Str("execution_id", executionID).
		Msg("Workflow execution cancelled")
}

// LogStepRetrying logs when a step is about to be retried
func LogStepRetrying(logger zerolog.Logger, executionID, stepID string, attempt int, delay time.Duration) {
	logger.Warn().
		Str("event", EventStepRetrying).
		Str("execution_id", executionID).
		Str("step_id", stepID).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("Step retrying")
}

// LogStepSkipped logs when a step is skipped
func LogStepSkipped(logger zerolog.Logger, executionID, stepID, reason string) {
	logger.Info().
		Str("event", EventStepSkipped).
		Str("execution_id", executionID).
		Str("step_id", stepID).
		Str("reason", reason).
		Msg("Step skipped")
}

// LogTriggerMatched logs a trigger match
func LogTriggerMatched(logger zerolog.Logger, triggerID, workflowID string, priority int) {
	logger.Debug().
		Str("event", EventTriggerMatched).
		Str("trigger_id", triggerID).
		Str("workflow_id", workflowID).
		Int("priority", priority).
		Msg("Trigger matched")
}

// ExecutionLogger creates a logger enriched with execution context
func ExecutionLogger(baseLogger zerolog.Logger, executionID, workflowID string) zerolog.Logger {
	return baseLogger.With().
		Str("execution_id", executionID).
		Str("workflow_id", workflowID).
		Logger()
}

// StepLogger creates a logger enriched with step context
func StepLogger(executionLogger zerolog.Logger, stepID, stepName string) zerolog.Logger {
	return executionLogger.With().
		Str("step_id", stepID).
		Str("step_name", stepName).
		Logger()
}
