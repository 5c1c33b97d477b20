package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oliveagle/jsonpath"
	"github.com/rs/zerolog"

	"github.com/nicolaor/chatflow"
)

// Skip reasons recorded in step logs
const (
	skipReasonDependency = "dependency not satisfied"
	skipReasonCondition  = "condition not met"
	skipReasonOptional   = "optional step exhausted retries"
)

// runStep executes one step against the execution, mutating it in place:
// the step record is appended up front and updated through the attempt
// loop, and successful outputs are merged into the shared context via the
// step's output mappings.
func (e *Engine) runStep(
	ctx context.Context,
	exec *chatflow.WorkflowExecution,
	step chatflow.WorkflowStep,
	execLogger zerolog.Logger,
) *chatflow.WorkflowStepExecution {
	stepLogger := chatflow.StepLogger(execLogger, step.ID, step.Name)

	started := time.Now()
	stepExec := &chatflow.WorkflowStepExecution{
		ID:        uuid.New().String(),
		StepID:    step.ID,
		StepName:  step.Name,
		Status:    chatflow.StepStatusRunning,
		StartedAt: started,
	}
	exec.StepExecutions = append(exec.StepExecutions, stepExec)

	defer func() {
		completedAt := time.Now()
		stepExec.CompletedAt = &completedAt
		stepExec.DurationMs = completedAt.Sub(started).Milliseconds()
	}()

	// Dependency check: every dependency must have completed in this run.
	// An unmet dependency skips the step; it is not an error.
	for _, depID := range step.DependsOn {
		dep, ok := exec.StepExecution(depID)
		if !ok || dep.Status != chatflow.StepStatusCompleted {
			stepExec.Status = chatflow.StepStatusSkipped
			chatflow.LogStepSkipped(e.logger, exec.ID, step.ID, skipReasonDependency)
			return stepExec
		}
	}

	// Condition check: a missing field or failing comparison skips the step
	if !chatflow.EvaluateCondition(step.Condition, exec.Context) {
		stepExec.Status = chatflow.StepStatusSkipped
		chatflow.LogStepSkipped(e.logger, exec.ID, step.ID, skipReasonCondition)
		return stepExec
	}

	inputs := chatflow.ResolveParameters(step.Parameters, exec.Context)
	stepExec.Inputs = inputs

	timeout := e.config.DefaultStepTimeout
	if step.TimeoutSeconds > 0 {
		timeout = time.Duration(step.TimeoutSeconds) * time.Second
	}

	var lastErr error

	for attempt := 0; attempt <= step.MaxRetries; attempt++ {
		stepExec.RetryCount = attempt
		stepExec.Status = chatflow.StepStatusRunning

		stepLogger.Info().
			Str("event", chatflow.EventStepStarted).
			Int("attempt", attempt).
			Msg("Invoking capability")

		result, err := e.invoke(ctx, step, inputs, timeout, stepLogger)
		if err == nil {
			outputs := parseOutputs(result)
			stepExec.Outputs = outputs
			stepExec.Status = chatflow.StepStatusCompleted

			applyOutputMappings(step, outputs, exec.Context)
			exec.FinalOutputs = outputs

			stepLogger.Info().
				Str("event", chatflow.EventStepCompleted).
				Int("attempts", attempt+1).
				Msg("Step completed")
			return stepExec
		}

		lastErr = &chatflow.StepExecutionError{StepID: step.ID, Attempt: attempt, Err: err}
		stepExec.Error = err.Error()

		stepLogger.Error().
			Str("event", chatflow.EventStepFailed).
			Err(err).
			Int("attempt", attempt).
			Msg("Step attempt failed")

		if attempt < step.MaxRetries {
			delay := chatflow.Backoff(e.config.RetryBaseDelay, attempt)
			stepExec.Status = chatflow.StepStatusRetrying
			chatflow.LogStepRetrying(e.logger, exec.ID, step.ID, attempt, delay)
			time.Sleep(delay)
		}
	}

	// Retries exhausted. Optional steps degrade to a skip with the error
	// retained; anything else fails the whole run.
	if step.IsOptional {
		stepExec.Status = chatflow.StepStatusSkipped
		chatflow.LogStepSkipped(e.logger, exec.ID, step.ID, skipReasonOptional)
		return stepExec
	}

	stepExec.Status = chatflow.StepStatusFailed
	exec.Status = chatflow.ExecutionStatusFailed
	exec.Error = fmt.Sprintf("step %s failed: %v", step.Name, lastErr)
	return stepExec
}

// invoke calls the external capability for one attempt, bounding it with
// the step timeout and converting panics into errors
func (e *Engine) invoke(
	ctx context.Context,
	step chatflow.WorkflowStep,
	inputs map[string]string,
	timeout time.Duration,
	stepLogger zerolog.Logger,
) (result string, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			stepLogger.Error().Interface("panic", r).Msg("Capability panicked")
			err = fmt.Errorf("capability panicked: %v", r)
		}
	}()

	result, err = e.caps.Invoke(attemptCtx, step.Plugin, step.Function, inputs)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("step timed out after %s: %w", timeout, err)
	}
	return result, err
}

// parseOutputs wraps a capability result in the standard envelope. A result
// that looks like a JSON object is parsed and its keys merged over the
// envelope; anything else stays a single result value.
func parseOutputs(result string) map[string]any {
	outputs := map[string]any{
		"result":    result,
		"success":   true,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	trimmed := strings.TrimSpace(result)
	if strings.HasPrefix(trimmed, "{") {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			for k, v := range parsed {
				outputs[k] = v
			}
		}
	}

	return outputs
}

// applyOutputMappings copies mapped outputs into the execution context.
// Output keys beginning with "$" are resolved as JSONPath expressions
// against the parsed outputs; missing keys are ignored.
func applyOutputMappings(step chatflow.WorkflowStep, outputs map[string]any, execCtx chatflow.Context) {
	for outputKey, contextKey := range step.OutputMappings {
		if strings.HasPrefix(outputKey, "$") {
			if val, err := jsonpath.JsonPathLookup(outputs, outputKey); err == nil {
				execCtx.SetAny(contextKey, val)
			}
			continue
		}
		if val, ok := outputs[outputKey]; ok {
			execCtx.SetAny(contextKey, val)
		}
	}
}
