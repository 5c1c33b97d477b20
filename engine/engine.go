// Package engine drives workflow executions: trigger detection, dependency
// ordered step execution with retry and backoff, and execution bookkeeping.
package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nicolaor/chatflow"
	"github.com/nicolaor/chatflow/capability"
)

// Context keys seeded by the engine before the first step runs
const (
	ContextKeyUserMessage = "user_message"
	ContextKeyTriggeredAt = "triggered_at"
	ContextKeyTriggerType = "trigger_type"
)

// Config holds engine configuration
type Config struct {
	// RetryBaseDelay is the backoff base: a failed attempt n (zero-based)
	// waits RetryBaseDelay * 2^n before the next try
	RetryBaseDelay time.Duration

	// DefaultStepTimeout applies to steps that declare no timeout
	DefaultStepTimeout time.Duration
}

// DefaultConfig provides sensible defaults
var DefaultConfig = Config{
	RetryBaseDelay:     1 * time.Second,
	DefaultStepTimeout: 30 * time.Second,
}

// Engine orchestrates workflow executions. Each run executes its steps
// strictly sequentially in dependency order; many runs may be started
// concurrently, each owning an independent execution record.
type Engine struct {
	catalog   *chatflow.Catalog
	triggers  *chatflow.TriggerCatalog
	matcher   *chatflow.TriggerMatcher
	resolver  *chatflow.DependencyResolver
	extractor *chatflow.ParameterExtractor
	caps      capability.Invoker
	store     chatflow.ExecutionStore
	logger    zerolog.Logger
	config    Config
}

// Option configures the engine
type Option func(*Engine)

// WithLogger sets a custom logger for the engine
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig sets a custom configuration for the engine
func WithConfig(config Config) Option {
	return func(e *Engine) {
		e.config = config
	}
}

// New creates a workflow engine over the given catalogs, capability
// registry and execution store. Without options it logs to stdout at Info
// level and uses DefaultConfig.
func New(
	catalog *chatflow.Catalog,
	triggers *chatflow.TriggerCatalog,
	caps capability.Invoker,
	store chatflow.ExecutionStore,
	opts ...Option,
) *Engine {
	defaultLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)

	e := &Engine{
		catalog:   catalog,
		triggers:  triggers,
		matcher:   chatflow.NewTriggerMatcher(triggers),
		resolver:  chatflow.NewDependencyResolver(),
		extractor: chatflow.NewParameterExtractor(),
		caps:      caps,
		store:     store,
		logger:    defaultLogger,
		config:    DefaultConfig,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// DetectTrigger returns the highest-priority active trigger matching the
// message, if any
func (e *Engine) DetectTrigger(message string, convCtx map[string]string) (chatflow.WorkflowTrigger, bool) {
	trigger, ok := e.matcher.Match(message, convCtx)
	if ok {
		chatflow.LogTriggerMatched(e.logger, trigger.ID, trigger.WorkflowID, trigger.Priority)
	}
	return trigger, ok
}

// AvailableWorkflows returns the active workflow definitions
func (e *Engine) AvailableWorkflows() []chatflow.WorkflowDefinition {
	return e.catalog.Active()
}

// GetExecution retrieves an execution by id
func (e *Engine) GetExecution(ctx context.Context, id string) (*chatflow.WorkflowExecution, error) {
	return e.store.GetExecution(ctx, id)
}

// ListExecutions lists executions matching the filter
func (e *Engine) ListExecutions(ctx context.Context, filter chatflow.ExecutionFilter) ([]*chatflow.WorkflowExecution, error) {
	return e.store.ListExecutions(ctx, filter)
}

// Cancel marks an execution cancelled. Cancellation is cooperative: the
// run loop checks status before starting each step, so at most one step
// keeps running to completion after a cancel request.
func (e *Engine) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := e.store.Cancel(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		chatflow.LogExecutionCancelled(e.logger, id)
	}
	return ok, nil
}

// HandleMessage is the conversational entry point: detect a trigger, look
// up its workflow and run it. The second return value is false when no
// trigger matched.
func (e *Engine) HandleMessage(ctx context.Context, message string, convCtx map[string]string) (*chatflow.WorkflowExecution, bool, error) {
	trigger, ok := e.DetectTrigger(message, convCtx)
	if !ok {
		return nil, false, nil
	}

	def, ok := e.catalog.Get(trigger.WorkflowID)
	if !ok {
		return nil, false, chatflow.NewWorkflowError(chatflow.ErrCodeNotFound,
			fmt.Sprintf("trigger %s references unknown workflow %s", trigger.ID, trigger.WorkflowID))
	}

	exec, err := e.run(ctx, def, message, convCtx, trigger.Type)
	return exec, true, err
}

// HandleEvent fires the highest-priority active event trigger whose
// declared event name matches. The second return value is false when no
// trigger is bound to the event.
func (e *Engine) HandleEvent(ctx context.Context, event string, convCtx map[string]string) (*chatflow.WorkflowExecution, bool, error) {
	var best chatflow.WorkflowTrigger
	found := false
	for _, tr := range e.triggers.ByType(chatflow.TriggerTypeEvent) {
		if tr.Conditions["event"] != event {
			continue
		}
		if !found || tr.Priority > best.Priority {
			best = tr
			found = true
		}
	}
	if !found {
		return nil, false, nil
	}

	def, ok := e.catalog.Get(best.WorkflowID)
	if !ok {
		return nil, false, chatflow.NewWorkflowError(chatflow.ErrCodeNotFound,
			fmt.Sprintf("trigger %s references unknown workflow %s", best.ID, best.WorkflowID))
	}

	exec, err := e.run(ctx, def, "", convCtx, chatflow.TriggerTypeEvent)
	return exec, true, err
}

// RunScheduled executes a workflow fired by its cron schedule
func (e *Engine) RunScheduled(ctx context.Context, def chatflow.WorkflowDefinition) (*chatflow.WorkflowExecution, error) {
	return e.run(ctx, def, "", nil, chatflow.TriggerTypeSchedule)
}

// Run executes the workflow for the given message. It returns an error
// only for pre-flight failures (a dependency cycle, or the registry
// rejecting the insert); all step-level failures are described on the
// returned execution instead of propagating as errors.
func (e *Engine) Run(
	ctx context.Context,
	def chatflow.WorkflowDefinition,
	message string,
	convCtx map[string]string,
) (*chatflow.WorkflowExecution, error) {
	return e.run(ctx, def, message, convCtx, "")
}

func (e *Engine) run(
	ctx context.Context,
	def chatflow.WorkflowDefinition,
	message string,
	convCtx map[string]string,
	triggerType chatflow.TriggerType,
) (*chatflow.WorkflowExecution, error) {
	ordered, err := e.resolver.Sort(def.Steps)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exec := &chatflow.WorkflowExecution{
		ID:             uuid.New().String(),
		WorkflowID:     def.ID,
		UserID:         convCtx["user_id"],
		SessionID:      convCtx["session_id"],
		Status:         chatflow.ExecutionStatusRunning,
		StartedAt:      now,
		StepExecutions: []*chatflow.WorkflowStepExecution{},
		Context:        e.seedContext(def, message, now, triggerType),
		Message:        message,
	}

	// Register before starting so the execution is retrievable in flight
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to register execution: %w", err)
	}

	chatflow.LogExecutionStarted(e.logger, exec.ID, exec.WorkflowID, exec.UserID)

	e.execute(ctx, exec, ordered)
	return exec, nil
}

// seedContext builds the initial execution context from the workflow's
// default parameters, the originating message, the trigger timestamp and
// anything the parameter extractor recognizes in the message.
func (e *Engine) seedContext(def chatflow.WorkflowDefinition, message string, now time.Time, triggerType chatflow.TriggerType) chatflow.Context {
	execCtx := chatflow.NewContext()
	for k, v := range def.Defaults {
		execCtx.Set(k, chatflow.StringValue(v))
	}
	execCtx.Set(ContextKeyUserMessage, chatflow.StringValue(message))
	execCtx.Set(ContextKeyTriggeredAt, chatflow.TimeValue(now))
	if triggerType != "" {
		execCtx.Set(ContextKeyTriggerType, chatflow.StringValue(string(triggerType)))
	}
	e.extractor.ExtractInto(message, execCtx)
	return execCtx
}

// execute runs the ordered steps sequentially, then settles the final
// status. Panics from anywhere in the run are converted into a Failed
// execution rather than propagating to the caller.
func (e *Engine) execute(ctx context.Context, exec *chatflow.WorkflowExecution, ordered []chatflow.WorkflowStep) {
	execLogger := chatflow.ExecutionLogger(e.logger, exec.ID, exec.WorkflowID)

	defer func() {
		if r := recover(); r != nil {
			execLogger.Error().Interface("panic", r).Msg("Execution panicked")
			exec.Status = chatflow.ExecutionStatusFailed
			exec.Error = fmt.Sprintf("unexpected failure: %v", r)
			e.finish(ctx, exec, execLogger)
		}
	}()

	for _, step := range ordered {
		if exec.Status != chatflow.ExecutionStatusRunning {
			break
		}
		if e.cancelled(ctx, exec.ID) {
			execLogger.Warn().Msg("Cancellation observed, stopping run")
			exec.Status = chatflow.ExecutionStatusCancelled
			break
		}

		e.runStep(ctx, exec, step, execLogger)

		if err := e.store.UpdateExecution(ctx, exec); err != nil {
			execLogger.Error().
				Str("event", chatflow.EventRegistryError).
				Err(err).
				Msg("Failed to persist execution progress")
		}
	}

	if exec.Status == chatflow.ExecutionStatusRunning {
		exec.Status = settleStatus(exec.StepExecutions)
	}

	e.finish(ctx, exec, execLogger)
}

// cancelled checks the registry for an externally requested cancellation,
// or the caller's context being done
func (e *Engine) cancelled(ctx context.Context, id string) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}

	status, err := e.store.GetStatus(ctx, id)
	return err == nil && status == chatflow.ExecutionStatusCancelled
}

func (e *Engine) finish(ctx context.Context, exec *chatflow.WorkflowExecution, execLogger zerolog.Logger) {
	completedAt := time.Now()
	exec.CompletedAt = &completedAt

	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		execLogger.Error().
			Str("event", chatflow.EventRegistryError).
			Err(err).
			Msg("Failed to persist final execution state")
	}

	chatflow.LogExecutionCompleted(e.logger, exec.ID, exec.Status, completedAt.Sub(exec.StartedAt))
}

// settleStatus aggregates step outcomes into the final execution status.
// Only a truly Failed step fails the run. An optional step that exhausted
// its retries (Skipped with an error recorded) degrades the run to
// PartiallyCompleted; steps skipped for unmet dependencies or conditions
// carry no error and do not count against the run.
func settleStatus(steps []*chatflow.WorkflowStepExecution) chatflow.ExecutionStatus {
	anyFailed := false
	anyDegraded := false
	for _, se := range steps {
		switch {
		case se.Status == chatflow.StepStatusFailed:
			anyFailed = true
		case se.Status == chatflow.StepStatusSkipped && se.Error != "":
			anyDegraded = true
		}
	}

	switch {
	case anyFailed:
		return chatflow.ExecutionStatusFailed
	case anyDegraded:
		return chatflow.ExecutionStatusPartiallyCompleted
	default:
		return chatflow.ExecutionStatusCompleted
	}
}
