// Package schedule fires workflows from cron expressions carried on
// schedule triggers.
package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nicolaor/chatflow"
)

// Runner executes a workflow on behalf of the scheduler. Satisfied by
// *engine.Engine.
type Runner interface {
	RunScheduled(ctx context.Context, def chatflow.WorkflowDefinition) (*chatflow.WorkflowExecution, error)
}

// Scheduler registers the active schedule triggers of a catalog with a
// cron runner and fires their workflows when due.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	catalog  *chatflow.Catalog
	triggers *chatflow.TriggerCatalog
	logger   zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// Option configures the scheduler
type Option func(*Scheduler)

// WithLogger sets the scheduler logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a scheduler over the given catalogs. Call Start to load
// the triggers and begin firing.
func New(runner Runner, catalog *chatflow.Catalog, triggers *chatflow.TriggerCatalog, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:     cron.New(),
		runner:   runner,
		catalog:  catalog,
		triggers: triggers,
		logger:   zerolog.Nop(),
		entries:  make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers every active schedule trigger and starts the cron
// runner. Triggers with invalid expressions or dangling workflow ids
// fail the whole start.
func (s *Scheduler) Start() error {
	for _, trigger := range s.triggers.ByType(chatflow.TriggerTypeSchedule) {
		if err := s.register(trigger); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info().Int("triggers", s.entryCount()).Msg("scheduler_started")
	return nil
}

// Stop stops the cron runner and waits for in-flight jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("scheduler_stopped")
}

// Register adds or replaces a single schedule trigger at runtime
func (s *Scheduler) Register(trigger chatflow.WorkflowTrigger) error {
	if trigger.Type != chatflow.TriggerTypeSchedule {
		return chatflow.NewWorkflowError(chatflow.ErrCodeValidation,
			fmt.Sprintf("trigger %s is not a schedule trigger", trigger.ID))
	}
	s.Unregister(trigger.ID)
	return s.register(trigger)
}

// Unregister removes a scheduled trigger. Unknown ids are ignored.
func (s *Scheduler) Unregister(triggerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[triggerID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, triggerID)
	}
}

func (s *Scheduler) register(trigger chatflow.WorkflowTrigger) error {
	if trigger.Schedule == "" {
		return chatflow.NewWorkflowError(chatflow.ErrCodeValidation,
			fmt.Sprintf("trigger %s has no cron expression", trigger.ID))
	}

	def, ok := s.catalog.Get(trigger.WorkflowID)
	if !ok {
		return chatflow.NewWorkflowError(chatflow.ErrCodeNotFound,
			fmt.Sprintf("trigger %s references unknown workflow %s", trigger.ID, trigger.WorkflowID))
	}

	entryID, err := s.cron.AddFunc(trigger.Schedule, func() {
		s.fire(trigger, def)
	})
	if err != nil {
		return chatflow.NewWorkflowError(chatflow.ErrCodeValidation,
			fmt.Sprintf("trigger %s has invalid cron expression %q: %v", trigger.ID, trigger.Schedule, err))
	}

	s.mu.Lock()
	s.entries[trigger.ID] = entryID
	s.mu.Unlock()

	s.logger.Debug().
		Str("trigger_id", trigger.ID).
		Str("workflow_id", trigger.WorkflowID).
		Str("schedule", trigger.Schedule).
		Msg("trigger_scheduled")
	return nil
}

func (s *Scheduler) fire(trigger chatflow.WorkflowTrigger, def chatflow.WorkflowDefinition) {
	s.logger.Info().
		Str("trigger_id", trigger.ID).
		Str("workflow_id", def.ID).
		Msg("schedule_fired")

	exec, err := s.runner.RunScheduled(context.Background(), def)
	if err != nil {
		s.logger.Error().Err(err).
			Str("trigger_id", trigger.ID).
			Str("workflow_id", def.ID).
			Msg("schedule_run_failed")
		return
	}

	s.logger.Info().
		Str("trigger_id", trigger.ID).
		Str("execution_id", exec.ID).
		Str("status", exec.Status.String()).
		Msg("schedule_run_finished")
}

func (s *Scheduler) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
