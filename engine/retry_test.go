package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolaor/chatflow"
	"github.com/nicolaor/chatflow/capability"
	"github.com/nicolaor/chatflow/store"
)

func singleStepWorkflow(step chatflow.WorkflowStep) chatflow.WorkflowDefinition {
	return chatflow.WorkflowDefinition{
		ID:     "retry-test",
		Active: true,
		Steps:  []chatflow.WorkflowStep{step},
	}
}

func TestEngine_RetrySuccess(t *testing.T) {
	attemptCount := int32(0)

	reg := capability.NewRegistry()
	reg.Register("flaky", "op", func(_ context.Context, _ map[string]string) (string, error) {
		if atomic.AddInt32(&attemptCount, 1) < 3 {
			return "", errors.New("temporary failure")
		}
		return "done", nil
	})

	def := singleStepWorkflow(chatflow.WorkflowStep{
		ID: "a", Order: 1, Plugin: "flaky", Function: "op", MaxRetries: 3,
	})

	eng, _ := newTestEngine(t, []chatflow.WorkflowDefinition{def}, nil, reg)
	exec, err := eng.Run(context.Background(), def, "", nil)
	require.NoError(t, err)

	assert.Equal(t, chatflow.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attemptCount))

	step := exec.StepExecutions[0]
	assert.Equal(t, chatflow.StepStatusCompleted, step.Status)
	assert.Equal(t, 2, step.RetryCount) // 0-indexed, so retry 2 = 3rd try
}

func TestEngine_RetryLogReportsAttemptIndex(t *testing.T) {
	var buf bytes.Buffer

	reg := capability.NewRegistry()
	reg.Register("flaky", "op", func(_ context.Context, _ map[string]string) (string, error) {
		return "", errors.New("boom")
	})

	def := singleStepWorkflow(chatflow.WorkflowStep{
		ID: "a", Order: 1, Plugin: "flaky", Function: "op", MaxRetries: 1, IsOptional: true,
	})

	catalog, err := chatflow.NewCatalog(def)
	require.NoError(t, err)
	eng := New(
		catalog,
		chatflow.NewTriggerCatalog(),
		reg,
		store.NewMemoryStore(),
		WithLogger(zerolog.New(&buf)),
		WithConfig(testConfig()),
	)

	_, err = eng.Run(context.Background(), def, "", nil)
	require.NoError(t, err)

	// The retry event reports the zero-based index of the attempt that
	// just failed, matching the other step log sites
	var attempts []float64
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		if entry["event"] == chatflow.EventStepRetrying {
			attempts = append(attempts, entry["attempt"].(float64))
		}
	}
	require.Len(t, attempts, 1)
	assert.EqualValues(t, 0, attempts[0])
}

func TestEngine_RetryExhaustion(t *testing.T) {
	attemptCount := int32(0)

	reg := capability.NewRegistry()
	reg.Register("flaky", "op", func(_ context.Context, _ map[string]string) (string, error) {
		atomic.AddInt32(&attemptCount, 1)
		return "", errors.New("persistent failure")
	})

	def := singleStepWorkflow(chatflow.WorkflowStep{
		ID: "a", Order: 1, Name: "Flaky", Plugin: "flaky", Function: "op", MaxRetries: 2,
	})

	eng, _ := newTestEngine(t, []chatflow.WorkflowDefinition{def}, nil, reg)
	exec, err := eng.Run(context.Background(), def, "", nil)
	require.NoError(t, err)

	// Initial attempt + 2 retries
	assert.Equal(t, int32(3), atomic.LoadInt32(&attemptCount))
	assert.Equal(t, chatflow.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.Error, "Flaky")

	step := exec.StepExecutions[0]
	assert.Equal(t, chatflow.StepStatusFailed, step.Status)
	assert.Equal(t, 2, step.RetryCount)
	assert.Contains(t, step.Error, "persistent failure")
}

func TestEngine_FailureStopsLaterSteps(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register("flaky", "fail", func(_ context.Context, _ map[string]string) (string, error) {
		return "", errors.New("boom")
	})
	reg.Register("flaky", "ok", func(_ context.Context, _ map[string]string) (string, error) {
		return "ok", nil
	})

	def := chatflow.WorkflowDefinition{
		ID: "stop", Active: true,
		Steps: []chatflow.WorkflowStep{
			{ID: "a", Order: 1, Plugin: "flaky", Function: "fail"},
			{ID: "b", Order: 2, Plugin: "flaky", Function: "ok"},
		},
	}

	eng, _ := newTestEngine(t, []chatflow.WorkflowDefinition{def}, nil, reg)
	exec, err := eng.Run(context.Background(), def, "", nil)
	require.NoError(t, err)

	assert.Equal(t, chatflow.ExecutionStatusFailed, exec.Status)
	// The second step never got a record
	require.Len(t, exec.StepExecutions, 1)
}

func TestEngine_ExponentialBackoff(t *testing.T) {
	attemptTimes := make([]time.Time, 0, 3)
	attemptCount := int32(0)

	reg := capability.NewRegistry()
	reg.Register("flaky", "op", func(_ context.Context, _ map[string]string) (string, error) {
		attemptTimes = append(attemptTimes, time.Now())
		if atomic.AddInt32(&attemptCount, 1) < 3 {
			return "", errors.New("retry")
		}
		return "done", nil
	})

	def := singleStepWorkflow(chatflow.WorkflowStep{
		ID: "a", Order: 1, Plugin: "flaky", Function: "op", MaxRetries: 3,
	})

	eng, _ := newTestEngine(t, []chatflow.WorkflowDefinition{def}, nil, reg)
	eng.config.RetryBaseDelay = 100 * time.Millisecond

	exec, err := eng.Run(context.Background(), def, "", nil)
	require.NoError(t, err)
	assert.Equal(t, chatflow.ExecutionStatusCompleted, exec.Status)

	// Delays double: 100ms then 200ms
	require.Len(t, attemptTimes, 3)
	delay1 := attemptTimes[1].Sub(attemptTimes[0])
	delay2 := attemptTimes[2].Sub(attemptTimes[1])

	tolerance := 50 * time.Millisecond
	assert.InDelta(t, 100*time.Millisecond, delay1, float64(tolerance))
	assert.InDelta(t, 200*time.Millisecond, delay2, float64(tolerance))
}

func TestEngine_OptionalStepSkippedAfterExhaustion(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register("flaky", "fail", func(_ context.Context, _ map[string]string) (string, error) {
		return "", errors.New("boom")
	})
	reg.Register("flaky", "ok", func(_ context.Context, _ map[string]string) (string, error) {
		return "ok", nil
	})

	def := chatflow.WorkflowDefinition{
		ID: "optional", Active: true,
		Steps: []chatflow.WorkflowStep{
			{ID: "a", Order: 1, Plugin: "flaky", Function: "ok"},
			{ID: "b", Order: 2, Plugin: "flaky", Function: "fail", IsOptional: true, MaxRetries: 1},
			{ID: "c", Order: 3, Plugin: "flaky", Function: "ok"},
		},
	}

	eng, _ := newTestEngine(t, []chatflow.WorkflowDefinition{def}, nil, reg)
	exec, err := eng.Run(context.Background(), def, "", nil)
	require.NoError(t, err)

	// The optional failure degrades the run instead of failing it
	assert.Equal(t, chatflow.ExecutionStatusPartiallyCompleted, exec.Status)
	require.Len(t, exec.StepExecutions, 3)

	b, _ := exec.StepExecution("b")
	assert.Equal(t, chatflow.StepStatusSkipped, b.Status)
	assert.Contains(t, b.Error, "boom")

	c, _ := exec.StepExecution("c")
	assert.Equal(t, chatflow.StepStatusCompleted, c.Status)
}

func TestEngine_OnlyOptionalStepFails(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register("flaky", "fail", func(_ context.Context, _ map[string]string) (string, error) {
		return "", errors.New("boom")
	})

	def := singleStepWorkflow(chatflow.WorkflowStep{
		ID: "a", Order: 1, Plugin: "flaky", Function: "fail", IsOptional: true,
	})

	eng, _ := newTestEngine(t, []chatflow.WorkflowDefinition{def}, nil, reg)
	exec, err := eng.Run(context.Background(), def, "", nil)
	require.NoError(t, err)

	// An optional step exhausting its retries degrades the run rather
	// than failing it outright
	assert.Equal(t, chatflow.ExecutionStatusPartiallyCompleted, exec.Status)
	assert.NotEqual(t, chatflow.ExecutionStatusFailed, exec.Status)
	assert.Equal(t, chatflow.StepStatusSkipped, exec.StepExecutions[0].Status)
}

func TestEngine_StepTimeout(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register("slow", "op", func(ctx context.Context, _ map[string]string) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	def := singleStepWorkflow(chatflow.WorkflowStep{
		ID: "a", Order: 1, Plugin: "slow", Function: "op",
	})

	eng, _ := newTestEngine(t, []chatflow.WorkflowDefinition{def}, nil, reg)
	eng.config.DefaultStepTimeout = 100 * time.Millisecond

	exec, err := eng.Run(context.Background(), def, "", nil)
	require.NoError(t, err)

	assert.Equal(t, chatflow.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.StepExecutions[0].Error, "timed out")
}

func TestEngine_PanicConvertedToFailure(t *testing.T) {
	attemptCount := int32(0)

	reg := capability.NewRegistry()
	reg.Register("bad", "op", func(_ context.Context, _ map[string]string) (string, error) {
		atomic.AddInt32(&attemptCount, 1)
		panic("unexpected state")
	})

	def := singleStepWorkflow(chatflow.WorkflowStep{
		ID: "a", Order: 1, Plugin: "bad", Function: "op", MaxRetries: 1,
	})

	eng, _ := newTestEngine(t, []chatflow.WorkflowDefinition{def}, nil, reg)
	exec, err := eng.Run(context.Background(), def, "", nil)
	require.NoError(t, err)

	// Panics count as failed attempts and are retried
	assert.Equal(t, int32(2), atomic.LoadInt32(&attemptCount))
	assert.Equal(t, chatflow.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.StepExecutions[0].Error, "panicked")
}
