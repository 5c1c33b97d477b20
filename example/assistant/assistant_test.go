package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolaor/chatflow"
	"github.com/nicolaor/chatflow/engine"
	"github.com/nicolaor/chatflow/store"
)

func newAssistantEngine(t *testing.T) *engine.Engine {
	t.Helper()

	catalog, err := NewCatalog()
	require.NoError(t, err)

	return engine.New(
		catalog,
		NewTriggers(),
		NewRegistry(),
		store.NewMemoryStore(),
		engine.WithLogger(zerolog.Nop()),
		engine.WithConfig(engine.Config{
			RetryBaseDelay:     10 * time.Millisecond,
			DefaultStepTimeout: 5 * time.Second,
		}),
	)
}

func TestAssistant_MeetingScheduling(t *testing.T) {
	eng := newAssistantEngine(t)

	exec, matched, err := eng.HandleMessage(context.Background(),
		"please schedule a meeting with alice@example.com tomorrow at 3:30 PM", nil)
	require.NoError(t, err)
	require.True(t, matched)

	assert.Equal(t, "meeting-scheduling", exec.WorkflowID)
	assert.Equal(t, chatflow.ExecutionStatusCompleted, exec.Status)
	require.Len(t, exec.StepExecutions, 3)

	book, ok := exec.StepExecution("book-slot")
	require.True(t, ok)
	assert.Equal(t, chatflow.StepStatusCompleted, book.Status)
	assert.Equal(t, "alice@example.com", book.Inputs["attendee"])
	assert.True(t, exec.Context.Has("calendar_event_id"))

	invite, ok := exec.StepExecution("send-invite")
	require.True(t, ok)
	assert.Equal(t, chatflow.StepStatusCompleted, invite.Status)
	assert.Contains(t, invite.Inputs["body"], "3:30 PM")
}

func TestAssistant_FollowUpRequiresEmailChannel(t *testing.T) {
	eng := newAssistantEngine(t)

	exec, matched, err := eng.HandleMessage(context.Background(),
		"follow up with bob@example.com", map[string]string{"channel": "email"})
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, "email-follow-up", exec.WorkflowID)
	assert.Equal(t, chatflow.ExecutionStatusCompleted, exec.Status)

	send, ok := exec.StepExecution("send")
	require.True(t, ok)
	assert.Equal(t, chatflow.StepStatusCompleted, send.Status)
	assert.Equal(t, "bob@example.com", send.Inputs["to"])

	// Same message on another channel triggers nothing
	_, matched, err = eng.HandleMessage(context.Background(),
		"follow up with bob@example.com", map[string]string{"channel": "voice"})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestAssistant_DailySummaryRunsScheduled(t *testing.T) {
	eng := newAssistantEngine(t)

	catalog, err := NewCatalog()
	require.NoError(t, err)
	def, ok := catalog.Get("daily-summary")
	require.True(t, ok)

	exec, err := eng.RunScheduled(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, chatflow.ExecutionStatusCompleted, exec.Status)

	digest, ok := exec.StepExecution("digest")
	require.True(t, ok)
	assert.Contains(t, digest.Outputs["result"], "Unread mail")
}

func TestAssistant_UnmatchedMessage(t *testing.T) {
	eng := newAssistantEngine(t)

	_, matched, err := eng.HandleMessage(context.Background(), "what's the weather like", nil)
	require.NoError(t, err)
	assert.False(t, matched)
}
