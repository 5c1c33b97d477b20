package chatflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_KeywordCaseInsensitive(t *testing.T) {
	catalog := NewTriggerCatalog(WorkflowTrigger{
		ID:         "t1",
		WorkflowID: "wf1",
		Type:       TriggerTypeKeyword,
		Keywords:   []string{"schedule a meeting"},
		Active:     true,
		Priority:   1,
	})
	matcher := NewTriggerMatcher(catalog)

	trigger, ok := matcher.Match("Can you SCHEDULE A MEETING for me?", nil)
	require.True(t, ok)
	assert.Equal(t, "t1", trigger.ID)

	_, ok = matcher.Match("what time is it", nil)
	assert.False(t, ok)
}

func TestMatcher_Pattern(t *testing.T) {
	catalog := NewTriggerCatalog(WorkflowTrigger{
		ID:         "t1",
		WorkflowID: "wf1",
		Type:       TriggerTypePattern,
		Pattern:    `meet(ing)?\s+with\s+\S+@\S+`,
		Active:     true,
		Priority:   1,
	})
	matcher := NewTriggerMatcher(catalog)

	_, ok := matcher.Match("set up a meeting with alice@example.com tomorrow", nil)
	assert.True(t, ok)

	_, ok = matcher.Match("meeting with nobody", nil)
	assert.False(t, ok)
}

func TestMatcher_InvalidPatternNeverMatches(t *testing.T) {
	catalog := NewTriggerCatalog(WorkflowTrigger{
		ID:      "t1",
		Type:    TriggerTypePattern,
		Pattern: `([`,
		Active:  true,
	})
	matcher := NewTriggerMatcher(catalog)

	_, ok := matcher.Match("([", nil)
	assert.False(t, ok)
}

func TestMatcher_IntentRequiresConditions(t *testing.T) {
	catalog := NewTriggerCatalog(WorkflowTrigger{
		ID:         "t1",
		WorkflowID: "wf1",
		Type:       TriggerTypeIntent,
		Keywords:   []string{"follow up"},
		Conditions: map[string]string{"channel": "email"},
		Active:     true,
	})
	matcher := NewTriggerMatcher(catalog)

	_, ok := matcher.Match("please follow up with them", map[string]string{"channel": "email"})
	assert.True(t, ok)

	// Wrong conversation context
	_, ok = matcher.Match("please follow up with them", map[string]string{"channel": "chat"})
	assert.False(t, ok)

	// Missing conversation context
	_, ok = matcher.Match("please follow up with them", nil)
	assert.False(t, ok)

	// Conditions alone are not enough without a keyword hit
	_, ok = matcher.Match("hello there", map[string]string{"channel": "email"})
	assert.False(t, ok)
}

func TestMatcher_HighestPriorityWins(t *testing.T) {
	catalog := NewTriggerCatalog(
		WorkflowTrigger{
			ID:       "low",
			Type:     TriggerTypeKeyword,
			Keywords: []string{"meeting"},
			Active:   true,
			Priority: 5,
		},
		WorkflowTrigger{
			ID:       "high",
			Type:     TriggerTypeKeyword,
			Keywords: []string{"meeting"},
			Active:   true,
			Priority: 10,
		},
	)
	matcher := NewTriggerMatcher(catalog)

	trigger, ok := matcher.Match("book a meeting", nil)
	require.True(t, ok)
	assert.Equal(t, "high", trigger.ID)
}

func TestMatcher_CatalogOrderBreaksTies(t *testing.T) {
	catalog := NewTriggerCatalog(
		WorkflowTrigger{
			ID:       "first",
			Type:     TriggerTypeKeyword,
			Keywords: []string{"meeting"},
			Active:   true,
			Priority: 5,
		},
		WorkflowTrigger{
			ID:       "second",
			Type:     TriggerTypeKeyword,
			Keywords: []string{"meeting"},
			Active:   true,
			Priority: 5,
		},
	)
	matcher := NewTriggerMatcher(catalog)

	trigger, ok := matcher.Match("book a meeting", nil)
	require.True(t, ok)
	assert.Equal(t, "first", trigger.ID)
}

func TestMatcher_InactiveIgnored(t *testing.T) {
	catalog := NewTriggerCatalog(WorkflowTrigger{
		ID:       "t1",
		Type:     TriggerTypeKeyword,
		Keywords: []string{"meeting"},
		Active:   false,
	})
	matcher := NewTriggerMatcher(catalog)

	_, ok := matcher.Match("book a meeting", nil)
	assert.False(t, ok)
}

func TestMatcher_ScheduleAndEventNeverMatchMessages(t *testing.T) {
	catalog := NewTriggerCatalog(
		WorkflowTrigger{
			ID:       "cron",
			Type:     TriggerTypeSchedule,
			Schedule: "0 8 * * *",
			Active:   true,
			Priority: 100,
		},
		WorkflowTrigger{
			ID:         "evt",
			Type:       TriggerTypeEvent,
			Conditions: map[string]string{"event": "user_signup"},
			Active:     true,
			Priority:   100,
		},
	)
	matcher := NewTriggerMatcher(catalog)

	_, ok := matcher.Match("0 8 * * * user_signup", nil)
	assert.False(t, ok)
}

func TestTriggerCatalog_ByType(t *testing.T) {
	catalog := NewTriggerCatalog(
		WorkflowTrigger{ID: "a", Type: TriggerTypeSchedule, Active: true},
		WorkflowTrigger{ID: "b", Type: TriggerTypeKeyword, Active: true},
		WorkflowTrigger{ID: "c", Type: TriggerTypeSchedule, Active: false},
		WorkflowTrigger{ID: "d", Type: TriggerTypeSchedule, Active: true},
	)

	scheduled := catalog.ByType(TriggerTypeSchedule)
	require.Len(t, scheduled, 2)
	assert.Equal(t, "a", scheduled[0].ID)
	assert.Equal(t, "d", scheduled[1].ID)
}
