// Package assistant wires a small demo catalog for a conversational
// assistant: meeting scheduling, email follow-ups and a daily summary.
package assistant

import (
	"github.com/nicolaor/chatflow"
)

// NewCatalog builds the demo workflow catalog
func NewCatalog() (*chatflow.Catalog, error) {
	return chatflow.NewCatalog(
		meetingWorkflow(),
		followUpWorkflow(),
		dailySummaryWorkflow(),
	)
}

// NewTriggers builds the triggers for the demo catalog
func NewTriggers() *chatflow.TriggerCatalog {
	return chatflow.NewTriggerCatalog(
		chatflow.WorkflowTrigger{
			ID:         "trigger-meeting-keyword",
			WorkflowID: "meeting-scheduling",
			Type:       chatflow.TriggerTypeKeyword,
			Keywords:   []string{"schedule a meeting", "set up a meeting", "book a meeting"},
			Active:     true,
			Priority:   10,
		},
		chatflow.WorkflowTrigger{
			ID:         "trigger-meeting-pattern",
			WorkflowID: "meeting-scheduling",
			Type:       chatflow.TriggerTypePattern,
			Pattern:    `meet(ing)?\s+with\s+\S+@\S+`,
			Active:     true,
			Priority:   5,
		},
		chatflow.WorkflowTrigger{
			ID:         "trigger-follow-up",
			WorkflowID: "email-follow-up",
			Type:       chatflow.TriggerTypeIntent,
			Keywords:   []string{"follow up", "followup"},
			Conditions: map[string]string{"channel": "email"},
			Active:     true,
			Priority:   10,
		},
		chatflow.WorkflowTrigger{
			ID:         "trigger-daily-summary",
			WorkflowID: "daily-summary",
			Type:       chatflow.TriggerTypeSchedule,
			Schedule:   "0 8 * * *",
			Active:     true,
			Priority:   1,
		},
	)
}

func meetingWorkflow() chatflow.WorkflowDefinition {
	return chatflow.WorkflowDefinition{
		ID:          "meeting-scheduling",
		Name:        "Meeting Scheduling",
		Description: "Checks availability, books a slot and notifies the attendees",
		Active:      true,
		Defaults: map[string]string{
			"duration_minutes": "30",
		},
		Steps: []chatflow.WorkflowStep{
			{
				ID:         "check-availability",
				Order:      1,
				Name:       "Check availability",
				Plugin:     "calendar",
				Function:   "check_availability",
				MaxRetries: 2,
				Parameters: map[string]string{
					"attendee": "{{email}}",
					"date":     "{{date}}",
					"time":     "{{time}}",
				},
				OutputMappings: map[string]string{
					"slot": "meeting_slot",
				},
			},
			{
				ID:        "book-slot",
				Order:     2,
				Name:      "Book the slot",
				Plugin:    "calendar",
				Function:  "book",
				DependsOn: []string{"check-availability"},
				Parameters: map[string]string{
					"attendee": "{{email}}",
					"slot":     "{{meeting_slot}}",
					"duration": "{{duration_minutes}}",
				},
				OutputMappings: map[string]string{
					"event_id": "calendar_event_id",
				},
			},
			{
				ID:         "send-invite",
				Order:      3,
				Name:       "Send the invite",
				Plugin:     "email",
				Function:   "send",
				DependsOn:  []string{"book-slot"},
				IsOptional: true,
				MaxRetries: 1,
				Parameters: map[string]string{
					"to":      "{{email}}",
					"subject": "Meeting confirmed",
					"body":    "Your meeting is booked: {{meeting_slot}} (event {{calendar_event_id}})",
				},
			},
		},
	}
}

func followUpWorkflow() chatflow.WorkflowDefinition {
	return chatflow.WorkflowDefinition{
		ID:          "email-follow-up",
		Name:        "Email Follow-up",
		Description: "Drafts and sends a follow-up email for the current thread",
		Active:      true,
		Steps: []chatflow.WorkflowStep{
			{
				ID:       "draft",
				Order:    1,
				Name:     "Draft the follow-up",
				Plugin:   "email",
				Function: "draft_follow_up",
				Parameters: map[string]string{
					"recipient": "{{email}}",
					"request":   "{{user_message}}",
				},
				OutputMappings: map[string]string{
					"draft": "follow_up_draft",
				},
			},
			{
				ID:        "send",
				Order:     2,
				Name:      "Send the follow-up",
				Plugin:    "email",
				Function:  "send",
				DependsOn: []string{"draft"},
				Condition: &chatflow.WorkflowStepCondition{
					Type:     chatflow.ConditionTypeContains,
					Field:    "follow_up_draft",
					Value:    "@",
					Operator: chatflow.OperatorContains,
				},
				MaxRetries: 2,
				Parameters: map[string]string{
					"to":      "{{email}}",
					"subject": "Following up",
					"body":    "{{follow_up_draft}}",
				},
			},
		},
	}
}

func dailySummaryWorkflow() chatflow.WorkflowDefinition {
	return chatflow.WorkflowDefinition{
		ID:          "daily-summary",
		Name:        "Daily Summary",
		Description: "Collects the day's agenda and unread mail into one digest",
		Active:      true,
		Steps: []chatflow.WorkflowStep{
			{
				ID:       "agenda",
				Order:    1,
				Name:     "Collect agenda",
				Plugin:   "calendar",
				Function: "agenda",
				OutputMappings: map[string]string{
					"agenda": "today_agenda",
				},
			},
			{
				ID:       "unread",
				Order:    2,
				Name:     "Count unread mail",
				Plugin:   "email",
				Function: "unread_count",
				OutputMappings: map[string]string{
					"count": "unread_count",
				},
			},
			{
				ID:        "digest",
				Order:     3,
				Name:      "Compose digest",
				Plugin:    "notify",
				Function:  "digest",
				DependsOn: []string{"agenda", "unread"},
				Parameters: map[string]string{
					"agenda": "{{today_agenda}}",
					"unread": "{{unread_count}}",
				},
			},
		},
	}
}
