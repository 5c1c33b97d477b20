package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nicolaor/chatflow/capability"
)

// NewRegistry builds a capability registry with demo calendar, email and
// notification functions. They fabricate plausible results instead of
// calling real services.
func NewRegistry() *capability.Registry {
	reg := capability.NewRegistry()

	reg.Register("calendar", "check_availability", checkAvailability)
	reg.Register("calendar", "book", bookSlot)
	reg.Register("calendar", "agenda", agenda)
	reg.Register("email", "draft_follow_up", draftFollowUp)
	reg.Register("email", "send", sendEmail)
	reg.Register("email", "unread_count", unreadCount)
	reg.Register("notify", "digest", composeDigest)

	return reg
}

func checkAvailability(_ context.Context, args map[string]string) (string, error) {
	date := args["date"]
	if date == "" {
		date = time.Now().Add(24 * time.Hour).Format("2006-01-02")
	}
	slotTime := args["time"]
	if slotTime == "" {
		slotTime = "10:00"
	}
	return marshal(map[string]any{
		"slot":      fmt.Sprintf("%s %s", date, slotTime),
		"available": true,
	})
}

func bookSlot(_ context.Context, args map[string]string) (string, error) {
	if args["slot"] == "" {
		return "", fmt.Errorf("no slot to book")
	}
	return marshal(map[string]any{
		"event_id": uuid.New().String(),
		"slot":     args["slot"],
		"attendee": args["attendee"],
	})
}

func agenda(_ context.Context, _ map[string]string) (string, error) {
	return marshal(map[string]any{
		"agenda": "09:00 standup, 11:00 design review, 15:00 1:1",
	})
}

func draftFollowUp(_ context.Context, args map[string]string) (string, error) {
	recipient := args["recipient"]
	if recipient == "" {
		return marshal(map[string]any{"draft": "No recipient found in the request"})
	}
	return marshal(map[string]any{
		"draft": fmt.Sprintf("Hi %s, just following up on my earlier note.", recipient),
	})
}

func sendEmail(_ context.Context, args map[string]string) (string, error) {
	if args["to"] == "" {
		return "", fmt.Errorf("missing recipient")
	}
	return marshal(map[string]any{
		"message_id": uuid.New().String(),
		"to":         args["to"],
		"subject":    args["subject"],
	})
}

func unreadCount(_ context.Context, _ map[string]string) (string, error) {
	return marshal(map[string]any{"count": 4})
}

func composeDigest(_ context.Context, args map[string]string) (string, error) {
	return fmt.Sprintf("Agenda: %s. Unread mail: %s.", args["agenda"], args["unread"]), nil
}

func marshal(v map[string]any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
