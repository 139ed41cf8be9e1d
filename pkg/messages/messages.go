package messages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/korjavin/eventbot/pkg/logger"
	"github.com/korjavin/eventbot/pkg/models"
	"github.com/korjavin/eventbot/pkg/timeconv"
)

// Generator phrases chat messages, typically backed by an LLM
type Generator interface {
	GenerateChatMessage(ctx context.Context, intent string, contextData map[string]interface{}) (string, error)
}

// Service provides message generation functionality
type Service struct {
	generator Generator
	timeout   time.Duration
	logger    *logger.Logger
}

// New creates a new message service. With a nil generator only the built-in
// templates are used.
func New(generator Generator) *Service {
	return &Service{
		generator: generator,
		timeout:   15 * time.Second,
		logger:    logger.New("messages"),
	}
}

// generate asks the generator for a message and returns fallback when there is
// no generator, it fails, or ctx ends first. The call is capped at the service
// timeout even when ctx allows longer.
func (s *Service) generate(ctx context.Context, intent string, data map[string]interface{}, fallback string) string {
	if s.generator == nil {
		return fallback
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.generator.GenerateChatMessage(ctx, intent, data)
	if err != nil {
		s.logger.Error("Failed to generate %s message: %v", intent, err)
		return fallback
	}
	return msg
}

func eventData(ev models.Event, loc *time.Location) map[string]interface{} {
	data := map[string]interface{}{
		"name":  ev.Name,
		"start": timeconv.FormatForDisplay(ev.Start, loc),
		"end":   timeconv.FormatForDisplay(ev.End, loc),
	}
	if ev.Location != "" {
		data["location"] = ev.Location
	}
	return data
}

// Reminder is the text sent when an event starts
func (s *Service) Reminder(ctx context.Context, ev models.Event, loc *time.Location) string {
	fallback := fmt.Sprintf("⏰ Reminder: %s starts at %s", ev.Name, timeconv.FormatForDisplay(ev.Start, loc))
	if ev.Location != "" {
		fallback += " at " + ev.Location
	}
	return s.generate(ctx, "event_reminder", eventData(ev, loc), fallback)
}

// Announcement is the text pinned in a group for a new group event
func (s *Service) Announcement(ctx context.Context, ev models.Event, loc *time.Location) string {
	fallback := fmt.Sprintf("📌 New event #%d: %s\n%s", ev.ID, ev.Name, Schedule(ev, loc))
	fallback += fmt.Sprintf("\nUse /get_notified %d to get a reminder.", ev.ID)
	data := eventData(ev, loc)
	data["id"] = ev.ID
	data["signup_command"] = fmt.Sprintf("/get_notified %d", ev.ID)
	return s.generate(ctx, "event_announcement", data, fallback)
}

// Schedule renders the time span and place of an event
func Schedule(ev models.Event, loc *time.Location) string {
	line := fmt.Sprintf("🕒 %s – %s", timeconv.FormatForDisplay(ev.Start, loc), timeconv.FormatForDisplay(ev.End, loc))
	if ev.Location != "" {
		line += "\n📍 " + ev.Location
	}
	return line
}

// EventList renders one page of a listing
func EventList(title string, events []models.Event, loc *time.Location, page, totalPages int) string {
	if len(events) == 0 {
		return "📭 No events found."
	}
	var b strings.Builder
	b.WriteString(title)
	if totalPages > 1 {
		fmt.Fprintf(&b, " (page %d/%d)", page, totalPages)
	}
	b.WriteString("\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "\n#%d %s\n%s\n", ev.ID, ev.Name, Schedule(ev, loc))
	}
	return b.String()
}

// Proposal is the confirmation prompt for a drafted event
func Proposal(draft models.EventDraft, loc *time.Location) string {
	ev := models.Event{Name: draft.Name, Location: draft.Location, Start: draft.Start, End: draft.End}
	kind := "private event"
	if draft.GroupID != "" {
		kind = "group event"
	}
	return fmt.Sprintf("Create this %s?\n\n%s\n%s", kind, draft.Name, Schedule(ev, loc))
}

// Help lists the available commands
func Help() string {
	return `📅 Event bot commands:

/create_private_event name; location; start date; start time; end date; end time
/create_group_event name; location; start date; start time; end date; end time
/modify_event id name=...; location=...; datestart=...; timestart=...; dateend=...; timeend=...
/delete_event id
/show_events [page]
/show_server_events [page]
/get_notified id
/cancel_notification id
/timezone Europe/Berlin or /timezone +02:00
/export_events

Dates are YYYY-MM-DD, times HH:MM:SS, in your timezone.`
}
