package models

import (
	"time"
)

// User is a chat user, keyed by the platform-issued identifier
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Zone is an IANA zone name; empty means the configured default
	Zone string `json:"zone,omitempty"`
}

// Group is a group chat that owns group events
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Membership records that a user has created events in a group
type Membership struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
}

// Event is a scheduled event. Start and End are stored in UTC.
type Event struct {
	ID       int64     `json:"id"`
	OwnerID  string    `json:"owner_id"`
	GroupID  string    `json:"group_id,omitempty"` // empty for private events
	Name     string    `json:"name"`
	Location string    `json:"location"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// IsGroup reports whether the event belongs to a group
func (e Event) IsGroup() bool {
	return e.GroupID != ""
}

// Overlaps reports whether the half-open intervals [Start, End) intersect.
// Adjacent intervals do not overlap.
func (e Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}

// SignupStatusActive is the only signup status currently modelled
const SignupStatusActive = "active"

// Signup is a user's registration for a reminder about an event
type Signup struct {
	UserID   string `json:"user_id"`
	EventID  int64  `json:"event_id"`
	Status   string `json:"status"`
	Notified bool   `json:"notified"`
}

// DueSignup pairs an unnotified signup with its event
type DueSignup struct {
	Signup
	Event Event
}

// EventDraft is the validated input of an event creation
type EventDraft struct {
	OwnerID   string    `json:"owner_id"`
	OwnerName string    `json:"owner_name"`
	GroupID   string    `json:"group_id,omitempty"`
	GroupName string    `json:"group_name,omitempty"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// Announcement references a pinned group message for an event
type Announcement struct {
	EventID   int64 `json:"event_id"`
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}
