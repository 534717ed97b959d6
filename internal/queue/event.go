package queue

import (
	"time"

	"github.com/google/uuid"
)

// EventKind represents the type of event
type EventKind string

const (
	// EventNotification is a generic operator notification
	EventNotification EventKind = "notification"
	// EventProcessRestarted is published when the watchdog restarts a process
	EventProcessRestarted EventKind = "process_restarted"
	// EventProcessEscalated is published when the restart cap is reached
	EventProcessEscalated EventKind = "process_escalated"
	// EventHealthAlert is published for health monitor findings
	EventHealthAlert EventKind = "health_alert"
	// EventDraftReady is published when a new draft awaits review
	EventDraftReady EventKind = "draft_ready"
)

// Event represents a vault event on the bus
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Kind      EventKind      `json:"kind"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Source    string         `json:"source,omitempty"`   // Publishing daemon
	NotAfter  *time.Time     `json:"not_after,omitempty"` // Latest time the event is relevant (nil = no expiration)
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent creates a new event
func NewEvent(kind EventKind, title, body string) *Event {
	return &Event{
		ID:        uuid.New(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		Metadata:  make(map[string]any),
		CreatedAt: time.Now(),
	}
}

// IsExpired checks if the event is past its relevance window
func (e *Event) IsExpired() bool {
	if e.NotAfter == nil {
		return false
	}
	return time.Now().After(*e.NotAfter)
}
