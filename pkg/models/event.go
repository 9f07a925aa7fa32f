package models

import "time"

// EventType classifies a pipeline lifecycle event.
type EventType string

const (
	EventStart     EventType = "start"
	EventExtract   EventType = "extract"
	EventTransform EventType = "transform"
	EventLoad      EventType = "load"
	EventError     EventType = "error"
	EventComplete  EventType = "complete"
	EventInfo      EventType = "info"
)

// Event is an immutable record of something that happened during a run.
type Event struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	// Count is the number of records involved, when meaningful
	Count *int `json:"count,omitempty"`
}

// NewEvent stamps a new event with the current time.
func NewEvent(t EventType, message string) Event {
	return Event{Type: t, Message: message, Timestamp: time.Now()}
}

// WithCount returns a copy of e carrying n.
func (e Event) WithCount(n int) Event {
	e.Count = &n
	return e
}
