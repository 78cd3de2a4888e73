package models

import "time"

type EventType string

const (
	EventTypeMetricCollected  EventType = "metric_collected"
	EventTypeCollectionError  EventType = "collection_error"
	EventTypeDecisionMade     EventType = "decision_made"
	EventTypeScalingStarted   EventType = "scaling_started"
	EventTypeScalingComplete  EventType = "scaling_complete"
	EventTypeScalingFailed    EventType = "scaling_failed"
	EventTypeScalingRejected  EventType = "scaling_rejected"
	EventTypeRollbackStarted  EventType = "rollback_started"
	EventTypeRollbackComplete EventType = "rollback_complete"
	EventTypeRollbackFailed   EventType = "rollback_failed"
	EventTypeAlert            EventType = "alert"
	EventTypeError            EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event is an internal bus message consumed by logging, audit persistence,
// the websocket bridge, and the notifier.
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	Service   string        `json:"service,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
}

func NewEvent(eventType EventType, service, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		Service:   service,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}
