package models

import "time"

// EventType names a domain event emitted for downstream consumers.
type EventType string

const (
	EventEnrollmentCreated      EventType = "EnrollmentCreated"
	EventEnrollmentDropped      EventType = "EnrollmentDropped"
	EventGradeBatchTransitioned EventType = "GradeBatchTransitioned"
	EventAttendanceLocked       EventType = "AttendanceLocked"
)

// DomainEvent is the envelope published to downstream subscribers.
type DomainEvent struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}
