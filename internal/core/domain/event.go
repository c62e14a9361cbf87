package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by this service. The wider platform publishes under
// historia.*, transcripcion.* and exportacion.* on the same exchange.
const (
	EventTypeUserCreated = "identity.user.created"
	EventTypeUserLogin   = "identity.user.login"
)

// AuditableEvent is the wire schema shared by every service that publishes
// privileged state changes to the events exchange. Immutable once built.
type AuditableEvent struct {
	EventID       uuid.UUID  `json:"eventId"`
	OccurredOn    time.Time  `json:"occurredOn"`
	EventType     string     `json:"eventType"`
	UserID        uuid.UUID  `json:"userId"`
	UserEmail     string     `json:"userEmail"`
	Action        string     `json:"action"`
	ResourceType  string     `json:"resourceType"`
	ResourceID    *uuid.UUID `json:"resourceId,omitempty"`
	PreviousValue *string    `json:"previousValue,omitempty"`
	NewValue      *string    `json:"newValue,omitempty"`
	SourceIP      string     `json:"sourceIp,omitempty"`
	SourceService string     `json:"sourceService"`
}

// NewAuditableEvent builds an event with a fresh eventId and occurredOn.
func NewAuditableEvent(eventType string, userID uuid.UUID, userEmail, action, resourceType string,
	resourceID *uuid.UUID, previousValue, newValue *string, sourceIP, sourceService string) AuditableEvent {
	return AuditableEvent{
		EventID:       uuid.New(),
		OccurredOn:    time.Now().UTC(),
		EventType:     eventType,
		UserID:        userID,
		UserEmail:     userEmail,
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		PreviousValue: previousValue,
		NewValue:      newValue,
		SourceIP:      sourceIP,
		SourceService: sourceService,
	}
}

// RoutingKey returns the topic routing key for the event. Consumers bind
// with wildcard patterns on the leading segments (identity.#, historia.#).
func (e AuditableEvent) RoutingKey() string {
	return e.EventType
}
