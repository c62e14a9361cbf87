package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is the durable projection of an AuditableEvent in the
// append-only ledger, plus the ingestion timestamp. Records carry the
// event's eventId so redelivered events collapse into a single row.
type AuditRecord struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	OccurredOn    time.Time  `json:"occurred_on"`
	EventType     string     `json:"event_type"`
	UserID        uuid.UUID  `json:"user_id"`
	UserEmail     string     `json:"user_email"`
	Action        string     `json:"action"`
	ResourceType  string     `json:"resource_type"`
	ResourceID    *uuid.UUID `json:"resource_id,omitempty"`
	PreviousValue *string    `json:"previous_value,omitempty"`
	NewValue      *string    `json:"new_value,omitempty"`
	SourceIP      string     `json:"source_ip,omitempty"`
	SourceService string     `json:"source_service"`
	ReceivedAt    time.Time  `json:"received_at"`
}

// RecordFromEvent projects an AuditableEvent into an AuditRecord with
// receivedAt stamped at ingestion time.
func RecordFromEvent(e AuditableEvent, receivedAt time.Time) *AuditRecord {
	return &AuditRecord{
		ID:            uuid.New(),
		EventID:       e.EventID,
		OccurredOn:    e.OccurredOn,
		EventType:     e.EventType,
		UserID:        e.UserID,
		UserEmail:     e.UserEmail,
		Action:        e.Action,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		PreviousValue: e.PreviousValue,
		NewValue:      e.NewValue,
		SourceIP:      e.SourceIP,
		SourceService: e.SourceService,
		ReceivedAt:    receivedAt,
	}
}
