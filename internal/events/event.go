package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventAllocationCaptured  = "allocation.captured"
	EventAllocationReleased  = "allocation.released"
	EventTransactionRecorded = "transaction.recorded"
)

// Event is the envelope published for every domain notification.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func NewEvent(eventType string, occurredAt time.Time, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Payload:    payload,
	}
}
