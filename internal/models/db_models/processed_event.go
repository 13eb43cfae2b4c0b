package db_models

import "time"

type EventState string

const (
	EventStateProcessing EventState = "processing"
	EventStateCompleted  EventState = "completed"
)

const (
	eventPrefix = "EVENT#"
	EventSK     = "EVENT"
)

func EventPK(eventID string) string { return eventPrefix + eventID }

// ProcessedEvent is the ledger record that makes webhook redelivery harmless.
type ProcessedEvent struct {
	PK          string     `dynamodbav:"PK"`
	SK          string     `dynamodbav:"SK"`
	EventID     string     `dynamodbav:"eventId"`
	EventType   string     `dynamodbav:"eventType"`
	State       EventState `dynamodbav:"state"`
	Attempts    int        `dynamodbav:"attempts"`
	Outcome     string     `dynamodbav:"outcome,omitempty"`
	LeaseUntil  time.Time  `dynamodbav:"leaseUntil"`
	ReceivedAt  time.Time  `dynamodbav:"receivedAt"`
	CompletedAt *time.Time `dynamodbav:"completedAt,omitempty"`
	// ExpiresAt is epoch seconds for the table TTL.
	ExpiresAt int64 `dynamodbav:"expiresAt"`
}
