package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"storehere/internal/models/db_models"
)

type BeginResult int

const (
	// BeginAcquired means the caller owns processing of the event.
	BeginAcquired BeginResult = iota
	// BeginDuplicate means the event was already fully processed.
	BeginDuplicate
	// BeginInFlight means another worker holds a live lease on the event.
	BeginInFlight
)

func (b BeginResult) String() string {
	switch b {
	case BeginAcquired:
		return "acquired"
	case BeginDuplicate:
		return "duplicate"
	default:
		return "in_flight"
	}
}

type IEventRepository interface {
	Begin(ctx context.Context, eventID, eventType string, now time.Time) (BeginResult, error)
	Complete(ctx context.Context, eventID, outcome string, now time.Time) error
}

type EventRepository struct {
	table     *Table
	lease     time.Duration
	retention time.Duration
}

func NewEventRepository(table *Table, lease, retention time.Duration) IEventRepository {
	return &EventRepository{table: table, lease: lease, retention: retention}
}

func (r *EventRepository) Begin(ctx context.Context, eventID, eventType string, now time.Time) (BeginResult, error) {
	rec := db_models.ProcessedEvent{
		PK:         db_models.EventPK(eventID),
		SK:         db_models.EventSK,
		EventID:    eventID,
		EventType:  eventType,
		State:      db_models.EventStateProcessing,
		Attempts:   1,
		LeaseUntil: now.Add(r.lease),
		ReceivedAt: now,
		ExpiresAt:  now.Add(r.retention).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return 0, err
	}

	_, err = r.table.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table.Name),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err == nil {
		return BeginAcquired, nil
	}
	if !isConditionFailed(err) {
		return 0, fmt.Errorf("record event %s: %w", eventID, err)
	}

	var existing db_models.ProcessedEvent
	found, err := r.table.getItem(ctx, rec.PK, rec.SK, &existing)
	if err != nil {
		return 0, fmt.Errorf("read event %s: %w", eventID, err)
	}
	if !found {
		// expired by TTL between the two calls; treat as in flight and let
		// the provider redeliver
		return BeginInFlight, nil
	}
	if existing.State == db_models.EventStateCompleted {
		return BeginDuplicate, nil
	}
	if existing.LeaseUntil.After(now) {
		return BeginInFlight, nil
	}
	return r.takeOver(ctx, &existing, now)
}

// takeOver claims an event whose previous worker let its lease lapse.
func (r *EventRepository) takeOver(ctx context.Context, existing *db_models.ProcessedEvent, now time.Time) (BeginResult, error) {
	oldLease, err := attributevalue.Marshal(existing.LeaseUntil)
	if err != nil {
		return 0, err
	}
	newLease, err := attributevalue.Marshal(now.Add(r.lease))
	if err != nil {
		return 0, err
	}

	_, err = r.table.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table.Name),
		Key:                 itemKey(existing.PK, existing.SK),
		UpdateExpression:    aws.String("SET leaseUntil = :newLease, attempts = attempts + :one"),
		ConditionExpression: aws.String("#state = :processing AND leaseUntil = :oldLease"),
		ExpressionAttributeNames: map[string]string{
			"#state": "state",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":newLease":   newLease,
			":oldLease":   oldLease,
			":one":        &types.AttributeValueMemberN{Value: "1"},
			":processing": str(string(db_models.EventStateProcessing)),
		},
	})
	if isConditionFailed(err) {
		return BeginInFlight, nil
	}
	if err != nil {
		return 0, fmt.Errorf("take over event %s: %w", existing.EventID, err)
	}
	return BeginAcquired, nil
}

func (r *EventRepository) Complete(ctx context.Context, eventID, outcome string, now time.Time) error {
	completedAt, err := attributevalue.Marshal(now)
	if err != nil {
		return err
	}
	_, err = r.table.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.table.Name),
		Key:              itemKey(db_models.EventPK(eventID), db_models.EventSK),
		UpdateExpression: aws.String("SET #state = :completed, outcome = :outcome, completedAt = :at"),
		ExpressionAttributeNames: map[string]string{
			"#state": "state",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed": str(string(db_models.EventStateCompleted)),
			":outcome":   str(outcome),
			":at":        completedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("complete event %s: %w", eventID, err)
	}
	return nil
}
