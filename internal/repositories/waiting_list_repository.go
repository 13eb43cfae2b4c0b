package repositories

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"storehere/internal/models/db_models"
)

type IWaitingListRepository interface {
	// Add inserts the entry unless the email is already on the list.
	Add(ctx context.Context, entry *db_models.WaitingListEntry) (bool, error)
	Save(ctx context.Context, entry *db_models.WaitingListEntry) error
	Get(ctx context.Context, email string) (*db_models.WaitingListEntry, error)
	List(ctx context.Context) ([]*db_models.WaitingListEntry, error)
	OldestWaiting(ctx context.Context) (*db_models.WaitingListEntry, error)
}

type WaitingListRepository struct {
	table *Table
}

func NewWaitingListRepository(table *Table) IWaitingListRepository {
	return &WaitingListRepository{table: table}
}

func (r *WaitingListRepository) Add(ctx context.Context, entry *db_models.WaitingListEntry) (bool, error) {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return false, err
	}
	_, err = r.table.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table.Name),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("add waiting list entry: %w", err)
	}
	return true, nil
}

func (r *WaitingListRepository) Save(ctx context.Context, entry *db_models.WaitingListEntry) error {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return err
	}
	_, err = r.table.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table.Name),
		Item:      item,
	})
	return err
}

func (r *WaitingListRepository) Get(ctx context.Context, email string) (*db_models.WaitingListEntry, error) {
	var e db_models.WaitingListEntry
	found, err := r.table.getItem(ctx, db_models.WaitingListPK, db_models.WaitingEntrySK(email), &e)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &e, nil
}

// List returns entries oldest first.
func (r *WaitingListRepository) List(ctx context.Context) ([]*db_models.WaitingListEntry, error) {
	items, err := r.table.queryPrefix(ctx, db_models.WaitingListPK, "EMAIL#")
	if err != nil {
		return nil, fmt.Errorf("query waiting list: %w", err)
	}
	entries := make([]*db_models.WaitingListEntry, 0, len(items))
	for _, item := range items {
		var e db_models.WaitingListEntry
		if err := attributevalue.UnmarshalMap(item, &e); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].JoinedDate.Before(entries[j].JoinedDate)
	})
	return entries, nil
}

func (r *WaitingListRepository) OldestWaiting(ctx context.Context) (*db_models.WaitingListEntry, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Status == db_models.WaitingStatusWaiting {
			return e, nil
		}
	}
	return nil, nil
}
