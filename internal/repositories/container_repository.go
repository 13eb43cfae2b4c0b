package repositories

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"storehere/internal/models/db_models"
	"storehere/pkg/utils"
)

type IContainerRepository interface {
	Get(ctx context.Context, siteID, number string) (*db_models.Container, error)
	ListBySite(ctx context.Context, siteID string) ([]*db_models.Container, error)
	ListAll(ctx context.Context) ([]*db_models.Container, error)
	Create(ctx context.Context, c *db_models.Container) error
	Claim(ctx context.Context, c *db_models.Container) error
	Save(ctx context.Context, c *db_models.Container) error
	FindByBillingCustomer(ctx context.Context, customerID string) (*db_models.Container, error)
	FindBySubscription(ctx context.Context, subscriptionID string) (*db_models.Container, error)
	FindByEmail(ctx context.Context, email string) (*db_models.Container, error)
}

type ContainerRepository struct {
	table *Table
	now   func() time.Time
}

func NewContainerRepository(table *Table) IContainerRepository {
	return &ContainerRepository{table: table, now: func() time.Time { return time.Now().UTC() }}
}

func (r *ContainerRepository) Get(ctx context.Context, siteID, number string) (*db_models.Container, error) {
	var c db_models.Container
	found, err := r.table.getItem(ctx, db_models.SitePK(siteID), db_models.ContainerSK(number), &c)
	if err != nil {
		return nil, fmt.Errorf("get container %s/%s: %w", siteID, number, err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

// ListBySite returns the site's containers in sort-key order.
func (r *ContainerRepository) ListBySite(ctx context.Context, siteID string) ([]*db_models.Container, error) {
	items, err := r.table.queryPrefix(ctx, db_models.SitePK(siteID), db_models.ContainerSKPrefix)
	if err != nil {
		return nil, fmt.Errorf("list containers for %s: %w", siteID, err)
	}
	return unmarshalContainers(items)
}

func (r *ContainerRepository) ListAll(ctx context.Context) ([]*db_models.Container, error) {
	return r.scanContainers(ctx, "", nil)
}

func (r *ContainerRepository) Create(ctx context.Context, c *db_models.Container) error {
	c.Version = 1
	c.UpdatedAt = r.now()
	c.Refresh()

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return err
	}
	_, err = r.table.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table.Name),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if isConditionFailed(err) {
		return utils.ErrAlreadyExists
	}
	return err
}

// Claim writes c only if the stored record is still available at the version
// it was read at. A lost race returns utils.ErrContainerUnavailable.
func (r *ContainerRepository) Claim(ctx context.Context, c *db_models.Container) error {
	err := r.put(ctx, c, "#status = :available AND "+versionCondition(c.Version), map[string]types.AttributeValue{
		":available": str(string(db_models.StatusAvailable)),
	})
	if err == utils.ErrConflict {
		return utils.ErrContainerUnavailable
	}
	return err
}

// Save writes c if nobody else has written it since it was read.
func (r *ContainerRepository) Save(ctx context.Context, c *db_models.Container) error {
	return r.put(ctx, c, versionCondition(c.Version), nil)
}

func versionCondition(version int64) string {
	if version == 0 {
		// records created before versioning
		return "(attribute_not_exists(#version) OR #version = :version)"
	}
	return "#version = :version"
}

func (r *ContainerRepository) put(ctx context.Context, c *db_models.Container, condition string, values map[string]types.AttributeValue) error {
	expected := c.Version
	prevUpdated := c.UpdatedAt

	c.Refresh()
	c.Version = expected + 1
	c.UpdatedAt = r.now()

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		c.Version, c.UpdatedAt = expected, prevUpdated
		return err
	}

	if values == nil {
		values = map[string]types.AttributeValue{}
	}
	values[":version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)}
	names := map[string]string{"#version": "version"}
	if _, ok := values[":available"]; ok {
		names["#status"] = "status"
	}

	_, err = r.table.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.table.Name),
		Item:                      item,
		ConditionExpression:       aws.String("attribute_exists(PK) AND " + condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		c.Version, c.UpdatedAt = expected, prevUpdated
		if isConditionFailed(err) {
			return utils.ErrConflict
		}
		return fmt.Errorf("put container %s/%s: %w", c.SiteID, c.Number, err)
	}
	return nil
}

// FindByBillingCustomer returns the most recently started rental linked to
// the customer, or nil.
func (r *ContainerRepository) FindByBillingCustomer(ctx context.Context, customerID string) (*db_models.Container, error) {
	if customerID == "" {
		return nil, nil
	}
	return r.findLatest(ctx, "billingCustomerId = :v", customerID)
}

func (r *ContainerRepository) FindBySubscription(ctx context.Context, subscriptionID string) (*db_models.Container, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	return r.findLatest(ctx, "billingSubscriptionId = :v", subscriptionID)
}

func (r *ContainerRepository) FindByEmail(ctx context.Context, email string) (*db_models.Container, error) {
	email = db_models.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return r.findLatest(ctx, "customerEmail = :v", email)
}

func (r *ContainerRepository) findLatest(ctx context.Context, filter, value string) (*db_models.Container, error) {
	containers, err := r.scanContainers(ctx, filter, map[string]types.AttributeValue{":v": str(value)})
	if err != nil {
		return nil, err
	}
	var latest *db_models.Container
	for _, c := range containers {
		if latest == nil || startedAfter(c, latest) {
			latest = c
		}
	}
	return latest, nil
}

func startedAfter(a, b *db_models.Container) bool {
	if a.RentStartDate == nil {
		return false
	}
	if b.RentStartDate == nil {
		return true
	}
	return a.RentStartDate.After(*b.RentStartDate)
}

func (r *ContainerRepository) scanContainers(ctx context.Context, extraFilter string, values map[string]types.AttributeValue) ([]*db_models.Container, error) {
	filter := "#type = :container"
	if extraFilter != "" {
		filter += " AND " + extraFilter
	}
	if values == nil {
		values = map[string]types.AttributeValue{}
	}
	values[":container"] = str(db_models.TypeContainer)

	items, err := r.table.scan(ctx, filter, map[string]string{"#type": "type"}, values)
	if err != nil {
		return nil, fmt.Errorf("scan containers: %w", err)
	}
	containers, err := unmarshalContainers(items)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(containers, func(i, j int) bool {
		if containers[i].SiteID != containers[j].SiteID {
			return containers[i].SiteID < containers[j].SiteID
		}
		return containers[i].Number < containers[j].Number
	})
	return containers, nil
}

func unmarshalContainers(items []map[string]types.AttributeValue) ([]*db_models.Container, error) {
	containers := make([]*db_models.Container, 0, len(items))
	for _, item := range items {
		var c db_models.Container
		if err := attributevalue.UnmarshalMap(item, &c); err != nil {
			return nil, fmt.Errorf("unmarshal container: %w", err)
		}
		containers = append(containers, &c)
	}
	return containers, nil
}
