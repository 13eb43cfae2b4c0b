package repositories

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"storehere/internal/models/db_models"
	"storehere/pkg/utils"
)

type ISiteRepository interface {
	Get(ctx context.Context, siteID string) (*db_models.Site, error)
	List(ctx context.Context) ([]*db_models.Site, error)
	Create(ctx context.Context, site *db_models.Site) error
	Save(ctx context.Context, site *db_models.Site) error
}

type SiteRepository struct {
	table *Table
}

func NewSiteRepository(table *Table) ISiteRepository {
	return &SiteRepository{table: table}
}

func (r *SiteRepository) Get(ctx context.Context, siteID string) (*db_models.Site, error) {
	var s db_models.Site
	found, err := r.table.getItem(ctx, db_models.SitePK(siteID), db_models.SiteMetadataSK, &s)
	if err != nil {
		return nil, fmt.Errorf("get site %s: %w", siteID, err)
	}
	if !found {
		return nil, nil
	}
	return &s, nil
}

// List returns every site ordered by creation time, then id.
func (r *SiteRepository) List(ctx context.Context) ([]*db_models.Site, error) {
	items, err := r.table.scan(ctx, "#type = :site",
		map[string]string{"#type": "type"},
		map[string]types.AttributeValue{":site": str(db_models.TypeSite)},
	)
	if err != nil {
		return nil, fmt.Errorf("scan sites: %w", err)
	}

	sites := make([]*db_models.Site, 0, len(items))
	for _, item := range items {
		var s db_models.Site
		if err := attributevalue.UnmarshalMap(item, &s); err != nil {
			return nil, fmt.Errorf("unmarshal site: %w", err)
		}
		sites = append(sites, &s)
	}
	sort.SliceStable(sites, func(i, j int) bool {
		if !sites[i].CreatedAt.Equal(sites[j].CreatedAt) {
			return sites[i].CreatedAt.Before(sites[j].CreatedAt)
		}
		return sites[i].ID < sites[j].ID
	})
	return sites, nil
}

func (r *SiteRepository) Create(ctx context.Context, site *db_models.Site) error {
	item, err := attributevalue.MarshalMap(site)
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

func (r *SiteRepository) Save(ctx context.Context, site *db_models.Site) error {
	item, err := attributevalue.MarshalMap(site)
	if err != nil {
		return err
	}
	_, err = r.table.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table.Name),
		Item:      item,
	})
	return err
}
