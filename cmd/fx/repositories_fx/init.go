package repositories_fx

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/fx"
	"storehere/internal/repositories"
	"storehere/pkg/config"
)

var Module = fx.Provide(
	provideTable,
	repositories.NewSiteRepository,
	repositories.NewContainerRepository,
	repositories.NewWaitingListRepository,
	provideEventRepository,
)

func provideTable(client *dynamodb.Client, cfg *config.Config) *repositories.Table {
	return repositories.NewTable(client, cfg.DynamoDBTable)
}

func provideEventRepository(table *repositories.Table, cfg *config.Config) repositories.IEventRepository {
	return repositories.NewEventRepository(table, cfg.EventLease, cfg.EventRetention)
}
