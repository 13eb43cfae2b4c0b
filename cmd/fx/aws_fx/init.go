package aws_fx

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/fx"
	"storehere/internal/infra"
	"storehere/pkg/config"
)

var Module = fx.Provide(
	provideAWSConfig,
	infra.NewDynamoDBClient,
	infra.NewS3Client,
	provideSESClient,
)

func provideAWSConfig(cfg *config.Config) (aws.Config, error) {
	return infra.LoadAWSConfig(context.Background(), cfg)
}

func provideSESClient(awsCfg aws.Config) infra.SESAPI {
	return infra.NewSESClient(awsCfg)
}

