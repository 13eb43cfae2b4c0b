package storage_fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"storehere/internal/infra"
	"storehere/internal/services"
	"storehere/pkg/config"
	"storehere/pkg/resilience"
)

var Module = fx.Provide(
	infra.NewS3Store,
	provideStorageConfig,
	provideInvoiceArchive,
	services.NewDocumentService,
)

func provideStorageConfig(cfg *config.Config) services.StorageConfig {
	return services.StorageConfig{
		InvoiceBucket:   cfg.InvoiceBucket,
		AgreementBucket: cfg.AgreementBucket,
		SiteMapBucket:   cfg.SiteMapBucket,
		SignedURLTTL:    cfg.SignedURLTTL,
	}
}

func provideInvoiceArchive(
	billing infra.BillingGateway,
	store infra.ObjectStore,
	downloader infra.DocumentDownloader,
	runner *resilience.Runner,
	cfg *config.Config,
	logger *zap.Logger,
) services.IInvoiceArchiveService {
	return services.NewInvoiceArchiveService(billing, store, downloader, runner, cfg.InvoiceBucket, logger)
}
