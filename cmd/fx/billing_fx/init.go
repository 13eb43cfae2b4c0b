package billing_fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"storehere/internal/infra"
	"storehere/pkg/config"
	"storehere/pkg/resilience"
)

var Module = fx.Provide(
	provideRunner,
	infra.NewStripeGateway,
	provideDownloader,
)

func provideRunner(cfg *config.Config, logger *zap.Logger) *resilience.Runner {
	rc := resilience.DefaultConfig()
	rc.MaxAttempts = cfg.RetryMaxAttempts
	rc.FailureThreshold = cfg.BreakerFailures
	rc.OpenTimeout = cfg.BreakerOpenTimeout
	return resilience.New(rc, logger.Named("resilience"))
}

// invoice PDFs are fetched with the Stripe key, sent only to stripe.com hosts
func provideDownloader(cfg *config.Config) infra.DocumentDownloader {
	return infra.NewHTTPDownloader(cfg.StripeSecretKey, cfg.ExternalCallTimeout)
}
