package webhook_fx

import (
	"go.uber.org/fx"
	"storehere/internal/api/controllers"
	"storehere/internal/services"
	"storehere/pkg/config"
)

var Module = fx.Provide(
	services.NewAssignmentService,
	services.NewInitialPaymentService,
	services.NewRecurringPaymentService,
	provideWebhookConfig,
	services.NewWebhookService,
	controllers.NewWebhookController,
)

func provideWebhookConfig(cfg *config.Config) services.WebhookConfig {
	return services.WebhookConfig{
		Deadline:  cfg.WebhookDeadline,
		Retention: cfg.EventRetention,
	}
}
