package payment_service_fx

import (
	"go.uber.org/fx"
	"storehere/internal/api/controllers"
	"storehere/internal/services"
	"storehere/pkg/config"
)

var Module = fx.Provide(
	provideBillingConfig,
	services.NewPaymentService,
	controllers.NewPaymentController,
)

func provideBillingConfig(cfg *config.Config) services.BillingConfig {
	return services.BillingConfig{
		Currency:          cfg.Currency,
		PrepaidRentCents:  cfg.PrepaidRentCents,
		SecurityBondCents: cfg.SecurityBondCents,
		PrepaidWeeks:      cfg.PrepaidWeeks,
		PriceIDs:          cfg.StripePriceIDs,
		SuccessURL:        cfg.CheckoutSuccessURL,
		CancelURL:         cfg.CheckoutCancelURL,
		AppBaseURL:        cfg.AppBaseURL,
	}
}
