package mail_fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"storehere/internal/infra"
	"storehere/internal/services"
	"storehere/pkg/config"
	"storehere/pkg/resilience"
)

var Module = fx.Provide(provideEmailSender, provideMailService)

func provideEmailSender(client infra.SESAPI, cfg *config.Config) infra.EmailSender {
	return infra.NewSESSender(client, cfg.SESFromEmail, cfg.SESFromName)
}

func provideMailService(cfg *config.Config, sender infra.EmailSender, runner *resilience.Runner, logger *zap.Logger) services.IMailService {
	return services.NewMailService(services.MailConfig{
		AppName:    cfg.SESFromName,
		AppBaseURL: cfg.AppBaseURL,
	}, sender, runner, logger)
}
