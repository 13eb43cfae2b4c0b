package controllers_fx

import (
	"go.uber.org/fx"
	"storehere/internal/api/controllers"
)

var Module = fx.Provide(provideHandlers)

type handlerParams struct {
	fx.In

	Payment     *controllers.PaymentController
	Webhook     *controllers.WebhookController
	Container   *controllers.ContainerController
	WaitingList *controllers.WaitingListController
	Document    *controllers.DocumentController
}

func provideHandlers(p handlerParams) controllers.Handlers {
	return controllers.Handlers{
		Payment:     p.Payment,
		Webhook:     p.Webhook,
		Container:   p.Container,
		WaitingList: p.WaitingList,
		Document:    p.Document,
	}
}
