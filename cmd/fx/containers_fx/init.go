package containers_fx

import (
	"go.uber.org/fx"
	"storehere/internal/api/controllers"
	"storehere/internal/services"
)

var Module = fx.Provide(
	services.NewWaitingListService,
	services.NewContainerService,
	controllers.NewContainerController,
	controllers.NewWaitingListController,
	controllers.NewDocumentController,
)
