package controllers

import (
	"github.com/gin-gonic/gin"
	"storehere/pkg/middleware"
	"storehere/pkg/utils"
)

type Handlers struct {
	Payment     *PaymentController
	Webhook     *WebhookController
	Container   *ContainerController
	WaitingList *WaitingListController
	Document    *DocumentController
}

func RegisterRoutes(r *gin.Engine, jwtSecret []byte, h Handlers) {
	r.POST("/webhook", h.Webhook.HandleWebhook)
	r.POST("/create-customer", h.Payment.CreateCustomer)

	api := r.Group("/api")
	api.GET("/availability", h.Container.Availability)
	api.POST("/waiting-list", h.WaitingList.Join)

	auth := api.Group("", middleware.JWTAuthMiddleware(jwtSecret))
	auth.GET("/sites", h.Container.ListSites)
	auth.GET("/sites/:siteId/containers", h.Container.ListContainers)
	auth.GET("/me/container", h.Container.MyContainer)
	auth.POST("/upload-agreement", h.Document.UploadAgreement)
	auth.GET("/documents/invoices", h.Document.ListInvoices)

	admin := auth.Group("", middleware.RoleMiddleware(utils.RoleAdmin))
	admin.POST("/sites", h.Container.CreateSite)
	admin.POST("/sites/:siteId/map", h.Container.UploadSiteMap)
	admin.POST("/sites/:siteId/containers", h.Container.CreateContainer)
	admin.POST("/sites/:siteId/containers/:number/release", h.Container.Release)
	admin.POST("/sites/:siteId/containers/:number/abandon", h.Container.Abandon)
	admin.GET("/containers/overdue", h.Container.ListOverdue)
	admin.GET("/waiting-list", h.WaitingList.List)
	admin.GET("/documents/agreements", h.Document.ListAgreements)
}
