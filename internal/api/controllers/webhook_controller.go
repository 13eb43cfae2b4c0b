package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storehere/internal/models/billing_models"
	"storehere/internal/models/response_models"
	"storehere/internal/services"
)

const maxWebhookBody = 1 << 20

type WebhookController struct {
	webhookService services.IWebhookService
	logger         *zap.Logger
}

func NewWebhookController(webhookService services.IWebhookService, logger *zap.Logger) *WebhookController {
	return &WebhookController{
		webhookService: webhookService,
		logger:         logger.Named("webhook_controller"),
	}
}

// HandleWebhook acknowledges every well-formed event. Processing problems are
// logged and left to the ledger; only bad input is rejected, so the provider
// does not redeliver forever.
func (w *WebhookController) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}

	if err := w.webhookService.Verify(payload, c.GetHeader("Stripe-Signature")); err != nil {
		w.logger.Warn("webhook signature rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	event, err := billing_models.ParseEvent(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := w.webhookService.Dispatch(c.Request.Context(), event)
	if err != nil {
		w.logger.Error("webhook dispatch failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.String("outcome", result.Outcome),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, response_models.WebhookAck{Received: true})
}
