package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storehere/internal/models/request_models"
	"storehere/internal/services"
	"storehere/pkg/utils"
)

type PaymentController struct {
	paymentService services.PaymentService
	logger         *zap.Logger
}

func NewPaymentController(paymentService services.PaymentService, logger *zap.Logger) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		logger:         logger.Named("payment_controller"),
	}
}

// CreateCustomer godoc
// @Summary Start the first payment for a container
// @Description Finds or creates the billing customer and opens a hosted checkout for prepaid rent plus bond
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body request_models.CreateCustomerRequest true "Checkout request"
// @Success 200 {object} response_models.CreateCustomerResponse
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /create-customer [post]
func (p *PaymentController) CreateCustomer(c *gin.Context) {
	var req request_models.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	resp, err := p.paymentService.CreateCheckout(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p.logger.Error("create checkout failed", zap.String("trace_id", c.GetString("trace_id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
