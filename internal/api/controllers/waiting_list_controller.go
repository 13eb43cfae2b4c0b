package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storehere/internal/models/request_models"
	"storehere/internal/services"
	"storehere/pkg/utils"
)

type WaitingListController struct {
	waitingListService services.IWaitingListService
	logger             *zap.Logger
}

func NewWaitingListController(waitingListService services.IWaitingListService, logger *zap.Logger) *WaitingListController {
	return &WaitingListController{
		waitingListService: waitingListService,
		logger:             logger.Named("waiting_list_controller"),
	}
}

// Join godoc
// @Summary Join the waiting list
// @Tags WaitingList
// @Accept json
// @Produce json
// @Param request body request_models.JoinWaitingListRequest true "Contact"
// @Success 200 {object} utils.APIResponse
// @Success 201 {object} utils.APIResponse
// @Router /api/waiting-list [post]
func (w *WaitingListController) Join(c *gin.Context) {
	var req request_models.JoinWaitingListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	entry, added, err := w.waitingListService.Join(c.Request.Context(), req.Email, req.Name)
	if err != nil {
		utils.HandleServiceError(c, w.logger, err)
		return
	}
	if !added {
		utils.RespondSuccess(c, entry, "Already on the waiting list")
		return
	}
	utils.RespondCreated(c, entry, "Added to the waiting list")
}

func (w *WaitingListController) List(c *gin.Context) {
	entries, err := w.waitingListService.List(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, w.logger, err)
		return
	}
	utils.RespondSuccess(c, entries, "Waiting list retrieved successfully")
}
