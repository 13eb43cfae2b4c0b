package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storehere/internal/models/request_models"
	"storehere/internal/services"
	"storehere/pkg/utils"
)

const maxSiteMapBytes = 10 << 20

type ContainerController struct {
	containerService services.IContainerService
	logger           *zap.Logger
}

func NewContainerController(containerService services.IContainerService, logger *zap.Logger) *ContainerController {
	return &ContainerController{
		containerService: containerService,
		logger:           logger.Named("container_controller"),
	}
}

// ListSites godoc
// @Summary List sites
// @Tags Sites
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /api/sites [get]
func (cc *ContainerController) ListSites(c *gin.Context) {
	sites, err := cc.containerService.ListSites(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, cc.logger, err)
		return
	}
	utils.RespondSuccess(c, sites, "Sites retrieved successfully")
}

// CreateSite godoc
// @Summary Create a site
// @Tags Sites
// @Accept json
// @Produce json
// @Param request body request_models.CreateSiteRequest true "Site"
// @Success 201 {object} utils.APIResponse
// @Security BearerAuth
// @Router /api/sites [post]
func (cc *ContainerController) CreateSite(c *gin.Context) {
	var req request_models.CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	site, err := cc.containerService.CreateSite(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, cc.logger, err)
		return
	}
	utils.RespondCreated(c, site, "Site created successfully")
}

func (cc *ContainerController) UploadSiteMap(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "file is required")
		return
	}
	if file.Size > maxSiteMapBytes {
		utils.RespondError(c, http.StatusBadRequest, "file is too large")
		return
	}
	f, err := file.Open()
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "could not read file")
		return
	}
	defer f.Close()
	body, err := io.ReadAll(f)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "could not read file")
		return
	}

	site, err := cc.containerService.UploadSiteMap(c.Request.Context(), c.Param("siteId"), file.Filename, body, file.Header.Get("Content-Type"))
	if err != nil {
		utils.HandleServiceError(c, cc.logger, err)
		return
	}
	utils.RespondSuccess(c, site, "Site map uploaded successfully")
}

// ListContainers godoc
// @Summary List a site's containers with their current status
// @Tags Containers
// @Produce json
// @Param siteId path string true "Site id"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /api/sites/{siteId}/containers [get]
func (cc *ContainerController) ListContainers(c *gin.Context) {
	resp, err := cc.containerService.ListContainers(c.Request.Context(), c.Param("siteId"))
	if err != nil {
		utils.HandleServiceError(c, cc.logger, err)
		return
	}
	utils.RespondSuccess(c, resp, "Containers retrieved successfully")
}

func (cc *ContainerController) CreateContainer(c *gin.Context) {
	var req request_models.CreateContainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	container, err := cc.containerService.CreateContainer(c.Request.Context(), c.Param("siteId"), req)
	if err != nil {
		utils.HandleServiceError(c, cc.logger, err)
		return
	}
	utils.RespondCreated(c, container, "Container created successfully")
}

func (cc *ContainerController) Release(c *gin.Context) {
	container, err := cc.containerService.Release(c.Request.Context(), c.Param("siteId"), c.Param("number"))
	if err != nil {
		utils.HandleServiceError(c, cc.logger, err)
		return
	}
	utils.RespondSuccess(c, container, "Container released")
}

func (cc *ContainerController) Abandon(c *gin.Context) {
	container, err := cc.containerService.Abandon(c.Request.Context(), c.Param("siteId"), c.Param("number"))
	if err != nil {
		utils.HandleServiceError(c, cc.logger, err)
		return
	}
	utils.RespondSuccess(c, container, "Container marked abandoned")
}

func (cc *ContainerController) ListOverdue(c *gin.Context) {
	containers, err := cc.containerService.ListOverdue(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, cc.logger, err)
		return
	}
	utils.RespondSuccess(c, containers, "Overdue containers retrieved successfully")
}

// MyContainer returns the rental of the signed-in customer.
func (cc *ContainerController) MyContainer(c *gin.Context) {
	email := c.GetString("email")
	if email == "" {
		utils.RespondError(c, http.StatusBadRequest, "token has no email")
		return
	}
	container, err := cc.containerService.MyContainer(c.Request.Context(), email)
	if err != nil {
		utils.HandleServiceError(c, cc.logger, err)
		return
	}
	utils.RespondSuccess(c, container, "Container retrieved successfully")
}

// Availability godoc
// @Summary Whether a container can be booked right now
// @Tags Containers
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /api/availability [get]
func (cc *ContainerController) Availability(c *gin.Context) {
	resp, err := cc.containerService.Availability(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, cc.logger, err)
		return
	}
	utils.RespondSuccess(c, resp, "")
}
