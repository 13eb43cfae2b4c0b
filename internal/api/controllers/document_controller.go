package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"storehere/internal/services"
	"storehere/pkg/utils"
)

const maxAgreementBytes = 20 << 20

type DocumentController struct {
	documentService  services.IDocumentService
	containerService services.IContainerService
	logger           *zap.Logger
}

func NewDocumentController(documentService services.IDocumentService, containerService services.IContainerService, logger *zap.Logger) *DocumentController {
	return &DocumentController{
		documentService:  documentService,
		containerService: containerService,
		logger:           logger.Named("document_controller"),
	}
}

// UploadAgreement godoc
// @Summary Upload a signed rental agreement
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Signed agreement (pdf)"
// @Success 201 {object} utils.APIResponse
// @Security BearerAuth
// @Router /api/upload-agreement [post]
func (d *DocumentController) UploadAgreement(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "file is required")
		return
	}
	if file.Size > maxAgreementBytes {
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

	key, err := d.documentService.UploadAgreement(c.Request.Context(), c.GetString("user_id"), body)
	if err != nil {
		utils.HandleServiceError(c, d.logger, err)
		return
	}
	utils.RespondCreated(c, gin.H{"key": key}, "Agreement uploaded successfully")
}

func (d *DocumentController) ListAgreements(c *gin.Context) {
	docs, err := d.documentService.ListAgreements(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, d.logger, err)
		return
	}
	utils.RespondSuccess(c, docs, "Agreements retrieved successfully")
}

// ListInvoices is open to admins and to the customer who owns the invoices.
func (d *DocumentController) ListInvoices(c *gin.Context) {
	customerID := c.Query("customerId")
	if c.GetString("Role") != utils.RoleAdmin {
		if err := d.ownsCustomer(c, customerID); err != nil {
			utils.HandleServiceError(c, d.logger, err)
			return
		}
	}

	docs, err := d.documentService.ListInvoices(c.Request.Context(), customerID)
	if err != nil {
		utils.HandleServiceError(c, d.logger, err)
		return
	}
	utils.RespondSuccess(c, docs, "Invoices retrieved successfully")
}

func (d *DocumentController) ownsCustomer(c *gin.Context, customerID string) error {
	container, err := d.containerService.MyContainer(c.Request.Context(), c.GetString("email"))
	if errors.Is(err, utils.ErrContainerNotFound) {
		return utils.ErrForbidden
	}
	if err != nil {
		return err
	}
	if customerID == "" || container.BillingCustomerID != customerID {
		return utils.ErrForbidden
	}
	return nil
}
