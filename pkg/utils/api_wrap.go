package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func traceID(c *gin.Context) string {
	return c.GetString("trace_id")
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, APIResponse{
		Status:  "success",
		Code:    http.StatusOK,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondCreated(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:  "success",
		Code:    http.StatusCreated,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
	})
}

// HandleServiceError maps service sentinel errors onto HTTP responses.
func HandleServiceError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		RespondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		RespondError(c, http.StatusForbidden, "Forbidden")
	case errors.Is(err, ErrSiteNotFound):
		RespondError(c, http.StatusNotFound, "Site not found")
	case errors.Is(err, ErrContainerNotFound), errors.Is(err, ErrNotFound):
		RespondError(c, http.StatusNotFound, "Container not found")
	case errors.Is(err, ErrAlreadyExists):
		RespondError(c, http.StatusConflict, "Resource already exists")
	case errors.Is(err, ErrContainerUnavailable), errors.Is(err, ErrConflict):
		RespondError(c, http.StatusConflict, "Container is not available")
	case errors.Is(err, ErrBillingUnavailable):
		logger.Error("billing error", zap.String("trace_id", traceID(c)), zap.Error(err))
		RespondError(c, http.StatusBadGateway, "Billing system unavailable")
	default:
		logger.Error("unhandled service error", zap.String("trace_id", traceID(c)), zap.Error(err))
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
