package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepline/attempt-service/internal/services"
	"github.com/prepline/attempt-service/internal/utils"
)

// BaseHandler carries shared handler plumbing.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// LogRequest logs a handler entry with the request-scoped logger.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.FromContext(c, h.logger).Info(msg, args...)
}

// LogError logs a handler failure with the request-scoped logger.
func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err)
	utils.FromContext(c, h.logger).Error(msg, args...)
}

// uuidParam reads a path parameter and rejects anything that is not a UUID.
// Returns "" after writing the error response.
func (h *BaseHandler) uuidParam(c *gin.Context, name string) string {
	value := c.Param(name)
	if _, err := uuid.Parse(value); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name + " parameter",
			Details: "expected a UUID",
		})
		return ""
	}
	return value
}

// currentUserID pulls the authenticated user from the context. Returns ""
// after writing the error response.
func (h *BaseHandler) currentUserID(c *gin.Context) string {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	return userID.(string)
}

// handleServiceError maps service errors to HTTP status codes.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var businessErr *services.BusinessRuleError

	switch {
	case services.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
		})
	case services.IsPermissionError(err), errors.Is(err, services.ErrNotGroupMember):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: err.Error(),
		})
	case services.IsValidationError(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	// Expired writes are a conflict variant: the state machine has not
	// transitioned, the write window has just closed.
	case errors.Is(err, services.ErrAttemptTimeExpired),
		errors.Is(err, services.ErrAttemptAlreadySubmitted),
		errors.Is(err, services.ErrAttemptNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrInviteInvalid),
		errors.Is(err, services.ErrTestNotAvailable),
		errors.Is(err, services.ErrTestNotAssigned),
		errors.Is(err, services.ErrQuestionNotInTest):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: err.Error(),
		})
	case errors.As(err, &businessErr):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: businessErr.Error(),
		})
	default:
		utils.FromContext(c, h.logger).Error("Unhandled service error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
