package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/domain/shared"
	"github.com/erp/shopsync/internal/infrastructure/scheduler"
	"github.com/erp/shopsync/internal/interfaces/http/dto"
	"github.com/erp/shopsync/internal/interfaces/http/middleware"
)

// RequestIDKey is the gin context key set by the request id middleware
const RequestIDKey = "request_id"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// getOperator returns the authenticated operator, empty on open routes
func getOperator(c *gin.Context) string {
	return middleware.GetJWTOperator(c)
}

// parseUUIDParam parses a path parameter as UUID, answering 400 on failure
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response for queued work
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	h.Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		getRequestID(c),
		details,
	))
}

// BindError answers a failed ShouldBind call with field details
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// errorMapping pairs a sentinel with the API code it is reported as
type errorMapping struct {
	target error
	code   string
}

var errorMappings = []errorMapping{
	{integration.ErrInstanceNotFound, dto.ErrCodeNotFound},
	{integration.ErrJobNotFound, dto.ErrCodeNotFound},
	{integration.ErrLogEntryNotFound, dto.ErrCodeNotFound},
	{integration.ErrWebhookEventNotFound, dto.ErrCodeNotFound},
	{integration.ErrCrossReferenceNotFound, dto.ErrCodeNotFound},

	{integration.ErrInstanceAlreadyExists, dto.ErrCodeAlreadyExists},
	{integration.ErrCrossReferenceConflict, dto.ErrCodeConflict},

	{integration.ErrInstanceAuthRejected, dto.ErrCodeAuthRejected},
	{integration.ErrAuthRejected, dto.ErrCodeAuthRejected},
	{integration.ErrRemoteUnavailable, dto.ErrCodeRemoteUnavailable},
	{integration.ErrWebhookAuthenticity, dto.ErrCodeWebhookSigned},

	{integration.ErrJobNotCancellable, dto.ErrCodeInvalidState},
	{integration.ErrLogEntryNotRetryable, dto.ErrCodeInvalidState},
	{integration.ErrInvalidJobTransition, dto.ErrCodeInvalidState},
	{integration.ErrInvalidWebhookTransition, dto.ErrCodeInvalidState},

	{integration.ErrValidation, dto.ErrCodeValidation},
	{integration.ErrInvalidEntityType, dto.ErrCodeValidation},
	{integration.ErrInvalidDirection, dto.ErrCodeValidation},
	{integration.ErrUnknownWebhookTopic, dto.ErrCodeValidation},
	{integration.ErrInstanceNameRequired, dto.ErrCodeValidation},
	{integration.ErrInstanceInvalidShopURL, dto.ErrCodeValidation},
	{integration.ErrInstanceMissingToken, dto.ErrCodeValidation},
	{integration.ErrInstanceInvalidAPIVersion, dto.ErrCodeValidation},
	{integration.ErrInstanceInvalidLocation, dto.ErrCodeValidation},

	{scheduler.ErrJobQueueFull, dto.ErrCodeQueueFull},
	{scheduler.ErrSchedulerNotRunning, dto.ErrCodeServiceUnavailable},
}

// codeFor returns the API code for err and whether its message is safe to
// show to the caller
func codeFor(err error) (string, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.code, true
		}
	}
	return dto.ErrCodeInternal, false
}

// HandleError translates service errors into HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.ErrorWithCode(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
		return
	}

	code, known := codeFor(err)
	if !known {
		_ = c.Error(err)
		h.InternalError(c, "An unexpected error occurred")
		return
	}
	h.ErrorWithCode(c, code, err.Error())
}

// pageFromQuery reads page and page_size, applying defaults
func pageFromQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	p := dto.PageRequest{Page: page, PageSize: pageSize}
	p.Normalize()
	if p.PageSize > 200 {
		p.PageSize = 200
	}
	return p.Page, p.PageSize
}
