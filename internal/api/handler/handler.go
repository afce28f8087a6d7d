package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
	"github.com/cuongbtq/imagejob-service/internal/api/dto"
	"github.com/cuongbtq/imagejob-service/internal/api/service"
	"github.com/gin-gonic/gin"
)

// Error codes returned in the "code" field of error bodies
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidFormat     = "INVALID_FORMAT"
	CodeTooLarge          = "TOO_LARGE"
	CodeAlreadyCompleted  = "ALREADY_COMPLETED"
	CodeAlreadyInProgress = "ALREADY_IN_PROGRESS"
	CodeUnprocessable     = "UNPROCESSABLE"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeProcessingFailed  = "PROCESSING_FAILED"
	CodeInternal          = "INTERNAL_ERROR"
)

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Service        *service.JobService
	DB             HealthChecker
	MetricsHandler http.Handler
	ServiceName    string
}

// JobHandler handles image job HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	service *service.JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}

// HealthHandler serves /health
type HealthHandler struct {
	db          HealthChecker
	serviceName string
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		db:          deps.DB,
		serviceName: deps.ServiceName,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": h.serviceName,
				"error":   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.serviceName,
	})
}

// errorStatus maps a service error to its HTTP status and code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrInvalidFormat):
		return http.StatusBadRequest, CodeInvalidFormat
	case errors.Is(err, domain.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, CodeTooLarge
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return http.StatusConflict, CodeAlreadyCompleted
	case errors.Is(err, domain.ErrAlreadyInProgress):
		return http.StatusConflict, CodeAlreadyInProgress
	case errors.Is(err, domain.ErrUnprocessable):
		return http.StatusUnprocessableEntity, CodeUnprocessable
	case errors.Is(err, domain.ErrProcessingFailed):
		return http.StatusBadGateway, CodeProcessingFailed
	case domain.IsValidationError(err):
		return http.StatusBadRequest, CodeValidationError
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondError writes the error body for err. Internal errors are logged and masked.
func (h *JobHandler) respondError(c *gin.Context, err error, job *domain.ImageJob) {
	status, code := errorStatus(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		message = "internal server error"
	}

	body := dto.ErrorResponse{Error: message, Code: code}
	if job != nil {
		jobDTO := dto.FromDomain(job)
		body.Job = &jobDTO
	}
	c.JSON(status, body)
}

func validationFailed(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error: message,
		Code:  CodeValidationError,
	})
}
