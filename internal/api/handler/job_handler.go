package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
	"github.com/cuongbtq/imagejob-service/internal/api/dto"
	"github.com/cuongbtq/imagejob-service/internal/api/service"
	"github.com/cuongbtq/imagejob-service/internal/api/storage"
	"github.com/gin-gonic/gin"
)

const maxPageSize = 100

// UploadFile handles POST /api/v1/uploads
// Validates a base64 image and returns its storage URL
func (h *JobHandler) UploadFile(c *gin.Context) {
	var req dto.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		validationFailed(c, "Invalid request body")
		return
	}

	result, err := h.service.UploadFile(c.Request.Context(), req.Filename, req.Data, req.MimeType)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, dto.UploadResponse{
		URL:  result.URL,
		Size: result.Size,
	})
}

// CreateJob handles POST /api/v1/image-jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateImageJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		validationFailed(c, "Invalid request body")
		return
	}

	job, err := h.service.CreateJob(c.Request.Context(), service.CreateJobInput{
		OriginalFilename: req.OriginalFilename,
		OriginalFileURL:  req.OriginalFileURL,
		FileSizeOriginal: req.FileSizeOriginal,
	})
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, dto.FromDomain(job))
}

// GetJob handles GET /api/v1/image-jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, dto.FromDomain(job))
}

// ListJobs handles GET /api/v1/image-jobs
// Without page_size every job is returned, newest first
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		validationFailed(c, "Invalid query parameters")
		return
	}

	if req.PageSize < 0 {
		validationFailed(c, "page_size must not be negative")
		return
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		validationFailed(c, "Invalid cursor")
		return
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), storage.JobFilter{
		Status:   domain.JobStatus(req.Status),
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	// the store fetches one row past the page to signal more results
	var nextCursor *string
	if req.PageSize > 0 && len(jobs) > req.PageSize {
		jobs = jobs[:req.PageSize]
		last := jobs[len(jobs)-1]
		encoded := EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
		nextCursor = &encoded
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       dto.FromDomainList(jobs),
		NextCursor: nextCursor,
	})
}

// RemoveBackground handles POST /api/v1/image-jobs/:job_id/remove-background
func (h *JobHandler) RemoveBackground(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.service.RemoveBackground(c.Request.Context(), id)
	if err != nil {
		// job is the persisted failure when the remover errored
		h.respondError(c, err, job)
		return
	}

	c.JSON(http.StatusOK, dto.FromDomain(job))
}

// UpdateJobStatus handles PATCH /api/v1/image-jobs/:job_id/status
func (h *JobHandler) UpdateJobStatus(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		validationFailed(c, "Invalid request body")
		return
	}

	job, err := h.service.UpdateJobStatus(c.Request.Context(), id, service.UpdateStatusInput{
		Status:            req.Status,
		ProcessedFileURL:  req.ProcessedFileURL,
		FileSizeProcessed: req.FileSizeProcessed,
		ErrorMessage:      req.ErrorMessage,
	})
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, dto.FromDomain(job))
}

func parseJobID(c *gin.Context) (int64, bool) {
	raw := c.Param("job_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		validationFailed(c, "job_id must be a positive integer")
		return 0, false
	}
	return id, true
}
