package dto

import (
	"time"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
)

// UploadRequest is the upload body; an empty data field is reported as an invalid format, not a bind error
type UploadRequest struct {
	Filename string `json:"filename" binding:"required"`
	Data     string `json:"data"`
	MimeType string `json:"mime_type" binding:"required"`
}

type UploadResponse struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type CreateImageJobRequest struct {
	OriginalFilename string `json:"original_filename" binding:"required"`
	OriginalFileURL  string `json:"original_file_url" binding:"required"`
	FileSizeOriginal int64  `json:"file_size_original"`
}

// UpdateStatusRequest carries a partial update; absent and null fields stay nil
type UpdateStatusRequest struct {
	Status            string  `json:"status" binding:"required"`
	ProcessedFileURL  *string `json:"processed_file_url"`
	FileSizeProcessed *int64  `json:"file_size_processed"`
	ErrorMessage      *string `json:"error_message"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []ImageJobDTO `json:"jobs"`
	NextCursor *string       `json:"next_cursor"`
}

type ImageJobDTO struct {
	ID                int64      `json:"id"`
	OriginalFilename  string     `json:"original_filename"`
	OriginalFileURL   string     `json:"original_file_url"`
	ProcessedFileURL  *string    `json:"processed_file_url"`
	Status            string     `json:"status"`
	ErrorMessage      *string    `json:"error_message"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	FileSizeOriginal  int64      `json:"file_size_original"`
	FileSizeProcessed *int64     `json:"file_size_processed"`
}

type ErrorResponse struct {
	Error string       `json:"error"`
	Code  string       `json:"code"`
	Job   *ImageJobDTO `json:"job,omitempty"`
}

func FromDomain(job *domain.ImageJob) ImageJobDTO {
	return ImageJobDTO{
		ID:                job.ID,
		OriginalFilename:  job.OriginalFilename,
		OriginalFileURL:   job.OriginalFileURL,
		ProcessedFileURL:  job.ProcessedFileURL,
		Status:            job.Status.String(),
		ErrorMessage:      job.ErrorMessage,
		CreatedAt:         job.CreatedAt,
		CompletedAt:       job.CompletedAt,
		FileSizeOriginal:  job.FileSizeOriginal,
		FileSizeProcessed: job.FileSizeProcessed,
	}
}

func FromDomainList(jobs []*domain.ImageJob) []ImageJobDTO {
	out := make([]ImageJobDTO, len(jobs))
	for i, job := range jobs {
		out[i] = FromDomain(job)
	}
	return out
}
