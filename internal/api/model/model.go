package model

import (
	"database/sql"
	"time"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
)

// ImageJob mirrors one row of image_jobs
type ImageJob struct {
	ID                int64          `db:"id"`
	OriginalFilename  string         `db:"original_filename"`
	OriginalFileURL   string         `db:"original_file_url"`
	ProcessedFileURL  sql.NullString `db:"processed_file_url"`
	Status            string         `db:"status"`
	ErrorMessage      sql.NullString `db:"error_message"`
	CreatedAt         time.Time      `db:"created_at"`
	CompletedAt       sql.NullTime   `db:"completed_at"`
	FileSizeOriginal  int64          `db:"file_size_original"`
	FileSizeProcessed sql.NullInt64  `db:"file_size_processed"`
}

// ToDomain converts the row into a domain.ImageJob, mapping NULL columns to nil pointers
func (m *ImageJob) ToDomain() *domain.ImageJob {
	job := &domain.ImageJob{
		ID:               m.ID,
		OriginalFilename: m.OriginalFilename,
		OriginalFileURL:  m.OriginalFileURL,
		Status:           domain.JobStatus(m.Status),
		CreatedAt:        m.CreatedAt.UTC(),
		FileSizeOriginal: m.FileSizeOriginal,
	}

	if m.ProcessedFileURL.Valid {
		v := m.ProcessedFileURL.String
		job.ProcessedFileURL = &v
	}
	if m.ErrorMessage.Valid {
		v := m.ErrorMessage.String
		job.ErrorMessage = &v
	}
	if m.CompletedAt.Valid {
		v := m.CompletedAt.Time.UTC()
		job.CompletedAt = &v
	}
	if m.FileSizeProcessed.Valid {
		v := m.FileSizeProcessed.Int64
		job.FileSizeProcessed = &v
	}

	return job
}
