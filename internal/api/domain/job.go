package domain

import (
	"time"
)

// JobStatus is the lifecycle state stored in image_jobs.status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobStatuses lists every legal status value
var JobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusFailed,
}

// Valid reports whether s is one of the four known statuses
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) String() string {
	return string(s)
}

// ImageJob is one image's record through upload, processing and its terminal status.
// Optional columns are nil until the lifecycle sets them.
type ImageJob struct {
	ID                int64
	OriginalFilename  string
	OriginalFileURL   string
	ProcessedFileURL  *string
	Status            JobStatus
	ErrorMessage      *string
	CreatedAt         time.Time
	CompletedAt       *time.Time
	FileSizeOriginal  int64
	FileSizeProcessed *int64
}

// StatusUpdate holds the fields of a partial status update.
// A nil pointer means "not supplied"; a non-nil pointer is written even when it holds a zero value.
type StatusUpdate struct {
	Status            JobStatus
	ProcessedFileURL  *string
	FileSizeProcessed *int64
	ErrorMessage      *string
}

// ProcessingResult is what a background remover produces for a job
type ProcessingResult struct {
	ProcessedFileURL  string
	FileSizeProcessed int64
}

// UploadResult is the fabricated storage location of an accepted upload
type UploadResult struct {
	URL  string
	Size int64
}
