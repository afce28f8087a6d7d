package domain

import "time"

// Job lifecycle event types published to the events exchange
const (
	EventJobCreated    = "image_job.created"
	EventJobProcessing = "image_job.processing"
	EventJobCompleted  = "image_job.completed"
	EventJobFailed     = "image_job.failed"
	EventJobUpdated    = "image_job.status_updated"
)

// JobEvent is the notification body emitted on every persisted status change
type JobEvent struct {
	Type       string    `json:"type"`
	JobID      int64     `json:"job_id"`
	Status     JobStatus `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
	Error      string    `json:"error,omitempty"`
}

// NewJobEvent builds an event of eventType describing job
func NewJobEvent(eventType string, job *ImageJob, at time.Time) JobEvent {
	ev := JobEvent{
		Type:       eventType,
		JobID:      job.ID,
		Status:     job.Status,
		OccurredAt: at,
	}
	if job.ErrorMessage != nil {
		ev.Error = *job.ErrorMessage
	}
	return ev
}
