package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
	"github.com/cuongbtq/imagejob-service/internal/api/events"
	"github.com/cuongbtq/imagejob-service/internal/api/processor"
	"github.com/cuongbtq/imagejob-service/internal/api/storage"
	"github.com/cuongbtq/imagejob-service/internal/telemetry"
	"github.com/go-playground/validator/v10"
)

// terminalWriteTimeout bounds the completed/failed write that follows a successful claim
const terminalWriteTimeout = 5 * time.Second

// Store is the persistence the service needs
type Store interface {
	CreateJob(ctx context.Context, filename, fileURL string, size int64) (*domain.ImageJob, error)
	GetJobByID(ctx context.Context, id int64) (*domain.ImageJob, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]*domain.ImageJob, error)
	UpdateJobStatus(ctx context.Context, id int64, update domain.StatusUpdate) (*domain.ImageJob, error)
	ClaimJob(ctx context.Context, id int64) (*domain.ImageJob, error)
	CompleteJob(ctx context.Context, id int64, result domain.ProcessingResult) (*domain.ImageJob, error)
	FailJob(ctx context.Context, id int64, message string) (*domain.ImageJob, error)
}

// UploadValidator checks an upload and fabricates its URL
type UploadValidator interface {
	Validate(filename, data, contentType string) (*domain.UploadResult, error)
}

// Dependencies holds everything JobService needs. Publisher, Metrics and Now are optional.
type Dependencies struct {
	Store     Store
	Uploader  UploadValidator
	Remover   processor.BackgroundRemover
	Publisher events.Publisher
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// JobService implements the upload and image job operations
type JobService struct {
	store     Store
	uploader  UploadValidator
	remover   processor.BackgroundRemover
	publisher events.Publisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
	validate  *validator.Validate
}

// NewJobService creates a JobService
func NewJobService(deps Dependencies) *JobService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &JobService{
		store:     deps.Store,
		uploader:  deps.Uploader,
		remover:   deps.Remover,
		publisher: publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       now,
		validate:  newValidate(),
	}
}

// CreateJobInput describes a new job
type CreateJobInput struct {
	OriginalFilename string `json:"original_filename" validate:"required"`
	OriginalFileURL  string `json:"original_file_url" validate:"required,http_url"`
	FileSizeOriginal int64  `json:"file_size_original" validate:"gt=0"`
}

// UpdateStatusInput describes a partial status update; nil pointers are not written
type UpdateStatusInput struct {
	Status            string  `json:"status" validate:"required,oneof=pending processing completed failed"`
	ProcessedFileURL  *string `json:"processed_file_url" validate:"omitnil,http_url"`
	FileSizeProcessed *int64  `json:"file_size_processed" validate:"omitnil,gte=0"`
	ErrorMessage      *string `json:"error_message"`
}

// UploadFile validates an upload and returns its fabricated location
func (s *JobService) UploadFile(ctx context.Context, filename, data, contentType string) (*domain.UploadResult, error) {
	result, err := s.uploader.Validate(filename, data, contentType)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTooLarge):
			s.metrics.ObserveUpload(telemetry.UploadTooLarge)
		default:
			s.metrics.ObserveUpload(telemetry.UploadInvalidFormat)
		}
		s.logger.Warn("Upload rejected",
			slog.String("filename", filename),
			slog.String("content_type", contentType),
			slog.Any("error", err),
		)
		return nil, err
	}

	s.metrics.ObserveUpload(telemetry.UploadAccepted)
	s.logger.Info("Upload accepted",
		slog.String("url", result.URL),
		slog.Int64("size", result.Size),
	)
	return result, nil
}

// CreateJob records a new pending job
func (s *JobService) CreateJob(ctx context.Context, input CreateJobInput) (*domain.ImageJob, error) {
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}

	job, err := s.store.CreateJob(ctx, input.OriginalFilename, input.OriginalFileURL, input.FileSizeOriginal)
	if err != nil {
		return nil, err
	}

	s.metrics.IncJobsCreated()
	s.publish(ctx, domain.EventJobCreated, job)
	return job, nil
}

// GetJob returns one job
func (s *JobService) GetJob(ctx context.Context, id int64) (*domain.ImageJob, error) {
	return s.store.GetJobByID(ctx, id)
}

// ListJobs returns jobs newest first
func (s *JobService) ListJobs(ctx context.Context, filter storage.JobFilter) ([]*domain.ImageJob, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	return s.store.ListJobs(ctx, filter)
}

// UpdateJobStatus applies an unguarded partial update
func (s *JobService) UpdateJobStatus(ctx context.Context, id int64, input UpdateStatusInput) (*domain.ImageJob, error) {
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}

	job, err := s.store.UpdateJobStatus(ctx, id, domain.StatusUpdate{
		Status:            domain.JobStatus(input.Status),
		ProcessedFileURL:  input.ProcessedFileURL,
		FileSizeProcessed: input.FileSizeProcessed,
		ErrorMessage:      input.ErrorMessage,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventJobUpdated, job)
	return job, nil
}

// RemoveBackground runs the pending -> processing -> completed | failed transition.
// Exactly one concurrent caller wins the claim; the rest get the rejection for the status they observe.
// When the remover fails the failed job is returned alongside an error wrapping ErrProcessingFailed.
func (s *JobService) RemoveBackground(ctx context.Context, id int64) (*domain.ImageJob, error) {
	logger := s.logger.With(slog.Int64("job_id", id))

	job, err := s.store.GetJobByID(ctx, id)
	if err != nil {
		s.observeRejection(err)
		return nil, err
	}

	if err := domain.TransitionError(job.Status); err != nil {
		s.observeRejection(err)
		logger.Info("Background removal rejected",
			slog.String("status", job.Status.String()),
			slog.Any("error", err),
		)
		return nil, err
	}

	claimed, err := s.store.ClaimJob(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotClaimable) {
			err = s.classifyLostClaim(ctx, id)
		}
		s.observeRejection(err)
		return nil, err
	}
	s.publish(ctx, domain.EventJobProcessing, claimed)

	// once claimed the job must reach a terminal status even if the caller goes away
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	result, procErr := s.remover.RemoveBackground(ctx, claimed)
	if procErr != nil {
		logger.Error("Background removal failed", slog.Any("error", procErr))

		failed, err := s.store.FailJob(wctx, id, procErr.Error())
		if err != nil {
			s.metrics.ObserveTransition(telemetry.TransitionError)
			return nil, fmt.Errorf("failed to record processing failure: %w", err)
		}

		s.metrics.ObserveTransition(telemetry.TransitionFailed)
		s.publish(wctx, domain.EventJobFailed, failed)
		return failed, fmt.Errorf("%w: %v", domain.ErrProcessingFailed, procErr)
	}

	completed, err := s.store.CompleteJob(wctx, id, *result)
	if err != nil {
		s.metrics.ObserveTransition(telemetry.TransitionError)
		return nil, fmt.Errorf("failed to record processing result: %w", err)
	}

	s.metrics.ObserveTransition(telemetry.TransitionCompleted)
	s.publish(wctx, domain.EventJobCompleted, completed)
	logger.Info("Background removed",
		slog.Int64("file_size_processed", result.FileSizeProcessed),
	)
	return completed, nil
}

// classifyLostClaim reloads a job whose claim matched no row and reports why
func (s *JobService) classifyLostClaim(ctx context.Context, id int64) error {
	job, err := s.store.GetJobByID(ctx, id)
	if err != nil {
		return err
	}
	if err := domain.TransitionError(job.Status); err != nil {
		return err
	}
	// back to pending between the claim and the reload; report it as contended
	return domain.ErrAlreadyInProgress
}

func (s *JobService) observeRejection(err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		s.metrics.ObserveTransition(telemetry.TransitionNotFound)
	case errors.Is(err, domain.ErrAlreadyCompleted):
		s.metrics.ObserveTransition(telemetry.TransitionAlreadyCompleted)
	case errors.Is(err, domain.ErrAlreadyInProgress):
		s.metrics.ObserveTransition(telemetry.TransitionAlreadyInProgress)
	case errors.Is(err, domain.ErrUnprocessable):
		s.metrics.ObserveTransition(telemetry.TransitionUnprocessable)
	default:
		s.metrics.ObserveTransition(telemetry.TransitionError)
	}
}

// publish emits a lifecycle event; failures are logged and never fail the request
func (s *JobService) publish(ctx context.Context, eventType string, job *domain.ImageJob) {
	event := domain.NewJobEvent(eventType, job, s.now().UTC())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish job event",
			slog.String("type", eventType),
			slog.Int64("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}

func (s *JobService) validateStruct(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(fe.Field(), describe(fe))
	}
	return domain.NewValidationError("", err.Error())
}

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url", "http_url":
		return "must be a valid http(s) URL"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}
