package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
	"github.com/cuongbtq/imagejob-service/internal/api/model"
	"github.com/cuongbtq/imagejob-service/shared/database"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `id, original_filename, original_file_url, processed_file_url, status,
	error_message, created_at, completed_at, file_size_original, file_size_processed`

// Storage is the image_jobs accessor. Queries use ? placeholders and are rebound per driver.
// Mutations re-read the row with a SELECT instead of RETURNING so column types stay declared on sqlite.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Storage
type Option func(*Storage)

// WithClock overrides the time source used for created_at and completed_at
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

// NewStorage creates a new Storage instance
func NewStorage(client *database.Client, logger *slog.Logger, opts ...Option) *Storage {
	s := &Storage{
		db:     client.GetDB(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp returns the current time at the precision every supported driver stores
func (s *Storage) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateJob inserts a pending job with every optional field NULL
func (s *Storage) CreateJob(ctx context.Context, filename, fileURL string, size int64) (*domain.ImageJob, error) {
	query := s.db.Rebind(`
		INSERT INTO image_jobs (
			original_filename, original_file_url, status, created_at, file_size_original
		) VALUES (
			?, ?, ?, ?, ?
		)
		RETURNING id
	`)

	var id int64
	err := s.db.GetContext(ctx, &id, query,
		filename,
		fileURL,
		string(domain.JobStatusPending),
		s.timestamp(),
		size,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create image job: %w", err)
	}

	s.logger.Info("Image job created",
		slog.Int64("job_id", id),
		slog.String("filename", filename),
	)

	return s.GetJobByID(ctx, id)
}

// GetJobByID retrieves a job by its id
func (s *Storage) GetJobByID(ctx context.Context, id int64) (*domain.ImageJob, error) {
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM image_jobs WHERE id = ?`)

	var row model.ImageJob
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get image job: %w", err)
	}

	return row.ToDomain(), nil
}

// JobFilter narrows ListJobs. A zero PageSize returns every matching row.
type JobFilter struct {
	Status   domain.JobStatus
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position of the last row of a page
type JobCursor struct {
	CreatedAt time.Time
	ID        int64
}

// ListJobs returns jobs newest first
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]*domain.ImageJob, error) {
	query := `SELECT ` + jobColumns + ` FROM image_jobs WHERE 1=1`
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	if filter.Cursor != nil {
		query += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		createdAt := filter.Cursor.CreatedAt.UTC()
		args = append(args, createdAt, createdAt, filter.Cursor.ID)
	}

	// id breaks ties between rows created in the same instant
	query += " ORDER BY created_at DESC, id DESC"

	if filter.PageSize > 0 {
		// Fetch one extra to determine if there are more results
		query += " LIMIT ?"
		args = append(args, filter.PageSize+1)
	}

	rows := []model.ImageJob{}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list image jobs: %w", err)
	}

	jobs := make([]*domain.ImageJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].ToDomain()
	}
	return jobs, nil
}

// UpdateJobStatus applies a partial update: status always, the optional fields only when supplied.
// completed_at is set to now whenever the new status is completed or failed.
func (s *Storage) UpdateJobStatus(ctx context.Context, id int64, update domain.StatusUpdate) (*domain.ImageJob, error) {
	sets := []string{"status = ?"}
	args := []interface{}{string(update.Status)}

	if update.ProcessedFileURL != nil {
		sets = append(sets, "processed_file_url = ?")
		args = append(args, *update.ProcessedFileURL)
	}

	if update.FileSizeProcessed != nil {
		sets = append(sets, "file_size_processed = ?")
		args = append(args, *update.FileSizeProcessed)
	}

	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}

	if update.Status.Terminal() {
		sets = append(sets, "completed_at = ?")
		args = append(args, s.timestamp())
	}

	query := fmt.Sprintf("UPDATE image_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	args = append(args, id)

	affected, err := s.exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update image job status: %w", err)
	}
	if affected == 0 {
		return nil, domain.ErrJobNotFound
	}

	s.logger.Info("Image job status updated",
		slog.Int64("job_id", id),
		slog.String("status", update.Status.String()),
	)

	return s.GetJobByID(ctx, id)
}

// ClaimJob moves a pending job to processing. Only one concurrent caller can match the
// status = pending predicate; every other caller gets ErrJobNotClaimable.
func (s *Storage) ClaimJob(ctx context.Context, id int64) (*domain.ImageJob, error) {
	query := `
		UPDATE image_jobs
		SET status = ?
		WHERE id = ?
		  AND status = ?
	`

	affected, err := s.exec(ctx, query,
		string(domain.JobStatusProcessing),
		id,
		string(domain.JobStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim image job: %w", err)
	}

	if affected == 0 {
		s.logger.Warn("Failed to claim image job - not pending or not found",
			slog.Int64("job_id", id),
		)
		return nil, domain.ErrJobNotClaimable
	}

	s.logger.Info("Image job claimed",
		slog.Int64("job_id", id),
	)

	return s.GetJobByID(ctx, id)
}

// CompleteJob records a successful background removal on a processing job
func (s *Storage) CompleteJob(ctx context.Context, id int64, result domain.ProcessingResult) (*domain.ImageJob, error) {
	query := `
		UPDATE image_jobs
		SET status = ?,
			processed_file_url = ?,
			file_size_processed = ?,
			error_message = NULL,
			completed_at = ?
		WHERE id = ?
		  AND status = ?
	`

	affected, err := s.exec(ctx, query,
		string(domain.JobStatusCompleted),
		result.ProcessedFileURL,
		result.FileSizeProcessed,
		s.timestamp(),
		id,
		string(domain.JobStatusProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to complete image job: %w", err)
	}
	if affected == 0 {
		return nil, domain.ErrStatusChanged
	}

	return s.GetJobByID(ctx, id)
}

// FailJob records a background removal failure on a processing job
func (s *Storage) FailJob(ctx context.Context, id int64, message string) (*domain.ImageJob, error) {
	query := `
		UPDATE image_jobs
		SET status = ?,
			error_message = ?,
			processed_file_url = NULL,
			file_size_processed = NULL,
			completed_at = ?
		WHERE id = ?
		  AND status = ?
	`

	affected, err := s.exec(ctx, query,
		string(domain.JobStatusFailed),
		message,
		s.timestamp(),
		id,
		string(domain.JobStatusProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark image job as failed: %w", err)
	}
	if affected == 0 {
		return nil, domain.ErrStatusChanged
	}

	return s.GetJobByID(ctx, id)
}

// exec rebinds and runs a statement, returning the number of rows it touched
func (s *Storage) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// CountByStatus returns the number of jobs per status; statuses without rows are absent
func (s *Storage) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int64  `db:"count"`
	}

	query := `SELECT status, COUNT(*) AS count FROM image_jobs GROUP BY status`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count image jobs by status: %w", err)
	}

	counts := make(map[domain.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[domain.JobStatus(r.Status)] = r.Count
	}
	return counts, nil
}
