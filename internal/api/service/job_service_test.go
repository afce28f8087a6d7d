package service

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
	"github.com/cuongbtq/imagejob-service/internal/api/processor"
	"github.com/cuongbtq/imagejob-service/internal/api/storage"
	"github.com/cuongbtq/imagejob-service/internal/api/upload"
	"github.com/cuongbtq/imagejob-service/internal/telemetry"
	"github.com/cuongbtq/imagejob-service/migrations"
	"github.com/cuongbtq/imagejob-service/shared/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRemover struct {
	err error
}

func (r *failingRemover) RemoveBackground(context.Context, *domain.ImageJob) (*domain.ProcessingResult, error) {
	return nil, r.err
}

// cancellingRemover cancels the request context mid-removal, as a client disconnect would
type cancellingRemover struct {
	cancel context.CancelFunc
	result *domain.ProcessingResult
}

func (r *cancellingRemover) RemoveBackground(ctx context.Context, _ *domain.ImageJob) (*domain.ProcessingResult, error) {
	r.cancel()
	if r.result != nil {
		return r.result, nil
	}
	return nil, ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.JobEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

type testEnv struct {
	service   *JobService
	store     *storage.Storage
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T, remover processor.BackgroundRemover) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "jobs.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Migrate(migrations.FS))

	if remover == nil {
		remover = processor.NewSimulatedRemover(processor.Config{}, nil)
	}

	store := storage.NewStorage(client, logger)
	publisher := &recordingPublisher{}
	svc := NewJobService(Dependencies{
		Store:     store,
		Uploader:  upload.NewValidator(upload.Config{}),
		Remover:   remover,
		Publisher: publisher,
		Metrics:   telemetry.NewMetrics(prometheus.NewRegistry()),
		Logger:    logger,
	})

	return &testEnv{service: svc, store: store, publisher: publisher}
}

func (e *testEnv) createJob(t *testing.T, size int64) *domain.ImageJob {
	t.Helper()
	job, err := e.service.CreateJob(context.Background(), CreateJobInput{
		OriginalFilename: "cat.png",
		OriginalFileURL:  "https://storage.local/uploads/1-abcd1234-cat.png",
		FileSizeOriginal: size,
	})
	require.NoError(t, err)
	return job
}

func TestJobService_UploadFile(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	png := make([]byte, 64)
	copy(png, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})

	result, err := env.service.UploadFile(ctx, "logo.png", base64.StdEncoding.EncodeToString(png), "image/png")
	require.NoError(t, err)
	assert.Equal(t, int64(64), result.Size)
	assert.Contains(t, result.URL, "/uploads/")

	_, err = env.service.UploadFile(ctx, "logo.png", base64.StdEncoding.EncodeToString(png), "image/jpeg")
	require.ErrorIs(t, err, domain.ErrInvalidFormat)
}

func TestJobService_CreateJob(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		input     CreateJobInput
		wantField string
	}{
		{
			name:      "missing filename",
			input:     CreateJobInput{OriginalFileURL: "https://storage.local/a.png", FileSizeOriginal: 1},
			wantField: "original_filename",
		},
		{
			name:      "malformed url",
			input:     CreateJobInput{OriginalFilename: "a.png", OriginalFileURL: "not a url", FileSizeOriginal: 1},
			wantField: "original_file_url",
		},
		{
			name:      "non-http url",
			input:     CreateJobInput{OriginalFilename: "a.png", OriginalFileURL: "mailto:someone@storage.local", FileSizeOriginal: 1},
			wantField: "original_file_url",
		},
		{
			name:      "scheme only url",
			input:     CreateJobInput{OriginalFilename: "a.png", OriginalFileURL: "foo:bar", FileSizeOriginal: 1},
			wantField: "original_file_url",
		},
		{
			name:      "zero size",
			input:     CreateJobInput{OriginalFilename: "a.png", OriginalFileURL: "https://storage.local/a.png"},
			wantField: "file_size_original",
		},
		{
			name:      "negative size",
			input:     CreateJobInput{OriginalFilename: "a.png", OriginalFileURL: "https://storage.local/a.png", FileSizeOriginal: -5},
			wantField: "file_size_original",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.CreateJob(ctx, tt.input)
			require.Error(t, err)

			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}

	jobs, err := env.service.ListJobs(ctx, storage.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs, "rejected input must not create rows")

	job := env.createJob(t, 1024000)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Nil(t, job.ProcessedFileURL)
	assert.Nil(t, job.FileSizeProcessed)
	assert.Nil(t, job.ErrorMessage)
	assert.Nil(t, job.CompletedAt)
	assert.Equal(t, []string{domain.EventJobCreated}, env.publisher.types())
}

func TestJobService_RemoveBackground(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	job := env.createJob(t, 1024000)

	completed, err := env.service.RemoveBackground(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, completed.Status)
	require.NotNil(t, completed.FileSizeProcessed)
	assert.Equal(t, int64(716800), *completed.FileSizeProcessed)
	require.NotNil(t, completed.ProcessedFileURL)
	assert.Contains(t, *completed.ProcessedFileURL, "/processed/")
	require.NotNil(t, completed.CompletedAt)
	assert.False(t, completed.CompletedAt.Before(completed.CreatedAt))
	assert.Nil(t, completed.ErrorMessage)
	assert.Equal(t, job.CreatedAt, completed.CreatedAt)

	assert.Equal(t, []string{
		domain.EventJobCreated,
		domain.EventJobProcessing,
		domain.EventJobCompleted,
	}, env.publisher.types())

	_, err = env.service.RemoveBackground(ctx, job.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyCompleted)

	after, err := env.service.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, completed, after, "rejected transition must not mutate the job")
}

func TestJobService_RemoveBackgroundRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		status  domain.JobStatus
		wantErr error
	}{
		{name: "processing", status: domain.JobStatusProcessing, wantErr: domain.ErrAlreadyInProgress},
		{name: "completed", status: domain.JobStatusCompleted, wantErr: domain.ErrAlreadyCompleted},
		{name: "failed", status: domain.JobStatusFailed, wantErr: domain.ErrUnprocessable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			job := env.createJob(t, 100)

			before, err := env.store.UpdateJobStatus(ctx, job.ID, domain.StatusUpdate{Status: tt.status})
			require.NoError(t, err)

			_, err = env.service.RemoveBackground(ctx, job.ID)
			require.ErrorIs(t, err, tt.wantErr)

			after, err := env.service.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	t.Run("not found", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, err := env.service.RemoveBackground(ctx, 404)
		require.ErrorIs(t, err, domain.ErrJobNotFound)
	})
}

func TestJobService_RemoveBackgroundRemoverFailure(t *testing.T) {
	env := newTestEnv(t, &failingRemover{err: errors.New("remover unavailable")})
	ctx := context.Background()

	job := env.createJob(t, 2048)

	failed, err := env.service.RemoveBackground(ctx, job.ID)
	require.ErrorIs(t, err, domain.ErrProcessingFailed)
	assert.Contains(t, err.Error(), "remover unavailable")

	require.NotNil(t, failed)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "remover unavailable", *failed.ErrorMessage)
	assert.NotNil(t, failed.CompletedAt)
	assert.Nil(t, failed.ProcessedFileURL)
	assert.Nil(t, failed.FileSizeProcessed)

	assert.Contains(t, env.publisher.types(), domain.EventJobFailed)

	_, err = env.service.RemoveBackground(ctx, job.ID)
	require.ErrorIs(t, err, domain.ErrUnprocessable)
}

func TestJobService_RemoveBackgroundCallerCancelled(t *testing.T) {
	t.Run("removal error is persisted as failed", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		env := newTestEnv(t, &cancellingRemover{cancel: cancel})
		job := env.createJob(t, 2048)

		failed, err := env.service.RemoveBackground(ctx, job.ID)
		require.ErrorIs(t, err, domain.ErrProcessingFailed)
		require.NotNil(t, failed)
		assert.Equal(t, domain.JobStatusFailed, failed.Status)

		stored, err := env.service.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, context.Canceled.Error(), *stored.ErrorMessage)
		assert.NotNil(t, stored.CompletedAt)

		_, err = env.service.RemoveBackground(context.Background(), job.ID)
		require.ErrorIs(t, err, domain.ErrUnprocessable)
	})

	t.Run("result is persisted as completed", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		env := newTestEnv(t, &cancellingRemover{
			cancel: cancel,
			result: &domain.ProcessingResult{
				ProcessedFileURL:  "https://storage.local/processed/1.png",
				FileSizeProcessed: 1433,
			},
		})
		job := env.createJob(t, 2048)

		completed, err := env.service.RemoveBackground(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, completed.Status)

		stored, err := env.service.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, stored.Status)
		require.NotNil(t, stored.FileSizeProcessed)
		assert.Equal(t, int64(1433), *stored.FileSizeProcessed)
	})
}

func TestJobService_RemoveBackgroundConcurrent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	job := env.createJob(t, 1000)

	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.RemoveBackground(ctx, job.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyInProgress), errors.Is(err, domain.ErrAlreadyCompleted):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, rejected)

	final, err := env.service.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
}

func TestJobService_UpdateJobStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	job := env.createJob(t, 1000)

	t.Run("invalid status", func(t *testing.T) {
		_, err := env.service.UpdateJobStatus(ctx, job.ID, UpdateStatusInput{Status: "archived"})
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "status", vErr.Field)
	})

	t.Run("negative size", func(t *testing.T) {
		size := int64(-1)
		_, err := env.service.UpdateJobStatus(ctx, job.ID, UpdateStatusInput{Status: "completed", FileSizeProcessed: &size})
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("malformed url", func(t *testing.T) {
		url := "::not-a-url"
		_, err := env.service.UpdateJobStatus(ctx, job.ID, UpdateStatusInput{Status: "completed", ProcessedFileURL: &url})
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("non-http url", func(t *testing.T) {
		url := "ftp://storage.local/processed/1.png"
		_, err := env.service.UpdateJobStatus(ctx, job.ID, UpdateStatusInput{Status: "completed", ProcessedFileURL: &url})
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := env.service.UpdateJobStatus(ctx, 9999, UpdateStatusInput{Status: "failed"})
		require.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("processing leaves completed_at unset", func(t *testing.T) {
		updated, err := env.service.UpdateJobStatus(ctx, job.ID, UpdateStatusInput{Status: "processing"})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusProcessing, updated.Status)
		assert.Nil(t, updated.CompletedAt)
	})

	t.Run("completed with zero size", func(t *testing.T) {
		size := int64(0)
		updated, err := env.service.UpdateJobStatus(ctx, job.ID, UpdateStatusInput{Status: "completed", FileSizeProcessed: &size})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, updated.Status)
		require.NotNil(t, updated.FileSizeProcessed)
		assert.Equal(t, int64(0), *updated.FileSizeProcessed)
		assert.NotNil(t, updated.CompletedAt)
	})

	assert.Contains(t, env.publisher.types(), domain.EventJobUpdated)
}

func TestJobService_ListJobs(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.service.ListJobs(ctx, storage.JobFilter{Status: "archived"})
	assert.True(t, domain.IsValidationError(err))

	jobs, err := env.service.ListJobs(ctx, storage.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)

	first := env.createJob(t, 10)
	second := env.createJob(t, 20)

	jobs, err = env.service.ListJobs(ctx, storage.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)
}

func TestJobService_PublishFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	env.publisher.err = errors.New("broker down")

	job := env.createJob(t, 100)
	completed, err := env.service.RemoveBackground(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, completed.Status)
}

func TestNewJobService_Defaults(t *testing.T) {
	svc := NewJobService(Dependencies{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.NotNil(t, svc.publisher)
	assert.WithinDuration(t, time.Now(), svc.now(), time.Second)
}
