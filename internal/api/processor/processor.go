package processor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
)

const (
	DefaultSizeRatio = 0.7
	DefaultBaseURL   = "https://storage.local"
)

// BackgroundRemover produces the processed artifact for a job
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, job *domain.ImageJob) (*domain.ProcessingResult, error)
}

// Config holds the simulated remover settings
type Config struct {
	SizeRatio float64
	BaseURL   string
}

// SimulatedRemover stands in for a real background-removal backend. The processed size is
// floor(original * ratio) and the URL is fabricated from the job id and the current time.
type SimulatedRemover struct {
	config Config
	now    func() time.Time
}

// NewSimulatedRemover creates a SimulatedRemover; zero values fall back to the defaults
func NewSimulatedRemover(config Config, now func() time.Time) *SimulatedRemover {
	if config.SizeRatio <= 0 {
		config.SizeRatio = DefaultSizeRatio
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if now == nil {
		now = time.Now
	}

	return &SimulatedRemover{config: config, now: now}
}

// RemoveBackground implements BackgroundRemover
func (r *SimulatedRemover) RemoveBackground(ctx context.Context, job *domain.ImageJob) (*domain.ProcessingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("background removal cancelled: %w", err)
	}

	size := int64(math.Floor(float64(job.FileSizeOriginal) * r.config.SizeRatio))

	return &domain.ProcessingResult{
		ProcessedFileURL:  fmt.Sprintf("%s/processed/%d-%d.png", r.config.BaseURL, job.ID, r.now().UnixMilli()),
		FileSizeProcessed: size,
	}, nil
}
