package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/imagejob-service/internal/api/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	subsystem = "image_jobs"

	resultLabel  = "result"
	outcomeLabel = "outcome"
	statusLabel  = "status"

	collectTimeout = 2 * time.Second
)

// Upload results
const (
	UploadAccepted      = "accepted"
	UploadInvalidFormat = "invalid_format"
	UploadTooLarge      = "too_large"
)

// Background removal outcomes
const (
	TransitionCompleted         = "completed"
	TransitionFailed            = "failed"
	TransitionAlreadyCompleted  = "already_completed"
	TransitionAlreadyInProgress = "already_in_progress"
	TransitionUnprocessable     = "unprocessable"
	TransitionNotFound          = "not_found"
	TransitionError             = "error"
)

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	uploadsTotal     *prometheus.CounterVec
	jobsCreatedTotal prometheus.Counter
	transitionsTotal *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      "uploads_total",
				Help:      "number of upload validations by result",
			},
			[]string{resultLabel},
		),
		jobsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      "created_total",
				Help:      "number of image jobs created",
			},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      "remove_background_total",
				Help:      "number of background removal requests by outcome",
			},
			[]string{outcomeLabel},
		),
	}

	reg.MustRegister(m.uploadsTotal, m.jobsCreatedTotal, m.transitionsTotal)
	return m
}

func (m *Metrics) ObserveUpload(result string) {
	if m == nil {
		return
	}
	m.uploadsTotal.With(prometheus.Labels{resultLabel: result}).Inc()
}

func (m *Metrics) IncJobsCreated() {
	if m == nil {
		return
	}
	m.jobsCreatedTotal.Inc()
}

func (m *Metrics) ObserveTransition(outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// StatusCounter reports the number of jobs in each status
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

// jobStatusCollector reads job counts from the store on every scrape
type jobStatusCollector struct {
	counter StatusCounter
	logger  *slog.Logger
	desc    *prometheus.Desc
}

// NewJobStatusCollector returns a collector exposing image_jobs_by_status{status}
func NewJobStatusCollector(counter StatusCounter, logger *slog.Logger) prometheus.Collector {
	return &jobStatusCollector{
		counter: counter,
		logger:  logger,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName("", subsystem, "by_status"),
			"number of image jobs in each status",
			[]string{statusLabel},
			nil,
		),
	}
}

func (c *jobStatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *jobStatusCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	counts, err := c.counter.CountByStatus(ctx)
	if err != nil {
		c.logger.Error("Failed to collect job status counts", slog.Any("error", err))
		ch <- prometheus.NewInvalidMetric(c.desc, err)
		return
	}

	for _, status := range domain.JobStatuses {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[status]), status.String())
	}
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
