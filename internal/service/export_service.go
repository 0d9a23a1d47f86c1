package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/document-export-api/internal/exportconfig"
	"github.com/document-export-api/internal/exporter"
	"github.com/document-export-api/internal/metrics"
	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// exportService is the concrete implementation of ExportService
type exportService struct {
	jobs     repository.JobRepository
	exporter *exporter.Exporter
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// newExportService creates a new ExportService
func newExportService(jobs repository.JobRepository, exp *exporter.Exporter, m *metrics.Metrics, log zerolog.Logger) *exportService {
	return &exportService{
		jobs:     jobs,
		exporter: exp,
		metrics:  m,
		log:      log.With().Str("service", "export").Logger(),
		now:      time.Now,
	}
}

// Formats lists the supported format ids
func (s *exportService) Formats() []string {
	formats := s.exporter.Registry().Formats()
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}

// Export produces every requested format in order. Generated files are
// delivered unless the request config turns autoDownload off. The request
// is rejected as a whole before any rendering when a format is unknown.
func (s *exportService) Export(ctx context.Context, req *models.ExportRequest) (*models.ExportResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	patch := exportconfig.SetOption(req.Config, "autoDownload", true, false)
	resp := &models.ExportResponse{Success: true, Results: make([]*models.ExportResult, 0, len(req.Formats))}
	for _, format := range req.Formats {
		result := s.exportFormat(ctx, req, format, patch)
		resp.Results = append(resp.Results, result)
		resp.Success = resp.Success && result.Success
	}
	return resp, nil
}

// ExportOne produces a single format and keeps the content on the result
// instead of delivering it.
func (s *exportService) ExportOne(ctx context.Context, req *models.ExportRequest, format string) (*models.ExportResult, error) {
	if req == nil {
		return nil, ErrNoFormats
	}
	if !s.exporter.Registry().Has(format) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return s.exportFormat(ctx, req, format, exportconfig.SetOption(req.Config, "autoDownload", false, true)), nil
}

func (s *exportService) exportFormat(ctx context.Context, req *models.ExportRequest, format string, patch json.RawMessage) *models.ExportResult {
	start := s.now()
	result := s.exporter.Export(ctx, &req.Data, req.Columns, format, patch)
	s.metrics.ObserveExport(format, result.Success, s.now().Sub(start), result.Size, len(result.Warnings))

	if !result.Success {
		s.log.Warn().
			Str("format", format).
			Strs("errors", result.Errors).
			Msg("Export failed")
	}
	return result
}

func (s *exportService) validateRequest(req *models.ExportRequest) error {
	if req == nil || len(req.Formats) == 0 {
		return ErrNoFormats
	}
	var unknown []string
	for _, f := range req.Formats {
		if !s.exporter.Registry().Has(f) {
			unknown = append(unknown, f)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, strings.Join(unknown, ", "))
	}
	return nil
}

// CreateExportJob stores a pending job. When idempotencyKey matches an
// existing job that job is returned and created is false.
func (s *exportService) CreateExportJob(ctx context.Context, req *models.ExportRequest, idempotencyKey string) (*models.Job, bool, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, false, err
	}

	if idempotencyKey != "" {
		existing, err := s.jobs.GetByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode export request: %w", err)
	}

	job := &models.Job{
		ID:             uuid.New().String(),
		Status:         models.JobStatusPending,
		Formats:        req.Formats,
		IdempotencyKey: idempotencyKey,
		Request:        payload,
		TotalRows:      countRows(&req.Data),
		CreatedAt:      s.now(),
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			// lost a race with a concurrent request using the same key
			existing, getErr := s.jobs.GetByIdempotencyKey(ctx, idempotencyKey)
			if getErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	s.log.Info().
		Str("job_id", job.ID).
		Strs("formats", job.Formats).
		Int("rows", job.TotalRows).
		Msg("Export job created")

	return job, true, nil
}

// ProcessExport runs a stored job and persists its results
func (s *exportService) ProcessExport(ctx context.Context, job *models.Job) error {
	start := s.now()
	if job.StartedAt == nil {
		job.StartedAt = &start
	}
	job.Status = models.JobStatusProcessing

	s.log.Info().
		Str("job_id", job.ID).
		Strs("formats", job.Formats).
		Msg("Starting export processing")

	var runErr error
	req, err := job.DecodeRequest()
	if err != nil {
		runErr = fmt.Errorf("invalid stored request: %w", err)
	} else {
		resp, err := s.Export(ctx, req)
		if err != nil {
			runErr = err
		} else {
			job.Results = resp.Results
			if failed := countFailed(resp.Results); failed > 0 {
				runErr = fmt.Errorf("%d of %d formats failed", failed, len(resp.Results))
			}
		}
	}

	completedAt := s.now()
	job.CompletedAt = &completedAt
	job.DurationMs = completedAt.Sub(start).Milliseconds()

	if runErr != nil {
		job.Status = models.JobStatusFailed
		job.Error = runErr.Error()
		s.log.Error().Err(runErr).Str("job_id", job.ID).Msg("Export job failed")
	} else {
		job.Status = models.JobStatusCompleted
		s.log.Info().
			Str("job_id", job.ID).
			Int("rows", job.TotalRows).
			Int64("duration_ms", job.DurationMs).
			Msg("Export job completed")
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}
	return runErr
}

func countRows(data *models.ExportData) int {
	n := len(data.Records)
	for _, ds := range data.Datasets {
		n += len(ds.Records)
	}
	return n
}

func countFailed(results []*models.ExportResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}
