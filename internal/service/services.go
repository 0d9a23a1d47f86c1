package service

import (
	"context"
	"errors"

	"github.com/document-export-api/internal/config"
	"github.com/document-export-api/internal/exporter"
	"github.com/document-export-api/internal/metrics"
	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/repository"
	"github.com/rs/zerolog"
)

var (
	// ErrNoFormats is returned when a request names no output format
	ErrNoFormats = errors.New("no export formats requested")

	// ErrUnsupportedFormat is returned when a request names an unknown format
	ErrUnsupportedFormat = exporter.ErrUnsupportedFormat

	// ErrJobNotFound is returned for unknown job ids
	ErrJobNotFound = errors.New("export job not found")
)

// ExportService defines the interface for export operations
type ExportService interface {
	Export(ctx context.Context, req *models.ExportRequest) (*models.ExportResponse, error)
	ExportOne(ctx context.Context, req *models.ExportRequest, format string) (*models.ExportResult, error)
	CreateExportJob(ctx context.Context, req *models.ExportRequest, idempotencyKey string) (*models.Job, bool, error)
	ProcessExport(ctx context.Context, job *models.Job) error
	Formats() []string
}

// JobService defines the interface for job management
type JobService interface {
	StartProcessor(ctx context.Context)
	StopProcessor()
	GetJob(ctx context.Context, id string) (*models.Job, error)
	SetExportService(exportService ExportService)
}

// Services holds all service interfaces
type Services struct {
	Export ExportService
	Job    JobService
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, exp *exporter.Exporter, m *metrics.Metrics, cfg *config.Config, log zerolog.Logger) *Services {
	jobSvc := newJobService(repos.Job, cfg.Export, m, log)
	exportSvc := newExportService(repos.Job, exp, m, log)

	// Wire up job processor to export service
	jobSvc.SetExportService(exportSvc)

	return &Services{
		Export: exportSvc,
		Job:    jobSvc,
	}
}
