package mocks

import (
	"context"
	"sync"

	"github.com/document-export-api/internal/delivery"
	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/service"
)

// MockExportService is a mock implementation of ExportService
type MockExportService struct {
	ExportFunc    func(ctx context.Context, req *models.ExportRequest) (*models.ExportResponse, error)
	ExportOneFunc func(ctx context.Context, req *models.ExportRequest, format string) (*models.ExportResult, error)
	CreateJobFunc func(ctx context.Context, req *models.ExportRequest, key string) (*models.Job, bool, error)
	ProcessFunc   func(ctx context.Context, job *models.Job) error
	FormatList    []string

	mu            sync.Mutex
	Requests      []*models.ExportRequest
	ProcessedJobs []string
}

// Verify interface compliance
var _ service.ExportService = (*MockExportService)(nil)

func NewMockExportService() *MockExportService {
	return &MockExportService{
		FormatList: []string{"csv", "json", "pdf", "pdf-branded", "xlsx", "xlsx-branded"},
	}
}

func (m *MockExportService) Export(ctx context.Context, req *models.ExportRequest) (*models.ExportResponse, error) {
	m.record(req)
	if m.ExportFunc != nil {
		return m.ExportFunc(ctx, req)
	}
	resp := &models.ExportResponse{Success: true}
	for _, f := range req.Formats {
		r := models.NewExportResult(f)
		r.Success = true
		r.Filename = "export." + f
		resp.Results = append(resp.Results, r)
	}
	return resp, nil
}

func (m *MockExportService) ExportOne(ctx context.Context, req *models.ExportRequest, format string) (*models.ExportResult, error) {
	m.record(req)
	if m.ExportOneFunc != nil {
		return m.ExportOneFunc(ctx, req, format)
	}
	r := models.NewExportResult(format)
	r.Success = true
	r.Filename = "export." + format
	r.MimeType = "application/octet-stream"
	r.Content = []byte("content")
	r.Size = int64(len(r.Content))
	return r, nil
}

func (m *MockExportService) CreateExportJob(ctx context.Context, req *models.ExportRequest, key string) (*models.Job, bool, error) {
	m.record(req)
	if m.CreateJobFunc != nil {
		return m.CreateJobFunc(ctx, req, key)
	}
	return &models.Job{
		ID:             "test-job-id",
		Status:         models.JobStatusPending,
		Formats:        req.Formats,
		IdempotencyKey: key,
	}, true, nil
}

func (m *MockExportService) ProcessExport(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	m.ProcessedJobs = append(m.ProcessedJobs, job.ID)
	m.mu.Unlock()
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, job)
	}
	job.Status = models.JobStatusCompleted
	return nil
}

func (m *MockExportService) Formats() []string {
	return m.FormatList
}

// Processed returns the ids of processed jobs
func (m *MockExportService) Processed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ProcessedJobs...)
}

func (m *MockExportService) record(req *models.ExportRequest) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
}

// MockJobService is a mock implementation of JobService
type MockJobService struct {
	Jobs    map[string]*models.Job
	Started bool
	Stopped bool
}

// Verify interface compliance
var _ service.JobService = (*MockJobService)(nil)

func NewMockJobService() *MockJobService {
	return &MockJobService{
		Jobs: make(map[string]*models.Job),
	}
}

func (m *MockJobService) StartProcessor(ctx context.Context) {
	m.Started = true
}

func (m *MockJobService) StopProcessor() {
	m.Stopped = true
}

func (m *MockJobService) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, ok := m.Jobs[id]
	if !ok {
		return nil, service.ErrJobNotFound
	}
	return job, nil
}

func (m *MockJobService) SetExportService(exportService service.ExportService) {}

// MockSink is a delivery sink that records saved files
type MockSink struct {
	mu     sync.Mutex
	Err    error
	Prefix string
	Saved  map[string][]byte
	Calls  int
}

// Verify interface compliance
var _ delivery.Sink = (*MockSink)(nil)

func NewMockSink(prefix string) *MockSink {
	return &MockSink{Prefix: prefix, Saved: make(map[string][]byte)}
}

func (m *MockSink) Save(ctx context.Context, blob *delivery.Blob, filename string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	m.Saved[filename] = blob.Data
	return m.Prefix + filename, nil
}
