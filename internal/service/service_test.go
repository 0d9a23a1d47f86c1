package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/document-export-api/internal/config"
	"github.com/document-export-api/internal/delivery"
	"github.com/document-export-api/internal/exportconfig"
	"github.com/document-export-api/internal/exporter"
	"github.com/document-export-api/internal/metrics"
	"github.com/document-export-api/internal/mocks"
	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/repository"
	"github.com/document-export-api/internal/service"
	"github.com/rs/zerolog"
)

type fixture struct {
	repo     *mocks.MockJobRepository
	sink     *mocks.MockSink
	services *service.Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := mocks.NewMockJobRepository()
	sink := mocks.NewMockSink("s3://exports/")
	log := zerolog.Nop()

	deliverer := delivery.NewDeliverer(sink, nil, log)
	exp := exporter.New(exporter.NewRegistry(log), exportconfig.NewDefaults(), deliverer, log)
	cfg := &config.Config{Export: config.ExportConfig{Workers: 2, PollInterval: 10 * time.Millisecond}}

	return &fixture{
		repo:     repo,
		sink:     sink,
		services: service.NewServices(&repository.Repositories{Job: repo}, exp, metrics.New(nil), cfg, log),
	}
}

func sampleRequest(formats ...string) *models.ExportRequest {
	return &models.ExportRequest{
		Data: models.ExportData{Records: []models.Record{
			{"id": 1, "name": "Ana"},
			{"id": 2, "name": "Luis"},
		}},
		Formats: formats,
	}
}

func TestExportService_NoFormats(t *testing.T) {
	f := newFixture(t)

	if _, err := f.services.Export.Export(context.Background(), sampleRequest()); !errors.Is(err, service.ErrNoFormats) {
		t.Errorf("Expected ErrNoFormats, got %v", err)
	}
	if _, err := f.services.Export.Export(context.Background(), nil); !errors.Is(err, service.ErrNoFormats) {
		t.Errorf("Expected ErrNoFormats for nil request, got %v", err)
	}
}

func TestExportService_UnsupportedFormatRejectsWholeRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.services.Export.Export(context.Background(), sampleRequest("csv", "docx", "odt"))
	if !errors.Is(err, service.ErrUnsupportedFormat) {
		t.Fatalf("Expected ErrUnsupportedFormat, got %v", err)
	}
	if !strings.Contains(err.Error(), "docx, odt") {
		t.Errorf("Error should list unknown formats, got %q", err)
	}
	if f.sink.Calls != 0 {
		t.Errorf("No file should be delivered, got %d deliveries", f.sink.Calls)
	}
}

func TestExportService_ResultsFollowRequestOrder(t *testing.T) {
	f := newFixture(t)

	resp, err := f.services.Export.Export(context.Background(), sampleRequest("json", "csv", "xlsx"))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !resp.Success {
		t.Fatalf("Expected success, got %+v", resp.Results)
	}

	want := []string{"json", "csv", "xlsx"}
	if len(resp.Results) != len(want) {
		t.Fatalf("Expected %d results, got %d", len(want), len(resp.Results))
	}
	for i, format := range want {
		r := resp.Results[i]
		if r.Format != format {
			t.Errorf("Result %d: expected format %s, got %s", i, format, r.Format)
		}
		if r.Location != "s3://exports/"+r.Filename {
			t.Errorf("Result %d: expected delivered location, got %q", i, r.Location)
		}
	}
	if f.sink.Calls != 3 {
		t.Errorf("Expected 3 deliveries, got %d", f.sink.Calls)
	}
}

func TestExportService_AutoDownloadCanBeDisabled(t *testing.T) {
	f := newFixture(t)
	req := sampleRequest("csv")
	req.Config = json.RawMessage(`{"autoDownload": false}`)

	resp, err := f.services.Export.Export(context.Background(), req)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !resp.Success || resp.Results[0].Location != "" {
		t.Errorf("Expected an undelivered success, got %+v", resp.Results[0])
	}
	if f.sink.Calls != 0 {
		t.Errorf("Expected no delivery, got %d", f.sink.Calls)
	}
}

func TestExportService_PartialFailure(t *testing.T) {
	f := newFixture(t)
	req := sampleRequest("csv", "json")
	req.Config = json.RawMessage(`{"csv": {"delimiter": ";;"}}`)

	resp, err := f.services.Export.Export(context.Background(), req)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if resp.Success {
		t.Error("Response should not be successful when a format fails")
	}
	if resp.Results[0].Success {
		t.Error("CSV with a two-character delimiter should fail")
	}
	if !resp.Results[1].Success {
		t.Errorf("JSON should still succeed, got %v", resp.Results[1].Errors)
	}
}

func TestExportService_ExportOneKeepsContent(t *testing.T) {
	f := newFixture(t)
	req := sampleRequest()
	req.Config = json.RawMessage(`{"autoDownload": true, "filename": "clientes"}`)

	result, err := f.services.Export.ExportOne(context.Background(), req, "csv")
	if err != nil {
		t.Fatalf("ExportOne failed: %v", err)
	}
	if !result.Success || len(result.Content) == 0 {
		t.Fatalf("Expected content, got %+v", result)
	}
	if result.Filename != "clientes.csv" {
		t.Errorf("Expected clientes.csv, got %s", result.Filename)
	}
	if f.sink.Calls != 0 {
		t.Errorf("ExportOne must not deliver, got %d deliveries", f.sink.Calls)
	}

	if _, err := f.services.Export.ExportOne(context.Background(), req, "docx"); !errors.Is(err, service.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExportService_CreateJobIdempotency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, created, err := f.services.Export.CreateExportJob(ctx, sampleRequest("csv"), "key-1")
	if err != nil {
		t.Fatalf("CreateExportJob failed: %v", err)
	}
	if !created {
		t.Error("First call should create the job")
	}
	if job.Status != models.JobStatusPending || job.TotalRows != 2 {
		t.Errorf("Unexpected job: %+v", job)
	}

	again, created, err := f.services.Export.CreateExportJob(ctx, sampleRequest("csv", "json"), "key-1")
	if err != nil {
		t.Fatalf("CreateExportJob failed: %v", err)
	}
	if created {
		t.Error("Second call with the same key should not create a job")
	}
	if again.ID != job.ID {
		t.Errorf("Expected job %s, got %s", job.ID, again.ID)
	}
	if len(f.repo.Jobs) != 1 {
		t.Errorf("Expected 1 stored job, got %d", len(f.repo.Jobs))
	}

	other, created, _ := f.services.Export.CreateExportJob(ctx, sampleRequest("csv"), "")
	if !created || other.ID == job.ID {
		t.Error("Requests without a key should always create a job")
	}
}

func TestExportService_CreateJobValidatesFormats(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.services.Export.CreateExportJob(context.Background(), sampleRequest("docx"), "")
	if !errors.Is(err, service.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
	if len(f.repo.Jobs) != 0 {
		t.Error("No job should be stored")
	}
}

func TestExportService_ProcessExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, _, err := f.services.Export.CreateExportJob(ctx, sampleRequest("csv", "json"), "")
	if err != nil {
		t.Fatalf("CreateExportJob failed: %v", err)
	}

	if err := f.services.Export.ProcessExport(ctx, job); err != nil {
		t.Fatalf("ProcessExport failed: %v", err)
	}

	stored, _ := f.repo.GetByID(ctx, job.ID)
	if stored.Status != models.JobStatusCompleted {
		t.Errorf("Expected completed, got %s (%s)", stored.Status, stored.Error)
	}
	if len(stored.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(stored.Results))
	}
	if stored.StartedAt == nil || stored.CompletedAt == nil {
		t.Error("Timestamps should be set")
	}
}

func TestExportService_ProcessExportEmptyRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := &models.ExportRequest{Data: models.ExportData{Records: []models.Record{}}, Formats: []string{"pdf"}}
	job, _, err := f.services.Export.CreateExportJob(ctx, req, "")
	if err != nil {
		t.Fatalf("CreateExportJob failed: %v", err)
	}

	if err := f.services.Export.ProcessExport(ctx, job); err != nil {
		t.Fatalf("ProcessExport failed: %v", err)
	}

	stored, _ := f.repo.GetByID(ctx, job.ID)
	if stored.Status != models.JobStatusCompleted {
		t.Errorf("Expected completed, got %s (%s)", stored.Status, stored.Error)
	}
	if len(stored.Results) != 1 || !stored.Results[0].Success {
		t.Errorf("Expected one successful result, got %+v", stored.Results)
	}
}

func TestExportService_ProcessExportFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := sampleRequest("csv")
	req.Data = models.ExportData{}
	job, _, err := f.services.Export.CreateExportJob(ctx, req, "")
	if err != nil {
		t.Fatalf("CreateExportJob failed: %v", err)
	}

	if err := f.services.Export.ProcessExport(ctx, job); err == nil {
		t.Fatal("Expected an error for a job without data")
	}

	stored, _ := f.repo.GetByID(ctx, job.ID)
	if stored.Status != models.JobStatusFailed {
		t.Errorf("Expected failed, got %s", stored.Status)
	}
	if stored.Error != "1 of 1 formats failed" {
		t.Errorf("Unexpected error message: %q", stored.Error)
	}
}

func TestExportService_ProcessExportBadRequest(t *testing.T) {
	f := newFixture(t)
	job := &models.Job{ID: "broken", Status: models.JobStatusPending, Request: json.RawMessage(`{"formats":`)}

	if err := f.services.Export.ProcessExport(context.Background(), job); err == nil {
		t.Fatal("Expected an error for an undecodable request")
	}
	if f.repo.Status("broken") != models.JobStatusFailed {
		t.Errorf("Expected failed, got %s", f.repo.Status("broken"))
	}
}

func TestExportService_Formats(t *testing.T) {
	f := newFixture(t)

	formats := f.services.Export.Formats()
	want := []string{"csv", "json", "pdf", "pdf-branded", "xlsx", "xlsx-branded"}
	if strings.Join(formats, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, formats)
	}
}

func TestJobService_GetJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, _, _ := f.services.Export.CreateExportJob(ctx, sampleRequest("json"), "")

	got, err := f.services.Job.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.ID != job.ID {
		t.Errorf("Expected %s, got %s", job.ID, got.ID)
	}

	if _, err := f.services.Job.GetJob(ctx, "missing"); !errors.Is(err, service.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestJobService_ProcessesPendingJobs(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ids []string
	for i := 0; i < 5; i++ {
		job, _, err := f.services.Export.CreateExportJob(ctx, sampleRequest("csv", "json"), "")
		if err != nil {
			t.Fatalf("CreateExportJob failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	go f.services.Job.StartProcessor(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for _, id := range ids {
		for f.repo.Status(id) != models.JobStatusCompleted {
			if time.Now().After(deadline) {
				t.Fatalf("Job %s not completed, status %s", id, f.repo.Status(id))
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	f.services.Job.StopProcessor()
}

// claimAndCancelRepo cancels the processor right after a job is claimed
type claimAndCancelRepo struct {
	*mocks.MockJobRepository
	cancel context.CancelFunc
}

func (r *claimAndCancelRepo) MarkJobAsProcessing(ctx context.Context, jobID string) (bool, error) {
	marked, err := r.MockJobRepository.MarkJobAsProcessing(ctx, jobID)
	r.cancel()
	return marked, err
}

func TestJobService_ShutdownReleasesClaimedJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &claimAndCancelRepo{MockJobRepository: mocks.NewMockJobRepository(), cancel: cancel}
	log := zerolog.Nop()
	exp := exporter.New(exporter.NewRegistry(log), exportconfig.NewDefaults(), nil, log)
	cfg := &config.Config{Export: config.ExportConfig{Workers: 1, PollInterval: 10 * time.Millisecond}}
	services := service.NewServices(&repository.Repositories{Job: repo}, exp, metrics.New(nil), cfg, log)

	job, _, err := services.Export.CreateExportJob(ctx, sampleRequest("csv"), "")
	if err != nil {
		t.Fatalf("CreateExportJob failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		services.Job.StartProcessor(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Processor did not stop after cancellation")
	}
	services.Job.StopProcessor()

	if status := repo.Status(job.ID); status != models.JobStatusPending {
		t.Errorf("Claimed job should go back to pending on shutdown, got %s", status)
	}
}
