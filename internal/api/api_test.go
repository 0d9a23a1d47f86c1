package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/document-export-api/internal/api"
	"github.com/document-export-api/internal/config"
	"github.com/document-export-api/internal/delivery"
	"github.com/document-export-api/internal/metrics"
	"github.com/document-export-api/internal/mocks"
	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type testEnv struct {
	router  *gin.Engine
	export  *mocks.MockExportService
	job     *mocks.MockJobService
	links   *delivery.LinkRegistry
	metrics *metrics.Metrics
}

func setupTestRouter(t *testing.T, mutate func(cfg *config.Config, opts *api.Options)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		export:  mocks.NewMockExportService(),
		job:     mocks.NewMockJobService(),
		links:   delivery.NewLinkRegistry("http://localhost:8080", time.Minute, zerolog.Nop()),
		metrics: metrics.New(nil),
	}
	t.Cleanup(env.links.Close)

	services := &service.Services{
		Export: env.export,
		Job:    env.job,
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "8080", MaxBodySize: 1 << 20},
	}
	opts := api.Options{Metrics: env.metrics, Links: env.links}
	if mutate != nil {
		mutate(cfg, &opts)
	}

	env.router = api.NewRouter(services, opts, cfg, zerolog.Nop())
	return env
}

func (e *testEnv) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func exportBody(formats ...string) map[string]interface{} {
	return map[string]interface{}{
		"data": map[string]interface{}{
			"records": []map[string]interface{}{{"id": 1, "name": "Ana"}},
		},
		"formats": formats,
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do("GET", "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "document-export-api" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	env := setupTestRouter(t, func(cfg *config.Config, opts *api.Options) {
		opts.Health = func(ctx context.Context) error { return errors.New("connection refused") }
	})

	w := env.do("GET", "/health", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "degraded") {
		t.Errorf("Expected degraded status, got %s", w.Body.String())
	}
}

func TestListFormats(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do("GET", "/v1/formats", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Formats []string `json:"formats"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)
	if len(response.Formats) != 6 {
		t.Errorf("Expected 6 formats, got %v", response.Formats)
	}
}

func TestCreateExport(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do("POST", "/v1/exports", exportBody("csv", "pdf"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response models.ExportResponse
	json.Unmarshal(w.Body.Bytes(), &response)
	if !response.Success || len(response.Results) != 2 {
		t.Fatalf("Unexpected response: %s", w.Body.String())
	}
	if response.Results[0].Format != "csv" || response.Results[1].Format != "pdf" {
		t.Errorf("Results should follow request order, got %s, %s", response.Results[0].Format, response.Results[1].Format)
	}

	if len(env.export.Requests) != 1 {
		t.Fatalf("Expected 1 service call, got %d", len(env.export.Requests))
	}
	rec := env.export.Requests[0].Data.Records[0]
	if rec["name"] != "Ana" {
		t.Errorf("Expected record to be passed through, got %v", rec)
	}
}

func TestCreateExport_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		results    []bool
		err        error
		wantStatus int
	}{
		{"all succeeded", []bool{true, true}, nil, http.StatusOK},
		{"partial failure", []bool{true, false}, nil, http.StatusMultiStatus},
		{"all failed", []bool{false}, nil, http.StatusUnprocessableEntity},
		{"no formats", nil, service.ErrNoFormats, http.StatusBadRequest},
		{"unknown format", nil, fmt.Errorf("%w: docx", service.ErrUnsupportedFormat), http.StatusBadRequest},
		{"internal error", nil, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(t, nil)
			env.export.ExportFunc = func(ctx context.Context, req *models.ExportRequest) (*models.ExportResponse, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				resp := &models.ExportResponse{Success: true}
				for _, ok := range tt.results {
					r := models.NewExportResult("csv")
					r.Success = ok
					resp.Success = resp.Success && ok
					resp.Results = append(resp.Results, r)
				}
				return resp, nil
			}

			w := env.do("POST", "/v1/exports", exportBody("csv"), nil)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestCreateExport_InvalidBody(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do("POST", "/v1/exports", `{"formats": [`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid request body") {
		t.Errorf("Unexpected body: %s", w.Body.String())
	}
}

func TestCreateExport_BodyTooLarge(t *testing.T) {
	env := setupTestRouter(t, func(cfg *config.Config, opts *api.Options) {
		cfg.Server.MaxBodySize = 64
	})

	body := fmt.Sprintf(`{"formats":["csv"],"data":{"records":[{"note":%q}]}}`, strings.Repeat("x", 1024))
	w := env.do("POST", "/v1/exports", body, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}
}

func TestDownloadExport(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do("POST", "/v1/exports/download?format=csv", exportBody(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != "attachment; filename=export.csv" {
		t.Errorf("Unexpected Content-Disposition: %q", got)
	}
	if got := w.Header().Get("X-Export-Warnings"); got != "0" {
		t.Errorf("Expected 0 warnings, got %q", got)
	}
	if w.Body.String() != "content" {
		t.Errorf("Unexpected body: %q", w.Body.String())
	}
}

func TestDownloadExport_FormatFromBody(t *testing.T) {
	env := setupTestRouter(t, nil)
	var gotFormat string
	env.export.ExportOneFunc = func(ctx context.Context, req *models.ExportRequest, format string) (*models.ExportResult, error) {
		gotFormat = format
		r := models.NewExportResult(format)
		r.Success = true
		r.Filename = "informe.json"
		r.MimeType = "application/json"
		r.Content = []byte(`[]`)
		return r, nil
	}

	w := env.do("POST", "/v1/exports/download", exportBody("json"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if gotFormat != "json" {
		t.Errorf("Expected json, got %q", gotFormat)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}
}

func TestDownloadExport_Errors(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do("POST", "/v1/exports/download", exportBody("csv", "json"), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Ambiguous format: expected status 400, got %d", w.Code)
	}

	env.export.ExportOneFunc = func(ctx context.Context, req *models.ExportRequest, format string) (*models.ExportResult, error) {
		r := models.NewExportResult(format)
		r.AddError("No hay datos para exportar")
		return r, nil
	}
	w = env.do("POST", "/v1/exports/download?format=pdf", exportBody(), nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Failed export: expected status 422, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No hay datos para exportar") {
		t.Errorf("Error should be reported, got %s", w.Body.String())
	}
}

func TestCreateExportJob(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do("POST", "/v1/exports/jobs", exportBody("xlsx"), map[string]string{"Idempotency-Key": "abc-123"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/v1/exports/jobs/test-job-id" {
		t.Errorf("Unexpected Location: %q", loc)
	}

	var job models.Job
	json.Unmarshal(w.Body.Bytes(), &job)
	if job.ID != "test-job-id" || job.IdempotencyKey != "abc-123" {
		t.Errorf("Unexpected job: %+v", job)
	}
}

func TestCreateExportJob_Existing(t *testing.T) {
	env := setupTestRouter(t, nil)
	env.export.CreateJobFunc = func(ctx context.Context, req *models.ExportRequest, key string) (*models.Job, bool, error) {
		return &models.Job{ID: "existing", Status: models.JobStatusCompleted, IdempotencyKey: key}, false, nil
	}

	w := env.do("POST", "/v1/exports/jobs", exportBody("xlsx"), map[string]string{"Idempotency-Key": "abc-123"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"job_id":"existing"`) {
		t.Errorf("Expected existing job, got %s", w.Body.String())
	}
}

func TestGetExportJob(t *testing.T) {
	env := setupTestRouter(t, nil)
	env.job.Jobs["job-1"] = &models.Job{
		ID:        "job-1",
		Status:    models.JobStatusCompleted,
		Formats:   []string{"csv"},
		TotalRows: 10,
		CreatedAt: time.Now(),
	}

	w := env.do("GET", "/v1/exports/jobs/job-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var job models.Job
	json.Unmarshal(w.Body.Bytes(), &job)
	if job.Status != models.JobStatusCompleted || job.TotalRows != 10 {
		t.Errorf("Unexpected job: %+v", job)
	}

	w = env.do("GET", "/v1/exports/jobs/missing", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetFile(t *testing.T) {
	env := setupTestRouter(t, nil)

	path := filepath.Join(t.TempDir(), "stored.csv")
	if err := os.WriteFile(path, []byte("id,name\n1,Ana\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := env.links.Create(path, "informe.csv", "text/csv;charset=utf-8", 14)

	w := env.do("GET", "/v1/files/"+link.Token, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "id,name\n1,Ana\n" {
		t.Errorf("Unexpected body: %q", w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "informe.csv") {
		t.Errorf("Unexpected Content-Disposition: %q", w.Header().Get("Content-Disposition"))
	}

	env.links.Revoke(link.Token)
	w = env.do("GET", "/v1/files/"+link.Token, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Revoked link: expected status 404, got %d", w.Code)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Revoked file should be removed")
	}
}

func TestGetFile_NoLinks(t *testing.T) {
	env := setupTestRouter(t, func(cfg *config.Config, opts *api.Options) {
		opts.Links = nil
	})

	w := env.do("GET", "/v1/files/anything", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := setupTestRouter(t, func(cfg *config.Config, opts *api.Options) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		if w := env.do("GET", "/health", nil, nil); w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected status 200, got %d", i, w.Code)
		}
	}

	w := env.do("GET", "/health", nil, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After should be set")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestRouter(t, nil)

	w := env.do("OPTIONS", "/v1/exports", nil, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key") {
		t.Error("Idempotency-Key should be an allowed header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestRouter(t, nil)

	env.do("POST", "/v1/exports", exportBody("csv"), nil)
	env.do("GET", "/v1/exports/jobs/missing", nil, nil)

	w := env.do("GET", "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		`document_export_http_requests_total{code="200",method="POST",route="/v1/exports"} 1`,
		`document_export_http_requests_total{code="404",method="GET",route="/v1/exports/jobs/:job_id"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}

func TestPanicRecovery(t *testing.T) {
	env := setupTestRouter(t, nil)
	env.export.ExportFunc = func(ctx context.Context, req *models.ExportRequest) (*models.ExportResponse, error) {
		panic("renderer exploded")
	}

	w := env.do("POST", "/v1/exports", exportBody("csv"), nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}
