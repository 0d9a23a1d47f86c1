package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ExportHandler handles export endpoints
type ExportHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(services *service.Services, log zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		services: services,
		log:      log.With().Str("handler", "export").Logger(),
	}
}

// ListFormats handles GET /v1/formats
func (h *ExportHandler) ListFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"formats": h.services.Export.Formats()})
}

// CreateExport handles POST /v1/exports
// Renders every requested format and delivers the files
func (h *ExportHandler) CreateExport(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	resp, err := h.services.Export.Export(c.Request.Context(), req)
	if err != nil {
		h.requestError(c, err)
		return
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
		for _, r := range resp.Results {
			if r.Success {
				status = http.StatusMultiStatus
				break
			}
		}
	}
	c.JSON(status, resp)
}

// DownloadExport handles POST /v1/exports/download?format=...
// Streams a single rendered file back as an attachment
func (h *ExportHandler) DownloadExport(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	format := c.Query("format")
	if format == "" && len(req.Formats) == 1 {
		format = req.Formats[0]
	}
	if format == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format query parameter is required"})
		return
	}

	result, err := h.services.Export.ExportOne(c.Request.Context(), req, format)
	if err != nil {
		h.requestError(c, err)
		return
	}
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	c.Header("X-Export-Warnings", strconv.Itoa(len(result.Warnings)))
	c.Data(http.StatusOK, result.MimeType, result.Content)
}

// CreateExportJob handles POST /v1/exports/jobs
// Queues an export for the background workers
func (h *ExportHandler) CreateExportJob(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	idempotencyKey := c.GetHeader("Idempotency-Key")
	job, created, err := h.services.Export.CreateExportJob(c.Request.Context(), req, idempotencyKey)
	if err != nil {
		h.requestError(c, err)
		return
	}

	c.Header("Location", "/v1/exports/jobs/"+job.ID)
	if !created {
		h.log.Info().Str("job_id", job.ID).Msg("Returning existing job for idempotency key")
		c.JSON(http.StatusOK, job)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// GetExportJob handles GET /v1/exports/jobs/:job_id
func (h *ExportHandler) GetExportJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.services.Job.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job status"})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *ExportHandler) bindRequest(c *gin.Context) (*models.ExportRequest, bool) {
	var req models.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, false
	}
	return &req, true
}

func (h *ExportHandler) requestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoFormats), errors.Is(err, service.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Msg("Export request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
	}
}
